// ABOUTME: Tests for Gateway assembly, startup tasks and shutdown
// ABOUTME: Runs the gateway against a fake upstream served by httptest

package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/2389/convo-gateway/internal/auth"
	"github.com/2389/convo-gateway/internal/config"
	"github.com/2389/convo-gateway/internal/store"
	"github.com/2389/convo-gateway/internal/upstream"
)

// fakeUpstream serves a fixed conversation list.
func fakeUpstream(t *testing.T, convs ...upstream.ConversationSummary) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/conversations") {
			http.NotFound(w, r)
			return
		}
		_ = json.NewEncoder(w).Encode(upstream.ConversationPage{
			Items: convs,
			Total: len(convs),
			Limit: upstream.DefaultPageSize,
		})
	}))
	t.Cleanup(srv.Close)
	return srv
}

// testConfig creates a config with a temp database and the given upstream.
func testConfig(t *testing.T, upstreamURL string) *config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.Data.DatabaseURL = filepath.Join(t.TempDir(), "gateway.db")
	cfg.Auth.JWTSecret = "gateway-test-secret-with-enough-bytes"
	cfg.RevChatGPT.ChatGPTBaseURL = upstreamURL + "/backend-api/"
	cfg.RevChatGPT.AccessToken = "tok"
	cfg.Common.SyncConversationsRegularly = false
	return cfg
}

func listen(t *testing.T) net.Listener {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("failed to listen: %v", err)
	}
	return ln
}

func TestNew_CreatesInitialAdmin(t *testing.T) {
	srv := fakeUpstream(t)
	cfg := testConfig(t, srv.URL)

	gw, err := New(context.Background(), cfg, nil)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer gw.Shutdown(context.Background())

	admin, err := gw.store.GetUserByUsername(context.Background(), "admin")
	if err != nil {
		t.Fatalf("initial admin missing: %v", err)
	}
	if !admin.IsSuperuser || !admin.IsActive {
		t.Errorf("admin flags = superuser %v active %v, want both true", admin.IsSuperuser, admin.IsActive)
	}
}

func TestNew_SkipsAdminWhenDisabled(t *testing.T) {
	srv := fakeUpstream(t)
	cfg := testConfig(t, srv.URL)
	cfg.Common.CreateInitialAdminUser = false

	gw, err := New(context.Background(), cfg, nil)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer gw.Shutdown(context.Background())

	n, err := gw.store.CountUsers(context.Background())
	if err != nil {
		t.Fatalf("CountUsers() error = %v", err)
	}
	if n != 0 {
		t.Errorf("CountUsers() = %d, want 0", n)
	}
}

func TestServe_StartupSyncAndShutdown(t *testing.T) {
	srv := fakeUpstream(t, upstream.ConversationSummary{ID: "remote-1", Title: "Synced"})
	cfg := testConfig(t, srv.URL)

	gw, err := New(context.Background(), cfg, nil)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	ln := listen(t)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- gw.Serve(ctx, ln) }()

	base := "http://" + ln.Addr().String()
	waitForHealthy(t, base)

	// The startup sync adopted the upstream conversation for the admin.
	admin, err := gw.store.GetUserByUsername(context.Background(), "admin")
	if err != nil {
		t.Fatalf("admin missing: %v", err)
	}
	token, err := auth.NewJWTVerifier([]byte(cfg.Auth.JWTSecret)).Generate(admin.ID, time.Hour)
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}

	req, _ := http.NewRequest(http.MethodGet, base+"/conv", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("GET /conv: %v", err)
	}
	var convs []map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&convs); err != nil {
		t.Fatalf("decoding /conv: %v", err)
	}
	resp.Body.Close()
	if len(convs) != 1 || convs[0]["conversation_id"] != "remote-1" {
		t.Errorf("GET /conv = %v, want the synced conversation", convs)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Serve() error = %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Serve did not return after cancel")
	}
}

func TestServe_StartupSyncFailureIsNotFatal(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	t.Cleanup(srv.Close)
	cfg := testConfig(t, srv.URL)

	gw, err := New(context.Background(), cfg, nil)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	ln := listen(t)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- gw.Serve(ctx, ln) }()

	waitForHealthy(t, "http://"+ln.Addr().String())
	cancel()
	if err := <-done; err != nil {
		t.Errorf("Serve() error = %v", err)
	}
}

func TestNew_ReopensExistingDatabase(t *testing.T) {
	srv := fakeUpstream(t)
	cfg := testConfig(t, srv.URL)

	s, err := store.NewSQLiteStore(cfg.Data.DatabaseURL, store.Options{})
	if err != nil {
		t.Fatalf("NewSQLiteStore() error = %v", err)
	}
	s.Close()

	gw, err := New(context.Background(), cfg, nil)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	gw.Shutdown(context.Background())
}

func TestEnsureInitialAdmin(t *testing.T) {
	ctx := context.Background()
	s := store.NewMockStore()

	first, err := EnsureInitialAdmin(ctx, s, "root", "hunter22", nil)
	if err != nil {
		t.Fatalf("EnsureInitialAdmin() error = %v", err)
	}
	second, err := EnsureInitialAdmin(ctx, s, "root", "other", nil)
	if err != nil {
		t.Fatalf("EnsureInitialAdmin() second call error = %v", err)
	}
	if first.ID != second.ID {
		t.Errorf("second call created a new user: %s != %s", first.ID, second.ID)
	}
	if _, err := auth.Authenticate(ctx, s, "root", "hunter22"); err != nil {
		t.Errorf("Authenticate() error = %v", err)
	}
}

func TestEnsureInitialAdmin_StoreError(t *testing.T) {
	s := store.NewMockStore()
	s.Err = errors.New("disk on fire")

	if _, err := EnsureInitialAdmin(context.Background(), s, "root", "pw", nil); err == nil {
		t.Error("EnsureInitialAdmin() error = nil, want store error")
	}
}

func TestCreateUser_Validation(t *testing.T) {
	s := store.NewMockStore()
	if _, err := CreateUser(context.Background(), s, "", "pw", false); err == nil {
		t.Error("CreateUser() with empty username succeeded")
	}
	if _, err := CreateUser(context.Background(), s, "bob", "", false); err == nil {
		t.Error("CreateUser() with empty password succeeded")
	}
	if _, err := CreateUser(context.Background(), s, "bob", "pw", false); err != nil {
		t.Fatalf("CreateUser() error = %v", err)
	}
	if _, err := CreateUser(context.Background(), s, "bob", "pw", false); !errors.Is(err, store.ErrUsernameExists) {
		t.Errorf("duplicate CreateUser() error = %v, want ErrUsernameExists", err)
	}
}

func waitForHealthy(t *testing.T, base string) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		resp, err := http.Get(base + "/health")
		if err == nil {
			resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				return
			}
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatal("gateway never became healthy")
}

func TestNew_UsesProcessConfig(t *testing.T) {
	srv := fakeUpstream(t)
	cfg := testConfig(t, srv.URL)
	cfg.Common.InitialAdminUserUsername = "root"

	prev := config.Get()
	config.Set(cfg)
	t.Cleanup(func() { config.Set(prev) })

	gw, err := New(context.Background(), nil, nil)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer gw.Shutdown(context.Background())

	if gw.config != cfg {
		t.Error("New(nil) should use the installed config")
	}
	if _, err := gw.store.GetUserByUsername(context.Background(), "root"); err != nil {
		t.Errorf("admin from installed config missing: %v", err)
	}
}

func TestOpenStore_EnvOverride(t *testing.T) {
	cfg := config.Default()
	cfg.Data.DatabaseURL = filepath.Join(t.TempDir(), "configured.db")
	override := filepath.Join(t.TempDir(), "override.db")
	t.Setenv("CONVO_DB_PATH", override)

	s, err := OpenStore(cfg, nil)
	if err != nil {
		t.Fatalf("OpenStore() error = %v", err)
	}
	defer s.Close()

	if _, err := os.Stat(override); err != nil {
		t.Errorf("override database not created: %v", err)
	}
	if _, err := os.Stat(cfg.Data.DatabaseURL); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("configured path should be unused, stat err = %v", err)
	}
}
