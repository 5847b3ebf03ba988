// ABOUTME: Tests for router-level behavior
// ABOUTME: Health checks, metrics exposure, CORS and per-user rate limiting

package api

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/convo-gateway/internal/auth"
	"github.com/2389/convo-gateway/internal/store"
)

type pingFunc func(ctx context.Context) error

func (f pingFunc) Ping(ctx context.Context) error { return f(ctx) }

func newBareRouter(t *testing.T, opts RouterOptions) http.Handler {
	t.Helper()
	s := store.NewMockStore()
	if opts.API == nil {
		opts.API = New(s, newFakeManager(), nil)
	}
	if opts.Users == nil {
		opts.Users = s
	}
	if opts.Verifier == nil {
		opts.Verifier = auth.NewJWTVerifier(testSecret)
	}
	return NewRouter(opts)
}

func TestHealth(t *testing.T) {
	h := newBareRouter(t, RouterOptions{})
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"ok"`)
}

func TestHealthReady(t *testing.T) {
	healthy := newBareRouter(t, RouterOptions{Ready: pingFunc(func(context.Context) error { return nil })})
	rec := httptest.NewRecorder()
	healthy.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	broken := newBareRouter(t, RouterOptions{Ready: pingFunc(func(context.Context) error { return errors.New("db gone") })})
	rec = httptest.NewRecorder()
	broken.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	h := newBareRouter(t, RouterOptions{MetricsEnabled: true})

	// Generate at least one recorded request.
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "convo_http_requests_total")

	disabled := newBareRouter(t, RouterOptions{})
	rec = httptest.NewRecorder()
	disabled.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCORS(t *testing.T) {
	h := newBareRouter(t, RouterOptions{CORSAllowOrigins: []string{"http://localhost"}})

	req := httptest.NewRequest(http.MethodOptions, "/conv", nil)
	req.Header.Set("Origin", "http://localhost")
	req.Header.Set("Access-Control-Request-Method", http.MethodGet)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, "http://localhost", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "true", rec.Header().Get("Access-Control-Allow-Credentials"))

	req = httptest.NewRequest(http.MethodOptions, "/conv", nil)
	req.Header.Set("Origin", "http://evil.example")
	req.Header.Set("Access-Control-Request-Method", http.MethodGet)
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestUserRateLimit(t *testing.T) {
	s := store.NewMockStore()
	verifier := auth.NewJWTVerifier(testSecret)
	for _, name := range []string{"alice", "bob"} {
		require.NoError(t, s.CreateUser(context.Background(), &store.User{
			ID: name, Username: name, PasswordHash: "x", IsActive: true, CreatedAt: time.Now(),
		}))
	}
	h := NewRouter(RouterOptions{
		API:               New(s, newFakeManager(), nil),
		Users:             s,
		Verifier:          verifier,
		RateLimitRequests: 2,
		RateLimitWindow:   time.Minute,
	})

	get := func(userID string) int {
		token, err := verifier.Generate(userID, time.Hour)
		require.NoError(t, err)
		req := httptest.NewRequest(http.MethodGet, "/conv", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec.Code
	}

	assert.Equal(t, http.StatusOK, get("alice"))
	assert.Equal(t, http.StatusOK, get("alice"))
	assert.Equal(t, http.StatusTooManyRequests, get("alice"))
	assert.Equal(t, http.StatusOK, get("bob"), "limits are per user")
}

func TestNotFoundEnvelope(t *testing.T) {
	h := newBareRouter(t, RouterOptions{})
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/nowhere", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), "errors.notFound"))
}
