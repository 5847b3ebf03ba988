// ABOUTME: Tests for HTTP authentication middleware
// ABOUTME: Covers header and cookie tokens, inactive users, and the superuser gate

package auth

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/2389/convo-gateway/internal/store"
)

// httpTestSecret is a 32-byte secret matching the minimum config length.
var httpTestSecret = []byte("http-middleware-test-secret-32b!")

const testCookieName = "user_auth"

func newHTTPTestStore(t *testing.T) *store.MockStore {
	t.Helper()
	s := store.NewMockStore()
	ctx := context.Background()
	users := []*store.User{
		{ID: "user-1", Username: "alice", IsActive: true, CreatedAt: time.Now()},
		{ID: "admin-1", Username: "admin", IsActive: true, IsSuperuser: true, CreatedAt: time.Now()},
		{ID: "inactive-1", Username: "ghost", IsActive: false, CreatedAt: time.Now()},
	}
	for _, u := range users {
		if err := s.CreateUser(ctx, u); err != nil {
			t.Fatalf("CreateUser() error = %v", err)
		}
	}
	return s
}

// serve runs req through the middleware and returns the recorder and the
// AuthContext seen by the inner handler.
func serve(t *testing.T, users UserStore, mw ...func(http.Handler) http.Handler) func(*http.Request) (*httptest.ResponseRecorder, *AuthContext) {
	return func(req *http.Request) (*httptest.ResponseRecorder, *AuthContext) {
		var got *AuthContext
		var handler http.Handler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			got = FromContext(r.Context())
			w.WriteHeader(http.StatusOK)
		})
		for i := len(mw) - 1; i >= 0; i-- {
			handler = mw[i](handler)
		}
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		return rec, got
	}
}

func TestHTTPAuthMiddleware_BearerToken(t *testing.T) {
	verifier := NewJWTVerifier(httpTestSecret)
	users := newHTTPTestStore(t)
	token, _ := verifier.Generate("user-1", time.Hour)

	req := httptest.NewRequest(http.MethodGet, "/conv", nil)
	req.Header.Set("Authorization", "Bearer "+token)

	rec, got := serve(t, users, HTTPAuthMiddleware(users, verifier, testCookieName, nil))(req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}
	if got == nil || got.UserID != "user-1" || got.Username != "alice" || got.IsSuperuser {
		t.Errorf("unexpected auth context %+v", got)
	}
}

func TestHTTPAuthMiddleware_Cookie(t *testing.T) {
	verifier := NewJWTVerifier(httpTestSecret)
	users := newHTTPTestStore(t)
	token, _ := verifier.Generate("admin-1", time.Hour)

	req := httptest.NewRequest(http.MethodGet, "/conv", nil)
	req.AddCookie(&http.Cookie{Name: testCookieName, Value: token})

	rec, got := serve(t, users, HTTPAuthMiddleware(users, verifier, testCookieName, nil))(req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}
	if got == nil || !got.IsSuperuser {
		t.Errorf("expected superuser auth context, got %+v", got)
	}
}

func TestHTTPAuthMiddleware_Rejects(t *testing.T) {
	verifier := NewJWTVerifier(httpTestSecret)
	users := newHTTPTestStore(t)

	validFor := func(id string) string {
		token, _ := verifier.Generate(id, time.Hour)
		return token
	}
	expired, _ := verifier.Generate("user-1", -time.Hour)

	tests := []struct {
		name   string
		header string
		cookie string
	}{
		{name: "no credentials"},
		{name: "wrong scheme", header: "Basic dXNlcjpwYXNz"},
		{name: "empty bearer", header: "Bearer "},
		{name: "garbage token", header: "Bearer nope"},
		{name: "expired token", header: "Bearer " + expired},
		{name: "unknown user", header: "Bearer " + validFor("nobody")},
		{name: "inactive user", header: "Bearer " + validFor("inactive-1")},
		{name: "bad cookie", cookie: "nope"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/conv", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			if tt.cookie != "" {
				req.AddCookie(&http.Cookie{Name: testCookieName, Value: tt.cookie})
			}

			rec, got := serve(t, users, HTTPAuthMiddleware(users, verifier, testCookieName, nil))(req)

			if rec.Code != http.StatusUnauthorized {
				t.Errorf("expected status 401, got %d", rec.Code)
			}
			if got != nil {
				t.Error("inner handler should not run")
			}

			var body map[string]any
			if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
				t.Fatalf("response is not JSON: %v", err)
			}
			if body["message"] != "errors.unauthorized" {
				t.Errorf("message = %v, want errors.unauthorized", body["message"])
			}
		})
	}
}

func TestHTTPAuthMiddleware_StoreFailure(t *testing.T) {
	verifier := NewJWTVerifier(httpTestSecret)
	users := newHTTPTestStore(t)
	token, _ := verifier.Generate("user-1", time.Hour)
	users.Err = errors.New("db down")

	req := httptest.NewRequest(http.MethodGet, "/conv", nil)
	req.Header.Set("Authorization", "Bearer "+token)

	rec, _ := serve(t, users, HTTPAuthMiddleware(users, verifier, testCookieName, nil))(req)
	if rec.Code != http.StatusInternalServerError {
		t.Errorf("expected status 500, got %d", rec.Code)
	}
}

func TestRequireSuperuserHTTP(t *testing.T) {
	verifier := NewJWTVerifier(httpTestSecret)
	users := newHTTPTestStore(t)

	tests := []struct {
		userID string
		want   int
	}{
		{"user-1", http.StatusForbidden},
		{"admin-1", http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.userID, func(t *testing.T) {
			token, _ := verifier.Generate(tt.userID, time.Hour)
			req := httptest.NewRequest(http.MethodDelete, "/conv", nil)
			req.Header.Set("Authorization", "Bearer "+token)

			rec, _ := serve(t, users,
				HTTPAuthMiddleware(users, verifier, testCookieName, nil),
				RequireSuperuserHTTP(),
			)(req)

			if rec.Code != tt.want {
				t.Errorf("expected status %d, got %d", tt.want, rec.Code)
			}
		})
	}
}

func TestRequireSuperuserHTTP_NoAuth(t *testing.T) {
	req := httptest.NewRequest(http.MethodDelete, "/conv", nil)
	rec, _ := serve(t, nil, RequireSuperuserHTTP())(req)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("expected status 401, got %d", rec.Code)
	}
}

func TestExtractBearerToken(t *testing.T) {
	tests := []struct {
		header    string
		wantToken string
		wantErr   bool
	}{
		{"Bearer abc", "abc", false},
		{"", "", true},
		{"bearer abc", "", true},
		{"Bearer ", "", true},
	}
	for _, tt := range tests {
		token, errMsg := extractBearerToken(tt.header)
		if token != tt.wantToken || (errMsg != "") != tt.wantErr {
			t.Errorf("extractBearerToken(%q) = %q, %q", tt.header, token, errMsg)
		}
	}
}
