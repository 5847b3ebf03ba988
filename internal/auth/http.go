// ABOUTME: HTTP middleware resolving the current user from a JWT
// ABOUTME: Reads the token from the Authorization header or the auth cookie

package auth

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/2389/convo-gateway/internal/store"
)

// UserStore is the subset of the store the middleware needs.
type UserStore interface {
	GetUser(ctx context.Context, id string) (*store.User, error)
}

// extractBearerToken extracts a bearer token from the Authorization header.
// Returns the token and an error message (empty if successful).
func extractBearerToken(authHeader string) (string, string) {
	if authHeader == "" {
		return "", "missing authorization header"
	}
	if !strings.HasPrefix(authHeader, "Bearer ") {
		return "", "invalid authorization header format"
	}
	token := strings.TrimPrefix(authHeader, "Bearer ")
	if token == "" {
		return "", "empty token"
	}
	return token, ""
}

// requestToken returns the bearer token, falling back to the named cookie.
func requestToken(r *http.Request, cookieName string) (string, string) {
	token, errMsg := extractBearerToken(r.Header.Get("Authorization"))
	if errMsg == "" {
		return token, ""
	}
	if cookieName != "" {
		if c, err := r.Cookie(cookieName); err == nil && c.Value != "" {
			return c.Value, ""
		}
	}
	return "", errMsg
}

// writeError writes the gateway's JSON error envelope.
func writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"code":    status,
		"message": message,
		"result":  nil,
	})
}

// HTTPAuthMiddleware creates an HTTP middleware that resolves the current active
// user. Requests without a valid token for an active user get 401.
func HTTPAuthMiddleware(users UserStore, verifier TokenVerifier, cookieName string, logger *slog.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "auth")

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, errMsg := requestToken(r, cookieName)
			if errMsg != "" {
				writeError(w, http.StatusUnauthorized, "errors.unauthorized")
				return
			}

			userID, err := verifier.Verify(token)
			if err != nil {
				logger.Debug("rejected token", "error", err)
				writeError(w, http.StatusUnauthorized, "errors.unauthorized")
				return
			}

			user, err := users.GetUser(r.Context(), userID)
			if err != nil {
				if !errors.Is(err, store.ErrNotFound) {
					logger.Error("failed to load user", "user_id", userID, "error", err)
					writeError(w, http.StatusInternalServerError, "errors.internal")
					return
				}
				writeError(w, http.StatusUnauthorized, "errors.unauthorized")
				return
			}

			if !user.IsActive {
				writeError(w, http.StatusUnauthorized, "errors.unauthorized")
				return
			}

			authCtx := &AuthContext{
				UserID:      user.ID,
				Username:    user.Username,
				IsSuperuser: user.IsSuperuser,
			}
			next.ServeHTTP(w, r.WithContext(WithAuth(r.Context(), authCtx)))
		})
	}
}

// RequireSuperuserHTTP creates an HTTP middleware that requires a superuser.
// Must be used after HTTPAuthMiddleware.
func RequireSuperuserHTTP() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authCtx := FromContext(r.Context())
			if authCtx == nil {
				writeError(w, http.StatusUnauthorized, "errors.unauthorized")
				return
			}

			if !authCtx.IsAdmin() {
				writeError(w, http.StatusForbidden, "errors.authorityDenied")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
