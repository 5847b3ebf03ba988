// ABOUTME: chi router assembly for the gateway HTTP surface
// ABOUTME: Wires middleware, CORS, health checks, metrics and the authenticated conversation routes

package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/2389/convo-gateway/internal/auth"
)

// Pinger reports whether a dependency is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// RouterOptions configures NewRouter.
type RouterOptions struct {
	API               *API
	Users             auth.UserStore
	Verifier          auth.TokenVerifier
	CookieName        string
	CORSAllowOrigins  []string
	MetricsEnabled    bool
	RateLimitRequests int // 0 disables per-user limiting
	RateLimitWindow   time.Duration
	Ready             Pinger
	Logger            *slog.Logger
}

// NewRouter builds the HTTP handler for the gateway.
func NewRouter(opts RouterOptions) http.Handler {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "http")

	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(requestLogger(logger, opts.MetricsEnabled))
	r.Use(chimiddleware.Recoverer)

	if len(opts.CORSAllowOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins:   opts.CORSAllowOrigins,
			AllowedMethods:   []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
			AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
			ExposedHeaders:   []string{"X-Request-ID"},
			AllowCredentials: true,
			MaxAge:           300,
		}))
	}

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		sendJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Get("/health/ready", func(w http.ResponseWriter, r *http.Request) {
		if opts.Ready != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel()
			if err := opts.Ready.Ping(ctx); err != nil {
				logger.Warn("readiness check failed", "error", err)
				sendJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
				return
			}
		}
		sendJSON(w, http.StatusOK, map[string]string{"status": "ready"})
	})

	if opts.MetricsEnabled {
		r.Handle("/metrics", promhttp.Handler())
	}

	a := opts.API
	r.Group(func(r chi.Router) {
		r.Use(auth.HTTPAuthMiddleware(opts.Users, opts.Verifier, opts.CookieName, logger))
		if opts.RateLimitRequests > 0 {
			r.Use(userRateLimit(opts.RateLimitRequests, opts.RateLimitWindow))
		}

		r.Route("/conv", func(r chi.Router) {
			r.Get("/", a.handleListConversations)
			r.With(auth.RequireSuperuserHTTP()).Delete("/", a.handleClearConversations)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", a.handleGetConversation)
				r.Delete("/", a.handleDeleteConversation)
				r.Patch("/", a.handleRenameConversation)
				r.Delete("/vanish", a.handleVanishConversation)
				r.Patch("/gen_title", a.handleGenerateTitle)
				r.With(auth.RequireSuperuserHTTP()).Patch("/assign/{username}", a.handleAssignConversation)
			})
		})
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		sendJSONError(w, http.StatusNotFound, "errors.notFound")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		sendJSONError(w, http.StatusMethodNotAllowed, "errors.methodNotAllowed")
	})

	return r
}
