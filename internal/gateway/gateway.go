// ABOUTME: Gateway orchestrator that wires the store, upstream client, syncer and HTTP server
// ABOUTME: Manages startup tasks and graceful shutdown of the HTTP server lifecycle

package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/2389/convo-gateway/internal/api"
	"github.com/2389/convo-gateway/internal/auth"
	"github.com/2389/convo-gateway/internal/config"
	"github.com/2389/convo-gateway/internal/history"
	"github.com/2389/convo-gateway/internal/store"
	"github.com/2389/convo-gateway/internal/syncer"
	"github.com/2389/convo-gateway/internal/upstream"
)

// Gateway orchestrates the convo-gateway server components.
type Gateway struct {
	config     *config.Config
	store      store.Store
	history    history.Store
	manager    *upstream.Client
	syncer     *syncer.Syncer
	httpServer *http.Server
	logger     *slog.Logger

	// cancelSync stops the periodic sync loop
	cancelSync context.CancelFunc
}

// OpenStore opens the SQLite store named by data.database_url.
// CONVO_DB_PATH overrides the configured path.
func OpenStore(cfg *config.Config, logger *slog.Logger) (*store.SQLiteStore, error) {
	dbPath := cfg.Data.DatabaseURL
	if envPath := os.Getenv("CONVO_DB_PATH"); envPath != "" {
		dbPath = envPath
	}

	s, err := store.NewSQLiteStore(dbPath, store.Options{
		Logger:       logger,
		PrintSQL:     cfg.Common.PrintSQL,
		RunMigration: cfg.Data.RunMigration,
	})
	if err != nil {
		return nil, fmt.Errorf("initializing store: %w", err)
	}
	return s, nil
}

// initHistory picks MongoDB when data.mongodb_url is set and memory otherwise.
func initHistory(ctx context.Context, cfg *config.Config, logger *slog.Logger) (history.Store, error) {
	if cfg.Data.MongoDBURL == "" {
		logger.Info("history store: memory", "ttl", cfg.Stats.HistoryCacheTTL, "max_size", cfg.Stats.HistoryCacheSize)
		return history.NewMemoryStore(cfg.Stats.HistoryCacheTTL, cfg.Stats.HistoryCacheSize), nil
	}

	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	hs, err := history.NewMongoStore(connectCtx, cfg.Data.MongoDBURL, "", cfg.Stats.HistoryCacheTTL, logger)
	if err != nil {
		return nil, fmt.Errorf("initializing history store: %w", err)
	}
	logger.Info("history store: mongodb")
	return hs, nil
}

// New creates a Gateway from cfg, or from the process-wide config when cfg
// is nil. It opens the stores and ensures the initial admin user exists,
// but starts nothing.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Gateway, error) {
	if cfg == nil {
		cfg = config.Get()
	}
	if logger == nil {
		logger = slog.Default()
	}

	s, err := OpenStore(cfg, logger)
	if err != nil {
		return nil, err
	}

	hs, err := initHistory(ctx, cfg, logger)
	if err != nil {
		_ = s.Close()
		return nil, err
	}

	closeAll := func() {
		_ = hs.Close()
		_ = s.Close()
	}

	if cfg.Common.CreateInitialAdminUser {
		if _, err := EnsureInitialAdmin(ctx, s, cfg.Common.InitialAdminUserUsername, cfg.Common.InitialAdminUserPassword, logger); err != nil {
			closeAll()
			return nil, err
		}
	}

	manager, err := upstream.New(upstream.Config{
		BaseURL:     cfg.RevChatGPT.BaseURL(),
		AccessToken: cfg.RevChatGPT.AccessToken,
		Timeout:     time.Duration(cfg.RevChatGPT.AskTimeout) * time.Second,
	}, hs, logger)
	if err != nil {
		closeAll()
		return nil, fmt.Errorf("creating upstream client: %w", err)
	}

	interval := time.Duration(0)
	if cfg.Common.SyncConversationsRegularly {
		interval = cfg.Common.SyncConversationsInterval
	}
	sy := syncer.New(syncer.Config{
		Store:         s,
		Upstream:      manager,
		OwnerUsername: cfg.Common.InitialAdminUserUsername,
		Interval:      interval,
		Logger:        logger,
	})

	handler := api.NewRouter(api.RouterOptions{
		API:               api.New(s, manager, logger),
		Users:             s,
		Verifier:          auth.NewJWTVerifier([]byte(cfg.Auth.JWTSecret)),
		CookieName:        cfg.Auth.CookieName,
		CORSAllowOrigins:  cfg.HTTP.CORSAllowOrigins,
		MetricsEnabled:    cfg.Stats.MetricsEnabled,
		RateLimitRequests: cfg.HTTP.RateLimitRequests,
		RateLimitWindow:   cfg.HTTP.RateLimitWindow,
		Ready:             s,
		Logger:            logger,
	})

	return &Gateway{
		config:  cfg,
		store:   s,
		history: hs,
		manager: manager,
		syncer:  sy,
		httpServer: &http.Server{
			Addr:              cfg.HTTP.Addr(),
			Handler:           handler,
			ReadHeaderTimeout: 10 * time.Second,
		},
		logger: logger.With("component", "gateway"),
	}, nil
}

// startSync runs the startup sync and launches the periodic loop.
// Sync failures are logged and never stop the gateway.
func (g *Gateway) startSync(ctx context.Context) {
	syncCtx, cancel := context.WithCancel(ctx)
	g.cancelSync = cancel

	if g.config.Common.SyncConversationsOnStartup {
		if _, err := g.syncer.SyncOnce(syncCtx); err != nil {
			g.logger.Error("startup conversation sync failed", "error", err)
		}
	}
	go g.syncer.Run(syncCtx)
}

// startServer starts the HTTP server in a goroutine, returning its error channel.
func (g *Gateway) startServer(ln net.Listener) chan error {
	errCh := make(chan error, 1)
	go func() {
		g.logger.Info("HTTP server listening", "addr", ln.Addr().String())
		if err := g.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("HTTP server: %w", err)
		}
	}()
	return errCh
}

// waitForShutdownSignal waits for context cancellation or server error.
func (g *Gateway) waitForShutdownSignal(ctx context.Context, errCh chan error) error {
	select {
	case <-ctx.Done():
		g.logger.Info("context canceled, initiating shutdown")
		return nil
	case err := <-errCh:
		g.logger.Error("server error", "error", err)
		return err
	}
}

// Run starts the gateway and blocks until the context is canceled.
// Returns nil on graceful shutdown, or an error if the server fails.
func (g *Gateway) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", g.httpServer.Addr)
	if err != nil {
		return fmt.Errorf("listening on HTTP address: %w", err)
	}
	return g.Serve(ctx, ln)
}

// Serve is Run on an existing listener.
func (g *Gateway) Serve(ctx context.Context, ln net.Listener) error {
	g.logger.Info("starting gateway", "http_addr", ln.Addr().String(), "upstream", g.config.RevChatGPT.BaseURL())

	g.startSync(ctx)
	errCh := g.startServer(ln)

	serverErr := g.waitForShutdownSignal(ctx, errCh)
	shutdownErr := g.gracefulShutdown()

	if serverErr != nil {
		return serverErr
	}
	return shutdownErr
}

// gracefulShutdown performs shutdown with a fresh context and timeout.
// The Run context is already canceled at this point.
func (g *Gateway) gracefulShutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return g.Shutdown(ctx)
}

// appendCloseError appends an error with label if err is non-nil.
func appendCloseError(errs []error, label string, err error) []error {
	if err != nil {
		return append(errs, fmt.Errorf("%s: %w", label, err))
	}
	return errs
}

// Shutdown stops the HTTP server and sync loop and releases the stores.
func (g *Gateway) Shutdown(ctx context.Context) error {
	g.logger.Info("shutting down gateway")

	if g.cancelSync != nil {
		g.cancelSync()
	}

	var errs []error
	errs = appendCloseError(errs, "HTTP shutdown", g.httpServer.Shutdown(ctx))
	errs = appendCloseError(errs, "history close", g.history.Close())
	errs = appendCloseError(errs, "store close", g.store.Close())

	return errors.Join(errs...)
}
