// Package internal provides the main application initialization and runtime logic.
package internal

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/sync/errgroup"

	"github.com/starford/vigor/internal/api"
	"github.com/starford/vigor/internal/datastore"
	"github.com/starford/vigor/internal/importer"
	"github.com/starford/vigor/internal/sse"
	"github.com/starford/vigor/internal/storage"
	"github.com/starford/vigor/internal/wellness"
)

var errConfigRequired = errors.New("config is required")

// NewLogger returns a JSON logger writing to w at level.
func NewLogger(w io.Writer, level slog.Level) *slog.Logger {
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level: level,
	}))
}

// Run starts the HTTP server, the inbox importer and the SSE broker, and
// blocks until ctx is cancelled or a shutdown signal arrives.
func Run(ctx context.Context, opts ...Option) error {
	app, err := newApplication(os.Stdout, opts...)
	if err != nil {
		return err
	}
	cfg := app.config
	logger := app.logger
	slog.SetDefault(logger)

	logger.Info("Configuration loaded",
		slog.String("http_address", cfg.App.HTTP.Address()),
		slog.String("inbox_path", cfg.Inbox.Path),
		slog.String("sqlite_path", cfg.SQLite.Path),
		slog.String("auth_mode", cfg.Auth.Mode),
		slog.String("log_level", cfg.App.LogLevel.String()))

	db, store, err := openBackend(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	broker := sse.NewBroker(cfg.Events.DashboardThrottle)
	defer broker.Close()

	svc := wellness.NewService(db, broker, logger)
	imp := newImporter(cfg, svc, db, store, logger)

	// Import whatever arrived while the server was down.
	if rep, err := imp.Sync(ctx); err != nil {
		logger.Warn("initial import failed", slog.String("error", err.Error()))
	} else {
		logger.Info("initial import done",
			slog.Int("imported", rep.Imported),
			slog.Int("duplicates", rep.Duplicates),
			slog.Int("failed", rep.Failed))
	}

	httpServer := newHTTPServer(cfg, newRootRouter(cfg, svc, db, broker), broker)

	g, gCtx := errgroup.WithContext(ctx)

	if cfg.Inbox.Watch {
		g.Go(func() error {
			return imp.Watch(gCtx)
		})
	}

	g.Go(func() error {
		logger.Info("Starting HTTP server", slog.String("address", cfg.App.HTTP.Address()))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTP server error: %w", err)
		}
		return nil
	})

	// Handle shutdown signals.
	g.Go(func() error {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		defer signal.Stop(quit)

		select {
		case sig := <-quit:
			logger.Info("Received shutdown signal", slog.String("signal", sig.String()))
		case <-gCtx.Done():
			logger.Info("Context cancelled, initiating shutdown")
		}

		logger.Info("Shutting down server...")

		timeout := cfg.App.HTTP.ShutdownTimeout
		if timeout <= 0 {
			timeout = 10 * time.Second
		}
		shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("HTTP server shutdown error", slog.String("error", err.Error()))
		}

		return errShutdown
	})

	if err := g.Wait(); err != nil && !errors.Is(err, errShutdown) {
		logger.Error("Application error", slog.String("error", err.Error()))
		return err
	}

	logger.Info("Server stopped successfully")
	return nil
}

// errShutdown cancels the group so the watcher stops with the server.
var errShutdown = errors.New("shutdown")

// openBackend ensures the inbox exists and opens the database.
func openBackend(cfg *Config) (*datastore.DB, storage.Provider, error) {
	if err := os.MkdirAll(cfg.Inbox.Path, 0o755); err != nil {
		return nil, nil, fmt.Errorf("create inbox dir: %w", err)
	}
	store, err := storage.NewFS(cfg.Inbox.Path)
	if err != nil {
		return nil, nil, fmt.Errorf("init storage: %w", err)
	}
	db, err := datastore.Open(cfg.SQLite.Path)
	if err != nil {
		return nil, nil, fmt.Errorf("init datastore: %w", err)
	}
	return db, store, nil
}

func newImporter(cfg *Config, svc *wellness.Service, db *datastore.DB, store storage.Provider, logger *slog.Logger) *importer.Importer {
	opts := []importer.Option{
		importer.WithLogger(logger),
		importer.WithDefaultUser(cfg.Inbox.DefaultUser),
	}
	if cfg.Inbox.Debounce > 0 {
		opts = append(opts, importer.WithDebounce(cfg.Inbox.Debounce))
	}
	if cfg.Inbox.DeleteImported {
		opts = append(opts, importer.WithDeleteImported())
	}
	return importer.New(svc, db, store, opts...)
}

// newRootRouter mounts health checks and the API under /api.
// newHTTPServer builds the server. Shutdown closes the broker first so open
// event streams end instead of holding the shutdown until its timeout.
func newHTTPServer(cfg *Config, h http.Handler, broker *sse.Broker) *http.Server {
	srv := &http.Server{
		Addr:              cfg.App.HTTP.Address(),
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
	}
	srv.RegisterOnShutdown(broker.Close)
	return srv
}

func newRootRouter(cfg *Config, svc *wellness.Service, db *datastore.DB, broker *sse.Broker) chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	// Health check endpoints (unauthenticated).
	r.Get("/health/live", func(w http.ResponseWriter, _ *http.Request) {
		writeStatus(w, http.StatusOK, "ok")
	})
	r.Get("/health/ready", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := db.Ping(ctx); err != nil {
			writeStatus(w, http.StatusServiceUnavailable, "unavailable")
			return
		}
		writeStatus(w, http.StatusOK, "ok")
	})

	r.Mount("/api", api.NewRouter(svc, api.RouterConfig{
		AuthEnabled:    cfg.Auth.AuthEnabled(),
		Token:          cfg.Auth.Token,
		AllowedOrigins: cfg.CORS.AllowedOrigins,
		Events:         broker,
	}))
	return r
}

func writeStatus(w http.ResponseWriter, code int, status string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_, _ = fmt.Fprintf(w, `{"status":%q}`, status)
}
