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
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/starford/notegraph/internal/api"
	"github.com/starford/notegraph/internal/index"
	"github.com/starford/notegraph/internal/mcpserver"
	"github.com/starford/notegraph/internal/noteservice"
	"github.com/starford/notegraph/internal/sse"
	"github.com/starford/notegraph/internal/storage"
	"github.com/starford/notegraph/internal/watcher"
)

// NewLogger returns the structured JSON logger used by every command.
func NewLogger(level slog.Level, w io.Writer) *slog.Logger {
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level}))
}

// Core holds the vault, the index and the service built over them.
type Core struct {
	Files   *storage.FS
	DB      *index.DB
	Service *noteservice.Service
}

// OpenCore opens the vault and the SQLite index and wires the service.
// The vault directory is created when missing.
func OpenCore(cfg *Config, logger *slog.Logger, opts ...noteservice.Option) (*Core, error) {
	if err := os.MkdirAll(cfg.Vault.Path, 0o755); err != nil {
		return nil, fmt.Errorf("create vault dir: %w", err)
	}
	files, err := storage.NewFS(cfg.Vault.Path)
	if err != nil {
		return nil, fmt.Errorf("init storage: %w", err)
	}
	db, err := index.Open(cfg.SQLite.Path)
	if err != nil {
		return nil, fmt.Errorf("init index: %w", err)
	}
	return &Core{
		Files:   files,
		DB:      db,
		Service: noteservice.NewService(db, files, logger, opts...),
	}, nil
}

// Close releases the index.
func (c *Core) Close() error {
	return c.DB.Close()
}

// Startup runs the indexing pass configured for process start. Failures are
// logged, not returned: the previous graph stays readable.
func (c *Core) Startup(ctx context.Context, cfg IndexConfig, logger *slog.Logger) {
	if !cfg.ReindexOnStart && !cfg.FullOnStart {
		return
	}
	if cfg.FullOnStart {
		if _, err := c.Service.ScanVault(ctx, true); err != nil {
			logger.Warn("initial scan failed", slog.String("error", err.Error()))
			return
		}
		res, err := c.Service.Reindex(ctx, true)
		if err != nil {
			logger.Warn("initial full reindex failed", slog.String("error", err.Error()))
			return
		}
		logger.Info("initial full reindex done",
			slog.Int("notes", res.NotesTotal),
			slog.Int("links", res.LinksInserted))
		return
	}
	res, err := c.Service.Sync(ctx)
	if err != nil {
		logger.Warn("initial sync failed", slog.String("error", err.Error()))
		return
	}
	if res == nil {
		logger.Info("initial sync: index up to date")
		return
	}
	logger.Info("initial sync done",
		slog.Int("notes_indexed", res.NotesIndexed),
		slog.Int("notes_skipped", res.NotesSkipped))
}

// newHTTPHandler mounts health, metrics and the authenticated /api routes.
func newHTTPHandler(cfg *Config, core *Core, events http.Handler) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	// Health check endpoints (unauthenticated).
	r.Get("/health/live", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	r.Get("/health/ready", func(w http.ResponseWriter, req *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if err := core.DB.Ping(req.Context()); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte(`{"status":"unavailable"}`))
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	r.Handle("/metrics", promhttp.Handler())

	r.Mount("/api", api.NewRouter(core.Service, cfg.Auth.AuthEnabled(), cfg.Auth.Token, events))
	return r
}

func (a *application) setup() (*Config, *slog.Logger, error) {
	if a.config == nil {
		return nil, nil, fmt.Errorf("config is required")
	}
	logger := a.logger
	if logger == nil {
		logger = NewLogger(a.config.App.LogLevel, os.Stdout)
	}
	return a.config, logger, nil
}

// Run starts the HTTP server, and the vault watcher when enabled, until ctx
// is cancelled or a shutdown signal arrives.
func Run(ctx context.Context, opts ...Option) error {
	app := &application{}

	for _, opt := range opts {
		opt(app)
	}

	cfg, logger, err := app.setup()
	if err != nil {
		return err
	}
	slog.SetDefault(logger)

	logger.Info("Configuration loaded",
		slog.String("http_address", cfg.App.HTTP.Address()),
		slog.String("vault_path", cfg.Vault.Path),
		slog.String("sqlite_path", cfg.SQLite.Path),
		slog.String("log_level", cfg.App.LogLevel.String()),
		slog.Bool("auth", cfg.Auth.AuthEnabled()),
		slog.Bool("watch", cfg.Index.Watch))

	broker := sse.NewBroker(2 * time.Second)
	defer broker.Close()

	core, err := OpenCore(cfg, logger, noteservice.WithPublisher(broker))
	if err != nil {
		return err
	}
	defer core.Close()

	core.Startup(ctx, cfg.Index, logger)

	httpServer := &http.Server{
		Addr:              cfg.App.HTTP.Address(),
		Handler:           newHTTPHandler(cfg, core, broker),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gCtx := errgroup.WithContext(ctx)

	if cfg.Index.Watch {
		w := watcher.New(cfg.Vault.Path, cfg.Index.Debounce, logger, func(ctx context.Context, paths []string) {
			res, err := core.Service.Sync(ctx)
			if err != nil {
				logger.Error("watch sync failed",
					slog.Int("paths", len(paths)),
					slog.String("error", err.Error()))
				return
			}
			if res != nil {
				logger.Info("watch sync done",
					slog.Int("paths", len(paths)),
					slog.Int("notes_indexed", res.NotesIndexed),
					slog.Int("links_retargeted", res.LinksRetargeted))
			}
		})
		g.Go(func() error {
			if err := w.Run(gCtx); err != nil {
				return fmt.Errorf("vault watcher: %w", err)
			}
			return nil
		})
	}

	// Start HTTP server.
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

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
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

// RunMCP serves the MCP tools on stdin/stdout. Logs go to stderr.
func RunMCP(ctx context.Context, opts ...Option) error {
	app := &application{}
	for _, opt := range opts {
		opt(app)
	}
	if app.logger == nil && app.config != nil {
		app.logger = NewLogger(app.config.App.LogLevel, os.Stderr)
	}
	cfg, logger, err := app.setup()
	if err != nil {
		return err
	}

	core, err := OpenCore(cfg, logger)
	if err != nil {
		return err
	}
	defer core.Close()

	core.Startup(ctx, cfg.Index, logger)

	version := app.version
	if version == "" {
		version = "dev"
	}
	logger.Info("MCP server starting", slog.String("vault_path", cfg.Vault.Path))
	return mcpserver.New(core.Service, version).ServeStdio()
}
