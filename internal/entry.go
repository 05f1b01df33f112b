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
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/starford/jotter/internal/api"
	"github.com/starford/jotter/internal/mcpserver"
	"github.com/starford/jotter/internal/metrics"
	"github.com/starford/jotter/internal/models"
	"github.com/starford/jotter/internal/noteservice"
	"github.com/starford/jotter/internal/persist"
	"github.com/starford/jotter/internal/sse"
	"github.com/starford/jotter/internal/storage"
	"github.com/starford/jotter/internal/watcher"
)

// Session is an opened note collection together with the logger, metrics
// and storage it runs on.
type Session struct {
	Config  *Config
	Logger  *slog.Logger
	Metrics *metrics.Metrics
	Slot    storage.Provider
	Service *noteservice.Service

	logFile io.Closer
}

// Open loads the collection described by the configuration. It is used by
// the one-shot CLI commands; Run and RunMCP open their own session.
func Open(opts ...Option) (*Session, error) {
	app, err := newApplication(opts)
	if err != nil {
		return nil, err
	}
	return open(app, nil)
}

func newApplication(opts []Option) (*application, error) {
	app := &application{
		version:   "dev",
		logOutput: os.Stdout,
	}
	for _, opt := range opts {
		opt(app)
	}
	if app.config == nil {
		return nil, fmt.Errorf("config is required")
	}
	return app, nil
}

func newLogger(cfg *Config, out io.Writer) (*slog.Logger, io.Closer) {
	var closer io.Closer
	if lf := cfg.App.LogFile; lf.Path != "" {
		rotated := &lumberjack.Logger{
			Filename:   lf.Path,
			MaxSize:    lf.MaxSizeMB,
			MaxBackups: lf.MaxBackups,
			MaxAge:     lf.MaxAgeDays,
			Compress:   true,
		}
		out = io.MultiWriter(out, rotated)
		closer = rotated
	}
	return slog.New(slog.NewJSONHandler(out, &slog.HandlerOptions{
		Level: cfg.App.LogLevel,
	})), closer
}

func open(app *application, events noteservice.EventFunc) (*Session, error) {
	cfg := app.config
	logger, logFile := newLogger(cfg, app.logOutput)
	slog.SetDefault(logger)

	logger.Info("Configuration loaded",
		slog.String("storage_backend", cfg.Storage.Backend),
		slog.String("storage_path", cfg.Storage.Path),
		slog.String("storage_key", cfg.Storage.Key),
		slog.String("log_level", cfg.App.LogLevel.String()))

	slot, err := storage.Open(cfg.Storage.Backend, cfg.Storage.Path)
	if err != nil {
		if logFile != nil {
			_ = logFile.Close()
		}
		return nil, fmt.Errorf("init storage: %w", err)
	}

	m := metrics.New()
	adapter := persist.New(slot,
		persist.WithKey(cfg.Storage.Key),
		persist.WithErrorHandler(func(err error) {
			logger.Error("storage failure", slog.String("error", err.Error()))
			m.StorageError(err)
		}),
	)

	svc := noteservice.New(adapter,
		noteservice.WithLogger(logger),
		noteservice.WithMetrics(m),
		noteservice.WithEvents(events),
		noteservice.WithAutosaveDelay(cfg.Autosave.Delay),
	)

	return &Session{
		Config:  cfg,
		Logger:  logger,
		Metrics: m,
		Slot:    slot,
		Service: svc,
		logFile: logFile,
	}, nil
}

// Close flushes pending autosaves and releases storage.
func (s *Session) Close() error {
	errs := []error{s.Service.Close(), s.Slot.Close()}
	if s.logFile != nil {
		errs = append(errs, s.logFile.Close())
	}
	return errors.Join(errs...)
}

// newWatcher returns a watcher for the data file, or nil when watching is
// disabled or the backend has no file to watch.
func (s *Session) newWatcher() (*watcher.Watcher, error) {
	if !s.Config.Watch.Enabled {
		return nil, nil
	}
	fsSlot, ok := s.Slot.(*storage.FS)
	if !ok {
		s.Logger.Info("watcher disabled: backend has no data file",
			slog.String("backend", s.Config.Storage.Backend))
		return nil, nil
	}
	return watcher.New(fsSlot, s.Config.Storage.Key, s.Service,
		watcher.WithLogger(s.Logger),
		watcher.WithReloadHook(func() { s.Metrics.Mutation("external_reload") }),
	)
}

// ready reports whether the storage slot can be read.
func (s *Session) ready() error {
	_, err := s.Slot.Get(s.Config.Storage.Key)
	if errors.Is(err, storage.ErrNoKey) {
		return nil
	}
	return err
}

// Run starts the HTTP server with the given options.
func Run(ctx context.Context, opts ...Option) error {
	app, err := newApplication(opts)
	if err != nil {
		return err
	}

	broker := sse.NewBroker(time.Second)
	defer broker.Close()

	sess, err := open(app, broker.PublishNoteEvent)
	if err != nil {
		return err
	}
	broker.SetCounts(func() models.Counts { return sess.Service.Counts(ctx) })
	defer func() {
		if err := sess.Close(); err != nil {
			sess.Logger.Error("close failed", slog.String("error", err.Error()))
		}
	}()

	cfg := app.config
	logger := sess.Logger

	apiRouter := api.NewRouter(sess.Service, cfg.Auth.AuthEnabled(), cfg.Auth.Token, broker)

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
	r.Get("/health/ready", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if err := sess.ready(); err != nil {
			logger.Warn("readiness check failed", slog.String("error", err.Error()))
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte(`{"status":"unavailable"}`))
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	r.Handle("/metrics", sess.Metrics.Handler())

	r.Mount("/api", apiRouter)

	httpServer := &http.Server{
		Addr:              cfg.App.HTTP.Address(),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	fileWatcher, err := sess.newWatcher()
	if err != nil {
		return fmt.Errorf("init watcher: %w", err)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gCtx := errgroup.WithContext(ctx)

	if fileWatcher != nil {
		g.Go(func() error {
			return fileWatcher.Run(gCtx)
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

		shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancelShutdown()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("HTTP server shutdown error", slog.String("error", err.Error()))
		}
		if n := sess.Service.PendingAutosaves(); n > 0 {
			logger.Info("Flushing pending autosaves", slog.Int("count", n))
		}
		sess.Service.FlushAutosaves()

		// Stops the watcher.
		cancel()
		return nil
	})

	if err := g.Wait(); err != nil {
		logger.Error("Application error", slog.String("error", err.Error()))
		return err
	}

	logger.Info("Server stopped successfully")
	return nil
}

// RunMCP serves the MCP tools over stdin/stdout until stdin closes.
func RunMCP(ctx context.Context, opts ...Option) error {
	app, err := newApplication(append([]Option{WithLogOutput(os.Stderr)}, opts...))
	if err != nil {
		return err
	}
	sess, err := open(app, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err := sess.Close(); err != nil {
			sess.Logger.Error("close failed", slog.String("error", err.Error()))
		}
	}()

	fileWatcher, err := sess.newWatcher()
	if err != nil {
		return fmt.Errorf("init watcher: %w", err)
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	if fileWatcher != nil {
		go func() {
			if err := fileWatcher.Run(ctx); err != nil {
				sess.Logger.Error("watcher failed", slog.String("error", err.Error()))
			}
		}()
	}

	sess.Logger.Info("Starting MCP server on stdio", slog.String("version", app.version))
	return mcpserver.New(sess.Service, app.version).ServeStdio()
}
