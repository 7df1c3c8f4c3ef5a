// Package internal provides the main application initialization and runtime logic.
package internal

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path"
	"path/filepath"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/sync/errgroup"

	"github.com/starford/nbsync/internal/api"
	"github.com/starford/nbsync/internal/index"
	"github.com/starford/nbsync/internal/mcpserver"
	"github.com/starford/nbsync/internal/notebook"
	"github.com/starford/nbsync/internal/pageservice"
	"github.com/starford/nbsync/internal/render"
	"github.com/starford/nbsync/internal/sse"
	"github.com/starford/nbsync/internal/storage"
	"github.com/starford/nbsync/internal/synchronizer"
)

// Version is reported by the MCP server.
var Version = "dev"

func newApplication(opts []Option) (*application, error) {
	app := &application{stdout: os.Stdout, logOut: os.Stdout}
	for _, opt := range opts {
		opt(app)
	}
	if app.config == nil {
		return nil, fmt.Errorf("config is required")
	}
	if app.executor == nil {
		app.executor = &notebook.JupyterExecutor{
			Command: app.config.Executor.Command,
			Kernel:  app.config.Executor.Kernel,
			Timeout: app.config.Executor.Timeout(),
		}
	}
	return app, nil
}

// newLogger initializes the structured JSON logger.
func (a *application) newLogger() *slog.Logger {
	logger := slog.New(slog.NewJSONHandler(a.logOut, &slog.HandlerOptions{
		Level: a.config.App.LogLevel,
	}))
	slog.SetDefault(logger)
	return logger
}

// workspace is the storage, index and page service shared by the commands
// that maintain the index.
type workspace struct {
	docs      *storage.FS
	notebooks *storage.Notebooks
	db        *index.DB
	svc       *pageservice.Service
}

func (a *application) openWorkspace(logger *slog.Logger) (*workspace, error) {
	cfg := a.config

	if err := os.MkdirAll(cfg.Docs.Path, 0o755); err != nil {
		return nil, fmt.Errorf("create docs dir: %w", err)
	}
	for _, dir := range cfg.Notebooks.SrcDirs {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create notebook dir: %w", err)
		}
	}
	docs, err := storage.NewFS(cfg.Docs.Path)
	if err != nil {
		return nil, fmt.Errorf("init docs storage: %w", err)
	}
	notebooks, err := storage.NewNotebooks(cfg.Notebooks.SrcDirs...)
	if err != nil {
		return nil, fmt.Errorf("init notebook storage: %w", err)
	}
	db, err := index.Open(cfg.SQLite.Path)
	if err != nil {
		return nil, fmt.Errorf("init index: %w", err)
	}

	return &workspace{
		docs:      docs,
		notebooks: notebooks,
		db:        db,
		svc:       pageservice.NewService(docs, notebooks, a.executor, db, logger),
	}, nil
}

// Run starts the preview server with the given options.
func Run(ctx context.Context, opts ...Option) error {
	app, err := newApplication(opts)
	if err != nil {
		return err
	}
	cfg := app.config
	logger := app.newLogger()

	logger.Info("Configuration loaded",
		slog.String("http_address", cfg.App.HTTP.Address()),
		slog.String("docs_path", cfg.Docs.Path),
		slog.Any("notebook_dirs", cfg.Notebooks.SrcDirs),
		slog.String("sqlite_path", cfg.SQLite.Path),
		slog.String("log_level", cfg.App.LogLevel.String()))

	ws, err := app.openWorkspace(logger)
	if err != nil {
		return err
	}
	defer ws.db.Close()

	// Run initial sync.
	if err := ws.svc.Sync(ctx); err != nil {
		logger.Warn("initial sync failed", slog.String("error", err.Error()))
	}

	broker := sse.NewBroker(cfg.SSE.ListThrottle())
	defer broker.Close()

	apiRouter := api.NewRouter(ws.svc, render.New("/api"+api.FigureRoute),
		cfg.Auth.AuthEnabled(), cfg.Auth.Token, broker, broker.PublishPageEvent)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	// Health check endpoints (unauthenticated).
	r.Get("/health/live", healthOK)
	r.Get("/health/ready", healthOK)

	r.Mount("/api", apiRouter)

	httpServer := &http.Server{
		Addr:              cfg.App.HTTP.Address(),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gCtx := errgroup.WithContext(ctx)

	// Start file watcher with SSE callback.
	g.Go(func() error {
		roots := index.Roots{Docs: ws.docs.Root(), Notebooks: ws.notebooks.Roots()}
		err := index.Watch(gCtx, ws.db, ws.docs, ws.svc, roots, logger, func(kind, path string) {
			switch kind {
			case "failed":
				broker.Publish(sse.Event{Type: "page.failed", Data: map[string]string{"path": path}})
				return
			case "deleted":
				ws.svc.Forget(path)
			}
			broker.PublishPageEvent(kind, path)
		})
		if err != nil {
			return fmt.Errorf("watcher: %w", err)
		}
		return nil
	})

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

// errShutdown cancels the group once the server has been shut down so that
// the watcher stops too.
var errShutdown = errors.New("shutdown")

func healthOK(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}

// Convert converts a single page file. The Markdown goes to outDir next to
// its figures, or to stdout when outDir is empty. Logs go to stderr.
func Convert(ctx context.Context, page, outDir string, opts ...Option) error {
	app, err := newApplication(append([]Option{WithLogOutput(os.Stderr)}, opts...))
	if err != nil {
		return err
	}
	logger := app.newLogger()

	data, err := os.ReadFile(page)
	if err != nil {
		return fmt.Errorf("read page: %w", err)
	}
	notebooks, err := storage.NewNotebooks(app.config.Notebooks.SrcDirs...)
	if err != nil {
		return fmt.Errorf("init notebook storage: %w", err)
	}

	sy := synchronizer.New(notebooks, app.executor, synchronizer.WithLogger(logger))
	md, figures, err := sy.ConvertString(ctx, string(data))
	if err != nil {
		return err
	}

	if outDir == "" {
		if len(figures) > 0 {
			logger.Warn("figures not written without an output directory", slog.Int("figures", len(figures)))
		}
		_, err := fmt.Fprint(app.stdout, md)
		return err
	}

	out, err := openOutput(outDir)
	if err != nil {
		return err
	}
	name := filepath.Base(page)
	if err := out.Write(name, []byte(md)); err != nil {
		return err
	}
	for _, f := range figures {
		if err := out.Write(path.Join(path.Dir(name), f.Src), f.Content); err != nil {
			return err
		}
	}
	logger.Info("Page converted", slog.String("page", page), slog.String("out", outDir), slog.Int("figures", len(figures)))
	return nil
}

func openOutput(dir string) (*storage.FS, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create output dir: %w", err)
	}
	out, err := storage.NewFS(dir)
	if err != nil {
		return nil, fmt.Errorf("init output storage: %w", err)
	}
	return out, nil
}

// Build converts every page of the docs directory into the index and, when
// outDir is set, exports the converted pages there.
func Build(ctx context.Context, outDir string, opts ...Option) error {
	app, err := newApplication(opts)
	if err != nil {
		return err
	}
	logger := app.newLogger()

	ws, err := app.openWorkspace(logger)
	if err != nil {
		return err
	}
	defer ws.db.Close()

	if err := ws.svc.Sync(ctx); err != nil {
		return fmt.Errorf("sync: %w", err)
	}
	if outDir == "" {
		return nil
	}

	out, err := openOutput(outDir)
	if err != nil {
		return err
	}
	n, err := ws.svc.Export(ctx, out)
	if err != nil {
		return fmt.Errorf("export: %w", err)
	}
	logger.Info("Pages exported", slog.Int("pages", n), slog.String("out", outDir))
	return nil
}

// ServeMCP serves the MCP tools on stdin/stdout. Logs go to stderr.
func ServeMCP(ctx context.Context, opts ...Option) error {
	app, err := newApplication(append([]Option{WithLogOutput(os.Stderr)}, opts...))
	if err != nil {
		return err
	}
	logger := app.newLogger()

	ws, err := app.openWorkspace(logger)
	if err != nil {
		return err
	}
	defer ws.db.Close()

	if err := ws.svc.Sync(ctx); err != nil {
		logger.Warn("initial sync failed", slog.String("error", err.Error()))
	}
	return mcpserver.New(ws.svc, Version).ServeStdio()
}
