package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/pavel-fokin/token-stash/internal/cache"
	"github.com/pavel-fokin/token-stash/internal/config"
	"github.com/pavel-fokin/token-stash/internal/files"
	"github.com/pavel-fokin/token-stash/internal/fs"
	"github.com/pavel-fokin/token-stash/internal/memory"
	"github.com/pavel-fokin/token-stash/internal/sqlite"
)

// Server is the token-stash HTTP server together with the resources it owns.
type Server struct {
	cfg        *config.Config
	logger     *slog.Logger
	httpServer *http.Server
	pool       *files.Pool
	closers    []io.Closer
}

// New wires storage, the file service and the HTTP handler from cfg.
func New(cfg *config.Config, logger *slog.Logger) (*Server, error) {
	maxSize, err := cfg.MaxSizeBytes()
	if err != nil {
		return nil, err
	}

	repo, closers, err := openRepository(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize repository: %w", err)
	}

	pool := files.NewPool(cfg.Workers)
	fileService := files.NewService(repo, pool, cfg.UploadTimeout.Duration)

	srv := &Server{
		cfg:     cfg,
		logger:  logger,
		pool:    pool,
		closers: closers,
	}
	srv.httpServer = &http.Server{
		Addr:         cfg.Addr,
		Handler:      NewHandler(fileService, logger, maxSize),
		ReadTimeout:  cfg.ReadTimeout.Duration,
		WriteTimeout: cfg.WriteTimeout.Duration,
		IdleTimeout:  cfg.IdleTimeout.Duration,
	}

	return srv, nil
}

// NewHandler builds the router for the file API.
func NewHandler(fileService *files.Service, logger *slog.Logger, maxSize int64) http.Handler {
	r := chi.NewRouter()
	r.Use(
		loggingMiddleware(logger),
		metricsMiddleware,
		recoverMiddleware(logger),
		limitBody(maxSize),
	)

	r.Get("/healthz", healthz)
	r.Handle("/metrics", promhttp.Handler())

	r.Post("/files", uploadFile(fileService, logger, maxSize))
	r.Post("/files/metas", filesMetaData(fileService, logger))
	r.Get("/files/all", listFiles(fileService, logger))
	r.Delete("/files/deleteAll", deleteAllFiles(fileService, logger))
	r.Get("/files/{token}", getFile(fileService, logger))
	r.Delete("/files/{token}", deleteFile(fileService, logger))

	return r
}

// Handler returns the root HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)

	go func() {
		s.logger.Info("starting server", "addr", s.httpServer.Addr, "backend", s.cfg.Backend)
		err := s.httpServer.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("shutting down server")
	case err := <-errCh:
		if err != nil {
			s.Close()
			return fmt.Errorf("http server: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout.Duration)
	defer cancel()

	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		s.Close()
		return fmt.Errorf("graceful shutdown: %w", err)
	}

	return s.Close()
}

// Close waits for in-flight uploads and releases storage.
func (s *Server) Close() error {
	s.pool.Close()

	var errs []error
	for _, c := range s.closers {
		if err := c.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	s.closers = nil
	return errors.Join(errs...)
}

func openRepository(cfg *config.Config) (files.Repository, []io.Closer, error) {
	var (
		repo    files.Repository
		closers []io.Closer
	)

	switch cfg.Backend {
	case config.BackendMemory:
		repo = memory.NewRepository()
	case config.BackendSQLite:
		db, err := sqlite.NewRepository(cfg.DBPath)
		if err != nil {
			return nil, nil, err
		}
		repo = db
		closers = append(closers, db)
	case config.BackendFS:
		storage, err := fs.NewStorage(cfg.DataDir)
		if err != nil {
			return nil, nil, err
		}
		repo = storage
	default:
		return nil, nil, fmt.Errorf("unknown backend %q", cfg.Backend)
	}

	if cfg.CacheSize > 0 {
		repo = cache.NewRepository(repo, cfg.CacheSize, cfg.CacheTTL.Duration)
	}

	return repo, closers, nil
}
