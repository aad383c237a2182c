// Package api serves the gallery catalog and its assets over HTTP.
package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/fclairamb/gallerystore/internal/gallery"
	"github.com/fclairamb/gallerystore/internal/metrics"
	"github.com/fclairamb/gallerystore/internal/version"
)

const (
	// HTTP server timeouts.
	readHeaderTimeout = 10 * time.Second // Timeout for reading request headers
	shutdownTimeout   = 30 * time.Second // Timeout for graceful shutdown
)

// ServerConfig holds configuration for the HTTP server.
type ServerConfig struct {
	Port      int     // HTTP port to listen on (GLS_PORT)
	RateLimit float64 // Mutating requests per second and client (GLS_RATE_LIMIT), 0 disables
	RateBurst int     // Rate limiter burst (GLS_RATE_BURST)
}

// Server represents the gallery HTTP server.
type Server struct {
	handler    *Handler
	httpServer *http.Server
	config     ServerConfig
	logger     *slog.Logger
	worker     *gallery.Worker
	workerDone chan struct{}
	cancelFunc context.CancelFunc
}

// NewServer creates a new server.
// If worker is not nil, it will be started alongside the HTTP server.
func NewServer(
	cfg ServerConfig,
	handler *Handler,
	m *metrics.Metrics,
	logger *slog.Logger,
	worker *gallery.Worker,
) *Server {
	return &Server{
		handler: handler,
		config:  cfg,
		logger:  logger,
		worker:  worker,
		httpServer: &http.Server{
			Addr:              fmt.Sprintf(":%d", cfg.Port),
			Handler:           newRouter(cfg, handler, m, logger),
			ReadHeaderTimeout: readHeaderTimeout,
		},
	}
}

// newRouter registers every route and wraps them with the middleware chain.
func newRouter(cfg ServerConfig, handler *Handler, m *metrics.Metrics, logger *slog.Logger) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", handler.HandleHealth)
	mux.HandleFunc("GET /api/version", handler.HandleVersion)

	mux.HandleFunc("GET /api/data", handler.HandleGetData)
	mux.HandleFunc("POST /api/data", handler.HandlePostData)
	mux.HandleFunc("POST /api/delete-file", handler.HandleDeleteFile)
	mux.HandleFunc("POST /api/delete-gallery", handler.HandleDeleteGallery)
	mux.HandleFunc("GET /api/storage-stats", handler.HandleStorageStats)

	mux.HandleFunc("DELETE /api/galleries/{id}", handler.HandleRemoveGallery)
	mux.HandleFunc("GET /api/galleries/files", handler.HandleListFiles)
	mux.HandleFunc("POST /api/upload", handler.HandleUpload)
	mux.HandleFunc("GET /api/history", handler.HandleHistory)
	mux.Handle("GET /uploads/", http.StripPrefix("/uploads/", assetFileServer(handler.manager.Root())))

	if m != nil {
		mux.Handle("GET /metrics", m.Handler())
	}

	var next http.Handler = AuthMiddleware(mux)
	if cfg.RateLimit > 0 {
		next = newRateLimiter(cfg.RateLimit, cfg.RateBurst).middleware(next, logger)
	}
	next = loggingMiddleware(next, logger, m)
	return requestIDMiddleware(next)
}

// assetFileServer serves uploaded files without directory listings or temp files.
func assetFileServer(root string) http.Handler {
	files := http.FileServer(http.Dir(root))
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		name := req.URL.Path
		if name == "" || strings.HasSuffix(name, "/") || strings.Contains(name, "/.") || strings.HasPrefix(name, ".") {
			http.NotFound(w, req)
			return
		}
		files.ServeHTTP(w, req)
	})
}

// Start starts the HTTP server. This method blocks until the server is stopped.
func (s *Server) Start(ctx context.Context) error {
	s.logger.InfoContext(ctx, "starting gallery server",
		"port", s.config.Port,
		"rate_limit", s.config.RateLimit,
		"rate_burst", s.config.RateBurst,
		"reconcile_worker", s.worker != nil,
		"version", version.Version,
		"commit", version.Commit,
		"build_time", version.GitTime)

	// Create a cancellable context for the worker
	workerCtx, cancel := context.WithCancel(ctx)
	s.cancelFunc = cancel

	if s.worker != nil {
		s.workerDone = make(chan struct{})
		go func() {
			defer close(s.workerDone)
			s.worker.Start(workerCtx)
		}()

		// Initial pass over whatever is already on disk
		s.worker.Notify()
	}

	// Start server in a goroutine so we can handle context cancellation
	errCh := make(chan error, 1)
	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		s.logger.InfoContext(ctx, "shutting down gallery server")
		// Detached from ctx so that shutdown is not canceled right away
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()
		return s.Shutdown(shutdownCtx)
	case err := <-errCh:
		cancel()
		return err
	}
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.cancelFunc != nil {
		s.cancelFunc()
	}

	if s.workerDone != nil {
		s.logger.InfoContext(ctx, "waiting for reconcile worker to finish")
		<-s.workerDone
	}

	return s.httpServer.Shutdown(ctx)
}

// Addr returns the server's address. Useful for testing.
func (s *Server) Addr() string {
	return s.httpServer.Addr
}

// Handler returns the routed HTTP handler. Useful for testing.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}
