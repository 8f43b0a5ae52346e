// Package web serves the enrichment pipeline over HTTP.
package web

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/palantir/palantir-compute-module-wine-enricher/internal/enrich"
	"github.com/palantir/palantir-compute-module-wine-enricher/internal/pipeline"
	"github.com/palantir/palantir-compute-module-wine-enricher/pkg/pipeline/table"
)

// DefaultMaxUploadBytes caps the multipart body of one request.
const DefaultMaxUploadBytes int64 = 10 << 20

// Options configures a Server. Zero values take defaults.
type Options struct {
	DefaultLanguage   string
	PreviewRows       int
	MaxUploadBytes    int64
	MaxConcurrentJobs int
	JobSlotWait       time.Duration
}

// Server is the HTTP front end of the enricher.
type Server struct {
	runner  *pipeline.Runner
	opts    Options
	logger  *zap.Logger
	limiter *SlotLimiter
	router  *chi.Mux

	mu     sync.Mutex
	server *http.Server
}

// NewServer returns a server that runs jobs on runner.
func NewServer(runner *pipeline.Runner, opts Options, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	if strings.TrimSpace(opts.DefaultLanguage) == "" {
		opts.DefaultLanguage = enrich.DefaultLanguage
	}
	if opts.PreviewRows <= 0 {
		opts.PreviewRows = table.DefaultPreviewRows
	}
	if opts.MaxUploadBytes <= 0 {
		opts.MaxUploadBytes = DefaultMaxUploadBytes
	}
	s := &Server{
		runner:  runner,
		opts:    opts,
		logger:  logger.Named("web"),
		limiter: NewSlotLimiter(opts.MaxConcurrentJobs, opts.JobSlotWait),
		router:  chi.NewRouter(),
	}
	s.setupMiddleware()
	s.setupRoutes()
	return s
}

func (s *Server) setupMiddleware() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(requestLogger(s.logger))
	s.router.Use(middleware.Recoverer)
}

func (s *Server) setupRoutes() {
	s.router.Get("/healthz", s.handleHealth)

	s.router.Route("/api", func(r chi.Router) {
		r.Post("/preview", s.handlePreview)
		r.Post("/process", s.handleProcess)
		r.Get("/process/{processID}", s.handleStatus)
		r.Delete("/process/{processID}", s.handleCleanup)
		r.Post("/process/{processID}/cancel", s.handleCancel)
	})
}

// Handler returns the router.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start listens on addr until Shutdown. It returns nil after a clean shutdown.
func (s *Server) Start(addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 15 * time.Second,
		// Runs are synchronous; a large table can take minutes.
		WriteTimeout: 0,
		IdleTimeout:  60 * time.Second,
	}
	s.mu.Lock()
	s.server = srv
	s.mu.Unlock()

	s.logger.Info("listening", zap.String("addr", addr))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops accepting requests and waits for running jobs until ctx is done.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	srv := s.server
	s.mu.Unlock()
	if srv == nil {
		return nil
	}
	err := srv.Shutdown(ctx)
	if drainErr := s.limiter.WaitForDrain(ctx); err == nil {
		err = drainErr
	}
	return err
}
