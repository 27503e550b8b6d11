// Package server exposes the job manager over HTTP.
package server

import (
	"context"
	"errors"
	"image"
	"log/slog"
	"net/http"
	"time"

	"github.com/amishk599/nutrilens/internal/model"
)

// JobService is what the HTTP layer needs from the job manager.
type JobService interface {
	Submit(img image.Image) (string, error)
	Poll(id string) (model.JobView, error)
}

// Options tunes the HTTP layer.
type Options struct {
	MaxUploadBytes   int64
	AllowedMIMETypes []string
	// RateLimit is upload requests per second; 0 disables limiting.
	RateLimit float64
	Burst     int
	// Metrics, when set, is served on /metrics.
	Metrics http.Handler
}

// Server is the HTTP server for the upload and result API.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
}

// New creates a server listening on addr.
func New(addr string, jobs JobService, opts Options, logger *slog.Logger) *Server {
	return &Server{
		httpServer: &http.Server{
			Addr:              addr,
			Handler:           NewHandler(jobs, opts, logger),
			ReadHeaderTimeout: 10 * time.Second,
			ReadTimeout:       60 * time.Second,
			WriteTimeout:      30 * time.Second,
		},
		logger: logger,
	}
}

// NewHandler builds the routed handler without binding a listener.
func NewHandler(jobs JobService, opts Options, logger *slog.Logger) http.Handler {
	h := NewHandlers(jobs, opts.MaxUploadBytes, opts.AllowedMIMETypes, logger)
	limit := RateLimitMiddleware(opts.RateLimit, opts.Burst)

	mux := http.NewServeMux()
	upload := limit(http.HandlerFunc(h.Upload))
	mux.Handle("POST /upload", upload)
	mux.Handle("POST /upload/", upload)
	mux.HandleFunc("GET /result/{job_id}", h.Result)
	mux.HandleFunc("GET /health", h.Health)
	if opts.Metrics != nil {
		mux.Handle("GET /metrics", opts.Metrics)
	}

	return LoggingMiddleware(logger)(mux)
}

// Run starts the HTTP server. It blocks until the context is cancelled.
func (s *Server) Run(ctx context.Context) error {
	serverErr := make(chan error, 1)

	go func() {
		s.logger.Info("http server listening", "addr", s.httpServer.Addr)
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	select {
	case err := <-serverErr:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		return s.Shutdown(shutdownCtx)
	}
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down http server")
	return s.httpServer.Shutdown(ctx)
}
