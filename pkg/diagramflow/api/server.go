// Package api serves the generator and canvas store over HTTP.
//
// Routes:
//
//	POST   /v1/generate          JSON Request, JSON GenerateResponse
//	POST   /v1/generate/stream   JSON Request, server-sent protocol events
//	POST   /v1/generate/image    multipart form: image, hint, session_id, preset
//	POST   /v1/excalidraw        JSON ExcalidrawRequest, Excalidraw scene
//	POST   /v1/canvas            save a canvas
//	GET    /v1/canvas/{id}       load a canvas
//	DELETE /v1/canvas/{id}       delete a canvas
//	GET    /v1/templates         built-in templates
//	GET    /v1/health            liveness and session count
//	GET    /metrics              Prometheus metrics
package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	diagramflow "github.com/randalmurphal/diagramflow/pkg/diagramflow"
	"github.com/randalmurphal/diagramflow/pkg/diagramflow/stream"
)

// DefaultAddr is the listen address used when none is configured.
const DefaultAddr = ":8080"

// DefaultMaxImageBytes caps multipart image uploads.
const DefaultMaxImageBytes = 10 << 20

// Server is the HTTP front end of a Generator.
type Server struct {
	gen      *diagramflow.Generator
	logger   *slog.Logger
	metrics  *Metrics
	registry *prometheus.Registry
	timings  *stream.Timings
	maxImage int64
	addr     string

	handler http.Handler
	server  *http.Server
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithAddr sets the listen address.
func WithAddr(addr string) Option {
	return func(s *Server) {
		if addr != "" {
			s.addr = addr
		}
	}
}

// WithRegistry registers metrics with reg and serves it on /metrics.
func WithRegistry(reg *prometheus.Registry) Option {
	return func(s *Server) {
		if reg != nil {
			s.registry = reg
		}
	}
}

// WithStreamTimings overrides the generator's reveal pacing for streamed
// responses.
func WithStreamTimings(t stream.Timings) Option {
	return func(s *Server) {
		s.timings = &t
	}
}

// WithMaxImageBytes caps image uploads.
func WithMaxImageBytes(n int64) Option {
	return func(s *Server) {
		if n > 0 {
			s.maxImage = n
		}
	}
}

// NewServer creates a server for gen.
func NewServer(gen *diagramflow.Generator, opts ...Option) *Server {
	s := &Server{
		gen:      gen,
		logger:   slog.Default(),
		maxImage: DefaultMaxImageBytes,
		addr:     DefaultAddr,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.registry == nil {
		s.registry = prometheus.NewRegistry()
	}
	s.metrics = NewMetrics(s.registry, gen.Store().Len)

	mux := http.NewServeMux()
	s.route(mux, "POST /v1/generate", s.handleGenerate)
	s.route(mux, "POST /v1/generate/stream", s.handleGenerateStream)
	s.route(mux, "POST /v1/generate/image", s.handleGenerateImage)
	s.route(mux, "POST /v1/excalidraw", s.handleExcalidraw)
	s.route(mux, "POST /v1/canvas", s.handleSaveCanvas)
	s.route(mux, "GET /v1/canvas/{id}", s.handleGetCanvas)
	s.route(mux, "DELETE /v1/canvas/{id}", s.handleDeleteCanvas)
	s.route(mux, "GET /v1/templates", s.handleTemplates)
	s.route(mux, "GET /v1/health", s.handleHealth)
	mux.Handle("GET /metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{}))

	s.handler = s.withLogging(s.withRecovery(mux))
	s.server = &http.Server{
		Addr:              s.addr,
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return s
}

// route registers h under pattern, counting requests per pattern.
func (s *Server) route(mux *http.ServeMux, pattern string, h http.HandlerFunc) {
	mux.Handle(pattern, s.withMetrics(pattern, h))
}

// Handler returns the root handler, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Metrics returns the transport collectors.
func (s *Server) Metrics() *Metrics {
	return s.metrics
}

// Addr returns the listen address.
func (s *Server) Addr() string {
	return s.addr
}

// Start serves until Stop is called.
func (s *Server) Start() error {
	s.logger.Info("server starting", slog.String("addr", s.addr))
	if err := s.server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Stop shuts the server down gracefully.
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("server stopping")
	return s.server.Shutdown(ctx)
}
