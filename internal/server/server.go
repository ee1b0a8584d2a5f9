// Package server exposes resolution, job handoff and streaming over HTTP.
package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"

	"getbox/internal/download"
	"getbox/internal/handoff"
	"getbox/internal/httputil"
	"getbox/internal/media"
	"getbox/internal/proxy"
	"getbox/internal/ratelimit"
	"getbox/internal/ssrf"
)

// ShutdownTimeout bounds how long in-flight requests may drain on shutdown.
const ShutdownTimeout = 30 * time.Second

// Resolver turns a page URL into downloadable items.
type Resolver interface {
	Resolve(ctx context.Context, rawURL string) (*media.Result, error)
}

// Checker decides whether a URL may be fetched.
type Checker interface {
	Allowed(ctx context.Context, rawURL string) bool
}

// Server wires the HTTP API to its collaborators.
type Server struct {
	resolver Resolver
	guard    Checker
	store    handoff.Store
	proxy    *proxy.Proxy
	pipeline *download.Pipeline
	limiter  *ratelimit.Limiter
	metrics  *Metrics
	log      *logrus.Entry
	handler  http.Handler
}

// ServerOption customizes a Server.
type ServerOption func(*Server)

func WithGuard(g Checker) ServerOption { return func(s *Server) { s.guard = g } }

func WithStore(st handoff.Store) ServerOption { return func(s *Server) { s.store = st } }

func WithProxy(p *proxy.Proxy) ServerOption { return func(s *Server) { s.proxy = p } }

func WithPipeline(p *download.Pipeline) ServerOption { return func(s *Server) { s.pipeline = p } }

func WithLimiter(l *ratelimit.Limiter) ServerOption { return func(s *Server) { s.limiter = l } }

func WithMetrics(m *Metrics) ServerOption { return func(s *Server) { s.metrics = m } }

func WithLogger(log *logrus.Entry) ServerOption { return func(s *Server) { s.log = log } }

// NewServer builds a Server. Collaborators not supplied get defaults: the
// SSRF guard, an in-memory store, a 60 rpm limiter and ffmpeg from PATH.
func NewServer(resolver Resolver, opts ...ServerOption) *Server {
	s := &Server{resolver: resolver}
	for _, opt := range opts {
		opt(s)
	}
	if s.log == nil {
		s.log = logrus.NewEntry(logrus.StandardLogger())
	}
	if s.guard == nil {
		s.guard = ssrf.New(nil, s.log)
	}
	if s.store == nil {
		s.store = handoff.NewMemory(handoff.DefaultPolicy())
	}
	if s.limiter == nil {
		s.limiter = ratelimit.New(60)
	}
	if s.proxy == nil {
		var control httputil.DialControl
		if g, ok := s.guard.(*ssrf.Guard); ok {
			control = g.Control
		}
		s.proxy = proxy.New(httputil.NewStreamingClient(control), s.guard, s.log)
	}
	if s.pipeline == nil {
		s.pipeline = download.New("ffmpeg", s.log)
	}
	if s.metrics == nil {
		s.metrics = NewMetrics()
	}
	s.metrics.watch(s.pipeline, s.proxy)

	mux := http.NewServeMux()
	mux.Handle("POST /api/download", s.limited(s.handleDownload))
	mux.Handle("POST /api/prepare", s.limited(s.handlePrepare))
	mux.Handle("GET /api/file", s.limited(s.handleFile))
	mux.Handle("GET /api/mux", s.limited(s.handleMux))
	mux.Handle("GET /api/transcode", s.limited(s.handleTranscode))
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.Handle("GET /metrics", s.metrics.Handler())

	s.handler = loggingMiddleware(s.log, s.metrics, mux)
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

// ListenAndServe serves on addr until ctx is cancelled, then drains
// in-flight requests for up to ShutdownTimeout.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()
	s.log.WithField("addr", addr).Info("listening")

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	s.log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		srv.Close()
		return err
	}
	return nil
}
