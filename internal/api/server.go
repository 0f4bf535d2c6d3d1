package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"

	"github.com/JakeFAU/crawlrunner/internal/crawler"
	"github.com/JakeFAU/crawlrunner/internal/metrics"
	"github.com/JakeFAU/crawlrunner/internal/pipeline"
	"github.com/JakeFAU/crawlrunner/internal/policy/ratelimit"
)

const maxRequestBytes = 1 << 20

// Executor runs one crawl.
type Executor interface {
	Execute(ctx context.Context, params crawler.CrawlParameters) (*pipeline.Execution, error)
}

// Prober checks that the crawl engine can be loaded.
type Prober interface {
	Probe(ctx context.Context) pipeline.Health
}

// ReadinessChecker reports whether the service can accept crawls.
type ReadinessChecker interface {
	Ensure() error
}

// Options configures the HTTP surface.
type Options struct {
	Defaults       crawler.Defaults
	APIKey         string // empty disables authentication
	CORSOrigins    []string
	RequestTimeout time.Duration
	Limiter        *ratelimit.Limiter
}

// Server wires HTTP handlers to the crawl pipeline.
type Server struct {
	router   chi.Router
	handler  http.Handler
	opts     Options
	executor Executor
	prober   Prober
	ready    ReadinessChecker
	logger   *zap.Logger
}

// NewServer constructs a Server with middleware and routes.
func NewServer(opts Options, executor Executor, prober Prober, ready ReadinessChecker, logger *zap.Logger) *Server {
	metrics.Init()
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		opts:     opts,
		executor: executor,
		prober:   prober,
		ready:    ready,
		logger:   logger.Named("api"),
	}

	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(loggingMiddleware(s.logger))
	r.Use(recoverMiddleware(s.logger))
	r.Use(metrics.Middleware)
	r.Use(corsMiddleware(opts.CORSOrigins))

	r.Get("/health", s.health)
	r.Get("/readyz", s.readyz)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Group(func(r chi.Router) {
		if opts.APIKey != "" {
			r.Use(apiKeyMiddleware(opts.APIKey))
		}
		if opts.Limiter != nil && opts.Limiter.Enabled() {
			r.Use(rateLimitMiddleware(opts.Limiter))
		}
		if opts.RequestTimeout > 0 {
			r.Use(timeoutMiddleware(opts.RequestTimeout))
		}
		r.Post("/api/crawl", s.crawl)
	})

	s.router = r
	s.handler = otelhttp.NewHandler(r, "crawlrunner.http")
	return s
}

// Handler returns the traced router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.handler
}

func (s *Server) crawl(w http.ResponseWriter, r *http.Request) {
	var req crawler.CrawlRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBytes))
	if err := dec.Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	params, err := s.opts.Defaults.Resolve(req)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	exec, err := s.executor.Execute(r.Context(), params)
	if err != nil {
		status := statusForError(err)
		if status >= http.StatusInternalServerError {
			s.logger.Error("crawl failed", zap.String("url", params.URL), zap.Int("status", status), zap.Error(err))
		}
		writeError(w, status, err.Error())
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("X-Run-ID", exec.RunID)
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(exec.Result.Raw); err != nil {
		s.logger.Warn("write crawl result failed", zap.String("run_id", exec.RunID), zap.Error(err))
	}
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	h := s.prober.Probe(r.Context())
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	status := http.StatusOK
	if !h.Healthy {
		status = http.StatusServiceUnavailable
	}
	w.WriteHeader(status)
	if _, err := io.WriteString(w, h.Detail); err != nil {
		s.logger.Warn("write health response failed", zap.Error(err))
	}
}

func (s *Server) readyz(w http.ResponseWriter, _ *http.Request) {
	if s.ready != nil {
		if err := s.ready.Ensure(); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "not ready", "error": err.Error()})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

// statusForError maps pipeline failures onto HTTP codes.
func statusForError(err error) int {
	var (
		timeoutErr *crawler.TimeoutError
		spawnErr   *crawler.SpawnError
		cfgErr     *crawler.ConfigurationError
	)
	switch {
	case errors.As(err, &timeoutErr):
		return http.StatusGatewayTimeout
	case errors.As(err, &spawnErr), errors.As(err, &cfgErr):
		return http.StatusInternalServerError
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return http.StatusRequestTimeout
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		zap.L().Error("write JSON failed", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, crawler.ErrorResponse{Success: false, Error: msg})
}
