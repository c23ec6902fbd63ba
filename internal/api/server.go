// Package api exposes the HTTP status surface for the scrape service:
// health probes, Prometheus metrics, the latest run summary, and
// read-only record lookups.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/shelfscan/shelfscan/internal/pipeline"
)

// StatsHolder retains the most recent run statistics for the status
// endpoint. Safe for concurrent use.
type StatsHolder struct {
	mu    sync.RWMutex
	stats pipeline.RunStats
	set   bool
}

// Set replaces the held statistics.
func (h *StatsHolder) Set(stats pipeline.RunStats) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.stats = stats
	h.set = true
}

// Latest returns the held statistics and whether any run has finished.
func (h *StatsHolder) Latest() (pipeline.RunStats, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.stats, h.set
}

// Server wires HTTP handlers to the store and run statistics.
type Server struct {
	router chi.Router
	store  pipeline.Store
	stats  *StatsHolder
	logger *zap.Logger
}

// NewServer constructs a Server with middleware and routes. The
// registry backs the /metrics endpoint.
func NewServer(store pipeline.Store, stats *StatsHolder, registry *prometheus.Registry, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		store:  store,
		stats:  stats,
		logger: logger,
	}

	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoverMiddleware)
	r.Use(timeoutMiddleware(30 * time.Second))

	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.readyz)
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))

	r.Route("/v1", func(r chi.Router) {
		r.Get("/runs/latest", s.latestRun)
		r.Route("/records", func(r chi.Router) {
			r.Get("/", s.listRecords)
			r.Get("/{key}", s.getRecord)
		})
	})

	s.router = r
	return s
}

// Handler returns the router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) readyz(w http.ResponseWriter, r *http.Request) {
	// Readiness means the store answers; a tiny list probe covers both
	// the memory and Postgres backends.
	probe := func(pipeline.Record) error { return errProbeDone }
	err := s.store.List(r.Context(), probe)
	if err != nil && !errors.Is(err, errProbeDone) {
		s.writeError(w, http.StatusServiceUnavailable, "store not reachable")
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

var errProbeDone = errors.New("probe done")

func (s *Server) latestRun(w http.ResponseWriter, _ *http.Request) {
	stats, ok := s.stats.Latest()
	if !ok {
		s.writeError(w, http.StatusNotFound, "no completed runs yet")
		return
	}
	s.writeJSON(w, http.StatusOK, stats)
}

func (s *Server) listRecords(w http.ResponseWriter, r *http.Request) {
	records := make([]pipeline.Record, 0, 64)
	err := s.store.List(r.Context(), func(rec pipeline.Record) error {
		records = append(records, rec)
		return nil
	})
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "failed to list records")
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"records": records, "count": len(records)})
}

func (s *Server) getRecord(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")
	rec, found, err := s.store.Get(r.Context(), key)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "failed to fetch record")
		return
	}
	if !found {
		s.writeError(w, http.StatusNotFound, "record not found")
		return
	}
	s.writeJSON(w, http.StatusOK, rec)
}

type requestIDKey struct{}

func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := uuid.NewString()
		ctx := context.WithValue(r.Context(), requestIDKey{}, reqID)
		w.Header().Set("X-Request-ID", reqID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(ww, r)
		s.logger.Info("request completed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.status),
			zap.Int64("duration_ms", time.Since(start).Milliseconds()),
		)
	})
}

func (s *Server) recoverMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				s.logger.Error("panic recovered", zap.Any("panic", rec))
				s.writeError(w, http.StatusInternalServerError, "internal server error")
			}
		}()
		next.ServeHTTP(w, r)
	})
}

func timeoutMiddleware(d time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.TimeoutHandler(next, d, "request timed out")
	}
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (sw *statusWriter) WriteHeader(code int) {
	sw.status = code
	sw.ResponseWriter.WriteHeader(code)
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Error("write JSON response failed", zap.Error(err))
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, map[string]string{"error": msg})
}
