// Package api serves archived screening results over HTTP: run listings,
// candidate and refined tables, report artifacts, and operational probes.
package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/Veyza/toy-collision-avoidance/internal/archive"
	"github.com/Veyza/toy-collision-avoidance/internal/auth"
	"github.com/Veyza/toy-collision-avoidance/internal/health"
	"github.com/Veyza/toy-collision-avoidance/internal/httputil"
	"github.com/Veyza/toy-collision-avoidance/internal/metrics"
)

// Config holds the server's wiring.
type Config struct {
	Addr         string
	ArtifactsDir string // served under /artifacts/ when non-empty
	Auth         auth.Config
	RateLimit    httputil.RateLimitConfig
}

// Server holds the HTTP server and its dependencies.
type Server struct {
	httpServer *http.Server
	store      *archive.DB
	logger     *slog.Logger
}

// NewServer creates a configured HTTP server over the run archive.
func NewServer(cfg Config, store *archive.DB, logger *slog.Logger) *Server {
	s := &Server{store: store, logger: logger}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", health.Healthz)
	mux.HandleFunc("GET /readyz", health.Readyz(s.ready))
	mux.Handle("GET /metrics", metrics.Handler())
	mux.HandleFunc("GET /api/v1/runs", s.handleListRuns)
	mux.HandleFunc("GET /api/v1/runs/{id}/candidates", s.handleRunCandidates)
	mux.HandleFunc("GET /api/v1/runs/{id}/refined", s.handleRunRefined)
	if cfg.ArtifactsDir != "" {
		mux.Handle("GET /artifacts/",
			http.StripPrefix("/artifacts/", http.FileServer(http.Dir(cfg.ArtifactsDir))))
	}

	// Middleware chain: metrics -> logging -> rate limit -> auth -> mux.
	var handler http.Handler = mux
	handler = auth.Middleware(cfg.Auth)(handler)
	handler = httputil.NewRateLimiter(cfg.RateLimit).Middleware(handler)
	handler = loggingMiddleware(logger)(handler)
	handler = metrics.Middleware(handler)

	s.httpServer = &http.Server{
		Addr:              cfg.Addr,
		Handler:           handler,
		ReadTimeout:       10 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	return s
}

// HTTPServer returns the underlying *http.Server for external control
// (e.g. shutdown).
func (s *Server) HTTPServer() *http.Server {
	return s.httpServer
}

// ListenAndServe starts the HTTP server.
func (s *Server) ListenAndServe() error {
	return s.httpServer.ListenAndServe()
}

// Handler returns the full middleware-wrapped handler, used by tests.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// ready reports whether the archive is reachable.
func (s *Server) ready() error {
	if s.store == nil {
		return errors.New("archive not configured")
	}
	return s.store.Ping()
}

func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		writeJSONError(w, http.StatusServiceUnavailable, "archive not configured")
		return
	}

	limit := 50
	if q := r.URL.Query().Get("limit"); q != "" {
		if v, err := strconv.Atoi(q); err == nil && v > 0 && v <= 1000 {
			limit = v
		}
	}

	runs, err := s.store.ListRuns(limit)
	if err != nil {
		s.logger.Error("listing runs", "error", err)
		writeJSONError(w, http.StatusInternalServerError, "archive query failed")
		return
	}
	writeJSON(w, map[string]any{"runs": runs})
}

func (s *Server) handleRunCandidates(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		writeJSONError(w, http.StatusServiceUnavailable, "archive not configured")
		return
	}

	id := r.PathValue("id")
	cands, err := s.store.Candidates(id)
	if err != nil {
		s.logger.Error("loading candidates", "run_id", id, "error", err)
		writeJSONError(w, http.StatusInternalServerError, "archive query failed")
		return
	}
	writeJSON(w, map[string]any{"run_id": id, "candidates": cands})
}

func (s *Server) handleRunRefined(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		writeJSONError(w, http.StatusServiceUnavailable, "archive not configured")
		return
	}

	id := r.PathValue("id")
	refined, err := s.store.Refined(id)
	if err != nil {
		s.logger.Error("loading refined rows", "run_id", id, "error", err)
		writeJSONError(w, http.StatusInternalServerError, "archive query failed")
		return
	}
	writeJSON(w, map[string]any{"run_id": id, "refined": refined})
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

func writeJSONError(w http.ResponseWriter, code int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

// probePath returns true for health/readiness probe paths that should not
// log at INFO.
func probePath(path string) bool {
	return path == "/healthz" || path == "/readyz"
}

type statusRecorder struct {
	http.ResponseWriter
	statusCode int
}

func (sr *statusRecorder) WriteHeader(code int) {
	sr.statusCode = code
	sr.ResponseWriter.WriteHeader(code)
}

func loggingMiddleware(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			sr := &statusRecorder{ResponseWriter: w, statusCode: http.StatusOK}

			next.ServeHTTP(sr, r)

			duration := time.Since(start)
			level := slog.LevelInfo
			if probePath(r.URL.Path) {
				level = slog.LevelDebug
			}

			logger.Log(r.Context(), level, "request",
				"component", "api",
				"method", r.Method,
				"path", r.URL.Path,
				"status", sr.statusCode,
				"duration_ms", duration.Milliseconds(),
				"remote_ip", r.RemoteAddr,
			)
		})
	}
}
