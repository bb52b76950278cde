// Package api exposes the HTTP interface for the scraper service.
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
	"go.uber.org/zap"

	"github.com/brandsignal/socialcrawler/internal/config"
	"github.com/brandsignal/socialcrawler/internal/insight"
	"github.com/brandsignal/socialcrawler/internal/metrics"
	"github.com/brandsignal/socialcrawler/internal/platform"
	"github.com/brandsignal/socialcrawler/internal/scraper"
	"github.com/brandsignal/socialcrawler/internal/worker"
)

// Scraper runs one scrape of a profile. Satisfied by *worker.Worker.
type Scraper interface {
	ScrapeProfile(ctx context.Context, platformName, profile string, maxPosts int) (scraper.ScrapeResult, error)
}

// Server wires HTTP handlers to the worker, store and insight service.
type Server struct {
	router   chi.Router
	scrapers Scraper
	store    scraper.AggregateStore
	insights *insight.Service
	cfg      config.Config
	logger   *zap.Logger

	mu      sync.Mutex
	running map[string]struct{}
}

// NewServer constructs a Server with middleware and routes.
func NewServer(
	scrapers Scraper,
	store scraper.AggregateStore,
	insights *insight.Service,
	cfg config.Config,
	logger *zap.Logger,
) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		scrapers: scrapers,
		store:    store,
		insights: insights,
		cfg:      cfg,
		logger:   logger,
		running:  make(map[string]struct{}),
	}

	metrics.Init()

	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoverMiddleware)
	r.Use(metrics.Middleware)
	r.Use(timeoutMiddleware(cfg.RequestTimeout()))
	if cfg.Auth.Enabled {
		r.Use(apiKeyMiddleware(cfg.Auth.APIKey))
	}

	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.readyz)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Get("/platforms", s.listPlatforms)
		r.Post("/insights", s.summarizeInsights)
		r.Route("/{platform}", func(r chi.Router) {
			r.Post("/scrape", s.scrapeProfile)
			r.Get("/{profile}/posts", s.getProfilePosts)
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
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) readyz(w http.ResponseWriter, r *http.Request) {
	if err := s.store.Ping(r.Context()); err != nil {
		writeError(w, http.StatusServiceUnavailable, "store unavailable")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func (s *Server) listPlatforms(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"platforms": platform.Names()})
}

type scrapeRequest struct {
	Profile  string `json:"profile"`
	MaxPosts int    `json:"max_posts"`
}

func (s *Server) scrapeProfile(w http.ResponseWriter, r *http.Request) {
	platformName := chi.URLParam(r, "platform")

	var req scrapeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Profile == "" {
		writeError(w, http.StatusBadRequest, "missing profile")
		return
	}

	key := platformName + "/" + req.Profile
	if !s.tryAcquire(key) {
		writeError(w, http.StatusConflict, "scrape already in progress for this profile")
		return
	}
	defer s.release(key)

	result, err := s.scrapers.ScrapeProfile(r.Context(), platformName, req.Profile, req.MaxPosts)
	if err != nil {
		if errors.Is(err, worker.ErrUnknownPlatform) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, scrapeStatus(result), result)
}

// scrapeStatus maps a run outcome to an HTTP status so callers can
// branch without inspecting the body.
func scrapeStatus(result scraper.ScrapeResult) int {
	if result.Success {
		return http.StatusOK
	}
	switch result.Reason {
	case scraper.ReasonStoreUnavailable:
		return http.StatusServiceUnavailable
	case scraper.ReasonRenderFailed:
		return http.StatusBadGateway
	default:
		return http.StatusUnprocessableEntity
	}
}

func (s *Server) getProfilePosts(w http.ResponseWriter, r *http.Request) {
	platformName := chi.URLParam(r, "platform")
	profile := chi.URLParam(r, "profile")

	if _, ok := platform.Lookup(platformName); !ok {
		writeError(w, http.StatusBadRequest, "unknown platform")
		return
	}

	agg, err := s.store.GetAggregate(r.Context(), platformName, profile)
	if err != nil {
		if errors.Is(err, scraper.ErrAggregateNotFound) {
			writeError(w, http.StatusNotFound, "profile not scraped yet")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to load aggregate")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"platform": platformName, "aggregate": agg})
}

type insightsRequest struct {
	Platform string `json:"platform"`
	Profile  string `json:"profile"`
}

type insightsResponse struct {
	Platform string               `json:"platform"`
	Profile  string               `json:"profile"`
	Summary  insight.Summary      `json:"summary"`
	Stats    insight.CommentStats `json:"stats"`
}

func (s *Server) summarizeInsights(w http.ResponseWriter, r *http.Request) {
	var req insightsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Platform == "" || req.Profile == "" {
		writeError(w, http.StatusBadRequest, "missing platform or profile")
		return
	}
	if _, ok := platform.Lookup(req.Platform); !ok {
		writeError(w, http.StatusBadRequest, "unknown platform")
		return
	}

	agg, err := s.store.GetAggregate(r.Context(), req.Platform, req.Profile)
	if err != nil {
		if errors.Is(err, scraper.ErrAggregateNotFound) {
			writeError(w, http.StatusNotFound, "profile not scraped yet")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to load aggregate")
		return
	}

	resp := insightsResponse{
		Platform: req.Platform,
		Profile:  req.Profile,
		Summary:  s.insights.Summarize(r.Context(), insight.CommentTexts(agg.Posts)),
		Stats:    insight.BuildStats(agg.Posts),
	}
	writeJSON(w, http.StatusOK, resp)
}

// tryAcquire claims the per-profile run slot. Concurrent scrapes of
// the same profile would race on the aggregate document.
func (s *Server) tryAcquire(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, busy := s.running[key]; busy {
		return false
	}
	s.running[key] = struct{}{}
	return true
}

func (s *Server) release(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.running, key)
}

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
		ww := &responseWriter{ResponseWriter: w, status: http.StatusOK}
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
				writeError(w, http.StatusInternalServerError, "internal server error")
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

func apiKeyMiddleware(expected string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := r.Header.Get("X-API-Key")
			if key == "" {
				key = r.URL.Query().Get("api_key")
			}
			if key != expected {
				writeError(w, http.StatusForbidden, "unauthorized")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

type requestIDKey struct{}

type responseWriter struct {
	http.ResponseWriter
	status int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
