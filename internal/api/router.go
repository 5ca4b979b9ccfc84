// Package api exposes the REST surface: domain onboarding, pipeline control,
// and the cached dashboard and competitor artifacts.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/sells-group/visibility-cli/internal/cache"
	"github.com/sells-group/visibility-cli/internal/model"
	"github.com/sells-group/visibility-cli/internal/pipeline"
	"github.com/sells-group/visibility-cli/internal/store"
)

// Pipeline is the onboarding control surface. *pipeline.Machine satisfies it.
type Pipeline interface {
	Resume(ctx context.Context, domainID, versionID string) (*model.OnboardingProgress, error)
	Advance(ctx context.Context, domainID, versionID string, payload model.StepData) (*model.OnboardingProgress, error)
	Rewind(ctx context.Context, domainID, versionID string) (*model.OnboardingProgress, error)
}

// Artifacts is the cached-analysis surface. *cache.Manager satisfies it.
type Artifacts interface {
	GetOrCompute(ctx context.Context, domainID string) (*model.DashboardAnalysis, error)
	GetForVersion(ctx context.Context, domainID, versionID string) (*model.DashboardAnalysis, error)
	FirstTimeAnalysis(ctx context.Context, domainID, versionID string) error
	MarkStale(ctx context.Context, domainID string) error
	GetCompetitors(ctx context.Context, domainID string) (*model.CompetitorAnalysis, error)
	RecomputeCompetitors(ctx context.Context, domainID string, competitors []string) (*model.CompetitorAnalysis, error)
	SuggestedCompetitors(ctx context.Context, domainID string, refresh bool) ([]model.SuggestedCompetitor, error)
}

// Router serves the REST API.
type Router struct {
	store     store.Store
	pipeline  Pipeline
	artifacts Artifacts
}

// NewRouter builds the HTTP handler.
func NewRouter(st store.Store, pl Pipeline, art Artifacts, allowedOrigins []string) http.Handler {
	rt := &Router{store: st, pipeline: pl, artifacts: art}

	mux := chi.NewRouter()
	mux.Use(middleware.Recoverer)
	if len(allowedOrigins) > 0 {
		mux.Use(cors.Handler(cors.Options{
			AllowedOrigins: allowedOrigins,
			AllowedMethods: []string{"GET", "POST", "PUT", "OPTIONS"},
			AllowedHeaders: []string{"Accept", "Content-Type"},
		}))
	}

	mux.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	mux.Route("/api/domains", func(r chi.Router) {
		r.Post("/", rt.wrap(rt.handleCreateDomain))
		r.Route("/{domainID}", func(r chi.Router) {
			r.Get("/", rt.wrap(rt.handleGetDomain))
			r.Post("/versions", rt.wrap(rt.handleCreateVersion))
			r.Get("/progress", rt.wrap(rt.handleGetProgress))
			r.Post("/versions/{versionID}/advance", rt.wrap(rt.handleAdvance))
			r.Post("/versions/{versionID}/rewind", rt.wrap(rt.handleRewind))
		})
	})

	mux.Route("/api/dashboard/{domainID}", func(r chi.Router) {
		r.Get("/", rt.wrap(rt.handleGetDashboard))
		r.Get("/competitors", rt.wrap(rt.handleGetCompetitors))
		r.Post("/competitors", rt.wrap(rt.handlePostCompetitors))
		r.Get("/suggested-competitors", rt.wrap(rt.handleSuggestedCompetitors))
		r.Post("/first-time-analysis", rt.wrap(rt.handleFirstTimeAnalysis))
	})

	return mux
}

type handlerFunc func(http.ResponseWriter, *http.Request) error

// httpError carries an explicit status for the error envelope.
type httpError struct {
	status int
	msg    string
}

func (e *httpError) Error() string { return e.msg }

func badRequest(msg string) error {
	return &httpError{status: http.StatusBadRequest, msg: msg}
}

func (rt *Router) wrap(h handlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		err := h(w, r)
		if err == nil {
			return
		}

		var he *httpError
		switch {
		case errors.As(err, &he):
			writeError(w, he.status, he.msg)
		case errors.Is(err, cache.ErrCacheMiss),
			errors.Is(err, cache.ErrNotFound),
			errors.Is(err, pipeline.ErrNotFound):
			writeError(w, http.StatusNotFound, err.Error())
		case errors.Is(err, pipeline.ErrInvalidTransition):
			writeError(w, http.StatusUnprocessableEntity, err.Error())
		case errors.Is(err, store.ErrConflict),
			errors.Is(err, cache.ErrConcurrencyConflict):
			writeError(w, http.StatusConflict, err.Error())
		default:
			zap.L().Error("api: request failed",
				zap.String("path", r.URL.Path),
				zap.Error(err),
			)
			writeError(w, http.StatusInternalServerError, "internal error")
		}
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
