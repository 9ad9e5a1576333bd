// Package induction exposes the induction engine over HTTP.
package induction

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/kilianp07/induction/core/eligibility"
	"github.com/kilianp07/induction/core/engine/history"
	"github.com/kilianp07/induction/core/forecast"
	"github.com/kilianp07/induction/core/logger"
	"github.com/kilianp07/induction/core/model"
	"github.com/kilianp07/induction/core/simulate"
	"github.com/kilianp07/induction/core/store"
)

// Engine is the subset of the induction engine served by the API.
type Engine interface {
	Store() store.FleetStore
	ResolveDemand(d int) int
	Validate(s model.Snapshot) (eligibility.Map, error)
	Score(s model.Snapshot, trainsetID string) (model.ScoreVector, error)
	Optimize(ctx context.Context, s model.Snapshot, demand int, overrides []model.Override) (model.DecisionSet, error)
	Plan(ctx context.Context, demand int) (model.DecisionSet, error)
	Simulate(ctx context.Context, req simulate.Request) (simulate.Result, error)
	ApplyOverride(ctx context.Context, trainsetID string, status model.Status, reason, author string) (model.Override, error)
	RemoveOverride(ctx context.Context, trainsetID string) (bool, error)
	Override(trainsetID string) (model.Override, bool)
	Overrides() []model.Override
	OverrideHistory(trainsetID string) []model.Override
	DetectConflicts(s model.Snapshot) ([]model.Conflict, error)
	History(ctx context.Context, q history.Query) ([]history.Record, error)
	Latest(ctx context.Context) (history.Record, error)
	RecordOutcome(ctx context.Context, o forecast.Observation) (forecast.Fit, error)
	Forecast() forecast.Fit
	Outcomes() []forecast.Observation
}

// Options configures the router.
type Options struct {
	// Token, when set, is required as "Bearer <token>" on every /api route.
	Token string
	// Metrics is mounted on /metrics when non-nil.
	Metrics http.Handler
	Logger  logger.Logger
	// Timeout bounds each request. Zero disables it.
	Timeout time.Duration
}

type handler struct {
	eng Engine
	log logger.Logger
}

// NewRouter returns the HTTP handler of the induction API.
func NewRouter(eng Engine, opts Options) http.Handler {
	h := &handler{eng: eng, log: opts.Logger}
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	if opts.Timeout > 0 {
		r.Use(middleware.Timeout(opts.Timeout))
	}

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	if opts.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", opts.Metrics)
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(bearer(opts.Token))
		r.Get("/snapshot", h.snapshot)
		r.Post("/validate", h.validate)
		r.Get("/trainsets/{id}/score", h.score)
		r.Post("/optimize", h.optimize)
		r.Post("/simulate", h.simulate)
		r.Route("/overrides", func(r chi.Router) {
			r.Get("/", h.listOverrides)
			r.Post("/", h.applyOverride)
			r.Get("/{id}", h.getOverride)
			r.Delete("/{id}", h.removeOverride)
			r.Get("/{id}/history", h.overrideHistory)
		})
		r.Post("/conflicts", h.conflicts)
		r.Get("/conflicts", h.conflicts)
		r.Get("/history", h.history)
		r.Get("/history/latest", h.latest)
		r.Post("/outcomes", h.recordOutcome)
		r.Get("/outcomes", h.outcomes)
		r.Get("/forecast", h.currentForecast)
	})
	return r
}

func bearer(token string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if token != "" && r.Header.Get("Authorization") != "Bearer "+token {
				writeJSON(w, http.StatusUnauthorized, apiError{Error: apiErrorBody{Code: "unauthorized", Message: "unauthorized"}})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
