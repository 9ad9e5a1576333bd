// Package engine is the facade collaborators call: validation, scoring,
// optimization, simulation, overrides and conflict detection.
//
// Evaluation is a pure function of (snapshot, demand, configuration,
// overrides). Only Optimize and Plan have side effects: they append to the
// decision history, record metrics and publish a RunEvent. Simulations run
// the same pure pipeline on a clone and never write anywhere but the bus.
package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/kilianp07/induction/core/conflict"
	"github.com/kilianp07/induction/core/eligibility"
	"github.com/kilianp07/induction/core/engine/history"
	coreevents "github.com/kilianp07/induction/core/events"
	"github.com/kilianp07/induction/core/forecast"
	"github.com/kilianp07/induction/core/logger"
	"github.com/kilianp07/induction/core/metrics"
	"github.com/kilianp07/induction/core/model"
	"github.com/kilianp07/induction/core/optimizer"
	"github.com/kilianp07/induction/core/override"
	"github.com/kilianp07/induction/core/scoring"
	"github.com/kilianp07/induction/core/simulate"
	"github.com/kilianp07/induction/core/store"
	"github.com/kilianp07/induction/core/trace"
	"github.com/kilianp07/induction/internal/eventbus"
)

// fingerprintNamespace scopes decision-set fingerprints.
var fingerprintNamespace = uuid.MustParse("6f1c2a7e-3d0b-4f5e-9a41-2b8c7d9e0f13")

// Engine wires the decision pipeline to the fleet store.
type Engine struct {
	cfg       Config
	validator *eligibility.Validator
	scorer    *scoring.Scorer
	tracer    *trace.Tracer
	detector  *conflict.Detector
	simulator *simulate.Simulator
	store     store.FleetStore
	overrides *override.Registry
	forecast  *forecast.Estimator

	history history.Store
	sink    metrics.MetricsSink
	bus     eventbus.EventBus
	log     logger.Logger
	now     func() time.Time
	newID   func() string
}

// New validates cfg and returns an engine reading from st. Overrides already
// saved in the store are loaded into the registry.
func New(ctx context.Context, cfg Config, st store.FleetStore, log logger.Logger) (*Engine, error) {
	if st == nil {
		return nil, errors.New("engine: fleet store is required")
	}
	if log == nil {
		return nil, errors.New("engine: logger is required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("engine config: %w", err)
	}
	sc, err := scoring.New(cfg.ScoringConfig())
	if err != nil {
		return nil, err
	}
	est, err := forecast.New(cfg.ForecastConfig())
	if err != nil {
		return nil, fmt.Errorf("engine config: %w", err)
	}
	v := eligibility.New()
	e := &Engine{
		cfg:       cfg,
		validator: v,
		scorer:    sc,
		tracer:    trace.New(cfg.TraceOptions()),
		detector:  conflict.New(v),
		store:     st,
		forecast:  est,
		history:   history.NewMemoryStore(),
		sink:      metrics.NopSink{},
		log:       log,
		now:       func() time.Time { return time.Now().UTC() },
		newID:     uuid.NewString,
	}
	e.simulator = simulate.New(e)
	e.overrides = override.New(st, override.WithClock(func() time.Time { return e.now() }))
	if err := e.overrides.Load(ctx); err != nil {
		return nil, err
	}
	overridesActive.Set(float64(e.overrides.Count()))
	return e, nil
}

// SetHistory replaces the decision history store.
func (e *Engine) SetHistory(h history.Store) {
	if h != nil {
		e.history = h
	}
}

// SetMetrics replaces the metrics sink.
func (e *Engine) SetMetrics(s metrics.MetricsSink) {
	if s != nil {
		e.sink = s
	}
}

// SetBus sets the event bus. A nil bus disables events.
func (e *Engine) SetBus(b eventbus.EventBus) { e.bus = b }

// SetClock sets the time source for run timestamps and overrides.
func (e *Engine) SetClock(now func() time.Time) {
	if now != nil {
		e.now = now
	}
}

// SetIDGenerator sets the run id generator.
func (e *Engine) SetIDGenerator(fn func() string) {
	if fn != nil {
		e.newID = fn
	}
}

// Config returns the engine configuration.
func (e *Engine) Config() Config { return e.cfg }

// Store returns the fleet store the engine reads from.
func (e *Engine) Store() store.FleetStore { return e.store }

// ResolveDemand maps a zero demand to the configured default.
func (e *Engine) ResolveDemand(d int) int {
	if d == 0 {
		return e.cfg.DefaultServiceDemand
	}
	return d
}

// Validate checks the snapshot shape and classifies every trainset.
func (e *Engine) Validate(s model.Snapshot) (eligibility.Map, error) {
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return e.validator.Validate(s), nil
}

// Score returns the score vector of one trainset. Ineligible trainsets are
// scored too; fleet aggregates always cover the whole snapshot.
func (e *Engine) Score(s model.Snapshot, trainsetID string) (model.ScoreVector, error) {
	if err := s.Validate(); err != nil {
		return model.ScoreVector{}, err
	}
	view, ok := s.Index().View(trainsetID)
	if !ok {
		return model.ScoreVector{}, fmt.Errorf("%w: %s", model.ErrUnknownTrainset, trainsetID)
	}
	return e.scorer.Score(view, scoring.ComputeAggregates(s)), nil
}

// evaluate runs validator, scorer, optimizer and tracer. It has no side
// effects.
func (e *Engine) evaluate(s model.Snapshot, demand int, overrides map[string]model.Override) (model.DecisionSet, error) {
	fit := e.forecast.Fit()
	elig := e.validator.Validate(s)
	scores := e.scorer.ScoreAll(s, elig.Eligible())
	plan := optimizer.Optimize(optimizer.Input{
		Trainsets:   s.Trainsets,
		Eligibility: elig,
		Scores:      scores,
		Demand:      demand,
		Overrides:   overrides,
	})
	ds := model.DecisionSet{
		GeneratedAt:   s.TakenAt,
		Demand:        demand,
		EligibleCount: plan.EligibleCount,
		Shortfall:     plan.Shortfall,
		Decisions:     e.tracer.WithServiceHours(fit.Estimate).Decisions(plan, elig, scores),
		Conflicts:     e.detector.Detect(withOverrides(s, overrides)),
	}
	fp, err := fingerprint(s, demand, overrides, e.cfg, fit)
	if err != nil {
		return model.DecisionSet{}, err
	}
	ds.Fingerprint = fp
	if plan.Shortfall > 0 {
		return ds, &model.InfeasibleDemandError{Demand: demand, Supply: plan.PoolSize, Shortfall: plan.Shortfall}
	}
	return ds, nil
}

// withOverrides returns s carrying exactly the given overrides, so conflict
// checks see the overrides the run applied. The detector sorts its output,
// so the order of the list does not matter.
func withOverrides(s model.Snapshot, overrides map[string]model.Override) model.Snapshot {
	s.Overrides = make([]model.Override, 0, len(overrides))
	for _, o := range overrides {
		s.Overrides = append(s.Overrides, o)
	}
	return s
}

func fingerprint(s model.Snapshot, demand int, overrides map[string]model.Override, cfg Config, fit forecast.Fit) (string, error) {
	s.Overrides = nil
	if !fit.Trained {
		fit = forecast.Fit{Default: fit.Default}
	}
	b, err := json.Marshal(struct {
		Snapshot  model.Snapshot            `json:"snapshot"`
		Demand    int                       `json:"demand"`
		Overrides map[string]model.Override `json:"overrides"`
		Config    Config                    `json:"config"`
		Forecast  forecast.Fit              `json:"forecast"`
	}{s, demand, overrides, cfg, fit})
	if err != nil {
		return "", fmt.Errorf("fingerprint: %w", err)
	}
	return uuid.NewSHA1(fingerprintNamespace, b).String(), nil
}

// Run evaluates s with its own active overrides. It is the simulation
// pipeline and never records anything.
func (e *Engine) Run(_ context.Context, s model.Snapshot, demand int) (model.DecisionSet, error) {
	return e.evaluate(s, demand, model.ActiveOverrides(s.Overrides))
}

// Optimize assigns every trainset of s a status. A nil overrides list means
// the snapshot's own active overrides; an empty list means none. On a
// shortfall the complete decision set is returned together with an error
// wrapping model.ErrInfeasibleDemand.
func (e *Engine) Optimize(ctx context.Context, s model.Snapshot, demand int, overrides []model.Override) (model.DecisionSet, error) {
	start := time.Now()
	if err := e.cfg.CheckDemand(demand); err != nil {
		return model.DecisionSet{}, err
	}
	if err := s.Validate(); err != nil {
		return model.DecisionSet{}, err
	}
	if overrides == nil {
		overrides = s.Overrides
	}
	ds, err := e.evaluate(s, demand, model.ActiveOverrides(overrides))
	if err != nil && !errors.Is(err, model.ErrInfeasibleDemand) {
		return model.DecisionSet{}, err
	}
	e.record(ctx, ds, time.Since(start))
	return ds, err
}

// Plan optimizes the store's current snapshot with the registry's active
// overrides. A zero demand uses the configured default.
func (e *Engine) Plan(ctx context.Context, demand int) (model.DecisionSet, error) {
	snap, err := e.store.Snapshot(ctx)
	if err != nil {
		return model.DecisionSet{}, fmt.Errorf("read snapshot: %w", err)
	}
	return e.Optimize(ctx, snap, e.ResolveDemand(demand), e.overrides.Active())
}

func (e *Engine) record(ctx context.Context, ds model.DecisionSet, took time.Duration) {
	runID := e.newID()
	at := e.now()
	counts := ds.Counts()

	runsTotal.WithLabelValues("optimize").Inc()
	runDuration.WithLabelValues("optimize").Observe(took.Seconds())
	for st, n := range counts {
		assignments.WithLabelValues(string(st)).Set(float64(n))
	}
	shortfallGauge.Set(float64(ds.Shortfall))

	if err := e.history.Append(ctx, history.NewRecord(runID, at, ds)); err != nil {
		e.log.Errorf("append decision history %s: %v", runID, err)
	}
	if err := e.sink.RecordDecisionSet(metrics.Records(runID, at, ds)); err != nil {
		e.log.Errorf("record decision set %s: %v", runID, err)
	}
	e.publish(coreevents.RunEvent{RunID: runID, Decisions: ds, Conflicts: len(ds.Conflicts), Duration: took, Time: at})
	e.reportConflicts(runID, ds.Conflicts, at)
	e.log.Infow("optimization run", map[string]any{
		"run_id":      runID,
		"fingerprint": ds.Fingerprint,
		"demand":      ds.Demand,
		"service":     counts[model.StatusService],
		"standby":     counts[model.StatusStandby],
		"maintenance": counts[model.StatusMaintenance],
		"shortfall":   ds.Shortfall,
		"conflicts":   len(ds.Conflicts),
	})
}

// Simulate runs a what-if request. Without a snapshot the store's current
// snapshot and overrides are used, and the latest recorded run serves as the
// baseline when it was computed from those same inputs. A zero demand uses the configured
// default.
func (e *Engine) Simulate(ctx context.Context, req simulate.Request) (simulate.Result, error) {
	start := time.Now()
	req.Demand = e.ResolveDemand(req.Demand)
	if err := e.cfg.CheckDemand(req.Demand); err != nil {
		return simulate.Result{}, err
	}
	if req.Snapshot.TakenAt.IsZero() && len(req.Snapshot.Trainsets) == 0 {
		snap, err := e.store.Snapshot(ctx)
		if err != nil {
			return simulate.Result{}, fmt.Errorf("read snapshot: %w", err)
		}
		req.Snapshot = snap
		if req.Baseline == nil {
			base := req.BaselineDemand
			if base == 0 {
				base = req.Demand
			}
			req.Baseline = e.latestBaseline(ctx, snap, base)
		}
	}
	if err := req.Snapshot.Validate(); err != nil {
		return simulate.Result{}, err
	}
	res, err := e.simulator.Simulate(ctx, req)
	if err != nil {
		return simulate.Result{}, err
	}
	took := time.Since(start)
	runsTotal.WithLabelValues("simulate").Inc()
	runDuration.WithLabelValues("simulate").Observe(took.Seconds())

	ev := coreevents.SimulationEvent{
		ID:             e.newID(),
		Modifications:  len(res.Modifications),
		Demand:         res.Demand,
		Added:          res.Diff.AddedToService,
		Removed:        res.Diff.RemovedFromService,
		ShortfallDelta: res.Diff.ShortfallDelta,
		Duration:       took,
		Time:           e.now(),
	}
	if req.Scenario != nil {
		ev.Scenario = req.Scenario.Name
	}
	e.publish(ev)
	e.log.Debugw("simulation run", map[string]any{
		"id":            ev.ID,
		"scenario":      ev.Scenario,
		"modifications": ev.Modifications,
		"added":         len(ev.Added),
		"removed":       len(ev.Removed),
	})
	return res, nil
}

// latestBaseline returns the latest recorded run when it was computed from
// exactly snap, its active overrides and demand. Otherwise the baseline is
// recomputed by the simulator.
func (e *Engine) latestBaseline(ctx context.Context, snap model.Snapshot, demand int) *model.DecisionSet {
	rec, err := e.history.Latest(ctx)
	if err != nil {
		if !errors.Is(err, history.ErrEmpty) {
			e.log.Warnf("read latest decisions: %v", err)
		}
		return nil
	}
	if rec.Demand != demand {
		return nil
	}
	fp, err := fingerprint(snap, demand, model.ActiveOverrides(snap.Overrides), e.cfg, e.forecast.Fit())
	if err != nil || rec.Fingerprint != fp {
		return nil
	}
	ds := rec.DecisionSet()
	return &ds
}

// ApplyOverride pins a trainset to status. It fails with
// model.ErrUnknownTrainset when the store does not know the id.
func (e *Engine) ApplyOverride(ctx context.Context, trainsetID string, status model.Status, reason, author string) (model.Override, error) {
	o, err := e.overrides.Apply(ctx, trainsetID, status, reason, author)
	if err != nil {
		return o, err
	}
	overridesActive.Set(float64(e.overrides.Count()))
	e.publish(coreevents.OverrideEvent{Action: coreevents.OverrideApplied, Override: o, Time: o.CreatedAt})
	e.log.Infow("override applied", map[string]any{
		"override_id": o.ID,
		"trainset_id": o.TrainsetID,
		"status":      string(o.Status),
		"author":      o.Author,
		"reason":      o.Reason,
	})
	return o, nil
}

// RemoveOverride lifts the active override of a trainset. It returns false
// when none was active.
func (e *Engine) RemoveOverride(ctx context.Context, trainsetID string) (bool, error) {
	prev, had := e.overrides.Get(trainsetID)
	ok, err := e.overrides.Remove(ctx, trainsetID)
	if err != nil || !ok {
		return ok, err
	}
	overridesActive.Set(float64(e.overrides.Count()))
	if had {
		prev.RemovedAt = e.now()
		e.publish(coreevents.OverrideEvent{Action: coreevents.OverrideRemoved, Override: prev, Time: prev.RemovedAt})
	}
	e.log.Infow("override removed", map[string]any{"trainset_id": trainsetID})
	return true, nil
}

// Override returns the active override of a trainset.
func (e *Engine) Override(trainsetID string) (model.Override, bool) {
	return e.overrides.Get(trainsetID)
}

// Overrides returns the active overrides ordered by trainset id.
func (e *Engine) Overrides() []model.Override { return e.overrides.Active() }

// OverrideHistory returns every override recorded for a trainset, oldest
// first.
func (e *Engine) OverrideHistory(trainsetID string) []model.Override {
	return e.overrides.History(trainsetID)
}

// DetectConflicts scans s for contradictions. Conflicts are warnings: they
// are logged, counted and published but never change any state.
func (e *Engine) DetectConflicts(s model.Snapshot) ([]model.Conflict, error) {
	if err := s.Validate(); err != nil {
		return nil, err
	}
	out := e.detector.Detect(s)
	e.reportConflicts("", out, e.now())
	return out, nil
}

// reportConflicts publishes list as a single event so a crowded yard cannot
// crowd run events out of subscriber buffers.
func (e *Engine) reportConflicts(runID string, list []model.Conflict, at time.Time) {
	if len(list) == 0 {
		return
	}
	e.publish(coreevents.ConflictEvent{RunID: runID, Conflicts: list, Time: at})
	for _, c := range list {
		conflictsTotal.WithLabelValues(string(c.Kind)).Inc()
		e.log.Warnw("conflict detected", map[string]any{
			"trainset_id": c.TrainsetID,
			"kind":        string(c.Kind),
			"detail":      c.Detail,
		})
	}
}

// RecordOutcome feeds the service hours a trainset delivered back into the
// service-hours forecast. A zero mileage is read from the current snapshot.
func (e *Engine) RecordOutcome(ctx context.Context, o forecast.Observation) (forecast.Fit, error) {
	if err := o.Validate(); err != nil {
		return forecast.Fit{}, err
	}
	snap, err := e.store.Snapshot(ctx)
	if err != nil {
		return forecast.Fit{}, fmt.Errorf("read snapshot: %w", err)
	}
	if !snap.Has(o.TrainsetID) {
		return forecast.Fit{}, fmt.Errorf("%w: %s", model.ErrUnknownTrainset, o.TrainsetID)
	}
	if o.Mileage == 0 {
		for _, t := range snap.Trainsets {
			if t.ID == o.TrainsetID {
				o.Mileage = t.Mileage
			}
		}
	}
	if o.At.IsZero() {
		o.At = e.now()
	}
	if err := e.forecast.Observe(o); err != nil {
		return forecast.Fit{}, err
	}
	fit := e.forecast.Fit()
	forecastSamples.Set(float64(fit.Samples))
	e.log.Debugw("service outcome recorded", map[string]any{
		"trainset_id":   o.TrainsetID,
		"run_id":        o.RunID,
		"service_hours": o.ServiceHours,
		"trained":       fit.Trained,
	})
	return fit, nil
}

// Forecast returns the current service-hours model.
func (e *Engine) Forecast() forecast.Fit { return e.forecast.Fit() }

// Outcomes returns the retained service outcomes, oldest first.
func (e *Engine) Outcomes() []forecast.Observation { return e.forecast.Observations() }

// History returns recorded optimization runs matching q.
func (e *Engine) History(ctx context.Context, q history.Query) ([]history.Record, error) {
	return e.history.Query(ctx, q)
}

// Latest returns the most recent optimization run.
func (e *Engine) Latest(ctx context.Context) (history.Record, error) {
	return e.history.Latest(ctx)
}

func (e *Engine) publish(ev eventbus.Event) {
	if e.bus != nil {
		e.bus.Publish(ev)
	}
}
