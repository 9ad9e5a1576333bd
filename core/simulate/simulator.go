// Package simulate runs the decision pipeline against hypothetical fleet
// states.
//
// Every simulation works on a clone of the caller's snapshot and has no
// access to the store or the override registry, so it cannot change
// persisted state.
package simulate

import (
	"context"
	"errors"
	"fmt"

	"github.com/kilianp07/induction/core/model"
)

// Pipeline runs validation, scoring, optimization and tracing on a snapshot
// without side effects. Overrides are taken from the snapshot.
type Pipeline interface {
	Run(ctx context.Context, s model.Snapshot, demand int) (model.DecisionSet, error)
}

// PipelineFunc adapts a function to Pipeline.
type PipelineFunc func(ctx context.Context, s model.Snapshot, demand int) (model.DecisionSet, error)

// Run calls f.
func (f PipelineFunc) Run(ctx context.Context, s model.Snapshot, demand int) (model.DecisionSet, error) {
	return f(ctx, s, demand)
}

// Request describes one what-if run.
type Request struct {
	Snapshot      model.Snapshot `json:"-"`
	Modifications []Modification `json:"modifications"`
	// Scenario, when set, expands into modifications applied after
	// Modifications.
	Scenario *Scenario `json:"scenario,omitempty"`
	Demand   int       `json:"service_demand"`
	// BaselineDemand is the demand of the baseline run; zero means Demand.
	BaselineDemand int `json:"baseline_demand,omitempty"`
	// Baseline is compared against instead of re-running the unmodified
	// snapshot.
	Baseline *model.DecisionSet `json:"baseline,omitempty"`
}

// Result is the simulated decision set and its diff against the baseline.
type Result struct {
	Baseline      model.DecisionSet `json:"baseline"`
	Simulated     model.DecisionSet `json:"simulated"`
	Diff          Diff              `json:"diff"`
	Modifications []Modification    `json:"modifications"`
	Demand        int               `json:"service_demand"`
}

// Simulator wraps a pipeline.
type Simulator struct {
	pipeline Pipeline
}

// New returns a simulator running p.
func New(p Pipeline) *Simulator { return &Simulator{pipeline: p} }

// Simulate applies the request's modifications to a clone of its snapshot,
// runs the pipeline and diffs the outcome. Shortfalls are not errors here:
// they show up in the decision sets and the diff.
func (s *Simulator) Simulate(ctx context.Context, req Request) (Result, error) {
	mods := append([]Modification(nil), req.Modifications...)
	demand := req.Demand
	if req.Scenario != nil {
		exp, err := Expand(*req.Scenario, req.Snapshot)
		if err != nil {
			return Result{}, err
		}
		mods = append(mods, exp.Modifications...)
		if exp.Demand > 0 {
			demand = exp.Demand
		}
	}
	baseDemand := req.BaselineDemand
	if baseDemand == 0 {
		baseDemand = req.Demand
	}

	modified, err := Apply(req.Snapshot, mods)
	if err != nil {
		return Result{}, err
	}

	var base model.DecisionSet
	if req.Baseline != nil {
		base = *req.Baseline
	} else {
		base, err = s.run(ctx, req.Snapshot.Clone(), baseDemand)
		if err != nil {
			return Result{}, fmt.Errorf("baseline: %w", err)
		}
	}
	sim, err := s.run(ctx, modified, demand)
	if err != nil {
		return Result{}, fmt.Errorf("simulation: %w", err)
	}
	return Result{Baseline: base, Simulated: sim, Diff: Compare(base, sim), Modifications: mods, Demand: demand}, nil
}

func (s *Simulator) run(ctx context.Context, snap model.Snapshot, demand int) (model.DecisionSet, error) {
	ds, err := s.pipeline.Run(ctx, snap, demand)
	if err != nil && !errors.Is(err, model.ErrInfeasibleDemand) {
		return model.DecisionSet{}, err
	}
	return ds, nil
}
