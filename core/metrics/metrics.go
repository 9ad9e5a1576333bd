package metrics

import (
	"time"

	"github.com/kilianp07/induction/core/model"
)

// DecisionRecord is the flattened view of one decision exported to sinks.
type DecisionRecord struct {
	RunID         string
	Fingerprint   string
	TrainsetID    string
	Status        model.Status
	Score         float64
	Rank          int
	Eligible      bool
	Pinned        bool
	PrimaryReason model.Reason
	Demand        int
	Shortfall     int
	Time          time.Time
}

// Records flattens a decision set into one record per trainset.
func Records(runID string, at time.Time, ds model.DecisionSet) []DecisionRecord {
	out := make([]DecisionRecord, 0, len(ds.Decisions))
	for _, d := range ds.Decisions {
		r := DecisionRecord{
			RunID:       runID,
			Fingerprint: ds.Fingerprint,
			TrainsetID:  d.TrainsetID,
			Status:      d.Status,
			Score:       d.Score,
			Rank:        d.Rank,
			Eligible:    d.Eligible,
			Pinned:      d.Pinned,
			Demand:      ds.Demand,
			Shortfall:   ds.Shortfall,
			Time:        at,
		}
		if len(d.BlockingReasons) > 0 {
			r.PrimaryReason = d.BlockingReasons[0]
		}
		out = append(out, r)
	}
	return out
}

// MetricsSink receives the decisions of every optimization run.
type MetricsSink interface {
	RecordDecisionSet(records []DecisionRecord) error
}

// ConflictRecord is one detected contradiction.
type ConflictRecord struct {
	TrainsetID string
	Kind       model.ConflictKind
	Detail     string
	Time       time.Time
}

// ConflictRecorder is implemented by sinks that track conflicts.
type ConflictRecorder interface {
	RecordConflict(ConflictRecord) error
}

// OverrideRecord is an override applied to or removed from the registry.
type OverrideRecord struct {
	Action     string
	OverrideID string
	TrainsetID string
	Status     model.Status
	Author     string
	Reason     string
	Time       time.Time
}

// OverrideRecorder is implemented by sinks that track overrides.
type OverrideRecorder interface {
	RecordOverride(OverrideRecord) error
}

// SimulationRecord summarizes a what-if run.
type SimulationRecord struct {
	ID             string
	Scenario       string
	Modifications  int
	Demand         int
	Added          int
	Removed        int
	ShortfallDelta int
	Duration       time.Duration
	Time           time.Time
}

// SimulationRecorder is implemented by sinks that track simulations.
type SimulationRecorder interface {
	RecordSimulation(SimulationRecord) error
}

// NopSink discards everything.
type NopSink struct{}

func (NopSink) RecordDecisionSet([]DecisionRecord) error { return nil }
func (NopSink) RecordConflict(ConflictRecord) error      { return nil }
func (NopSink) RecordOverride(OverrideRecord) error      { return nil }
func (NopSink) RecordSimulation(SimulationRecord) error  { return nil }
