package events

import (
	"time"

	"github.com/kilianp07/induction/core/model"
)

// RunEvent is published after every optimization run, including runs that
// ended with a shortfall.
type RunEvent struct {
	RunID     string
	Decisions model.DecisionSet
	Conflicts int
	Duration  time.Duration
	Time      time.Time
}

// SimulationEvent summarizes a what-if run. Simulations never reach the
// history store, so this is their only trace outside the caller.
type SimulationEvent struct {
	ID             string
	Scenario       string
	Modifications  int
	Demand         int
	Added          []string
	Removed        []string
	ShortfallDelta int
	Duration       time.Duration
	Time           time.Time
}

// OverrideAction tells whether an override was applied or removed.
type OverrideAction string

const (
	OverrideApplied OverrideAction = "applied"
	OverrideRemoved OverrideAction = "removed"
)

// OverrideEvent records a change to the override registry.
type OverrideEvent struct {
	Action   OverrideAction
	Override model.Override
	Time     time.Time
}

// ConflictEvent carries every contradiction detected in one pass. RunID is
// empty for a standalone detection.
type ConflictEvent struct {
	RunID     string
	Conflicts []model.Conflict
	Time      time.Time
}
