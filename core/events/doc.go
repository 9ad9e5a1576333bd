// Package events defines the induction events emitted on the event bus.
//
// Available event types:
//   - RunEvent: an optimization run completed
//   - SimulationEvent: a what-if simulation completed
//   - OverrideEvent: an operator override was applied or removed
//   - ConflictEvent: the conflict detector reported a contradiction
package events
