// Package store defines the Fleet State Store the engine reads from.
//
// The store exclusively owns fleet records. The engine only reads
// point-in-time snapshots and writes overrides back through SaveOverride.
package store

import (
	"context"

	"github.com/kilianp07/induction/core/model"
)

// FleetStore is the repository abstraction over fleet state.
type FleetStore interface {
	// Snapshot returns a consistent copy of fleet state whose Overrides
	// field holds the active overrides. Later store mutations never affect
	// a returned snapshot.
	Snapshot(ctx context.Context) (model.Snapshot, error)
	// HasTrainset reports whether id is a registered trainset.
	HasTrainset(ctx context.Context, id string) (bool, error)
	// Overrides returns every override ever saved, including superseded and
	// removed ones.
	Overrides(ctx context.Context) ([]model.Override, error)
	// SaveOverride inserts or replaces the override with the same ID.
	SaveOverride(ctx context.Context, o model.Override) error
}
