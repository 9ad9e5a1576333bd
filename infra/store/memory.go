// Package store provides Fleet State Store implementations.
package store

import (
	"context"
	"sort"
	"sync"

	"github.com/kilianp07/induction/core/model"
	corestore "github.com/kilianp07/induction/core/store"
)

var _ corestore.FleetStore = (*MemoryStore)(nil)

// MemoryStore keeps fleet state in memory. Ingestion replaces or updates the
// fleet records; overrides are owned separately and survive refreshes.
type MemoryStore struct {
	mu        sync.RWMutex
	snap      model.Snapshot
	overrides map[string]model.Override
}

// NewMemoryStore seeds the store with s. Overrides carried by s are kept as
// the initial override records.
func NewMemoryStore(s model.Snapshot) *MemoryStore {
	m := &MemoryStore{overrides: map[string]model.Override{}}
	m.Replace(s)
	for _, o := range s.Overrides {
		m.overrides[o.ID] = o
	}
	return m
}

// Replace swaps the fleet records for a fresh ingestion snapshot. Overrides
// in s are ignored.
func (m *MemoryStore) Replace(s model.Snapshot) {
	c := s.Clone()
	c.Overrides = nil
	m.mu.Lock()
	m.snap = c
	m.mu.Unlock()
}

// Update applies fn to the stored fleet records under the write lock.
func (m *MemoryStore) Update(fn func(*model.Snapshot)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c := m.snap.Clone()
	fn(&c)
	c.Overrides = nil
	m.snap = c
}

// Snapshot returns an isolated copy with the active overrides attached.
func (m *MemoryStore) Snapshot(ctx context.Context) (model.Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return model.Snapshot{}, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	s := m.snap.Clone()
	active := model.ActiveOverrides(m.list())
	s.Overrides = make([]model.Override, 0, len(active))
	for _, o := range active {
		s.Overrides = append(s.Overrides, o)
	}
	sort.Slice(s.Overrides, func(i, j int) bool { return s.Overrides[i].TrainsetID < s.Overrides[j].TrainsetID })
	return s, nil
}

// HasTrainset reports whether id is part of the current fleet.
func (m *MemoryStore) HasTrainset(ctx context.Context, id string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.snap.Has(id), nil
}

// Overrides returns all override records ordered by creation time.
func (m *MemoryStore) Overrides(ctx context.Context) ([]model.Override, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.list(), nil
}

// SaveOverride upserts o by ID.
func (m *MemoryStore) SaveOverride(ctx context.Context, o model.Override) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if o.ID == "" {
		return &model.ValidationError{Field: "override.id", Reason: "required"}
	}
	m.mu.Lock()
	m.overrides[o.ID] = o
	m.mu.Unlock()
	return nil
}

func (m *MemoryStore) list() []model.Override {
	out := make([]model.Override, 0, len(m.overrides))
	for _, o := range m.overrides {
		out = append(out, o)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}
