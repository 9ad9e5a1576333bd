// Package override records operator-forced statuses.
//
// Writes are serialized per trainset so that "latest wins" is well defined
// under concurrent requests. Superseded and removed overrides are retained
// for audit.
package override

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kilianp07/induction/core/model"
	"github.com/kilianp07/induction/core/store"
)

// Registry is the one piece of shared mutable state in the engine.
type Registry struct {
	store store.FleetStore
	now   func() time.Time
	newID func() string

	mu      sync.Mutex
	locks   map[string]*sync.Mutex
	active  map[string]model.Override
	history map[string][]model.Override
}

// Option configures a Registry.
type Option func(*Registry)

// WithClock sets the time source used for CreatedAt and RemovedAt.
func WithClock(now func() time.Time) Option { return func(r *Registry) { r.now = now } }

// WithIDGenerator sets the override id generator.
func WithIDGenerator(fn func() string) Option { return func(r *Registry) { r.newID = fn } }

// New returns an empty registry writing through to st.
func New(st store.FleetStore, opts ...Option) *Registry {
	r := &Registry{
		store:   st,
		now:     func() time.Time { return time.Now().UTC() },
		newID:   uuid.NewString,
		locks:   map[string]*sync.Mutex{},
		active:  map[string]model.Override{},
		history: map[string][]model.Override{},
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Load replaces the in-memory state with the store's override records.
func (r *Registry) Load(ctx context.Context) error {
	list, err := r.store.Overrides(ctx)
	if err != nil {
		return fmt.Errorf("load overrides: %w", err)
	}
	history := map[string][]model.Override{}
	for _, o := range list {
		history[o.TrainsetID] = append(history[o.TrainsetID], o)
	}
	for id := range history {
		sortHistory(history[id])
	}
	r.mu.Lock()
	r.history = history
	r.active = model.ActiveOverrides(list)
	r.mu.Unlock()
	return nil
}

func (r *Registry) lock(id string) func() {
	r.mu.Lock()
	l, ok := r.locks[id]
	if !ok {
		l = &sync.Mutex{}
		r.locks[id] = l
	}
	r.mu.Unlock()
	l.Lock()
	return l.Unlock
}

// Apply pins trainsetID to status. A previously active override of the same
// trainset is marked superseded by the new one.
func (r *Registry) Apply(ctx context.Context, trainsetID string, status model.Status, reason, author string) (model.Override, error) {
	if trainsetID == "" {
		return model.Override{}, &model.ValidationError{Field: "trainset_id", Reason: "required"}
	}
	if !status.Assignable() {
		return model.Override{}, &model.ValidationError{Field: "status", Reason: fmt.Sprintf("cannot force status %q", status)}
	}
	ok, err := r.store.HasTrainset(ctx, trainsetID)
	if err != nil {
		return model.Override{}, fmt.Errorf("lookup trainset: %w", err)
	}
	if !ok {
		return model.Override{}, fmt.Errorf("%w: %s", model.ErrUnknownTrainset, trainsetID)
	}

	unlock := r.lock(trainsetID)
	defer unlock()

	ov := model.Override{
		ID:         r.newID(),
		TrainsetID: trainsetID,
		Status:     status,
		Reason:     reason,
		Author:     author,
		CreatedAt:  r.now(),
	}
	if err := r.store.SaveOverride(ctx, ov); err != nil {
		return model.Override{}, fmt.Errorf("save override: %w", err)
	}

	r.mu.Lock()
	prev, hadPrev := r.active[trainsetID]
	r.active[trainsetID] = ov
	r.history[trainsetID] = append(r.history[trainsetID], ov)
	if hadPrev {
		prev.SupersededBy = ov.ID
		r.replace(prev)
	}
	r.mu.Unlock()

	// The new override is already the latest active record in the store, so
	// a failed supersede leaves the store's active set correct.
	if hadPrev {
		if err := r.store.SaveOverride(ctx, prev); err != nil {
			return ov, fmt.Errorf("supersede override %s: %w", prev.ID, err)
		}
	}
	return ov, nil
}

// Remove deactivates the active override of trainsetID. It returns false
// when none existed.
func (r *Registry) Remove(ctx context.Context, trainsetID string) (bool, error) {
	unlock := r.lock(trainsetID)
	defer unlock()

	r.mu.Lock()
	cur, ok := r.active[trainsetID]
	r.mu.Unlock()
	if !ok {
		return false, nil
	}
	cur.RemovedAt = r.now()
	if err := r.store.SaveOverride(ctx, cur); err != nil {
		return false, fmt.Errorf("remove override: %w", err)
	}
	r.mu.Lock()
	delete(r.active, trainsetID)
	r.replace(cur)
	r.mu.Unlock()
	return true, nil
}

// replace updates the history entry with the same ID. Caller holds r.mu.
func (r *Registry) replace(o model.Override) {
	h := r.history[o.TrainsetID]
	for i := range h {
		if h[i].ID == o.ID {
			h[i] = o
			return
		}
	}
	r.history[o.TrainsetID] = append(h, o)
	sortHistory(r.history[o.TrainsetID])
}

// Get returns the active override of a trainset.
func (r *Registry) Get(trainsetID string) (model.Override, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	o, ok := r.active[trainsetID]
	return o, ok
}

// Active returns the active overrides ordered by trainset id.
func (r *Registry) Active() []model.Override {
	r.mu.Lock()
	out := make([]model.Override, 0, len(r.active))
	for _, o := range r.active {
		out = append(out, o)
	}
	r.mu.Unlock()
	sort.Slice(out, func(i, j int) bool { return out[i].TrainsetID < out[j].TrainsetID })
	return out
}

// Count returns the number of active overrides.
func (r *Registry) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.active)
}

// History returns every override recorded for a trainset in creation order.
func (r *Registry) History(trainsetID string) []model.Override {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]model.Override(nil), r.history[trainsetID]...)
}

func sortHistory(h []model.Override) {
	sort.SliceStable(h, func(i, j int) bool {
		if !h[i].CreatedAt.Equal(h[j].CreatedAt) {
			return h[i].CreatedAt.Before(h[j].CreatedAt)
		}
		return h[i].ID < h[j].ID
	})
}
