package override

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/induction/core/model"
	"github.com/kilianp07/induction/internal/fleettest"
	memstore "github.com/kilianp07/induction/infra/store"
)

func newRegistry(st *memstore.MemoryStore) *Registry {
	var tick, seq int64
	return New(st,
		WithClock(func() time.Time {
			return fleettest.Epoch.Add(time.Duration(atomic.AddInt64(&tick, 1)) * time.Second)
		}),
		WithIDGenerator(func() string { return fmt.Sprintf("ov-%03d", atomic.AddInt64(&seq, 1)) }),
	)
}

func TestApply_LatestWins(t *testing.T) {
	st := memstore.NewMemoryStore(fleettest.Fleet(3))
	r := newRegistry(st)
	ctx := context.Background()
	id := fleettest.ID(2)

	first, err := r.Apply(ctx, id, model.StatusMaintenance, "brake check", "alice")
	require.NoError(t, err)
	second, err := r.Apply(ctx, id, model.StatusStandby, "reserve", "bob")
	require.NoError(t, err)

	cur, ok := r.Get(id)
	require.True(t, ok)
	assert.Equal(t, second.ID, cur.ID)
	h := r.History(id)
	require.Len(t, h, 2)
	assert.Equal(t, first.ID, h[0].ID)
	assert.Equal(t, second.ID, h[0].SupersededBy)
	assert.True(t, h[1].Active())

	snap, err := st.Snapshot(ctx)
	require.NoError(t, err)
	require.Len(t, snap.Overrides, 1)
	assert.Equal(t, model.StatusStandby, snap.Overrides[0].Status)
	all, _ := st.Overrides(ctx)
	assert.Len(t, all, 2)
}

func TestApply_Errors(t *testing.T) {
	r := newRegistry(memstore.NewMemoryStore(fleettest.Fleet(1)))
	ctx := context.Background()
	_, err := r.Apply(ctx, "TS-404", model.StatusService, "", "")
	assert.True(t, errors.Is(err, model.ErrUnknownTrainset))
	_, err = r.Apply(ctx, fleettest.ID(1), model.StatusCleaning, "", "")
	assert.True(t, errors.Is(err, model.ErrValidation))
	_, err = r.Apply(ctx, "", model.StatusService, "", "")
	assert.True(t, errors.Is(err, model.ErrValidation))
	assert.Zero(t, r.Count())
}

func TestRemove(t *testing.T) {
	st := memstore.NewMemoryStore(fleettest.Fleet(2))
	r := newRegistry(st)
	ctx := context.Background()
	ok, err := r.Remove(ctx, fleettest.ID(1))
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = r.Apply(ctx, fleettest.ID(1), model.StatusMaintenance, "", "ops")
	require.NoError(t, err)
	ok, err = r.Remove(ctx, fleettest.ID(1))
	require.NoError(t, err)
	assert.True(t, ok)
	_, active := r.Get(fleettest.ID(1))
	assert.False(t, active)
	h := r.History(fleettest.ID(1))
	require.Len(t, h, 1)
	assert.False(t, h[0].RemovedAt.IsZero())

	snap, _ := st.Snapshot(ctx)
	assert.Empty(t, snap.Overrides)
}

func TestLoad(t *testing.T) {
	s := fleettest.Fleet(2)
	s.Overrides = []model.Override{
		{ID: "a", TrainsetID: fleettest.ID(1), Status: model.StatusStandby, CreatedAt: fleettest.Epoch, SupersededBy: "b"},
		{ID: "b", TrainsetID: fleettest.ID(1), Status: model.StatusMaintenance, CreatedAt: fleettest.Epoch.Add(time.Minute)},
	}
	r := newRegistry(memstore.NewMemoryStore(s))
	require.NoError(t, r.Load(context.Background()))
	assert.Equal(t, 1, r.Count())
	cur, _ := r.Get(fleettest.ID(1))
	assert.Equal(t, "b", cur.ID)
	assert.Len(t, r.History(fleettest.ID(1)), 2)
}

func TestApply_ConcurrentSameTrainset(t *testing.T) {
	st := memstore.NewMemoryStore(fleettest.Fleet(2))
	r := newRegistry(st)
	ctx := context.Background()
	id := fleettest.ID(1)
	const n = 50

	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			st := model.AssignableStatuses[i%len(model.AssignableStatuses)]
			if _, err := r.Apply(ctx, id, st, "race", fmt.Sprintf("op%d", i)); err != nil {
				t.Error(err)
			}
		}(i)
	}
	wg.Wait()

	h := r.History(id)
	require.Len(t, h, n)
	activeCount := 0
	for _, o := range h {
		if o.Active() {
			activeCount++
		}
	}
	assert.Equal(t, 1, activeCount)
	cur, ok := r.Get(id)
	require.True(t, ok)
	assert.Equal(t, h[n-1].ID, cur.ID, "the latest override must be the active one")

	snap, err := st.Snapshot(ctx)
	require.NoError(t, err)
	require.Len(t, snap.Overrides, 1)
	assert.Equal(t, cur.ID, snap.Overrides[0].ID)
}
