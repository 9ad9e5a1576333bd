package store

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/induction/core/model"
	"github.com/kilianp07/induction/internal/fleettest"
)

func TestMemoryStore_SnapshotIsolation(t *testing.T) {
	m := NewMemoryStore(fleettest.Fleet(3))
	ctx := context.Background()
	s1, err := m.Snapshot(ctx)
	require.NoError(t, err)
	s1.Trainsets[0].Mileage = 1

	m.Update(func(s *model.Snapshot) { s.Trainsets[1].Status = model.StatusOutOfService })
	s2, err := m.Snapshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, 41000.0, s2.Trainsets[0].Mileage)
	assert.Equal(t, model.StatusStandby, s1.Trainsets[1].Status)
	assert.Equal(t, model.StatusOutOfService, s2.Trainsets[1].Status)
}

func TestMemoryStore_OverridesSurviveReplace(t *testing.T) {
	m := NewMemoryStore(fleettest.Fleet(2))
	ctx := context.Background()
	require.NoError(t, m.SaveOverride(ctx, model.Override{ID: "a", TrainsetID: fleettest.ID(1), Status: model.StatusStandby, CreatedAt: fleettest.Epoch}))
	require.NoError(t, m.SaveOverride(ctx, model.Override{ID: "b", TrainsetID: fleettest.ID(2), Status: model.StatusMaintenance, CreatedAt: fleettest.Epoch, RemovedAt: fleettest.Epoch.Add(time.Minute)}))

	m.Replace(fleettest.Fleet(2))
	s, err := m.Snapshot(ctx)
	require.NoError(t, err)
	require.Len(t, s.Overrides, 1)
	assert.Equal(t, "a", s.Overrides[0].ID)

	all, err := m.Overrides(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestMemoryStore_SaveOverrideRequiresID(t *testing.T) {
	m := NewMemoryStore(fleettest.Fleet(1))
	err := m.SaveOverride(context.Background(), model.Override{TrainsetID: fleettest.ID(1)})
	assert.True(t, errors.Is(err, model.ErrValidation))
}

func TestMemoryStore_CanceledContext(t *testing.T) {
	m := NewMemoryStore(fleettest.Fleet(1))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := m.Snapshot(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	ok, err := m.HasTrainset(ctx, fleettest.ID(1))
	assert.False(t, ok)
	assert.Error(t, err)
}

const yamlFixture = `taken_at: 2026-01-15T05:00:00Z
trainsets:
  - id: TS-001
    car_count: 4
    status: standby
    mileage: 41000
    last_cleaned: 2026-01-14T17:00:00Z
    stabling_bay: B01
certificates:
  - trainset_id: TS-001
    type: rolling_stock
    start: 2025-12-15T05:00:00Z
    end: 2026-12-15T05:00:00Z
    valid: true
job_cards:
  - id: JC-1
    trainset_id: TS-001
    status: in_progress
    priority: 2
stabling_slots:
  - bay: B01
    exit_cost: 1
`

func TestLoadSnapshot_YAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fleet.yaml")
	require.NoError(t, os.WriteFile(path, []byte(yamlFixture), 0o644))
	s, err := LoadSnapshot(path)
	require.NoError(t, err)
	assert.True(t, s.TakenAt.Equal(fleettest.Epoch))
	require.Len(t, s.Trainsets, 1)
	assert.Equal(t, "B01", s.Trainsets[0].StablingBay)
	require.Len(t, s.JobCards, 1)
	assert.True(t, s.JobCards[0].Blocking())
}

func TestLoadSnapshot_JSONRejectsUnknownFields(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fleet.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"taken_at":"2026-01-15T05:00:00Z","fleet":[]}`), 0o644))
	_, err := LoadSnapshot(path)
	assert.True(t, errors.Is(err, model.ErrValidation))
}

func TestLoadSnapshot_Invalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fleet.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"trainsets":[{"id":"TS-001","status":"standby"}]}`), 0o644))
	_, err := LoadSnapshot(path)
	var verr *model.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "taken_at", verr.Field)
}

func TestLoadSnapshot_UnsupportedExtension(t *testing.T) {
	_, err := LoadSnapshot("fleet.toml")
	assert.Error(t, err)
}
