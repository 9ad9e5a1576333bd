package engine

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"reflect"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/induction/core/engine/history"
	coreevents "github.com/kilianp07/induction/core/events"
	"github.com/kilianp07/induction/core/forecast"
	"github.com/kilianp07/induction/core/model"
	"github.com/kilianp07/induction/core/simulate"
	"github.com/kilianp07/induction/infra/logger"
	"github.com/kilianp07/induction/infra/mqtt"
	infrastore "github.com/kilianp07/induction/infra/store"
	"github.com/kilianp07/induction/internal/eventbus"
	"github.com/kilianp07/induction/internal/fleettest"
)

func newEngine(t *testing.T, cfg Config, s model.Snapshot) (*Engine, *infrastore.MemoryStore) {
	t.Helper()
	ResetMetrics(prometheus.NewRegistry())
	st := infrastore.NewMemoryStore(s)
	e, err := New(context.Background(), cfg, st, logger.NopLogger{})
	require.NoError(t, err)
	n := 0
	e.SetIDGenerator(func() string {
		n++
		return fmt.Sprintf("id-%d", n)
	})
	e.SetClock(func() time.Time { return fleettest.Epoch.Add(time.Duration(n) * time.Minute) })
	return e, st
}

func defaultConfig() Config {
	c := DefaultConfig()
	c.SetDefaults()
	return c
}

// wideConfig accepts any demand a generated fleet can produce.
func wideConfig() Config {
	c := DefaultConfig()
	c.MinServiceDemand = 0
	c.MaxServiceDemand = 40
	c.DefaultServiceDemand = 10
	return c
}

func fleetWithExpired() model.Snapshot {
	s := fleettest.Fleet(25)
	for _, n := range []int{7, 13, 19} {
		fleettest.Expire(&s, fleettest.ID(n), model.CertRollingStock)
	}
	return s
}

func TestNew_RejectsInvalidConfig(t *testing.T) {
	cfg := defaultConfig()
	cfg.MinServiceDemand = 30
	_, err := New(context.Background(), cfg, infrastore.NewMemoryStore(fleettest.Fleet(1)), logger.NopLogger{})
	assert.ErrorIs(t, err, model.ErrValidation)

	_, err = New(context.Background(), defaultConfig(), nil, logger.NopLogger{})
	assert.Error(t, err)
}

func TestOptimize_DemandMet(t *testing.T) {
	e, _ := newEngine(t, defaultConfig(), model.Snapshot{})
	ds, err := e.Optimize(context.Background(), fleetWithExpired(), 20, nil)
	require.NoError(t, err)

	counts := ds.Counts()
	assert.Equal(t, 20, counts[model.StatusService])
	assert.Equal(t, 2, counts[model.StatusStandby])
	assert.Equal(t, 3, counts[model.StatusMaintenance])
	assert.False(t, ds.Infeasible())
	assert.Len(t, ds.Decisions, 25)
	assert.Equal(t, 22, ds.EligibleCount)

	d, _ := ds.Decision(fleettest.ID(7))
	assert.Equal(t, []model.Reason{model.CertificateExpired(model.CertRollingStock)}, d.BlockingReasons)
	assert.Equal(t, 1.0, testutil.ToFloat64(runsTotal.WithLabelValues("optimize")))
	assert.Equal(t, 20.0, testutil.ToFloat64(assignments.WithLabelValues("revenue_service")))
}

func TestOptimize_ShortfallIsNonFatal(t *testing.T) {
	e, _ := newEngine(t, defaultConfig(), model.Snapshot{})
	ds, err := e.Optimize(context.Background(), fleetWithExpired(), 24, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, model.ErrInfeasibleDemand)
	var ie *model.InfeasibleDemandError
	require.True(t, errors.As(err, &ie))
	assert.Equal(t, 2, ie.Shortfall)

	counts := ds.Counts()
	assert.Equal(t, 22, counts[model.StatusService])
	assert.Zero(t, counts[model.StatusStandby])
	assert.Equal(t, 2, ds.Shortfall)
	assert.Len(t, ds.Decisions, 25)
	assert.Equal(t, 2.0, testutil.ToFloat64(shortfallGauge))
}

func TestOptimize_OverridePromotesTwentyFirst(t *testing.T) {
	s := fleettest.Fleet(25)
	e, _ := newEngine(t, defaultConfig(), s)
	ctx := context.Background()

	base, err := e.Optimize(ctx, s, 20, []model.Override{})
	require.NoError(t, err)
	top, _ := base.Decision(fleettest.ID(5))
	require.Equal(t, model.StatusService, top.Status)
	var twentyFirst string
	for _, d := range base.Decisions {
		if d.Rank == 21 {
			twentyFirst = d.TrainsetID
		}
	}
	require.NotEmpty(t, twentyFirst)

	_, err = e.ApplyOverride(ctx, fleettest.ID(5), model.StatusMaintenance, "wheel inspection", "depot")
	require.NoError(t, err)
	ds, err := e.Plan(ctx, 20)
	require.NoError(t, err)

	d, _ := ds.Decision(fleettest.ID(5))
	assert.Equal(t, model.StatusMaintenance, d.Status)
	assert.True(t, d.Pinned)
	promoted, _ := ds.Decision(twentyFirst)
	assert.Equal(t, model.StatusService, promoted.Status)
	assert.Equal(t, 20, ds.Counts()[model.StatusService])
}

func TestOptimize_Deterministic(t *testing.T) {
	e, _ := newEngine(t, defaultConfig(), model.Snapshot{})
	s := fleetWithExpired()
	a, err := e.Optimize(context.Background(), s, 20, nil)
	require.NoError(t, err)
	b, err := e.Optimize(context.Background(), s, 20, nil)
	require.NoError(t, err)
	assert.Equal(t, a, b)
	assert.NotEmpty(t, a.Fingerprint)

	c, _ := e.Optimize(context.Background(), s, 19, nil)
	assert.NotEqual(t, a.Fingerprint, c.Fingerprint)
}

func TestOptimize_RejectsBadInput(t *testing.T) {
	e, _ := newEngine(t, defaultConfig(), model.Snapshot{})
	_, err := e.Optimize(context.Background(), fleettest.Fleet(25), 30, nil)
	var ve *model.ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "service_demand", ve.Field)

	bad := fleettest.Fleet(3)
	bad.Trainsets[1].ID = ""
	_, err = e.Optimize(context.Background(), bad, 20, nil)
	assert.ErrorIs(t, err, model.ErrValidation)
}

func TestOptimize_RecordsHistoryAndEvents(t *testing.T) {
	e, _ := newEngine(t, defaultConfig(), model.Snapshot{})
	bus := eventbus.New()
	sub := bus.Subscribe()
	e.SetBus(bus)
	h := history.NewMemoryStore()
	e.SetHistory(h)

	s := fleetWithExpired()
	s.Trainsets[0].StablingBay = "B02"
	ds, err := e.Optimize(context.Background(), s, 20, nil)
	require.NoError(t, err)
	require.NotEmpty(t, ds.Conflicts)

	rec, err := e.Latest(context.Background())
	require.NoError(t, err)
	assert.Equal(t, ds.Fingerprint, rec.Fingerprint)
	assert.Equal(t, ds.GeneratedAt, rec.DecisionSet().GeneratedAt)

	run, ok := (<-sub).(coreevents.RunEvent)
	require.True(t, ok, "run event must be published first")
	assert.Equal(t, rec.RunID, run.RunID)
	assert.Equal(t, len(ds.Conflicts), run.Conflicts)
	batch, ok := (<-sub).(coreevents.ConflictEvent)
	require.True(t, ok)
	assert.Equal(t, rec.RunID, batch.RunID)
	assert.Equal(t, ds.Conflicts, batch.Conflicts)
}

func TestPlan_CrowdedYardStillPublishesRun(t *testing.T) {
	s := fleettest.Fleet(25)
	for i := range s.Trainsets {
		s.Trainsets[i].StablingBay = "B01"
	}
	e, _ := newEngine(t, defaultConfig(), s)
	bus := eventbus.New()
	e.SetBus(bus)
	pub := mqtt.NewMockPublisher()
	ctx, cancel := context.WithCancel(context.Background())
	done := mqtt.StartPublisher(ctx, bus, pub, logger.NopLogger{})
	defer func() {
		cancel()
		<-done
	}()

	ds, err := e.Plan(context.Background(), 20)
	require.NoError(t, err)
	require.Greater(t, len(ds.Conflicts), eventbus.DefaultBuffer)

	rec, err := e.Latest(context.Background())
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		_, ok := pub.Published(rec.RunID)
		return ok
	}, time.Second, 5*time.Millisecond)
	assert.Zero(t, bus.Dropped())
}

func TestRecordOutcome_LearnsServiceHours(t *testing.T) {
	cfg := defaultConfig()
	cfg.ForecastMinSamples = 5
	e, _ := newEngine(t, cfg, fleettest.Fleet(25))
	ctx := context.Background()

	before, err := e.Plan(ctx, 20)
	require.NoError(t, err)
	for _, id := range before.WithStatus(model.StatusService) {
		d, _ := before.Decision(id)
		assert.Equal(t, 16.0, d.EstimatedServiceHours)
	}

	_, err = e.RecordOutcome(ctx, forecast.Observation{TrainsetID: "TS-999", ServiceHours: 12})
	assert.ErrorIs(t, err, model.ErrUnknownTrainset)
	_, err = e.RecordOutcome(ctx, forecast.Observation{TrainsetID: fleettest.ID(1), ServiceHours: 30})
	assert.ErrorIs(t, err, model.ErrValidation)

	var fit forecast.Fit
	for i := 1; i <= 5; i++ {
		km := 40000 + float64(i)*1000
		fit, err = e.RecordOutcome(ctx, forecast.Observation{TrainsetID: fleettest.ID(i), ServiceHours: 20 - km/10000})
		require.NoError(t, err)
	}
	require.True(t, fit.Trained)
	assert.Len(t, e.Outcomes(), 5)
	assert.Equal(t, 5.0, testutil.ToFloat64(forecastSamples))

	after, err := e.Plan(ctx, 20)
	require.NoError(t, err)
	assert.NotEqual(t, before.Fingerprint, after.Fingerprint)
	for _, id := range after.WithStatus(model.StatusService) {
		d, _ := after.Decision(id)
		var km float64
		for _, ts := range fleettest.Fleet(25).Trainsets {
			if ts.ID == id {
				km = ts.Mileage
			}
		}
		assert.InDelta(t, 20-km/10000, d.EstimatedServiceHours, 1e-6, id)
	}
}

func TestSimulate_CertificateExpiry(t *testing.T) {
	e, _ := newEngine(t, defaultConfig(), model.Snapshot{})
	s := fleettest.Fleet(25)
	res, err := e.Simulate(context.Background(), simulate.Request{
		Snapshot:      s,
		Modifications: []simulate.Modification{{TrainsetID: fleettest.ID(3), Attribute: simulate.AttrCertificateExpired, Value: "rolling_stock"}},
		Demand:        20,
	})
	require.NoError(t, err)

	before, _ := res.Baseline.Decision(fleettest.ID(3))
	after, _ := res.Simulated.Decision(fleettest.ID(3))
	assert.NotEqual(t, model.StatusMaintenance, before.Status)
	assert.Equal(t, model.StatusMaintenance, after.Status)
	assert.Equal(t, []string{fleettest.ID(3)}, res.Diff.RemovedFromService)
	assert.Len(t, res.Diff.AddedToService, 1)

	recs, err := e.History(context.Background(), history.Query{})
	require.NoError(t, err)
	assert.Empty(t, recs, "simulations must not reach the history")
	assert.Equal(t, 1.0, testutil.ToFloat64(runsTotal.WithLabelValues("simulate")))
}

func TestSimulate_UsesStoreAndLatestBaseline(t *testing.T) {
	s := fleettest.Fleet(25)
	e, _ := newEngine(t, defaultConfig(), s)
	ctx := context.Background()
	planned, err := e.Plan(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, 20, planned.Demand)

	res, err := e.Simulate(ctx, simulate.Request{
		Scenario: &simulate.Scenario{Name: simulate.ScenarioEmergencyMaintenance, Params: map[string]any{"trainset_ids": []string{fleettest.ID(1)}}},
	})
	require.NoError(t, err)
	latest, _ := e.Latest(ctx)
	assert.Equal(t, latest.DecisionSet(), res.Baseline)
	assert.Equal(t, []string{fleettest.ID(1)}, res.Diff.RemovedFromService)
}

func TestSimulate_RecomputesStaleBaseline(t *testing.T) {
	e, _ := newEngine(t, defaultConfig(), fleettest.Fleet(25))
	ctx := context.Background()
	_, err := e.Plan(ctx, 20)
	require.NoError(t, err)
	_, err = e.ApplyOverride(ctx, fleettest.ID(1), model.StatusMaintenance, "wheel lathe", "supervisor")
	require.NoError(t, err)

	res, err := e.Simulate(ctx, simulate.Request{Demand: 20})
	require.NoError(t, err)
	assert.Empty(t, res.Modifications)
	assert.True(t, res.Diff.Empty(), "unmodified simulation must match its baseline: %+v", res.Diff)
	latest, _ := e.Latest(ctx)
	assert.NotEqual(t, latest.Fingerprint, res.Baseline.Fingerprint)
	d, _ := res.Baseline.Decision(fleettest.ID(1))
	assert.Equal(t, model.StatusMaintenance, d.Status)
}

func TestSimulate_RejectsDemandOutOfBounds(t *testing.T) {
	e, _ := newEngine(t, defaultConfig(), model.Snapshot{})
	_, err := e.Simulate(context.Background(), simulate.Request{Snapshot: fleettest.Fleet(25), Demand: 2})
	assert.ErrorIs(t, err, model.ErrValidation)
}

func TestScore(t *testing.T) {
	e, _ := newEngine(t, defaultConfig(), model.Snapshot{})
	s := fleetWithExpired()
	vec, err := e.Score(s, fleettest.ID(7))
	require.NoError(t, err)
	assert.Equal(t, fleettest.ID(7), vec.TrainsetID)
	assert.Len(t, vec.Components, len(model.Components))

	_, err = e.Score(s, "TS-999")
	assert.ErrorIs(t, err, model.ErrUnknownTrainset)
}

func TestValidate(t *testing.T) {
	e, _ := newEngine(t, defaultConfig(), model.Snapshot{})
	m, err := e.Validate(fleetWithExpired())
	require.NoError(t, err)
	assert.Len(t, m.Ineligible(), 3)

	_, err = e.Validate(model.Snapshot{})
	assert.ErrorIs(t, err, model.ErrValidation)
}

func TestOverrides(t *testing.T) {
	e, st := newEngine(t, defaultConfig(), fleettest.Fleet(5))
	ctx := context.Background()
	bus := eventbus.New()
	sub := bus.Subscribe()
	e.SetBus(bus)

	_, err := e.ApplyOverride(ctx, "TS-404", model.StatusService, "", "ops")
	assert.ErrorIs(t, err, model.ErrUnknownTrainset)

	o, err := e.ApplyOverride(ctx, fleettest.ID(2), model.StatusService, "event special", "ops")
	require.NoError(t, err)
	ev := (<-sub).(coreevents.OverrideEvent)
	assert.Equal(t, coreevents.OverrideApplied, ev.Action)
	assert.Equal(t, o.ID, ev.Override.ID)
	assert.Equal(t, 1.0, testutil.ToFloat64(overridesActive))

	got, ok := e.Override(fleettest.ID(2))
	require.True(t, ok)
	assert.Equal(t, o, got)
	snap, _ := st.Snapshot(ctx)
	assert.Len(t, snap.Overrides, 1)

	ok, err = e.RemoveOverride(ctx, fleettest.ID(2))
	require.NoError(t, err)
	assert.True(t, ok)
	ev = (<-sub).(coreevents.OverrideEvent)
	assert.Equal(t, coreevents.OverrideRemoved, ev.Action)
	assert.Empty(t, e.Overrides())
	assert.Len(t, e.OverrideHistory(fleettest.ID(2)), 1)

	ok, err = e.RemoveOverride(ctx, fleettest.ID(2))
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestDetectConflicts(t *testing.T) {
	e, _ := newEngine(t, defaultConfig(), model.Snapshot{})
	s := fleettest.Fleet(3)
	s.Certificates[0].End = s.TakenAt.Add(-time.Hour)
	s.Certificates[0].Start = s.TakenAt.Add(-48 * time.Hour)
	got, err := e.DetectConflicts(s)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, model.ConflictStaleCertificate, got[0].Kind)
	assert.Equal(t, 1.0, testutil.ToFloat64(conflictsTotal.WithLabelValues(string(model.ConflictStaleCertificate))))

	none, err := e.DetectConflicts(fleettest.Fleet(3))
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestConfig_Defaults(t *testing.T) {
	var c Config
	c.SetDefaults()
	require.NoError(t, c.Validate())
	assert.Equal(t, 15, c.MinServiceDemand)
	assert.Equal(t, 25, c.MaxServiceDemand)
	assert.Equal(t, 20, c.DefaultServiceDemand)
	assert.Equal(t, 72.0, c.CleaningIntervalHours)
	assert.Equal(t, 16.0, c.EstimatedServiceHours)

	c = Config{MinServiceDemand: 2, MaxServiceDemand: 8}
	c.SetDefaults()
	assert.Equal(t, 8, c.DefaultServiceDemand)
}

func TestConfig_Validate(t *testing.T) {
	cases := map[string]func(*Config){
		"negative weight":    func(c *Config) { c.Weights.BrandingUrgency = -1 },
		"zero threshold":     func(c *Config) { c.MileageDeviationThreshold = 0 },
		"inverted bounds":    func(c *Config) { c.MinServiceDemand, c.MaxServiceDemand = 10, 5 },
		"default outside":    func(c *Config) { c.DefaultServiceDemand = 30 },
		"negative trace":     func(c *Config) { c.TraceComponents = -1 },
		"unknown curve":      func(c *Config) { c.MileageCurve = "cubic" },
		"negative min":       func(c *Config) { c.MinServiceDemand = -1 },
		"negative est hour":  func(c *Config) { c.EstimatedServiceHours = -1 },
		"est hour above day": func(c *Config) { c.EstimatedServiceHours = 30 },
		"forecast window":    func(c *Config) { c.ForecastMinSamples, c.ForecastWindow = 50, 10 },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			c := DefaultConfig()
			mutate(&c)
			assert.ErrorIs(t, c.Validate(), model.ErrValidation)
		})
	}
}

// randomFleet builds a fleet of n trainsets with seeded blockers and
// overrides.
func randomFleet(n int, seed int64) model.Snapshot {
	r := rand.New(rand.NewSource(seed))
	s := fleettest.Fleet(n)
	for i := 1; i <= n; i++ {
		id := fleettest.ID(i)
		fleettest.SetMileage(&s, id, float64(30000+r.Intn(40000)))
		switch r.Intn(8) {
		case 0:
			fleettest.Expire(&s, id, model.MandatoryCertificates[r.Intn(len(model.MandatoryCertificates))])
		case 1:
			fleettest.OpenJob(&s, id, 1+r.Intn(5))
		case 2:
			fleettest.SetStatus(&s, id, model.StatusOutOfService)
		}
		if r.Intn(10) == 0 {
			s.Overrides = append(s.Overrides, model.Override{
				ID:         fmt.Sprintf("o-%d", i),
				TrainsetID: id,
				Status:     model.AssignableStatuses[r.Intn(len(model.AssignableStatuses))],
				CreatedAt:  fleettest.Epoch.Add(-time.Hour),
			})
		}
	}
	return s
}

func TestEngine_Properties(t *testing.T) {
	params := gopter.DefaultTestParameters()
	params.MinSuccessfulTests = 60
	properties := gopter.NewProperties(params)
	fleet := gen.IntRange(1, 30)
	demand := gen.IntRange(0, 35)
	seed := gen.Int64()

	e, _ := newEngine(t, wideConfig(), model.Snapshot{})
	ctx := context.Background()
	optimize := func(s model.Snapshot, d int) model.DecisionSet {
		ds, err := e.Optimize(ctx, s, d, nil)
		if err != nil && !errors.Is(err, model.ErrInfeasibleDemand) {
			t.Fatalf("optimize: %v", err)
		}
		return ds
	}

	properties.Property("one decision per trainset", prop.ForAll(
		func(n, d int, sd int64) bool {
			ds := optimize(randomFleet(n, sd), d)
			return len(ds.Decisions) == n
		}, fleet, demand, seed))

	properties.Property("identical arguments give identical decision sets", prop.ForAll(
		func(n, d int, sd int64) bool {
			s := randomFleet(n, sd)
			return reflect.DeepEqual(optimize(s, d), optimize(s, d))
		}, fleet, demand, seed))

	properties.Property("blocked trainsets never serve unless forced", prop.ForAll(
		func(n, d int, sd int64) bool {
			for _, dec := range optimize(randomFleet(n, sd), d).Decisions {
				if len(dec.BlockingReasons) > 0 && dec.Status == model.StatusService && !dec.Pinned {
					return false
				}
			}
			return true
		}, fleet, demand, seed))

	properties.Property("overrides always win", prop.ForAll(
		func(n, d int, sd int64) bool {
			s := randomFleet(n, sd)
			ds := optimize(s, d)
			for id, o := range model.ActiveOverrides(s.Overrides) {
				dec, ok := ds.Decision(id)
				if !ok || dec.Status != o.Status || !dec.Pinned {
					return false
				}
			}
			return true
		}, fleet, demand, seed))

	properties.Property("simulation leaves later optimizations unchanged", prop.ForAll(
		func(n, d int, sd int64) bool {
			s := randomFleet(n, sd)
			before := optimize(s, d)
			target := fleettest.ID(1 + int(uint64(sd)%uint64(n)))
			_, err := e.Simulate(ctx, simulate.Request{
				Snapshot: s,
				Modifications: []simulate.Modification{
					{TrainsetID: target, Attribute: simulate.AttrStatus, Value: "out_of_service"},
					{TrainsetID: target, Attribute: simulate.AttrMileage, Value: 1.0},
				},
				Demand: max(d, 1),
			})
			if err != nil {
				return false
			}
			return reflect.DeepEqual(before, optimize(s, d))
		}, fleet, demand, seed))

	properties.TestingRun(t)
}
