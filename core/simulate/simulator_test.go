package simulate

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/induction/core/eligibility"
	"github.com/kilianp07/induction/core/model"
	"github.com/kilianp07/induction/core/optimizer"
	"github.com/kilianp07/induction/core/scoring"
	"github.com/kilianp07/induction/core/trace"
	"github.com/kilianp07/induction/internal/fleettest"
)

func testPipeline(t *testing.T) Pipeline {
	t.Helper()
	sc, err := scoring.New(scoring.DefaultConfig())
	require.NoError(t, err)
	tr := trace.New(trace.Options{})
	return PipelineFunc(func(_ context.Context, s model.Snapshot, demand int) (model.DecisionSet, error) {
		elig := eligibility.New().Validate(s)
		scores := sc.ScoreAll(s, elig.Eligible())
		p := optimizer.Optimize(optimizer.Input{Trainsets: s.Trainsets, Eligibility: elig, Scores: scores, Demand: demand, Overrides: model.ActiveOverrides(s.Overrides)})
		ds := model.DecisionSet{GeneratedAt: s.TakenAt, Demand: demand, EligibleCount: p.EligibleCount, Shortfall: p.Shortfall, Decisions: tr.Decisions(p, elig, scores)}
		if p.Shortfall > 0 {
			return ds, &model.InfeasibleDemandError{Demand: demand, Supply: p.PoolSize, Shortfall: p.Shortfall}
		}
		return ds, nil
	})
}

func TestSimulate_CertificateExpiryPromotesOne(t *testing.T) {
	s := fleettest.Fleet(25)
	before := s.Clone()
	res, err := New(testPipeline(t)).Simulate(context.Background(), Request{
		Snapshot:      s,
		Modifications: []Modification{{TrainsetID: fleettest.ID(3), Attribute: AttrCertificateExpired, Value: "rolling_stock"}},
		Demand:        20,
	})
	require.NoError(t, err)
	assert.Equal(t, before, s, "simulation must not touch the input snapshot")

	b, _ := res.Baseline.Decision(fleettest.ID(3))
	require.Equal(t, model.StatusService, b.Status)
	got, _ := res.Simulated.Decision(fleettest.ID(3))
	assert.Equal(t, model.StatusMaintenance, got.Status)

	assert.Equal(t, []string{fleettest.ID(3)}, res.Diff.RemovedFromService)
	require.Len(t, res.Diff.AddedToService, 1)
	promoted, _ := res.Baseline.Decision(res.Diff.AddedToService[0])
	assert.Equal(t, model.StatusStandby, promoted.Status)
	assert.Equal(t, 21, promoted.Rank)
	assert.Len(t, res.Diff.StatusChanges, 2)
	require.Len(t, res.Diff.ReasonChanges, 1)
	assert.Equal(t, []model.Reason{model.CertificateExpired(model.CertRollingStock)}, res.Diff.ReasonChanges[0].After)
	assert.Equal(t, 1, res.Diff.CountDelta[model.StatusMaintenance])
	assert.Equal(t, -1, res.Diff.CountDelta[model.StatusStandby])
	assert.Zero(t, res.Diff.CountDelta[model.StatusService])
}

func TestSimulate_NoModificationsIsEmptyDiff(t *testing.T) {
	s := fleettest.Fleet(8)
	res, err := New(testPipeline(t)).Simulate(context.Background(), Request{Snapshot: s, Demand: 5})
	require.NoError(t, err)
	assert.True(t, res.Diff.Empty())
	assert.Equal(t, res.Baseline, res.Simulated)
}

func TestSimulate_ShortfallIsNotAnError(t *testing.T) {
	s := fleettest.Fleet(5)
	res, err := New(testPipeline(t)).Simulate(context.Background(), Request{
		Snapshot: s,
		Scenario: &Scenario{Name: ScenarioIncreasedDemand, Params: map[string]any{"service_demand": 7}},
		Demand:   4,
	})
	require.NoError(t, err)
	assert.Equal(t, 7, res.Demand)
	assert.Zero(t, res.Baseline.Shortfall)
	assert.Equal(t, 2, res.Simulated.Shortfall)
	assert.Equal(t, 2, res.Diff.ShortfallDelta)
	assert.Len(t, res.Diff.AddedToService, 1)
}

func TestSimulate_SuppliedBaseline(t *testing.T) {
	s := fleettest.Fleet(4)
	base := model.DecisionSet{Decisions: []model.Decision{{TrainsetID: fleettest.ID(1), Status: model.StatusMaintenance}}}
	res, err := New(testPipeline(t)).Simulate(context.Background(), Request{Snapshot: s, Demand: 2, Baseline: &base})
	require.NoError(t, err)
	assert.Equal(t, base, res.Baseline)
	assert.Contains(t, res.Diff.AddedToService, fleettest.ID(1))
	// TS-003 and TS-004 were unknown to the supplied baseline.
	assert.Len(t, res.Diff.StatusChanges, 4)
}

func TestSimulate_UnknownTrainset(t *testing.T) {
	_, err := New(testPipeline(t)).Simulate(context.Background(), Request{
		Snapshot:      fleettest.Fleet(2),
		Modifications: []Modification{{TrainsetID: "TS-999", Attribute: AttrMileage, Value: 10}},
		Demand:        1,
	})
	assert.True(t, errors.Is(err, model.ErrUnknownTrainset))
}

func TestApply_Attributes(t *testing.T) {
	s := fleettest.Fleet(3)
	s.Contracts = []model.BrandingContract{{ID: "BC1", TrainsetID: fleettest.ID(2), Target: 100, Start: fleettest.Epoch.AddDate(0, -1, 0), End: fleettest.Epoch.AddDate(0, 1, 0)}}
	fleettest.OpenJob(&s, fleettest.ID(1), 2)
	fleettest.Expire(&s, fleettest.ID(3), model.CertTelecom)
	cleaned := fleettest.Epoch.Add(-2 * time.Hour)

	out, err := Apply(s, []Modification{
		{TrainsetID: fleettest.ID(1), Attribute: AttrJobCardClosed},
		{TrainsetID: fleettest.ID(1), Attribute: AttrMileage, Value: "50000"},
		{TrainsetID: fleettest.ID(1), Attribute: AttrLastCleaned, Value: cleaned.Format(time.RFC3339)},
		{TrainsetID: fleettest.ID(2), Attribute: AttrBrandingExposure, Value: 80.0},
		{TrainsetID: fleettest.ID(2), Attribute: AttrStablingBay, Value: "B09"},
		{TrainsetID: fleettest.ID(2), Attribute: AttrJobCardOpen, Value: map[string]any{"priority": 3, "description": "HVAC"}},
		{TrainsetID: fleettest.ID(3), Attribute: AttrCertificateValid, Value: "telecom"},
		{TrainsetID: fleettest.ID(3), Attribute: AttrStatus, Value: "cleaning"},
	})
	require.NoError(t, err)

	elig := eligibility.New().Validate(out)
	assert.Empty(t, elig.Ineligible())
	assert.Equal(t, 50000.0, out.Trainsets[0].Mileage)
	assert.True(t, out.Trainsets[0].LastCleaned.Equal(cleaned))
	assert.Equal(t, 80.0, out.Contracts[0].Accumulated)
	assert.Equal(t, "B09", out.Trainsets[1].StablingBay)
	assert.Equal(t, model.StatusCleaning, out.Trainsets[2].Status)
	require.Len(t, out.JobCards, 2)
	assert.Equal(t, 3, out.JobCards[1].Priority)

	// input untouched
	assert.Equal(t, model.JobOpen, s.JobCards[0].Status)
	assert.Zero(t, s.Contracts[0].Accumulated)
}

func TestApply_InvalidValues(t *testing.T) {
	s := fleettest.Fleet(1)
	id := fleettest.ID(1)
	cases := map[string]Modification{
		"unknown attribute": {TrainsetID: id, Attribute: "colour", Value: "red"},
		"bad status":        {TrainsetID: id, Attribute: AttrStatus, Value: "parked"},
		"negative mileage":  {TrainsetID: id, Attribute: AttrMileage, Value: -1},
		"bad timestamp":     {TrainsetID: id, Attribute: AttrLastCleaned, Value: "yesterday"},
		"bad certificate":   {TrainsetID: id, Attribute: AttrCertificateExpired, Value: "radio"},
		"bad priority":      {TrainsetID: id, Attribute: AttrJobCardOpen, Value: 9},
		"missing card":      {TrainsetID: id, Attribute: AttrJobCardClosed, Value: "JC-X"},
		"no contract":       {TrainsetID: id, Attribute: AttrBrandingExposure, Value: 1},
	}
	for name, m := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Apply(s, []Modification{m})
			assert.True(t, errors.Is(err, model.ErrValidation), "got %v", err)
		})
	}
}

func TestExpand_Scenarios(t *testing.T) {
	s := fleettest.Fleet(4)
	exp, err := Expand(Scenario{Name: ScenarioCertificateExpiry, Params: map[string]any{"trainset_ids": []any{"TS-001", "TS-002"}, "certificate_type": "signalling"}}, s)
	require.NoError(t, err)
	require.Len(t, exp.Modifications, 2)
	assert.Equal(t, "signalling", exp.Modifications[1].Value)

	exp, err = Expand(Scenario{Name: ScenarioEquipmentFailure, Params: map[string]any{"trainset_id": "TS-004"}}, s)
	require.NoError(t, err)
	out, err := Apply(s, exp.Modifications)
	require.NoError(t, err)
	r := eligibility.New().Validate(out)[fleettest.ID(4)]
	assert.Equal(t, []model.Reason{model.ReasonJobCardOpen, model.ReasonHardwareFault}, r.Reasons)

	exp, err = Expand(Scenario{Name: ScenarioWeatherImpact, Params: map[string]any{"affected_bays": []string{"B02", "B03"}}}, s)
	require.NoError(t, err)
	require.Len(t, exp.Modifications, 2)
	assert.Equal(t, fleettest.ID(2), exp.Modifications[0].TrainsetID)

	exp, err = Expand(Scenario{Name: ScenarioEmergencyMaintenance, Params: map[string]any{"trainset_ids": []string{"TS-001"}}}, s)
	require.NoError(t, err)
	out, err = Apply(s, exp.Modifications)
	require.NoError(t, err)
	assert.False(t, eligibility.New().Validate(out)[fleettest.ID(1)].Eligible)

	_, err = Expand(Scenario{Name: "meteor"}, s)
	assert.True(t, errors.Is(err, model.ErrValidation))
	_, err = Expand(Scenario{Name: ScenarioIncreasedDemand}, s)
	assert.True(t, errors.Is(err, model.ErrValidation))
}
