package trace

import (
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/kilianp07/induction/core/eligibility"
	"github.com/kilianp07/induction/core/model"
	"github.com/kilianp07/induction/core/optimizer"
	"github.com/kilianp07/induction/core/scoring"
	"github.com/kilianp07/induction/internal/fleettest"
)

type run struct {
	plan   optimizer.Plan
	elig   eligibility.Map
	scores map[string]model.ScoreVector
}

func plan(t *testing.T, s model.Snapshot, demand int, ovs map[string]model.Override) run {
	t.Helper()
	sc, err := scoring.New(scoring.DefaultConfig())
	if err != nil {
		t.Fatal(err)
	}
	elig := eligibility.New().Validate(s)
	scores := sc.ScoreAll(s, elig.Eligible())
	p := optimizer.Optimize(optimizer.Input{Trainsets: s.Trainsets, Eligibility: elig, Scores: scores, Demand: demand, Overrides: ovs})
	return run{plan: p, elig: elig, scores: scores}
}

func find(entries []model.TraceEntry, kind model.TraceKind) []model.TraceEntry {
	var out []model.TraceEntry
	for _, e := range entries {
		if e.Kind == kind {
			out = append(out, e)
		}
	}
	return out
}

func TestOrdinal(t *testing.T) {
	cases := map[int]string{1: "1st", 2: "2nd", 3: "3rd", 4: "4th", 11: "11th", 12: "12th", 13: "13th", 21: "21st", 22: "22nd", 101: "101st", 111: "111th"}
	for n, want := range cases {
		if got := Ordinal(n); got != want {
			t.Errorf("Ordinal(%d) = %s, want %s", n, got, want)
		}
	}
}

func TestExplain_Ineligible(t *testing.T) {
	s := fleettest.Fleet(5)
	fleettest.Expire(&s, fleettest.ID(2), model.CertSignalling)
	fleettest.OpenJob(&s, fleettest.ID(2), 1)
	r := plan(t, s, 3, nil)
	ds := New(Options{}).Decisions(r.plan, r.elig, r.scores)
	if len(ds) != 5 {
		t.Fatalf("expected 5 decisions got %d", len(ds))
	}
	d := ds[1]
	if d.TrainsetID != fleettest.ID(2) || d.Status != model.StatusMaintenance {
		t.Fatalf("unexpected decision %+v", d)
	}
	blocking := find(d.Trace, model.TraceBlocking)
	if len(blocking) != 2 || blocking[0].Code != string(model.CertificateExpired(model.CertSignalling)) || blocking[0].Detail != "primary blocking reason" {
		t.Fatalf("blocking trace = %+v", blocking)
	}
	if d.Scores != nil || len(find(d.Trace, model.TraceComponent)) != 0 {
		t.Fatal("ineligible decision must not carry score components")
	}
}

func TestExplain_RankAndComponents(t *testing.T) {
	s := fleettest.Fleet(20)
	r := plan(t, s, 10, nil)
	ds := New(Options{TopComponents: 2, EstimatedServiceHours: 16}).Decisions(r.plan, r.elig, r.scores)
	for _, d := range ds {
		rank := find(d.Trace, model.TraceRank)
		if len(rank) == 0 || !strings.HasSuffix(rank[0].Detail, "of 20 eligible by combined score") {
			t.Fatalf("%s: rank trace = %+v", d.TrainsetID, rank)
		}
		if !strings.HasPrefix(rank[0].Detail, "ranked "+Ordinal(d.Rank)) {
			t.Fatalf("%s: rank %d not in %q", d.TrainsetID, d.Rank, rank[0].Detail)
		}
		comps := find(d.Trace, model.TraceComponent)
		if len(comps) != 2 {
			t.Fatalf("%s: expected 2 components got %d", d.TrainsetID, len(comps))
		}
		if abs(comps[0].Value) < abs(comps[1].Value) {
			t.Fatalf("%s: components not ordered by magnitude", d.TrainsetID)
		}
		if !strings.Contains(comps[0].Detail, "contributed") || !strings.HasSuffix(comps[0].Detail, "total") {
			t.Fatalf("unexpected component detail %q", comps[0].Detail)
		}
		switch d.Status {
		case model.StatusService:
			if d.EstimatedServiceHours != 16 {
				t.Fatalf("%s: service hours %v", d.TrainsetID, d.EstimatedServiceHours)
			}
		case model.StatusStandby:
			if d.EstimatedServiceHours != 0 {
				t.Fatalf("%s: standby carries service hours", d.TrainsetID)
			}
		}
	}
}

func TestExplain_ServiceHoursFromMileage(t *testing.T) {
	s := fleettest.Fleet(20)
	r := plan(t, s, 10, nil)
	tr := New(Options{EstimatedServiceHours: 16}).WithServiceHours(func(km float64) float64 { return km / 10000 })
	for _, d := range tr.Decisions(r.plan, r.elig, r.scores) {
		if d.Status != model.StatusService {
			continue
		}
		var km float64
		for _, ts := range s.Trainsets {
			if ts.ID == d.TrainsetID {
				km = ts.Mileage
			}
		}
		if d.EstimatedServiceHours != km/10000 {
			t.Fatalf("%s: service hours %v, want %v", d.TrainsetID, d.EstimatedServiceHours, km/10000)
		}
	}
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}

func TestExplain_OverrideProvenance(t *testing.T) {
	s := fleettest.Fleet(4)
	fleettest.Expire(&s, fleettest.ID(3), model.CertTelecom)
	at := fleettest.Epoch.Add(-time.Hour)
	ovs := map[string]model.Override{
		fleettest.ID(3): {ID: "o1", TrainsetID: fleettest.ID(3), Status: model.StatusService, Reason: "event special", Author: "ops", CreatedAt: at},
	}
	r := plan(t, s, 2, ovs)
	ds := New(Options{}).Decisions(r.plan, r.elig, r.scores)
	d := ds[2]
	if !d.Pinned || d.Status != model.StatusService || d.Override == nil || d.Override.ID != "o1" {
		t.Fatalf("unexpected decision %+v", d)
	}
	ov := find(d.Trace, model.TraceOverride)
	if len(ov) != 1 || ov[0].Detail != "forced to revenue_service by ops at 2026-01-15T04:00:00Z: event special" {
		t.Fatalf("override trace = %+v", ov)
	}
	warn := find(d.Trace, model.TraceWarning)
	if len(warn) != 1 || warn[0].Code != CodeContradicts {
		t.Fatalf("expected contradiction warning got %+v", warn)
	}
}

func TestExplain_Shortfall(t *testing.T) {
	s := fleettest.Fleet(3)
	r := plan(t, s, 5, nil)
	for _, d := range New(Options{}).Decisions(r.plan, r.elig, r.scores) {
		sf := find(d.Trace, model.TraceShortfall)
		if len(sf) != 1 || sf[0].Value != 2 {
			t.Fatalf("%s: shortfall trace = %+v", d.TrainsetID, sf)
		}
	}
}

func TestExplain_TieBreak(t *testing.T) {
	p := optimizer.Optimize(optimizer.Input{
		Trainsets:   []model.Trainset{{ID: "A", Mileage: 10}, {ID: "B", Mileage: 20}},
		Eligibility: eligibility.Map{"A": {Eligible: true}, "B": {Eligible: true}},
		Scores:      map[string]model.ScoreVector{"A": {Total: 1}, "B": {Total: 1}},
		Demand:      1,
	})
	ds := New(Options{}).Decisions(p, eligibility.Map{"A": {Eligible: true}, "B": {Eligible: true}}, nil)
	for _, d := range ds {
		var tie *model.TraceEntry
		for i, e := range d.Trace {
			if e.Code == CodeTieBreak {
				tie = &d.Trace[i]
			}
		}
		if tie == nil || !strings.Contains(tie.Detail, "lower cumulative mileage") {
			t.Fatalf("%s: missing tie-break trace in %+v", d.TrainsetID, d.Trace)
		}
	}
}

func TestDecisions_Deterministic(t *testing.T) {
	s := fleettest.Fleet(12)
	fleettest.Expire(&s, fleettest.ID(4), model.CertRollingStock)
	tr := New(Options{EstimatedServiceHours: 16})
	a := plan(t, s, 8, nil)
	b := plan(t, s.Clone(), 8, nil)
	if !reflect.DeepEqual(tr.Decisions(a.plan, a.elig, a.scores), tr.Decisions(b.plan, b.elig, b.scores)) {
		t.Fatal("traces differ for identical input")
	}
}
