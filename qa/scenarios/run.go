package scenarios

import (
	"context"
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/kilianp07/induction/core/engine"
	"github.com/kilianp07/induction/core/model"
	"github.com/kilianp07/induction/infra/logger"
	infrastore "github.com/kilianp07/induction/infra/store"
)

// RunScenario optimizes the scenario fleet and fails t when the decision set
// differs from the expectation.
func RunScenario(t *testing.T, sc *Scenario) model.DecisionSet {
	t.Helper()
	engine.ResetMetrics(prometheus.NewRegistry())
	cfg := engine.DefaultConfig()
	cfg.SetDefaults()

	snap := sc.Snapshot()
	eng, err := engine.New(context.Background(), cfg, infrastore.NewMemoryStore(snap), logger.NopLogger{})
	if err != nil {
		t.Fatalf("engine: %v", err)
	}
	ds, err := eng.Optimize(context.Background(), snap, eng.ResolveDemand(sc.Demand), sc.OverrideList())
	if err != nil && !errors.Is(err, model.ErrInfeasibleDemand) {
		t.Fatalf("optimize: %v", err)
	}
	if (err != nil) != (sc.Expected.Shortfall > 0) {
		t.Errorf("infeasible error = %v, expected shortfall %d", err, sc.Expected.Shortfall)
	}

	service := ds.WithStatus(model.StatusService)
	if len(service) != sc.Expected.Service {
		t.Errorf("service count = %d, want %d", len(service), sc.Expected.Service)
	}
	if ds.Shortfall != sc.Expected.Shortfall {
		t.Errorf("shortfall = %d, want %d", ds.Shortfall, sc.Expected.Shortfall)
	}
	for _, id := range sc.Expected.Maintenance {
		if d, ok := ds.Decision(id); !ok || d.Status != model.StatusMaintenance {
			t.Errorf("%s: status %s, want maintenance", id, d.Status)
		}
	}
	for _, id := range sc.Expected.ServiceIncludes {
		if d, ok := ds.Decision(id); !ok || d.Status != model.StatusService {
			t.Errorf("%s: status %s, want revenue_service", id, d.Status)
		}
	}
	for _, id := range sc.Expected.ServiceExcludes {
		if d, ok := ds.Decision(id); ok && d.Status == model.StatusService {
			t.Errorf("%s: unexpectedly in revenue service", id)
		}
	}
	kinds := make(map[string]bool, len(ds.Conflicts))
	for _, c := range ds.Conflicts {
		kinds[string(c.Kind)] = true
	}
	for _, k := range sc.Expected.Conflicts {
		if !kinds[k] {
			t.Errorf("missing %s conflict in %v", k, ds.Conflicts)
		}
	}
	return ds
}
