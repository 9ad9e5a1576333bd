// Package scenarios replays YAML fleet scenarios through the induction
// engine and checks the resulting decision set.
package scenarios

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/kilianp07/induction/core/model"
	"github.com/kilianp07/induction/internal/fleettest"
)

// ExpiryDef invalidates one certificate.
type ExpiryDef struct {
	Trainset    string `yaml:"trainset"`
	Certificate string `yaml:"certificate"`
}

// JobDef opens a job card.
type JobDef struct {
	Trainset string `yaml:"trainset"`
	Priority int    `yaml:"priority"`
}

// OverrideDef pins a trainset.
type OverrideDef struct {
	Trainset string `yaml:"trainset"`
	Status   string `yaml:"status"`
	Reason   string `yaml:"reason,omitempty"`
}

// Expected describes the decision set a scenario must produce.
type Expected struct {
	Service         int      `yaml:"service"`
	Shortfall       int      `yaml:"shortfall"`
	Maintenance     []string `yaml:"maintenance,omitempty"`
	ServiceIncludes []string `yaml:"service_includes,omitempty"`
	ServiceExcludes []string `yaml:"service_excludes,omitempty"`
	Conflicts       []string `yaml:"conflicts,omitempty"`
}

// Scenario is one replayable fleet state.
type Scenario struct {
	Name        string             `yaml:"name"`
	Description string             `yaml:"description,omitempty"`
	Fleet       int                `yaml:"fleet"`
	Demand      int                `yaml:"demand"`
	Expire      []ExpiryDef        `yaml:"expire,omitempty"`
	Jobs        []JobDef           `yaml:"jobs,omitempty"`
	Mileage     map[string]float64 `yaml:"mileage,omitempty"`
	Faulted     []string           `yaml:"faulted,omitempty"`
	Overrides   []OverrideDef      `yaml:"overrides,omitempty"`
	Expected    Expected           `yaml:"expected"`
}

// Load reads a scenario file.
func Load(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var sc Scenario
	if err := yaml.Unmarshal(data, &sc); err != nil {
		return nil, err
	}
	if sc.Fleet <= 0 {
		return nil, fmt.Errorf("scenario %s: fleet must be positive", path)
	}
	return &sc, nil
}

// Snapshot builds the scenario's fleet state.
func (sc *Scenario) Snapshot() model.Snapshot {
	s := fleettest.Fleet(sc.Fleet)
	for _, e := range sc.Expire {
		fleettest.Expire(&s, e.Trainset, model.CertificateType(e.Certificate))
	}
	for _, j := range sc.Jobs {
		fleettest.OpenJob(&s, j.Trainset, j.Priority)
	}
	for id, km := range sc.Mileage {
		fleettest.SetMileage(&s, id, km)
	}
	for _, id := range sc.Faulted {
		fleettest.SetStatus(&s, id, model.StatusOutOfService)
	}
	return s
}

// OverrideList converts the scenario overrides, ordered as written.
func (sc *Scenario) OverrideList() []model.Override {
	out := make([]model.Override, len(sc.Overrides))
	for i, o := range sc.Overrides {
		out[i] = model.Override{
			ID:         fmt.Sprintf("%s-ovr-%d", sc.Name, i+1),
			TrainsetID: o.Trainset,
			Status:     model.Status(o.Status),
			Reason:     o.Reason,
			Author:     "qa",
			CreatedAt:  fleettest.Epoch.Add(-time.Duration(len(sc.Overrides)-i) * time.Minute),
		}
	}
	return out
}
