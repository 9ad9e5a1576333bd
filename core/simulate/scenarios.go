package simulate

import (
	"fmt"
	"sort"

	"github.com/kilianp07/induction/core/model"
)

// Named scenario presets.
const (
	ScenarioCertificateExpiry    = "certificate_expiry"
	ScenarioEmergencyMaintenance = "emergency_maintenance"
	ScenarioEquipmentFailure     = "equipment_failure"
	ScenarioWeatherImpact        = "weather_impact"
	ScenarioIncreasedDemand      = "increased_demand"
)

// Scenario is a named, parameterized preset that expands into modifications.
type Scenario struct {
	Name   string         `json:"name"`
	Params map[string]any `json:"params,omitempty"`
}

// Expansion is the outcome of expanding a scenario against a snapshot.
type Expansion struct {
	Modifications []Modification
	// Demand replaces the requested service demand when non-zero.
	Demand int
}

type certificateExpiryParams struct {
	TrainsetIDs     []string `mapstructure:"trainset_ids"`
	CertificateType string   `mapstructure:"certificate_type"`
}

type emergencyParams struct {
	TrainsetIDs []string `mapstructure:"trainset_ids"`
	Description string   `mapstructure:"description"`
}

type failureParams struct {
	TrainsetID  string `mapstructure:"trainset_id"`
	FailureType string `mapstructure:"failure_type"`
}

type weatherParams struct {
	AffectedBays []string `mapstructure:"affected_bays"`
}

type demandParams struct {
	ServiceDemand int `mapstructure:"service_demand"`
}

// Scenarios lists the known scenario names.
func Scenarios() []string {
	names := []string{ScenarioCertificateExpiry, ScenarioEmergencyMaintenance, ScenarioEquipmentFailure, ScenarioWeatherImpact, ScenarioIncreasedDemand}
	sort.Strings(names)
	return names
}

func badParams(name string, err error) error {
	return &model.ValidationError{Field: "scenario.params", Reason: fmt.Sprintf("%s: %v", name, err)}
}

// Expand turns a scenario into modifications against s.
func Expand(sc Scenario, s model.Snapshot) (Expansion, error) {
	switch sc.Name {
	case ScenarioCertificateExpiry:
		p := certificateExpiryParams{CertificateType: string(model.CertRollingStock)}
		if err := decode(sc.Params, &p); err != nil {
			return Expansion{}, badParams(sc.Name, err)
		}
		if len(p.TrainsetIDs) == 0 {
			return Expansion{}, badParams(sc.Name, fmt.Errorf("trainset_ids required"))
		}
		var out Expansion
		for _, id := range p.TrainsetIDs {
			out.Modifications = append(out.Modifications, Modification{TrainsetID: id, Attribute: AttrCertificateExpired, Value: p.CertificateType})
		}
		return out, nil

	case ScenarioEmergencyMaintenance:
		p := emergencyParams{Description: "emergency maintenance"}
		if err := decode(sc.Params, &p); err != nil {
			return Expansion{}, badParams(sc.Name, err)
		}
		if len(p.TrainsetIDs) == 0 {
			return Expansion{}, badParams(sc.Name, fmt.Errorf("trainset_ids required"))
		}
		var out Expansion
		for _, id := range p.TrainsetIDs {
			out.Modifications = append(out.Modifications, Modification{
				TrainsetID: id, Attribute: AttrJobCardOpen,
				Value: map[string]any{"priority": 1, "description": p.Description},
			})
		}
		return out, nil

	case ScenarioEquipmentFailure:
		p := failureParams{FailureType: "equipment failure"}
		if err := decode(sc.Params, &p); err != nil {
			return Expansion{}, badParams(sc.Name, err)
		}
		if p.TrainsetID == "" {
			return Expansion{}, badParams(sc.Name, fmt.Errorf("trainset_id required"))
		}
		return Expansion{Modifications: []Modification{
			{TrainsetID: p.TrainsetID, Attribute: AttrStatus, Value: string(model.StatusOutOfService)},
			{TrainsetID: p.TrainsetID, Attribute: AttrJobCardOpen, Value: map[string]any{"priority": 1, "description": p.FailureType}},
		}}, nil

	case ScenarioWeatherImpact:
		var p weatherParams
		if err := decode(sc.Params, &p); err != nil {
			return Expansion{}, badParams(sc.Name, err)
		}
		bays := make(map[string]struct{}, len(p.AffectedBays))
		for _, b := range p.AffectedBays {
			bays[b] = struct{}{}
		}
		var out Expansion
		idx := s.Index()
		for _, id := range idx.IDs() {
			v, _ := idx.View(id)
			if _, hit := bays[v.Trainset.StablingBay]; hit {
				out.Modifications = append(out.Modifications, Modification{
					TrainsetID: id, Attribute: AttrJobCardOpen,
					Value: map[string]any{"priority": 2, "description": "weather inspection"},
				})
			}
		}
		return out, nil

	case ScenarioIncreasedDemand:
		var p demandParams
		if err := decode(sc.Params, &p); err != nil {
			return Expansion{}, badParams(sc.Name, err)
		}
		if p.ServiceDemand <= 0 {
			return Expansion{}, badParams(sc.Name, fmt.Errorf("service_demand must be positive"))
		}
		return Expansion{Demand: p.ServiceDemand}, nil
	}
	return Expansion{}, &model.ValidationError{Field: "scenario.name", Reason: fmt.Sprintf("unknown scenario %q", sc.Name)}
}
