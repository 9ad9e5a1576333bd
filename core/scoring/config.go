package scoring

import (
	"fmt"
	"time"

	"github.com/kilianp07/induction/core/model"
)

// Weights are the combination weights of the objective components.
type Weights struct {
	MileageBalance    float64 `json:"mileage_balance"`
	BrandingUrgency   float64 `json:"branding_urgency"`
	CleaningReadiness float64 `json:"cleaning_readiness"`
	StablingCost      float64 `json:"stabling_cost"`
}

// Of returns the weight of the named component.
func (w Weights) Of(name model.ComponentName) float64 {
	switch name {
	case model.MileageBalance:
		return w.MileageBalance
	case model.BrandingUrgency:
		return w.BrandingUrgency
	case model.CleaningReadiness:
		return w.CleaningReadiness
	case model.StablingCost:
		return w.StablingCost
	}
	return 0
}

func (w Weights) zero() bool {
	return w.MileageBalance == 0 && w.BrandingUrgency == 0 && w.CleaningReadiness == 0 && w.StablingCost == 0
}

// DefaultWeights favours mileage equalization and branding exposure.
func DefaultWeights() Weights {
	return Weights{MileageBalance: 0.4, BrandingUrgency: 0.3, CleaningReadiness: 0.15, StablingCost: 0.15}
}

// Config parameterizes the scorer.
type Config struct {
	Weights Weights
	// MileageDeviationThreshold is the relative deviation from the fleet mean
	// tolerated before the mileage component moves away from zero.
	MileageDeviationThreshold float64
	// MileageCurve names the penalty curve applied past the threshold.
	MileageCurve string
	// BrandingCurve names the time-pressure curve for branding urgency.
	BrandingCurve string
	// BrandingDecay is the steepness of the exponential branding curve.
	BrandingDecay float64
	// CleaningInterval is the time after which a trainset is due for cleaning.
	CleaningInterval time.Duration
}

// DefaultConfig returns a complete configuration.
func DefaultConfig() Config {
	return Config{
		Weights:                   DefaultWeights(),
		MileageDeviationThreshold: 0.10,
		MileageCurve:              CurveLinear,
		BrandingCurve:             CurveLinear,
		BrandingDecay:             2,
		CleaningInterval:          72 * time.Hour,
	}
}

// SetDefaults fills unset fields. Weights are defaulted only when all of them
// are zero.
func (c *Config) SetDefaults() {
	d := DefaultConfig()
	if c.Weights.zero() {
		c.Weights = d.Weights
	}
	if c.MileageDeviationThreshold == 0 {
		c.MileageDeviationThreshold = d.MileageDeviationThreshold
	}
	if c.MileageCurve == "" {
		c.MileageCurve = d.MileageCurve
	}
	if c.BrandingCurve == "" {
		c.BrandingCurve = d.BrandingCurve
	}
	if c.BrandingDecay == 0 {
		c.BrandingDecay = d.BrandingDecay
	}
	if c.CleaningInterval == 0 {
		c.CleaningInterval = d.CleaningInterval
	}
}

// Validate rejects incomplete or inconsistent configuration.
func (c Config) Validate() error {
	for _, name := range model.Components {
		if c.Weights.Of(name) < 0 {
			return &model.ValidationError{Field: "weights." + string(name), Reason: "must not be negative"}
		}
	}
	if c.Weights.zero() {
		return &model.ValidationError{Field: "weights", Reason: "at least one weight must be positive"}
	}
	if c.MileageDeviationThreshold <= 0 {
		return &model.ValidationError{Field: "mileage_deviation_threshold", Reason: "must be positive"}
	}
	if _, ok := mileageCurves[c.MileageCurve]; !ok {
		return &model.ValidationError{Field: "mileage_curve", Reason: fmt.Sprintf("unknown curve %q", c.MileageCurve)}
	}
	if _, ok := brandingCurves[c.BrandingCurve]; !ok {
		return &model.ValidationError{Field: "branding_curve", Reason: fmt.Sprintf("unknown curve %q", c.BrandingCurve)}
	}
	if c.BrandingDecay <= 0 {
		return &model.ValidationError{Field: "branding_decay", Reason: "must be positive"}
	}
	if c.CleaningInterval <= 0 {
		return &model.ValidationError{Field: "cleaning_interval", Reason: "must be positive"}
	}
	return nil
}
