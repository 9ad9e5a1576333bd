package engine

import (
	"fmt"
	"time"

	"github.com/kilianp07/induction/core/forecast"
	"github.com/kilianp07/induction/core/model"
	"github.com/kilianp07/induction/core/scoring"
	"github.com/kilianp07/induction/core/trace"
)

// Config holds the recognized engine options.
type Config struct {
	Weights                   scoring.Weights `json:"weights" yaml:"weights"`
	MileageDeviationThreshold float64         `json:"mileage_deviation_threshold" yaml:"mileage_deviation_threshold"`
	MinServiceDemand          int             `json:"min_service_demand" yaml:"min_service_demand"`
	MaxServiceDemand          int             `json:"max_service_demand" yaml:"max_service_demand"`
	// DefaultServiceDemand is used by planning cycles and by callers that
	// pass a zero demand.
	DefaultServiceDemand  int     `json:"default_service_demand" yaml:"default_service_demand"`
	MileageCurve          string  `json:"mileage_curve" yaml:"mileage_curve"`
	BrandingCurve         string  `json:"branding_curve" yaml:"branding_curve"`
	BrandingDecay         float64 `json:"branding_decay" yaml:"branding_decay"`
	CleaningIntervalHours float64 `json:"cleaning_interval_hours" yaml:"cleaning_interval_hours"`
	EstimatedServiceHours float64 `json:"estimated_service_hours" yaml:"estimated_service_hours"`
	// TraceComponents limits component entries per trace; zero keeps all.
	TraceComponents int `json:"trace_components" yaml:"trace_components"`
	// ForecastMinSamples outcomes are needed before service hours are
	// learned instead of using EstimatedServiceHours.
	ForecastMinSamples int `json:"forecast_min_samples" yaml:"forecast_min_samples"`
	ForecastWindow     int `json:"forecast_window" yaml:"forecast_window"`
}

// DefaultConfig returns a complete configuration.
func DefaultConfig() Config {
	sc := scoring.DefaultConfig()
	return Config{
		Weights:                   sc.Weights,
		MileageDeviationThreshold: sc.MileageDeviationThreshold,
		MinServiceDemand:          15,
		MaxServiceDemand:          25,
		DefaultServiceDemand:      20,
		MileageCurve:              sc.MileageCurve,
		BrandingCurve:             sc.BrandingCurve,
		BrandingDecay:             sc.BrandingDecay,
		CleaningIntervalHours:     sc.CleaningInterval.Hours(),
		EstimatedServiceHours:     16,
		ForecastMinSamples:        20,
		ForecastWindow:            1000,
	}
}

// SetDefaults fills unset fields. Demand bounds are defaulted together, only
// when both are zero.
func (c *Config) SetDefaults() {
	d := DefaultConfig()
	sc := c.ScoringConfig()
	sc.SetDefaults()
	c.Weights = sc.Weights
	c.MileageDeviationThreshold = sc.MileageDeviationThreshold
	c.MileageCurve = sc.MileageCurve
	c.BrandingCurve = sc.BrandingCurve
	c.BrandingDecay = sc.BrandingDecay
	c.CleaningIntervalHours = sc.CleaningInterval.Hours()
	if c.MinServiceDemand == 0 && c.MaxServiceDemand == 0 {
		c.MinServiceDemand = d.MinServiceDemand
		c.MaxServiceDemand = d.MaxServiceDemand
	}
	if c.DefaultServiceDemand == 0 {
		c.DefaultServiceDemand = clampInt(d.DefaultServiceDemand, c.MinServiceDemand, c.MaxServiceDemand)
	}
	if c.EstimatedServiceHours == 0 {
		c.EstimatedServiceHours = d.EstimatedServiceHours
	}
	if c.ForecastMinSamples == 0 {
		c.ForecastMinSamples = d.ForecastMinSamples
	}
	if c.ForecastWindow == 0 {
		c.ForecastWindow = max(d.ForecastWindow, c.ForecastMinSamples)
	}
}

// Validate rejects incomplete or inconsistent configuration.
func (c Config) Validate() error {
	if err := c.ScoringConfig().Validate(); err != nil {
		return err
	}
	if c.MinServiceDemand < 0 {
		return &model.ValidationError{Field: "min_service_demand", Reason: "must not be negative"}
	}
	if c.MinServiceDemand > c.MaxServiceDemand {
		return &model.ValidationError{Field: "max_service_demand", Reason: fmt.Sprintf("must be at least min_service_demand (%d)", c.MinServiceDemand)}
	}
	if c.DefaultServiceDemand < c.MinServiceDemand || c.DefaultServiceDemand > c.MaxServiceDemand {
		return &model.ValidationError{Field: "default_service_demand", Reason: fmt.Sprintf("must be within [%d, %d]", c.MinServiceDemand, c.MaxServiceDemand)}
	}
	if c.EstimatedServiceHours < 0 {
		return &model.ValidationError{Field: "estimated_service_hours", Reason: "must not be negative"}
	}
	if c.TraceComponents < 0 {
		return &model.ValidationError{Field: "trace_components", Reason: "must not be negative"}
	}
	fc := c.ForecastConfig()
	fc.SetDefaults()
	if err := fc.Validate(); err != nil {
		return &model.ValidationError{Field: "forecast", Reason: err.Error()}
	}
	return nil
}

// ForecastConfig returns the service-hours estimator parameters.
func (c Config) ForecastConfig() forecast.Config {
	return forecast.Config{DefaultHours: c.EstimatedServiceHours, MinSamples: c.ForecastMinSamples, Window: c.ForecastWindow}
}

// ScoringConfig returns the scorer parameters.
func (c Config) ScoringConfig() scoring.Config {
	return scoring.Config{
		Weights:                   c.Weights,
		MileageDeviationThreshold: c.MileageDeviationThreshold,
		MileageCurve:              c.MileageCurve,
		BrandingCurve:             c.BrandingCurve,
		BrandingDecay:             c.BrandingDecay,
		CleaningInterval:          time.Duration(c.CleaningIntervalHours * float64(time.Hour)),
	}
}

// TraceOptions returns the tracer parameters.
func (c Config) TraceOptions() trace.Options {
	return trace.Options{TopComponents: c.TraceComponents, EstimatedServiceHours: c.EstimatedServiceHours}
}

// CheckDemand rejects a demand outside the configured bounds.
func (c Config) CheckDemand(d int) error {
	if d < c.MinServiceDemand || d > c.MaxServiceDemand {
		return &model.ValidationError{Field: "service_demand", Reason: fmt.Sprintf("%d outside [%d, %d]", d, c.MinServiceDemand, c.MaxServiceDemand)}
	}
	return nil
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
