package forecast

import (
	"fmt"
	"math"
	"sync"
	"time"

	"gonum.org/v1/gonum/stat"

	"github.com/kilianp07/induction/core/model"
)

// MaxServiceHours bounds a single operating day.
const MaxServiceHours = 24

// Observation is the service a trainset actually delivered after a run.
type Observation struct {
	TrainsetID   string    `json:"trainset_id"`
	RunID        string    `json:"run_id,omitempty"`
	Mileage      float64   `json:"mileage"`
	ServiceHours float64   `json:"service_hours"`
	At           time.Time `json:"at"`
}

// Validate checks the observation bounds.
func (o Observation) Validate() error {
	if o.TrainsetID == "" {
		return &model.ValidationError{Field: "trainset_id", Reason: "required"}
	}
	if o.ServiceHours < 0 || o.ServiceHours > MaxServiceHours || math.IsNaN(o.ServiceHours) {
		return &model.ValidationError{Field: "service_hours", Reason: fmt.Sprintf("must lie in [0,%d]", MaxServiceHours)}
	}
	if o.Mileage < 0 || math.IsNaN(o.Mileage) {
		return &model.ValidationError{Field: "mileage", Reason: "must not be negative"}
	}
	return nil
}

// Fit is the current service-hours model. It is part of every run's inputs.
type Fit struct {
	Trained   bool    `json:"trained"`
	Samples   int     `json:"samples"`
	Intercept float64 `json:"intercept"`
	Slope     float64 `json:"slope"`
	Default   float64 `json:"default"`
	// RSquared is the coefficient of determination on the fitted samples.
	RSquared float64 `json:"r_squared"`
}

// Estimate projects service hours for a trainset with the given mileage.
func (f Fit) Estimate(mileage float64) float64 {
	if !f.Trained {
		return f.Default
	}
	h := f.Intercept + f.Slope*mileage
	return math.Max(0, math.Min(MaxServiceHours, h))
}

// Config tunes the estimator.
type Config struct {
	// DefaultHours is used until MinSamples outcomes are known.
	DefaultHours float64 `json:"default_hours"`
	MinSamples   int     `json:"min_samples"`
	// Window keeps only the most recent observations.
	Window int `json:"window"`
}

// SetDefaults applies defaults.
func (c *Config) SetDefaults() {
	if c.DefaultHours == 0 {
		c.DefaultHours = 16
	}
	if c.MinSamples == 0 {
		c.MinSamples = 20
	}
	if c.Window == 0 {
		c.Window = 1000
	}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if c.DefaultHours < 0 || c.DefaultHours > MaxServiceHours {
		return fmt.Errorf("forecast default_hours must lie in [0,%d]", MaxServiceHours)
	}
	if c.MinSamples < 2 {
		return fmt.Errorf("forecast min_samples must be at least 2")
	}
	if c.Window < c.MinSamples {
		return fmt.Errorf("forecast window must hold at least min_samples observations")
	}
	return nil
}

// Estimator collects observations and keeps the fit current. It is safe
// for concurrent use.
type Estimator struct {
	cfg Config
	mu  sync.RWMutex
	obs []Observation
	fit Fit
}

// New returns an estimator. cfg must be valid.
func New(cfg Config) (*Estimator, error) {
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Estimator{cfg: cfg, fit: Fit{Default: cfg.DefaultHours}}, nil
}

// Observe records o and refits.
func (e *Estimator) Observe(o Observation) error {
	if err := o.Validate(); err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.obs = append(e.obs, o)
	if n := len(e.obs) - e.cfg.Window; n > 0 {
		e.obs = append([]Observation(nil), e.obs[n:]...)
	}
	e.fit = fit(e.obs, e.cfg)
	return nil
}

// Fit returns the current model.
func (e *Estimator) Fit() Fit {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.fit
}

// Observations returns the retained observations, oldest first.
func (e *Estimator) Observations() []Observation {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return append([]Observation(nil), e.obs...)
}

func fit(obs []Observation, cfg Config) Fit {
	f := Fit{Default: cfg.DefaultHours, Samples: len(obs)}
	if len(obs) < cfg.MinSamples {
		return f
	}
	xs := make([]float64, len(obs))
	ys := make([]float64, len(obs))
	for i, o := range obs {
		xs[i], ys[i] = o.Mileage, o.ServiceHours
	}
	f.Trained = true
	if stat.Variance(xs, nil) == 0 {
		f.Intercept = stat.Mean(ys, nil)
		return f
	}
	f.Intercept, f.Slope = stat.LinearRegression(xs, ys, nil, false)
	f.RSquared = stat.RSquared(xs, ys, nil, f.Intercept, f.Slope)
	return f
}
