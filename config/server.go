package config

import (
	"fmt"
	"time"
)

// HTTPConfig configures the API server.
type HTTPConfig struct {
	Addr string `json:"addr"`
	// Token, when set, is required as a bearer token on /api routes.
	Token          string        `json:"token"`
	RequestTimeout time.Duration `json:"request_timeout"`
	ShutdownGrace  time.Duration `json:"shutdown_grace"`
}

// SetDefaults applies defaults.
func (c *HTTPConfig) SetDefaults() {
	if c.Addr == "" {
		c.Addr = ":8080"
	}
	if c.RequestTimeout == 0 {
		c.RequestTimeout = 30 * time.Second
	}
	if c.ShutdownGrace == 0 {
		c.ShutdownGrace = 5 * time.Second
	}
}

// Validate checks mandatory fields.
func (c HTTPConfig) Validate() error {
	if c.RequestTimeout < 0 || c.ShutdownGrace < 0 {
		return fmt.Errorf("http timeouts must not be negative")
	}
	return nil
}

// StoreConfig points at the fleet snapshot the engine reads.
type StoreConfig struct {
	// Path is a YAML or JSON snapshot file.
	Path string `json:"path"`
	// Watch reloads Path as soon as the file changes.
	Watch bool `json:"watch"`
	// ReloadInterval re-reads Path periodically when positive. With Watch
	// set it only covers changes the file watcher misses.
	ReloadInterval time.Duration `json:"reload_interval"`
}

// Validate checks mandatory fields.
func (c StoreConfig) Validate() error {
	if c.Path == "" {
		return fmt.Errorf("store path is required")
	}
	if c.ReloadInterval < 0 {
		return fmt.Errorf("store reload_interval must not be negative")
	}
	return nil
}

// DefaultCycleInterval is the planning cycle period when none is configured.
const DefaultCycleInterval = 24 * time.Hour

// CycleConfig schedules periodic planning runs.
type CycleConfig struct {
	// Interval between planning runs. Zero disables the cycle.
	Interval time.Duration `json:"interval"`
	// At anchors runs to a time of day ("HH:MM"), e.g. the end of revenue
	// service.
	At string `json:"at"`
	// Timezone interprets At. Empty means UTC.
	Timezone string `json:"timezone"`
	// Demand of cycle runs; zero uses the engine default.
	Demand int `json:"demand"`
	// RunOnStart triggers one run when the service starts.
	RunOnStart bool `json:"run_on_start"`
}

// Validate checks mandatory fields.
func (c CycleConfig) Validate() error {
	if c.Interval < 0 {
		return fmt.Errorf("cycle interval must not be negative")
	}
	if c.Demand < 0 {
		return fmt.Errorf("cycle demand must not be negative")
	}
	if c.At != "" {
		if _, err := time.Parse("15:04", c.At); err != nil {
			return fmt.Errorf("cycle at %q: want HH:MM", c.At)
		}
	}
	if _, err := c.Location(); err != nil {
		return err
	}
	return nil
}

// Location resolves Timezone.
func (c CycleConfig) Location() (*time.Location, error) {
	if c.Timezone == "" {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("cycle timezone: %w", err)
	}
	return loc, nil
}
