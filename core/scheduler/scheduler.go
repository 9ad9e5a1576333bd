package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Config defines when planning runs happen.
type Config struct {
	// Interval between runs. It must be positive.
	Interval time.Duration
	// At anchors runs to a time of day ("HH:MM"). Empty means runs start one
	// interval after the scheduler does.
	At string
	// Location interprets At. Nil means UTC.
	Location *time.Location
}

// Job is one planning run.
type Job func(ctx context.Context)

// Scheduler runs a job on the configured cadence.
type Scheduler struct {
	cfg     Config
	hour    int
	minute  int
	job     Job
	now     func() time.Time
	started time.Time
}

// Option customizes a Scheduler.
type Option func(*Scheduler)

// WithClock sets the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Scheduler) { s.now = now }
}

// New validates cfg and returns a scheduler for job.
func New(cfg Config, job Job, opts ...Option) (*Scheduler, error) {
	if cfg.Interval <= 0 {
		return nil, errors.New("scheduler interval must be positive")
	}
	if job == nil {
		return nil, errors.New("scheduler job is required")
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	s := &Scheduler{cfg: cfg, job: job, now: time.Now}
	if cfg.At != "" {
		t, err := time.Parse("15:04", cfg.At)
		if err != nil {
			return nil, fmt.Errorf("scheduler at %q: want HH:MM", cfg.At)
		}
		s.hour, s.minute = t.Hour(), t.Minute()
	}
	for _, opt := range opts {
		opt(s)
	}
	s.started = s.now()
	return s, nil
}

// Next returns the first run instant strictly after now.
func (s *Scheduler) Next(now time.Time) time.Time {
	if s.cfg.At == "" {
		elapsed := now.Sub(s.started)
		if elapsed < 0 {
			return s.started.Add(s.cfg.Interval)
		}
		return s.started.Add((elapsed/s.cfg.Interval + 1) * s.cfg.Interval)
	}
	local := now.In(s.cfg.Location)
	anchor := time.Date(local.Year(), local.Month(), local.Day(), s.hour, s.minute, 0, 0, s.cfg.Location)
	if anchor.After(now) {
		anchor = anchor.AddDate(0, 0, -1)
	}
	steps := now.Sub(anchor)/s.cfg.Interval + 1
	return anchor.Add(steps * s.cfg.Interval)
}

// Run blocks until ctx is canceled, calling the job at every scheduled
// instant. A run that overlaps the next instant delays it.
func (s *Scheduler) Run(ctx context.Context) {
	for {
		wait := time.Until(s.Next(s.now()))
		if wait < 0 {
			wait = 0
		}
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
			s.job(ctx)
		}
	}
}
