package metrics

import "errors"

// MultiSink fans records out to several sinks. Every sink is called even
// when an earlier one fails; the errors are joined.
type MultiSink struct {
	sinks []MetricsSink
}

// NewMultiSink combines sinks. Nil sinks are skipped.
func NewMultiSink(sinks ...MetricsSink) *MultiSink {
	m := &MultiSink{}
	for _, s := range sinks {
		if s != nil {
			m.sinks = append(m.sinks, s)
		}
	}
	return m
}

// Sinks returns the wrapped sinks.
func (m *MultiSink) Sinks() []MetricsSink { return append([]MetricsSink(nil), m.sinks...) }

func (m *MultiSink) RecordDecisionSet(recs []DecisionRecord) error {
	var errs []error
	for _, s := range m.sinks {
		if err := s.RecordDecisionSet(recs); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (m *MultiSink) RecordConflict(r ConflictRecord) error {
	var errs []error
	for _, s := range m.sinks {
		if c, ok := s.(ConflictRecorder); ok {
			if err := c.RecordConflict(r); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}

func (m *MultiSink) RecordOverride(r OverrideRecord) error {
	var errs []error
	for _, s := range m.sinks {
		if c, ok := s.(OverrideRecorder); ok {
			if err := c.RecordOverride(r); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}

func (m *MultiSink) RecordSimulation(r SimulationRecord) error {
	var errs []error
	for _, s := range m.sinks {
		if c, ok := s.(SimulationRecorder); ok {
			if err := c.RecordSimulation(r); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}

// Close closes every wrapped sink that holds resources.
func (m *MultiSink) Close() {
	for _, s := range m.sinks {
		if c, ok := s.(interface{ Close() }); ok {
			c.Close()
		}
	}
}
