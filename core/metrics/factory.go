package metrics

import (
	"fmt"

	"github.com/kilianp07/induction/core/factory"
)

var sinks = factory.NewRegistry[MetricsSink]()

// RegisterSink makes a sink type available to Open under name.
func RegisterSink(name string, f factory.Factory[MetricsSink]) error {
	return sinks.Register(name, f)
}

// RegisteredSinks lists the available sink types.
func RegisteredSinks() []string { return sinks.Names() }

// Open builds the sinks listed in cfg. No sink yields NopSink and a single
// sink is returned as is. When one sink fails the ones already built are
// closed before returning.
func Open(cfg Config) (MetricsSink, error) {
	switch len(cfg.Sinks) {
	case 0:
		return NopSink{}, nil
	case 1:
		s, err := sinks.Create(cfg.Sinks[0])
		if err != nil {
			return nil, fmt.Errorf("metrics sink %q: %w", cfg.Sinks[0].Type, err)
		}
		return s, nil
	}
	built := make([]MetricsSink, 0, len(cfg.Sinks))
	for i, mc := range cfg.Sinks {
		s, err := sinks.Create(mc)
		if err != nil {
			Close(NewMultiSink(built...))
			return nil, fmt.Errorf("metrics sink %d %q: %w", i, mc.Type, err)
		}
		built = append(built, s)
	}
	return NewMultiSink(built...), nil
}

// Close releases s when it holds resources.
func Close(s MetricsSink) {
	if c, ok := s.(interface{ Close() }); ok {
		c.Close()
	}
}
