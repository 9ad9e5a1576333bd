package metrics

import (
	"context"

	"github.com/kilianp07/induction/core/events"
	coremetrics "github.com/kilianp07/induction/core/metrics"
	"github.com/kilianp07/induction/internal/eventbus"
)

// StartEventCollector subscribes to the event bus and forwards conflict,
// override and simulation events to the sink recorders it implements. Run
// decisions are recorded by the engine directly. The collector stops when
// the context is canceled or the bus is closed; the returned channel is
// closed once it has.
func StartEventCollector(ctx context.Context, bus eventbus.EventBus, sink coremetrics.MetricsSink) <-chan struct{} {
	done := make(chan struct{})
	if bus == nil || sink == nil {
		close(done)
		return done
	}
	sub := bus.Subscribe()
	go func() {
		defer close(done)
		defer bus.Unsubscribe(sub)
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-sub:
				if !ok {
					return
				}
				forward(sink, ev)
			}
		}
	}()
	return done
}

func forward(sink coremetrics.MetricsSink, ev eventbus.Event) {
	switch e := ev.(type) {
	case events.ConflictEvent:
		if r, ok := sink.(coremetrics.ConflictRecorder); ok {
			for _, c := range e.Conflicts {
				_ = r.RecordConflict(coremetrics.ConflictRecord{
					TrainsetID: c.TrainsetID,
					Kind:       c.Kind,
					Detail:     c.Detail,
					Time:       e.Time,
				})
			}
		}
	case events.OverrideEvent:
		if r, ok := sink.(coremetrics.OverrideRecorder); ok {
			_ = r.RecordOverride(coremetrics.OverrideRecord{
				Action:     string(e.Action),
				OverrideID: e.Override.ID,
				TrainsetID: e.Override.TrainsetID,
				Status:     e.Override.Status,
				Author:     e.Override.Author,
				Reason:     e.Override.Reason,
				Time:       e.Time,
			})
		}
	case events.SimulationEvent:
		if r, ok := sink.(coremetrics.SimulationRecorder); ok {
			_ = r.RecordSimulation(coremetrics.SimulationRecord{
				ID:             e.ID,
				Scenario:       e.Scenario,
				Modifications:  e.Modifications,
				Demand:         e.Demand,
				Added:          len(e.Added),
				Removed:        len(e.Removed),
				ShortfallDelta: e.ShortfallDelta,
				Duration:       e.Duration,
				Time:           e.Time,
			})
		}
	}
}
