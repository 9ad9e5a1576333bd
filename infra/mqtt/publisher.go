package mqtt

import (
	"context"
	"fmt"
	"sync"

	"github.com/kilianp07/induction/core/events"
	"github.com/kilianp07/induction/core/logger"
	"github.com/kilianp07/induction/core/model"
	coremqtt "github.com/kilianp07/induction/core/mqtt"
	"github.com/kilianp07/induction/internal/eventbus"
)

// DecisionPublisher mirrors the core mqtt.DecisionPublisher interface.
type DecisionPublisher = coremqtt.DecisionPublisher

// StartPublisher subscribes to the event bus and publishes the decisions of
// every run event. Publish failures are logged and do not stop the loop. The
// returned channel is closed once the loop has exited.
func StartPublisher(ctx context.Context, bus eventbus.EventBus, pub DecisionPublisher, log logger.Logger) <-chan struct{} {
	done := make(chan struct{})
	if bus == nil || pub == nil {
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
				run, isRun := ev.(events.RunEvent)
				if !isRun {
					continue
				}
				if err := pub.PublishDecisionSet(run.RunID, run.Decisions); err != nil && log != nil {
					log.Errorf("publish run %s: %v", run.RunID, err)
				}
			}
		}
	}()
	return done
}

// MockPublisher is a simple publisher used in tests.
type MockPublisher struct {
	Runs    map[string]model.DecisionSet
	FailIDs map[string]bool
	mu      sync.Mutex
}

// NewMockPublisher creates a new MockPublisher.
func NewMockPublisher() *MockPublisher {
	return &MockPublisher{
		Runs:    make(map[string]model.DecisionSet),
		FailIDs: make(map[string]bool),
	}
}

// PublishDecisionSet records the set or returns an error if the run is
// configured to fail.
func (m *MockPublisher) PublishDecisionSet(runID string, ds model.DecisionSet) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailIDs[runID] {
		return fmt.Errorf("publish failed")
	}
	m.Runs[runID] = ds
	return nil
}

// Published returns the decision set recorded for a run.
func (m *MockPublisher) Published(runID string) (model.DecisionSet, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ds, ok := m.Runs[runID]
	return ds, ok
}
