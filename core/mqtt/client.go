package mqtt

import (
	"errors"

	"github.com/kilianp07/induction/core/model"
)

// ErrNotConnected is returned when publishing without a broker connection.
var ErrNotConnected = errors.New("mqtt client not connected")

// DecisionPublisher pushes induction decisions to depot displays.
type DecisionPublisher interface {
	// PublishDecisionSet publishes the run summary and one retained message
	// per trainset.
	PublishDecisionSet(runID string, ds model.DecisionSet) error
}
