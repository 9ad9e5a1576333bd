package model

import (
	"errors"
	"fmt"
)

var (
	// ErrValidation is matched by every ValidationError.
	ErrValidation = errors.New("invalid input")
	// ErrInfeasibleDemand signals that service demand exceeded eligible
	// supply. The accompanying DecisionSet is complete and usable.
	ErrInfeasibleDemand = errors.New("infeasible service demand")
	// ErrUnknownTrainset is returned when an id is not part of the snapshot.
	ErrUnknownTrainset = errors.New("unknown trainset")
	// ErrUnknownOverride is returned when no active override exists for an id.
	ErrUnknownOverride = errors.New("unknown override")
)

// ValidationError describes malformed input. It is fatal to the call that
// produced it and never retried.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("validation: %s", e.Reason)
	}
	return fmt.Sprintf("validation: %s: %s", e.Field, e.Reason)
}

// Is lets errors.Is(err, ErrValidation) match.
func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

// InfeasibleDemandError carries the shortfall of a degraded run.
type InfeasibleDemandError struct {
	Demand    int
	Supply    int
	Shortfall int
}

func (e *InfeasibleDemandError) Error() string {
	return fmt.Sprintf("%v: demand %d, eligible supply %d, shortfall %d", ErrInfeasibleDemand, e.Demand, e.Supply, e.Shortfall)
}

func (e *InfeasibleDemandError) Unwrap() error { return ErrInfeasibleDemand }
