package metrics

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"

	coremetrics "github.com/kilianp07/induction/core/metrics"
	"github.com/kilianp07/induction/core/model"
)

// PromSink exposes the latest decision of every trainset as Prometheus
// gauges, plus counters for conflicts, overrides and simulations.
type PromSink struct {
	score       *prometheus.GaugeVec
	rank        *prometheus.GaugeVec
	assigned    *prometheus.GaugeVec
	conflicts   *prometheus.CounterVec
	overrides   *prometheus.CounterVec
	simulations *prometheus.HistogramVec
}

// NewPromSink registers the sink collectors on the default Prometheus
// registerer. The HTTP exposition endpoint is served by the application.
func NewPromSink() (*PromSink, error) {
	return NewPromSinkWithRegistry(prometheus.DefaultRegisterer)
}

// NewPromSinkWithRegistry registers metrics on the provided registerer.
// A nil registerer defaults to the global Prometheus registerer. Collectors
// already registered by an earlier sink are reused.
func NewPromSinkWithRegistry(reg prometheus.Registerer) (*PromSink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	s := &PromSink{
		score: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "induction_trainset_score",
			Help: "Combined score of the trainset in the latest run",
		}, []string{"trainset_id"}),
		rank: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "induction_trainset_rank",
			Help: "Rank of the trainset among eligible units in the latest run, 0 when unranked",
		}, []string{"trainset_id"}),
		assigned: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "induction_trainset_assigned",
			Help: "1 for the status assigned to the trainset in the latest run",
		}, []string{"trainset_id", "status"}),
		conflicts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "induction_trainset_conflicts_total",
			Help: "Conflicts reported per trainset and kind",
		}, []string{"trainset_id", "kind"}),
		overrides: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "induction_override_events_total",
			Help: "Override registry changes",
		}, []string{"action", "status"}),
		simulations: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "induction_simulation_duration_seconds",
			Help:    "Duration of what-if simulations",
			Buckets: prometheus.DefBuckets,
		}, []string{"scenario"}),
	}
	var err error
	if s.score, err = register(reg, s.score); err != nil {
		return nil, err
	}
	if s.rank, err = register(reg, s.rank); err != nil {
		return nil, err
	}
	if s.assigned, err = register(reg, s.assigned); err != nil {
		return nil, err
	}
	if s.conflicts, err = register(reg, s.conflicts); err != nil {
		return nil, err
	}
	if s.overrides, err = register(reg, s.overrides); err != nil {
		return nil, err
	}
	if s.simulations, err = register(reg, s.simulations); err != nil {
		return nil, err
	}
	return s, nil
}

func register[C prometheus.Collector](reg prometheus.Registerer, c C) (C, error) {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(C); ok {
				return existing, nil
			}
		}
		return c, err
	}
	return c, nil
}

// RecordDecisionSet sets the per-trainset gauges from the latest run.
func (s *PromSink) RecordDecisionSet(recs []coremetrics.DecisionRecord) error {
	for _, r := range recs {
		s.score.WithLabelValues(r.TrainsetID).Set(r.Score)
		s.rank.WithLabelValues(r.TrainsetID).Set(float64(r.Rank))
		for _, st := range model.AssignableStatuses {
			v := 0.0
			if st == r.Status {
				v = 1
			}
			s.assigned.WithLabelValues(r.TrainsetID, string(st)).Set(v)
		}
	}
	return nil
}

// RecordConflict increments the conflict counter.
func (s *PromSink) RecordConflict(r coremetrics.ConflictRecord) error {
	s.conflicts.WithLabelValues(r.TrainsetID, string(r.Kind)).Inc()
	return nil
}

// RecordOverride increments the override counter.
func (s *PromSink) RecordOverride(r coremetrics.OverrideRecord) error {
	s.overrides.WithLabelValues(r.Action, string(r.Status)).Inc()
	return nil
}

// RecordSimulation observes the simulation duration.
func (s *PromSink) RecordSimulation(r coremetrics.SimulationRecord) error {
	scenario := r.Scenario
	if scenario == "" {
		scenario = "custom"
	}
	s.simulations.WithLabelValues(scenario).Observe(r.Duration.Seconds())
	return nil
}
