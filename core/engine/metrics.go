package engine

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	runsTotal       *prometheus.CounterVec
	runDuration     *prometheus.HistogramVec
	assignments     *prometheus.GaugeVec
	shortfallGauge  prometheus.Gauge
	conflictsTotal  *prometheus.CounterVec
	overridesActive prometheus.Gauge
	forecastSamples prometheus.Gauge
)

// newCollectors creates new metric collectors.
func newCollectors() (*prometheus.CounterVec, *prometheus.HistogramVec, *prometheus.GaugeVec, prometheus.Gauge, *prometheus.CounterVec, prometheus.Gauge, prometheus.Gauge) {
	runs := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "induction_runs_total",
			Help: "Number of engine runs by kind",
		},
		[]string{"kind"},
	)
	dur := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "induction_run_duration_seconds",
			Help:    "Duration of engine runs by kind",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"kind"},
	)
	assign := prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "induction_assignments",
			Help: "Trainsets per assigned status in the latest optimization run",
		},
		[]string{"status"},
	)
	short := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "induction_shortfall",
			Help: "Service shortfall of the latest optimization run",
		},
	)
	conf := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "induction_conflicts_total",
			Help: "Conflicts detected by kind",
		},
		[]string{"kind"},
	)
	ovr := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "induction_overrides_active",
			Help: "Number of active operator overrides",
		},
	)
	samples := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "induction_forecast_samples",
			Help: "Service outcomes retained by the service-hours forecast",
		},
	)
	return runs, dur, assign, short, conf, ovr, samples
}

func init() {
	runsTotal, runDuration, assignments, shortfallGauge, conflictsTotal, overridesActive, forecastSamples = newCollectors()
	MustRegisterMetrics(nil)
}

// MustRegisterMetrics registers engine metrics on the provided registry.
// If reg is nil, prometheus.DefaultRegisterer is used.
func MustRegisterMetrics(reg prometheus.Registerer) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(runsTotal, runDuration, assignments, shortfallGauge, conflictsTotal, overridesActive, forecastSamples)
}

// ResetMetrics reinitializes metrics collectors for testing purposes and
// registers them on the provided registry if not nil.
func ResetMetrics(reg prometheus.Registerer) {
	runsTotal, runDuration, assignments, shortfallGauge, conflictsTotal, overridesActive, forecastSamples = newCollectors()
	if reg != nil {
		MustRegisterMetrics(reg)
	}
}
