// Package metrics defines the sink interfaces used to export induction
// decisions. A sink receives one DecisionRecord per trainset per run; the
// optional recorder interfaces cover conflicts, overrides and simulations.
// Sinks are built from configuration through the factory registry and are
// combined with NewMultiSink when several are configured.
package metrics
