// Package infra contains technical adapters: the in-memory fleet store, the
// MQTT decision publisher and the metrics exporters. These packages depend
// only on the interfaces defined in the core packages.
package infra
