// Package telemetry exposes Prometheus instrumentation for the pipeline
// engine.
//
// The Collector owns its own registry so tests can construct collectors
// freely without tripping duplicate-registration panics. The daemon mounts
// Handler() at /metrics.
package telemetry
