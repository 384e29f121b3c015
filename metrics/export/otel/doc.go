// Package otel binds engine counters and the authentication latency
// histogram to OpenTelemetry observable instruments.
//
// [NewExporter] registers one Int64ObservableCounter per counter. The
// histogram becomes a <name>_bucket gauge with an "le" attribute per bound
// and a <name>_count gauge. A single callback reads the engine snapshot on
// each collection cycle. Callers own the MeterProvider.
package otel
