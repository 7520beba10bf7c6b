// Package otel publishes engine counters through an OpenTelemetry meter.
//
// [NewExporter] registers one Int64ObservableCounter per engine counter and
// a set of observable gauges per latency histogram. A single callback reads
// [goSession.Engine.MetricsSnapshot] on each collection. The caller owns the
// MeterProvider.
package otel
