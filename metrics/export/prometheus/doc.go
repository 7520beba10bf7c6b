// Package prometheus adapts engine counters to client_golang.
//
// [NewCollector] returns a prometheus.Collector that reads
// [goSession.Engine.MetricsSnapshot] on each scrape. Counters are named
// gosession_*_total; latency histograms are gosession_*_latency_seconds.
// Register it on the process registry next to the Go and process collectors,
// or mount [Collector.Handler] for a standalone endpoint.
package prometheus
