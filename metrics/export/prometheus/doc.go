// Package prometheus exposes engine metrics through client_golang.
//
// [NewCollector] returns a prometheus.Collector that snapshots the engine on
// every scrape. Counter names follow libauth_*_total and the single histogram
// is libauth_authenticate_latency_seconds.
//
// The collector never registers itself with the default registry.
package prometheus
