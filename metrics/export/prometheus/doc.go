// Package prometheus exposes goGuard engine metrics through
// prometheus/client_golang.
//
// [NewCollector] wraps an [goGuard.Engine] as a prometheus.Collector. Callers
// either register it on their own registry or mount [Collector.Handler].
// Counter names are prefixed goguard_*_total; the single histogram is
// goguard_two_factor_verify_latency_seconds.
//
// # What this package must NOT do
//
//   - Register metrics in the global Prometheus registry.
//   - Mutate engine state.
package prometheus
