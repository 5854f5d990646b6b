// Package internaldefs holds the metric names, help strings and latency
// bucket bounds that the Prometheus and OTel exporters both publish, so the
// two backends always agree on what a series is called.
package internaldefs
