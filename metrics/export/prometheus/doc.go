// Package prometheus exposes mcloones metrics as a prometheus.Collector.
//
// Counters are named mcloones_*_total; the login latency histogram is
// mcloones_login_latency_seconds. The collector reads a fresh snapshot on every
// scrape. Histogram sums are not tracked and are reported as zero.
//
// # What this package must NOT do
//
//   - Register with the global Prometheus registry; callers choose the registry.
//   - Mutate manager state.
package prometheus
