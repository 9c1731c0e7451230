// Package prometheus renders the engine counters in Prometheus text
// exposition format.
//
// Counter names are prefixed sessionauth_ and suffixed _total; the single
// histogram is sessionauth_authenticate_latency_seconds. sessionauthd mounts
// [Exporter.Handler] at /metrics when metrics are enabled.
//
// # What this package must NOT do
//
//   - Register metrics in a global Prometheus registry. Callers mount the Handler.
//   - Mutate engine state.
package prometheus
