// Package otel publishes the engine counters through an OpenTelemetry Meter.
//
// Every counter becomes an Int64ObservableCounter of the same name. The
// authenticate latency histogram is published as cumulative
// sessionauth_authenticate_latency_seconds_bucket points carrying an "le"
// attribute, plus a _count series. One callback reads
// [sessionauth.Engine.MetricsSnapshot] per collection.
//
// # What this package must NOT do
//
//   - Own the MeterProvider. Callers supply the Meter.
//   - Mutate engine state.
package otel
