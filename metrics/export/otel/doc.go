// Package otel binds goConsole counters and the login latency histogram to
// OpenTelemetry instruments.
//
// [NewOTelExporter] registers one Int64ObservableCounter per goConsole
// counter and one Int64ObservableGauge per latency bucket. A single callback
// reads [goConsole.Store.MetricsSnapshot] on each collection cycle and, when
// the source exposes it, the current session status as a gauge with a
// status attribute.
//
// # What this package must NOT do
//
//   - Own the MeterProvider; callers supply the Meter.
//   - Mutate store state.
package otel
