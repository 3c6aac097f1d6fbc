// Package prometheus renders goConsole metrics in Prometheus text
// exposition format.
//
// [NewPrometheusExporter] reads a *goConsole.Store and exposes an
// [http.Handler]. Counters are named goconsole_*_total; the single
// histogram is goconsole_login_latency_seconds. When the source also
// exposes its session snapshot, a goconsole_session_status gauge reports
// the current status with one series per status.
//
// # What this package must NOT do
//
//   - Register metrics in a global registry; callers mount the Handler.
//   - Mutate store state.
package prometheus
