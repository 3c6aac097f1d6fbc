package internaldefs

import (
	goConsole "github.com/MrEthical07/goConsole"
)

// CounterDef names one exported counter.
type CounterDef struct {
	ID   goConsole.MetricID
	Name string
	Help string
}

// HistogramDef names one exported histogram.
type HistogramDef struct {
	ID   goConsole.MetricID
	Name string
	Help string
}

// CounterDefs lists every counter both exporters publish, in output order.
var CounterDefs = []CounterDef{
	{ID: goConsole.MetricStartNoCredential, Name: "goconsole_start_no_credential_total", Help: "Starts that found no persisted credential."},
	{ID: goConsole.MetricStartRestored, Name: "goconsole_start_restored_total", Help: "Starts that restored a session from the persisted credential."},
	{ID: goConsole.MetricStartRejected, Name: "goconsole_start_rejected_total", Help: "Starts whose persisted credential was rejected or expired."},
	{ID: goConsole.MetricStartStorageFailure, Name: "goconsole_start_storage_failure_total", Help: "Starts that could not read the credential backend."},
	{ID: goConsole.MetricLoginSuccess, Name: "goconsole_login_success_total", Help: "Logins that reached the authenticated state."},
	{ID: goConsole.MetricLoginRejected, Name: "goconsole_login_rejected_total", Help: "Logins refused by the admin API."},
	{ID: goConsole.MetricLoginNetworkFailure, Name: "goconsole_login_network_failure_total", Help: "Logins that failed on transport."},
	{ID: goConsole.MetricProfileFetchFailure, Name: "goconsole_profile_fetch_failure_total", Help: "Failed profile fetches."},
	{ID: goConsole.MetricLogout, Name: "goconsole_logout_total", Help: "Logout calls."},
	{ID: goConsole.MetricStaleResultDiscarded, Name: "goconsole_stale_result_discarded_total", Help: "Operation results discarded because a newer operation started."},
	{ID: goConsole.MetricCredentialStoreFailure, Name: "goconsole_credential_store_failure_total", Help: "Failed credential save or clear calls."},
	{ID: goConsole.MetricSubscriberDropped, Name: "goconsole_subscriber_dropped_total", Help: "Snapshots replaced before a slow subscriber read them."},
	{ID: goConsole.MetricGuardAllow, Name: "goconsole_guard_allow_total", Help: "Guard decisions that allowed navigation."},
	{ID: goConsole.MetricGuardRedirect, Name: "goconsole_guard_redirect_total", Help: "Guard decisions that redirected to login."},
	{ID: goConsole.MetricGuardLoading, Name: "goconsole_guard_loading_total", Help: "Guard decisions that showed the loading placeholder."},
}

// HistogramDefs lists every exported histogram.
var HistogramDefs = []HistogramDef{
	{ID: goConsole.MetricLoginLatency, Name: "goconsole_login_latency_seconds", Help: "Login round-trip latency."},
}

// HistogramBounds are the upper bounds of the eight latency buckets, in seconds.
var HistogramBounds = []string{
	"0.025",
	"0.05",
	"0.1",
	"0.25",
	"0.5",
	"1",
	"2.5",
	"+Inf",
}

// HistogramBoundSuffix is HistogramBounds spelled for use in instrument names.
var HistogramBoundSuffix = []string{
	"0_025",
	"0_05",
	"0_1",
	"0_25",
	"0_5",
	"1",
	"2_5",
	"inf",
}

// Statuses lists every session status in gauge output order.
var Statuses = []goConsole.Status{
	goConsole.StatusInitializing,
	goConsole.StatusAuthenticating,
	goConsole.StatusAuthenticated,
	goConsole.StatusUnauthenticated,
	goConsole.StatusError,
}

// NormalizeBuckets copies raw into a fixed eight-bucket array, zero-filling.
func NormalizeBuckets(raw []uint64) [8]uint64 {
	var out [8]uint64
	for i := 0; i < len(out) && i < len(raw); i++ {
		out[i] = raw[i]
	}
	return out
}

// CumulativeBuckets converts per-bucket counts to running totals.
func CumulativeBuckets(raw [8]uint64) [8]uint64 {
	var out [8]uint64
	var running uint64
	for i := 0; i < len(raw); i++ {
		running += raw[i]
		out[i] = running
	}
	return out
}
