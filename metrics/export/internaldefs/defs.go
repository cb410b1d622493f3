package internaldefs

import (
	"github.com/mcloones/mcloones"
)

// CounterDef names one counter.
type CounterDef struct {
	ID   mcloones.MetricID
	Name string
	Help string
}

// HistogramDef names one histogram.
type HistogramDef struct {
	ID   mcloones.MetricID
	Name string
	Help string
}

// CounterDefs lists every exported counter in a fixed order.
var CounterDefs = []CounterDef{
	{ID: mcloones.MetricLoginSuccess, Name: "mcloones_login_success_total", Help: "Successful password logins."},
	{ID: mcloones.MetricLoginFailure, Name: "mcloones_login_failure_total", Help: "Failed password logins."},
	{ID: mcloones.MetricSignUpSuccess, Name: "mcloones_signup_success_total", Help: "Sign-ups that started a session."},
	{ID: mcloones.MetricSignUpVerificationRequired, Name: "mcloones_signup_verification_required_total", Help: "Sign-ups awaiting email confirmation."},
	{ID: mcloones.MetricSignUpFailure, Name: "mcloones_signup_failure_total", Help: "Rejected sign-ups."},
	{ID: mcloones.MetricOAuthStarted, Name: "mcloones_oauth_started_total", Help: "OAuth redirects issued."},
	{ID: mcloones.MetricOAuthFailure, Name: "mcloones_oauth_failure_total", Help: "OAuth redirects that could not be issued."},
	{ID: mcloones.MetricLogout, Name: "mcloones_logout_total", Help: "Logouts."},
	{ID: mcloones.MetricLogoutRemoteFailure, Name: "mcloones_logout_remote_failure_total", Help: "Logouts whose provider sign-out failed."},
	{ID: mcloones.MetricSessionRestored, Name: "mcloones_session_restored_total", Help: "Sessions restored at start."},
	{ID: mcloones.MetricSessionEnded, Name: "mcloones_session_ended_total", Help: "Authenticated sessions that ended."},
	{ID: mcloones.MetricRemoteSignOut, Name: "mcloones_remote_sign_out_total", Help: "Sessions ended by the provider."},
	{ID: mcloones.MetricTokenRefreshed, Name: "mcloones_token_refreshed_total", Help: "Access token refreshes observed."},
	{ID: mcloones.MetricProfileFetchFailure, Name: "mcloones_profile_fetch_failure_total", Help: "Profile lookups that failed."},
	{ID: mcloones.MetricProfileRefresh, Name: "mcloones_profile_refresh_total", Help: "Explicit profile refreshes."},
	{ID: mcloones.MetricRoleChangeRejected, Name: "mcloones_role_change_rejected_total", Help: "Stored role changes ignored for a signed-in identity."},
	{ID: mcloones.MetricNotificationDropped, Name: "mcloones_notification_dropped_total", Help: "Session events dropped for slow subscribers."},
}

// HistogramDefs lists every exported histogram.
var HistogramDefs = []HistogramDef{
	{ID: mcloones.MetricLoginLatency, Name: "mcloones_login_latency_seconds", Help: "Provider sign-in latency."},
}

// HistogramBounds are the bucket upper bounds in seconds, +Inf excluded.
var HistogramBounds = []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5}

// HistogramBoundSuffix names each bucket, +Inf included, for exporters that
// publish buckets as separate instruments.
var HistogramBoundSuffix = []string{
	"0_005",
	"0_01",
	"0_025",
	"0_05",
	"0_1",
	"0_25",
	"0_5",
	"inf",
}

// AuditDroppedName is the counter for audit events lost to backpressure.
const (
	AuditDroppedName = "mcloones_audit_dropped_total"
	AuditDroppedHelp = "Audit events dropped because the dispatcher buffer was full."
)

// NormalizeBuckets copies raw into a fixed array, zero-filling missing buckets.
func NormalizeBuckets(raw []uint64) [8]uint64 {
	var out [8]uint64
	for i := 0; i < len(out) && i < len(raw); i++ {
		out[i] = raw[i]
	}
	return out
}

// CumulativeBuckets turns per-bucket counts into running totals.
func CumulativeBuckets(raw [8]uint64) [8]uint64 {
	var out [8]uint64
	var running uint64
	for i := 0; i < len(raw); i++ {
		running += raw[i]
		out[i] = running
	}
	return out
}
