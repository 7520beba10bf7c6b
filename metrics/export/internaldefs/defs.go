package internaldefs

import (
	goSession "github.com/MrEthical07/goSession"
)

// CounterDef names one engine counter for exporters.
type CounterDef struct {
	ID   goSession.MetricID
	Name string
	Help string
}

// HistogramDef names one latency histogram for exporters.
type HistogramDef struct {
	ID   goSession.MetricID
	Name string
	Help string
}

// CounterDefs lists every exported counter in a stable order.
var CounterDefs = []CounterDef{
	{ID: goSession.MetricLoginSuccess, Name: "gosession_login_success_total", Help: "Successful logins."},
	{ID: goSession.MetricLoginFailure, Name: "gosession_login_failure_total", Help: "Failed logins."},
	{ID: goSession.MetricLoginRateLimited, Name: "gosession_login_rate_limited_total", Help: "Logins refused by the attempt throttle."},
	{ID: goSession.MetricLoginInvalidRequest, Name: "gosession_login_invalid_request_total", Help: "Logins rejected for malformed input."},
	{ID: goSession.MetricRefreshSuccess, Name: "gosession_refresh_success_total", Help: "Successful token rotations."},
	{ID: goSession.MetricRefreshFailure, Name: "gosession_refresh_failure_total", Help: "Failed token rotations."},
	{ID: goSession.MetricRefreshReuseDetected, Name: "gosession_refresh_reuse_detected_total", Help: "Refresh tokens presented after their record was gone."},
	{ID: goSession.MetricReplayDetected, Name: "gosession_replay_detected_total", Help: "Refresh tokens presented after being consumed."},
	{ID: goSession.MetricIntegrityViolation, Name: "gosession_integrity_violation_total", Help: "Refresh records that disagreed with their token."},
	{ID: goSession.MetricDeviceMismatch, Name: "gosession_device_mismatch_total", Help: "Refreshes presented from a different device."},
	{ID: goSession.MetricSessionCreated, Name: "gosession_session_created_total", Help: "Sessions created by login or rotation."},
	{ID: goSession.MetricSessionEvicted, Name: "gosession_session_evicted_total", Help: "Sessions evicted by a newer login."},
	{ID: goSession.MetricSessionRevoked, Name: "gosession_session_revoked_total", Help: "Sessions revoked after a security event or by an operator."},
	{ID: goSession.MetricLogout, Name: "gosession_logout_total", Help: "Logouts."},
	{ID: goSession.MetricAuthenticateSuccess, Name: "gosession_authenticate_success_total", Help: "Accepted access tokens."},
	{ID: goSession.MetricAuthenticateFailure, Name: "gosession_authenticate_failure_total", Help: "Rejected access tokens."},
	{ID: goSession.MetricSessionSuperseded, Name: "gosession_session_superseded_total", Help: "Access tokens whose session was no longer active."},
	{ID: goSession.MetricTokenRevoked, Name: "gosession_token_revoked_total", Help: "Access tokens found on the blacklist."},
	{ID: goSession.MetricPermissionCacheHit, Name: "gosession_permission_cache_hit_total", Help: "Permission lookups served from Redis."},
	{ID: goSession.MetricPermissionCacheMiss, Name: "gosession_permission_cache_miss_total", Help: "Permission lookups resolved from the directory."},
	{ID: goSession.MetricPermissionCacheDegraded, Name: "gosession_permission_cache_degraded_total", Help: "Permission lookups that bypassed an unavailable cache."},
}

// HistogramDefs lists every exported latency histogram.
var HistogramDefs = []HistogramDef{
	{ID: goSession.MetricAuthenticateLatency, Name: "gosession_authenticate_latency_seconds", Help: "Authenticate latency."},
	{ID: goSession.MetricLoginLatency, Name: "gosession_login_latency_seconds", Help: "Login latency."},
	{ID: goSession.MetricRefreshLatency, Name: "gosession_refresh_latency_seconds", Help: "Refresh latency."},
}

// AuditDroppedName and AuditDroppedHelp describe the dispatcher drop counter.
const (
	AuditDroppedName = "gosession_audit_dropped_total"
	AuditDroppedHelp = "Audit events dropped because the dispatcher buffer was full."
)

// HistogramBounds are the upper bounds in seconds of the first seven buckets.
// The eighth bucket is +Inf.
var HistogramBounds = []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5}

// HistogramBoundSuffix names each bucket, +Inf included, for instrument names.
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

// NormalizeBuckets copies raw into a fixed-size array, padding with zeros.
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
