package internaldefs

import (
	"github.com/croft-labs/authcore"
)

// CounterDef binds a MetricID to its exported name and help text.
type CounterDef struct {
	ID   authcore.MetricID
	Name string
	Help string
}

// HistogramDef binds a histogram MetricID to its exported name and help
// text.
type HistogramDef struct {
	ID   authcore.MetricID
	Name string
	Help string
}

var CounterDefs = []CounterDef{
	{ID: authcore.MetricLoginSuccess, Name: "authcore_login_success_total", Help: "Successful login attempts."},
	{ID: authcore.MetricLoginFailure, Name: "authcore_login_failure_total", Help: "Failed login attempts."},
	{ID: authcore.MetricRefreshSuccess, Name: "authcore_refresh_success_total", Help: "Successful refresh rotations."},
	{ID: authcore.MetricRefreshFailure, Name: "authcore_refresh_failure_total", Help: "Failed refresh attempts."},
	{ID: authcore.MetricRefreshReuseDetected, Name: "authcore_refresh_reuse_detected_total", Help: "Detected refresh token reuses."},
	{ID: authcore.MetricRefreshRateLimited, Name: "authcore_refresh_rate_limited_total", Help: "Rate-limited refresh attempts."},
	{ID: authcore.MetricFamilyInvalidated, Name: "authcore_family_invalidated_total", Help: "Refresh tokens retired by family invalidation."},
	{ID: authcore.MetricLogout, Name: "authcore_logout_total", Help: "Logout operations."},
	{ID: authcore.MetricAccessRevoked, Name: "authcore_access_revoked_total", Help: "Access tokens placed on the denylist."},
	{ID: authcore.MetricGateDenied, Name: "authcore_gate_denied_total", Help: "Requests denied by the revocation gate."},
	{ID: authcore.MetricGateAllowedDegraded, Name: "authcore_gate_allowed_degraded_total", Help: "Fail-open gate verdicts due to backend errors."},
	{ID: authcore.MetricReaperRefreshPruned, Name: "authcore_reaper_refresh_pruned_total", Help: "Expired refresh rows reclaimed by the reaper."},
	{ID: authcore.MetricReaperRevocationsPruned, Name: "authcore_reaper_revocations_pruned_total", Help: "Expired denylist entries reclaimed by the reaper."},
}

var HistogramDefs = []HistogramDef{
	{ID: authcore.MetricAuthorizeLatency, Name: "authcore_authorize_latency_seconds", Help: "Revocation gate latency histogram."},
}

// HistogramBounds are the upper bucket bounds in seconds, matching the
// core histogram layout.
var HistogramBounds = []string{
	"0.005",
	"0.01",
	"0.025",
	"0.05",
	"0.1",
	"0.25",
	"0.5",
	"+Inf",
}

// HistogramBoundSuffix names each bucket for backends that cannot carry
// an le label.
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

// NormalizeBuckets pads or truncates a raw snapshot slice to the fixed
// bucket count.
func NormalizeBuckets(raw []uint64) [8]uint64 {
	var out [8]uint64
	for i := 0; i < len(out) && i < len(raw); i++ {
		out[i] = raw[i]
	}
	return out
}

// CumulativeBuckets converts per-bucket counts into cumulative counts.
func CumulativeBuckets(raw [8]uint64) [8]uint64 {
	var out [8]uint64
	var running uint64
	for i := 0; i < len(raw); i++ {
		running += raw[i]
		out[i] = running
	}
	return out
}
