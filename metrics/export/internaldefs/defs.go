package internaldefs

import (
	authcore "github.com/lexiconary/authcore"
)

// CounterDef maps one engine counter to its exported metric name.
type CounterDef struct {
	ID   authcore.MetricID
	Name string
	Help string
}

// HistogramDef maps one engine histogram to its exported metric name.
type HistogramDef struct {
	ID   authcore.MetricID
	Name string
	Help string
}

// CounterDefs is the shared counter table consumed by the otel and
// prometheus exporters. Order here is the export order.
var CounterDefs = []CounterDef{
	{ID: authcore.MetricTokenIssued, Name: "authcore_token_issued_total", Help: "Token pairs minted for authenticated users."},
	{ID: authcore.MetricRefreshSuccess, Name: "authcore_refresh_success_total", Help: "Successful refresh rotations."},
	{ID: authcore.MetricRefreshFailure, Name: "authcore_refresh_failure_total", Help: "Refresh attempts rejected as invalid."},
	{ID: authcore.MetricReuseDetected, Name: "authcore_reuse_detected_total", Help: "Refresh-token reuse cascades."},
	{ID: authcore.MetricRefreshRateLimited, Name: "authcore_refresh_rate_limited_total", Help: "Rate-limited refresh attempts."},
	{ID: authcore.MetricRateLimitHit, Name: "authcore_rate_limit_hit_total", Help: "Rate-limit checks that denied requests."},
	{ID: authcore.MetricAutoBlacklist, Name: "authcore_auto_blacklist_total", Help: "Identifiers auto-blacklisted for repeat violations."},
	{ID: authcore.MetricValidateSuccess, Name: "authcore_validate_success_total", Help: "Accepted access tokens."},
	{ID: authcore.MetricValidateFailure, Name: "authcore_validate_failure_total", Help: "Rejected access tokens."},
	{ID: authcore.MetricAuthzAllowed, Name: "authcore_authz_allowed_total", Help: "Authorization checks that passed."},
	{ID: authcore.MetricAuthzDenied, Name: "authcore_authz_denied_total", Help: "Authorization checks that failed."},
	{ID: authcore.MetricTokenRevoked, Name: "authcore_token_revoked_total", Help: "Single-token revocations."},
	{ID: authcore.MetricLogoutAll, Name: "authcore_logout_all_total", Help: "Whole-user revocation sweeps."},
}

// HistogramDefs is the shared histogram table.
var HistogramDefs = []HistogramDef{
	{ID: authcore.MetricValidateLatency, Name: "authcore_validate_latency_seconds", Help: "Access-token validation latency histogram."},
}

// HistogramBounds are the upper bounds, in seconds, of the engine's fixed
// latency buckets.
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

// HistogramBoundSuffix mirrors HistogramBounds with characters legal in
// instrument names.
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

// CumulativeBuckets converts per-bucket counts into the cumulative form
// Prometheus expects.
func CumulativeBuckets(raw [8]uint64) [8]uint64 {
	var out [8]uint64
	var running uint64
	for i := 0; i < len(raw); i++ {
		running += raw[i]
		out[i] = running
	}
	return out
}
