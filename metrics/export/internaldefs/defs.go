package internaldefs

import (
	"strconv"

	"github.com/nexustalent/sessionauth"
)

// Family is one exported metric family.
type Family struct {
	ID   sessionauth.MetricID
	Name string
	Help string
}

// Counters lists the exported counters in output order.
var Counters = []Family{
	{sessionauth.MetricLoginSuccess, "sessionauth_login_success_total", "Logins that produced a session credential."},
	{sessionauth.MetricLoginFailure, "sessionauth_login_failure_total", "Logins rejected as invalid credentials."},
	{sessionauth.MetricLoginUpstreamError, "sessionauth_login_upstream_error_total", "Logins that failed because no identity store could answer."},
	{sessionauth.MetricPrimaryStoreAffirmed, "sessionauth_primary_store_affirmed_total", "Logins affirmed by the primary identity store."},
	{sessionauth.MetricFallbackStoreAffirmed, "sessionauth_fallback_store_affirmed_total", "Logins affirmed by the fallback user store."},
	{sessionauth.MetricStoreError, "sessionauth_store_error_total", "Identity store calls that failed."},
	{sessionauth.MetricRoleByEmailFallback, "sessionauth_role_by_email_fallback_total", "Role lookups retried by email."},
	{sessionauth.MetricRoleUnresolved, "sessionauth_role_unresolved_total", "Logins completed without a role."},
	{sessionauth.MetricCredentialMinted, "sessionauth_credential_minted_total", "Signed session credentials."},
	{sessionauth.MetricCredentialValid, "sessionauth_credential_valid_total", "Session credentials that passed verification."},
	{sessionauth.MetricCredentialInvalid, "sessionauth_credential_invalid_total", "Malformed, tampered or expired session credentials."},
	{sessionauth.MetricGatePublic, "sessionauth_gate_public_total", "Requests classified as public."},
	{sessionauth.MetricGateAllowed, "sessionauth_gate_allowed_total", "Protected requests allowed by the session credential."},
	{sessionauth.MetricGateLegacyAllowed, "sessionauth_gate_legacy_allowed_total", "Protected requests allowed by a secondary session."},
	{sessionauth.MetricGateRedirected, "sessionauth_gate_redirected_total", "Protected requests redirected to login."},
	{sessionauth.MetricLogout, "sessionauth_logout_total", "Logout requests."},
}

// Latency is the authenticate latency histogram.
var Latency = Family{
	ID:   sessionauth.MetricAuthenticateLatency,
	Name: "sessionauth_authenticate_latency_seconds",
	Help: "Time spent resolving a login against the identity stores.",
}

// AuditDropped is fed from the audit dispatcher rather than the snapshot.
var AuditDropped = Family{
	Name: "sessionauth_audit_dropped_total",
	Help: "Audit events lost to a full or abandoned delivery queue.",
}

// Bounds are the finite latency bucket limits in seconds. The engine adds one
// overflow bucket after them.
var Bounds = [...]float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5}

// Buckets is the number of buckets including overflow.
const Buckets = len(Bounds) + 1

// Label renders the upper bound of bucket i the way Prometheus writes le.
func Label(i int) string {
	if i >= len(Bounds) {
		return "+Inf"
	}
	return strconv.FormatFloat(Bounds[i], 'g', -1, 64)
}

// Cumulative turns raw per-bucket counts into running totals. Missing buckets
// count as zero and extra ones are ignored.
func Cumulative(raw []uint64) [Buckets]uint64 {
	var out [Buckets]uint64
	var sum uint64
	for i := range out {
		if i < len(raw) {
			sum += raw[i]
		}
		out[i] = sum
	}
	return out
}
