package internaldefs

import (
	"github.com/MrEthical07/libauth"
)

// CounterDef binds an engine counter to its exported name.
type CounterDef struct {
	ID   libauth.MetricID
	Name string
	Help string
}

// HistogramDef binds an engine histogram to its exported name.
//
// HistogramDef instances are configured during initialization and then treated as immutable.
type HistogramDef struct {
	ID   libauth.MetricID
	Name string
	Help string
}

// AuditDroppedName is the counter exported for audit events lost to backpressure.
const AuditDroppedName = "libauth_audit_dropped_total"

// AuditDroppedHelp is the help text for AuditDroppedName.
const AuditDroppedHelp = "Dropped audit events due to dispatcher backpressure."

// CounterDefs lists every exported engine counter in a stable order.
var CounterDefs = []CounterDef{
	{ID: libauth.MetricSignInSuccess, Name: "libauth_sign_in_success_total", Help: "Successful sign-ins."},
	{ID: libauth.MetricSignInFailure, Name: "libauth_sign_in_failure_total", Help: "Sign-ins rejected for bad credentials or account status."},
	{ID: libauth.MetricSignInLocked, Name: "libauth_sign_in_locked_total", Help: "Sign-ins rejected because the account is locked."},
	{ID: libauth.MetricAccountLocked, Name: "libauth_account_locked_total", Help: "Accounts locked by repeated sign-in failures."},
	{ID: libauth.MetricLockoutLifted, Name: "libauth_lockout_lifted_total", Help: "Lockout-induced locks cleared on a new day."},
	{ID: libauth.MetricLockoutConflict, Name: "libauth_lockout_conflict_total", Help: "Lost compare-and-swap rounds on the failure counter."},
	{ID: libauth.MetricLockoutRecordExhausted, Name: "libauth_lockout_record_exhausted_total", Help: "Sign-in failures not recorded within the retry budget."},
	{ID: libauth.MetricTokenIssued, Name: "libauth_token_issued_total", Help: "Issued access tokens."},
	{ID: libauth.MetricTokenRejected, Name: "libauth_token_rejected_total", Help: "Bearer tokens that failed verification."},
	{ID: libauth.MetricPasswordResetRequest, Name: "libauth_password_reset_request_total", Help: "Accepted password reset requests."},
	{ID: libauth.MetricPasswordResetConfirmSuccess, Name: "libauth_password_reset_confirm_success_total", Help: "Redeemed password reset tokens."},
	{ID: libauth.MetricPasswordResetConfirmFailure, Name: "libauth_password_reset_confirm_failure_total", Help: "Rejected password reset redemptions."},
	{ID: libauth.MetricPasswordResetDeliveryFailed, Name: "libauth_password_reset_delivery_failed_total", Help: "Password reset messages that could not be queued."},
	{ID: libauth.MetricPasswordChangeSuccess, Name: "libauth_password_change_success_total", Help: "Self-service password changes."},
	{ID: libauth.MetricPasswordChangeInvalidOld, Name: "libauth_password_change_invalid_old_total", Help: "Password changes rejected for a wrong current password."},
	{ID: libauth.MetricPasswordChangeReuseRejected, Name: "libauth_password_change_reuse_rejected_total", Help: "Password changes rejected for reusing the current password."},
	{ID: libauth.MetricAdminPasswordReset, Name: "libauth_admin_password_reset_total", Help: "Administrative password resets."},
	{ID: libauth.MetricPasswordHashUpgraded, Name: "libauth_password_hash_upgraded_total", Help: "Password hashes rewritten with current parameters."},
	{ID: libauth.MetricRateLimitHit, Name: "libauth_rate_limit_hit_total", Help: "Rate-limit checks that denied requests."},
	{ID: libauth.MetricAccountStatusChanged, Name: "libauth_account_status_changed_total", Help: "Administrative account status changes."},
}

// HistogramDefs lists every exported engine histogram.
var HistogramDefs = []HistogramDef{
	{ID: libauth.MetricAuthenticateLatency, Name: "libauth_authenticate_latency_seconds", Help: "Bearer token authentication latency."},
}

// HistogramUpperBounds are the finite bucket bounds in seconds. The engine
// keeps one extra overflow bucket past the last bound.
var HistogramUpperBounds = []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5}

// HistogramBucketLabels are the "le" values of each bucket, overflow included.
var HistogramBucketLabels = []string{"0.005", "0.01", "0.025", "0.05", "0.1", "0.25", "0.5", "+Inf"}

// NormalizeBuckets copies raw into a fixed-size array, padding with zeros.
func NormalizeBuckets(raw []uint64) [8]uint64 {
	var out [8]uint64
	for i := 0; i < len(out) && i < len(raw); i++ {
		out[i] = raw[i]
	}
	return out
}

// CumulativeBuckets turns per-bucket counts into running totals. The last
// element is the total sample count.
func CumulativeBuckets(raw [8]uint64) [8]uint64 {
	var out [8]uint64
	var running uint64
	for i := 0; i < len(raw); i++ {
		running += raw[i]
		out[i] = running
	}
	return out
}
