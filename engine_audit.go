package libauth

import (
	"context"
	"errors"
)

const (
	auditEventSignInSuccess          = "sign_in_success"
	auditEventSignInFailure          = "sign_in_failure"
	auditEventAccountLocked          = "account_locked"
	auditEventLockoutLifted          = "lockout_lifted"
	auditEventPasswordResetRequest   = "password_reset_request"
	auditEventPasswordResetConfirm   = "password_reset_confirm"
	auditEventPasswordChangeSuccess  = "password_change_success"
	auditEventPasswordChangeFailure  = "password_change_failure"
	auditEventAdminPasswordReset     = "admin_password_reset"
	auditEventTokenRejected          = "token_rejected"
	auditEventRateLimitTriggered     = "rate_limit_triggered"
	auditEventResetDeliveryDiscarded = "password_reset_delivery_discarded"
	auditEventAccountStatusChange    = "account_status_change"
)

// Account state changes wait for buffer room even when the audit config
// sheds events under load.
var retainedAuditEvents = []string{
	auditEventAccountLocked,
	auditEventLockoutLifted,
	auditEventPasswordResetConfirm,
	auditEventPasswordChangeSuccess,
	auditEventAdminPasswordReset,
	auditEventAccountStatusChange,
}

// AuditErrorCode is the stable error label stored in AuditEvent.Error.
type AuditErrorCode string

const (
	auditErrUnauthenticated    AuditErrorCode = "unauthenticated"
	auditErrInvalidCredentials AuditErrorCode = "invalid_credentials"
	auditErrAccountLocked      AuditErrorCode = "account_locked"
	auditErrAccountNotActive   AuditErrorCode = "account_not_active"
	auditErrRateLimited        AuditErrorCode = "rate_limited"
	auditErrInvalidToken       AuditErrorCode = "invalid_token"
	auditErrUserNotFound       AuditErrorCode = "user_not_found"
	auditErrOldPassword        AuditErrorCode = "old_password_incorrect"
	auditErrPasswordPolicy     AuditErrorCode = "password_policy"
	auditErrPasswordReuse      AuditErrorCode = "password_reuse"
	auditErrPermissionDenied   AuditErrorCode = "permission_denied"
	auditErrStatusTransition   AuditErrorCode = "invalid_status_transition"
	auditErrUnavailable        AuditErrorCode = "backend_unavailable"
	auditErrInternal           AuditErrorCode = "internal_error"
)

type auditSubject struct {
	userID       string
	email        string
	departmentID string
}

func subjectOf(p *Principal) auditSubject {
	if p == nil {
		return auditSubject{}
	}
	return auditSubject{userID: p.ID, email: p.Email, departmentID: p.DepartmentID}
}

func (e *Engine) emitAudit(
	ctx context.Context,
	eventType string,
	success bool,
	subject auditSubject,
	err error,
	metadataBuilder func() map[string]string,
) {
	if e == nil || e.audit == nil {
		return
	}

	var metadata map[string]string
	if metadataBuilder != nil {
		metadata = metadataBuilder()
	}

	event := AuditEvent{
		Timestamp:    e.now().UTC(),
		EventType:    eventType,
		UserID:       subject.userID,
		Email:        subject.email,
		DepartmentID: subject.departmentID,
		IP:           clientIPFromContext(ctx),
		Success:      success,
		Metadata:     metadata,
	}
	if code := auditErrorCode(err); code != "" {
		event.Error = string(code)
	}

	e.audit.Emit(ctx, event)
}

func (e *Engine) emitRateLimit(ctx context.Context, scope, email string) {
	e.metricInc(MetricRateLimitHit)
	e.emitAudit(ctx, auditEventRateLimitTriggered, false, auditSubject{email: email}, ErrRateLimited, func() map[string]string {
		return map[string]string{"scope": scope}
	})
}

func auditErrorCode(err error) AuditErrorCode {
	if err == nil {
		return ""
	}

	switch {
	case errors.Is(err, ErrUnauthenticated):
		return auditErrUnauthenticated
	case errors.Is(err, ErrInvalidCredentials):
		return auditErrInvalidCredentials
	case errors.Is(err, ErrAccountLocked):
		return auditErrAccountLocked
	case errors.Is(err, ErrAccountNotActive):
		return auditErrAccountNotActive
	case errors.Is(err, ErrRateLimited):
		return auditErrRateLimited
	case errors.Is(err, ErrTokenInvalid),
		errors.Is(err, ErrInvalidOrExpiredToken):
		return auditErrInvalidToken
	case errors.Is(err, ErrPrincipalNotFound):
		return auditErrUserNotFound
	case errors.Is(err, ErrOldPasswordIncorrect):
		return auditErrOldPassword
	case errors.Is(err, ErrPasswordPolicy):
		return auditErrPasswordPolicy
	case errors.Is(err, ErrPasswordReuse):
		return auditErrPasswordReuse
	case errors.Is(err, ErrPermissionDenied):
		return auditErrPermissionDenied
	case errors.Is(err, ErrStatusTransition):
		return auditErrStatusTransition
	case errors.Is(err, ErrStoreUnavailable):
		return auditErrUnavailable
	default:
		return auditErrInternal
	}
}
