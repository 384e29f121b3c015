package libauth

import (
	"context"
	"errors"
	"fmt"

	"github.com/MrEthical07/libauth/password"
	"go.uber.org/zap"
)

// ChangePassword replaces the password of principalID after checking
// currentPassword, and clears the must-change flag.
func (e *Engine) ChangePassword(ctx context.Context, principalID, currentPassword, newPassword string) error {
	if err := e.ready(); err != nil {
		return err
	}
	if principalID == "" {
		return ErrUnauthenticated
	}

	p, err := e.store.FindByID(ctx, principalID)
	if err != nil {
		return storeErr(err)
	}

	ok, err := e.hasher.Verify(currentPassword, p.PasswordHash)
	if err != nil && !errors.Is(err, password.ErrTooLong) {
		e.logger.Warn("password verification error", zap.String("user_id", p.ID), zap.Error(err))
	}
	if !ok {
		e.metricInc(MetricPasswordChangeInvalidOld)
		e.emitAudit(ctx, auditEventPasswordChangeFailure, false, subjectOf(p), ErrOldPasswordIncorrect, nil)
		return ErrOldPasswordIncorrect
	}

	if newPassword == currentPassword {
		e.metricInc(MetricPasswordChangeReuseRejected)
		e.emitAudit(ctx, auditEventPasswordChangeFailure, false, subjectOf(p), ErrPasswordReuse, nil)
		return ErrPasswordReuse
	}
	if err := e.policy.Validate(newPassword, p.Email, p.FullName); err != nil {
		e.emitAudit(ctx, auditEventPasswordChangeFailure, false, subjectOf(p), ErrPasswordPolicy, nil)
		return fmt.Errorf("%w: %w", ErrPasswordPolicy, err)
	}

	newHash, err := e.hasher.Hash(newPassword)
	if err != nil {
		return err
	}
	if err := e.store.UpdatePassword(ctx, p.ID, newHash, false); err != nil {
		return storeErr(err)
	}

	e.metricInc(MetricPasswordChangeSuccess)
	e.emitAudit(ctx, auditEventPasswordChangeSuccess, true, subjectOf(p), nil, nil)
	return nil
}

// CanResetPasswordOf reports whether actor may reset target's password.
// ADMIN may reset anyone; SUB_ADMIN only lecturers of its own department.
func CanResetPasswordOf(actor, target *Principal) bool {
	if actor == nil || target == nil {
		return false
	}
	switch actor.Type {
	case AccountAdmin:
		return true
	case AccountSubAdmin:
		return target.Type == AccountLecturer &&
			actor.DepartmentID != "" &&
			actor.DepartmentID == target.DepartmentID
	default:
		return false
	}
}

// AdminResetPassword sets a new password for targetID on behalf of actor and
// forces a change at the next sign-in.
func (e *Engine) AdminResetPassword(ctx context.Context, actor *Principal, targetID, newPassword string) error {
	if err := e.ready(); err != nil {
		return err
	}
	if actor == nil {
		return ErrUnauthenticated
	}
	if actor.Type != AccountAdmin && actor.Type != AccountSubAdmin {
		e.emitAudit(ctx, auditEventAdminPasswordReset, false, subjectOf(actor), ErrPermissionDenied, nil)
		return ErrPermissionDenied
	}

	target, err := e.store.FindByID(ctx, targetID)
	if err != nil {
		return storeErr(err)
	}
	if !CanResetPasswordOf(actor, target) {
		e.emitAudit(ctx, auditEventAdminPasswordReset, false, subjectOf(actor), ErrPermissionDenied, func() map[string]string {
			return map[string]string{"target_id": target.ID}
		})
		return ErrPermissionDenied
	}

	if err := e.policy.Validate(newPassword, target.Email, target.FullName); err != nil {
		return fmt.Errorf("%w: %w", ErrPasswordPolicy, err)
	}
	newHash, err := e.hasher.Hash(newPassword)
	if err != nil {
		return err
	}

	if err := e.store.UpdatePassword(ctx, target.ID, newHash, true); err != nil {
		return storeErr(err)
	}

	e.metricInc(MetricAdminPasswordReset)
	e.emitAudit(ctx, auditEventAdminPasswordReset, true, subjectOf(actor), nil, func() map[string]string {
		return map[string]string{"target_id": target.ID}
	})
	return nil
}
