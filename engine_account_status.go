package libauth

import (
	"context"
	"slices"

	"go.uber.org/zap"
)

type statusChange struct {
	action string
	to     AccountStatus
	from   []AccountStatus
}

var (
	statusLock    = statusChange{action: "lock", to: StatusLocked, from: []AccountStatus{StatusActive, StatusLocked}}
	statusUnlock  = statusChange{action: "unlock", to: StatusActive, from: []AccountStatus{StatusLocked}}
	statusDisable = statusChange{action: "disable", to: StatusInactive, from: []AccountStatus{StatusActive, StatusLocked}}
	statusEnable  = statusChange{action: "enable", to: StatusActive, from: []AccountStatus{StatusInactive}}
	statusRestore = statusChange{action: "activate", to: StatusActive, from: []AccountStatus{StatusLocked, StatusInactive}}
)

// LockAccount locks targetID on behalf of actor. The failure counters are
// cleared, so the lock does not lift on a new day and a password reset does
// not remove it; only an administrator can.
func (e *Engine) LockAccount(ctx context.Context, actor *Principal, targetID string) error {
	return e.changeAccountStatus(ctx, actor, targetID, statusLock)
}

// UnlockAccount returns a LOCKED account to ACTIVE and clears its counters.
func (e *Engine) UnlockAccount(ctx context.Context, actor *Principal, targetID string) error {
	return e.changeAccountStatus(ctx, actor, targetID, statusUnlock)
}

// DisableAccount marks targetID INACTIVE. Inactive accounts cannot sign in,
// and the lockout never overrides the status.
func (e *Engine) DisableAccount(ctx context.Context, actor *Principal, targetID string) error {
	return e.changeAccountStatus(ctx, actor, targetID, statusDisable)
}

// EnableAccount returns an INACTIVE account to ACTIVE.
func (e *Engine) EnableAccount(ctx context.Context, actor *Principal, targetID string) error {
	return e.changeAccountStatus(ctx, actor, targetID, statusEnable)
}

// SetAccountStatus applies status to targetID: LOCKED locks, INACTIVE
// disables, and ACTIVE lifts either a lock or a disable.
func (e *Engine) SetAccountStatus(ctx context.Context, actor *Principal, targetID string, status AccountStatus) error {
	switch status {
	case StatusLocked:
		return e.LockAccount(ctx, actor, targetID)
	case StatusInactive:
		return e.DisableAccount(ctx, actor, targetID)
	case StatusActive:
		return e.changeAccountStatus(ctx, actor, targetID, statusRestore)
	default:
		return ErrStatusTransition
	}
}

// changeAccountStatus follows the admin reset rules: ADMIN may change anyone
// but itself, SUB_ADMIN only lecturers of its own department.
func (e *Engine) changeAccountStatus(ctx context.Context, actor *Principal, targetID string, change statusChange) error {
	if err := e.ready(); err != nil {
		return err
	}
	if actor == nil {
		return ErrUnauthenticated
	}

	meta := func() map[string]string {
		return map[string]string{"action": change.action, "target_id": targetID}
	}

	target, err := e.store.FindByID(ctx, targetID)
	if err != nil {
		return storeErr(err)
	}
	if actor.ID == target.ID || !CanResetPasswordOf(actor, target) {
		e.emitAudit(ctx, auditEventAccountStatusChange, false, subjectOf(actor), ErrPermissionDenied, meta)
		return ErrPermissionDenied
	}

	if target.Status == change.to && (change.to != StatusLocked || target.LastFailedLoginDate == nil) {
		return nil
	}
	if !slices.Contains(change.from, target.Status) {
		e.emitAudit(ctx, auditEventAccountStatusChange, false, subjectOf(actor), ErrStatusTransition, meta)
		return ErrStatusTransition
	}

	if err := e.store.SetAccountStatus(ctx, target.ID, change.to); err != nil {
		return storeErr(err)
	}

	e.metricInc(MetricAccountStatusChanged)
	e.emitAudit(ctx, auditEventAccountStatusChange, true, subjectOf(actor), nil, meta)
	e.logger.Info("account status changed",
		zap.String("user_id", target.ID),
		zap.String("actor_id", actor.ID),
		zap.String("from", string(target.Status)),
		zap.String("to", string(change.to)))
	return nil
}
