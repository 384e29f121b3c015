package libauth

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/MrEthical07/libauth/internal"
	"go.uber.org/zap"
)

// RequestPasswordReset issues a reset token for email and queues the link.
//
// Unknown emails return ErrPrincipalNotFound and non-active accounts return
// ErrAccountNotActive. Once the token is stored the request succeeds even if
// the message cannot be queued; queue failures are logged and counted.
func (e *Engine) RequestPasswordReset(ctx context.Context, email string) error {
	if err := e.ready(); err != nil {
		return err
	}
	email = NormalizeEmail(email)
	if email == "" {
		return ErrPrincipalNotFound
	}

	if err := e.throttle(ctx, "forgot_password", email, e.allowForgot); err != nil {
		return err
	}

	p, err := e.store.FindByLogin(ctx, email)
	if err != nil {
		err = storeErr(err)
		e.emitAudit(ctx, auditEventPasswordResetRequest, false, auditSubject{email: email}, err, nil)
		return err
	}
	if p.Status != StatusActive {
		e.emitAudit(ctx, auditEventPasswordResetRequest, false, subjectOf(p), ErrAccountNotActive, nil)
		return ErrAccountNotActive
	}

	token, err := internal.NewResetToken()
	if err != nil {
		return err
	}
	expiry := e.now().Add(e.config.PasswordReset.TTL)
	if err := e.store.SetPasswordResetToken(ctx, p.ID, internal.HashResetToken(token), expiry); err != nil {
		return storeErr(err)
	}

	e.metricInc(MetricPasswordResetRequest)
	e.emitAudit(ctx, auditEventPasswordResetRequest, true, subjectOf(p), nil, nil)

	link, err := resetLink(e.config.PasswordReset.BaseURL, token)
	if err != nil {
		e.logger.Error("build reset link", zap.Error(err))
		return nil
	}
	e.deliverReset(ctx, PasswordResetMessage{
		To:            p.Email,
		Name:          p.FullName,
		Link:          link,
		ExpiryMinutes: int(e.config.PasswordReset.TTL.Minutes()),
	}, p)
	return nil
}

func (e *Engine) allowForgot(ctx context.Context, email, ip string) error {
	return e.limiter.AllowForgotPassword(ctx, email, ip)
}

func (e *Engine) deliverReset(ctx context.Context, msg PasswordResetMessage, p *Principal) {
	if e.notifier == nil {
		e.logger.Debug("no notifier configured, reset link not delivered", zap.String("user_id", p.ID))
		return
	}
	if err := e.notifier.EnqueuePasswordReset(context.WithoutCancel(ctx), msg); err != nil {
		e.metricInc(MetricPasswordResetDeliveryFailed)
		e.emitAudit(ctx, auditEventResetDeliveryDiscarded, false, subjectOf(p), err, nil)
		e.logger.Warn("queue password reset message", zap.String("user_id", p.ID), zap.Error(err))
	}
}

func resetLink(base, token string) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", err
	}
	q := u.Query()
	q.Set("token", token)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// ResetPassword redeems a reset token and sets newPassword.
//
// The token is single-use: the store applies the update only while the
// stored digest and expiry still match, so a second or concurrent redemption
// returns ErrInvalidOrExpiredToken. A successful reset also clears the
// must-change flag and the failure counters.
func (e *Engine) ResetPassword(ctx context.Context, token, newPassword string) error {
	if err := e.ready(); err != nil {
		return err
	}
	token = strings.TrimSpace(token)
	if token == "" || newPassword == "" {
		e.metricInc(MetricPasswordResetConfirmFailure)
		return ErrInvalidOrExpiredToken
	}

	digest := internal.HashResetToken(token)
	p, err := e.store.FindByResetTokenHash(ctx, digest)
	if err != nil {
		if errors.Is(err, ErrPrincipalNotFound) {
			e.metricInc(MetricPasswordResetConfirmFailure)
			e.emitAudit(ctx, auditEventPasswordResetConfirm, false, auditSubject{}, ErrInvalidOrExpiredToken, nil)
			return ErrInvalidOrExpiredToken
		}
		return storeErr(err)
	}
	now := e.now()
	if p.PasswordResetExpiry == nil || !p.PasswordResetExpiry.After(now) {
		e.metricInc(MetricPasswordResetConfirmFailure)
		e.emitAudit(ctx, auditEventPasswordResetConfirm, false, subjectOf(p), ErrInvalidOrExpiredToken, nil)
		return ErrInvalidOrExpiredToken
	}

	if err := e.policy.Validate(newPassword, p.Email, p.FullName); err != nil {
		e.emitAudit(ctx, auditEventPasswordResetConfirm, false, subjectOf(p), ErrPasswordPolicy, nil)
		return fmt.Errorf("%w: %w", ErrPasswordPolicy, err)
	}
	newHash, err := e.hasher.Hash(newPassword)
	if err != nil {
		return err
	}

	if err := e.store.RedeemPasswordReset(ctx, p.ID, digest, newHash, now); err != nil {
		err = storeErr(err)
		if errors.Is(err, ErrInvalidOrExpiredToken) {
			e.metricInc(MetricPasswordResetConfirmFailure)
		}
		e.emitAudit(ctx, auditEventPasswordResetConfirm, false, subjectOf(p), err, nil)
		return err
	}

	e.metricInc(MetricPasswordResetConfirmSuccess)
	e.emitAudit(ctx, auditEventPasswordResetConfirm, true, subjectOf(p), nil, nil)
	return nil
}
