package libauth

import (
	"context"
	"errors"
	"strconv"

	"github.com/MrEthical07/libauth/internal/lockout"
	"github.com/MrEthical07/libauth/jwt"
	"go.uber.org/zap"
)

// SignIn verifies email and plain and returns an access token.
//
// Unknown emails, wrong passwords and non-active accounts all yield
// ErrInvalidCredentials. Non-admin accounts are subject to the daily lockout:
// the counters of an earlier day are cleared before the lock check, and each
// failure on the current day is recorded. A locked account yields
// ErrAccountLocked without checking the password.
func (e *Engine) SignIn(ctx context.Context, email, plain string) (*SignInResult, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	email = NormalizeEmail(email)
	if email == "" || plain == "" {
		e.metricInc(MetricSignInFailure)
		return nil, ErrInvalidCredentials
	}

	if err := e.throttle(ctx, "sign_in", email, e.allowSignIn); err != nil {
		return nil, err
	}

	p, err := e.store.FindByLogin(ctx, email)
	if err != nil {
		if errors.Is(err, ErrPrincipalNotFound) {
			_, _ = e.hasher.Verify(plain, e.dummyHash)
			e.metricInc(MetricSignInFailure)
			e.emitAudit(ctx, auditEventSignInFailure, false, auditSubject{email: email}, ErrInvalidCredentials, nil)
			return nil, ErrInvalidCredentials
		}
		return nil, storeErr(err)
	}

	p, err = e.beginAttempt(ctx, p)
	if err != nil {
		if errors.Is(err, ErrAccountLocked) {
			e.metricInc(MetricSignInLocked)
			e.emitAudit(ctx, auditEventSignInFailure, false, subjectOf(p), err, nil)
		}
		return nil, err
	}

	if p.Status != StatusActive {
		e.recordFailure(ctx, p)
		e.metricInc(MetricSignInFailure)
		e.emitAudit(ctx, auditEventSignInFailure, false, subjectOf(p), ErrAccountNotActive, nil)
		return nil, ErrInvalidCredentials
	}

	ok, verr := e.hasher.Verify(plain, p.PasswordHash)
	if verr != nil {
		e.logger.Warn("password verification error",
			zap.String("user_id", p.ID), zap.Error(verr))
	}
	if !ok {
		e.recordFailure(ctx, p)
		e.metricInc(MetricSignInFailure)
		e.emitAudit(ctx, auditEventSignInFailure, false, subjectOf(p), ErrInvalidCredentials, nil)
		return nil, ErrInvalidCredentials
	}

	e.recordSuccess(ctx, p)
	e.upgradeHash(ctx, p, plain)

	token, err := e.codec.Issue(jwt.AccessToken, p.ID, p.Email, p.Roles)
	if err != nil {
		return nil, err
	}
	e.metricInc(MetricTokenIssued)

	if e.limiter != nil {
		if err := e.limiter.ResetSignIn(ctx, email); err != nil {
			e.logger.Debug("reset sign-in window failed", zap.Error(err))
		}
	}

	e.metricInc(MetricSignInSuccess)
	e.emitAudit(ctx, auditEventSignInSuccess, true, subjectOf(p), nil, nil)

	return &SignInResult{
		AccessToken:        token,
		ExpiresInMillis:    e.codec.TTL(jwt.AccessToken).Milliseconds(),
		User:               p.Public(),
		MustChangePassword: p.MustChangePassword,
	}, nil
}

func (e *Engine) allowSignIn(ctx context.Context, email, ip string) error {
	return e.limiter.AllowSignIn(ctx, email, ip)
}

// beginAttempt applies the proactive daily reset and the lock check. It
// persists a changed state by compare-and-swap and re-reads the principal
// when another request got there first.
func (e *Engine) beginAttempt(ctx context.Context, p *Principal) (*Principal, error) {
	loc := e.config.Location
	exempt := p.IsAdmin()

	for attempt := 0; ; attempt++ {
		prev := p.Lockout(loc)
		next, lockErr := e.lockout.BeginAttempt(prev, exempt, e.today())
		if !lockout.Changed(prev, next) {
			if lockErr != nil {
				return p, ErrAccountLocked
			}
			return p, nil
		}

		swapped, err := e.store.CompareAndSwapLockout(ctx, p.ID, prev, next)
		if err != nil {
			return p, storeErr(err)
		}
		if swapped {
			if prev.Locked && !next.Locked {
				e.metricInc(MetricLockoutLifted)
				e.emitAudit(ctx, auditEventLockoutLifted, true, subjectOf(p), nil, nil)
			}
			p.ApplyLockout(next, loc)
			if lockErr != nil {
				return p, ErrAccountLocked
			}
			return p, nil
		}

		e.metricInc(MetricLockoutConflict)
		if attempt+1 >= e.config.Lockout.MaxRecordRetries {
			// Another request already moved the counters; judge by what it wrote.
			if lockErr != nil {
				return p, ErrAccountLocked
			}
			return p, nil
		}
		if p, err = e.store.FindByID(ctx, p.ID); err != nil {
			return nil, storeErr(err)
		}
	}
}

// recordFailure counts one failed attempt. The read-modify-CAS cycle is
// retried against a fresh read so concurrent failures are not lost. Errors
// are logged; the caller's sign-in fails either way.
func (e *Engine) recordFailure(ctx context.Context, p *Principal) {
	loc := e.config.Location
	exempt := p.IsAdmin()
	id := p.ID

	for attempt := 0; attempt < e.config.Lockout.MaxRecordRetries; attempt++ {
		if attempt > 0 {
			fresh, err := e.store.FindByID(ctx, id)
			if err != nil {
				e.logger.Error("reload principal for failure count", zap.String("user_id", id), zap.Error(err))
				return
			}
			p = fresh
		}

		prev := p.Lockout(loc)
		next := e.lockout.RecordFailure(prev, exempt, e.today())
		if !lockout.Changed(prev, next) {
			return
		}

		swapped, err := e.store.CompareAndSwapLockout(ctx, id, prev, next)
		if err != nil {
			e.logger.Error("record failed sign-in", zap.String("user_id", id), zap.Error(err))
			return
		}
		if swapped {
			if next.Locked && !prev.Locked && p.Status != StatusInactive {
				e.metricInc(MetricAccountLocked)
				e.emitAudit(ctx, auditEventAccountLocked, false, subjectOf(p), ErrAccountLocked, func() map[string]string {
					return map[string]string{"attempts": strconv.Itoa(next.Attempts)}
				})
				e.logger.Info("account locked", zap.String("user_id", id), zap.Int("attempts", next.Attempts))
			}
			p.ApplyLockout(next, loc)
			return
		}
		e.metricInc(MetricLockoutConflict)
	}

	e.metricInc(MetricLockoutRecordExhausted)
	e.logger.Warn("failed sign-in not recorded after retries",
		zap.String("user_id", id), zap.Int("retries", e.config.Lockout.MaxRecordRetries))
}

func (e *Engine) recordSuccess(ctx context.Context, p *Principal) {
	loc := e.config.Location
	prev := p.Lockout(loc)
	next := e.lockout.RecordSuccess(prev, p.IsAdmin())
	if !lockout.Changed(prev, next) {
		return
	}
	swapped, err := e.store.CompareAndSwapLockout(ctx, p.ID, prev, next)
	if err != nil {
		e.logger.Warn("clear failure counters", zap.String("user_id", p.ID), zap.Error(err))
		return
	}
	if swapped {
		p.ApplyLockout(next, loc)
	}
}

func (e *Engine) upgradeHash(ctx context.Context, p *Principal, plain string) {
	if !e.config.Password.UpgradeOnLogin {
		return
	}
	needs, err := e.hasher.NeedsUpgrade(p.PasswordHash)
	if err != nil || !needs {
		return
	}
	newHash, err := e.hasher.Hash(plain)
	if err != nil {
		e.logger.Warn("rehash password", zap.String("user_id", p.ID), zap.Error(err))
		return
	}
	swapped, err := e.store.ReplacePasswordHash(ctx, p.ID, p.PasswordHash, newHash)
	if err != nil {
		e.logger.Warn("save upgraded password hash", zap.String("user_id", p.ID), zap.Error(err))
		return
	}
	if !swapped {
		// The password changed while this sign-in was in flight.
		return
	}
	p.PasswordHash = newHash
	e.metricInc(MetricPasswordHashUpgraded)
}
