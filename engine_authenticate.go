package libauth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/MrEthical07/libauth/jwt"
	"go.uber.org/zap"
)

// Authenticate verifies an access token and loads its principal.
//
// Token failures return an error matching ErrTokenInvalid that also wraps the
// codec error (jwt.ErrTokenExpired, jwt.ErrSignatureInvalid, ...). A valid
// token whose subject no longer exists returns ErrUnauthenticated. The
// must-change gate is not applied here; see RequiresPasswordChange.
func (e *Engine) Authenticate(ctx context.Context, token string) (*Identity, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}

	start := time.Now()
	defer func() {
		if e.metrics.LatencyEnabled() {
			e.metrics.Observe(MetricAuthenticateLatency, time.Since(start))
		}
	}()

	claims, err := e.codec.VerifyContext(ctx, jwt.AccessToken, strings.TrimSpace(token))
	if err != nil {
		e.metricInc(MetricTokenRejected)
		if errors.Is(err, jwt.ErrRevocationUnavailable) {
			e.logger.Warn("revocation lookup failed", zap.Error(err))
		}
		e.emitAudit(ctx, auditEventTokenRejected, false, auditSubject{}, ErrTokenInvalid, func() map[string]string {
			return map[string]string{"reason": tokenRejectReason(err)}
		})
		return nil, fmt.Errorf("%w: %w", ErrTokenInvalid, err)
	}

	p, err := e.store.FindByLogin(ctx, NormalizeEmail(claims.Subject))
	if err != nil {
		if errors.Is(err, ErrPrincipalNotFound) {
			e.metricInc(MetricTokenRejected)
			return nil, ErrUnauthenticated
		}
		return nil, storeErr(err)
	}
	if claims.UserID != "" && claims.UserID != p.ID {
		// The email was reassigned after the token was issued.
		e.metricInc(MetricTokenRejected)
		return nil, ErrUnauthenticated
	}

	authorities := append([]string(nil), p.Roles...)
	return &Identity{
		Principal:   p,
		Claims:      claims,
		Authorities: authorities,
	}, nil
}

func tokenRejectReason(err error) string {
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return "expired"
	case errors.Is(err, jwt.ErrSignatureInvalid):
		return "signature"
	case errors.Is(err, jwt.ErrTokenRevoked):
		return "revoked"
	case errors.Is(err, jwt.ErrRevocationUnavailable):
		return "revocation_unavailable"
	default:
		return "malformed"
	}
}
