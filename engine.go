package libauth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	internalaudit "github.com/MrEthical07/libauth/internal/audit"
	"github.com/MrEthical07/libauth/internal/lockout"
	"github.com/MrEthical07/libauth/internal/rate"
	"github.com/MrEthical07/libauth/jwt"
	"github.com/MrEthical07/libauth/password"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Engine implements sign-in, bearer authentication and the password
// lifecycle. Engine is built once with a Builder and is safe for concurrent use.
type Engine struct {
	config    Config
	store     CredentialStore
	codec     *jwt.Codec
	hasher    *password.Chain
	policy    password.Policy
	lockout   lockout.Policy
	limiter   *rate.Limiter
	redis     redis.UniversalClient
	revokes   bool
	notifier  Notifier
	audit     *internalaudit.Dispatcher
	metrics   *Metrics
	logger    *zap.Logger
	now       func() time.Time
	dummyHash string
}

// Close drains pending audit events. It does not close the credential store,
// the Redis client or the notifier, which are owned by the caller.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	if e.audit != nil {
		e.audit.Close()
		for eventType, n := range e.audit.DroppedByType() {
			e.logger.Warn("audit events dropped",
				zap.String("event_type", eventType), zap.Uint64("dropped", n))
		}
	}
}

// AuditDropped returns the number of audit events discarded under backpressure.
func (e *Engine) AuditDropped() uint64 {
	if e == nil || e.audit == nil {
		return 0
	}
	return e.audit.Dropped()
}

// AuditDroppedByType breaks AuditDropped down by event type.
func (e *Engine) AuditDroppedByType() map[string]uint64 {
	if e == nil || e.audit == nil {
		return map[string]uint64{}
	}
	return e.audit.DroppedByType()
}

// MetricsSnapshot copies the engine counters. It is safe for concurrent use.
func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil || e.metrics == nil {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}
	return e.metrics.Snapshot()
}

// Codec exposes the token codec, mainly for tests and tooling.
func (e *Engine) Codec() *jwt.Codec {
	if e == nil {
		return nil
	}
	return e.codec
}

// Config returns a copy of the engine configuration.
func (e *Engine) Config() Config {
	if e == nil {
		return Config{}
	}
	return cloneConfig(e.config)
}

// Health pings Redis when one is configured.
func (e *Engine) Health(ctx context.Context) error {
	if e == nil {
		return ErrEngineNotReady
	}
	if e.redis == nil {
		return nil
	}
	if err := e.redis.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("%w: redis: %v", ErrStoreUnavailable, err)
	}
	return nil
}

// HashPassword hashes plain with the engine's primary hasher. Stores and
// seeding tools use it to create principals.
func (e *Engine) HashPassword(plain string) (string, error) {
	if e == nil || e.hasher == nil {
		return "", ErrEngineNotReady
	}
	return e.hasher.Hash(plain)
}

// RequiresPasswordChange reports whether p must pass the must-change gate.
func RequiresPasswordChange(p *Principal) bool {
	return p != nil && !p.IsAdmin() && p.MustChangePassword
}

// NormalizeEmail trims and lower-cases a login identifier.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func (e *Engine) metricInc(id MetricID) {
	if e == nil || e.metrics == nil {
		return
	}
	e.metrics.Inc(id)
}

func (e *Engine) today() lockout.Day {
	return lockout.DayOf(e.now(), e.config.Location)
}

func (e *Engine) ready() error {
	if e == nil || e.store == nil || e.codec == nil || e.hasher == nil {
		return ErrEngineNotReady
	}
	return nil
}

// storeErr passes ErrPrincipalNotFound and ErrInvalidOrExpiredToken through
// and wraps everything else as ErrStoreUnavailable.
func storeErr(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrPrincipalNotFound),
		errors.Is(err, ErrInvalidOrExpiredToken),
		errors.Is(err, ErrStoreUnavailable):
		return err
	default:
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
}

func (e *Engine) throttle(ctx context.Context, scope, email string, allow func(context.Context, string, string) error) error {
	if e.limiter == nil {
		return nil
	}
	err := allow(ctx, email, clientIPFromContext(ctx))
	switch {
	case err == nil:
		return nil
	case errors.Is(err, rate.ErrRateLimited):
		e.emitRateLimit(ctx, scope, email)
		return ErrRateLimited
	default:
		// Throttling fails open so a Redis outage does not block sign-in.
		e.logger.Warn("rate limiter unavailable", zap.String("scope", scope), zap.Error(err))
		return nil
	}
}
