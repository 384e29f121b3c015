package rate

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// Config holds rate limiter tuning parameters.
type Config struct {
	Prefix            string
	Window            time.Duration
	SignInMax         int
	ForgotPasswordMax int
	EnableIPThrottle  bool
}

// Limiter enforces per-email and per-IP fixed windows for sign-in and
// forgot-password using Redis counters.
type Limiter struct {
	redis  redis.UniversalClient
	config Config
}

// New creates a rate [Limiter] backed by the given Redis client.
func New(redisClient redis.UniversalClient, cfg Config) *Limiter {
	if cfg.Prefix == "" {
		cfg.Prefix = "libauth:rl"
	}
	return &Limiter{
		redis:  redisClient,
		config: cfg,
	}
}

// AllowSignIn counts one sign-in attempt for the email and IP pair and
// returns ErrRateLimited once either window is exhausted.
func (l *Limiter) AllowSignIn(ctx context.Context, email, ip string) error {
	return l.allow(ctx, scopeSignIn, email, ip, l.config.SignInMax)
}

// ResetSignIn clears the per-email sign-in window. Called after a successful
// sign-in; the per-IP window is left alone.
func (l *Limiter) ResetSignIn(ctx context.Context, email string) error {
	if err := l.redis.Del(ctx, l.key(scopeSignIn, "u", email)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

// AllowForgotPassword counts one reset request for the email and IP pair.
func (l *Limiter) AllowForgotPassword(ctx context.Context, email, ip string) error {
	return l.allow(ctx, scopeForgot, email, ip, l.config.ForgotPasswordMax)
}

// Attempts returns the current sign-in counter for an email. Missing keys
// return zero.
func (l *Limiter) Attempts(ctx context.Context, email string) (int, error) {
	count, err := l.redis.Get(ctx, l.key(scopeSignIn, "u", email)).Int64()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, nil
		}
		return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	if count < 0 {
		return 0, nil
	}
	return int(count), nil
}

const (
	scopeSignIn = "signin"
	scopeForgot = "forgot"
)

func (l *Limiter) allow(ctx context.Context, scope, email, ip string, max int) error {
	if max <= 0 {
		return nil
	}
	count, err := l.incrementWithTTL(ctx, l.key(scope, "u", email))
	if err != nil {
		return err
	}
	if count > int64(max) {
		return ErrRateLimited
	}

	if l.config.EnableIPThrottle && ip != "" {
		// The per-IP window tolerates several accounts behind one address.
		count, err = l.incrementWithTTL(ctx, l.key(scope, "ip", ip))
		if err != nil {
			return err
		}
		if count > int64(max*ipMultiplier) {
			return ErrRateLimited
		}
	}
	return nil
}

const ipMultiplier = 5

func (l *Limiter) key(scope, kind, id string) string {
	return l.config.Prefix + ":" + scope + ":" + kind + ":" + strings.ToLower(id)
}

func (l *Limiter) incrementWithTTL(ctx context.Context, key string) (int64, error) {
	count, err := l.redis.Incr(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	// Fixed-window semantics: set TTL only for the first hit in the window.
	if count == 1 {
		if err := l.redis.Expire(ctx, key, l.config.Window).Err(); err != nil {
			return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
		}
	}

	return count, nil
}
