package libauth

import (
	"errors"
	"fmt"
	"time"

	internalaudit "github.com/MrEthical07/libauth/internal/audit"
	"github.com/MrEthical07/libauth/internal/lockout"
	"github.com/MrEthical07/libauth/internal/rate"
	"github.com/MrEthical07/libauth/jwt"
	"github.com/MrEthical07/libauth/password"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const dummyPassword = "libauth-timing-equalizer"

// Builder assembles an Engine. A Builder is single-use.
type Builder struct {
	config     Config
	store      CredentialStore
	notifier   Notifier
	redis      redis.UniversalClient
	logger     *zap.Logger
	auditSink  AuditSink
	now        func() time.Time
	revocation jwt.RevocationChecker
	built      bool
}

// New returns a Builder seeded with DefaultConfig.
func New() *Builder {
	return &Builder{
		config: DefaultConfig(),
		logger: zap.NewNop(),
		now:    time.Now,
	}
}

// WithConfig replaces the whole configuration.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cfg
	return b
}

// WithCredentialStore sets the principal store. Required.
func (b *Builder) WithCredentialStore(store CredentialStore) *Builder {
	b.store = store
	return b
}

// WithNotifier sets the outbound message queue used by RequestPasswordReset.
// Without one, reset links are only logged at debug level.
func (b *Builder) WithNotifier(n Notifier) *Builder {
	b.notifier = n
	return b
}

// WithRedis enables throttling and the Health ping.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

// WithLogger sets the engine logger. The engine logs on a child named "libauth".
func (b *Builder) WithLogger(logger *zap.Logger) *Builder {
	if logger != nil {
		b.logger = logger
	}
	return b
}

// WithAuditSink sets the audit destination.
func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	return b
}

// WithClock overrides the time source for the engine and its token codec.
func (b *Builder) WithClock(now func() time.Time) *Builder {
	if now != nil {
		b.now = now
	}
	return b
}

// WithRevocationChecker installs a token-id denylist lookup on the codec.
func (b *Builder) WithRevocationChecker(checker jwt.RevocationChecker) *Builder {
	b.revocation = checker
	return b
}

// WithMetricsEnabled toggles the in-process counters.
func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

// WithLatencyHistograms toggles the authentication latency histogram.
func (b *Builder) WithLatencyHistograms(enabled bool) *Builder {
	b.config.Metrics.EnableLatencyHistograms = enabled
	return b
}

// Build validates the configuration and wires the engine.
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}

	cfg := cloneConfig(b.config)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if b.store == nil {
		return nil, fmt.Errorf("%w: credential store required", ErrInvalidConfig)
	}

	// -------- TOKEN CODEC --------
	codecOpts := []jwt.Option{jwt.WithClock(b.now)}
	if b.revocation != nil {
		codecOpts = append(codecOpts, jwt.WithRevocationChecker(b.revocation))
	}
	codec, err := jwt.NewCodec(jwt.Config{
		AccessKey: cfg.JWT.AccessKey,
		AccessTTL: cfg.JWT.AccessTTL,
		ResetKey:  cfg.JWT.ResetKey,
		ResetTTL:  cfg.JWT.ResetTTL,
	}, codecOpts...)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}

	// -------- PASSWORD --------
	argon, err := password.NewArgon2(cfg.argon2Config())
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	hasher := password.NewChain(argon)
	dummy, err := hasher.Hash(dummyPassword)
	if err != nil {
		return nil, err
	}

	logger := b.logger.Named("libauth")

	e := &Engine{
		config:    cfg,
		store:     b.store,
		codec:     codec,
		hasher:    hasher,
		policy:    cfg.passwordPolicy(),
		lockout:   lockout.Policy{Threshold: cfg.Lockout.Threshold},
		redis:     b.redis,
		revokes:   b.revocation != nil,
		notifier:  b.notifier,
		metrics:   NewMetrics(cfg.Metrics),
		logger:    logger,
		now:       b.now,
		dummyHash: dummy,
	}

	// -------- RATE LIMITER --------
	if cfg.RateLimit.Enabled && b.redis != nil {
		e.limiter = rate.New(b.redis, rate.Config{
			Prefix:            cfg.RateLimit.RedisPrefix,
			Window:            cfg.RateLimit.Window,
			SignInMax:         cfg.RateLimit.SignInMax,
			ForgotPasswordMax: cfg.RateLimit.ForgotPasswordMax,
			EnableIPThrottle:  true,
		})
	} else if cfg.RateLimit.Enabled {
		logger.Warn("rate limiting enabled without a redis client; throttling is off")
	}

	// -------- AUDIT --------
	sink := b.auditSink
	if sink == nil {
		sink = NewZapSink(logger)
	}
	e.audit = internalaudit.NewDispatcher(internalaudit.Config{
		Enabled:    cfg.Audit.Enabled,
		BufferSize: cfg.Audit.BufferSize,
		DropIfFull: cfg.Audit.DropIfFull,
		Retained:   retainedAuditEvents,
	}, sink)

	b.built = true
	return e, nil
}

func cloneConfig(in Config) Config {
	out := in
	out.JWT.AccessKey = append([]byte(nil), in.JWT.AccessKey...)
	if len(in.JWT.ResetKey) > 0 {
		out.JWT.ResetKey = append([]byte(nil), in.JWT.ResetKey...)
	}
	return out
}
