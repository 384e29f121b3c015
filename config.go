package libauth

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/MrEthical07/libauth/internal/lockout"
	"github.com/MrEthical07/libauth/jwt"
	"github.com/MrEthical07/libauth/password"
)

// Config is the engine configuration. Build it with DefaultConfig, adjust
// fields, and hand it to Builder.WithConfig. It is treated as immutable once
// the engine is built.
type Config struct {
	JWT           JWTConfig
	Lockout       LockoutConfig
	Password      PasswordConfig
	PasswordReset PasswordResetConfig
	RateLimit     RateLimitConfig
	Audit         AuditConfig
	Metrics       MetricsConfig

	// Location defines the calendar day used by the lockout window.
	Location *time.Location
}

/*
====================================
JWT CONFIG
====================================
*/

// JWTConfig holds the per-class HMAC keys and lifetimes.
type JWTConfig struct {
	AccessKey []byte
	AccessTTL time.Duration
	ResetKey  []byte
	ResetTTL  time.Duration
}

/*
====================================
LOCKOUT CONFIG
====================================
*/

// LockoutConfig controls the failed sign-in lockout.
type LockoutConfig struct {
	Threshold            int
	AllowCustomThreshold bool
	// MaxRecordRetries bounds the compare-and-swap loop that records a failure.
	MaxRecordRetries int
}

/*
====================================
PASSWORD CONFIG
====================================
*/

// PasswordConfig holds hashing parameters and the password policy.
type PasswordConfig struct {
	Memory         uint32
	Time           uint32
	Parallelism    uint8
	SaltLength     uint32
	KeyLength      uint32
	UpgradeOnLogin bool

	MinLength   int
	MaxLength   int
	MinStrength int
}

/*
====================================
PASSWORD RESET CONFIG
====================================
*/

// PasswordResetConfig controls reset token issuance.
type PasswordResetConfig struct {
	TTL     time.Duration
	BaseURL string
}

/*
====================================
RATE LIMIT CONFIG
====================================
*/

// RateLimitConfig controls the Redis-backed throttles. Throttling is skipped
// when no Redis client is configured.
type RateLimitConfig struct {
	Enabled           bool
	Window            time.Duration
	SignInMax         int
	ForgotPasswordMax int
	RedisPrefix       string
}

/*
====================================
AUDIT / METRICS CONFIG
====================================
*/

// AuditConfig controls the asynchronous audit dispatcher.
type AuditConfig struct {
	Enabled    bool
	BufferSize int
	DropIfFull bool
}

// MetricsConfig controls the in-process counters.
type MetricsConfig struct {
	Enabled                 bool
	EnableLatencyHistograms bool
}

/*
====================================
DEFAULT CONFIG
====================================
*/

// DefaultConfig returns the production defaults. JWT keys are left empty and
// must be supplied.
func DefaultConfig() Config {
	a := password.DefaultArgon2Config()
	return Config{
		JWT: JWTConfig{
			AccessTTL: 60 * time.Minute,
			ResetTTL:  30 * time.Minute,
		},
		Lockout: LockoutConfig{
			Threshold:        lockout.DefaultThreshold,
			MaxRecordRetries: 4,
		},
		Password: PasswordConfig{
			Memory:         a.Memory,
			Time:           a.Time,
			Parallelism:    a.Parallelism,
			SaltLength:     a.SaltLength,
			KeyLength:      a.KeyLength,
			UpgradeOnLogin: true,
			MinLength:      8,
			MaxLength:      128,
		},
		PasswordReset: PasswordResetConfig{
			TTL:     30 * time.Minute,
			BaseURL: "http://localhost:5173/reset-password",
		},
		RateLimit: RateLimitConfig{
			Enabled:           true,
			Window:            time.Minute,
			SignInMax:         20,
			ForgotPasswordMax: 5,
			RedisPrefix:       "libauth:rl",
		},
		Audit: AuditConfig{
			Enabled:    true,
			BufferSize: 1024,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled: true,
		},
		Location: time.UTC,
	}
}

/*
====================================
VALIDATION
====================================
*/

// Validate reports the first configuration problem, wrapped with ErrInvalidConfig.
func (c *Config) Validate() error {
	if err := c.validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	return nil
}

func (c *Config) validate() error {
	// JWT
	if len(c.JWT.AccessKey) < jwt.MinKeyLength {
		return fmt.Errorf("JWT AccessKey must be at least %d bytes", jwt.MinKeyLength)
	}
	if c.JWT.AccessTTL <= 0 {
		return errors.New("JWT AccessTTL must be > 0")
	}
	if len(c.JWT.ResetKey) > 0 && c.JWT.ResetTTL <= 0 {
		return errors.New("JWT ResetTTL must be > 0 when ResetKey is set")
	}

	// Lockout
	if c.Lockout.Threshold <= 0 {
		return errors.New("Lockout Threshold must be > 0")
	}
	if c.Lockout.Threshold != lockout.DefaultThreshold && !c.Lockout.AllowCustomThreshold {
		return fmt.Errorf("Lockout Threshold is fixed at %d", lockout.DefaultThreshold)
	}
	if c.Lockout.MaxRecordRetries <= 0 {
		return errors.New("Lockout MaxRecordRetries must be > 0")
	}

	// Password
	if _, err := password.NewArgon2(c.argon2Config()); err != nil {
		return err
	}
	if c.Password.MinLength < 1 {
		return errors.New("Password MinLength must be >= 1")
	}
	if c.Password.MaxLength < c.Password.MinLength {
		return errors.New("Password MaxLength must be >= MinLength")
	}
	if c.Password.MinStrength < 0 || c.Password.MinStrength > 4 {
		return errors.New("Password MinStrength must be within 0..4")
	}

	// Password reset
	if c.PasswordReset.TTL <= 0 {
		return errors.New("PasswordReset TTL must be > 0")
	}
	u, err := url.Parse(c.PasswordReset.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return errors.New("PasswordReset BaseURL must be an absolute URL")
	}

	// Rate limit
	if c.RateLimit.Enabled {
		if c.RateLimit.Window <= 0 {
			return errors.New("RateLimit Window must be > 0")
		}
		if c.RateLimit.SignInMax <= 0 || c.RateLimit.ForgotPasswordMax <= 0 {
			return errors.New("RateLimit maximums must be > 0")
		}
		if strings.TrimSpace(c.RateLimit.RedisPrefix) == "" {
			return errors.New("RateLimit RedisPrefix must not be empty")
		}
	}

	// Audit
	if c.Audit.Enabled && c.Audit.BufferSize <= 0 {
		return errors.New("Audit BufferSize must be > 0")
	}

	if c.Location == nil {
		return errors.New("Location must be set")
	}
	return nil
}

func (c *Config) argon2Config() password.Argon2Config {
	return password.Argon2Config{
		Memory:      c.Password.Memory,
		Time:        c.Password.Time,
		Parallelism: c.Password.Parallelism,
		SaltLength:  c.Password.SaltLength,
		KeyLength:   c.Password.KeyLength,
	}
}

func (c *Config) passwordPolicy() password.Policy {
	return password.Policy{
		MinLength:   c.Password.MinLength,
		MaxLength:   c.Password.MaxLength,
		MinStrength: c.Password.MinStrength,
	}
}
