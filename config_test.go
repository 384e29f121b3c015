package libauth

import (
	"errors"
	"testing"
	"time"
)

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(*Config)
		wantValid bool
	}{
		{
			name:      "test defaults valid",
			mutate:    func(*Config) {},
			wantValid: true,
		},
		{
			name: "short access key",
			mutate: func(c *Config) {
				c.JWT.AccessKey = []byte("too-short")
			},
		},
		{
			name: "zero access ttl",
			mutate: func(c *Config) {
				c.JWT.AccessTTL = 0
			},
		},
		{
			name: "reset key without ttl",
			mutate: func(c *Config) {
				c.JWT.ResetTTL = 0
			},
		},
		{
			name: "custom threshold needs opt-in",
			mutate: func(c *Config) {
				c.Lockout.Threshold = 5
			},
		},
		{
			name: "custom threshold with opt-in",
			mutate: func(c *Config) {
				c.Lockout.Threshold = 5
				c.Lockout.AllowCustomThreshold = true
			},
			wantValid: true,
		},
		{
			name: "zero record retries",
			mutate: func(c *Config) {
				c.Lockout.MaxRecordRetries = 0
			},
		},
		{
			name: "weak argon2 memory",
			mutate: func(c *Config) {
				c.Password.Memory = 1024
			},
		},
		{
			name: "max below min length",
			mutate: func(c *Config) {
				c.Password.MinLength = 12
				c.Password.MaxLength = 10
			},
		},
		{
			name: "strength out of range",
			mutate: func(c *Config) {
				c.Password.MinStrength = 5
			},
		},
		{
			name: "relative reset url",
			mutate: func(c *Config) {
				c.PasswordReset.BaseURL = "/reset-password"
			},
		},
		{
			name: "zero reset ttl",
			mutate: func(c *Config) {
				c.PasswordReset.TTL = 0
			},
		},
		{
			name: "rate limit without window",
			mutate: func(c *Config) {
				c.RateLimit.Enabled = true
				c.RateLimit.Window = 0
			},
		},
		{
			name: "rate limit blank prefix",
			mutate: func(c *Config) {
				c.RateLimit.Enabled = true
				c.RateLimit.RedisPrefix = "  "
			},
		},
		{
			name: "audit without buffer",
			mutate: func(c *Config) {
				c.Audit.Enabled = true
				c.Audit.BufferSize = 0
			},
		},
		{
			name: "nil location",
			mutate: func(c *Config) {
				c.Location = nil
			},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := testConfig()
			tc.mutate(&cfg)
			err := cfg.Validate()
			if tc.wantValid && err != nil {
				t.Fatalf("expected valid config, got %v", err)
			}
			if !tc.wantValid && !errors.Is(err, ErrInvalidConfig) {
				t.Fatalf("expected ErrInvalidConfig, got %v", err)
			}
		})
	}
}

func TestDefaultConfigValues(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.JWT.AccessTTL != time.Hour || cfg.PasswordReset.TTL != 30*time.Minute {
		t.Fatalf("unexpected ttls: %v %v", cfg.JWT.AccessTTL, cfg.PasswordReset.TTL)
	}
	if cfg.Lockout.Threshold != 10 {
		t.Fatalf("expected threshold 10, got %d", cfg.Lockout.Threshold)
	}
	if err := cfg.Validate(); !errors.Is(err, ErrInvalidConfig) {
		t.Fatal("defaults without keys must not validate")
	}
}

func TestBuildRequiresStore(t *testing.T) {
	if _, err := New().WithConfig(testConfig()).Build(); !errors.Is(err, ErrInvalidConfig) {
		t.Fatalf("expected ErrInvalidConfig, got %v", err)
	}
}

func TestBuilderIsSingleUse(t *testing.T) {
	b := New().WithConfig(testConfig()).WithCredentialStore(newMockStore())
	e, err := b.Build()
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	defer e.Close()
	if _, err := b.Build(); err == nil {
		t.Fatal("second Build must fail")
	}
}

func TestEngineConfigIsCopy(t *testing.T) {
	env := newTestEnv(t, testConfig())
	cfg := env.engine.Config()
	cfg.JWT.AccessKey[0] ^= 0xff
	if env.engine.Config().JWT.AccessKey[0] == cfg.JWT.AccessKey[0] {
		t.Fatal("Config must return a defensive copy of the keys")
	}
}
