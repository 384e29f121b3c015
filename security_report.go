package libauth

import (
	"github.com/MrEthical07/libauth/internal/lockout"
	"github.com/MrEthical07/libauth/internal/security"
)

// SecurityReport describes the effective security posture of an engine.
type SecurityReport = security.Report

// PasswordConfigReport lists the Argon2id parameters in effect.
type PasswordConfigReport = security.PasswordReport

// SecurityReport summarizes the engine's security-relevant settings. Warnings
// lists settings that weaken the posture, such as throttling without Redis.
func (e *Engine) SecurityReport() SecurityReport {
	if e == nil {
		return SecurityReport{}
	}
	c := e.config
	return security.BuildReport(security.ReportInput{
		SigningAlgorithm: "HS256",
		AccessTTL:        c.JWT.AccessTTL,
		ResetTTL:         c.JWT.ResetTTL,
		PasswordResetTTL: c.PasswordReset.TTL,
		Password: security.PasswordReport{
			Memory:      c.Password.Memory,
			Time:        c.Password.Time,
			Parallelism: c.Password.Parallelism,
			SaltLength:  c.Password.SaltLength,
			KeyLength:   c.Password.KeyLength,
		},
		PasswordMinLength:       c.Password.MinLength,
		PasswordMinStrength:     c.Password.MinStrength,
		HashUpgradeOnLogin:      c.Password.UpgradeOnLogin,
		LockoutThreshold:        e.lockout.Limit(),
		DefaultLockoutThreshold: lockout.DefaultThreshold,
		RateLimitEnabled:        c.RateLimit.Enabled,
		RedisConfigured:         e.redis != nil,
		RevocationConfigured:    e.revokes,
		AuditEnabled:            c.Audit.Enabled,
		MetricsEnabled:          c.Metrics.Enabled,
	})
}
