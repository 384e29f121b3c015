package security

import "time"

// MinArgon2Memory is the smallest Argon2id memory cost, in KiB, that is not
// flagged as weak.
const MinArgon2Memory = 19 * 1024

type PasswordReport struct {
	Memory      uint32
	Time        uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
}

type Report struct {
	SigningAlgorithm       string
	AccessTTL              time.Duration
	ResetTTL               time.Duration
	PasswordResetTTL       time.Duration
	Argon2                 PasswordReport
	PasswordMinLength      int
	PasswordMinStrength    int
	HashUpgradeOnLogin     bool
	LockoutThreshold       int
	CustomLockoutThreshold bool
	RateLimitingActive     bool
	RevocationActive       bool
	AuditActive            bool
	MetricsActive          bool
	Warnings               []string
}

type ReportInput struct {
	SigningAlgorithm        string
	AccessTTL               time.Duration
	ResetTTL                time.Duration
	PasswordResetTTL        time.Duration
	Password                PasswordReport
	PasswordMinLength       int
	PasswordMinStrength     int
	HashUpgradeOnLogin      bool
	LockoutThreshold        int
	DefaultLockoutThreshold int
	RateLimitEnabled        bool
	RedisConfigured         bool
	RevocationConfigured    bool
	AuditEnabled            bool
	MetricsEnabled          bool
}

// BuildReport summarizes the effective security posture and lists settings
// that weaken it.
func BuildReport(input ReportInput) Report {
	r := Report{
		SigningAlgorithm:       input.SigningAlgorithm,
		AccessTTL:              input.AccessTTL,
		ResetTTL:               input.ResetTTL,
		PasswordResetTTL:       input.PasswordResetTTL,
		Argon2:                 input.Password,
		PasswordMinLength:      input.PasswordMinLength,
		PasswordMinStrength:    input.PasswordMinStrength,
		HashUpgradeOnLogin:     input.HashUpgradeOnLogin,
		LockoutThreshold:       input.LockoutThreshold,
		CustomLockoutThreshold: input.LockoutThreshold != input.DefaultLockoutThreshold,
		RateLimitingActive:     input.RateLimitEnabled && input.RedisConfigured,
		RevocationActive:       input.RevocationConfigured,
		AuditActive:            input.AuditEnabled,
		MetricsActive:          input.MetricsEnabled,
	}

	if input.RateLimitEnabled && !input.RedisConfigured {
		r.Warnings = append(r.Warnings, "rate limiting is enabled but no redis client is configured")
	}
	if !r.RateLimitingActive {
		r.Warnings = append(r.Warnings, "sign-in and forgot-password requests are not throttled")
	}
	if r.CustomLockoutThreshold {
		r.Warnings = append(r.Warnings, "lockout threshold differs from the platform default")
	}
	if input.Password.Memory < MinArgon2Memory {
		r.Warnings = append(r.Warnings, "argon2 memory cost is below 19 MiB")
	}
	if input.PasswordMinStrength == 0 {
		r.Warnings = append(r.Warnings, "password strength scoring is off")
	}
	if !r.AuditActive {
		r.Warnings = append(r.Warnings, "audit events are disabled")
	}
	return r
}
