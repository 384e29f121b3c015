package libauth

import (
	"context"
	"strings"
	"time"

	"github.com/MrEthical07/libauth/internal/lockout"
	"github.com/MrEthical07/libauth/jwt"
)

// AccountType is the platform role family of a principal.
type AccountType string

const (
	// AccountAdmin is exempt from lockout and from the must-change gate.
	AccountAdmin AccountType = "ADMIN"
	// AccountSubAdmin manages lecturers within one department.
	AccountSubAdmin AccountType = "SUB_ADMIN"
	// AccountLecturer is a department lecturer.
	AccountLecturer AccountType = "LECTURER"
	// AccountStudent is a library patron.
	AccountStudent AccountType = "STUDENT"
)

// ParseAccountType parses s case-insensitively.
func ParseAccountType(s string) (AccountType, bool) {
	switch t := AccountType(strings.ToUpper(strings.TrimSpace(s))); t {
	case AccountAdmin, AccountSubAdmin, AccountLecturer, AccountStudent:
		return t, true
	default:
		return "", false
	}
}

// AccountStatus is the lifecycle state of a principal.
type AccountStatus string

const (
	// StatusActive accounts may sign in.
	StatusActive AccountStatus = "ACTIVE"
	// StatusInactive accounts are disabled by an administrator.
	StatusInactive AccountStatus = "INACTIVE"
	// StatusLocked accounts are blocked by the lockout or by an administrator.
	StatusLocked AccountStatus = "LOCKED"
)

// ParseAccountStatus parses s case-insensitively. The legacy value "LOCK"
// maps to StatusLocked.
func ParseAccountStatus(s string) (AccountStatus, bool) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "ACTIVE":
		return StatusActive, true
	case "INACTIVE":
		return StatusInactive, true
	case "LOCKED", "LOCK":
		return StatusLocked, true
	default:
		return "", false
	}
}

// Principal is a stored account together with its credential state.
type Principal struct {
	ID                     string
	Email                  string
	FullName               string
	UserIdentifier         string
	AvatarURL              string
	DepartmentID           string
	PasswordHash           string
	Roles                  []string
	Type                   AccountType
	Status                 AccountStatus
	MustChangePassword     bool
	FailedLoginAttempts    int
	LastFailedLoginDate    *time.Time
	PasswordResetTokenHash string
	PasswordResetExpiry    *time.Time
}

// IsAdmin reports whether p is an ADMIN account.
func (p *Principal) IsAdmin() bool {
	return p != nil && p.Type == AccountAdmin
}

// Clone returns a deep copy of p.
func (p *Principal) Clone() *Principal {
	if p == nil {
		return nil
	}
	c := *p
	c.Roles = append([]string(nil), p.Roles...)
	if p.LastFailedLoginDate != nil {
		t := *p.LastFailedLoginDate
		c.LastFailedLoginDate = &t
	}
	if p.PasswordResetExpiry != nil {
		t := *p.PasswordResetExpiry
		c.PasswordResetExpiry = &t
	}
	return &c
}

// Lockout returns the counter slice of p. The calendar day is taken in loc.
func (p *Principal) Lockout(loc *time.Location) LockoutState {
	s := LockoutState{
		Attempts: p.FailedLoginAttempts,
		Locked:   p.Status == StatusLocked,
	}
	if p.LastFailedLoginDate != nil {
		s.LastFailure = lockout.DayOf(*p.LastFailedLoginDate, loc)
	}
	return s
}

// ApplyLockout writes s back into p. A lock lifted by s restores ACTIVE.
// An INACTIVE status is left as is.
func (p *Principal) ApplyLockout(s LockoutState, loc *time.Location) {
	p.FailedLoginAttempts = s.Attempts
	if s.LastFailure.IsZero() {
		p.LastFailedLoginDate = nil
	} else {
		t := s.LastFailure.Time(loc)
		p.LastFailedLoginDate = &t
	}
	switch {
	case p.Status == StatusInactive:
	case s.Locked:
		p.Status = StatusLocked
	case p.Status == StatusLocked:
		p.Status = StatusActive
	}
}

// LockoutState is the persisted failure counter of a principal.
type LockoutState = lockout.State

// PublicUser is the client-facing projection of a Principal.
type PublicUser struct {
	ID             string `json:"id"`
	Email          string `json:"email"`
	FullName       string `json:"fullName"`
	Role           string `json:"role"`
	UserIdentifier string `json:"userIdentifier,omitempty"`
	Type           string `json:"type"`
	Status         string `json:"status"`
	AvatarURL      string `json:"avatarUrl,omitempty"`
	DepartmentID   string `json:"departmentId,omitempty"`
}

// Public projects p for responses. It never carries credential fields.
func (p *Principal) Public() PublicUser {
	return PublicUser{
		ID:             p.ID,
		Email:          p.Email,
		FullName:       p.FullName,
		Role:           string(p.Type),
		UserIdentifier: p.UserIdentifier,
		Type:           string(p.Type),
		Status:         string(p.Status),
		AvatarURL:      p.AvatarURL,
		DepartmentID:   p.DepartmentID,
	}
}

// SignInResult is returned by Engine.SignIn.
type SignInResult struct {
	AccessToken        string     `json:"accessToken"`
	ExpiresInMillis    int64      `json:"expiresInMillis"`
	User               PublicUser `json:"user"`
	MustChangePassword bool       `json:"mustChangePassword"`
}

// Identity is the authenticated caller attached to a request context.
type Identity struct {
	Principal   *Principal
	Claims      *jwt.Claims
	Authorities []string
}

// HasAuthority reports whether the identity carries role.
func (i *Identity) HasAuthority(role string) bool {
	if i == nil {
		return false
	}
	for _, a := range i.Authorities {
		if a == role {
			return true
		}
	}
	return false
}

// CredentialStore is the persistence boundary for principals. Lookups return
// ErrPrincipalNotFound when nothing matches; other failures should be
// reported as-is and are wrapped with ErrStoreUnavailable by the engine.
//
// Implementations must make CompareAndSwapLockout, ReplacePasswordHash and
// RedeemPasswordReset atomic with respect to concurrent callers. None of the
// targeted updates may write columns they do not name.
type CredentialStore interface {
	FindByLogin(ctx context.Context, email string) (*Principal, error)
	FindByID(ctx context.Context, id string) (*Principal, error)
	FindByResetTokenHash(ctx context.Context, tokenHash string) (*Principal, error)
	ExistsByLogin(ctx context.Context, email string) (bool, error)

	// Save inserts or fully overwrites p. It is meant for provisioning; the
	// engine itself only writes through the targeted updates below, so a
	// concurrent failure count is never overwritten.
	Save(ctx context.Context, p *Principal) error

	// SetPasswordResetToken stores a reset digest and expiry and sets the
	// must-change flag.
	SetPasswordResetToken(ctx context.Context, id, tokenHash string, expiry time.Time) error

	// UpdatePassword sets the password hash and the must-change flag.
	UpdatePassword(ctx context.Context, id, newHash string, mustChange bool) error

	// ReplacePasswordHash swaps the hash only while the stored hash still
	// equals oldHash. It reports whether the swap happened.
	ReplacePasswordHash(ctx context.Context, id, oldHash, newHash string) (bool, error)

	// SetAccountStatus writes status and clears the failure counters.
	SetAccountStatus(ctx context.Context, id string, status AccountStatus) error

	// CompareAndSwapLockout stores next only if the persisted counters still
	// equal prev. It reports whether the swap happened.
	CompareAndSwapLockout(ctx context.Context, id string, prev, next LockoutState) (bool, error)

	// RedeemPasswordReset sets newHash, clears the reset fields, the
	// must-change flag and the failure counters, and restores ACTIVE for a
	// lockout-induced lock, all in one step. It applies only while the stored
	// token hash equals tokenHash and the expiry is after now; otherwise it
	// returns ErrInvalidOrExpiredToken.
	RedeemPasswordReset(ctx context.Context, id, tokenHash, newHash string, now time.Time) error
}

// PasswordResetMessage is handed to the Notifier after a reset token is issued.
type PasswordResetMessage struct {
	To            string `json:"to"`
	Name          string `json:"name"`
	Link          string `json:"link"`
	ExpiryMinutes int    `json:"expiryMinutes"`
}

// Notifier queues outbound messages. Enqueue must not block on delivery.
type Notifier interface {
	EnqueuePasswordReset(ctx context.Context, msg PasswordResetMessage) error
}
