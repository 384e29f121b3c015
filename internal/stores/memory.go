package stores

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/MrEthical07/libauth"
)

// Memory is an in-process libauth.CredentialStore. Every method copies
// principals in and out, so callers never share state with the store.
type Memory struct {
	mu      sync.Mutex
	byID    map[string]*libauth.Principal
	byEmail map[string]string
	loc     *time.Location
}

// NewMemory returns an empty store. loc must match the engine's Location.
func NewMemory(loc *time.Location) *Memory {
	if loc == nil {
		loc = time.UTC
	}
	return &Memory{
		byID:    make(map[string]*libauth.Principal),
		byEmail: make(map[string]string),
		loc:     loc,
	}
}

// Create adds p, assigning a UUID when p.ID is empty. It fails if the email
// is taken.
func (m *Memory) Create(_ context.Context, p *libauth.Principal) (*libauth.Principal, error) {
	if p == nil {
		return nil, errors.New("create principal: nil")
	}
	c := p.Clone()
	c.Email = strings.ToLower(strings.TrimSpace(c.Email))
	if c.ID == "" {
		c.ID = uuid.NewString()
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, taken := m.byEmail[c.Email]; taken {
		return nil, errors.New("create principal: email already in use")
	}
	m.byID[c.ID] = c
	m.byEmail[c.Email] = c.ID
	return c.Clone(), nil
}

func (m *Memory) FindByLogin(_ context.Context, email string) (*libauth.Principal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id, ok := m.byEmail[strings.ToLower(strings.TrimSpace(email))]
	if !ok {
		return nil, libauth.ErrPrincipalNotFound
	}
	return m.byID[id].Clone(), nil
}

func (m *Memory) FindByID(_ context.Context, id string) (*libauth.Principal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.byID[id]
	if !ok {
		return nil, libauth.ErrPrincipalNotFound
	}
	return p.Clone(), nil
}

func (m *Memory) FindByResetTokenHash(_ context.Context, tokenHash string) (*libauth.Principal, error) {
	if tokenHash == "" {
		return nil, libauth.ErrPrincipalNotFound
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range m.byID {
		if p.PasswordResetTokenHash == tokenHash {
			return p.Clone(), nil
		}
	}
	return nil, libauth.ErrPrincipalNotFound
}

func (m *Memory) ExistsByLogin(_ context.Context, email string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.byEmail[strings.ToLower(strings.TrimSpace(email))]
	return ok, nil
}

// Save stores a copy of p, inserting it when its id is new.
func (m *Memory) Save(_ context.Context, p *libauth.Principal) error {
	if p == nil || p.ID == "" {
		return errors.New("save principal: id required")
	}
	c := p.Clone()
	c.Email = strings.ToLower(c.Email)

	m.mu.Lock()
	defer m.mu.Unlock()
	if old, ok := m.byID[c.ID]; ok && old.Email != c.Email {
		delete(m.byEmail, old.Email)
	}
	m.byID[c.ID] = c
	m.byEmail[c.Email] = c.ID
	return nil
}

func (m *Memory) SetPasswordResetToken(_ context.Context, id, tokenHash string, expiry time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.byID[id]
	if !ok {
		return libauth.ErrPrincipalNotFound
	}
	p.PasswordResetTokenHash = tokenHash
	p.PasswordResetExpiry = &expiry
	p.MustChangePassword = true
	return nil
}

func (m *Memory) UpdatePassword(_ context.Context, id, newHash string, mustChange bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.byID[id]
	if !ok {
		return libauth.ErrPrincipalNotFound
	}
	p.PasswordHash = newHash
	p.MustChangePassword = mustChange
	return nil
}

func (m *Memory) ReplacePasswordHash(_ context.Context, id, oldHash, newHash string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.byID[id]
	if !ok {
		return false, libauth.ErrPrincipalNotFound
	}
	if p.PasswordHash != oldHash {
		return false, nil
	}
	p.PasswordHash = newHash
	return true, nil
}

func (m *Memory) SetAccountStatus(_ context.Context, id string, status libauth.AccountStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.byID[id]
	if !ok {
		return libauth.ErrPrincipalNotFound
	}
	p.Status = status
	p.FailedLoginAttempts = 0
	p.LastFailedLoginDate = nil
	return nil
}

func (m *Memory) CompareAndSwapLockout(_ context.Context, id string, prev, next libauth.LockoutState) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.byID[id]
	if !ok {
		return false, libauth.ErrPrincipalNotFound
	}
	if p.Lockout(m.loc) != prev {
		return false, nil
	}
	p.ApplyLockout(next, m.loc)
	return true, nil
}

func (m *Memory) RedeemPasswordReset(_ context.Context, id, tokenHash, newHash string, now time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.byID[id]
	if !ok || tokenHash == "" || p.PasswordResetTokenHash != tokenHash ||
		p.PasswordResetExpiry == nil || !p.PasswordResetExpiry.After(now) {
		return libauth.ErrInvalidOrExpiredToken
	}

	if p.Status == libauth.StatusLocked && p.LastFailedLoginDate != nil {
		p.Status = libauth.StatusActive
	}
	p.PasswordHash = newHash
	p.PasswordResetTokenHash = ""
	p.PasswordResetExpiry = nil
	p.MustChangePassword = false
	p.FailedLoginAttempts = 0
	p.LastFailedLoginDate = nil
	return nil
}

var _ libauth.CredentialStore = (*Memory)(nil)
