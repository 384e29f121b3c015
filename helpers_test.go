package libauth

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

var (
	testAccessKey = []byte("library-access-key-library-access-key")
	testResetKey  = []byte("library-reset-key-library-reset-key-01")
	testStart     = time.Date(2025, time.March, 14, 10, 0, 0, 0, time.UTC)
)

const testPassword = "correct-horse-42"

type mockStore struct {
	mu    sync.Mutex
	users map[string]*Principal
	loc   *time.Location

	findErr  error
	casErr   error
	writeErr error

	// beforeWrite runs, without the lock held, ahead of every targeted
	// credential update.
	beforeWrite func()

	findByLoginCalls int
	findByIDCalls    int
	casCalls         int
	writeCalls       int
}

func newMockStore() *mockStore {
	return &mockStore{users: make(map[string]*Principal), loc: time.UTC}
}

func (m *mockStore) put(p *Principal) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.users[p.ID] = p.Clone()
}

func (m *mockStore) get(id string) *Principal {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.users[id].Clone()
}

func (m *mockStore) remove(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.users, id)
}

func (m *mockStore) FindByLogin(_ context.Context, email string) (*Principal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.findByLoginCalls++
	if m.findErr != nil {
		return nil, m.findErr
	}
	for _, p := range m.users {
		if strings.EqualFold(p.Email, email) {
			return p.Clone(), nil
		}
	}
	return nil, ErrPrincipalNotFound
}

func (m *mockStore) FindByID(_ context.Context, id string) (*Principal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.findByIDCalls++
	if m.findErr != nil {
		return nil, m.findErr
	}
	p, ok := m.users[id]
	if !ok {
		return nil, ErrPrincipalNotFound
	}
	return p.Clone(), nil
}

func (m *mockStore) FindByResetTokenHash(_ context.Context, tokenHash string) (*Principal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range m.users {
		if tokenHash != "" && p.PasswordResetTokenHash == tokenHash {
			return p.Clone(), nil
		}
	}
	return nil, ErrPrincipalNotFound
}

func (m *mockStore) ExistsByLogin(ctx context.Context, email string) (bool, error) {
	_, err := m.FindByLogin(ctx, email)
	return err == nil, nil
}

func (m *mockStore) Save(_ context.Context, p *Principal) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.writeCalls++
	if m.writeErr != nil {
		return m.writeErr
	}
	m.users[p.ID] = p.Clone()
	return nil
}

func (m *mockStore) runBeforeWrite() {
	m.mu.Lock()
	hook := m.beforeWrite
	m.mu.Unlock()
	if hook != nil {
		hook()
	}
}

func (m *mockStore) SetPasswordResetToken(_ context.Context, id, tokenHash string, expiry time.Time) error {
	m.runBeforeWrite()
	m.mu.Lock()
	defer m.mu.Unlock()
	m.writeCalls++
	if m.writeErr != nil {
		return m.writeErr
	}
	p, ok := m.users[id]
	if !ok {
		return ErrPrincipalNotFound
	}
	p.PasswordResetTokenHash = tokenHash
	p.PasswordResetExpiry = &expiry
	p.MustChangePassword = true
	return nil
}

func (m *mockStore) UpdatePassword(_ context.Context, id, newHash string, mustChange bool) error {
	m.runBeforeWrite()
	m.mu.Lock()
	defer m.mu.Unlock()
	m.writeCalls++
	if m.writeErr != nil {
		return m.writeErr
	}
	p, ok := m.users[id]
	if !ok {
		return ErrPrincipalNotFound
	}
	p.PasswordHash = newHash
	p.MustChangePassword = mustChange
	return nil
}

func (m *mockStore) ReplacePasswordHash(_ context.Context, id, oldHash, newHash string) (bool, error) {
	m.runBeforeWrite()
	m.mu.Lock()
	defer m.mu.Unlock()
	m.writeCalls++
	if m.writeErr != nil {
		return false, m.writeErr
	}
	p, ok := m.users[id]
	if !ok {
		return false, ErrPrincipalNotFound
	}
	if p.PasswordHash != oldHash {
		return false, nil
	}
	p.PasswordHash = newHash
	return true, nil
}

func (m *mockStore) SetAccountStatus(_ context.Context, id string, status AccountStatus) error {
	m.runBeforeWrite()
	m.mu.Lock()
	defer m.mu.Unlock()
	m.writeCalls++
	if m.writeErr != nil {
		return m.writeErr
	}
	p, ok := m.users[id]
	if !ok {
		return ErrPrincipalNotFound
	}
	p.Status = status
	p.FailedLoginAttempts = 0
	p.LastFailedLoginDate = nil
	return nil
}

func (m *mockStore) CompareAndSwapLockout(_ context.Context, id string, prev, next LockoutState) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.casCalls++
	if m.casErr != nil {
		return false, m.casErr
	}
	p, ok := m.users[id]
	if !ok {
		return false, ErrPrincipalNotFound
	}
	if p.Lockout(m.loc) != prev {
		return false, nil
	}
	p.ApplyLockout(next, m.loc)
	return true, nil
}

func (m *mockStore) RedeemPasswordReset(_ context.Context, id, tokenHash, newHash string, now time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.users[id]
	if !ok || p.PasswordResetTokenHash != tokenHash || p.PasswordResetExpiry == nil || !p.PasswordResetExpiry.After(now) {
		return ErrInvalidOrExpiredToken
	}
	if p.Status == StatusLocked && p.LastFailedLoginDate != nil {
		p.Status = StatusActive
	}
	p.PasswordHash = newHash
	p.PasswordResetTokenHash = ""
	p.PasswordResetExpiry = nil
	p.MustChangePassword = false
	p.FailedLoginAttempts = 0
	p.LastFailedLoginDate = nil
	return nil
}

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: testStart}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type captureNotifier struct {
	mu   sync.Mutex
	msgs []PasswordResetMessage
	err  error
}

func (n *captureNotifier) EnqueuePasswordReset(_ context.Context, msg PasswordResetMessage) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.err != nil {
		return n.err
	}
	n.msgs = append(n.msgs, msg)
	return nil
}

func (n *captureNotifier) last() (PasswordResetMessage, bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if len(n.msgs) == 0 {
		return PasswordResetMessage{}, false
	}
	return n.msgs[len(n.msgs)-1], true
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.JWT.AccessKey = testAccessKey
	cfg.JWT.ResetKey = testResetKey
	cfg.Password.Memory = 8 * 1024
	cfg.Password.Time = 1
	cfg.Password.Parallelism = 1
	cfg.RateLimit.Enabled = false
	cfg.Audit.Enabled = false
	return cfg
}

type testEnv struct {
	engine *Engine
	store  *mockStore
	clock  *testClock
}

func newTestEnv(t *testing.T, cfg Config, configure ...func(*Builder)) *testEnv {
	t.Helper()

	store := newMockStore()
	clock := newTestClock()
	b := New().
		WithConfig(cfg).
		WithCredentialStore(store).
		WithClock(clock.Now)
	for _, fn := range configure {
		fn(b)
	}

	engine, err := b.Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	t.Cleanup(engine.Close)
	return &testEnv{engine: engine, store: store, clock: clock}
}

func (env *testEnv) addUser(t *testing.T, id, email string, typ AccountType) *Principal {
	t.Helper()
	hash, err := env.engine.HashPassword(testPassword)
	if err != nil {
		t.Fatalf("hash failed: %v", err)
	}
	p := &Principal{
		ID:           id,
		Email:        email,
		FullName:     "Test " + string(typ),
		PasswordHash: hash,
		Roles:        []string{"ROLE_" + string(typ)},
		Type:         typ,
		Status:       StatusActive,
	}
	env.store.put(p)
	return p
}

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return mr, rdb
}
