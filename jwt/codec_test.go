package jwt

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"testing"
	"time"

	gjwt "github.com/golang-jwt/jwt/v5"
)

var (
	testAccessKey = []byte("access-key-access-key-access-key-0123")
	testResetKey  = []byte("reset-key-reset-key-reset-key-reset-0123")
)

func newTestCodec(t *testing.T, opts ...Option) *Codec {
	t.Helper()
	c, err := NewCodec(Config{
		AccessKey: testAccessKey,
		AccessTTL: 15 * time.Minute,
		ResetKey:  testResetKey,
		ResetTTL:  30 * time.Minute,
	}, opts...)
	if err != nil {
		t.Fatalf("new codec: %v", err)
	}
	return c
}

func TestNewCodecRejectsWeakConfig(t *testing.T) {
	cases := []struct {
		name string
		cfg  Config
	}{
		{"short access key", Config{AccessKey: []byte("short"), AccessTTL: time.Minute}},
		{"zero ttl", Config{AccessKey: testAccessKey}},
		{"short reset key", Config{AccessKey: testAccessKey, AccessTTL: time.Minute, ResetKey: []byte("x"), ResetTTL: time.Minute}},
		{"shared key", Config{AccessKey: testAccessKey, AccessTTL: time.Minute, ResetKey: testAccessKey, ResetTTL: time.Minute}},
		{"reset without ttl", Config{AccessKey: testAccessKey, AccessTTL: time.Minute, ResetKey: testResetKey}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := NewCodec(tc.cfg); !errors.Is(err, ErrInvalidConfig) {
				t.Fatalf("expected ErrInvalidConfig, got %v", err)
			}
		})
	}
}

func TestIssueVerifyRoundTrip(t *testing.T) {
	c := newTestCodec(t)

	token, err := c.IssueAccess("user-1", "alice@library.edu", []string{"ROLE_STUDENT", "ROLE_READER"})
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	claims, err := c.Verify(AccessToken, token)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if claims.Subject != "alice@library.edu" || claims.UserID != "user-1" {
		t.Fatalf("unexpected identity claims: %+v", claims)
	}
	if !reflect.DeepEqual(claims.Roles, []string{"ROLE_STUDENT", "ROLE_READER"}) {
		t.Fatalf("unexpected roles: %v", claims.Roles)
	}
	if claims.ID == "" {
		t.Fatal("expected token id")
	}

	gotID, err := c.ExtractTokenID(AccessToken, token)
	if err != nil || gotID != claims.ID {
		t.Fatalf("extract token id: %q %v", gotID, err)
	}
	sub, err := c.ExtractSubject(AccessToken, token)
	if err != nil || sub != claims.Subject {
		t.Fatalf("extract subject: %q %v", sub, err)
	}
	roles, err := c.ExtractRoles(AccessToken, token)
	if err != nil || !reflect.DeepEqual(roles, claims.Roles) {
		t.Fatalf("extract roles: %v %v", roles, err)
	}
}

func TestIssueUsesFreshTokenIDs(t *testing.T) {
	c := newTestCodec(t)
	seen := make(map[string]struct{})
	for i := 0; i < 50; i++ {
		token, err := c.IssueAccess("u", "u@library.edu", nil)
		if err != nil {
			t.Fatalf("issue: %v", err)
		}
		id, err := c.ExtractTokenID(AccessToken, token)
		if err != nil {
			t.Fatalf("extract id: %v", err)
		}
		if _, dup := seen[id]; dup {
			t.Fatalf("duplicate token id %s", id)
		}
		seen[id] = struct{}{}
	}
}

func TestExpirationIsIssuedAtPlusTTL(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	c := newTestCodec(t, WithClock(func() time.Time { return now }))

	token, err := c.IssueAccess("u", "u@library.edu", nil)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	claims, err := c.Verify(AccessToken, token)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if got := claims.ExpiresAt.Time.Sub(claims.IssuedAt.Time); got != 15*time.Minute {
		t.Fatalf("expected exp-iat of 15m, got %v", got)
	}
	exp, err := c.ExtractExpiration(AccessToken, token)
	if err != nil || !exp.Equal(now.Add(15*time.Minute)) {
		t.Fatalf("extract expiration: %v %v", exp, err)
	}
}

func TestExpiryBoundary(t *testing.T) {
	issuedAt := time.Unix(1_700_000_000, 0)
	now := issuedAt
	c := newTestCodec(t, WithClock(func() time.Time { return now }))

	token, err := c.IssueAccess("u", "u@library.edu", nil)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	now = issuedAt.Add(15*time.Minute - time.Second)
	if _, err := c.Verify(AccessToken, token); err != nil {
		t.Fatalf("expected token valid one second before expiry: %v", err)
	}

	now = issuedAt.Add(15*time.Minute + time.Second)
	if _, err := c.Verify(AccessToken, token); !errors.Is(err, ErrTokenExpired) {
		t.Fatalf("expected ErrTokenExpired, got %v", err)
	}
	if _, err := c.ExtractSubject(AccessToken, token); !errors.Is(err, ErrTokenExpired) {
		t.Fatalf("extract must re-verify, got %v", err)
	}
}

func flipChar(s string, i int) string {
	b := []byte(s)
	if b[i] == 'A' {
		b[i] = 'B'
	} else {
		b[i] = 'A'
	}
	return string(b)
}

func TestTamperedSegmentsRejected(t *testing.T) {
	c := newTestCodec(t)
	token, err := c.IssueAccess("user-1", "alice@library.edu", []string{"ROLE_STUDENT"})
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	parts := strings.Split(token, ".")
	if len(parts) != 3 {
		t.Fatalf("expected 3 segments, got %d", len(parts))
	}

	for seg := 0; seg < 3; seg++ {
		for _, idx := range []int{0, len(parts[seg]) / 2, len(parts[seg]) - 2} {
			mutated := append([]string(nil), parts...)
			mutated[seg] = flipChar(parts[seg], idx)
			tampered := strings.Join(mutated, ".")
			if tampered == token {
				continue
			}
			if _, err := c.Verify(AccessToken, tampered); err == nil {
				t.Fatalf("segment %d index %d: tampered token accepted", seg, idx)
			}
		}
	}
}

func TestSignatureErrorsClassified(t *testing.T) {
	c := newTestCodec(t)
	token, err := c.IssueAccess("user-1", "alice@library.edu", nil)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	parts := strings.Split(token, ".")
	parts[2] = flipChar(parts[2], len(parts[2])/2)

	if _, err := c.Verify(AccessToken, strings.Join(parts, ".")); !errors.Is(err, ErrSignatureInvalid) {
		t.Fatalf("expected ErrSignatureInvalid, got %v", err)
	}
	if _, err := c.Verify(AccessToken, "not-a-token"); !errors.Is(err, ErrTokenMalformed) {
		t.Fatalf("expected ErrTokenMalformed, got %v", err)
	}
}

func TestTokenClassesUseSeparateKeys(t *testing.T) {
	c := newTestCodec(t)
	reset, err := c.Issue(ResetToken, "user-1", "alice@library.edu", nil)
	if err != nil {
		t.Fatalf("issue reset: %v", err)
	}
	if _, err := c.Verify(AccessToken, reset); !errors.Is(err, ErrSignatureInvalid) {
		t.Fatalf("reset token must not verify as access token, got %v", err)
	}
	if _, err := c.Verify(ResetToken, reset); err != nil {
		t.Fatalf("verify reset: %v", err)
	}

	accessOnly, err := NewCodec(Config{AccessKey: testAccessKey, AccessTTL: time.Minute})
	if err != nil {
		t.Fatalf("new codec: %v", err)
	}
	if _, err := accessOnly.Issue(ResetToken, "u", "s", nil); !errors.Is(err, ErrUnknownClass) {
		t.Fatalf("expected ErrUnknownClass, got %v", err)
	}
}

func TestVerifyRejectsOtherAlgorithms(t *testing.T) {
	c := newTestCodec(t)
	claims := Claims{UserID: "u", RegisteredClaims: gjwt.RegisteredClaims{
		Subject:   "u@library.edu",
		ExpiresAt: gjwt.NewNumericDate(time.Now().Add(time.Minute)),
		IssuedAt:  gjwt.NewNumericDate(time.Now()),
	}}
	hs512, err := gjwt.NewWithClaims(gjwt.SigningMethodHS512, claims).SignedString(testAccessKey)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if _, err := c.Verify(AccessToken, hs512); err == nil {
		t.Fatal("expected HS512 token to be rejected")
	}

	none, err := gjwt.NewWithClaims(gjwt.SigningMethodNone, claims).SignedString(gjwt.UnsafeAllowNoneSignatureType)
	if err != nil {
		t.Fatalf("sign none: %v", err)
	}
	if _, err := c.Verify(AccessToken, none); err == nil {
		t.Fatal("expected alg=none token to be rejected")
	}
}

func TestVerifyRequiresExpiration(t *testing.T) {
	c := newTestCodec(t)
	claims := Claims{UserID: "u", RegisteredClaims: gjwt.RegisteredClaims{Subject: "u@library.edu"}}
	token, err := gjwt.NewWithClaims(gjwt.SigningMethodHS256, claims).SignedString(testAccessKey)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if _, err := c.Verify(AccessToken, token); err == nil {
		t.Fatal("expected token without exp to be rejected")
	}
}

func TestRevocationHook(t *testing.T) {
	revoked := map[string]bool{}
	c := newTestCodec(t, WithRevocationChecker(RevocationFunc(func(_ context.Context, id string) (bool, error) {
		return revoked[id], nil
	})))

	token, err := c.IssueAccess("u", "u@library.edu", nil)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	claims, err := c.Verify(AccessToken, token)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}

	revoked[claims.ID] = true
	if _, err := c.Verify(AccessToken, token); !errors.Is(err, ErrTokenRevoked) {
		t.Fatalf("expected ErrTokenRevoked, got %v", err)
	}

	failing := newTestCodec(t, WithRevocationChecker(RevocationFunc(func(context.Context, string) (bool, error) {
		return false, errors.New("backend down")
	})))
	if _, err := failing.Verify(AccessToken, token); !errors.Is(err, ErrRevocationUnavailable) {
		t.Fatalf("expected ErrRevocationUnavailable, got %v", err)
	}
}
