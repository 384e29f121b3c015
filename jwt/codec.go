package jwt

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// MinKeyLength is the minimum HMAC key size accepted for any token class.
const MinKeyLength = 32

// TokenClass selects the signing key and TTL used for a token.
type TokenClass uint8

const (
	// AccessToken is the class presented on every authenticated request.
	AccessToken TokenClass = iota
	// ResetToken is reserved for signed password-reset artifacts.
	ResetToken
)

func (c TokenClass) String() string {
	switch c {
	case AccessToken:
		return "access"
	case ResetToken:
		return "reset"
	default:
		return fmt.Sprintf("class(%d)", uint8(c))
	}
}

// Config holds the per-class keys and lifetimes. ResetKey may be left empty,
// in which case the reset class is disabled.
type Config struct {
	AccessKey []byte
	AccessTTL time.Duration
	ResetKey  []byte
	ResetTTL  time.Duration
}

// Claims is the verified claim set of a bearer token.
type Claims struct {
	UserID string   `json:"userId"`
	Roles  []string `json:"role"`
	jwt.RegisteredClaims
}

// Option customizes a Codec.
type Option func(*Codec)

// WithClock overrides the time source used for iat, exp and expiry checks.
func WithClock(now func() time.Time) Option {
	return func(c *Codec) {
		if now != nil {
			c.now = now
		}
	}
}

// WithRevocationChecker installs a token-id lookup consulted after signature
// and expiry checks pass.
func WithRevocationChecker(checker RevocationChecker) Option {
	return func(c *Codec) {
		c.revocation = checker
	}
}

type classKey struct {
	key []byte
	ttl time.Duration
}

// Codec signs and verifies bearer tokens. It is immutable after NewCodec and
// safe for concurrent use.
type Codec struct {
	classes    map[TokenClass]classKey
	now        func() time.Time
	revocation RevocationChecker
}

// NewCodec validates cfg and builds a Codec.
func NewCodec(cfg Config, opts ...Option) (*Codec, error) {
	if len(cfg.AccessKey) < MinKeyLength {
		return nil, fmt.Errorf("%w: access key must be at least %d bytes", ErrInvalidConfig, MinKeyLength)
	}
	if cfg.AccessTTL <= 0 {
		return nil, fmt.Errorf("%w: access ttl must be > 0", ErrInvalidConfig)
	}

	c := &Codec{
		classes: map[TokenClass]classKey{
			AccessToken: {key: bytes.Clone(cfg.AccessKey), ttl: cfg.AccessTTL},
		},
		now: time.Now,
	}

	if len(cfg.ResetKey) > 0 {
		if len(cfg.ResetKey) < MinKeyLength {
			return nil, fmt.Errorf("%w: reset key must be at least %d bytes", ErrInvalidConfig, MinKeyLength)
		}
		if bytes.Equal(cfg.ResetKey, cfg.AccessKey) {
			return nil, fmt.Errorf("%w: reset key must differ from access key", ErrInvalidConfig)
		}
		if cfg.ResetTTL <= 0 {
			return nil, fmt.Errorf("%w: reset ttl must be > 0", ErrInvalidConfig)
		}
		c.classes[ResetToken] = classKey{key: bytes.Clone(cfg.ResetKey), ttl: cfg.ResetTTL}
	}

	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// TTL returns the configured lifetime for class, or zero when the class is disabled.
func (c *Codec) TTL(class TokenClass) time.Duration {
	return c.classes[class].ttl
}

// Issue signs a new token of the given class for a principal.
func (c *Codec) Issue(class TokenClass, userID, subject string, roles []string) (string, error) {
	ck, ok := c.classes[class]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnknownClass, class)
	}

	issuedAt := c.now()
	claims := Claims{
		UserID: userID,
		Roles:  append([]string(nil), roles...),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			ExpiresAt: jwt.NewNumericDate(issuedAt.Add(ck.ttl)),
		},
	}
	if claims.Roles == nil {
		claims.Roles = []string{}
	}

	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(ck.key)
}

// IssueAccess is Issue for the access class.
func (c *Codec) IssueAccess(userID, subject string, roles []string) (string, error) {
	return c.Issue(AccessToken, userID, subject, roles)
}

// Verify is VerifyContext with a background context.
func (c *Codec) Verify(class TokenClass, token string) (*Claims, error) {
	return c.VerifyContext(context.Background(), class, token)
}

// VerifyContext checks signature, structure and expiry, then consults the
// revocation hook when one is installed. The returned errors are meant for
// logs; callers must not echo them to clients.
func (c *Codec) VerifyContext(ctx context.Context, class TokenClass, token string) (*Claims, error) {
	ck, ok := c.classes[class]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownClass, class)
	}
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, ErrTokenMalformed
	}

	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithStrictDecoding(),
		jwt.WithTimeFunc(c.now),
	)

	parsed, err := parser.ParseWithClaims(token, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		if t.Method.Alg() != jwt.SigningMethodHS256.Alg() {
			return nil, fmt.Errorf("unexpected signing algorithm: %s", t.Method.Alg())
		}
		return ck.key, nil
	})
	if err != nil {
		return nil, classifyParseError(err)
	}

	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return nil, ErrTokenMalformed
	}
	if claims.Subject == "" {
		return nil, fmt.Errorf("%w: missing subject", ErrTokenMalformed)
	}

	if c.revocation != nil {
		if claims.ID == "" {
			return nil, fmt.Errorf("%w: missing token id", ErrTokenMalformed)
		}
		revoked, err := c.revocation.IsRevoked(ctx, claims.ID)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrRevocationUnavailable, err)
		}
		if revoked {
			return nil, ErrTokenRevoked
		}
	}

	return claims, nil
}

// ExtractSubject verifies token and returns its subject.
func (c *Codec) ExtractSubject(class TokenClass, token string) (string, error) {
	claims, err := c.Verify(class, token)
	if err != nil {
		return "", err
	}
	return claims.Subject, nil
}

// ExtractRoles verifies token and returns a copy of its role claim.
func (c *Codec) ExtractRoles(class TokenClass, token string) ([]string, error) {
	claims, err := c.Verify(class, token)
	if err != nil {
		return nil, err
	}
	return append([]string(nil), claims.Roles...), nil
}

// ExtractTokenID verifies token and returns its jti.
func (c *Codec) ExtractTokenID(class TokenClass, token string) (string, error) {
	claims, err := c.Verify(class, token)
	if err != nil {
		return "", err
	}
	return claims.ID, nil
}

// ExtractExpiration verifies token and returns its exp.
func (c *Codec) ExtractExpiration(class TokenClass, token string) (time.Time, error) {
	claims, err := c.Verify(class, token)
	if err != nil {
		return time.Time{}, err
	}
	return claims.ExpiresAt.Time, nil
}

func classifyParseError(err error) error {
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return fmt.Errorf("%w: %v", ErrTokenExpired, err)
	case errors.Is(err, jwt.ErrTokenSignatureInvalid), errors.Is(err, jwt.ErrTokenUnverifiable):
		return fmt.Errorf("%w: %v", ErrSignatureInvalid, err)
	default:
		return fmt.Errorf("%w: %v", ErrTokenMalformed, err)
	}
}
