package jwt

import "context"

// RevocationChecker reports whether a token id has been revoked. The codec
// only reads through this hook; writing revocation records is left to the
// owner of the backing store.
type RevocationChecker interface {
	IsRevoked(ctx context.Context, tokenID string) (bool, error)
}

// RevocationFunc adapts a function to RevocationChecker.
type RevocationFunc func(ctx context.Context, tokenID string) (bool, error)

// IsRevoked calls f.
func (f RevocationFunc) IsRevoked(ctx context.Context, tokenID string) (bool, error) {
	return f(ctx, tokenID)
}
