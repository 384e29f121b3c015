package jwt

import "errors"

var (
	// ErrTokenExpired is returned when the token's exp is not after the current time.
	ErrTokenExpired = errors.New("token expired")
	// ErrSignatureInvalid is returned when the signature does not match the token content.
	ErrSignatureInvalid = errors.New("token signature invalid")
	// ErrTokenMalformed is returned for structurally invalid tokens or missing required claims.
	ErrTokenMalformed = errors.New("token malformed")
	// ErrTokenRevoked is returned when the configured revocation hook reports the token id.
	ErrTokenRevoked = errors.New("token revoked")
	// ErrRevocationUnavailable is returned when the revocation hook itself fails.
	ErrRevocationUnavailable = errors.New("token revocation lookup unavailable")
	// ErrUnknownClass is returned when no key is configured for the requested token class.
	ErrUnknownClass = errors.New("unknown token class")
	// ErrInvalidConfig is returned by NewCodec for unusable key or TTL settings.
	ErrInvalidConfig = errors.New("invalid token codec configuration")
)
