package password

import (
	"errors"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

// Bcrypt verifies legacy bcrypt hashes. It never produces new ones.
type Bcrypt struct {
	MaxPasswordBytes int
}

// Recognizes reports whether encoded carries a bcrypt prefix.
func (Bcrypt) Recognizes(encoded string) bool {
	return strings.HasPrefix(encoded, "$2a$") ||
		strings.HasPrefix(encoded, "$2b$") ||
		strings.HasPrefix(encoded, "$2y$")
}

// Verify reports whether plain matches encoded.
func (b Bcrypt) Verify(plain, encoded string) (bool, error) {
	limit := b.MaxPasswordBytes
	if limit <= 0 {
		limit = DefaultMaxPasswordBytes
	}
	if len(plain) > limit {
		return false, ErrTooLong
	}

	err := bcrypt.CompareHashAndPassword([]byte(encoded), []byte(plain))
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, bcrypt.ErrMismatchedHashAndPassword):
		return false, nil
	case errors.Is(err, bcrypt.ErrPasswordTooLong):
		return false, nil
	default:
		return false, ErrMalformedHash
	}
}
