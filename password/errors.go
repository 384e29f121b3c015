package password

import "errors"

var (
	// ErrMalformedHash is returned when a stored hash cannot be parsed.
	ErrMalformedHash = errors.New("malformed password hash")
	// ErrUnsupportedHash is returned when no verifier recognises a stored hash.
	ErrUnsupportedHash = errors.New("unsupported password hash")
	// ErrInvalidParams is returned by constructors for weak hashing parameters.
	ErrInvalidParams = errors.New("invalid password hashing parameters")
	// ErrTooLong is returned when the input exceeds the configured byte limit.
	ErrTooLong = errors.New("password too long")
	// ErrPolicy is matched by every *PolicyError.
	ErrPolicy = errors.New("password policy violation")
)
