package password

import (
	"fmt"
	"unicode/utf8"

	"github.com/ccojocar/zxcvbn-go"
)

// PolicyError describes why a candidate password was rejected.
type PolicyError struct {
	Code    string
	Message string
}

func (e *PolicyError) Error() string {
	return e.Message
}

// Is makes every PolicyError match ErrPolicy.
func (e *PolicyError) Is(target error) bool {
	return target == ErrPolicy
}

// Policy is the set of rules new passwords must satisfy. MinStrength is a
// zxcvbn score from 0 to 4; 0 disables the strength check.
type Policy struct {
	MinLength   int
	MaxLength   int
	MinStrength int
}

// DefaultPolicy mirrors the platform's historical rules: at least 8
// characters, no strength requirement.
func DefaultPolicy() Policy {
	return Policy{MinLength: 8, MaxLength: 128}
}

// Validate checks password. userInputs (email, name) are fed to zxcvbn so
// passwords built from them score low.
func (p Policy) Validate(password string, userInputs ...string) error {
	n := utf8.RuneCountInString(password)
	if p.MinLength > 0 && n < p.MinLength {
		return &PolicyError{
			Code:    "too_short",
			Message: fmt.Sprintf("password must be at least %d characters", p.MinLength),
		}
	}
	if p.MaxLength > 0 && n > p.MaxLength {
		return &PolicyError{
			Code:    "too_long",
			Message: fmt.Sprintf("password must be at most %d characters", p.MaxLength),
		}
	}

	if p.MinStrength > 0 {
		min := p.MinStrength
		if min > 4 {
			min = 4
		}
		if zxcvbn.PasswordStrength(password, userInputs).Score < min {
			return &PolicyError{
				Code:    "weak_password",
				Message: "password is too weak; choose a more complex value",
			}
		}
	}
	return nil
}
