package libauth

import "errors"

var (
	// ErrUnauthenticated is returned when a request carries no usable identity.
	ErrUnauthenticated = errors.New("unauthenticated")
	// ErrTokenInvalid wraps every bearer-token verification failure.
	ErrTokenInvalid = errors.New("access denied")
	// ErrMustChangePassword is returned by the must-change gate.
	ErrMustChangePassword = errors.New("must change password before using the system")
	// ErrPermissionDenied is returned when the actor may not perform the action.
	ErrPermissionDenied = errors.New("you don't have permission to perform this action")
	// ErrInvalidCredentials is returned for an unknown login, a wrong password or an inactive account.
	ErrInvalidCredentials = errors.New("username or password is incorrect")
	// ErrAccountLocked is returned while an account is locked.
	ErrAccountLocked = errors.New("account locked after too many failed sign-in attempts, please contact an administrator")
	// ErrInvalidOrExpiredToken is returned for an unknown, consumed or expired reset token.
	ErrInvalidOrExpiredToken = errors.New("invalid or expired reset token")
	// ErrPrincipalNotFound is returned when a lookup by email or id finds nothing.
	ErrPrincipalNotFound = errors.New("principal not found")
	// ErrAccountNotActive is returned when a reset is requested for a non-active account.
	ErrAccountNotActive = errors.New("user is not active")
	// ErrOldPasswordIncorrect is returned by ChangePassword when the current password does not match.
	ErrOldPasswordIncorrect = errors.New("old password is incorrect")
	// ErrPasswordPolicy is returned when a new password fails the policy.
	ErrPasswordPolicy = errors.New("password policy violation")
	// ErrPasswordReuse is returned when the new password equals the current one.
	ErrPasswordReuse = errors.New("new password must be different from current password")
	// ErrStatusTransition is returned when an account status change does not
	// apply to the account's current status.
	ErrStatusTransition = errors.New("account status change not allowed from the current status")
	// ErrRateLimited is returned when a throttle window is exhausted.
	ErrRateLimited = errors.New("too many requests")
	// ErrStoreUnavailable wraps credential store and backend failures.
	ErrStoreUnavailable = errors.New("credential store unavailable")
	// ErrEngineNotReady is returned when an Engine method is called on a nil or partially built engine.
	ErrEngineNotReady = errors.New("engine not initialized")
	// ErrInvalidConfig is returned by Config.Validate and Builder.Build.
	ErrInvalidConfig = errors.New("invalid config")
)
