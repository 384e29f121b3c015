package httpapi

import (
	"errors"
	"net/http"

	"github.com/MrEthical07/libauth"
	"github.com/MrEthical07/libauth/password"
)

// mapError turns an engine error into a status and a client-safe message.
// Driver and token library text never reaches the client.
func mapError(err error) (int, string) {
	var policyErr *password.PolicyError
	switch {
	case errors.Is(err, libauth.ErrInvalidCredentials):
		return http.StatusUnauthorized, "Username or password is incorrect"
	case errors.Is(err, libauth.ErrAccountLocked):
		return http.StatusBadRequest, "account locked after too many failed sign-in attempts, please contact an administrator"
	case errors.Is(err, libauth.ErrRateLimited):
		return http.StatusTooManyRequests, "Too many requests"
	case errors.Is(err, libauth.ErrInvalidOrExpiredToken):
		return http.StatusBadRequest, "Invalid or expired reset token"
	case errors.Is(err, libauth.ErrPrincipalNotFound):
		return http.StatusNotFound, "User not found"
	case errors.Is(err, libauth.ErrAccountNotActive):
		return http.StatusBadRequest, "User is not active"
	case errors.Is(err, libauth.ErrOldPasswordIncorrect):
		return http.StatusBadRequest, "Old password is incorrect"
	case errors.Is(err, libauth.ErrPasswordReuse):
		return http.StatusBadRequest, "New password must be different from current password"
	case errors.As(err, &policyErr):
		return http.StatusBadRequest, policyErr.Message
	case errors.Is(err, libauth.ErrPasswordPolicy):
		return http.StatusBadRequest, "Password does not meet the policy"
	case errors.Is(err, libauth.ErrPermissionDenied):
		return http.StatusForbidden, "You don't have permission to perform this action"
	case errors.Is(err, libauth.ErrStatusTransition):
		return http.StatusConflict, "Account status cannot be changed from its current status"
	case errors.Is(err, libauth.ErrMustChangePassword):
		return http.StatusForbidden, "must change password before using the system"
	case errors.Is(err, libauth.ErrTokenInvalid):
		return http.StatusForbidden, "Access denied"
	case errors.Is(err, libauth.ErrUnauthenticated):
		return http.StatusUnauthorized, "Unauthenticated"
	case errors.Is(err, libauth.ErrStoreUnavailable):
		return http.StatusServiceUnavailable, "Service unavailable"
	default:
		return http.StatusInternalServerError, "Internal server error"
	}
}
