package httpapi

import (
	"errors"
	"net/http"
	"net/mail"
	"strings"

	"github.com/MrEthical07/libauth"
	"github.com/MrEthical07/libauth/internal/logger"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

type signInRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type forgotPasswordRequest struct {
	Email string `json:"email"`
}

type resetPasswordRequest struct {
	Token       string `json:"token"`
	NewPassword string `json:"newPassword"`
}

type changePasswordRequest struct {
	CurrentPassword string `json:"currentPassword"`
	NewPassword     string `json:"newPassword"`
}

type adminResetPasswordRequest struct {
	NewPassword string `json:"newPassword"`
}

type accountStatusRequest struct {
	Status string `json:"status"`
}

func validEmail(s string) bool {
	addr, err := mail.ParseAddress(strings.TrimSpace(s))
	return err == nil && addr.Name == "" && addr.Address == strings.TrimSpace(s)
}

func (h *Handler) healthz(w http.ResponseWriter, r *http.Request) {
	if err := h.engine.Health(r.Context()); err != nil {
		h.log(r).Warn("health check failed", zap.Error(err))
		h.writeError(w, r, http.StatusServiceUnavailable, "Service unavailable")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) signIn(w http.ResponseWriter, r *http.Request) {
	var req signInRequest
	if err := decodeBody(w, r, &req); err != nil {
		h.writeError(w, r, http.StatusBadRequest, "Invalid request body")
		return
	}
	if !validEmail(req.Email) || req.Password == "" {
		h.writeError(w, r, http.StatusBadRequest, "A valid email and a password are required")
		return
	}

	res, err := h.engine.SignIn(r.Context(), req.Email, req.Password)
	if err != nil {
		h.writeMappedError(w, r, "sign_in", err)
		return
	}
	writeSuccess(w, http.StatusOK, "Sign in successfully", res)
}

func (h *Handler) forgotPassword(w http.ResponseWriter, r *http.Request) {
	var req forgotPasswordRequest
	if err := decodeBody(w, r, &req); err != nil {
		h.writeError(w, r, http.StatusBadRequest, "Invalid request body")
		return
	}
	if !validEmail(req.Email) {
		h.writeError(w, r, http.StatusBadRequest, "A valid email is required")
		return
	}

	if err := h.engine.RequestPasswordReset(r.Context(), req.Email); err != nil {
		if errors.Is(err, libauth.ErrPrincipalNotFound) {
			h.writeError(w, r, http.StatusNotFound, "Email not found")
			return
		}
		h.writeMappedError(w, r, "forgot_password", err)
		return
	}
	writeSuccess(w, http.StatusOK, "Password reset link sent", nil)
}

func (h *Handler) resetPassword(w http.ResponseWriter, r *http.Request) {
	var req resetPasswordRequest
	if err := decodeBody(w, r, &req); err != nil {
		h.writeError(w, r, http.StatusBadRequest, "Invalid request body")
		return
	}

	if err := h.engine.ResetPassword(r.Context(), req.Token, req.NewPassword); err != nil {
		h.writeMappedError(w, r, "reset_password", err)
		return
	}
	writeSuccess(w, http.StatusOK, "Password reset successfully", nil)
}

func (h *Handler) changePassword(w http.ResponseWriter, r *http.Request) {
	id, ok := libauth.IdentityFromContext(r.Context())
	if !ok {
		h.writeError(w, r, http.StatusUnauthorized, "Unauthenticated")
		return
	}
	var req changePasswordRequest
	if err := decodeBody(w, r, &req); err != nil {
		h.writeError(w, r, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.CurrentPassword == "" || req.NewPassword == "" {
		h.writeError(w, r, http.StatusBadRequest, "Current and new password are required")
		return
	}

	if err := h.engine.ChangePassword(r.Context(), id.Principal.ID, req.CurrentPassword, req.NewPassword); err != nil {
		h.writeMappedError(w, r, "change_password", err)
		return
	}
	writeSuccess(w, http.StatusOK, "Password changed successfully", nil)
}

func (h *Handler) adminResetPassword(w http.ResponseWriter, r *http.Request) {
	id, ok := libauth.IdentityFromContext(r.Context())
	if !ok {
		h.writeError(w, r, http.StatusUnauthorized, "Unauthenticated")
		return
	}
	var req adminResetPasswordRequest
	if err := decodeBody(w, r, &req); err != nil {
		h.writeError(w, r, http.StatusBadRequest, "Invalid request body")
		return
	}

	targetID := chi.URLParam(r, "id")
	if err := h.engine.AdminResetPassword(r.Context(), id.Principal, targetID, req.NewPassword); err != nil {
		h.writeMappedError(w, r, "admin_reset_password", err)
		return
	}
	writeSuccess(w, http.StatusOK, "Password reset successfully", nil)
}

func (h *Handler) setAccountStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := libauth.IdentityFromContext(r.Context())
	if !ok {
		h.writeError(w, r, http.StatusUnauthorized, "Unauthenticated")
		return
	}
	var req accountStatusRequest
	if err := decodeBody(w, r, &req); err != nil {
		h.writeError(w, r, http.StatusBadRequest, "Invalid request body")
		return
	}
	status, ok := libauth.ParseAccountStatus(req.Status)
	if !ok {
		h.writeError(w, r, http.StatusBadRequest, "Status must be ACTIVE, LOCKED or INACTIVE")
		return
	}

	targetID := chi.URLParam(r, "id")
	if err := h.engine.SetAccountStatus(r.Context(), id.Principal, targetID, status); err != nil {
		h.writeMappedError(w, r, "set_account_status", err)
		return
	}
	writeSuccess(w, http.StatusOK, "Account status updated successfully", nil)
}

func (h *Handler) me(w http.ResponseWriter, r *http.Request) {
	id, ok := libauth.IdentityFromContext(r.Context())
	if !ok {
		h.writeError(w, r, http.StatusUnauthorized, "Unauthenticated")
		return
	}
	writeSuccess(w, http.StatusOK, "Get current user successfully", id.Principal.Public())
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, status int, message string) {
	h.responder.writeError(w, r, status, message)
}

func (h *Handler) writeMappedError(w http.ResponseWriter, r *http.Request, operation string, err error) {
	status, message := mapError(err)
	fields := []zap.Field{
		zap.String("operation", operation),
		zap.Int("status_code", status),
		zap.Error(err),
	}
	if status >= 500 {
		h.log(r).Error("http operation failed", fields...)
	} else {
		h.log(r).Debug("http operation failed", fields...)
	}
	h.writeError(w, r, status, message)
}

func (h *Handler) log(r *http.Request) *zap.Logger {
	return logger.WithContext(r.Context(), h.logger)
}
