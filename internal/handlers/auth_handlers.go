package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/velora-app/accounts/internal/domain"
)

// Register handles user registration
func (h *Handlers) Register(w http.ResponseWriter, r *http.Request) {
	var req domain.RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON format", "INVALID_INPUT")
		return
	}

	req.Normalize()
	if err := req.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error(), "INVALID_INPUT")
		return
	}

	user, err := h.authService.Register(r.Context(), &req)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"message": "User registered successfully. Verify your phone and email.",
		"userId":  user.ID,
	})
}

// VerifyPhone handles OTP-based phone verification
func (h *Handlers) VerifyPhone(w http.ResponseWriter, r *http.Request) {
	var req domain.VerifyPhoneRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON format", "INVALID_INPUT")
		return
	}

	if err := req.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error(), "INVALID_INPUT")
		return
	}

	if err := h.authService.VerifyPhone(r.Context(), req.UserID, req.OTP); err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"message": "Phone verified successfully",
	})
}

// VerifyEmail handles the signed email verification link
func (h *Handlers) VerifyEmail(w http.ResponseWriter, r *http.Request) {
	tokenString := r.URL.Query().Get("token")
	if tokenString == "" {
		h.writeServiceError(w, r, domain.ErrMissingToken)
		return
	}

	if _, err := h.authService.VerifyEmail(r.Context(), tokenString); err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"message": "Email verified successfully",
	})
}

// ResendPhoneOTP issues a fresh verification code to an unverified phone
func (h *Handlers) ResendPhoneOTP(w http.ResponseWriter, r *http.Request) {
	var req domain.ResendOTPRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON format", "INVALID_INPUT")
		return
	}

	req.Normalize()
	if err := req.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error(), "INVALID_INPUT")
		return
	}

	if err := h.authService.ResendPhoneOTP(r.Context(), req.Phone); err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"message": "OTP sent successfully",
	})
}

// Login handles credential authentication
func (h *Handlers) Login(w http.ResponseWriter, r *http.Request) {
	var req domain.LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON format", "INVALID_INPUT")
		return
	}

	req.Normalize()
	if err := req.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error(), "INVALID_INPUT")
		return
	}

	response, err := h.authService.Login(r.Context(), &req)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, response)
}

// ForgotPasswordRequest issues a password reset OTP
func (h *Handlers) ForgotPasswordRequest(w http.ResponseWriter, r *http.Request) {
	var req domain.ForgotPasswordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON format", "INVALID_INPUT")
		return
	}

	req.Normalize()
	if err := req.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error(), "INVALID_INPUT")
		return
	}

	if err := h.authService.ForgotPasswordRequest(r.Context(), req.Phone); err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"message": "OTP sent successfully",
	})
}

// ForgotPasswordReset consumes a reset OTP and replaces the password
func (h *Handlers) ForgotPasswordReset(w http.ResponseWriter, r *http.Request) {
	var req domain.ResetPasswordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON format", "INVALID_INPUT")
		return
	}

	req.Normalize()
	if err := req.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error(), "INVALID_INPUT")
		return
	}

	if err := h.authService.ForgotPasswordReset(r.Context(), &req); err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"message": "Password reset successfully",
	})
}

// ChangePassword replaces the authenticated user's password
func (h *Handlers) ChangePassword(w http.ResponseWriter, r *http.Request) {
	user := currentUser(r)
	if user == nil {
		writeError(w, http.StatusUnauthorized, "Not authorized, token missing", "UNAUTHORIZED")
		return
	}

	var req domain.ChangePasswordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON format", "INVALID_INPUT")
		return
	}

	if err := req.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error(), "INVALID_INPUT")
		return
	}

	if err := h.authService.ChangePassword(r.Context(), user, req.OldPassword, req.NewPassword); err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"message": "Password changed successfully",
	})
}

// GetProfile returns the authenticated user's public fields
func (h *Handlers) GetProfile(w http.ResponseWriter, r *http.Request) {
	user := currentUser(r)
	if user == nil {
		writeError(w, http.StatusUnauthorized, "Not authorized, token missing", "UNAUTHORIZED")
		return
	}

	writeJSON(w, http.StatusOK, user)
}
