package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/velora-app/accounts/internal/domain"
	"github.com/velora-app/accounts/internal/platform/token"
	"github.com/velora-app/accounts/internal/repository"
	"github.com/velora-app/accounts/internal/service"
	"github.com/velora-app/accounts/pkg/logger"
)

type Handlers struct {
	authService service.AuthService
	userRepo    repository.UserRepository
	signer      *token.Signer
}

func New(authService service.AuthService, userRepo repository.UserRepository, signer *token.Signer) *Handlers {
	return &Handlers{
		authService: authService,
		userRepo:    userRepo,
		signer:      signer,
	}
}

type ctxKey string

const ctxUser ctxKey = "user"

// RequireAuth resolves the bearer token to a user and attaches it to the
// request context. Composed before RequirePhoneVerified.
func (h *Handlers) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get("Authorization")
		if !strings.HasPrefix(authHeader, "Bearer ") {
			writeError(w, http.StatusUnauthorized, "Not authorized, token missing", "UNAUTHORIZED")
			return
		}

		raw := strings.TrimPrefix(authHeader, "Bearer ")
		claims, err := h.signer.ParseSessionToken(raw)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "Not authorized, token invalid", "INVALID_TOKEN")
			return
		}

		user, err := h.userRepo.FindByID(r.Context(), claims.Sub)
		if err != nil {
			logger.ErrorContext(r.Context(), "Failed to resolve token user", "error", err, "user_id", claims.Sub)
			writeError(w, http.StatusInternalServerError, "Server error", "INTERNAL_ERROR")
			return
		}
		if user == nil {
			writeError(w, http.StatusUnauthorized, "User not found", "UNAUTHORIZED")
			return
		}

		ctx := context.WithValue(r.Context(), logger.UserIDKey, user.ID)
		ctx = context.WithValue(ctx, ctxUser, user)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequirePhoneVerified rejects authenticated requests from users who have
// not completed phone verification.
func (h *Handlers) RequirePhoneVerified(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user := currentUser(r)
		if user == nil {
			writeError(w, http.StatusUnauthorized, "Not authorized, token missing", "UNAUTHORIZED")
			return
		}
		if !user.PhoneVerified {
			writeError(w, http.StatusForbidden, "Phone number not verified, access denied", "FORBIDDEN")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func currentUser(r *http.Request) *domain.User {
	if user, ok := r.Context().Value(ctxUser).(*domain.User); ok {
		return user
	}
	return nil
}

func writeJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, statusCode int, message, code string) {
	writeJSON(w, statusCode, map[string]string{
		"error": message,
		"code":  code,
	})
}

// kindStatus maps the core error taxonomy onto the HTTP surface. The core
// never sees a status code; everything unknown is an internal error.
var kindStatus = []struct {
	err    error
	status int
	code   string
}{
	{domain.ErrPhoneTaken, http.StatusBadRequest, "PHONE_TAKEN"},
	{domain.ErrEmailTaken, http.StatusBadRequest, "EMAIL_TAKEN"},
	{domain.ErrInvalidOTP, http.StatusBadRequest, "INVALID_OTP"},
	{domain.ErrOTPExpired, http.StatusBadRequest, "OTP_EXPIRED"},
	{domain.ErrInvalidCredentials, http.StatusBadRequest, "INVALID_CREDENTIALS"},
	{domain.ErrPhoneNotVerified, http.StatusForbidden, "PHONE_NOT_VERIFIED"},
	{domain.ErrUserNotFound, http.StatusBadRequest, "USER_NOT_FOUND"},
	{domain.ErrAlreadyVerified, http.StatusBadRequest, "ALREADY_VERIFIED"},
	{domain.ErrMissingToken, http.StatusBadRequest, "MISSING_TOKEN"},
	{domain.ErrInvalidToken, http.StatusBadRequest, "INVALID_TOKEN"},
	{domain.ErrIncorrectPassword, http.StatusBadRequest, "INCORRECT_PASSWORD"},
}

func (h *Handlers) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	for _, m := range kindStatus {
		if errors.Is(err, m.err) {
			writeError(w, m.status, m.err.Error(), m.code)
			return
		}
	}

	logger.ErrorContext(r.Context(), "Unexpected service error", "error", err, "path", r.URL.Path)
	writeError(w, http.StatusInternalServerError, "Server error", "INTERNAL_ERROR")
}
