package domain

import (
	"fmt"
	"regexp"
	"strings"
	"time"
	"unicode"
)

type User struct {
	ID            int64     `json:"id"`
	FullName      string    `json:"fullName"`
	Email         string    `json:"email"`
	EmailVerified bool      `json:"emailVerified"`
	Phone         string    `json:"phone"`
	PhoneVerified bool      `json:"phoneVerified"`
	PasswordHash  string    `json:"-"`
	CreatedAt     time.Time `json:"createdAt"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

// PasswordHasher is the opaque credential-hashing capability. The concrete
// implementation lives in internal/platform/password.
type PasswordHasher interface {
	Hash(password string) (string, error)
	Verify(password, hash string) (bool, error)
}

// SetPassword is the only write path for the password hash. Every flow that
// changes a password goes through here; the raw password is never stored.
func (u *User) SetPassword(raw string, hasher PasswordHasher) error {
	hash, err := hasher.Hash(raw)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	u.PasswordHash = hash
	return nil
}

type UserInfo struct {
	ID            int64  `json:"id"`
	FullName      string `json:"fullName"`
	Email         string `json:"email"`
	Phone         string `json:"phone"`
	EmailVerified bool   `json:"emailVerified"`
	PhoneVerified bool   `json:"phoneVerified"`
}

// ToUserInfo converts User to UserInfo (without sensitive data)
func (u *User) ToUserInfo() *UserInfo {
	return &UserInfo{
		ID:            u.ID,
		FullName:      u.FullName,
		Email:         u.Email,
		Phone:         u.Phone,
		EmailVerified: u.EmailVerified,
		PhoneVerified: u.PhoneVerified,
	}
}

type RegisterRequest struct {
	FullName string `json:"fullName"`
	Email    string `json:"email"`
	Phone    string `json:"phone"`
	Password string `json:"password"`
}

type VerifyPhoneRequest struct {
	UserID int64  `json:"userId"`
	OTP    string `json:"otp"`
}

type ResendOTPRequest struct {
	Phone string `json:"phone"`
}

type LoginRequest struct {
	Phone    string `json:"phone"`
	Password string `json:"password"`
}

type LoginResponse struct {
	Token     string    `json:"token"`
	ExpiresIn int64     `json:"expires_in"`
	User      *UserInfo `json:"user"`
}

type ForgotPasswordRequest struct {
	Phone string `json:"phone"`
}

type ResetPasswordRequest struct {
	Phone       string `json:"phone"`
	OTP         string `json:"otp"`
	NewPassword string `json:"newPassword"`
}

type ChangePasswordRequest struct {
	OldPassword string `json:"oldPassword"`
	NewPassword string `json:"newPassword"`
}

// Validation methods

func (r *RegisterRequest) Normalize() {
	r.FullName = strings.TrimSpace(r.FullName)
	r.Email = strings.ToLower(strings.TrimSpace(r.Email))
	r.Phone = strings.TrimSpace(r.Phone)
}

func (r *RegisterRequest) Validate() error {
	if r.FullName == "" {
		return fmt.Errorf("full name is required")
	}
	if len(r.FullName) < 2 {
		return fmt.Errorf("full name must be at least 2 characters")
	}
	if r.Email == "" {
		return fmt.Errorf("email is required")
	}
	if !isValidEmail(r.Email) {
		return fmt.Errorf("invalid email format")
	}
	if r.Phone == "" {
		return fmt.Errorf("phone is required")
	}
	if !isValidPhone(r.Phone) {
		return fmt.Errorf("invalid phone format")
	}
	return validatePassword(r.Password)
}

func (r *VerifyPhoneRequest) Validate() error {
	if r.UserID == 0 {
		return fmt.Errorf("userId is required")
	}
	if r.OTP == "" {
		return fmt.Errorf("otp is required")
	}
	return nil
}

func (r *ResendOTPRequest) Normalize() {
	r.Phone = strings.TrimSpace(r.Phone)
}

func (r *ResendOTPRequest) Validate() error {
	if r.Phone == "" {
		return fmt.Errorf("phone is required")
	}
	return nil
}

func (r *LoginRequest) Normalize() {
	r.Phone = strings.TrimSpace(r.Phone)
}

func (r *LoginRequest) Validate() error {
	if r.Phone == "" {
		return fmt.Errorf("phone is required")
	}
	if r.Password == "" {
		return fmt.Errorf("password is required")
	}
	return nil
}

func (r *ForgotPasswordRequest) Normalize() {
	r.Phone = strings.TrimSpace(r.Phone)
}

func (r *ForgotPasswordRequest) Validate() error {
	if r.Phone == "" {
		return fmt.Errorf("phone is required")
	}
	return nil
}

func (r *ResetPasswordRequest) Normalize() {
	r.Phone = strings.TrimSpace(r.Phone)
}

func (r *ResetPasswordRequest) Validate() error {
	if r.Phone == "" {
		return fmt.Errorf("phone is required")
	}
	if r.OTP == "" {
		return fmt.Errorf("otp is required")
	}
	return validatePassword(r.NewPassword)
}

func (r *ChangePasswordRequest) Validate() error {
	if r.OldPassword == "" {
		return fmt.Errorf("existing password is required")
	}
	return validatePassword(r.NewPassword)
}

// Helper functions

func isValidEmail(email string) bool {
	emailRegex := regexp.MustCompile(`^[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}$`)
	return emailRegex.MatchString(email)
}

func isValidPhone(phone string) bool {
	phoneRegex := regexp.MustCompile(`^[\+]?[\d\s\-\(\)]+$`)
	return phoneRegex.MatchString(phone) && len(phone) >= 7
}

// validatePassword enforces min 12 chars with at least one uppercase letter,
// one lowercase letter, one digit and one symbol.
func validatePassword(password string) error {
	if password == "" {
		return fmt.Errorf("password is required")
	}
	if len(password) < 12 {
		return fmt.Errorf("password must be at least 12 characters long and include uppercase, lowercase, number, and symbol")
	}
	var upper, lower, digit, symbol bool
	for _, c := range password {
		switch {
		case unicode.IsUpper(c):
			upper = true
		case unicode.IsLower(c):
			lower = true
		case unicode.IsDigit(c):
			digit = true
		default:
			symbol = true
		}
	}
	if !upper || !lower || !digit || !symbol {
		return fmt.Errorf("password must be at least 12 characters long and include uppercase, lowercase, number, and symbol")
	}
	return nil
}
