package domain

import "errors"

// Core error taxonomy. Handlers translate these to HTTP statuses; the
// service layer never sees a status code.
var (
	// Conflicts: only verified users reserve a phone or email.
	ErrPhoneTaken = errors.New("phone number already verified by another user")
	ErrEmailTaken = errors.New("email already verified by another user")

	// OTP failures. Invalid covers wrong code, wrong user and wrong
	// purpose; callers cannot tell which.
	ErrInvalidOTP = errors.New("invalid OTP")
	ErrOTPExpired = errors.New("OTP expired")

	// Login deliberately returns the same error for an unknown phone and a
	// wrong password.
	ErrInvalidCredentials = errors.New("invalid phone or password")
	ErrPhoneNotVerified   = errors.New("phone number not verified")

	ErrUserNotFound    = errors.New("user not found")
	ErrAlreadyVerified = errors.New("account is already verified")

	ErrMissingToken = errors.New("authorization token missing")
	ErrInvalidToken = errors.New("invalid or expired token")

	ErrIncorrectPassword = errors.New("existing password is incorrect")
)
