package domain

import "time"

// OTPPurpose scopes a code to a single verification flow. A code issued for
// one purpose never matches a lookup for another.
type OTPPurpose string

const (
	OTPPhoneVerification OTPPurpose = "phone_verification"
	OTPForgotPassword    OTPPurpose = "forgot_password"
)

// OTP is a short-lived one-time code owned by a user. Multiple live codes
// may exist per user and purpose; consumption deletes exactly one record.
type OTP struct {
	ID        int64      `json:"id"`
	UserID    int64      `json:"user_id"`
	Code      string     `json:"-"`
	Purpose   OTPPurpose `json:"purpose"`
	ExpiresAt time.Time  `json:"expires_at"`
	CreatedAt time.Time  `json:"created_at"`
}

func (o *OTP) Expired(now time.Time) bool {
	return now.After(o.ExpiresAt)
}
