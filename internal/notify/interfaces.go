package notify

import "context"

// EmailSender delivers account emails. Fire-and-forget: callers log failures
// but never surface them to the end user.
type EmailSender interface {
	SendVerificationEmail(ctx context.Context, toEmail, toName, verifyURL string) error
}

// SMSSender delivers a text message to a phone number, best-effort.
type SMSSender interface {
	SendSMS(ctx context.Context, phone, message string) error
}
