package notify

import (
	"context"

	"github.com/velora-app/accounts/pkg/logger"
)

// DevMailer prints emails to the log instead of sending them.
type DevMailer struct{}

func NewDevMailer() *DevMailer {
	return &DevMailer{}
}

func (d *DevMailer) SendVerificationEmail(ctx context.Context, toEmail, toName, verifyURL string) error {
	logger.InfoContext(ctx, "[DEV MAIL] Verification Email",
		"to", toEmail,
		"name", toName,
		"verify_url", verifyURL,
	)
	return nil
}

// DevSMS prints text messages to the log instead of publishing them.
type DevSMS struct{}

func NewDevSMS() *DevSMS {
	return &DevSMS{}
}

func (d *DevSMS) SendSMS(ctx context.Context, phone, message string) error {
	logger.InfoContext(ctx, "[DEV SMS]",
		"to", phone,
		"message", message,
	)
	return nil
}
