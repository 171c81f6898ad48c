package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/velora-app/accounts/pkg/events"
)

// NATSSMS hands text messages to the delivery workers over the event bus.
// Delivery is best-effort; a publish failure is the caller's to log.
type NATSSMS struct {
	bus events.Publisher
}

func NewNATSSMS(bus events.Publisher) *NATSSMS {
	return &NATSSMS{bus: bus}
}

func (n *NATSSMS) SendSMS(ctx context.Context, phone, message string) error {
	notification := events.SMSNotification{
		Recipient: phone,
		Body:      message,
		QueuedAt:  time.Now(),
	}

	if err := n.bus.Publish(ctx, events.NotifySMS, notification); err != nil {
		return fmt.Errorf("publish sms notification: %w", err)
	}
	return nil
}
