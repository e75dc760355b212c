package adapters

import (
	"context"
	"fmt"
)

// NotificationSender bundles the channel transports behind the domain's
// NotificationSender port. Either transport may be nil when the channel
// is not configured for this deployment.
type NotificationSender struct {
	telegram *TelegramService
	email    *EmailService
}

// NewNotificationSender creates the combined sender
func NewNotificationSender(telegram *TelegramService, email *EmailService) *NotificationSender {
	return &NotificationSender{telegram: telegram, email: email}
}

// SendTelegram delivers a Telegram message
func (s *NotificationSender) SendTelegram(ctx context.Context, chatID int64, text string) error {
	if s.telegram == nil {
		return fmt.Errorf("telegram channel not configured")
	}
	return s.telegram.SendMessage(ctx, chatID, text)
}

// SendEmail delivers an email
func (s *NotificationSender) SendEmail(ctx context.Context, to, subject, html string) error {
	if s.email == nil {
		return fmt.Errorf("email channel not configured")
	}
	return s.email.Send(ctx, to, subject, html)
}
