// Package adapters implements the outbound transport ports.
package adapters

import (
	"bytes"
	"context"
	"fmt"
	"net/smtp"
	"strings"
	"time"

	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"
	"go.uber.org/zap"

	"github.com/clearrail/clearrail/internal/infrastructure/config"
)

// EmailService sends settlement notification emails via the configured
// provider. SendGrid in production, plain SMTP (mailpit) in dev.
type EmailService struct {
	logger *zap.Logger
	config config.EmailConfig
	client *sendgrid.Client
}

// NewEmailService creates an email service
func NewEmailService(cfg config.EmailConfig, logger *zap.Logger) (*EmailService, error) {
	provider := strings.ToLower(strings.TrimSpace(cfg.Provider))
	if strings.TrimSpace(cfg.FromEmail) == "" {
		return nil, fmt.Errorf("email from address is required")
	}

	var client *sendgrid.Client
	switch provider {
	case "sendgrid":
		if strings.TrimSpace(cfg.APIKey) == "" {
			return nil, fmt.Errorf("sendgrid api key is required")
		}
		client = sendgrid.NewSendClient(cfg.APIKey)
	case "smtp", "mailpit":
		if cfg.SMTPHost == "" {
			return nil, fmt.Errorf("smtp host is required for %s provider", provider)
		}
	default:
		return nil, fmt.Errorf("unsupported email provider: %s", cfg.Provider)
	}

	return &EmailService{logger: logger, config: cfg, client: client}, nil
}

// Send delivers one email through the configured provider
func (e *EmailService) Send(ctx context.Context, to, subject, htmlContent string) error {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	switch strings.ToLower(e.config.Provider) {
	case "sendgrid":
		return e.sendViaSendgrid(ctx, to, subject, htmlContent)
	default:
		return e.sendViaSMTP(to, subject, htmlContent)
	}
}

func (e *EmailService) sendViaSendgrid(ctx context.Context, to, subject, htmlContent string) error {
	from := mail.NewEmail(e.config.FromName, e.config.FromEmail)
	toEmail := mail.NewEmail("", to)
	message := mail.NewSingleEmail(from, subject, toEmail, "", htmlContent)

	response, err := e.client.SendWithContext(ctx, message)
	if err != nil {
		e.logger.Error("Failed to send email",
			zap.String("provider", "sendgrid"),
			zap.String("to", to),
			zap.String("subject", subject),
			zap.Error(err))
		return fmt.Errorf("failed to send email: %w", err)
	}

	if response.StatusCode >= 400 {
		e.logger.Error("Email service returned error",
			zap.String("provider", "sendgrid"),
			zap.String("to", to),
			zap.Int("status_code", response.StatusCode),
			zap.String("response_body", response.Body))
		return fmt.Errorf("email service error: status %d", response.StatusCode)
	}

	e.logger.Info("Email sent successfully",
		zap.String("provider", "sendgrid"),
		zap.String("to", to),
		zap.String("subject", subject))
	return nil
}

func (e *EmailService) sendViaSMTP(to, subject, htmlContent string) error {
	from := e.config.FromEmail
	if e.config.FromName != "" {
		from = fmt.Sprintf("%s <%s>", e.config.FromName, e.config.FromEmail)
	}

	var msg bytes.Buffer
	msg.WriteString(fmt.Sprintf("From: %s\r\n", from))
	msg.WriteString(fmt.Sprintf("To: %s\r\n", to))
	msg.WriteString(fmt.Sprintf("Subject: %s\r\n", subject))
	msg.WriteString("MIME-Version: 1.0\r\n")
	msg.WriteString("Content-Type: text/html; charset=\"UTF-8\"\r\n")
	msg.WriteString("\r\n")
	msg.WriteString(htmlContent)

	addr := fmt.Sprintf("%s:%d", e.config.SMTPHost, e.config.SMTPPort)
	if err := smtp.SendMail(addr, nil, e.config.FromEmail, []string{to}, msg.Bytes()); err != nil {
		e.logger.Error("Failed to send email via SMTP",
			zap.String("to", to),
			zap.String("host", e.config.SMTPHost),
			zap.Error(err))
		return fmt.Errorf("smtp send failed: %w", err)
	}

	e.logger.Info("Email sent successfully",
		zap.String("provider", e.config.Provider),
		zap.String("to", to),
		zap.String("subject", subject))
	return nil
}
