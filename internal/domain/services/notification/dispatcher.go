// Package notification fans settlement outcomes out to the owner's
// configured channels. Channel failures are logged and absorbed; they
// never reach the settlement decision or the webhook response.
package notification

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/clearrail/clearrail/internal/domain/entities"
	"github.com/clearrail/clearrail/internal/domain/repositories"
	"github.com/clearrail/clearrail/pkg/circuitbreaker"
	"github.com/clearrail/clearrail/pkg/metrics"
)

const (
	channelTimeout = 10 * time.Second
	retryDelay     = 2 * time.Second
)

// Dispatcher renders and sends settlement notifications per channel
type Dispatcher struct {
	users  repositories.UserRepository
	sender repositories.NotificationSender
	logger *zap.Logger

	telegramBreaker *circuitbreaker.CircuitBreaker
	emailBreaker    *circuitbreaker.CircuitBreaker
}

// NewDispatcher creates a notification dispatcher with per-channel
// circuit breakers.
func NewDispatcher(users repositories.UserRepository, sender repositories.NotificationSender, logger *zap.Logger) *Dispatcher {
	onChange := func(name, from, to string) {
		logger.Warn("Notification channel breaker state change",
			zap.String("channel", name),
			zap.String("from", from),
			zap.String("to", to))
	}

	telegramCfg := circuitbreaker.DefaultConfig("telegram")
	telegramCfg.OnStateChange = onChange
	emailCfg := circuitbreaker.DefaultConfig("email")
	emailCfg.OnStateChange = onChange

	return &Dispatcher{
		users:           users,
		sender:          sender,
		logger:          logger,
		telegramBreaker: circuitbreaker.New(telegramCfg),
		emailBreaker:    circuitbreaker.New(emailCfg),
	}
}

// Dispatch sends a notification on every channel the record owner has
// configured. Sends run in their own goroutines, each with its own
// timeout and failure boundary, detached from the request context:
// Dispatch returns without waiting for delivery, so the webhook ack
// never stalls on a slow channel. Never errors.
func (d *Dispatcher) Dispatch(ctx context.Context, record *entities.FinancialRecord, state entities.SettlementState, evidence entities.SettlementEvidence) {
	if !state.IsTerminal() {
		return
	}

	user, err := d.users.GetByID(ctx, record.OwnerUserID)
	if err != nil || user == nil {
		d.logger.Error("Cannot resolve record owner for notification",
			zap.String("record_id", record.ID.String()),
			zap.String("owner_user_id", record.OwnerUserID.String()),
			zap.Error(err))
		return
	}
	if !user.HasNotificationChannel() {
		d.logger.Info("Record owner has no notification channels configured",
			zap.String("record_id", record.ID.String()))
		return
	}

	msg := Render(record, state, evidence)
	base := context.WithoutCancel(ctx)

	if user.TelegramChatID != nil {
		chatID := *user.TelegramChatID
		go d.sendChannel(base, "telegram", record, d.telegramBreaker, func(sendCtx context.Context) error {
			return d.sender.SendTelegram(sendCtx, chatID, msg.Text)
		})
	}

	if user.Email != nil && *user.Email != "" {
		email := *user.Email
		go d.sendChannel(base, "email", record, d.emailBreaker, func(sendCtx context.Context) error {
			return d.sender.SendEmail(sendCtx, email, msg.Subject, msg.HTML)
		})
	}
}

// sendChannel runs one channel send inside its failure boundary: a
// bounded timeout, one retry after a short delay, and the channel's
// circuit breaker. All failures end here.
func (d *Dispatcher) sendChannel(ctx context.Context, channel string, record *entities.FinancialRecord, breaker *circuitbreaker.CircuitBreaker, send func(context.Context) error) {
	defer func() {
		if r := recover(); r != nil {
			metrics.NotificationSendsTotal.WithLabelValues(channel, "panic").Inc()
			d.logger.Error("Notification channel panicked",
				zap.String("channel", channel),
				zap.String("record_id", record.ID.String()),
				zap.Any("panic", r))
		}
	}()

	sendCtx, cancel := context.WithTimeout(ctx, channelTimeout)
	defer cancel()

	attempt := func() error {
		return breaker.Execute(sendCtx, func() error {
			return send(sendCtx)
		})
	}

	err := attempt()
	if err != nil && !circuitbreaker.IsBreakerError(err) && sendCtx.Err() == nil {
		select {
		case <-sendCtx.Done():
		case <-time.After(retryDelay):
			err = attempt()
		}
	}

	if err != nil {
		metrics.NotificationSendsTotal.WithLabelValues(channel, "failure").Inc()
		d.logger.Error("Notification send failed",
			zap.String("channel", channel),
			zap.String("record_id", record.ID.String()),
			zap.String("owner_user_id", record.OwnerUserID.String()),
			zap.Error(err))
		return
	}

	metrics.NotificationSendsTotal.WithLabelValues(channel, "success").Inc()
	d.logger.Info("Notification sent",
		zap.String("channel", channel),
		zap.String("record_id", record.ID.String()))
}
