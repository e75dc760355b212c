// Package di wires the service's components. Every client is
// constructed here and injected explicitly; nothing lives at module
// scope.
package di

import (
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"

	"github.com/clearrail/clearrail/internal/api/handlers/payments"
	"github.com/clearrail/clearrail/internal/api/handlers/webhooks"
	"github.com/clearrail/clearrail/internal/domain/services/notification"
	"github.com/clearrail/clearrail/internal/domain/services/settlement"
	"github.com/clearrail/clearrail/internal/infrastructure/adapters"
	"github.com/clearrail/clearrail/internal/infrastructure/config"
	"github.com/clearrail/clearrail/internal/infrastructure/repositories"
	"github.com/clearrail/clearrail/pkg/logger"
	"github.com/clearrail/clearrail/pkg/security"
)

// Container holds the wired components of the service
type Container struct {
	Config *config.Config
	Log    *logger.Logger
	DB     *sqlx.DB
	Redis  *redis.Client

	RecordRepo    *repositories.RecordRepository
	MilestoneRepo *repositories.MilestoneRepository
	UserRepo      *repositories.UserRepository
	EventRepo     *repositories.WebhookEventRepository

	Verifier   *security.SignatureVerifier
	Matcher    *settlement.Matcher
	Applier    *settlement.Applier
	Dispatcher *notification.Dispatcher
	Pipeline   *settlement.Pipeline

	OfframpHandler      *webhooks.OfframpWebhookHandler
	OnchainHandler      *webhooks.OnchainWebhookHandler
	StatusUpdateHandler *payments.StatusUpdateHandler
}

// NewContainer builds the dependency graph
func NewContainer(cfg *config.Config, db *sqlx.DB, log *logger.Logger) (*Container, error) {
	zlog := log.Zap()

	redisOpts, err := redis.ParseURL(cfg.Redis.URL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	redisClient := redis.NewClient(redisOpts)

	recordRepo := repositories.NewRecordRepository(db)
	milestoneRepo := repositories.NewMilestoneRepository(db)
	userRepo := repositories.NewUserRepository(db, redisClient, zlog)
	eventRepo := repositories.NewWebhookEventRepository(db)

	var telegram *adapters.TelegramService
	if cfg.Telegram.BotToken != "" {
		telegram, err = adapters.NewTelegramService(cfg.Telegram.BotToken, zlog)
		if err != nil {
			return nil, fmt.Errorf("create telegram service: %w", err)
		}
	}

	var email *adapters.EmailService
	if cfg.Email.FromEmail != "" {
		email, err = adapters.NewEmailService(cfg.Email, zlog)
		if err != nil {
			return nil, fmt.Errorf("create email service: %w", err)
		}
	}

	sender := adapters.NewNotificationSender(telegram, email)

	verifier := security.NewSignatureVerifier(cfg.Webhooks.Secrets, cfg.Webhooks.AllowInsecure, zlog)
	normalizer := settlement.NewNormalizer(zlog)
	matcher := settlement.NewMatcher(recordRepo, userRepo, zlog)
	applier := settlement.NewApplier(recordRepo, milestoneRepo, zlog)
	dispatcher := notification.NewDispatcher(userRepo, sender, zlog)
	pipeline := settlement.NewPipeline(normalizer, matcher, applier, dispatcher, eventRepo, zlog)

	return &Container{
		Config:              cfg,
		Log:                 log,
		DB:                  db,
		Redis:               redisClient,
		RecordRepo:          recordRepo,
		MilestoneRepo:       milestoneRepo,
		UserRepo:            userRepo,
		EventRepo:           eventRepo,
		Verifier:            verifier,
		Matcher:             matcher,
		Applier:             applier,
		Dispatcher:          dispatcher,
		Pipeline:            pipeline,
		OfframpHandler:      webhooks.NewOfframpWebhookHandler(pipeline, verifier, zlog),
		OnchainHandler:      webhooks.NewOnchainWebhookHandler(pipeline, verifier, zlog),
		StatusUpdateHandler: payments.NewStatusUpdateHandler(pipeline, zlog),
	}, nil
}
