// Package reconciliation periodically retries webhook deliveries that
// could not be matched to a record when they arrived. A record created
// or settled out of band may make a previously ambiguous or unmatched
// event resolvable later.
package reconciliation

import (
	"context"
	"encoding/json"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/clearrail/clearrail/internal/api/handlers/webhooks"
	"github.com/clearrail/clearrail/internal/domain/entities"
	"github.com/clearrail/clearrail/internal/domain/repositories"
	"github.com/clearrail/clearrail/internal/domain/services/settlement"
	"github.com/clearrail/clearrail/internal/infrastructure/config"
	"github.com/clearrail/clearrail/pkg/logger"
)

// Sweeper re-runs unmatched audit-log events through the pipeline
type Sweeper struct {
	cfg      config.ReconciliationConfig
	events   repositories.WebhookEventRepository
	pipeline *settlement.Pipeline
	logger   *logger.Logger
	cron     *cron.Cron
}

// NewSweeper creates a reconciliation sweeper
func NewSweeper(cfg config.ReconciliationConfig, events repositories.WebhookEventRepository, pipeline *settlement.Pipeline, log *logger.Logger) *Sweeper {
	return &Sweeper{
		cfg:      cfg,
		events:   events,
		pipeline: pipeline,
		logger:   log,
		cron:     cron.New(),
	}
}

// Start schedules the sweep
func (s *Sweeper) Start() error {
	_, err := s.cron.AddFunc(s.cfg.Schedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
		defer cancel()
		s.Sweep(ctx)
	})
	if err != nil {
		return err
	}
	s.cron.Start()
	s.logger.Info("Reconciliation sweeper started", "schedule", s.cfg.Schedule)
	return nil
}

// Stop halts the schedule, waiting for a running sweep to finish
func (s *Sweeper) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.logger.Info("Reconciliation sweeper stopped")
}

// Sweep replays recent unmatched events. Replays go through the normal
// pipeline, so a replay that matches now is applied with the same
// idempotence and cascade rules as a live delivery.
func (s *Sweeper) Sweep(ctx context.Context) {
	since := time.Now().Add(-time.Duration(s.cfg.LookbackHours) * time.Hour)
	unmatched, err := s.events.ListUnmatchedSince(ctx, since, s.cfg.BatchSize)
	if err != nil {
		s.logger.Error("Failed to list unmatched webhook events", "error", err)
		return
	}
	if len(unmatched) == 0 {
		return
	}

	s.logger.Info("Reconciling unmatched webhook events", "count", len(unmatched))

	var resolved int
	for _, row := range unmatched {
		select {
		case <-ctx.Done():
			return
		default:
		}

		event, ok := s.rebuildEvent(row)
		if !ok {
			continue
		}

		outcome, err := s.pipeline.Replay(ctx, event, row.RawBody, row.Outcome)
		if err != nil {
			s.logger.Error("Reconciliation replay failed",
				"provider", row.Provider,
				"external_ref", row.ExternalRef,
				"error", err)
			continue
		}
		if outcome.Outcome == entities.WebhookOutcomeApplied {
			resolved++
			s.logger.Info("Reconciled previously unmatched event",
				"provider", row.Provider,
				"external_ref", row.ExternalRef,
				"status", string(outcome.Status))
		}
	}

	if resolved > 0 {
		s.logger.Info("Reconciliation sweep finished", "resolved", resolved)
	}
}

// rebuildEvent reconstructs the payment event from the audit row's raw
// body. Direct updates are not replayed: they name an exact record, so
// a no-match there means the record genuinely does not exist.
func (s *Sweeper) rebuildEvent(row *entities.WebhookEvent) (*entities.PaymentEvent, bool) {
	switch row.Provider {
	case settlement.ProviderOfframp:
		var payload webhooks.OfframpEventV1
		if err := json.Unmarshal(row.RawBody, &payload); err != nil || payload.Data.ID == "" {
			return nil, false
		}
		return &entities.PaymentEvent{
			Source:          entities.EventSourceOfframp,
			ExternalOrderID: payload.Data.ID,
			TxHash:          payload.Data.TransactionHash,
			ToAddress:       payload.Data.WalletAddress,
			Asset:           payload.Data.Currency,
			Amount:          payload.Data.Amount,
			RawStatus:       payload.Data.Status,
			ReceivedAt:      row.ReceivedAt,
		}, true

	case settlement.ProviderOnchain:
		var payload webhooks.OnchainActivityEventV1
		if err := json.Unmarshal(row.RawBody, &payload); err != nil {
			return nil, false
		}
		for _, transfer := range payload.Activity {
			if transfer.TxHash != row.ExternalRef {
				continue
			}
			rawStatus := transfer.Status
			if rawStatus == "" {
				rawStatus = "confirmed"
			}
			return &entities.PaymentEvent{
				Source:      entities.EventSourceOnchain,
				TxHash:      transfer.TxHash,
				FromAddress: transfer.FromAddress,
				ToAddress:   transfer.ToAddress,
				Asset:       transfer.Asset,
				Amount:      transfer.Amount,
				RawStatus:   rawStatus,
				ReceivedAt:  row.ReceivedAt,
			}, true
		}
		return nil, false

	default:
		return nil, false
	}
}
