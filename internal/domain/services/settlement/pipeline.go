package settlement

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/clearrail/clearrail/internal/domain/entities"
	"github.com/clearrail/clearrail/internal/domain/repositories"
)

// Notifier dispatches user-facing notifications for terminal outcomes.
// It never returns an error: channel failures are its own concern.
type Notifier interface {
	Dispatch(ctx context.Context, record *entities.FinancialRecord, state entities.SettlementState, evidence entities.SettlementEvidence)
}

// Outcome is the pipeline's resolution of one delivery, echoed back in
// the webhook acknowledgment.
type Outcome struct {
	Outcome  entities.WebhookOutcome
	Status   entities.SettlementState
	RecordID *uuid.UUID
}

// Pipeline wires normalize → match → apply → notify for one event.
// Each delivery is an independent request-scoped unit of work; the only
// cross-delivery coordination is the applier's conditional write.
type Pipeline struct {
	normalizer *Normalizer
	matcher    *Matcher
	applier    *Applier
	notifier   Notifier
	auditLog   repositories.WebhookEventRepository
	logger     *zap.Logger
}

// NewPipeline creates the settlement pipeline
func NewPipeline(
	normalizer *Normalizer,
	matcher *Matcher,
	applier *Applier,
	notifier Notifier,
	auditLog repositories.WebhookEventRepository,
	logger *zap.Logger,
) *Pipeline {
	return &Pipeline{
		normalizer: normalizer,
		matcher:    matcher,
		applier:    applier,
		notifier:   notifier,
		auditLog:   auditLog,
		logger:     logger,
	}
}

// Process runs one payment event through the pipeline. Match misses are
// resolved outcomes, not errors: the delivery is acknowledged and the
// audit row left for reconciliation. Only infrastructure failures
// (store unreachable) surface as errors.
func (p *Pipeline) Process(ctx context.Context, event *entities.PaymentEvent, rawBody []byte) (*Outcome, error) {
	return p.process(ctx, event, rawBody, nil)
}

// Replay re-runs a previously audited delivery. An outcome identical to
// the original is not appended again, so a permanently unmatched event
// does not grow the audit trail on every sweep.
func (p *Pipeline) Replay(ctx context.Context, event *entities.PaymentEvent, rawBody []byte, previous entities.WebhookOutcome) (*Outcome, error) {
	return p.process(ctx, event, rawBody, &previous)
}

func (p *Pipeline) process(ctx context.Context, event *entities.PaymentEvent, rawBody []byte, previous *entities.WebhookOutcome) (*Outcome, error) {
	state := p.normalizer.Normalize(string(event.Source), event.RawStatus)

	record, err := p.matcher.Match(ctx, event)
	if err != nil {
		switch {
		case errors.Is(err, ErrNoMatch):
			p.appendAuditIfChanged(ctx, event, rawBody, entities.WebhookOutcomeNoMatch, nil, previous)
			return &Outcome{Outcome: entities.WebhookOutcomeNoMatch, Status: state}, nil
		case errors.Is(err, ErrAmbiguousMatch):
			p.appendAuditIfChanged(ctx, event, rawBody, entities.WebhookOutcomeAmbiguous, nil, previous)
			return &Outcome{Outcome: entities.WebhookOutcomeAmbiguous, Status: state}, nil
		default:
			return nil, fmt.Errorf("match: %w", err)
		}
	}

	evidence := entities.SettlementEvidence{}
	if event.TxHash != "" {
		hash := event.TxHash
		evidence.TxHash = &hash
	}
	if event.FromAddress != "" {
		payer := event.FromAddress
		evidence.PayerAddress = &payer
	}

	result, err := p.applier.Apply(ctx, record, state, evidence)
	if err != nil {
		return nil, fmt.Errorf("apply: %w", err)
	}

	if result.NoOp {
		p.appendAuditIfChanged(ctx, event, rawBody, entities.WebhookOutcomeNoOp, &record.ID, previous)
		return &Outcome{Outcome: entities.WebhookOutcomeNoOp, Status: result.NewState, RecordID: &record.ID}, nil
	}

	p.appendAuditIfChanged(ctx, event, rawBody, entities.WebhookOutcomeApplied, &record.ID, previous)

	// Users only hear about terminal outcomes; pending/processing
	// transitions are silent.
	if result.NewState.IsTerminal() {
		p.notifier.Dispatch(ctx, record, result.NewState, evidence)
	}

	return &Outcome{Outcome: entities.WebhookOutcomeApplied, Status: result.NewState, RecordID: &record.ID}, nil
}

// appendAuditIfChanged appends unless this is a replay whose outcome
// matches the row it replayed.
func (p *Pipeline) appendAuditIfChanged(ctx context.Context, event *entities.PaymentEvent, rawBody []byte, outcome entities.WebhookOutcome, recordID *uuid.UUID, previous *entities.WebhookOutcome) {
	if previous != nil && *previous == outcome {
		return
	}
	p.appendAudit(ctx, event, rawBody, outcome, recordID)
}

// appendAudit records the delivery in the append-only trail. Audit
// failures are logged, never fatal: losing a reconciliation row must
// not fail a settlement that already committed.
func (p *Pipeline) appendAudit(ctx context.Context, event *entities.PaymentEvent, rawBody []byte, outcome entities.WebhookOutcome, recordID *uuid.UUID) {
	row := &entities.WebhookEvent{
		ID:          uuid.New(),
		Provider:    string(event.Source),
		ExternalRef: event.ExternalRef(),
		RawBody:     rawBody,
		Outcome:     outcome,
		RecordID:    recordID,
		ReceivedAt:  event.ReceivedAt,
	}
	if row.ReceivedAt.IsZero() {
		row.ReceivedAt = time.Now().UTC()
	}
	if err := p.auditLog.Append(ctx, row); err != nil {
		p.logger.Error("Failed to append webhook audit row",
			zap.String("provider", row.Provider),
			zap.String("external_ref", row.ExternalRef),
			zap.Error(err))
	}
}
