package settlement

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/clearrail/clearrail/internal/domain/entities"
	"github.com/clearrail/clearrail/internal/domain/repositories"
	"github.com/clearrail/clearrail/pkg/metrics"
)

// ApplyResult describes how a delivery was applied
type ApplyResult struct {
	// NoOp is true when the record was already terminal or another
	// delivery won the conditional update. NoOp deliveries trigger no
	// cascades and no notifications.
	NoOp     bool
	NewState entities.SettlementState
}

// Applier performs the atomic settlement transition and the post-commit
// cascades to linked records.
type Applier struct {
	records    repositories.RecordRepository
	milestones repositories.MilestoneRepository
	logger     *zap.Logger
	now        func() time.Time
}

// NewApplier creates a settlement applier
func NewApplier(records repositories.RecordRepository, milestones repositories.MilestoneRepository, logger *zap.Logger) *Applier {
	return &Applier{
		records:    records,
		milestones: milestones,
		logger:     logger,
		now:        time.Now,
	}
}

// Apply transitions a matched record to newState. Terminal records are
// an idempotent no-op — the primary defense against provider redelivery
// producing duplicate notifications or double-cascades. The write is
// guarded by the record's current status so two concurrent deliveries
// cannot both win.
func (a *Applier) Apply(ctx context.Context, record *entities.FinancialRecord, newState entities.SettlementState, evidence entities.SettlementEvidence) (*ApplyResult, error) {
	if record.Status.IsTerminal() {
		a.logger.Info("Record already terminal, ignoring redelivery",
			zap.String("record_id", record.ID.String()),
			zap.String("status", string(record.Status)))
		metrics.SettlementNoOpsTotal.Inc()
		return &ApplyResult{NoOp: true, NewState: record.Status}, nil
	}

	if newState == record.Status {
		return &ApplyResult{NoOp: true, NewState: record.Status}, nil
	}

	if !record.Status.CanTransitionTo(newState) {
		// Stale redelivery carrying an earlier status; never move backwards
		a.logger.Info("Transition not allowed, ignoring stale delivery",
			zap.String("record_id", record.ID.String()),
			zap.String("status", string(record.Status)),
			zap.String("delivered_status", string(newState)))
		metrics.SettlementNoOpsTotal.Inc()
		return &ApplyResult{NoOp: true, NewState: record.Status}, nil
	}

	var paidAt *time.Time
	if newState == entities.SettlementStateSettled {
		t := a.now().UTC()
		paidAt = &t
	}

	updated, err := a.records.ConditionalUpdateStatus(ctx, record.ID, record.Status, newState, evidence, paidAt)
	if err != nil {
		return nil, fmt.Errorf("conditional status update: %w", err)
	}
	if !updated {
		// Lost the race against a concurrent delivery
		a.logger.Info("Conditional update matched no rows, treating as no-op",
			zap.String("record_id", record.ID.String()),
			zap.String("expected_status", string(record.Status)),
			zap.String("new_status", string(newState)))
		metrics.SettlementNoOpsTotal.Inc()
		return &ApplyResult{NoOp: true, NewState: record.Status}, nil
	}

	metrics.SettlementsAppliedTotal.WithLabelValues(string(record.Kind), string(newState)).Inc()
	a.logger.Info("Settlement applied",
		zap.String("record_id", record.ID.String()),
		zap.String("kind", string(record.Kind)),
		zap.String("from", string(record.Status)),
		zap.String("to", string(newState)))

	// Cascades run only after the primary write committed. Each step is
	// best-effort: the primary record is the source of truth and a
	// cascade failure never rolls it back.
	if newState == entities.SettlementStateSettled {
		a.cascade(ctx, record, evidence)
	}

	return &ApplyResult{NoOp: false, NewState: newState}, nil
}

// cascade applies secondary updates to linked records
func (a *Applier) cascade(ctx context.Context, record *entities.FinancialRecord, evidence entities.SettlementEvidence) {
	switch record.Kind {
	case entities.RecordKindInvoice:
		a.cascadeInvoiceToMilestone(ctx, record)
	case entities.RecordKindPaymentLink:
		a.cascadePaymentLink(ctx, record, evidence)
	}
}

// cascadeInvoiceToMilestone marks the milestone funded by a settled
// invoice as paid. An explicit milestone link always wins; without one
// the approved milestones of the invoice's contract are searched for a
// title that appears in the invoice description. The substring match is
// a documented best-effort heuristic: at most the first hit is updated.
func (a *Applier) cascadeInvoiceToMilestone(ctx context.Context, record *entities.FinancialRecord) {
	paidAt := a.now().UTC()

	if record.MilestoneID != nil {
		if err := a.milestones.MarkPaid(ctx, *record.MilestoneID, paidAt); err != nil {
			a.logCascadeFailure("milestone", record, err)
		}
		return
	}

	if record.ContractID == nil {
		return
	}

	payable, err := a.milestones.FindPayableByContract(ctx, *record.ContractID)
	if err != nil {
		a.logCascadeFailure("milestone_search", record, err)
		return
	}

	description := strings.ToLower(record.Description)
	for _, milestone := range payable {
		if !milestone.IsPayable() {
			continue
		}
		if strings.Contains(description, strings.ToLower(milestone.Title)) {
			if err := a.milestones.MarkPaid(ctx, milestone.ID, paidAt); err != nil {
				a.logCascadeFailure("milestone", record, err)
			}
			return
		}
	}
}

// cascadePaymentLink closes the proposal and/or invoice a settled
// payment link was created from, copying the settlement tx hash.
func (a *Applier) cascadePaymentLink(ctx context.Context, record *entities.FinancialRecord, evidence entities.SettlementEvidence) {
	paidAt := a.now().UTC()

	if record.ProposalID != nil {
		if err := a.records.MarkLinkedPaid(ctx, *record.ProposalID, evidence.TxHash, paidAt); err != nil {
			a.logCascadeFailure("proposal", record, err)
		}
	}
	if record.InvoiceID != nil {
		if err := a.records.MarkLinkedPaid(ctx, *record.InvoiceID, evidence.TxHash, paidAt); err != nil {
			a.logCascadeFailure("invoice", record, err)
		}
	}
}

func (a *Applier) logCascadeFailure(target string, record *entities.FinancialRecord, err error) {
	metrics.CascadeFailuresTotal.Inc()
	a.logger.Error("Cascade update failed, primary settlement stands",
		zap.String("target", target),
		zap.String("record_id", record.ID.String()),
		zap.String("kind", string(record.Kind)),
		zap.Error(err))
}
