package settlement

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/clearrail/clearrail/internal/domain/entities"
)

func newTestApplier(records *fakeRecordRepo, milestones *fakeMilestoneRepo) *Applier {
	applier := NewApplier(records, milestones, zap.NewNop())
	applier.now = func() time.Time { return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC) }
	return applier
}

func pendingInvoice() *entities.FinancialRecord {
	return &entities.FinancialRecord{
		ID:          uuid.New(),
		Kind:        entities.RecordKindInvoice,
		OwnerUserID: uuid.New(),
		Asset:       "USDC",
		Amount:      decimal.RequireFromString("100"),
		Status:      entities.SettlementStatePending,
	}
}

func TestApplyTerminalRecordIsNoOp(t *testing.T) {
	records := newFakeRecordRepo()
	applier := newTestApplier(records, newFakeMilestoneRepo())

	record := pendingInvoice()
	record.Status = entities.SettlementStateSettled
	records.add(record)

	result, err := applier.Apply(context.Background(), record, entities.SettlementStateSettled, entities.SettlementEvidence{})
	require.NoError(t, err)
	assert.True(t, result.NoOp)
	assert.Equal(t, entities.SettlementStateSettled, result.NewState)
	assert.Empty(t, records.updates, "terminal record must not be written")
}

func TestApplySameStateIsNoOp(t *testing.T) {
	records := newFakeRecordRepo()
	applier := newTestApplier(records, newFakeMilestoneRepo())

	record := pendingInvoice()
	records.add(record)

	result, err := applier.Apply(context.Background(), record, entities.SettlementStatePending, entities.SettlementEvidence{})
	require.NoError(t, err)
	assert.True(t, result.NoOp)
	assert.Empty(t, records.updates)
}

func TestApplySettledSetsPaidAtAndEvidence(t *testing.T) {
	records := newFakeRecordRepo()
	applier := newTestApplier(records, newFakeMilestoneRepo())

	record := pendingInvoice()
	records.add(record)

	txHash := "0xhash"
	payer := "0xpayer"
	result, err := applier.Apply(context.Background(), record, entities.SettlementStateSettled,
		entities.SettlementEvidence{TxHash: &txHash, PayerAddress: &payer})
	require.NoError(t, err)
	assert.False(t, result.NoOp)
	assert.Equal(t, entities.SettlementStateSettled, result.NewState)

	require.Len(t, records.updates, 1)
	update := records.updates[0]
	assert.Equal(t, record.ID, update.ID)
	assert.Equal(t, entities.SettlementStatePending, update.Expected)
	assert.Equal(t, entities.SettlementStateSettled, update.New)
	require.NotNil(t, update.PaidAt)
	assert.Equal(t, time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC), *update.PaidAt)
	assert.Equal(t, &txHash, update.Evidence.TxHash)
}

func TestApplyFailedLeavesPaidAtNil(t *testing.T) {
	records := newFakeRecordRepo()
	applier := newTestApplier(records, newFakeMilestoneRepo())

	record := pendingInvoice()
	records.add(record)

	result, err := applier.Apply(context.Background(), record, entities.SettlementStateFailed, entities.SettlementEvidence{})
	require.NoError(t, err)
	assert.False(t, result.NoOp)
	require.Len(t, records.updates, 1)
	assert.Nil(t, records.updates[0].PaidAt)
}

func TestApplyStaleRegressionIsNoOp(t *testing.T) {
	records := newFakeRecordRepo()
	applier := newTestApplier(records, newFakeMilestoneRepo())

	// A late off-ramp "initiated" delivery must not drag a record that
	// already moved on back to pending.
	record := pendingInvoice()
	record.Status = entities.SettlementStateProcessing
	records.add(record)

	result, err := applier.Apply(context.Background(), record, entities.SettlementStatePending, entities.SettlementEvidence{})
	require.NoError(t, err)
	assert.True(t, result.NoOp)
	assert.Equal(t, entities.SettlementStateProcessing, result.NewState)
	assert.Empty(t, records.updates, "backwards transition must not be written")
	assert.Equal(t, entities.SettlementStateProcessing, records.byID[record.ID].Status)
}

func TestApplyLostRaceIsNoOp(t *testing.T) {
	records := newFakeRecordRepo()
	records.updateDenied = true
	applier := newTestApplier(records, newFakeMilestoneRepo())

	record := pendingInvoice()
	records.add(record)

	result, err := applier.Apply(context.Background(), record, entities.SettlementStateSettled, entities.SettlementEvidence{})
	require.NoError(t, err)
	assert.True(t, result.NoOp)
}

func TestApplyPropagatesUpdateError(t *testing.T) {
	records := newFakeRecordRepo()
	records.updateErr = errors.New("connection refused")
	applier := newTestApplier(records, newFakeMilestoneRepo())

	record := pendingInvoice()
	records.add(record)

	_, err := applier.Apply(context.Background(), record, entities.SettlementStateSettled, entities.SettlementEvidence{})
	assert.Error(t, err)
}

func TestCascadeExplicitMilestone(t *testing.T) {
	records := newFakeRecordRepo()
	milestones := newFakeMilestoneRepo()
	applier := newTestApplier(records, milestones)

	milestoneID := uuid.New()
	record := pendingInvoice()
	record.MilestoneID = &milestoneID
	records.add(record)

	_, err := applier.Apply(context.Background(), record, entities.SettlementStateSettled, entities.SettlementEvidence{})
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{milestoneID}, milestones.paid)
}

func TestCascadeMilestoneByTitleMatch(t *testing.T) {
	records := newFakeRecordRepo()
	milestones := newFakeMilestoneRepo()
	applier := newTestApplier(records, milestones)

	contractID := uuid.New()
	designPhase := &entities.ContractMilestone{
		ID:             uuid.New(),
		ContractID:     contractID,
		Title:          "Design Phase",
		ApprovalStatus: entities.MilestoneApprovalApproved,
		PaymentStatus:  entities.MilestonePaymentUnpaid,
	}
	buildPhase := &entities.ContractMilestone{
		ID:             uuid.New(),
		ContractID:     contractID,
		Title:          "Build Phase",
		ApprovalStatus: entities.MilestoneApprovalApproved,
		PaymentStatus:  entities.MilestonePaymentUnpaid,
	}
	milestones.payable = []*entities.ContractMilestone{designPhase, buildPhase}

	record := pendingInvoice()
	record.ContractID = &contractID
	record.Description = "Invoice for build phase of project Atlas"
	records.add(record)

	_, err := applier.Apply(context.Background(), record, entities.SettlementStateSettled, entities.SettlementEvidence{})
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{buildPhase.ID}, milestones.paid)
}

func TestCascadeMilestoneNoTitleMatchDoesNothing(t *testing.T) {
	records := newFakeRecordRepo()
	milestones := newFakeMilestoneRepo()
	applier := newTestApplier(records, milestones)

	contractID := uuid.New()
	milestones.payable = []*entities.ContractMilestone{{
		ID:             uuid.New(),
		ContractID:     contractID,
		Title:          "Design Phase",
		ApprovalStatus: entities.MilestoneApprovalApproved,
		PaymentStatus:  entities.MilestonePaymentUnpaid,
	}}

	record := pendingInvoice()
	record.ContractID = &contractID
	record.Description = "Consulting retainer"
	records.add(record)

	_, err := applier.Apply(context.Background(), record, entities.SettlementStateSettled, entities.SettlementEvidence{})
	require.NoError(t, err)
	assert.Empty(t, milestones.paid)
}

func TestCascadeFailureDoesNotFailSettlement(t *testing.T) {
	records := newFakeRecordRepo()
	milestones := newFakeMilestoneRepo()
	milestones.markErr = errors.New("milestone table locked")
	applier := newTestApplier(records, milestones)

	milestoneID := uuid.New()
	record := pendingInvoice()
	record.MilestoneID = &milestoneID
	records.add(record)

	result, err := applier.Apply(context.Background(), record, entities.SettlementStateSettled, entities.SettlementEvidence{})
	require.NoError(t, err)
	assert.False(t, result.NoOp)
	assert.Equal(t, entities.SettlementStateSettled, records.byID[record.ID].Status)
}

func TestCascadePaymentLinkClosesProposalAndInvoice(t *testing.T) {
	records := newFakeRecordRepo()
	applier := newTestApplier(records, newFakeMilestoneRepo())

	proposalID := uuid.New()
	invoiceID := uuid.New()
	record := pendingInvoice()
	record.Kind = entities.RecordKindPaymentLink
	record.ProposalID = &proposalID
	record.InvoiceID = &invoiceID
	records.add(record)

	txHash := "0xhash"
	_, err := applier.Apply(context.Background(), record, entities.SettlementStateSettled,
		entities.SettlementEvidence{TxHash: &txHash})
	require.NoError(t, err)
	assert.ElementsMatch(t, []uuid.UUID{proposalID, invoiceID}, records.linkedPaid)
}

func TestNoCascadeOnFailure(t *testing.T) {
	records := newFakeRecordRepo()
	milestones := newFakeMilestoneRepo()
	applier := newTestApplier(records, milestones)

	milestoneID := uuid.New()
	record := pendingInvoice()
	record.MilestoneID = &milestoneID
	records.add(record)

	_, err := applier.Apply(context.Background(), record, entities.SettlementStateFailed, entities.SettlementEvidence{})
	require.NoError(t, err)
	assert.Empty(t, milestones.paid, "failed settlement must not pay milestones")
}
