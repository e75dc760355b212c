package reconciliation

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/clearrail/clearrail/internal/domain/entities"
	"github.com/clearrail/clearrail/internal/domain/services/settlement"
	"github.com/clearrail/clearrail/internal/infrastructure/config"
	"github.com/clearrail/clearrail/pkg/logger"
)

type memRecordStore struct {
	byID      map[uuid.UUID]*entities.FinancialRecord
	byOrderID map[string]*entities.FinancialRecord
}

func (s *memRecordStore) GetByID(ctx context.Context, id uuid.UUID) (*entities.FinancialRecord, error) {
	return s.byID[id], nil
}

func (s *memRecordStore) GetByExternalOrderID(ctx context.Context, orderID string) (*entities.FinancialRecord, error) {
	return s.byOrderID[orderID], nil
}

func (s *memRecordStore) FindOpenByWalletAndAsset(ctx context.Context, walletAddress, asset string) ([]*entities.FinancialRecord, error) {
	return nil, nil
}

func (s *memRecordStore) ConditionalUpdateStatus(ctx context.Context, id uuid.UUID, expectedStatus, newStatus entities.SettlementState, evidence entities.SettlementEvidence, paidAt *time.Time) (bool, error) {
	record, ok := s.byID[id]
	if !ok || record.Status != expectedStatus {
		return false, nil
	}
	record.Status = newStatus
	record.PaidAt = paidAt
	return true, nil
}

func (s *memRecordStore) MarkLinkedPaid(ctx context.Context, id uuid.UUID, txHash *string, paidAt time.Time) error {
	return nil
}

type nilMilestoneStore struct{}

func (nilMilestoneStore) GetByID(ctx context.Context, id uuid.UUID) (*entities.ContractMilestone, error) {
	return nil, nil
}

func (nilMilestoneStore) FindPayableByContract(ctx context.Context, contractID uuid.UUID) ([]*entities.ContractMilestone, error) {
	return nil, nil
}

func (nilMilestoneStore) MarkPaid(ctx context.Context, id uuid.UUID, paidAt time.Time) error {
	return nil
}

type nilUserStore struct{}

func (nilUserStore) GetByID(ctx context.Context, id uuid.UUID) (*entities.User, error) {
	return nil, nil
}

func (nilUserStore) GetByWalletAddress(ctx context.Context, address string) (*entities.User, error) {
	return nil, nil
}

type memAuditLog struct {
	unmatched []*entities.WebhookEvent
	appended  []*entities.WebhookEvent
}

func (s *memAuditLog) Append(ctx context.Context, event *entities.WebhookEvent) error {
	s.appended = append(s.appended, event)
	return nil
}

func (s *memAuditLog) ListUnmatchedSince(ctx context.Context, since time.Time, limit int) ([]*entities.WebhookEvent, error) {
	return s.unmatched, nil
}

type noopNotifier struct{ calls int }

func (n *noopNotifier) Dispatch(ctx context.Context, record *entities.FinancialRecord, state entities.SettlementState, evidence entities.SettlementEvidence) {
	n.calls++
}

func newSweeperFixture(audit *memAuditLog, records *memRecordStore) *Sweeper {
	log := zap.NewNop()
	pipeline := settlement.NewPipeline(
		settlement.NewNormalizer(log),
		settlement.NewMatcher(records, nilUserStore{}, log),
		settlement.NewApplier(records, nilMilestoneStore{}, log),
		&noopNotifier{},
		audit,
		log,
	)
	cfg := config.ReconciliationConfig{
		Enabled:       true,
		Schedule:      "*/15 * * * *",
		LookbackHours: 24,
		BatchSize:     100,
	}
	return NewSweeper(cfg, audit, pipeline, logger.NewNop())
}

func offrampRawBody(t *testing.T, orderID, status string) []byte {
	t.Helper()
	body, err := json.Marshal(map[string]interface{}{
		"event": "order." + status,
		"data": map[string]interface{}{
			"id":       orderID,
			"status":   status,
			"amount":   "100",
			"currency": "USDC",
		},
	})
	require.NoError(t, err)
	return body
}

func TestSweepResolvesLateCreatedRecord(t *testing.T) {
	audit := &memAuditLog{}
	records := &memRecordStore{
		byID:      make(map[uuid.UUID]*entities.FinancialRecord),
		byOrderID: make(map[string]*entities.FinancialRecord),
	}

	// The delivery arrived before the record existed...
	audit.unmatched = []*entities.WebhookEvent{{
		ID:          uuid.New(),
		Provider:    settlement.ProviderOfframp,
		ExternalRef: "ord_late",
		RawBody:     offrampRawBody(t, "ord_late", "completed"),
		Outcome:     entities.WebhookOutcomeNoMatch,
		ReceivedAt:  time.Now().Add(-time.Hour),
	}}

	// ...and the record was created afterwards
	orderID := "ord_late"
	record := &entities.FinancialRecord{
		ID:              uuid.New(),
		Kind:            entities.RecordKindOfframpTx,
		OwnerUserID:     uuid.New(),
		Asset:           "USDC",
		Amount:          decimal.RequireFromString("100"),
		Status:          entities.SettlementStatePending,
		ExternalOrderID: &orderID,
	}
	records.byID[record.ID] = record
	records.byOrderID[orderID] = record

	sweeper := newSweeperFixture(audit, records)
	sweeper.Sweep(context.Background())

	assert.Equal(t, entities.SettlementStateSettled, record.Status)

	// The replay lands a fresh applied row in the audit trail
	require.NotEmpty(t, audit.appended)
	assert.Equal(t, entities.WebhookOutcomeApplied, audit.appended[len(audit.appended)-1].Outcome)
}

func TestSweepSkipsUndecodableRows(t *testing.T) {
	audit := &memAuditLog{
		unmatched: []*entities.WebhookEvent{
			{
				ID:          uuid.New(),
				Provider:    settlement.ProviderOfframp,
				ExternalRef: "ord_x",
				RawBody:     []byte(`not json`),
				Outcome:     entities.WebhookOutcomeNoMatch,
				ReceivedAt:  time.Now(),
			},
			{
				ID:          uuid.New(),
				Provider:    settlement.ProviderDirect,
				ExternalRef: uuid.New().String(),
				Outcome:     entities.WebhookOutcomeNoMatch,
				ReceivedAt:  time.Now(),
			},
		},
	}
	records := &memRecordStore{
		byID:      make(map[uuid.UUID]*entities.FinancialRecord),
		byOrderID: make(map[string]*entities.FinancialRecord),
	}

	sweeper := newSweeperFixture(audit, records)
	sweeper.Sweep(context.Background())

	assert.Empty(t, audit.appended, "undecodable and direct rows are not replayed")
}

func TestSweepDoesNotReauditUnchangedMiss(t *testing.T) {
	audit := &memAuditLog{
		unmatched: []*entities.WebhookEvent{{
			ID:          uuid.New(),
			Provider:    settlement.ProviderOfframp,
			ExternalRef: "ord_ghost",
			RawBody:     offrampRawBody(t, "ord_ghost", "completed"),
			Outcome:     entities.WebhookOutcomeNoMatch,
			ReceivedAt:  time.Now(),
		}},
	}
	records := &memRecordStore{
		byID:      make(map[uuid.UUID]*entities.FinancialRecord),
		byOrderID: make(map[string]*entities.FinancialRecord),
	}

	sweeper := newSweeperFixture(audit, records)

	// A permanently unmatched event must not grow the audit trail: the
	// replay resolves to the same no_match and appends nothing, sweep
	// after sweep.
	sweeper.Sweep(context.Background())
	sweeper.Sweep(context.Background())

	assert.Empty(t, audit.appended, "unchanged replay outcomes must not be re-audited")
}
