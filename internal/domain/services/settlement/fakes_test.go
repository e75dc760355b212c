package settlement

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/clearrail/clearrail/internal/domain/entities"
)

// In-memory fakes for the repository ports. They record calls so tests
// can assert on the exact writes the pipeline performed.

type statusUpdate struct {
	ID       uuid.UUID
	Expected entities.SettlementState
	New      entities.SettlementState
	Evidence entities.SettlementEvidence
	PaidAt   *time.Time
}

type fakeRecordRepo struct {
	byID      map[uuid.UUID]*entities.FinancialRecord
	byOrderID map[string]*entities.FinancialRecord
	open      []*entities.FinancialRecord

	getErr    error
	updateErr error
	// updateDenied simulates losing the conditional-write race
	updateDenied bool

	updates    []statusUpdate
	linkedPaid []uuid.UUID
	linkedErr  error
}

func newFakeRecordRepo() *fakeRecordRepo {
	return &fakeRecordRepo{
		byID:      make(map[uuid.UUID]*entities.FinancialRecord),
		byOrderID: make(map[string]*entities.FinancialRecord),
	}
}

func (f *fakeRecordRepo) add(record *entities.FinancialRecord) {
	f.byID[record.ID] = record
	if record.ExternalOrderID != nil {
		f.byOrderID[*record.ExternalOrderID] = record
	}
}

func (f *fakeRecordRepo) GetByID(ctx context.Context, id uuid.UUID) (*entities.FinancialRecord, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	return f.byID[id], nil
}

func (f *fakeRecordRepo) GetByExternalOrderID(ctx context.Context, orderID string) (*entities.FinancialRecord, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	return f.byOrderID[orderID], nil
}

func (f *fakeRecordRepo) FindOpenByWalletAndAsset(ctx context.Context, walletAddress, asset string) ([]*entities.FinancialRecord, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	var out []*entities.FinancialRecord
	for _, record := range f.open {
		if record.WalletAddress == walletAddress && record.Asset == asset && record.IsOpen() {
			out = append(out, record)
		}
	}
	return out, nil
}

func (f *fakeRecordRepo) ConditionalUpdateStatus(ctx context.Context, id uuid.UUID, expectedStatus, newStatus entities.SettlementState, evidence entities.SettlementEvidence, paidAt *time.Time) (bool, error) {
	if f.updateErr != nil {
		return false, f.updateErr
	}
	f.updates = append(f.updates, statusUpdate{ID: id, Expected: expectedStatus, New: newStatus, Evidence: evidence, PaidAt: paidAt})
	if f.updateDenied {
		return false, nil
	}
	if record, ok := f.byID[id]; ok && record.Status == expectedStatus {
		record.Status = newStatus
		record.PaidAt = paidAt
		return true, nil
	}
	return false, nil
}

func (f *fakeRecordRepo) MarkLinkedPaid(ctx context.Context, id uuid.UUID, txHash *string, paidAt time.Time) error {
	if f.linkedErr != nil {
		return f.linkedErr
	}
	f.linkedPaid = append(f.linkedPaid, id)
	return nil
}

type fakeMilestoneRepo struct {
	byID    map[uuid.UUID]*entities.ContractMilestone
	payable []*entities.ContractMilestone

	findErr error
	markErr error
	paid    []uuid.UUID
}

func newFakeMilestoneRepo() *fakeMilestoneRepo {
	return &fakeMilestoneRepo{byID: make(map[uuid.UUID]*entities.ContractMilestone)}
}

func (f *fakeMilestoneRepo) GetByID(ctx context.Context, id uuid.UUID) (*entities.ContractMilestone, error) {
	return f.byID[id], nil
}

func (f *fakeMilestoneRepo) FindPayableByContract(ctx context.Context, contractID uuid.UUID) ([]*entities.ContractMilestone, error) {
	if f.findErr != nil {
		return nil, f.findErr
	}
	var out []*entities.ContractMilestone
	for _, m := range f.payable {
		if m.ContractID == contractID {
			out = append(out, m)
		}
	}
	return out, nil
}

func (f *fakeMilestoneRepo) MarkPaid(ctx context.Context, id uuid.UUID, paidAt time.Time) error {
	if f.markErr != nil {
		return f.markErr
	}
	f.paid = append(f.paid, id)
	return nil
}

type fakeUserRepo struct {
	byID     map[uuid.UUID]*entities.User
	byWallet map[string]*entities.User
	err      error
}

func newFakeUserRepo() *fakeUserRepo {
	return &fakeUserRepo{
		byID:     make(map[uuid.UUID]*entities.User),
		byWallet: make(map[string]*entities.User),
	}
}

func (f *fakeUserRepo) add(user *entities.User) {
	f.byID[user.ID] = user
	for _, addr := range user.WalletAddresses {
		f.byWallet[addr] = user
	}
}

func (f *fakeUserRepo) GetByID(ctx context.Context, id uuid.UUID) (*entities.User, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.byID[id], nil
}

func (f *fakeUserRepo) GetByWalletAddress(ctx context.Context, address string) (*entities.User, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.byWallet[address], nil
}

type fakeAuditLog struct {
	rows      []*entities.WebhookEvent
	appendErr error
}

func (f *fakeAuditLog) Append(ctx context.Context, event *entities.WebhookEvent) error {
	if f.appendErr != nil {
		return f.appendErr
	}
	f.rows = append(f.rows, event)
	return nil
}

func (f *fakeAuditLog) ListUnmatchedSince(ctx context.Context, since time.Time, limit int) ([]*entities.WebhookEvent, error) {
	return nil, nil
}

type dispatchCall struct {
	Record *entities.FinancialRecord
	State  entities.SettlementState
}

type fakeNotifier struct {
	calls []dispatchCall
}

func (f *fakeNotifier) Dispatch(ctx context.Context, record *entities.FinancialRecord, state entities.SettlementState, evidence entities.SettlementEvidence) {
	f.calls = append(f.calls, dispatchCall{Record: record, State: state})
}
