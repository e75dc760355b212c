// Package repositories contains the Postgres/Redis implementations of
// the domain ports.
package repositories

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/clearrail/clearrail/internal/domain/entities"
)

const recordColumns = `
	id, kind, owner_user_id, wallet_address, asset, amount, description,
	status, external_order_id, contract_id, milestone_id, proposal_id,
	invoice_id, settlement_tx_hash, payer_address, paid_at, created_at, updated_at`

// RecordRepository is the sqlx implementation of the financial record store
type RecordRepository struct {
	db *sqlx.DB
}

// NewRecordRepository creates a record repository
func NewRecordRepository(db *sqlx.DB) *RecordRepository {
	return &RecordRepository{db: db}
}

// GetByID fetches a record by primary key. Returns nil when absent.
func (r *RecordRepository) GetByID(ctx context.Context, id uuid.UUID) (*entities.FinancialRecord, error) {
	query := `SELECT` + recordColumns + ` FROM financial_records WHERE id = $1`
	var record entities.FinancialRecord
	if err := r.db.GetContext(ctx, &record, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &record, nil
}

// GetByExternalOrderID fetches a record by the provider's order id
func (r *RecordRepository) GetByExternalOrderID(ctx context.Context, orderID string) (*entities.FinancialRecord, error) {
	query := `SELECT` + recordColumns + ` FROM financial_records WHERE external_order_id = $1`
	var record entities.FinancialRecord
	if err := r.db.GetContext(ctx, &record, query, orderID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &record, nil
}

// FindOpenByWalletAndAsset returns non-terminal records expecting the
// given asset at the given address.
func (r *RecordRepository) FindOpenByWalletAndAsset(ctx context.Context, walletAddress, asset string) ([]*entities.FinancialRecord, error) {
	query := `SELECT` + recordColumns + `
		FROM financial_records
		WHERE wallet_address = $1 AND asset = $2 AND status NOT IN ('settled', 'failed')
		ORDER BY created_at`
	var records []*entities.FinancialRecord
	if err := r.db.SelectContext(ctx, &records, query, walletAddress, asset); err != nil {
		return nil, err
	}
	return records, nil
}

// ConditionalUpdateStatus applies the optimistic transition. The WHERE
// clause on the current status is what makes concurrent deliveries
// race-safe: only one can match the expected status.
func (r *RecordRepository) ConditionalUpdateStatus(ctx context.Context, id uuid.UUID, expectedStatus, newStatus entities.SettlementState, evidence entities.SettlementEvidence, paidAt *time.Time) (bool, error) {
	query := `
		UPDATE financial_records
		SET status = $1,
		    paid_at = COALESCE($2, paid_at),
		    settlement_tx_hash = COALESCE($3, settlement_tx_hash),
		    payer_address = COALESCE($4, payer_address),
		    updated_at = NOW()
		WHERE id = $5 AND status = $6`
	result, err := r.db.ExecContext(ctx, query,
		newStatus, paidAt, evidence.TxHash, evidence.PayerAddress, id, expectedStatus)
	if err != nil {
		return false, err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected == 1, nil
}

// MarkLinkedPaid closes a record reached through a payment-link cascade.
// Only open records are touched; a terminal linked record stays as is.
func (r *RecordRepository) MarkLinkedPaid(ctx context.Context, id uuid.UUID, txHash *string, paidAt time.Time) error {
	query := `
		UPDATE financial_records
		SET status = 'settled',
		    paid_at = $1,
		    settlement_tx_hash = COALESCE($2, settlement_tx_hash),
		    updated_at = NOW()
		WHERE id = $3 AND status NOT IN ('settled', 'failed')`
	_, err := r.db.ExecContext(ctx, query, paidAt, txHash, id)
	return err
}
