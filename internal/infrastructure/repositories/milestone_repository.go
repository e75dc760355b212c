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

// MilestoneRepository is the sqlx implementation of milestone access
type MilestoneRepository struct {
	db *sqlx.DB
}

// NewMilestoneRepository creates a milestone repository
func NewMilestoneRepository(db *sqlx.DB) *MilestoneRepository {
	return &MilestoneRepository{db: db}
}

// GetByID fetches a milestone by primary key. Returns nil when absent.
func (r *MilestoneRepository) GetByID(ctx context.Context, id uuid.UUID) (*entities.ContractMilestone, error) {
	query := `
		SELECT id, contract_id, title, approval_status, payment_status, paid_at
		FROM contract_milestones WHERE id = $1`
	var milestone entities.ContractMilestone
	if err := r.db.GetContext(ctx, &milestone, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &milestone, nil
}

// FindPayableByContract returns approved, not-yet-paid milestones of a
// contract in creation order.
func (r *MilestoneRepository) FindPayableByContract(ctx context.Context, contractID uuid.UUID) ([]*entities.ContractMilestone, error) {
	query := `
		SELECT id, contract_id, title, approval_status, payment_status, paid_at
		FROM contract_milestones
		WHERE contract_id = $1
		  AND approval_status = 'approved'
		  AND payment_status IN ('unpaid', 'processing')
		ORDER BY created_at`
	var milestones []*entities.ContractMilestone
	if err := r.db.SelectContext(ctx, &milestones, query, contractID); err != nil {
		return nil, err
	}
	return milestones, nil
}

// MarkPaid sets a milestone's payment status to paid
func (r *MilestoneRepository) MarkPaid(ctx context.Context, id uuid.UUID, paidAt time.Time) error {
	query := `
		UPDATE contract_milestones
		SET payment_status = 'paid', paid_at = $1
		WHERE id = $2 AND payment_status IN ('unpaid', 'processing')`
	_, err := r.db.ExecContext(ctx, query, paidAt, id)
	return err
}
