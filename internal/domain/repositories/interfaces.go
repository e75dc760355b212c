// Package repositories defines the ports the settlement pipeline
// consumes. The pipeline owns neither the record store nor the
// notification transports; implementations live in
// internal/infrastructure.
package repositories

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/clearrail/clearrail/internal/domain/entities"
)

// RecordRepository is the record-store port for financial records
type RecordRepository interface {
	GetByID(ctx context.Context, id uuid.UUID) (*entities.FinancialRecord, error)
	GetByExternalOrderID(ctx context.Context, orderID string) (*entities.FinancialRecord, error)
	// FindOpenByWalletAndAsset returns non-terminal records receiving
	// the given asset at the given wallet address.
	FindOpenByWalletAndAsset(ctx context.Context, walletAddress, asset string) ([]*entities.FinancialRecord, error)
	// ConditionalUpdateStatus performs the optimistic status transition:
	// the update only applies while the row still carries expectedStatus.
	// Returns false when another delivery won the race.
	ConditionalUpdateStatus(ctx context.Context, id uuid.UUID, expectedStatus, newStatus entities.SettlementState, evidence entities.SettlementEvidence, paidAt *time.Time) (bool, error)
	// MarkLinkedPaid closes a proposal/invoice reached through a payment
	// link cascade, copying the settlement tx hash over.
	MarkLinkedPaid(ctx context.Context, id uuid.UUID, txHash *string, paidAt time.Time) error
}

// MilestoneRepository accesses contract milestones for cascades
type MilestoneRepository interface {
	GetByID(ctx context.Context, id uuid.UUID) (*entities.ContractMilestone, error)
	// FindPayableByContract returns approved milestones of the contract
	// whose payment status is unpaid or processing.
	FindPayableByContract(ctx context.Context, contractID uuid.UUID) ([]*entities.ContractMilestone, error)
	MarkPaid(ctx context.Context, id uuid.UUID, paidAt time.Time) error
}

// UserRepository resolves record owners and the wallet-address index
type UserRepository interface {
	GetByID(ctx context.Context, id uuid.UUID) (*entities.User, error)
	// GetByWalletAddress resolves the owning user of a destination
	// address. Returns nil without error when no user owns it.
	GetByWalletAddress(ctx context.Context, address string) (*entities.User, error)
}

// WebhookEventRepository is the append-only audit trail port
type WebhookEventRepository interface {
	Append(ctx context.Context, event *entities.WebhookEvent) error
	// ListUnmatchedSince returns recent no-match/ambiguous rows for the
	// reconciliation sweeper.
	ListUnmatchedSince(ctx context.Context, since time.Time, limit int) ([]*entities.WebhookEvent, error)
}

// NotificationSender is the outbound transport port. Both methods are
// fire-and-forget from the pipeline's perspective; delivery receipts
// are not tracked.
type NotificationSender interface {
	SendTelegram(ctx context.Context, chatID int64, text string) error
	SendEmail(ctx context.Context, to, subject, html string) error
}
