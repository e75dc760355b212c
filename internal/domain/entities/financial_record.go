package entities

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// RecordKind identifies the variant of a financial record
type RecordKind string

const (
	RecordKindInvoice      RecordKind = "invoice"
	RecordKindPaymentLink  RecordKind = "payment_link"
	RecordKindProposal     RecordKind = "proposal"
	RecordKindOfframpTx    RecordKind = "offramp_transaction"
)

// ValidRecordKinds contains all valid record kinds
var ValidRecordKinds = map[RecordKind]bool{
	RecordKindInvoice:     true,
	RecordKindPaymentLink: true,
	RecordKindProposal:    true,
	RecordKindOfframpTx:   true,
}

// IsValid checks if the kind is known
func (k RecordKind) IsValid() bool {
	return ValidRecordKinds[k]
}

// FinancialRecord is the settlement target: an invoice, payment link,
// proposal or off-ramp transaction owned by exactly one user. Records
// are created by the business-object flows upstream; this service only
// transitions their settlement state.
type FinancialRecord struct {
	ID               uuid.UUID       `db:"id" json:"id"`
	Kind             RecordKind      `db:"kind" json:"kind"`
	OwnerUserID      uuid.UUID       `db:"owner_user_id" json:"owner_user_id"`
	WalletAddress    string          `db:"wallet_address" json:"wallet_address"`
	Asset            string          `db:"asset" json:"asset"`
	Amount           decimal.Decimal `db:"amount" json:"amount"`
	Description      string          `db:"description" json:"description"`
	Status           SettlementState `db:"status" json:"status"`
	ExternalOrderID  *string         `db:"external_order_id" json:"external_order_id,omitempty"`
	ContractID       *uuid.UUID      `db:"contract_id" json:"contract_id,omitempty"`
	MilestoneID      *uuid.UUID      `db:"milestone_id" json:"milestone_id,omitempty"`
	ProposalID       *uuid.UUID      `db:"proposal_id" json:"proposal_id,omitempty"`
	InvoiceID        *uuid.UUID      `db:"invoice_id" json:"invoice_id,omitempty"`
	SettlementTxHash *string         `db:"settlement_tx_hash" json:"settlement_tx_hash,omitempty"`
	PayerAddress     *string         `db:"payer_address" json:"payer_address,omitempty"`
	PaidAt           *time.Time      `db:"paid_at" json:"paid_at,omitempty"`
	CreatedAt        time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt        time.Time       `db:"updated_at" json:"updated_at"`
}

// IsOpen reports whether the record can still accept a settlement
func (r *FinancialRecord) IsOpen() bool {
	return !r.Status.IsTerminal()
}

// SettlementEvidence carries the proof attached to a state transition
type SettlementEvidence struct {
	TxHash       *string
	PayerAddress *string
}
