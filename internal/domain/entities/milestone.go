package entities

import (
	"time"

	"github.com/google/uuid"
)

// MilestonePaymentStatus tracks whether a contract milestone has been paid
type MilestonePaymentStatus string

const (
	MilestonePaymentUnpaid     MilestonePaymentStatus = "unpaid"
	MilestonePaymentProcessing MilestonePaymentStatus = "processing"
	MilestonePaymentPaid       MilestonePaymentStatus = "paid"
)

// MilestoneApprovalStatus tracks client approval of a milestone
type MilestoneApprovalStatus string

const (
	MilestoneApprovalPending  MilestoneApprovalStatus = "pending"
	MilestoneApprovalApproved MilestoneApprovalStatus = "approved"
	MilestoneApprovalRejected MilestoneApprovalStatus = "rejected"
)

// ContractMilestone is a payable unit of work inside a contract. An
// invoice may reference it explicitly; when it does not, the cascade
// falls back to a title-substring match against the invoice description.
type ContractMilestone struct {
	ID             uuid.UUID               `db:"id" json:"id"`
	ContractID     uuid.UUID               `db:"contract_id" json:"contract_id"`
	Title          string                  `db:"title" json:"title"`
	ApprovalStatus MilestoneApprovalStatus `db:"approval_status" json:"approval_status"`
	PaymentStatus  MilestonePaymentStatus  `db:"payment_status" json:"payment_status"`
	PaidAt         *time.Time              `db:"paid_at" json:"paid_at,omitempty"`
}

// IsPayable reports whether a settlement may mark this milestone paid
func (m *ContractMilestone) IsPayable() bool {
	if m.ApprovalStatus != MilestoneApprovalApproved {
		return false
	}
	return m.PaymentStatus == MilestonePaymentUnpaid || m.PaymentStatus == MilestonePaymentProcessing
}
