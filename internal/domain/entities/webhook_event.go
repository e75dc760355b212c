package entities

import (
	"time"

	"github.com/google/uuid"
)

// WebhookOutcome records how an inbound delivery was resolved
type WebhookOutcome string

const (
	WebhookOutcomeApplied   WebhookOutcome = "applied"
	WebhookOutcomeNoOp      WebhookOutcome = "noop"
	WebhookOutcomeNoMatch   WebhookOutcome = "no_match"
	WebhookOutcomeAmbiguous WebhookOutcome = "ambiguous"
	WebhookOutcomeRejected  WebhookOutcome = "rejected"
)

// WebhookEvent is one row of the append-only audit trail. Every inbound
// delivery lands here whether or not it matched a record; the
// reconciliation sweeper re-reads unmatched rows.
type WebhookEvent struct {
	ID          uuid.UUID      `db:"id" json:"id"`
	Provider    string         `db:"provider" json:"provider"`
	ExternalRef string         `db:"external_ref" json:"external_ref"`
	RawBody     []byte         `db:"raw_body" json:"raw_body"`
	Outcome     WebhookOutcome `db:"outcome" json:"outcome"`
	RecordID    *uuid.UUID     `db:"record_id" json:"record_id,omitempty"`
	ReceivedAt  time.Time      `db:"received_at" json:"received_at"`
}
