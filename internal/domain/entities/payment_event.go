package entities

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// EventSource identifies the rail a payment event arrived on
type EventSource string

const (
	EventSourceOnchain EventSource = "onchain" // On-chain transfer watcher
	EventSourceOfframp EventSource = "offramp" // Fiat off-ramp provider
	EventSourceDirect  EventSource = "direct"  // Status update from the UI
)

// PaymentEvent is the normalized, ephemeral form of an inbound delivery.
// It is created by a webhook handler on receipt, consumed synchronously
// by the settlement pipeline and never mutated.
type PaymentEvent struct {
	Source          EventSource
	ExternalOrderID string     // Provider's order id, when it carries one
	RecordID        *uuid.UUID // Explicit record id (direct updates)
	TxHash          string
	FromAddress     string
	ToAddress       string
	Asset           string
	Amount          decimal.Decimal
	RawStatus       string
	ReceivedAt      time.Time
}

// ExternalRef returns the best available external identifier for
// audit-log keying: the order id when present, otherwise the tx hash.
func (e *PaymentEvent) ExternalRef() string {
	if e.ExternalOrderID != "" {
		return e.ExternalOrderID
	}
	return e.TxHash
}
