// Package metrics defines the Prometheus instrumentation for the
// settlement pipeline.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// WebhooksReceivedTotal counts inbound webhook deliveries by provider and outcome
	WebhooksReceivedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "clearrail_webhooks_received_total",
		Help: "Inbound webhook deliveries by provider and outcome",
	}, []string{"provider", "outcome"})

	// SettlementsAppliedTotal counts state transitions applied to financial records
	SettlementsAppliedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "clearrail_settlements_applied_total",
		Help: "Settlement state transitions applied, by record kind and new state",
	}, []string{"kind", "state"})

	// SettlementNoOpsTotal counts idempotent redelivery short-circuits
	SettlementNoOpsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "clearrail_settlement_noops_total",
		Help: "Deliveries ignored because the record was already terminal",
	})

	// MatchFailuresTotal counts events that could not be matched to a record
	MatchFailuresTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "clearrail_match_failures_total",
		Help: "Payment events with no unique matching record, by reason",
	}, []string{"reason"})

	// CascadeFailuresTotal counts failed cascade updates to linked records
	CascadeFailuresTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "clearrail_cascade_failures_total",
		Help: "Cascade updates to linked records that failed",
	})

	// NotificationSendsTotal counts notification sends by channel and outcome
	NotificationSendsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "clearrail_notification_sends_total",
		Help: "Notification channel sends by channel and outcome",
	}, []string{"channel", "outcome"})

	// DatabaseConnectionsGauge tracks sql pool connection states
	DatabaseConnectionsGauge = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "clearrail_database_connections",
		Help: "Database connection pool state",
	}, []string{"state"})
)
