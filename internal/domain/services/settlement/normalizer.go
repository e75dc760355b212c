package settlement

import (
	"strings"

	"go.uber.org/zap"

	"github.com/clearrail/clearrail/internal/domain/entities"
)

// Provider identifiers used across verification, normalization and the
// audit trail.
const (
	ProviderOfframp = "offramp"
	ProviderOnchain = "onchain"
	ProviderDirect  = "direct"
)

// statusTables maps each provider's raw status vocabulary to the
// canonical settlement state. Unknown values normalize to pending so an
// unrecognized delivery is never silently dropped.
var statusTables = map[string]map[string]entities.SettlementState{
	ProviderOfframp: {
		"initiated":  entities.SettlementStatePending,
		"pending":    entities.SettlementStatePending,
		"processing": entities.SettlementStateProcessing,
		"validated":  entities.SettlementStateProcessing,
		"settled":    entities.SettlementStateSettled,
		"completed":  entities.SettlementStateSettled,
		"cancelled":  entities.SettlementStateFailed,
		"expired":    entities.SettlementStateFailed,
		"failed":     entities.SettlementStateFailed,
	},
	ProviderOnchain: {
		"pending":   entities.SettlementStatePending,
		"confirmed": entities.SettlementStateSettled,
		"success":   entities.SettlementStateSettled,
		"failed":    entities.SettlementStateFailed,
		"reverted":  entities.SettlementStateFailed,
	},
	// The UI already speaks a near-canonical vocabulary
	ProviderDirect: {
		"completed":  entities.SettlementStateSettled,
		"paid":       entities.SettlementStateSettled,
		"processing": entities.SettlementStateProcessing,
		"failed":     entities.SettlementStateFailed,
	},
}

// Normalizer maps provider-specific status strings to SettlementState
type Normalizer struct {
	logger *zap.Logger
}

// NewNormalizer creates a status normalizer
func NewNormalizer(logger *zap.Logger) *Normalizer {
	return &Normalizer{logger: logger}
}

// Normalize returns the canonical state for a provider's raw status.
// Unknown provider/status combinations fall back to pending and are
// logged for operator visibility.
func (n *Normalizer) Normalize(provider, rawStatus string) entities.SettlementState {
	status := strings.ToLower(strings.TrimSpace(rawStatus))

	if table, ok := statusTables[strings.ToLower(provider)]; ok {
		if state, ok := table[status]; ok {
			return state
		}
	}

	n.logger.Warn("Unknown raw status, defaulting to pending",
		zap.String("provider", provider),
		zap.String("raw_status", rawStatus))
	return entities.SettlementStatePending
}
