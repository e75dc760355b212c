package settlement

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/clearrail/clearrail/internal/domain/entities"
	"github.com/clearrail/clearrail/internal/domain/repositories"
	"github.com/clearrail/clearrail/pkg/metrics"
)

// amountTolerance is the ±5% band for heuristic amount matching.
// Gas-adjusted or rounding-affected transfers rarely match an invoice
// bit-for-bit; a tight window tolerates that without cross-matching
// unrelated records.
var amountTolerance = decimal.NewFromFloat(0.05)

// Matcher locates the unique financial record a payment event targets
type Matcher struct {
	records repositories.RecordRepository
	users   repositories.UserRepository
	logger  *zap.Logger
}

// NewMatcher creates a record matcher
func NewMatcher(records repositories.RecordRepository, users repositories.UserRepository, logger *zap.Logger) *Matcher {
	return &Matcher{records: records, users: users, logger: logger}
}

// Match resolves an event to exactly one record. Exact-id lookups are
// always preferred; on-chain events fall back to the wallet/asset/amount
// heuristic. Zero candidates returns ErrNoMatch, more than one returns
// ErrAmbiguousMatch; neither mutates anything.
func (m *Matcher) Match(ctx context.Context, event *entities.PaymentEvent) (*entities.FinancialRecord, error) {
	if event.RecordID != nil {
		record, err := m.records.GetByID(ctx, *event.RecordID)
		if err != nil {
			return nil, fmt.Errorf("record lookup by id: %w", err)
		}
		if record == nil {
			metrics.MatchFailuresTotal.WithLabelValues("not_found").Inc()
			return nil, ErrNoMatch
		}
		return record, nil
	}

	if event.ExternalOrderID != "" {
		record, err := m.records.GetByExternalOrderID(ctx, event.ExternalOrderID)
		if err != nil {
			return nil, fmt.Errorf("record lookup by order id: %w", err)
		}
		if record == nil {
			metrics.MatchFailuresTotal.WithLabelValues("not_found").Inc()
			return nil, ErrNoMatch
		}
		return record, nil
	}

	if event.Source != entities.EventSourceOnchain {
		metrics.MatchFailuresTotal.WithLabelValues("no_identifier").Inc()
		return nil, ErrNoMatch
	}

	return m.matchHeuristic(ctx, event)
}

// matchHeuristic resolves on-chain events that carry only a destination
// address, asset and amount.
func (m *Matcher) matchHeuristic(ctx context.Context, event *entities.PaymentEvent) (*entities.FinancialRecord, error) {
	user, err := m.users.GetByWalletAddress(ctx, event.ToAddress)
	if err != nil {
		return nil, fmt.Errorf("wallet owner lookup: %w", err)
	}
	if user == nil {
		m.logger.Info("No user owns destination address",
			zap.String("to_address", event.ToAddress),
			zap.String("tx_hash", event.TxHash))
		metrics.MatchFailuresTotal.WithLabelValues("unknown_wallet").Inc()
		return nil, ErrNoMatch
	}

	open, err := m.records.FindOpenByWalletAndAsset(ctx, event.ToAddress, event.Asset)
	if err != nil {
		return nil, fmt.Errorf("open record search: %w", err)
	}

	var candidates []*entities.FinancialRecord
	for _, record := range open {
		if record.OwnerUserID == user.ID && withinTolerance(record.Amount, event.Amount) {
			candidates = append(candidates, record)
		}
	}

	switch len(candidates) {
	case 1:
		return candidates[0], nil
	case 0:
		m.logger.Info("No open record within amount tolerance",
			zap.String("to_address", event.ToAddress),
			zap.String("asset", event.Asset),
			zap.String("amount", event.Amount.String()),
			zap.String("tx_hash", event.TxHash))
		metrics.MatchFailuresTotal.WithLabelValues("not_found").Inc()
		return nil, ErrNoMatch
	default:
		// Never guess between candidates; manual reconciliation handles it
		m.logger.Warn("Multiple open records within amount tolerance",
			zap.String("to_address", event.ToAddress),
			zap.String("asset", event.Asset),
			zap.String("amount", event.Amount.String()),
			zap.Int("candidates", len(candidates)))
		metrics.MatchFailuresTotal.WithLabelValues("ambiguous").Inc()
		return nil, ErrAmbiguousMatch
	}
}

// withinTolerance reports whether observed is within ±5% of expected
func withinTolerance(expected, observed decimal.Decimal) bool {
	if expected.IsZero() {
		return observed.IsZero()
	}
	band := expected.Mul(amountTolerance)
	diff := expected.Sub(observed).Abs()
	return diff.LessThanOrEqual(band)
}
