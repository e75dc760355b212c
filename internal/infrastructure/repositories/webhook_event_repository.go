package repositories

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/clearrail/clearrail/internal/domain/entities"
)

// WebhookEventRepository persists the append-only webhook audit trail
type WebhookEventRepository struct {
	db *sqlx.DB
}

// NewWebhookEventRepository creates a webhook event repository
func NewWebhookEventRepository(db *sqlx.DB) *WebhookEventRepository {
	return &WebhookEventRepository{db: db}
}

// Append inserts one audit row. Rows are never updated or deleted.
func (r *WebhookEventRepository) Append(ctx context.Context, event *entities.WebhookEvent) error {
	query := `
		INSERT INTO webhook_events (id, provider, external_ref, raw_body, outcome, record_id, received_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`
	_, err := r.db.ExecContext(ctx, query,
		event.ID, event.Provider, event.ExternalRef, event.RawBody,
		event.Outcome, event.RecordID, event.ReceivedAt)
	return err
}

// ListUnmatchedSince returns recent no-match and ambiguous rows that
// never got a later applied/noop row for the same external ref, at most
// one row per (provider, external_ref) so a ref with several unmatched
// deliveries is replayed once per sweep. Used by the reconciliation
// sweeper.
func (r *WebhookEventRepository) ListUnmatchedSince(ctx context.Context, since time.Time, limit int) ([]*entities.WebhookEvent, error) {
	query := `
		SELECT id, provider, external_ref, raw_body, outcome, record_id, received_at
		FROM (
			SELECT DISTINCT ON (e.provider, e.external_ref)
			       e.id, e.provider, e.external_ref, e.raw_body, e.outcome, e.record_id, e.received_at
			FROM webhook_events e
			WHERE e.outcome IN ('no_match', 'ambiguous')
			  AND e.received_at >= $1
			  AND NOT EXISTS (
				SELECT 1 FROM webhook_events later
				WHERE later.provider = e.provider
				  AND later.external_ref = e.external_ref
				  AND later.outcome IN ('applied', 'noop')
			  )
			ORDER BY e.provider, e.external_ref, e.received_at DESC
		) unmatched
		ORDER BY received_at
		LIMIT $2`
	var events []*entities.WebhookEvent
	if err := r.db.SelectContext(ctx, &events, query, since, limit); err != nil {
		return nil, err
	}
	return events, nil
}
