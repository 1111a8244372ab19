package crdb

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/robertarktes/ticket-issuance-and-admission/internal/domain"
)

func (t *pgTx) InsertOutbox(ctx context.Context, record domain.OutboxRecord) error {
	_, err := t.tx.Exec(ctx, `
		INSERT INTO outbox (id, aggregate_type, aggregate_id, event_type, payload_json, status, dedupe_key)
		VALUES ($1, $2, $3, $4, $5, 'NEW', $6)
	`, record.ID, record.AggregateType, record.AggregateID, record.EventType, record.Payload, record.DedupeKey)
	return err
}

// ClaimOutbox locks up to limit unpublished records and hands them to fn in
// creation order. Records fn reports as published are marked in the same
// transaction, so a crashed publisher leaves them NEW.
func (r *Repository) ClaimOutbox(ctx context.Context, limit int, fn func(ctx context.Context, records []domain.OutboxRecord) []uuid.UUID) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return domain.Unavailable(err, "begin outbox claim")
	}
	defer tx.Rollback(ctx)

	records, err := unpublished(ctx, tx, limit)
	if err != nil {
		return err
	}
	if len(records) == 0 {
		return nil
	}

	published := fn(ctx, records)
	now := time.Now()
	for _, id := range published {
		if _, err := tx.Exec(ctx, `
			UPDATE outbox SET status = 'PUBLISHED', published_at = $2 WHERE id = $1
		`, id, now); err != nil {
			return err
		}
	}
	return tx.Commit(ctx)
}

func unpublished(ctx context.Context, tx pgx.Tx, limit int) ([]domain.OutboxRecord, error) {
	rows, err := tx.Query(ctx, `
		SELECT id, aggregate_type, aggregate_id, event_type, payload_json, created_at, published_at, status, dedupe_key
		FROM outbox WHERE status = 'NEW' ORDER BY created_at ASC LIMIT $1 FOR UPDATE SKIP LOCKED
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []domain.OutboxRecord
	for rows.Next() {
		var rec domain.OutboxRecord
		err := rows.Scan(&rec.ID, &rec.AggregateType, &rec.AggregateID, &rec.EventType, &rec.Payload, &rec.CreatedAt, &rec.PublishedAt, &rec.Status, &rec.DedupeKey)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}
