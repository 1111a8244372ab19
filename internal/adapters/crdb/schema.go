package crdb

import (
	"context"

	"github.com/cockroachdb/errors"
)

var schema = []string{
	`CREATE TABLE IF NOT EXISTS purchase_intents (
		id UUID PRIMARY KEY,
		event_id UUID NOT NULL,
		rate_class_id UUID NOT NULL,
		buyer_name TEXT NOT NULL DEFAULT '',
		mobile_no TEXT NOT NULL DEFAULT '',
		email TEXT NOT NULL DEFAULT '',
		unit_count INT NOT NULL CHECK (unit_count > 0),
		total_amount DECIMAL(14, 2) NOT NULL,
		currency CHAR(3) NOT NULL,
		gateway_order_id TEXT NOT NULL,
		settlement_ref TEXT NOT NULL DEFAULT '',
		status TEXT NOT NULL CHECK (status IN ('ORDER_CREATED', 'SETTLED', 'ISSUED')),
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		settled_at TIMESTAMPTZ
	)`,
	`CREATE TABLE IF NOT EXISTS ticket_units (
		id INT8 PRIMARY KEY DEFAULT unique_rowid(),
		intent_id UUID NOT NULL REFERENCES purchase_intents (id),
		seq INT NOT NULL,
		credential TEXT NOT NULL DEFAULT '',
		entered BOOL NOT NULL DEFAULT false,
		entered_at TIMESTAMPTZ,
		UNIQUE (intent_id, seq),
		CHECK (entered = (entered_at IS NOT NULL))
	)`,
	`CREATE TABLE IF NOT EXISTS ticket_enquiries (
		id UUID PRIMARY KEY,
		event_id UUID NOT NULL,
		rate_class_id UUID NOT NULL,
		buyer_name TEXT NOT NULL DEFAULT '',
		mobile_no TEXT NOT NULL DEFAULT '',
		email TEXT NOT NULL DEFAULT '',
		unit_count INT NOT NULL,
		total_amount DECIMAL(14, 2) NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS outbox (
		id UUID PRIMARY KEY,
		aggregate_type TEXT NOT NULL,
		aggregate_id UUID NOT NULL,
		event_type TEXT NOT NULL,
		payload_json JSONB NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		published_at TIMESTAMPTZ,
		status TEXT NOT NULL CHECK (status IN ('NEW', 'PUBLISHED', 'FAILED')),
		dedupe_key TEXT NOT NULL UNIQUE
	)`,
}

func (r *Repository) Migrate(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := r.pool.Exec(ctx, stmt); err != nil {
			return errors.Wrap(err, "apply schema")
		}
	}
	return nil
}
