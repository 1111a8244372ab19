package crdb

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/robertarktes/ticket-issuance-and-admission/internal/domain"
	"github.com/robertarktes/ticket-issuance-and-admission/internal/ledger"
	"github.com/robertarktes/ticket-issuance-and-admission/internal/observability"
	"github.com/shopspring/decimal"
)

const (
	SerializationFailureCode = "40001"

	maxTxAttempts = 3
)

type Repository struct {
	pool *pgxpool.Pool
}

var _ ledger.Ledger = (*Repository)(nil)

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// WithTx runs fn in a SERIALIZABLE transaction and retries it when the
// database reports a serialization failure. fn must not have side effects
// outside the transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(ctx context.Context, tx ledger.Tx) error) error {
	var err error
	for attempt := 0; attempt < maxTxAttempts; attempt++ {
		err = r.runTx(ctx, fn)
		if !errors.Is(err, domain.ErrSerializationFailure) {
			return err
		}
		backoff := time.Duration(1<<attempt) * 20 * time.Millisecond
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
	}
	return err
}

func (r *Repository) runTx(ctx context.Context, fn func(ctx context.Context, tx ledger.Tx) error) error {
	start := time.Now()
	defer func() { observability.DBTxDuration.Observe(time.Since(start).Seconds()) }()

	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.Serializable})
	if err != nil {
		return domain.Unavailable(err, "begin transaction")
	}
	defer tx.Rollback(ctx)

	if err := fn(ctx, &pgTx{tx: tx}); err != nil {
		return mapError(err)
	}
	if err := tx.Commit(ctx); err != nil {
		return mapError(err)
	}
	return nil
}

func mapError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == SerializationFailureCode {
		return errors.Mark(err, domain.ErrSerializationFailure)
	}
	return err
}

func (r *Repository) Ping(ctx context.Context) error {
	if err := r.pool.Ping(ctx); err != nil {
		return domain.Unavailable(err, "ping ledger")
	}
	return nil
}

const intentColumns = `id, event_id, rate_class_id, buyer_name, mobile_no, email, unit_count,
	total_amount::STRING, currency, gateway_order_id, settlement_ref, status, created_at, settled_at`

func scanIntent(row pgx.Row) (*domain.PurchaseIntent, error) {
	var (
		p      domain.PurchaseIntent
		total  string
		status string
	)
	err := row.Scan(&p.ID, &p.EventID, &p.RateClassID, &p.Buyer.Name, &p.Buyer.MobileNo, &p.Buyer.Email,
		&p.UnitCount, &total, &p.Currency, &p.GatewayOrderID, &p.SettlementRef, &status, &p.CreatedAt, &p.SettledAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	p.TotalAmount, err = decimal.NewFromString(total)
	if err != nil {
		return nil, errors.Wrapf(err, "parse total amount of intent %s", p.ID)
	}
	p.Status = domain.IntentStatus(status)
	return &p, nil
}

func (r *Repository) GetIntent(ctx context.Context, intentID uuid.UUID) (*domain.PurchaseIntent, error) {
	intent, err := scanIntent(r.pool.QueryRow(ctx, `SELECT `+intentColumns+` FROM purchase_intents WHERE id = $1`, intentID))
	if errors.Is(err, domain.ErrNotFound) {
		return nil, domain.NotFoundf("purchase intent %s not found", intentID)
	}
	if err != nil {
		return nil, domain.Unavailable(err, "get purchase intent")
	}
	return intent, nil
}

func (r *Repository) ListUnits(ctx context.Context, intentID uuid.UUID) ([]domain.TicketUnit, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, intent_id, seq, credential, entered, entered_at
		FROM ticket_units WHERE intent_id = $1 ORDER BY seq ASC
	`, intentID)
	if err != nil {
		return nil, domain.Unavailable(err, "list ticket units")
	}
	defer rows.Close()

	var units []domain.TicketUnit
	for rows.Next() {
		var u domain.TicketUnit
		if err := rows.Scan(&u.ID, &u.IntentID, &u.Seq, &u.Credential, &u.Entered, &u.EnteredAt); err != nil {
			return nil, err
		}
		units = append(units, u)
	}
	return units, rows.Err()
}

type pgTx struct {
	tx pgx.Tx
}

func (t *pgTx) CreateIntent(ctx context.Context, p domain.PurchaseIntent) error {
	_, err := t.tx.Exec(ctx, `
		INSERT INTO purchase_intents
			(id, event_id, rate_class_id, buyer_name, mobile_no, email, unit_count,
			 total_amount, currency, gateway_order_id, settlement_ref, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8::DECIMAL, $9, $10, '', $11, $12)
	`, p.ID, p.EventID, p.RateClassID, p.Buyer.Name, p.Buyer.MobileNo, p.Buyer.Email, p.UnitCount,
		p.TotalAmount.String(), p.Currency, p.GatewayOrderID, string(p.Status), p.CreatedAt)
	return err
}

func (t *pgTx) GetIntentForUpdate(ctx context.Context, intentID uuid.UUID) (*domain.PurchaseIntent, error) {
	intent, err := scanIntent(t.tx.QueryRow(ctx, `SELECT `+intentColumns+` FROM purchase_intents WHERE id = $1 FOR UPDATE`, intentID))
	if errors.Is(err, domain.ErrNotFound) {
		return nil, domain.NotFoundf("purchase intent %s not found", intentID)
	}
	return intent, err
}

func (t *pgTx) SetSettlement(ctx context.Context, intentID uuid.UUID, token string, at time.Time) (bool, error) {
	result, err := t.tx.Exec(ctx, `
		UPDATE purchase_intents SET settlement_ref = $2, settled_at = $3, status = 'SETTLED'
		WHERE id = $1 AND settlement_ref = ''
	`, intentID, token, at)
	if err != nil {
		return false, err
	}
	return result.RowsAffected() == 1, nil
}

func (t *pgTx) MarkIssued(ctx context.Context, intentID uuid.UUID) error {
	result, err := t.tx.Exec(ctx, `
		UPDATE purchase_intents SET status = 'ISSUED' WHERE id = $1 AND status = 'SETTLED'
	`, intentID)
	if err != nil {
		return err
	}
	if result.RowsAffected() == 0 {
		return errors.Newf("purchase intent %s is not settled", intentID)
	}
	return nil
}

// CreateUnits inserts the rows one statement at a time: the pgx.Tx connection
// cannot be shared between goroutines.
func (t *pgTx) CreateUnits(ctx context.Context, intentID uuid.UUID, count int) ([]int64, error) {
	ids := make([]int64, 0, count)
	for seq := 1; seq <= count; seq++ {
		var id int64
		err := t.tx.QueryRow(ctx, `
			INSERT INTO ticket_units (intent_id, seq) VALUES ($1, $2) RETURNING id
		`, intentID, seq).Scan(&id)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func (t *pgTx) SetCredential(ctx context.Context, unitID int64, payload string) error {
	result, err := t.tx.Exec(ctx, `UPDATE ticket_units SET credential = $2 WHERE id = $1`, unitID, payload)
	if err != nil {
		return err
	}
	if result.RowsAffected() == 0 {
		return domain.NotFoundf("ticket unit %d not found", unitID)
	}
	return nil
}

func (t *pgTx) GetUnitForUpdate(ctx context.Context, unitID int64) (*domain.TicketUnit, error) {
	var u domain.TicketUnit
	err := t.tx.QueryRow(ctx, `
		SELECT id, intent_id, seq, credential, entered, entered_at
		FROM ticket_units WHERE id = $1 FOR UPDATE
	`, unitID).Scan(&u.ID, &u.IntentID, &u.Seq, &u.Credential, &u.Entered, &u.EnteredAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func (t *pgTx) SetAdmitted(ctx context.Context, unitID int64, at time.Time) (bool, error) {
	result, err := t.tx.Exec(ctx, `
		UPDATE ticket_units SET entered = true, entered_at = $2
		WHERE id = $1 AND entered = false
	`, unitID, at)
	if err != nil {
		return false, err
	}
	return result.RowsAffected() == 1, nil
}

func (t *pgTx) InsertEnquiry(ctx context.Context, e domain.Enquiry) error {
	_, err := t.tx.Exec(ctx, `
		INSERT INTO ticket_enquiries
			(id, event_id, rate_class_id, buyer_name, mobile_no, email, unit_count, total_amount, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8::DECIMAL, $9)
	`, e.ID, e.EventID, e.RateClassID, e.Buyer.Name, e.Buyer.MobileNo, e.Buyer.Email, e.UnitCount,
		e.TotalAmount.String(), e.CreatedAt)
	return err
}
