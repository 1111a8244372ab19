// Package memory is a process-local ledger. Transactions are serialized by a
// single mutex and roll back by restoring a snapshot.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robertarktes/ticket-issuance-and-admission/internal/domain"
	"github.com/robertarktes/ticket-issuance-and-admission/internal/ledger"
)

type state struct {
	intents   map[uuid.UUID]domain.PurchaseIntent
	units     map[int64]domain.TicketUnit
	outbox    []domain.OutboxRecord
	enquiries []domain.Enquiry
	nextUnit  int64
}

func (s state) clone() state {
	c := state{
		intents:   make(map[uuid.UUID]domain.PurchaseIntent, len(s.intents)),
		units:     make(map[int64]domain.TicketUnit, len(s.units)),
		outbox:    append([]domain.OutboxRecord(nil), s.outbox...),
		enquiries: append([]domain.Enquiry(nil), s.enquiries...),
		nextUnit:  s.nextUnit,
	}
	for k, v := range s.intents {
		c.intents[k] = v
	}
	for k, v := range s.units {
		c.units[k] = v
	}
	return c
}

type Ledger struct {
	mu sync.Mutex
	st state
}

var _ ledger.Ledger = (*Ledger)(nil)

func NewLedger() *Ledger {
	return &Ledger{st: state{
		intents:  map[uuid.UUID]domain.PurchaseIntent{},
		units:    map[int64]domain.TicketUnit{},
		nextUnit: 1000,
	}}
}

func (l *Ledger) WithTx(ctx context.Context, fn func(ctx context.Context, tx ledger.Tx) error) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	snapshot := l.st.clone()
	if err := fn(ctx, &tx{st: &l.st}); err != nil {
		l.st = snapshot
		return err
	}
	return nil
}

func (l *Ledger) GetIntent(ctx context.Context, intentID uuid.UUID) (*domain.PurchaseIntent, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	intent, ok := l.st.intents[intentID]
	if !ok {
		return nil, domain.NotFoundf("purchase intent %s not found", intentID)
	}
	return &intent, nil
}

func (l *Ledger) ListUnits(ctx context.Context, intentID uuid.UUID) ([]domain.TicketUnit, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	var units []domain.TicketUnit
	for _, u := range l.st.units {
		if u.IntentID == intentID {
			units = append(units, u)
		}
	}
	sort.Slice(units, func(i, j int) bool { return units[i].ID < units[j].ID })
	return units, nil
}

func (l *Ledger) Ping(ctx context.Context) error {
	return ctx.Err()
}

// Outbox returns a copy of every outbox record written so far.
func (l *Ledger) Outbox() []domain.OutboxRecord {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]domain.OutboxRecord(nil), l.st.outbox...)
}

func (l *Ledger) Enquiries() []domain.Enquiry {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]domain.Enquiry(nil), l.st.enquiries...)
}

func (l *Ledger) IntentCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.st.intents)
}

type tx struct {
	st *state
}

func (t *tx) CreateIntent(ctx context.Context, intent domain.PurchaseIntent) error {
	if _, ok := t.st.intents[intent.ID]; ok {
		return domain.ErrConflict
	}
	t.st.intents[intent.ID] = intent
	return nil
}

func (t *tx) GetIntentForUpdate(ctx context.Context, intentID uuid.UUID) (*domain.PurchaseIntent, error) {
	intent, ok := t.st.intents[intentID]
	if !ok {
		return nil, domain.NotFoundf("purchase intent %s not found", intentID)
	}
	return &intent, nil
}

func (t *tx) SetSettlement(ctx context.Context, intentID uuid.UUID, token string, at time.Time) (bool, error) {
	intent, ok := t.st.intents[intentID]
	if !ok {
		return false, domain.NotFoundf("purchase intent %s not found", intentID)
	}
	if intent.SettlementRef != "" {
		return false, nil
	}
	intent.SettlementRef = token
	intent.SettledAt = &at
	intent.Status = domain.IntentSettled
	t.st.intents[intentID] = intent
	return true, nil
}

func (t *tx) MarkIssued(ctx context.Context, intentID uuid.UUID) error {
	intent, ok := t.st.intents[intentID]
	if !ok {
		return domain.NotFoundf("purchase intent %s not found", intentID)
	}
	intent.Status = domain.IntentIssued
	t.st.intents[intentID] = intent
	return nil
}

func (t *tx) CreateUnits(ctx context.Context, intentID uuid.UUID, count int) ([]int64, error) {
	ids := make([]int64, 0, count)
	for i := 1; i <= count; i++ {
		t.st.nextUnit++
		id := t.st.nextUnit
		t.st.units[id] = domain.TicketUnit{ID: id, IntentID: intentID, Seq: i}
		ids = append(ids, id)
	}
	return ids, nil
}

func (t *tx) SetCredential(ctx context.Context, unitID int64, payload string) error {
	u, ok := t.st.units[unitID]
	if !ok {
		return domain.NotFoundf("ticket unit %d not found", unitID)
	}
	u.Credential = payload
	t.st.units[unitID] = u
	return nil
}

func (t *tx) GetUnitForUpdate(ctx context.Context, unitID int64) (*domain.TicketUnit, error) {
	u, ok := t.st.units[unitID]
	if !ok {
		return nil, nil
	}
	return &u, nil
}

func (t *tx) SetAdmitted(ctx context.Context, unitID int64, at time.Time) (bool, error) {
	u, ok := t.st.units[unitID]
	if !ok || u.Entered {
		return false, nil
	}
	u.Entered = true
	u.EnteredAt = &at
	t.st.units[unitID] = u
	return true, nil
}

func (t *tx) InsertOutbox(ctx context.Context, record domain.OutboxRecord) error {
	t.st.outbox = append(t.st.outbox, record)
	return nil
}

func (t *tx) InsertEnquiry(ctx context.Context, enquiry domain.Enquiry) error {
	t.st.enquiries = append(t.st.enquiries, enquiry)
	return nil
}
