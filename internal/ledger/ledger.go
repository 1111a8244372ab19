// Package ledger is the persistence contract for purchase intents and their
// ticket units. Every multi-row step of issuance and admission runs inside a
// single WithTx call.
package ledger

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/robertarktes/ticket-issuance-and-admission/internal/domain"
)

type Tx interface {
	CreateIntent(ctx context.Context, intent domain.PurchaseIntent) error
	// GetIntentForUpdate locks the intent row. Returns domain.ErrNotFound when absent.
	GetIntentForUpdate(ctx context.Context, intentID uuid.UUID) (*domain.PurchaseIntent, error)
	// SetSettlement records the payment token only if none is recorded yet.
	SetSettlement(ctx context.Context, intentID uuid.UUID, token string, at time.Time) (bool, error)
	MarkIssued(ctx context.Context, intentID uuid.UUID) error
	CreateUnits(ctx context.Context, intentID uuid.UUID, count int) ([]int64, error)
	SetCredential(ctx context.Context, unitID int64, payload string) error
	// GetUnitForUpdate returns nil, nil when the unit does not exist.
	GetUnitForUpdate(ctx context.Context, unitID int64) (*domain.TicketUnit, error)
	// SetAdmitted flips the entry flag only if it is still false.
	SetAdmitted(ctx context.Context, unitID int64, at time.Time) (bool, error)
	InsertOutbox(ctx context.Context, record domain.OutboxRecord) error
	InsertEnquiry(ctx context.Context, enquiry domain.Enquiry) error
}

type Ledger interface {
	WithTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
	GetIntent(ctx context.Context, intentID uuid.UUID) (*domain.PurchaseIntent, error)
	ListUnits(ctx context.Context, intentID uuid.UUID) ([]domain.TicketUnit, error)
	Ping(ctx context.Context) error
}
