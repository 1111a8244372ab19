package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type Buyer struct {
	Name     string
	MobileNo string
	Email    string
}

// PurchaseIntent is one checkout attempt. SettlementRef stays empty until the
// payment is confirmed and is never rewritten afterwards.
type PurchaseIntent struct {
	ID             uuid.UUID
	EventID        uuid.UUID
	RateClassID    uuid.UUID
	Buyer          Buyer
	UnitCount      int
	TotalAmount    decimal.Decimal
	Currency       string
	GatewayOrderID string
	SettlementRef  string
	Status         IntentStatus
	CreatedAt      time.Time
	SettledAt      *time.Time
}

func (p PurchaseIntent) Settled() bool {
	return p.SettlementRef != ""
}

// TicketUnit is one individually admissible ticket owned by a settled intent.
type TicketUnit struct {
	ID         int64
	IntentID   uuid.UUID
	Seq        int
	Credential string
	Entered    bool
	EnteredAt  *time.Time
}

type Event struct {
	ID          uuid.UUID
	Name        string
	Venue       string
	Date        time.Time
	Currency    string
	BannerPaths []string
	RateClasses []RateClass
}

type RateClass struct {
	ID         uuid.UUID
	EventID    uuid.UUID
	TicketType string
	UnitPrice  decimal.Decimal
	MinimumQty int
}

// ScannerOperator is a member of gate staff allowed to run admission scans.
type ScannerOperator struct {
	Username     string
	PasswordHash string
	Active       bool
}

type Enquiry struct {
	ID          uuid.UUID
	EventID     uuid.UUID
	RateClassID uuid.UUID
	Buyer       Buyer
	UnitCount   int
	TotalAmount decimal.Decimal
	CreatedAt   time.Time
}

type OutboxRecord struct {
	ID            uuid.UUID
	AggregateType string
	AggregateID   uuid.UUID
	EventType     string
	Payload       []byte
	CreatedAt     time.Time
	PublishedAt   *time.Time
	Status        string // NEW, PUBLISHED
	DedupeKey     string
}
