// Package notify delivers issued tickets to buyers. Delivery happens outside
// the issuance transaction and its failures never reach the caller.
package notify

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"
	"github.com/robertarktes/ticket-issuance-and-admission/internal/domain"
)

type UnitArtifact struct {
	UnitID int64  `json:"unit_id"`
	Seq    int    `json:"seq"`
	Path   string `json:"path"`
}

type Delivery struct {
	IntentID  uuid.UUID      `json:"intent_id"`
	EventName string         `json:"event_name"`
	Buyer     domain.Buyer   `json:"buyer"`
	Units     []UnitArtifact `json:"units"`
}

// Dispatcher accepts a delivery for asynchronous sending.
type Dispatcher interface {
	Dispatch(ctx context.Context, d Delivery)
}

type EmailSender interface {
	SendTickets(ctx context.Context, d Delivery) error
}

type MessageSender interface {
	SendTicket(ctx context.Context, d Delivery, unit UnitArtifact) error
}

func EncodeDelivery(d Delivery) ([]byte, error) {
	return json.Marshal(d)
}

func DecodeDelivery(data []byte) (Delivery, error) {
	var d Delivery
	err := json.Unmarshal(data, &d)
	return d, err
}
