// Package gateway talks to the payment provider: it creates orders for an
// amount and verifies client-reported payments before tickets are minted.
package gateway

import (
	"context"
)

type Order struct {
	ID       string
	Amount   int64
	Currency string
	Receipt  string
}

// Payment is what the client reports after checkout.
type Payment struct {
	OrderID   string
	PaymentID string
	Signature string
}

type Orders interface {
	CreateOrder(ctx context.Context, amountMinor int64, currency, receipt string) (Order, error)
}

// Verifier confirms with the provider that PaymentID paid OrderID in full.
type Verifier interface {
	VerifyPayment(ctx context.Context, p Payment, amountMinor int64) error
}

type Gateway interface {
	Orders
	Verifier
}
