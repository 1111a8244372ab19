package gateway

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/robertarktes/ticket-issuance-and-admission/internal/domain"
)

// Fake accepts every payment whose token starts with "pay_". It backs the
// development profile and tests.
type Fake struct {
	mu     sync.Mutex
	Orders []Order
	Err    error
}

var _ Gateway = (*Fake)(nil)

func (f *Fake) CreateOrder(ctx context.Context, amountMinor int64, currency, receipt string) (Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Err != nil {
		return Order{}, f.Err
	}
	o := Order{ID: "order_" + uuid.NewString()[:14], Amount: amountMinor, Currency: currency, Receipt: receipt}
	f.Orders = append(f.Orders, o)
	return o, nil
}

func (f *Fake) VerifyPayment(ctx context.Context, p Payment, amountMinor int64) error {
	if len(p.PaymentID) < 5 || p.PaymentID[:4] != "pay_" {
		return domain.Validationf("payment token %q is not a confirmed payment", p.PaymentID)
	}
	return nil
}

func (f *Fake) OrderCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.Orders)
}
