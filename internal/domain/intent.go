package domain

import "github.com/cockroachdb/errors"

type IntentStatus string

const (
	IntentDraft        IntentStatus = "DRAFT"
	IntentOrderCreated IntentStatus = "ORDER_CREATED"
	IntentSettled      IntentStatus = "SETTLED"
	IntentIssued       IntentStatus = "ISSUED"
)

var intentTransitions = map[IntentStatus]IntentStatus{
	IntentDraft:        IntentOrderCreated,
	IntentOrderCreated: IntentSettled,
	IntentSettled:      IntentIssued,
}

// ValidIntentTransition allows only the single forward step out of from.
func ValidIntentTransition(from, to IntentStatus) bool {
	next, ok := intentTransitions[from]
	return ok && next == to
}

func (p *PurchaseIntent) Advance(to IntentStatus) error {
	if !ValidIntentTransition(p.Status, to) {
		return errors.Newf("invalid intent transition %s -> %s", p.Status, to)
	}
	p.Status = to
	return nil
}
