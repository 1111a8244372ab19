package issuance

import (
	"context"

	"github.com/google/uuid"
	"github.com/robertarktes/ticket-issuance-and-admission/internal/domain"
	"github.com/robertarktes/ticket-issuance-and-admission/internal/ledger"
)

type IntentView struct {
	Intent domain.PurchaseIntent
	Units  []domain.TicketUnit
}

func (s *Service) GetIntent(ctx context.Context, id uuid.UUID) (IntentView, error) {
	intent, err := s.ledger.GetIntent(ctx, id)
	if err != nil {
		return IntentView{}, storageErr(err, "load purchase intent")
	}
	units, err := s.ledger.ListUnits(ctx, id)
	if err != nil {
		return IntentView{}, storageErr(err, "list ticket units")
	}
	return IntentView{Intent: *intent, Units: units}, nil
}

type EnquiryRequest struct {
	EventID     uuid.UUID
	RateClassID uuid.UUID
	Buyer       domain.Buyer
	UnitCount   int
}

// SaveEnquiry records a priced quote. No gateway order is created.
func (s *Service) SaveEnquiry(ctx context.Context, req EnquiryRequest) (Quote, error) {
	rc, total, err := s.quote(ctx, req.EventID, req.RateClassID, req.Buyer, req.UnitCount)
	if err != nil {
		return Quote{}, err
	}
	if _, err := domain.MinorUnits(total); err != nil {
		return Quote{}, err
	}
	enquiry := domain.Enquiry{
		ID:          uuid.New(),
		EventID:     req.EventID,
		RateClassID: rc.ID,
		Buyer:       req.Buyer,
		UnitCount:   req.UnitCount,
		TotalAmount: total,
		CreatedAt:   s.now(),
	}
	err = s.ledger.WithTx(ctx, func(ctx context.Context, tx ledger.Tx) error {
		return tx.InsertEnquiry(ctx, enquiry)
	})
	if err != nil {
		return Quote{}, domain.Unavailable(err, "persist enquiry")
	}
	return Quote{EnquiryID: enquiry.ID, RateClass: *rc, UnitCount: req.UnitCount, TotalAmount: total, Currency: s.currency}, nil
}
