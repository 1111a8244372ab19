// Package issuance takes a purchase from gateway order to issued ticket
// units. Units exist only for intents whose payment has been confirmed:
// they are created in the same transaction that records the settlement.
package issuance

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/robertarktes/ticket-issuance-and-admission/internal/artifact"
	"github.com/robertarktes/ticket-issuance-and-admission/internal/domain"
	"github.com/robertarktes/ticket-issuance-and-admission/internal/gateway"
	"github.com/robertarktes/ticket-issuance-and-admission/internal/ledger"
	"github.com/robertarktes/ticket-issuance-and-admission/internal/notify"
	"github.com/robertarktes/ticket-issuance-and-admission/internal/observability"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
)

type Catalog interface {
	Event(ctx context.Context, id uuid.UUID) (*domain.Event, error)
	RateClass(ctx context.Context, eventID, classID uuid.UUID) (*domain.RateClass, error)
}

type Encoder interface {
	Encode(intentID uuid.UUID, unitID int64, issuedAt time.Time) (string, error)
}

type Auditor interface {
	LogIssued(ctx context.Context, intent domain.PurchaseIntent, unitIDs []int64) error
}

type Service struct {
	ledger     ledger.Ledger
	catalog    Catalog
	fresh      Catalog
	gateway    gateway.Gateway
	codec      Encoder
	renderer   artifact.Renderer
	dispatcher notify.Dispatcher
	auditor    Auditor
	currency   string
	logger     observability.Logger
	now        func() time.Time
}

type Deps struct {
	Ledger  ledger.Ledger
	Catalog Catalog
	// Fresh is read when a quote is re-checked at confirmation and must not
	// sit behind a cache. Defaults to Catalog.
	Fresh      Catalog
	Gateway    gateway.Gateway
	Codec      Encoder
	Renderer   artifact.Renderer
	Dispatcher notify.Dispatcher
	// Auditor may be nil.
	Auditor  Auditor
	Currency string
	Logger   observability.Logger
}

func NewService(d Deps) *Service {
	currency := d.Currency
	if currency == "" {
		currency = "INR"
	}
	fresh := d.Fresh
	if fresh == nil {
		fresh = d.Catalog
	}
	return &Service{
		ledger:     d.Ledger,
		catalog:    d.Catalog,
		fresh:      fresh,
		gateway:    d.Gateway,
		codec:      d.Codec,
		renderer:   d.Renderer,
		dispatcher: d.Dispatcher,
		auditor:    d.Auditor,
		currency:   currency,
		logger:     d.Logger,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

type PurchaseRequest struct {
	EventID     uuid.UUID
	RateClassID uuid.UUID
	Buyer       domain.Buyer
	UnitCount   int
}

type PurchaseResult struct {
	OrderID     string
	IntentID    uuid.UUID
	TotalAmount decimal.Decimal
	Currency    string
}

type Quote struct {
	EnquiryID   uuid.UUID
	RateClass   domain.RateClass
	UnitCount   int
	TotalAmount decimal.Decimal
	Currency    string
}

// quote validates the request against the rate class and prices it. It never
// touches the gateway.
func (s *Service) quote(ctx context.Context, eventID, classID uuid.UUID, buyer domain.Buyer, count int) (*domain.RateClass, decimal.Decimal, error) {
	if eventID == uuid.Nil {
		return nil, decimal.Zero, domain.Validationf("event id is required")
	}
	if count <= 0 {
		return nil, decimal.Zero, domain.Validationf("unit count must be positive, got %d", count)
	}
	if strings.TrimSpace(buyer.MobileNo) == "" {
		return nil, decimal.Zero, domain.Validationf("buyer mobile number is required")
	}
	rc, err := s.catalog.RateClass(ctx, eventID, classID)
	if err != nil {
		return nil, decimal.Zero, err
	}
	if count < rc.MinimumQty {
		return nil, decimal.Zero, domain.Validationf("%s tickets require at least %d units, got %d", rc.TicketType, rc.MinimumQty, count)
	}
	return rc, domain.LineTotal(rc.UnitPrice, count), nil
}

// CreatePurchaseIntent prices the request, opens a gateway order for the
// total and records the intent with no settlement reference.
func (s *Service) CreatePurchaseIntent(ctx context.Context, req PurchaseRequest) (PurchaseResult, error) {
	ctx, span := observability.Tracer("issuance").Start(ctx, "CreatePurchaseIntent")
	defer span.End()

	rc, total, err := s.quote(ctx, req.EventID, req.RateClassID, req.Buyer, req.UnitCount)
	if err != nil {
		return PurchaseResult{}, err
	}
	minor, err := domain.MinorUnits(total)
	if err != nil {
		return PurchaseResult{}, err
	}

	intent := domain.PurchaseIntent{
		ID:          uuid.New(),
		EventID:     req.EventID,
		RateClassID: rc.ID,
		Buyer:       req.Buyer,
		UnitCount:   req.UnitCount,
		TotalAmount: total,
		Currency:    s.currency,
		Status:      domain.IntentDraft,
		CreatedAt:   s.now(),
	}
	span.SetAttributes(attribute.String("intent_id", intent.ID.String()))

	order, err := s.gateway.CreateOrder(ctx, minor, s.currency, "TICKET_"+strings.TrimSpace(req.Buyer.MobileNo))
	if err != nil {
		return PurchaseResult{}, err
	}
	intent.GatewayOrderID = order.ID
	if err := intent.Advance(domain.IntentOrderCreated); err != nil {
		return PurchaseResult{}, err
	}

	err = s.ledger.WithTx(ctx, func(ctx context.Context, tx ledger.Tx) error {
		return tx.CreateIntent(ctx, intent)
	})
	if err != nil {
		return PurchaseResult{}, domain.Unavailable(err, "persist purchase intent")
	}
	observability.IntentsCreated.Inc()
	s.logger.WithFields(map[string]interface{}{
		"intent_id": intent.ID,
		"order_id":  order.ID,
		"units":     intent.UnitCount,
		"total":     total.String(),
	}).Info("purchase intent created")

	return PurchaseResult{OrderID: order.ID, IntentID: intent.ID, TotalAmount: total, Currency: s.currency}, nil
}

type ConfirmRequest struct {
	IntentID     uuid.UUID
	PaymentToken string
	Signature    string
}

type ConfirmStatus string

const (
	ConfirmIssued           ConfirmStatus = "ISSUED"
	ConfirmAlreadyProcessed ConfirmStatus = "ALREADY_PROCESSED"
)

type ConfirmResult struct {
	Status  ConfirmStatus
	Message string
	UnitIDs []int64
}

func alreadyProcessed() ConfirmResult {
	observability.ConfirmationsTotal.WithLabelValues("already_processed").Inc()
	return ConfirmResult{Status: ConfirmAlreadyProcessed, Message: "Payment already processed"}
}

// ConfirmPayment settles the intent and mints its units in one transaction.
// A repeated confirmation reports ALREADY_PROCESSED and writes nothing.
func (s *Service) ConfirmPayment(ctx context.Context, req ConfirmRequest) (ConfirmResult, error) {
	ctx, span := observability.Tracer("issuance").Start(ctx, "ConfirmPayment")
	defer span.End()
	span.SetAttributes(attribute.String("intent_id", req.IntentID.String()))

	if strings.TrimSpace(req.PaymentToken) == "" {
		return ConfirmResult{}, domain.Validationf("payment token is required")
	}
	intent, err := s.ledger.GetIntent(ctx, req.IntentID)
	if err != nil {
		return ConfirmResult{}, storageErr(err, "load purchase intent")
	}
	if intent.Settled() {
		return alreadyProcessed(), nil
	}

	if err := s.revalidate(ctx, intent); err != nil {
		observability.ConfirmationsTotal.WithLabelValues("rejected").Inc()
		return ConfirmResult{}, err
	}
	minor, err := domain.MinorUnits(intent.TotalAmount)
	if err != nil {
		return ConfirmResult{}, err
	}
	payment := gateway.Payment{OrderID: intent.GatewayOrderID, PaymentID: req.PaymentToken, Signature: req.Signature}
	if err := s.gateway.VerifyPayment(ctx, payment, minor); err != nil {
		observability.ConfirmationsTotal.WithLabelValues("rejected").Inc()
		return ConfirmResult{}, err
	}

	settledAt := s.now()
	var (
		units     []domain.TicketUnit
		duplicate bool
		issued    domain.PurchaseIntent
	)
	err = s.ledger.WithTx(ctx, func(ctx context.Context, tx ledger.Tx) error {
		units, duplicate = nil, false
		locked, err := tx.GetIntentForUpdate(ctx, req.IntentID)
		if err != nil {
			return err
		}
		ok, err := tx.SetSettlement(ctx, locked.ID, req.PaymentToken, settledAt)
		if err != nil {
			return err
		}
		if !ok {
			duplicate = true
			return nil
		}
		if err := locked.Advance(domain.IntentSettled); err != nil {
			return err
		}
		locked.SettlementRef = req.PaymentToken
		locked.SettledAt = &settledAt

		ids, err := tx.CreateUnits(ctx, locked.ID, locked.UnitCount)
		if err != nil {
			return err
		}
		if len(ids) != locked.UnitCount {
			return errors.Newf("created %d units, want %d", len(ids), locked.UnitCount)
		}
		for i, id := range ids {
			payload, err := s.codec.Encode(locked.ID, id, settledAt)
			if err != nil {
				return errors.Wrapf(err, "encode unit %d", id)
			}
			if err := tx.SetCredential(ctx, id, payload); err != nil {
				return err
			}
			units = append(units, domain.TicketUnit{ID: id, IntentID: locked.ID, Seq: i + 1, Credential: payload})
		}

		if err := locked.Advance(domain.IntentIssued); err != nil {
			return err
		}
		if err := tx.MarkIssued(ctx, locked.ID); err != nil {
			return err
		}
		issued = *locked
		return tx.InsertOutbox(ctx, issuedRecord(*locked, ids, settledAt))
	})
	if err != nil {
		observability.ConfirmationsTotal.WithLabelValues("failed").Inc()
		s.logger.WithError(err).WithField("intent_id", req.IntentID).Error("ticket issuance rolled back")
		if errors.Is(err, domain.ErrNotFound) {
			return ConfirmResult{}, err
		}
		return ConfirmResult{}, domain.IssuanceFailed(err)
	}
	if duplicate {
		return alreadyProcessed(), nil
	}

	observability.ConfirmationsTotal.WithLabelValues("issued").Inc()
	observability.UnitsIssued.Add(float64(len(units)))
	s.logger.WithFields(map[string]interface{}{
		"intent_id": issued.ID,
		"units":     len(units),
	}).Info("ticket units issued")

	s.afterIssue(ctx, issued, units)

	ids := make([]int64, len(units))
	for i, u := range units {
		ids[i] = u.ID
	}
	return ConfirmResult{Status: ConfirmIssued, Message: "Payment confirmed, tickets issued", UnitIDs: ids}, nil
}

// revalidate rejects a confirmation whose quote no longer matches the
// current rate class, read from the uncached catalog.
func (s *Service) revalidate(ctx context.Context, intent *domain.PurchaseIntent) error {
	rc, err := s.fresh.RateClass(ctx, intent.EventID, intent.RateClassID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return domain.Validationf("rate class for intent %s is no longer offered", intent.ID)
		}
		return err
	}
	if intent.UnitCount < rc.MinimumQty {
		return domain.Validationf("%s tickets now require at least %d units, intent has %d", rc.TicketType, rc.MinimumQty, intent.UnitCount)
	}
	if current := domain.LineTotal(rc.UnitPrice, intent.UnitCount); !current.Equal(intent.TotalAmount) {
		return domain.Validationf("quoted total %s no longer matches current price %s", intent.TotalAmount, current)
	}
	return nil
}

// afterIssue runs once the units are committed. Nothing here can fail the
// confirmation.
func (s *Service) afterIssue(ctx context.Context, intent domain.PurchaseIntent, units []domain.TicketUnit) {
	log := s.logger.WithField("intent_id", intent.ID)

	ev, err := s.catalog.Event(ctx, intent.EventID)
	if err != nil {
		log.WithError(err).Warn("event details unavailable for ticket artifacts")
		ev = &domain.Event{ID: intent.EventID}
	}
	ticketType := ""
	for _, rc := range ev.RateClasses {
		if rc.ID == intent.RateClassID {
			ticketType = rc.TicketType
		}
	}

	delivery := notify.Delivery{IntentID: intent.ID, EventName: ev.Name, Buyer: intent.Buyer}
	for _, u := range units {
		path, err := s.renderer.RenderTicket(ctx, artifact.UnitContext{
			IntentID:    intent.ID,
			UnitID:      u.ID,
			Seq:         u.Seq,
			Total:       len(units),
			EventName:   ev.Name,
			Venue:       ev.Venue,
			EventDate:   ev.Date,
			TicketType:  ticketType,
			BuyerName:   intent.Buyer.Name,
			Credential:  u.Credential,
			BannerPaths: ev.BannerPaths,
		})
		if err != nil {
			observability.ArtifactFailures.Inc()
			log.WithError(err).WithField("unit_id", u.ID).Error("ticket artifact render failed")
		}
		delivery.Units = append(delivery.Units, notify.UnitArtifact{UnitID: u.ID, Seq: u.Seq, Path: path})
	}

	if s.auditor != nil {
		ids := make([]int64, len(units))
		for i, u := range units {
			ids[i] = u.ID
		}
		if err := s.auditor.LogIssued(ctx, intent, ids); err != nil {
			log.WithError(err).Warn("audit log write failed")
		}
	}

	s.dispatcher.Dispatch(context.WithoutCancel(ctx), delivery)
}

func issuedRecord(intent domain.PurchaseIntent, unitIDs []int64, at time.Time) domain.OutboxRecord {
	payload, _ := json.Marshal(map[string]interface{}{
		"intent_id":     intent.ID,
		"event_id":      intent.EventID,
		"rate_class_id": intent.RateClassID,
		"unit_ids":      unitIDs,
		"total_amount":  intent.TotalAmount.String(),
		"currency":      intent.Currency,
	})
	return domain.OutboxRecord{
		ID:            uuid.New(),
		AggregateType: "purchase_intent",
		AggregateID:   intent.ID,
		EventType:     "tickets.issued",
		Payload:       payload,
		CreatedAt:     at,
		Status:        "NEW",
		DedupeKey:     fmt.Sprintf("tickets.issued:%s", intent.ID),
	}
}

// storageErr keeps NotFound as is and marks anything else as unavailable.
func storageErr(err error, msg string) error {
	if errors.Is(err, domain.ErrNotFound) {
		return err
	}
	return domain.Unavailable(err, msg)
}
