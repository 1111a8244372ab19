package http

import (
	"context"
	"encoding/json"
	"net/http"
	"sort"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/robertarktes/ticket-issuance-and-admission/internal/admission"
	"github.com/robertarktes/ticket-issuance-and-admission/internal/domain"
	"github.com/robertarktes/ticket-issuance-and-admission/internal/issuance"
	"github.com/robertarktes/ticket-issuance-and-admission/internal/observability"
)

type Issuer interface {
	CreatePurchaseIntent(ctx context.Context, req issuance.PurchaseRequest) (issuance.PurchaseResult, error)
	ConfirmPayment(ctx context.Context, req issuance.ConfirmRequest) (issuance.ConfirmResult, error)
	GetIntent(ctx context.Context, id uuid.UUID) (issuance.IntentView, error)
	SaveEnquiry(ctx context.Context, req issuance.EnquiryRequest) (issuance.Quote, error)
}

type Admitter interface {
	Validate(ctx context.Context, payload string) (admission.Result, error)
}

type EventCatalog interface {
	ListEvents(ctx context.Context, from time.Time) ([]domain.Event, error)
	Event(ctx context.Context, id uuid.UUID) (*domain.Event, error)
}

type Pinger interface {
	Ping(ctx context.Context) error
}

type Handlers struct {
	issuer   Issuer
	admitter Admitter
	catalog  EventCatalog
	ready    map[string]Pinger
	logger   observability.Logger
}

// NewHandlers takes the dependencies Readyz must reach, keyed by the name
// reported when one of them is down.
func NewHandlers(issuer Issuer, admitter Admitter, catalog EventCatalog, ready map[string]Pinger, logger observability.Logger) *Handlers {
	return &Handlers{
		issuer:   issuer,
		admitter: admitter,
		catalog:  catalog,
		ready:    ready,
		logger:   logger,
	}
}

type buyerJSON struct {
	Name     string `json:"name"`
	MobileNo string `json:"mobile_no"`
	Email    string `json:"email"`
}

func (b buyerJSON) domain() domain.Buyer {
	return domain.Buyer{Name: b.Name, MobileNo: b.MobileNo, Email: b.Email}
}

type purchaseJSON struct {
	EventID     uuid.UUID `json:"event_id"`
	RateClassID uuid.UUID `json:"rate_class_id"`
	Buyer       buyerJSON `json:"buyer"`
	UnitCount   int       `json:"unit_count"`
}

func (h *Handlers) CreateIntent(w http.ResponseWriter, r *http.Request) {
	var req purchaseJSON
	if !h.decode(w, r, &req) {
		return
	}
	res, err := h.issuer.CreatePurchaseIntent(r.Context(), issuance.PurchaseRequest{
		EventID:     req.EventID,
		RateClassID: req.RateClassID,
		Buyer:       req.Buyer.domain(),
		UnitCount:   req.UnitCount,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"order_id":     res.OrderID,
		"intent_id":    res.IntentID,
		"total_amount": res.TotalAmount.StringFixed(2),
		"currency":     res.Currency,
	})
}

func (h *Handlers) ConfirmIntent(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathUUID(w, r)
	if !ok {
		return
	}
	var req struct {
		PaymentToken string `json:"payment_token"`
		Signature    string `json:"signature"`
	}
	if !h.decode(w, r, &req) {
		return
	}
	res, err := h.issuer.ConfirmPayment(r.Context(), issuance.ConfirmRequest{
		IntentID:     id,
		PaymentToken: req.PaymentToken,
		Signature:    req.Signature,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	body := map[string]interface{}{
		"status":  res.Status,
		"message": res.Message,
	}
	if len(res.UnitIDs) > 0 {
		body["unit_ids"] = res.UnitIDs
	}
	writeJSON(w, http.StatusOK, body)
}

type unitJSON struct {
	UnitID    int64      `json:"unit_id"`
	Seq       int        `json:"seq"`
	Entered   bool       `json:"entered"`
	EnteredAt *time.Time `json:"entered_at,omitempty"`
}

func (h *Handlers) GetIntent(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathUUID(w, r)
	if !ok {
		return
	}
	view, err := h.issuer.GetIntent(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	units := make([]unitJSON, 0, len(view.Units))
	for _, u := range view.Units {
		units = append(units, unitJSON{UnitID: u.ID, Seq: u.Seq, Entered: u.Entered, EnteredAt: u.EnteredAt})
	}
	in := view.Intent
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"intent_id":        in.ID,
		"event_id":         in.EventID,
		"rate_class_id":    in.RateClassID,
		"status":           in.Status,
		"unit_count":       in.UnitCount,
		"total_amount":     in.TotalAmount.StringFixed(2),
		"currency":         in.Currency,
		"gateway_order_id": in.GatewayOrderID,
		"settled":          in.Settled(),
		"created_at":       in.CreatedAt,
		"units":            units,
	})
}

func (h *Handlers) CreateEnquiry(w http.ResponseWriter, r *http.Request) {
	var req purchaseJSON
	if !h.decode(w, r, &req) {
		return
	}
	q, err := h.issuer.SaveEnquiry(r.Context(), issuance.EnquiryRequest{
		EventID:     req.EventID,
		RateClassID: req.RateClassID,
		Buyer:       req.Buyer.domain(),
		UnitCount:   req.UnitCount,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"enquiry_id":   q.EnquiryID,
		"ticket_type":  q.RateClass.TicketType,
		"unit_price":   q.RateClass.UnitPrice.StringFixed(2),
		"unit_count":   q.UnitCount,
		"total_amount": q.TotalAmount.StringFixed(2),
		"currency":     q.Currency,
	})
}

// Admit always answers 200 for a scan outcome. Only infrastructure failures
// produce an error status.
func (h *Handlers) Admit(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Payload string `json:"payload"`
	}
	if !h.decode(w, r, &req) {
		return
	}
	res, err := h.admitter.Validate(r.Context(), req.Payload)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	observability.LoggerFromContext(r.Context(), h.logger).WithFields(map[string]interface{}{
		"status":  res.Status,
		"unit_id": res.UnitID,
	}).Debug("scan processed")
	body := map[string]interface{}{
		"status":   res.Status,
		"message":  res.Message,
		"operator": operatorFromContext(r.Context()),
	}
	if res.UnitID != 0 {
		body["intent_id"] = res.IntentID
		body["unit_id"] = res.UnitID
	}
	writeJSON(w, http.StatusOK, body)
}

// ScannerLogin opens a scanner session for gate staff.
func (h *Handlers) ScannerLogin(auth ScannerAuth) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Username string `json:"username"`
			Password string `json:"password"`
		}
		if !h.decode(w, r, &req) {
			return
		}
		s, err := auth.Login(r.Context(), req.Username, req.Password)
		if err != nil {
			h.writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"token":      s.Token,
			"username":   s.Username,
			"expires_at": s.ExpiresAt,
		})
	}
}

func (h *Handlers) ListEvents(w http.ResponseWriter, r *http.Request) {
	events, err := h.catalog.ListEvents(r.Context(), time.Now().UTC().Truncate(24*time.Hour))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	out := make([]map[string]interface{}, 0, len(events))
	for _, ev := range events {
		banners := ev.BannerPaths
		if banners == nil {
			banners = []string{}
		}
		out = append(out, map[string]interface{}{
			"id":           ev.ID,
			"name":         ev.Name,
			"venue":        ev.Venue,
			"date":         ev.Date,
			"currency":     ev.Currency,
			"banner_paths": banners,
		})
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handlers) ListRates(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathUUID(w, r)
	if !ok {
		return
	}
	ev, err := h.catalog.Event(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	out := make([]map[string]interface{}, 0, len(ev.RateClasses))
	for _, rc := range ev.RateClasses {
		out = append(out, map[string]interface{}{
			"id":          rc.ID,
			"ticket_type": rc.TicketType,
			"unit_price":  rc.UnitPrice.StringFixed(2),
			"minimum_qty": rc.MinimumQty,
		})
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handlers) Healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}

func (h *Handlers) Readyz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	names := make([]string, 0, len(h.ready))
	for name := range h.ready {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if err := h.ready[name].Ping(ctx); err != nil {
			h.writeError(w, r, domain.Unavailable(err, name))
			return
		}
	}
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("Ready"))
}

func (h *Handlers) decode(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<16)).Decode(dst); err != nil {
		h.writeError(w, r, domain.Validationf("invalid request body: %v", err))
		return false
	}
	return true
}

func (h *Handlers) pathUUID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, r, domain.Validationf("invalid id %q", chi.URLParam(r, "id")))
		return uuid.Nil, false
	}
	return id, true
}
