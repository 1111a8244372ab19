// Package admission decides whether a scanned credential grants entry. A
// unit is admitted at most once, even when scans race across gates.
package admission

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/robertarktes/ticket-issuance-and-admission/internal/credential"
	"github.com/robertarktes/ticket-issuance-and-admission/internal/domain"
	"github.com/robertarktes/ticket-issuance-and-admission/internal/ledger"
	"github.com/robertarktes/ticket-issuance-and-admission/internal/observability"
	"go.opentelemetry.io/otel/attribute"
)

type Decoder interface {
	Decode(payload string) (credential.Claims, error)
}

type Auditor interface {
	LogAdmission(ctx context.Context, intentID uuid.UUID, unitID int64, status domain.AdmissionStatus) error
}

type Result struct {
	Status   domain.AdmissionStatus
	Message  string
	IntentID uuid.UUID
	UnitID   int64
}

type Validator struct {
	ledger  ledger.Ledger
	codec   Decoder
	auditor Auditor
	logger  observability.Logger
	now     func() time.Time
}

// NewValidator builds a Validator. auditor may be nil.
func NewValidator(l ledger.Ledger, codec Decoder, auditor Auditor, logger observability.Logger) *Validator {
	return &Validator{
		ledger:  l,
		codec:   codec,
		auditor: auditor,
		logger:  logger,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

func outcome(status domain.AdmissionStatus) Result {
	return Result{Status: status, Message: status.Message()}
}

// Validate returns a scan outcome for every well-defined case. An error is
// returned only when storage could not be reached, never for a bad ticket.
func (v *Validator) Validate(ctx context.Context, payload string) (Result, error) {
	ctx, span := observability.Tracer("admission").Start(ctx, "Validate")
	defer span.End()

	res, err := v.validate(ctx, payload)
	if err != nil {
		v.logger.WithError(err).Error("admission check failed")
		return Result{}, domain.Unavailable(err, "admission ledger")
	}
	span.SetAttributes(attribute.String("status", string(res.Status)))
	observability.AdmissionsTotal.WithLabelValues(string(res.Status)).Inc()

	if res.UnitID != 0 && v.auditor != nil {
		if err := v.auditor.LogAdmission(ctx, res.IntentID, res.UnitID, res.Status); err != nil {
			v.logger.WithError(err).Warn("audit log write failed")
		}
	}
	return res, nil
}

func (v *Validator) validate(ctx context.Context, payload string) (Result, error) {
	payload = strings.TrimSpace(payload)
	if payload == "" {
		return outcome(domain.AdmissionEmptyInput), nil
	}

	claims, err := v.codec.Decode(payload)
	if err != nil {
		if errors.Is(err, domain.ErrMalformedCredential) {
			return outcome(domain.AdmissionInvalidCredential), nil
		}
		return Result{}, err
	}

	var res Result
	err = v.ledger.WithTx(ctx, func(ctx context.Context, tx ledger.Tx) error {
		unit, err := tx.GetUnitForUpdate(ctx, claims.UnitID)
		if err != nil {
			return err
		}
		switch {
		case unit == nil:
			res = outcome(domain.AdmissionUnknownTicket)
			return nil
		case unit.IntentID != claims.IntentID:
			res = outcome(domain.AdmissionInvalidCredential)
			return nil
		case unit.Entered:
			res = outcome(domain.AdmissionAlreadyAdmitted)
		default:
			at := v.now()
			ok, err := tx.SetAdmitted(ctx, unit.ID, at)
			if err != nil {
				return err
			}
			if !ok {
				res = outcome(domain.AdmissionAlreadyAdmitted)
			} else {
				res = outcome(domain.AdmissionAdmitted)
				if err := tx.InsertOutbox(ctx, admittedRecord(*unit, at)); err != nil {
					return err
				}
			}
		}
		res.IntentID = unit.IntentID
		res.UnitID = unit.ID
		return nil
	})
	if err != nil {
		return Result{}, err
	}

	if res.Status == domain.AdmissionAdmitted {
		v.logger.WithFields(map[string]interface{}{
			"intent_id": res.IntentID,
			"unit_id":   res.UnitID,
		}).Info("ticket admitted")
	}
	return res, nil
}

func admittedRecord(unit domain.TicketUnit, at time.Time) domain.OutboxRecord {
	payload, _ := json.Marshal(map[string]interface{}{
		"intent_id":   unit.IntentID,
		"unit_id":     unit.ID,
		"admitted_at": at,
	})
	return domain.OutboxRecord{
		ID:            uuid.New(),
		AggregateType: "ticket_unit",
		AggregateID:   unit.IntentID,
		EventType:     "ticket.admitted",
		Payload:       payload,
		CreatedAt:     at,
		Status:        "NEW",
		DedupeKey:     fmt.Sprintf("ticket.admitted:%d", unit.ID),
	}
}
