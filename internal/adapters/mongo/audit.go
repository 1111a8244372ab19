package mongo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/robertarktes/ticket-issuance-and-admission/internal/domain"
	"github.com/robertarktes/ticket-issuance-and-admission/internal/observability"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
)

type AuditLogger struct {
	coll   *mongo.Collection
	logger observability.Logger
}

func NewAuditLogger(db *mongo.Database, logger observability.Logger) *AuditLogger {
	return &AuditLogger{
		coll:   db.Collection("audit_logs"),
		logger: logger,
	}
}

type AuditLog struct {
	ID        string    `bson:"_id"`
	Action    string    `bson:"action"`
	IntentID  string    `bson:"intent_id"`
	Timestamp time.Time `bson:"timestamp"`
	Data      bson.M    `bson:"data"`
}

func (a *AuditLogger) LogEvent(ctx context.Context, action string, intentID uuid.UUID, data map[string]interface{}) error {
	log := AuditLog{
		ID:        uuid.NewString(),
		Action:    action,
		IntentID:  intentID.String(),
		Timestamp: time.Now().UTC(),
		Data:      bson.M(data),
	}
	_, err := a.coll.InsertOne(ctx, log)
	if err != nil {
		a.logger.WithError(err).Error("failed to insert audit log")
		return err
	}
	return nil
}

func (a *AuditLogger) LogIssued(ctx context.Context, intent domain.PurchaseIntent, unitIDs []int64) error {
	data := map[string]interface{}{
		"event_id":         intent.EventID.String(),
		"rate_class_id":    intent.RateClassID.String(),
		"unit_ids":         unitIDs,
		"total":            intent.TotalAmount.String(),
		"currency":         intent.Currency,
		"gateway_order_id": intent.GatewayOrderID,
	}
	return a.LogEvent(ctx, "tickets.issued", intent.ID, data)
}

func (a *AuditLogger) LogAdmission(ctx context.Context, intentID uuid.UUID, unitID int64, status domain.AdmissionStatus) error {
	data := map[string]interface{}{
		"unit_id": unitID,
		"status":  string(status),
	}
	return a.LogEvent(ctx, "ticket.scanned", intentID, data)
}
