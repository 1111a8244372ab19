// Package outbox forwards committed outbox rows to the message broker.
package outbox

import (
	"context"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/robertarktes/ticket-issuance-and-admission/internal/adapters/crdb"
	"github.com/robertarktes/ticket-issuance-and-admission/internal/domain"
	"github.com/robertarktes/ticket-issuance-and-admission/internal/observability"
)

type Source interface {
	ClaimOutbox(ctx context.Context, limit int, fn func(ctx context.Context, records []domain.OutboxRecord) []uuid.UUID) error
}

type Sink interface {
	Publish(ctx context.Context, key string, msg amqp.Publishing) error
}

var _ Source = (*crdb.Repository)(nil)

type Publisher struct {
	source    Source
	sink      Sink
	batchSize int
	retries   int
	backoff   time.Duration
	logger    observability.Logger
	now       func() time.Time
}

func NewPublisher(source Source, sink Sink, batchSize int, logger observability.Logger) *Publisher {
	return &Publisher{
		source:    source,
		sink:      sink,
		batchSize: batchSize,
		retries:   3,
		backoff:   200 * time.Millisecond,
		logger:    logger,
		now:       time.Now,
	}
}

func (p *Publisher) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := p.PublishBatch(ctx)
			if err != nil {
				p.logger.WithError(err).Error("outbox batch failed")
				continue
			}
			if n > 0 {
				p.logger.WithField("published", n).Debug("outbox batch published")
			}
		}
	}
}

// PublishBatch publishes one batch and reports how many rows were marked
// published. Rows that fail to publish stay unpublished for the next batch.
func (p *Publisher) PublishBatch(ctx context.Context) (int, error) {
	published := 0
	err := p.source.ClaimOutbox(ctx, p.batchSize, func(ctx context.Context, records []domain.OutboxRecord) []uuid.UUID {
		var ids []uuid.UUID
		for _, rec := range records {
			observability.OutboxLag.Set(p.now().Sub(rec.CreatedAt).Seconds())
			if err := p.publish(ctx, rec); err != nil {
				p.logger.WithError(err).WithField("outbox_id", rec.ID).Warn("outbox publish failed")
				continue
			}
			ids = append(ids, rec.ID)
		}
		published = len(ids)
		return ids
	})
	return published, err
}

func (p *Publisher) publish(ctx context.Context, rec domain.OutboxRecord) error {
	msg := amqp.Publishing{
		MessageId:    rec.DedupeKey,
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    rec.CreatedAt,
		Type:         rec.EventType,
		Body:         rec.Payload,
	}
	var err error
	for attempt := 0; attempt < p.retries; attempt++ {
		if attempt > 0 {
			observability.RabbitPublishRetries.Inc()
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(p.backoff << (attempt - 1)):
			}
		}
		if err = p.sink.Publish(ctx, rec.EventType, msg); err == nil {
			return nil
		}
	}
	return err
}
