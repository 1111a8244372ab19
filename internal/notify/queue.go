package notify

import (
	"context"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/robertarktes/ticket-issuance-and-admission/internal/observability"
)

const RoutingKey = "notification.requested"

type publisher interface {
	Publish(ctx context.Context, key string, msg amqp.Publishing) error
}

// QueueDispatcher hands deliveries to the notifier process over RabbitMQ.
type QueueDispatcher struct {
	pub    publisher
	logger observability.Logger
}

var _ Dispatcher = (*QueueDispatcher)(nil)

func NewQueueDispatcher(pub publisher, logger observability.Logger) *QueueDispatcher {
	return &QueueDispatcher{pub: pub, logger: logger}
}

func (q *QueueDispatcher) Dispatch(ctx context.Context, d Delivery) {
	log := q.logger.WithField("intent_id", d.IntentID)
	body, err := EncodeDelivery(d)
	if err != nil {
		log.WithError(err).Error("encode delivery")
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	err = q.pub.Publish(ctx, RoutingKey, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    uuid.NewString(),
		Timestamp:    time.Now(),
		Body:         body,
	})
	if err != nil {
		observability.NotificationsTotal.WithLabelValues("queue", "failed").Inc()
		log.WithError(err).Error("publish delivery")
	}
}
