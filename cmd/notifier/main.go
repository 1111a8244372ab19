// Command notifier performs ticket deliveries requested over RabbitMQ. It
// must see the same ARTIFACT_DIR as the API.
package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/robertarktes/ticket-issuance-and-admission/internal/adapters/rabbit"
	"github.com/robertarktes/ticket-issuance-and-admission/internal/config"
	"github.com/robertarktes/ticket-issuance-and-admission/internal/notify"
	"github.com/robertarktes/ticket-issuance-and-admission/internal/observability"
)

const queue = "tia.notifications"

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownOtel, err := observability.SetupOTel(ctx, cfg, "tia-notifier")
	if err != nil {
		log.Fatalf("failed to setup otel: %v", err)
	}
	defer shutdownOtel()

	logger := observability.NewLoggerWithLevel(cfg.LogLevel)

	conn, err := amqp.Dial(cfg.RabbitURL)
	if err != nil {
		log.Fatalf("failed to connect to rabbitmq: %v", err)
	}
	defer conn.Close()
	consumer, err := rabbit.NewConsumer(conn, queue, notify.RoutingKey)
	if err != nil {
		log.Fatalf("failed to create consumer: %v", err)
	}
	defer consumer.Close()

	deliveries, err := consumer.Consume(ctx)
	if err != nil {
		log.Fatalf("failed to consume %s: %v", queue, err)
	}

	email, messages := notify.SendersFromConfig(cfg, logger)
	pool := notify.NewPool(email, messages, 1, 0, logger)

	logger.WithField("queue", queue).Info("Notifier started")
	for {
		select {
		case <-ctx.Done():
			logger.Info("Shutdown notifier")
			return
		case msg, ok := <-deliveries:
			if !ok {
				logger.Warn("delivery channel closed")
				return
			}
			handle(ctx, pool, logger, msg)
		}
	}
}

// handle acks every message once it has been attempted. Sends are never
// retried; undecodable messages are dropped.
func handle(ctx context.Context, pool *notify.Pool, logger observability.Logger, msg amqp.Delivery) {
	d, err := notify.DecodeDelivery(msg.Body)
	if err != nil {
		logger.WithError(err).WithField("message_id", msg.MessageId).Error("undecodable delivery dropped")
		msg.Nack(false, false)
		return
	}
	pool.Deliver(ctx, d)
	msg.Ack(false)
}
