package notify

import (
	"context"
	"sync"

	"github.com/robertarktes/ticket-issuance-and-admission/internal/observability"
	"golang.org/x/sync/errgroup"
)

// Pool sends deliveries from a bounded queue with a fixed number of workers.
type Pool struct {
	email     EmailSender
	messages  MessageSender
	workers   int
	sendLimit int
	logger    observability.Logger

	mu     sync.Mutex
	closed bool
	queue  chan Delivery
	wg     sync.WaitGroup
}

var _ Dispatcher = (*Pool)(nil)

func NewPool(email EmailSender, messages MessageSender, workers, queueSize int, logger observability.Logger) *Pool {
	if workers < 1 {
		workers = 1
	}
	return &Pool{
		email:     email,
		messages:  messages,
		workers:   workers,
		sendLimit: 4,
		logger:    logger,
		queue:     make(chan Delivery, queueSize),
	}
}

func (p *Pool) Start(ctx context.Context) {
	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go func() {
			defer p.wg.Done()
			for d := range p.queue {
				p.Deliver(ctx, d)
			}
		}()
	}
}

// Dispatch never blocks. A full queue drops the delivery.
func (p *Pool) Dispatch(ctx context.Context, d Delivery) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		p.logger.WithField("intent_id", d.IntentID).Warn("notification pool closed, delivery dropped")
		return
	}
	select {
	case p.queue <- d:
	default:
		observability.NotificationsTotal.WithLabelValues("queue", "dropped").Inc()
		p.logger.WithField("intent_id", d.IntentID).Warn("notification queue full, delivery dropped")
	}
}

// Deliver sends one email with every ticket attached and one message per
// unit. Each send is independent and failures are only logged.
func (p *Pool) Deliver(ctx context.Context, d Delivery) {
	log := p.logger.WithField("intent_id", d.IntentID)
	var g errgroup.Group
	g.SetLimit(p.sendLimit)

	if p.email != nil && d.Buyer.Email != "" {
		g.Go(func() error {
			p.record(log, "email", p.email.SendTickets(ctx, d))
			return nil
		})
	}
	if p.messages != nil && d.Buyer.MobileNo != "" {
		for _, u := range d.Units {
			u := u
			g.Go(func() error {
				p.record(log.WithField("unit_id", u.UnitID), "whatsapp", p.messages.SendTicket(ctx, d, u))
				return nil
			})
		}
	}
	_ = g.Wait()
}

func (p *Pool) record(log observability.Logger, channel string, err error) {
	if err != nil {
		observability.NotificationsTotal.WithLabelValues(channel, "failed").Inc()
		log.WithError(err).WithField("channel", channel).Error("notification send failed")
		return
	}
	observability.NotificationsTotal.WithLabelValues(channel, "sent").Inc()
}

// Close stops accepting deliveries and waits for queued ones to finish.
func (p *Pool) Close() {
	p.mu.Lock()
	if !p.closed {
		p.closed = true
		close(p.queue)
	}
	p.mu.Unlock()
	p.wg.Wait()
}
