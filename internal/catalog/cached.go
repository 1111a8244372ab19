package catalog

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/robertarktes/ticket-issuance-and-admission/internal/domain"
	"github.com/robertarktes/ticket-issuance-and-admission/internal/observability"
)

type jsonCache interface {
	GetJSON(ctx context.Context, key string, dst interface{}) (bool, error)
	SetJSON(ctx context.Context, key string, v interface{}, ttl time.Duration) error
}

// Cached keeps events in Redis for ttl. Cache errors fall through to the
// underlying catalog.
type Cached struct {
	next   Catalog
	cache  jsonCache
	ttl    time.Duration
	logger observability.Logger
}

func NewCached(next Catalog, cache jsonCache, ttl time.Duration, logger observability.Logger) *Cached {
	return &Cached{next: next, cache: cache, ttl: ttl, logger: logger}
}

func (c *Cached) ListEvents(ctx context.Context, from time.Time) ([]domain.Event, error) {
	key := "events:" + from.UTC().Format("2006-01-02")
	var events []domain.Event
	if ok, err := c.cache.GetJSON(ctx, key, &events); err == nil && ok {
		return events, nil
	} else if err != nil {
		c.logger.WithError(err).Warn("catalog cache read failed")
	}

	events, err := c.next.ListEvents(ctx, from)
	if err != nil {
		return nil, err
	}
	c.store(ctx, key, events)
	return events, nil
}

func (c *Cached) Event(ctx context.Context, id uuid.UUID) (*domain.Event, error) {
	key := "event:" + id.String()
	var ev domain.Event
	if ok, err := c.cache.GetJSON(ctx, key, &ev); err == nil && ok {
		return &ev, nil
	} else if err != nil {
		c.logger.WithError(err).Warn("catalog cache read failed")
	}

	got, err := c.next.Event(ctx, id)
	if err != nil {
		return nil, err
	}
	c.store(ctx, key, got)
	return got, nil
}

func (c *Cached) RateClass(ctx context.Context, eventID, classID uuid.UUID) (*domain.RateClass, error) {
	ev, err := c.Event(ctx, eventID)
	if err != nil {
		return nil, err
	}
	for i := range ev.RateClasses {
		if classID == uuid.Nil || ev.RateClasses[i].ID == classID {
			rc := ev.RateClasses[i]
			return &rc, nil
		}
	}
	return nil, domain.NotFoundf("rate class %s not found for event %s", classID, eventID)
}

func (c *Cached) store(ctx context.Context, key string, v interface{}) {
	if err := c.cache.SetJSON(ctx, key, v, c.ttl); err != nil {
		c.logger.WithError(err).Warn("catalog cache write failed")
	}
}
