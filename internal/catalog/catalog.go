// Package catalog is the read-only view of events and their rate classes.
package catalog

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robertarktes/ticket-issuance-and-admission/internal/adapters/mongo"
	"github.com/robertarktes/ticket-issuance-and-admission/internal/domain"
)

type Catalog interface {
	ListEvents(ctx context.Context, from time.Time) ([]domain.Event, error)
	Event(ctx context.Context, id uuid.UUID) (*domain.Event, error)
	// RateClass returns domain.ErrNotFound when either the event or the class
	// is unknown. uuid.Nil selects the event's first class.
	RateClass(ctx context.Context, eventID, classID uuid.UUID) (*domain.RateClass, error)
}

var _ Catalog = (*mongo.CatalogRepository)(nil)

// Static serves a fixed set of events from memory.
type Static struct {
	mu     sync.RWMutex
	events map[uuid.UUID]domain.Event
}

func NewStatic(events ...domain.Event) *Static {
	s := &Static{events: make(map[uuid.UUID]domain.Event)}
	for _, ev := range events {
		s.Put(ev)
	}
	return s
}

func (s *Static) Put(ev domain.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range ev.RateClasses {
		ev.RateClasses[i].EventID = ev.ID
	}
	s.events[ev.ID] = ev
}

func (s *Static) ListEvents(ctx context.Context, from time.Time) ([]domain.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.Event
	for _, ev := range s.events {
		if !ev.Date.Before(from) {
			out = append(out, ev)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out, nil
}

func (s *Static) Event(ctx context.Context, id uuid.UUID) (*domain.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ev, ok := s.events[id]
	if !ok {
		return nil, domain.NotFoundf("event %s not found", id)
	}
	return &ev, nil
}

func (s *Static) RateClass(ctx context.Context, eventID, classID uuid.UUID) (*domain.RateClass, error) {
	ev, err := s.Event(ctx, eventID)
	if err != nil {
		return nil, err
	}
	return mongo.PickRateClass(ev, classID)
}
