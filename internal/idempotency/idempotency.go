// Package idempotency replays the stored response of a request whose
// Idempotency-Key has already completed.
package idempotency

import (
	"context"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	redisadapter "github.com/robertarktes/ticket-issuance-and-admission/internal/adapters/redis"
	"github.com/robertarktes/ticket-issuance-and-admission/internal/domain"
)

// ErrInFlight means another request with the same key has not finished yet.
var ErrInFlight = errors.Mark(errors.New("request with this idempotency key is in progress"), domain.ErrConflict)

type Store interface {
	Get(ctx context.Context, key string) (*redisadapter.IdempResponse, error)
	Reserve(ctx context.Context, key string, ttl time.Duration) (bool, error)
	Set(ctx context.Context, key string, resp redisadapter.IdempResponse, ttl time.Duration) error
	Release(ctx context.Context, key string) error
}

var _ Store = (*redisadapter.Idempotency)(nil)

type Idempotency struct {
	store Store
	ttl   time.Duration
}

func NewIdempotency(store Store, ttl time.Duration) *Idempotency {
	return &Idempotency{store: store, ttl: ttl}
}

type Response struct {
	Status int
	Result []byte
}

// Begin returns the stored response when key already completed. Otherwise it
// reserves key for the caller, who must then call Complete.
func (i *Idempotency) Begin(ctx context.Context, key string) (*Response, error) {
	existing, err := i.store.Get(ctx, key)
	if err != nil {
		return nil, domain.Unavailable(err, "idempotency lookup")
	}
	if existing != nil {
		return &Response{Status: existing.Status, Result: existing.Result}, nil
	}
	ok, err := i.store.Reserve(ctx, key, i.ttl)
	if err != nil {
		return nil, domain.Unavailable(err, "idempotency reserve")
	}
	if !ok {
		// The holder may have completed between Get and Reserve.
		existing, err = i.store.Get(ctx, key)
		if err != nil {
			return nil, domain.Unavailable(err, "idempotency lookup")
		}
		if existing != nil {
			return &Response{Status: existing.Status, Result: existing.Result}, nil
		}
		return nil, ErrInFlight
	}
	return nil, nil
}

// Complete stores resp for replay. Server errors release the key instead so
// that the client can retry.
func (i *Idempotency) Complete(ctx context.Context, key string, resp Response) error {
	if resp.Status >= 500 {
		return i.store.Release(ctx, key)
	}
	return i.store.Set(ctx, key, redisadapter.IdempResponse{Status: resp.Status, Result: resp.Result}, i.ttl)
}

// MemoryStore is a process-local Store for single-instance development runs.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
}

type memoryEntry struct {
	resp    *redisadapter.IdempResponse
	expires time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: make(map[string]memoryEntry)}
}

func (m *MemoryStore) lookup(key string) (memoryEntry, bool) {
	e, ok := m.entries[key]
	if ok && time.Now().After(e.expires) {
		delete(m.entries, key)
		return memoryEntry{}, false
	}
	return e, ok
}

func (m *MemoryStore) Get(ctx context.Context, key string) (*redisadapter.IdempResponse, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, _ := m.lookup(key)
	return e.resp, nil
}

func (m *MemoryStore) Reserve(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.lookup(key); ok {
		return false, nil
	}
	m.entries[key] = memoryEntry{expires: time.Now().Add(ttl)}
	return true, nil
}

func (m *MemoryStore) Set(ctx context.Context, key string, resp redisadapter.IdempResponse, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[key] = memoryEntry{resp: &resp, expires: time.Now().Add(ttl)}
	return nil
}

func (m *MemoryStore) Release(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, key)
	return nil
}
