package catalog

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/go-redis/redismock/v9"
	"github.com/google/uuid"
	redisadapter "github.com/robertarktes/ticket-issuance-and-admission/internal/adapters/redis"
	"github.com/robertarktes/ticket-issuance-and-admission/internal/domain"
	"github.com/robertarktes/ticket-issuance-and-admission/internal/observability"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleEvent(date time.Time) domain.Event {
	return domain.Event{
		ID:       uuid.New(),
		Name:     "Gala Night",
		Venue:    "City Hall",
		Date:     date,
		Currency: "INR",
		RateClasses: []domain.RateClass{
			{ID: uuid.New(), TicketType: "Regular", UnitPrice: decimal.RequireFromString("500.00"), MinimumQty: 1},
			{ID: uuid.New(), TicketType: "Group", UnitPrice: decimal.RequireFromString("400.00"), MinimumQty: 4},
		},
	}
}

func TestStatic_RateClass(t *testing.T) {
	ev := sampleEvent(time.Now().Add(24 * time.Hour))
	cat := NewStatic(ev)
	ctx := context.Background()

	rc, err := cat.RateClass(ctx, ev.ID, uuid.Nil)
	require.NoError(t, err)
	assert.Equal(t, "Regular", rc.TicketType)
	assert.Equal(t, ev.ID, rc.EventID)

	rc, err = cat.RateClass(ctx, ev.ID, ev.RateClasses[1].ID)
	require.NoError(t, err)
	assert.Equal(t, 4, rc.MinimumQty)

	_, err = cat.RateClass(ctx, ev.ID, uuid.New())
	assert.True(t, errors.Is(err, domain.ErrNotFound))

	_, err = cat.RateClass(ctx, uuid.New(), uuid.Nil)
	assert.True(t, errors.Is(err, domain.ErrNotFound))
}

func TestStatic_ListEventsUpcomingOnly(t *testing.T) {
	now := time.Now()
	past := sampleEvent(now.Add(-48 * time.Hour))
	later := sampleEvent(now.Add(72 * time.Hour))
	soon := sampleEvent(now.Add(24 * time.Hour))
	cat := NewStatic(past, later, soon)

	events, err := cat.ListEvents(context.Background(), now)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, soon.ID, events[0].ID)
	assert.Equal(t, later.ID, events[1].ID)
}

func TestCached_HitSkipsBackend(t *testing.T) {
	ev := sampleEvent(time.Now().Add(24 * time.Hour).UTC().Truncate(time.Second))
	client, mock := redismock.NewClientMock()
	cached := NewCached(NewStatic(), redisadapter.NewCache(client), time.Minute, observability.NewNopLogger())

	data, err := json.Marshal(ev)
	require.NoError(t, err)
	mock.ExpectGet("cache:event:" + ev.ID.String()).SetVal(string(data))

	got, err := cached.Event(context.Background(), ev.ID)
	require.NoError(t, err)
	assert.Equal(t, ev.Name, got.Name)
	assert.True(t, ev.RateClasses[0].UnitPrice.Equal(got.RateClasses[0].UnitPrice))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCached_MissFillsCache(t *testing.T) {
	ev := sampleEvent(time.Now().Add(24 * time.Hour))
	backend := NewStatic(ev)
	client, mock := redismock.NewClientMock()
	cached := NewCached(backend, redisadapter.NewCache(client), time.Minute, observability.NewNopLogger())

	stored, err := backend.Event(context.Background(), ev.ID)
	require.NoError(t, err)
	data, err := json.Marshal(stored)
	require.NoError(t, err)

	mock.ExpectGet("cache:event:" + ev.ID.String()).RedisNil()
	mock.ExpectSet("cache:event:"+ev.ID.String(), data, time.Minute).SetVal("OK")

	rc, err := cached.RateClass(context.Background(), ev.ID, ev.RateClasses[1].ID)
	require.NoError(t, err)
	assert.Equal(t, "Group", rc.TicketType)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCached_CacheErrorFallsThrough(t *testing.T) {
	ev := sampleEvent(time.Now().Add(24 * time.Hour))
	client, mock := redismock.NewClientMock()
	cached := NewCached(NewStatic(ev), redisadapter.NewCache(client), time.Minute, observability.NewNopLogger())

	mock.ExpectGet("cache:event:" + ev.ID.String()).SetErr(errors.New("connection refused"))

	got, err := cached.Event(context.Background(), ev.ID)
	require.NoError(t, err)
	assert.Equal(t, ev.ID, got.ID)
}
