package rateLimit

import (
	"context"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/go-redis/redismock/v9"
	redisadapter "github.com/robertarktes/ticket-issuance-and-admission/internal/adapters/redis"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRateLimiter_Allow(t *testing.T) {
	client, mock := redismock.NewClientMock()
	rl := NewRateLimiter(redisadapter.NewCache(client))
	ctx := context.Background()

	mock.ExpectIncr("rl:ip:1.2.3.4").SetVal(2)
	mock.ExpectExpireNX("rl:ip:1.2.3.4", time.Minute).SetVal(false)
	ok, err := rl.Allow(ctx, "ip:1.2.3.4", 2, time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)

	mock.ExpectIncr("rl:ip:1.2.3.4").SetVal(3)
	mock.ExpectExpireNX("rl:ip:1.2.3.4", time.Minute).SetVal(false)
	ok, err = rl.Allow(ctx, "ip:1.2.3.4", 2, time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRateLimiter_RedisDown(t *testing.T) {
	client, mock := redismock.NewClientMock()
	rl := NewRateLimiter(redisadapter.NewCache(client))

	mock.ExpectIncr("rl:k").SetErr(errors.New("dial tcp: connection refused"))
	_, err := rl.Allow(context.Background(), "k", 10, time.Minute)
	assert.Error(t, err)
}
