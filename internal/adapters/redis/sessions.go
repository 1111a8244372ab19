package redis

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/redis/go-redis/v9"
)

// Sessions maps scanner session tokens to operator usernames.
type Sessions struct {
	client *redis.Client
}

func NewSessions(client *redis.Client) *Sessions {
	return &Sessions{client: client}
}

func (s *Sessions) PutSession(ctx context.Context, token, username string, ttl time.Duration) error {
	return s.client.Set(ctx, "session:"+token, username, ttl).Err()
}

func (s *Sessions) GetSession(ctx context.Context, token string) (string, bool, error) {
	username, err := s.client.Get(ctx, "session:"+token).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return username, true, nil
}
