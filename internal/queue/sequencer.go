package queue

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// StoreSequencer allocates floor+1. It relies on the join transaction
// persisting the number back to the queue row under the queue lock.
type StoreSequencer struct{}

func (StoreSequencer) Next(_ context.Context, _ string, floor int64) (int64, error) {
	return floor + 1, nil
}

// RedisSequencer allocates ticket numbers with INCR on queue:<id>:ticket.
// If the counter is behind the store (flushed or restored Redis) it is lifted
// to floor+1 so numbers are never reused.
type RedisSequencer struct {
	client *redis.Client
	prefix string
}

func NewRedisSequencer(client *redis.Client) *RedisSequencer {
	return &RedisSequencer{client: client, prefix: "queue:"}
}

func (s *RedisSequencer) key(queueID string) string {
	return fmt.Sprintf("%s%s:ticket", s.prefix, queueID)
}

func (s *RedisSequencer) Next(ctx context.Context, queueID string, floor int64) (int64, error) {
	key := s.key(queueID)
	n, err := s.client.Incr(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to increment %s: %w", key, err)
	}
	if n > floor {
		return n, nil
	}

	n = floor + 1
	if err := s.client.Set(ctx, key, n, 0).Err(); err != nil {
		return 0, fmt.Errorf("failed to lift %s: %w", key, err)
	}
	return n, nil
}

// Forget drops the counter of a deleted queue.
func (s *RedisSequencer) Forget(ctx context.Context, queueID string) error {
	return s.client.Del(ctx, s.key(queueID)).Err()
}
