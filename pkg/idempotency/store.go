// Package idempotency provides a Redis-backed duplicate pre-filter for
// consumers. It is an optimization only: the durable marker that must commit
// atomically with a state change lives in each service's processed_events
// table, not here.
package idempotency

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

type Store struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewStore(rdb *redis.Client, ttl time.Duration) *Store {
	return &Store{rdb: rdb, ttl: ttl}
}

func (s *Store) Key(service, eventID string) string {
	return fmt.Sprintf("dedup:%s:%s", service, eventID)
}

// Check reports whether the key was already marked. It never marks; marking
// before the handler commits would hide a failed delivery from retry.
func (s *Store) Check(ctx context.Context, key string) (bool, error) {
	n, err := s.rdb.Exists(ctx, key).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// Mark records the key after the handler has committed.
func (s *Store) Mark(ctx context.Context, key string) error {
	return s.rdb.Set(ctx, key, "1", s.ttl).Err()
}
