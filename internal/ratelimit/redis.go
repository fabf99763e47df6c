package ratelimit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	rdb "github.com/redis/go-redis/v9"
)

// RedisStore keeps rate windows in Redis so limits are shared across server
// instances. Values are JSON-encoded windows with a per-key TTL.
type RedisStore struct {
	client *rdb.Client
}

// NewRedisStore creates a Redis-backed store and verifies connectivity.
func NewRedisStore(addr, password string, db int) (*RedisStore, error) {
	client := rdb.NewClient(&rdb.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	return &RedisStore{client: client}, nil
}

func (s *RedisStore) Get(ctx context.Context, key string) (Window, bool, error) {
	raw, err := s.client.Get(ctx, key).Result()
	if errors.Is(err, rdb.Nil) {
		return Window{}, false, nil
	}
	if err != nil {
		return Window{}, false, err
	}

	var w Window
	if err := json.Unmarshal([]byte(raw), &w); err != nil {
		// Treat a corrupt value as a miss; the window restarts.
		return Window{}, false, nil
	}
	return w, true, nil
}

func (s *RedisStore) Set(ctx context.Context, key string, w Window, ttl time.Duration) error {
	raw, err := json.Marshal(w)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, key, raw, ttl).Err()
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}
