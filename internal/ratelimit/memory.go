package ratelimit

import (
	"context"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// MemoryStore keeps rate windows in process memory. Expired windows are
// swept in the background by go-cache.
type MemoryStore struct {
	cache *gocache.Cache
}

// NewMemoryStore creates an in-process store. Entries expire at their
// per-key TTL; the janitor sweeps every minute.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		cache: gocache.New(gocache.NoExpiration, time.Minute),
	}
}

func (s *MemoryStore) Get(_ context.Context, key string) (Window, bool, error) {
	v, ok := s.cache.Get(key)
	if !ok {
		return Window{}, false, nil
	}
	w, ok := v.(Window)
	if !ok {
		return Window{}, false, nil
	}
	return w, true, nil
}

func (s *MemoryStore) Set(_ context.Context, key string, w Window, ttl time.Duration) error {
	s.cache.Set(key, w, ttl)
	return nil
}
