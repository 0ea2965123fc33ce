package cache

import (
	"context"
	"strings"
	"sync/atomic"
	"time"
)

// MemoryStore keeps entries in process memory. It is the default backend for single-replica deployments.
type MemoryStore struct {
	entries Cache[string, []byte]
	closed  atomic.Bool
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: NewTTLCache[string, []byte]()}
}

func (s *MemoryStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	if err := s.check(ctx); err != nil {
		return nil, false, err
	}
	value, ok := s.entries.Get(key)
	if !ok {
		return nil, false, nil
	}
	out := make([]byte, len(value))
	copy(out, value)
	return out, true, nil
}

func (s *MemoryStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := s.check(ctx); err != nil {
		return err
	}
	stored := make([]byte, len(value))
	copy(stored, value)
	s.entries.Set(key, stored, ttl)
	return nil
}

func (s *MemoryStore) SetNX(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error) {
	if err := s.check(ctx); err != nil {
		return false, err
	}
	stored := make([]byte, len(value))
	copy(stored, value)
	return s.entries.SetIfAbsent(key, stored, ttl), nil
}

func (s *MemoryStore) Del(ctx context.Context, keys ...string) error {
	if err := s.check(ctx); err != nil {
		return err
	}
	for _, key := range keys {
		s.entries.Delete(key)
	}
	return nil
}

func (s *MemoryStore) ScanPrefix(ctx context.Context, prefix string) ([]string, error) {
	if err := s.check(ctx); err != nil {
		return nil, err
	}
	var keys []string
	for _, key := range s.entries.Keys() {
		if strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
	}
	return keys, nil
}

func (s *MemoryStore) Close() error {
	if s.closed.CompareAndSwap(false, true) {
		s.entries.Stop()
	}
	return nil
}

func (s *MemoryStore) check(ctx context.Context) error {
	if s.closed.Load() {
		return ErrStoreClosed
	}
	return ctx.Err()
}
