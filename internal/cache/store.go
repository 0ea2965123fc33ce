package cache

import (
	"context"
	"errors"
	"time"
)

// Store is the raw key-value backend behind the cache layer.
// Get reports ok=false for an absent key; errors are reserved for backend failures.
// SetNX stores value only when key is absent and reports whether it did.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	SetNX(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error)
	Del(ctx context.Context, keys ...string) error
	ScanPrefix(ctx context.Context, prefix string) ([]string, error)
	Close() error
}

var ErrStoreClosed = errors.New("cache_store_closed")

type noopStore struct{}

// NewNoopStore returns a store that never holds anything.
func NewNoopStore() Store { return noopStore{} }

func (noopStore) Get(context.Context, string) ([]byte, bool, error) { return nil, false, nil }

func (noopStore) Set(context.Context, string, []byte, time.Duration) error { return nil }

func (noopStore) SetNX(context.Context, string, []byte, time.Duration) (bool, error) {
	return false, nil
}

func (noopStore) Del(context.Context, ...string) error { return nil }

func (noopStore) ScanPrefix(context.Context, string) ([]string, error) { return nil, nil }

func (noopStore) Close() error { return nil }
