package cache

import (
	"context"
	"encoding/json"
	"time"

	"github.com/smallbiznis/flagship/internal/config"
	obslogger "github.com/smallbiznis/flagship/internal/observability/logger"
	"github.com/smallbiznis/flagship/internal/observability/metrics"
	"go.uber.org/zap"
)

const (
	DefaultTTL       = time.Hour
	defaultOpTimeout = 250 * time.Millisecond

	// NoExpiry stores a snapshot until it is invalidated.
	NoExpiry time.Duration = -1
)

// Layer wraps a Store so that backend failures degrade to misses and no-op deletes.
// Nothing it does is ever surfaced to callers as an error.
type Layer struct {
	store     Store
	log       *zap.Logger
	metrics   *metrics.Metrics
	ttl       time.Duration
	opTimeout time.Duration
}

type LayerOptions struct {
	TTL       time.Duration
	OpTimeout time.Duration
	Log       *zap.Logger
	Metrics   *metrics.Metrics
}

func NewLayer(store Store, opts LayerOptions) *Layer {
	if store == nil {
		store = NewNoopStore()
	}
	if opts.TTL <= 0 {
		opts.TTL = DefaultTTL
	}
	if opts.OpTimeout <= 0 {
		opts.OpTimeout = defaultOpTimeout
	}
	log := opts.Log
	if log == nil {
		log = zap.NewNop()
	}
	return &Layer{
		store:     store,
		log:       log.Named("cache"),
		metrics:   opts.Metrics,
		ttl:       opts.TTL,
		opTimeout: opts.OpTimeout,
	}
}

func newLayerFromConfig(cfg config.Config, store Store, log *zap.Logger, m *metrics.Metrics) *Layer {
	return NewLayer(store, LayerOptions{
		TTL:       cfg.Cache.TTL,
		OpTimeout: cfg.Cache.OpTimeout,
		Log:       log,
		Metrics:   m,
	})
}

// TTL is the default expiry applied to snapshots.
func (l *Layer) TTL() time.Duration { return l.ttl }

func (l *Layer) Get(ctx context.Context, key string) ([]byte, bool) {
	opCtx, cancel := context.WithTimeout(ctx, l.opTimeout)
	defer cancel()

	kind := KindOf(key)
	value, ok, err := l.store.Get(opCtx, key)
	if err != nil {
		l.warn(ctx, "cache get failed", key, err)
		l.metrics.RecordCacheLookup(ctx, kind, metrics.CacheResultError)
		return nil, false
	}
	if !ok {
		l.metrics.RecordCacheLookup(ctx, kind, metrics.CacheResultMiss)
		return nil, false
	}
	l.metrics.RecordCacheLookup(ctx, kind, metrics.CacheResultHit)
	return value, true
}

// Set stores value; ttl == 0 uses the layer default and ttl < 0 stores without expiry.
func (l *Layer) Set(ctx context.Context, key string, value []byte, ttl time.Duration) {
	if ttl == 0 {
		ttl = l.ttl
	}
	opCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), l.opTimeout)
	defer cancel()

	if err := l.store.Set(opCtx, key, value, ttl); err != nil {
		l.warn(ctx, "cache set failed", key, err)
	}
}

// Fill stores value only when key is absent, so a read that loaded an older row
// never replaces a snapshot written back by a mutation.
func (l *Layer) Fill(ctx context.Context, key string, value []byte, ttl time.Duration) {
	if ttl == 0 {
		ttl = l.ttl
	}
	opCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), l.opTimeout)
	defer cancel()

	if _, err := l.store.SetNX(opCtx, key, value, ttl); err != nil {
		l.warn(ctx, "cache fill failed", key, err)
	}
}

// Del removes keys. It outlives caller cancellation but is capped by the op timeout.
func (l *Layer) Del(ctx context.Context, keys ...string) int {
	if len(keys) == 0 {
		return 0
	}
	opCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), l.opTimeout)
	defer cancel()

	if err := l.store.Del(opCtx, keys...); err != nil {
		l.warn(ctx, "cache delete failed", keys[0], err)
		return 0
	}
	return len(keys)
}

// DelPrefix scans and removes every key starting with prefix.
func (l *Layer) DelPrefix(ctx context.Context, prefix string) int {
	opCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), l.opTimeout)
	defer cancel()

	keys, err := l.store.ScanPrefix(opCtx, prefix)
	if err != nil {
		l.warn(ctx, "cache scan failed", prefix, err)
		return 0
	}
	if len(keys) == 0 {
		return 0
	}
	if err := l.store.Del(opCtx, keys...); err != nil {
		l.warn(ctx, "cache prefix delete failed", prefix, err)
		return 0
	}
	return len(keys)
}

// Flush drops every entry of the given kinds. The store remains the source of truth.
func (l *Layer) Flush(ctx context.Context, kinds ...string) {
	for _, kind := range kinds {
		l.DelPrefix(ctx, kind+":")
		l.Del(ctx, AllKey(kind))
	}
}

func (l *Layer) warn(ctx context.Context, msg, key string, err error) {
	obslogger.WithContext(ctx, l.log).Warn(msg, zap.String("key", key), zap.Error(err))
}

// GetJSON decodes a cached snapshot into T. Undecodable entries count as misses.
func GetJSON[T any](ctx context.Context, l *Layer, key string) (T, bool) {
	var out T
	raw, ok := l.Get(ctx, key)
	if !ok {
		return out, false
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		l.warn(ctx, "cache decode failed", key, err)
		l.Del(ctx, key)
		var zero T
		return zero, false
	}
	return out, true
}

// SetJSON stores a snapshot of value.
func SetJSON(ctx context.Context, l *Layer, key string, value any, ttl time.Duration) {
	raw, err := json.Marshal(value)
	if err != nil {
		l.warn(ctx, "cache encode failed", key, err)
		return
	}
	l.Set(ctx, key, raw, ttl)
}

// FillJSON is the read-through counterpart of SetJSON.
func FillJSON(ctx context.Context, l *Layer, key string, value any, ttl time.Duration) {
	raw, err := json.Marshal(value)
	if err != nil {
		l.warn(ctx, "cache encode failed", key, err)
		return
	}
	l.Fill(ctx, key, raw, ttl)
}
