package cache

import (
	"time"

	"github.com/jellydator/ttlcache/v3"
)

// Cache is a typed in-process cache with per-entry expiry.
type Cache[K comparable, V any] interface {
	Get(key K) (V, bool)
	Set(key K, value V, ttl time.Duration)
	SetIfAbsent(key K, value V, ttl time.Duration) bool
	Delete(key K)
	Keys() []K
	Stop()
}

type ttlCache[K comparable, V any] struct {
	inner *ttlcache.Cache[K, V]
}

// NewTTLCache starts a ttlcache-backed cache whose expired entries are evicted in the background.
func NewTTLCache[K comparable, V any]() Cache[K, V] {
	inner := ttlcache.New[K, V](
		ttlcache.WithDisableTouchOnHit[K, V](),
	)
	go inner.Start()
	return &ttlCache[K, V]{inner: inner}
}

func (c *ttlCache[K, V]) Get(key K) (V, bool) {
	item := c.inner.Get(key)
	if item == nil || item.IsExpired() {
		var zero V
		return zero, false
	}
	return item.Value(), true
}

// Set stores value; ttl <= 0 keeps the entry until it is deleted.
func (c *ttlCache[K, V]) Set(key K, value V, ttl time.Duration) {
	if ttl <= 0 {
		ttl = ttlcache.NoTTL
	}
	c.inner.Set(key, value, ttl)
}

// SetIfAbsent stores value unless a live entry exists for key.
func (c *ttlCache[K, V]) SetIfAbsent(key K, value V, ttl time.Duration) bool {
	if ttl <= 0 {
		ttl = ttlcache.NoTTL
	}
	_, found := c.inner.GetOrSet(key, value, ttlcache.WithTTL[K, V](ttl))
	return !found
}

func (c *ttlCache[K, V]) Delete(key K) {
	c.inner.Delete(key)
}

func (c *ttlCache[K, V]) Keys() []K {
	return c.inner.Keys()
}

func (c *ttlCache[K, V]) Stop() {
	c.inner.Stop()
}
