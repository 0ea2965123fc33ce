package cache

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/smallbiznis/flagship/internal/config"
	"go.uber.org/fx/fxtest"
	"go.uber.org/zap"
)

func TestRedisOutageDoesNotBlockStartup(t *testing.T) {
	m := miniredis.RunT(t)
	addr := m.Addr()
	m.Close()

	cfg := config.Config{
		Cache: config.CacheConfig{Backend: config.CacheBackendRedis, OpTimeout: 50 * time.Millisecond},
		Redis: config.RedisConfig{Addr: addr},
	}

	lc := fxtest.NewLifecycle(t)
	client, err := NewRedisClient(lc, cfg, zap.NewNop())
	if err != nil {
		t.Fatalf("new redis client: %v", err)
	}
	if client == nil {
		t.Fatalf("expected redis client for configured backend")
	}
	store := NewStore(lc, cfg, client, zap.NewNop())
	layer := newLayerFromConfig(cfg, store, zap.NewNop(), nil)

	lc.RequireStart()
	defer lc.RequireStop()

	if _, ok := layer.Get(context.Background(), "flag:id:1"); ok {
		t.Fatalf("expected miss while redis is down")
	}
	layer.Fill(context.Background(), "flag:id:1", []byte("x"), 0)
}
