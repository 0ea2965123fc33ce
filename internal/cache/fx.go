package cache

import (
	"context"

	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/flagship/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("cache",
	fx.Provide(NewRedisClient),
	fx.Provide(NewStore),
	fx.Provide(newLayerFromConfig),
)

// NewRedisClient returns nil when redis is not configured. An unreachable redis
// does not block startup; the layer treats its failures as misses.
func NewRedisClient(lc fx.Lifecycle, cfg config.Config, log *zap.Logger) (*redis.Client, error) {
	if !cfg.UsesRedis() {
		return nil, nil
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			if err := client.Ping(ctx).Err(); err != nil {
				log.Warn("redis unreachable, cache degrades to misses",
					zap.String("addr", cfg.Redis.Addr),
					zap.Error(err),
				)
			}
			return nil
		},
	})
	return client, nil
}

func NewStore(lc fx.Lifecycle, cfg config.Config, client *redis.Client, log *zap.Logger) Store {
	var store Store
	switch cfg.Cache.Backend {
	case config.CacheBackendRedis:
		if client == nil {
			log.Warn("redis cache backend requested without REDIS_ADDR, using memory store")
			store = NewMemoryStore()
			break
		}
		store = NewRedisStore(client)
	case config.CacheBackendNone:
		store = NewNoopStore()
	default:
		store = NewMemoryStore()
	}
	log.Info("cache backend selected", zap.String("backend", cfg.Cache.Backend))
	lc.Append(fx.Hook{
		OnStop: func(context.Context) error {
			return store.Close()
		},
	})
	return store
}
