package main

import (
	"context"
	"database/sql"
	"log"
	"time"

	"github.com/orra-dev/agent-fragile-to-prod-guide/cmd/server/config"
	"github.com/orra-dev/agent-fragile-to-prod-guide/internal/docstore"

	"github.com/redis/go-redis/extra/redisotel/v9"
	"github.com/redis/go-redis/v9"
)

var openDB = func(driver, dsn string) (*sql.DB, error) {
	return sql.Open(driver, dsn)
}

// buildDocStore assembles the document store from env: Redis when
// configured, layered over a file journal when STORE_JOURNAL_PATH is set,
// in-memory otherwise.
func buildDocStore(ctx context.Context) (docstore.Store, func(), error) {
	storeCfg := config.LoadStore()

	var stores []docstore.Store
	var cleanups []func()
	cleanup := func() {
		for _, fn := range cleanups {
			fn()
		}
	}

	redisCfg, redisEnabled, err := config.LoadRedis()
	if err != nil {
		return nil, nil, err
	}
	if redisEnabled {
		client, err := connectRedis(ctx, redisCfg)
		if err != nil {
			return nil, nil, err
		}
		cleanups = append(cleanups, func() {
			if err := client.Close(); err != nil {
				log.Printf("close redis: %v", err)
			}
		})
		stores = append(stores, docstore.NewRedisStore(
			redisClientAdapter{client: client},
			redisCfg.Stream,
			redisCfg.DocTTL,
			redisCfg.StreamMaxLen,
		))
	}

	if storeCfg.JournalPath != "" {
		fileStore, err := docstore.NewFileStore(storeCfg.JournalPath)
		if err != nil {
			cleanup()
			return nil, nil, err
		}
		cleanups = append(cleanups, func() {
			if err := fileStore.Close(); err != nil {
				log.Printf("close journal: %v", err)
			}
		})
		stores = append(stores, fileStore)
	}

	switch len(stores) {
	case 0:
		return docstore.NewMemoryStore(), cleanup, nil
	case 1:
		return stores[0], cleanup, nil
	default:
		return docstore.NewMultiStore(stores...), cleanup, nil
	}
}

func connectRedis(ctx context.Context, cfg config.RedisConfig) (*redis.Client, error) {
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, err
	}
	if cfg.DialTimeout != nil {
		opts.DialTimeout = *cfg.DialTimeout
	}
	if cfg.ReadTimeout != nil {
		opts.ReadTimeout = *cfg.ReadTimeout
	}
	if cfg.WriteTimeout != nil {
		opts.WriteTimeout = *cfg.WriteTimeout
	}
	if cfg.PoolSize != nil {
		opts.PoolSize = *cfg.PoolSize
	}
	if cfg.MinIdleConns != nil {
		opts.MinIdleConns = *cfg.MinIdleConns
	}
	if cfg.MaxRetries != nil {
		opts.MaxRetries = *cfg.MaxRetries
	}
	if cfg.TLSConfig != nil {
		opts.TLSConfig = cfg.TLSConfig
	}

	client := redis.NewClient(opts)
	if cfg.EnableOTel {
		if err := redisotel.InstrumentTracing(client); err != nil {
			_ = client.Close()
			return nil, err
		}
		if err := redisotel.InstrumentMetrics(client); err != nil {
			_ = client.Close()
			return nil, err
		}
	}

	pingCtx := ctx
	if cfg.HealthcheckTimeout > 0 {
		var cancel context.CancelFunc
		pingCtx, cancel = context.WithTimeout(pingCtx, cfg.HealthcheckTimeout)
		defer cancel()
	}
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, err
	}

	return client, nil
}

type redisClientAdapter struct {
	client *redis.Client
}

func (a redisClientAdapter) Pipeline() docstore.RedisPipeliner {
	return redisPipelineAdapter{pipe: a.client.Pipeline()}
}

func (a redisClientAdapter) HGet(ctx context.Context, key, field string) *redis.StringCmd {
	return a.client.HGet(ctx, key, field)
}

func (a redisClientAdapter) Keys(ctx context.Context, pattern string) *redis.StringSliceCmd {
	return a.client.Keys(ctx, pattern)
}

type redisPipelineAdapter struct {
	pipe redis.Pipeliner
}

func (p redisPipelineAdapter) HSet(ctx context.Context, key string, values ...any) *redis.IntCmd {
	return p.pipe.HSet(ctx, key, values...)
}

func (p redisPipelineAdapter) Expire(ctx context.Context, key string, expiration time.Duration) *redis.BoolCmd {
	return p.pipe.Expire(ctx, key, expiration)
}

func (p redisPipelineAdapter) Del(ctx context.Context, keys ...string) *redis.IntCmd {
	return p.pipe.Del(ctx, keys...)
}

func (p redisPipelineAdapter) XAdd(ctx context.Context, a *redis.XAddArgs) *redis.StringCmd {
	return p.pipe.XAdd(ctx, a)
}

func (p redisPipelineAdapter) Exec(ctx context.Context) ([]redis.Cmder, error) {
	return p.pipe.Exec(ctx)
}
