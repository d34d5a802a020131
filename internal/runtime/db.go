package runtime

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/mohammad-safakhou/researcher/config"
	"github.com/mohammad-safakhou/researcher/internal/store"
)

// OpenStore connects to the configured Postgres archive.
func OpenStore(ctx context.Context, cfg *config.Config) (*store.Store, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is nil")
	}
	p := cfg.Storage.Postgres
	if !p.Enabled() {
		return nil, fmt.Errorf("postgres not configured (storage.postgres.url or host/dbname)")
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return store.NewWithDSN(ctx, p.DSN())
}

// OpenRedis connects to the configured Redis and pings it.
func OpenRedis(ctx context.Context, cfg *config.Config) (*redis.Client, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is nil")
	}
	r := cfg.Storage.Redis
	if !r.Enabled() {
		return nil, fmt.Errorf("redis not configured (storage.redis.host)")
	}
	rdb := redis.NewClient(&redis.Options{
		Addr:        r.Addr(),
		Password:    r.Password,
		DB:          r.DB,
		DialTimeout: r.Timeout,
		ReadTimeout: r.Timeout,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis connection failed (%s): %w", r.Addr(), err)
	}
	return rdb, nil
}
