package jobstore

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
)

// Config selects and configures a job-store backend.
type Config struct {
	// Backend is one of "fs", "redis", "postgres". Empty means "fs".
	Backend string
	// Dir is the jobs directory for the fs backend.
	Dir string
	// RedisAddr is the host:port for the redis backend.
	RedisAddr string
	// DatabaseURL is the connection string for the postgres backend.
	DatabaseURL string
}

// New builds the configured Store. The returned close function releases the
// backend's resources and is safe to call once during shutdown.
func New(ctx context.Context, cfg Config) (Store, func() error, error) {
	backend := cfg.Backend
	if backend == "" {
		backend = "fs"
	}

	switch backend {
	case "fs":
		if cfg.Dir == "" {
			return nil, nil, fmt.Errorf("jobstore: fs backend requires a directory")
		}
		store, err := NewFSStore(cfg.Dir)
		if err != nil {
			return nil, nil, err
		}
		return store, func() error { return nil }, nil

	case "redis":
		if cfg.RedisAddr == "" {
			return nil, nil, fmt.Errorf("jobstore: redis backend requires an address")
		}
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		if err := rdb.Ping(ctx).Err(); err != nil {
			rdb.Close()
			return nil, nil, fmt.Errorf("jobstore: ping redis: %w", err)
		}
		return NewRedisStore(rdb), rdb.Close, nil

	case "postgres":
		if cfg.DatabaseURL == "" {
			return nil, nil, fmt.Errorf("jobstore: postgres backend requires DATABASE_URL")
		}
		pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, nil, fmt.Errorf("jobstore: connect postgres: %w", err)
		}
		if err := pool.Ping(ctx); err != nil {
			pool.Close()
			return nil, nil, fmt.Errorf("jobstore: ping postgres: %w", err)
		}
		store := NewPGStore(pool)
		if err := store.EnsureSchema(ctx); err != nil {
			pool.Close()
			return nil, nil, fmt.Errorf("jobstore: ensure schema: %w", err)
		}
		close := func() error {
			pool.Close()
			return nil
		}
		return store, close, nil

	default:
		return nil, nil, fmt.Errorf("jobstore: unknown backend: %s", backend)
	}
}
