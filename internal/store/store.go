// Package store provides the local record stores: in-memory, SQLite on the
// device, and Redis for instances that share one backing store.
package store

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/go-redis/redis/v8"

	"github.com/user/healthchat/internal/config"
	"github.com/user/healthchat/internal/types"
)

// Open returns the record store selected by cfg.Store.Backend.
func Open(cfg *config.Config) (types.RecordStore, error) {
	switch cfg.Store.Backend {
	case "", "sqlite":
		path := cfg.StorePath()
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, fmt.Errorf("create store directory: %w", err)
		}
		return OpenSQLite(path)
	case "memory":
		return NewMemoryStore(), nil
	case "redis":
		if cfg.Store.RedisAddr == "" {
			return nil, fmt.Errorf("store.redis_addr is required for the redis backend")
		}
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Store.RedisAddr,
			Password: cfg.Store.RedisPassword,
		})
		return NewRedisStore(client, cfg.Store.RedisPrefix), nil
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.Store.Backend)
	}
}
