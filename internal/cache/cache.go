// Package cache holds short-lived byte values keyed by string, such as the
// page render lists of recently opened documents.
package cache

import (
	"context"
	"fmt"
	"time"

	"qrstudio/internal/config"
)

// Cache is a TTL key/value store. A zero ttl means no expiry.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) error
	Close() error
}

// Open builds the cache backend named in the config.
func Open(conf config.CacheConf) (Cache, error) {
	switch conf.Backend {
	case "", "memory":
		return NewMemory(), nil
	case "redis":
		c := &Redis{Addr: conf.RedisAddr, Password: conf.RedisPW, DB: conf.RedisDB, Prefix: "qrstudio:"}
		if err := c.Init(); err != nil {
			return nil, err
		}
		return c, nil
	default:
		return nil, fmt.Errorf("unknown cache backend %q", conf.Backend)
	}
}
