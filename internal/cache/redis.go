package cache

import (
	"context"
	"errors"
	"log"
	"time"

	lowimpl "github.com/redis/go-redis/v9"
)

// Redis is a Cache on a redis server. Keys are namespaced with Prefix.
type Redis struct {
	Addr     string
	Password string
	DB       int
	Prefix   string

	// implementation details, not exported
	internal *lowimpl.Client
}

var _ Cache = (*Redis)(nil)

func (c *Redis) Init() error {
	c.internal = lowimpl.NewClient(&lowimpl.Options{
		Addr:     c.Addr,
		Password: c.Password,
		DB:       c.DB,
	})
	log.Printf("[Cache] redis client initialized (%s)", c.Addr)
	return nil
}

// Ping checks that the server is reachable.
func (c *Redis) Ping(ctx context.Context) error {
	return c.internal.Ping(ctx).Err()
}

func (c *Redis) Close() error {
	if c.internal == nil {
		return nil
	}
	return c.internal.Close()
}

func (c *Redis) Get(ctx context.Context, key string) ([]byte, bool, error) {
	val, err := c.internal.Get(ctx, c.Prefix+key).Bytes()
	if errors.Is(err, lowimpl.Nil) {
		return nil, false, nil // redis.Nil -> ok: false, err: nil
	}
	if err != nil {
		return nil, false, err
	}
	return val, true, nil
}

func (c *Redis) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return c.internal.Set(ctx, c.Prefix+key, value, ttl).Err()
}

func (c *Redis) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	full := make([]string, len(keys))
	for i, k := range keys {
		full[i] = c.Prefix + k
	}
	return c.internal.Del(ctx, full...).Err()
}
