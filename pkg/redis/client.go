package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Config addresses the Redis instance that holds login sessions and
// sign-in nonces. Zero timeouts and pool size fall back to the client's
// defaults.
type Config struct {
	Host     string
	Port     int
	Password string
	DB       int

	DialTimeout time.Duration
	ReadTimeout time.Duration
	PoolSize    int
}

func (c Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// New creates a client; it does not connect until first use
func New(cfg Config) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:        cfg.Addr(),
		Password:    cfg.Password,
		DB:          cfg.DB,
		DialTimeout: cfg.DialTimeout,
		ReadTimeout: cfg.ReadTimeout,
		PoolSize:    cfg.PoolSize,
	})
}

// Open creates a client and pings it, closing the client if the ping fails
func Open(ctx context.Context, cfg Config) (*redis.Client, error) {
	client := New(cfg)
	if err := Ping(ctx, client); err != nil {
		_ = client.Close()
		return nil, err
	}
	return client, nil
}

// Ping tests the Redis connection
func Ping(ctx context.Context, client *redis.Client) error {
	if err := client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping %s: %w", client.Options().Addr, err)
	}
	return nil
}
