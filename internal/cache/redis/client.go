// Package redis implements the shared coordination interfaces (request
// pacing, the sync lock and report fan-out) on top of go-redis/v9.
package redis

import (
	"context"
	"crypto/tls"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// ClientConfig holds connection parameters for the Redis client.
type ClientConfig struct {
	Addr       string
	Password   string
	DB         int
	PoolSize   int
	MaxRetries int
	TLSEnabled bool
	// Namespace prefixes every key this package writes so several trackers
	// can share one Redis database. Empty means no prefix.
	Namespace string
}

// Client wraps a go-redis Client and the key namespace shared by the
// limiter, lock manager and report bus built from it.
type Client struct {
	rdb       *redis.Client
	namespace string
}

// New creates a Client and pings it. It returns an error if the server is
// unreachable so callers can decide whether to continue without Redis.
func New(ctx context.Context, cfg ClientConfig) (*Client, error) {
	opts := &redis.Options{
		Addr:       cfg.Addr,
		Password:   cfg.Password,
		DB:         cfg.DB,
		PoolSize:   cfg.PoolSize,
		MaxRetries: cfg.MaxRetries,
	}
	if cfg.TLSEnabled {
		opts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}

	rdb := redis.NewClient(opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis: ping %s: %w", cfg.Addr, err)
	}
	return &Client{rdb: rdb, namespace: cfg.Namespace}, nil
}

// NewFromUnderlying wraps an existing go-redis client without pinging it.
func NewFromUnderlying(rdb *redis.Client, namespace string) *Client {
	return &Client{rdb: rdb, namespace: namespace}
}

// Ping checks the Redis connection.
func (c *Client) Ping(ctx context.Context) error {
	if err := c.rdb.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis: ping: %w", err)
	}
	return nil
}

// Close closes the Redis connection.
func (c *Client) Close() error {
	return c.rdb.Close()
}

// Underlying returns the raw *redis.Client.
func (c *Client) Underlying() *redis.Client {
	return c.rdb
}

// key joins the namespace, a kind ("lock", "ratelimit") and the caller's key.
func (c *Client) key(kind, name string) string {
	if c.namespace == "" {
		return kind + ":" + name
	}
	return c.namespace + ":" + kind + ":" + name
}
