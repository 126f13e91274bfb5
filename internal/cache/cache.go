// Package cache stores ranked predictions in Redis
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/menta2k/mlserver/pkg/types"
)

// DefaultTTL is how long predictions are kept when no TTL is configured
const DefaultTTL = time.Hour

// Options configure the Redis connection
type Options struct {
	Address  string
	Password string
	DB       int
	TTL      time.Duration
}

// commands is the subset of the Redis client the cache uses
type commands interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
	Ping(ctx context.Context) *redis.StatusCmd
	Close() error
}

// Redis is a prediction cache backed by a Redis server
type Redis struct {
	client commands
	ttl    time.Duration
}

// Open connects to Redis and checks the connection with PING
func Open(ctx context.Context, opts Options) (*Redis, error) {
	if opts.Address == "" {
		return nil, fmt.Errorf("%w: redis address is empty", types.ErrConfiguration)
	}
	client := redis.NewClient(&redis.Options{
		Addr:     opts.Address,
		Password: opts.Password,
		DB:       opts.DB,
	})
	c := newRedis(client, opts.TTL)
	if err := c.Ping(ctx); err != nil {
		client.Close()
		return nil, err
	}
	return c, nil
}

func newRedis(client commands, ttl time.Duration) *Redis {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Redis{client: client, ttl: ttl}
}

// Ping tests connectivity
func (c *Redis) Ping(ctx context.Context) error {
	if err := c.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping failed: %w", err)
	}
	return nil
}

// Get returns the cached predictions for key. A missing key is not an error.
func (c *Redis) Get(ctx context.Context, key string) ([]types.Prediction, bool, error) {
	data, err := c.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	var predictions []types.Prediction
	if err := json.Unmarshal(data, &predictions); err != nil {
		return nil, false, fmt.Errorf("corrupt cache entry %s: %w", key, err)
	}
	return predictions, true, nil
}

// Set stores predictions under key with the configured TTL
func (c *Redis) Set(ctx context.Context, key string, predictions []types.Prediction) error {
	if predictions == nil {
		predictions = []types.Prediction{}
	}
	data, err := json.Marshal(predictions)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, key, data, c.ttl).Err()
}

// Close closes the connection
func (c *Redis) Close() error {
	return c.client.Close()
}
