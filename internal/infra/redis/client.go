// Package redis provides a cache in front of the profile store. Scraping a
// profile costs an actor run, so known profiles are served from cache or
// Postgres instead.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/vietddude/harvester/internal/core/config"
	"github.com/vietddude/harvester/internal/core/domain"
)

// Client wraps Redis operations for the profile cache.
type Client struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewClient creates a new Redis client.
func NewClient(cfg config.RedisConfig) (*Client, error) {
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis URL: %w", err)
	}
	if cfg.Password != "" {
		opts.Password = cfg.Password
	}

	rdb := redis.NewClient(opts)

	// Test connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &Client{rdb: rdb, ttl: cfg.CacheTTL.Std()}, nil
}

// Close closes the Redis connection.
func (c *Client) Close() error {
	return c.rdb.Close()
}

func profileKey(url string) string {
	return fmt.Sprintf("profile:%s", url)
}

// GetProfile returns the cached profile for a normalized URL, if present.
func (c *Client) GetProfile(ctx context.Context, url string) (*domain.Profile, bool, error) {
	data, err := c.rdb.Get(ctx, profileKey(url)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("get profile from cache: %w", err)
	}

	var p domain.Profile
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, false, fmt.Errorf("decode cached profile: %w", err)
	}
	return &p, true, nil
}

// SetProfile caches a profile under its normalized URL.
func (c *Client) SetProfile(ctx context.Context, p domain.Profile) error {
	data, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("encode profile for cache: %w", err)
	}
	if err := c.rdb.Set(ctx, profileKey(p.LinkedInURL), data, c.ttl).Err(); err != nil {
		return fmt.Errorf("set profile in cache: %w", err)
	}
	return nil
}
