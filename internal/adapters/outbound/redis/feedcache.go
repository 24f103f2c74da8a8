// Package redis provides a Redis implementation of the FeedStatusCache port.
//
// Probe results are stored as JSON under prefix:feed:<address> with a TTL,
// so repeated validations of the same configuration do not hit the RPC node.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/redis/go-redis/v9"

	"github.com/archon-research/stl-listing/internal/ports/outbound"
)

// Compile-time check that FeedCache implements outbound.FeedStatusCache
var _ outbound.FeedStatusCache = (*FeedCache)(nil)

// Config holds Redis cache configuration.
type Config struct {
	// Addr is the Redis server address (e.g., "localhost:6379")
	Addr string
	// Password for Redis authentication (empty for no auth)
	Password string
	// DB is the Redis database number (0-15)
	DB int
	// TTL is how long a probe result stays fresh
	TTL time.Duration
	// KeyPrefix is prepended to all cache keys
	KeyPrefix string
}

// ConfigDefaults returns defaults for the feed status cache.
func ConfigDefaults() Config {
	return Config{
		Addr:      "localhost:6379",
		TTL:       time.Minute,
		KeyPrefix: "stl-listing",
	}
}

// FeedCache caches feed probe results in Redis.
type FeedCache struct {
	client    redis.UniversalClient
	ttl       time.Duration
	keyPrefix string
	logger    *slog.Logger
}

// NewFeedCache creates a new Redis feed status cache.
func NewFeedCache(cfg Config, logger *slog.Logger) (*FeedCache, error) {
	if cfg.Addr == "" {
		return nil, fmt.Errorf("redis address is required")
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	return newFeedCache(client, cfg, logger), nil
}

func newFeedCache(client redis.UniversalClient, cfg Config, logger *slog.Logger) *FeedCache {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.TTL <= 0 {
		cfg.TTL = ConfigDefaults().TTL
	}
	return &FeedCache{
		client:    client,
		ttl:       cfg.TTL,
		keyPrefix: cfg.KeyPrefix,
		logger:    logger.With("component", "redis-feed-cache"),
	}
}

// Ping checks the Redis connection.
func (c *FeedCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// Close closes the Redis connection.
func (c *FeedCache) Close() error {
	return c.client.Close()
}

// key generates a cache key in the format prefix:feed:address.
func (c *FeedCache) key(feed common.Address) string {
	return fmt.Sprintf("%s:feed:%s", c.keyPrefix, strings.ToLower(feed.Hex()))
}

// GetFeedStatus returns the cached status, or nil on a miss.
func (c *FeedCache) GetFeedStatus(ctx context.Context, feed common.Address) (*outbound.FeedStatus, error) {
	data, err := c.client.Get(ctx, c.key(feed)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get feed status: %w", err)
	}

	var status outbound.FeedStatus
	if err := json.Unmarshal(data, &status); err != nil {
		return nil, fmt.Errorf("failed to decode cached feed status: %w", err)
	}
	return &status, nil
}

// SetFeedStatus caches a status until the TTL expires.
func (c *FeedCache) SetFeedStatus(ctx context.Context, status *outbound.FeedStatus) error {
	data, err := json.Marshal(status)
	if err != nil {
		return fmt.Errorf("failed to encode feed status: %w", err)
	}
	if err := c.client.Set(ctx, c.key(status.Feed), data, c.ttl).Err(); err != nil {
		return fmt.Errorf("failed to cache feed status: %w", err)
	}
	return nil
}
