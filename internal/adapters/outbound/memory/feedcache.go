package memory

import (
	"context"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/archon-research/stl-listing/internal/ports/outbound"
)

// Compile-time check that FeedCache implements outbound.FeedStatusCache
var _ outbound.FeedStatusCache = (*FeedCache)(nil)

type feedEntry struct {
	status    outbound.FeedStatus
	expiresAt time.Time
}

// FeedCache is an in-memory FeedStatusCache with a fixed TTL.
type FeedCache struct {
	mu      sync.RWMutex
	entries map[common.Address]feedEntry
	ttl     time.Duration
	now     func() time.Time
}

// NewFeedCache creates a cache whose entries expire after ttl.
// A non-positive ttl keeps entries forever.
func NewFeedCache(ttl time.Duration) *FeedCache {
	return &FeedCache{
		entries: make(map[common.Address]feedEntry),
		ttl:     ttl,
		now:     time.Now,
	}
}

// GetFeedStatus returns a copy of the cached status, or nil on a miss.
func (c *FeedCache) GetFeedStatus(ctx context.Context, feed common.Address) (*outbound.FeedStatus, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.entries[feed]
	if !ok {
		return nil, nil
	}
	if c.ttl > 0 && !c.now().Before(e.expiresAt) {
		return nil, nil
	}
	status := e.status
	if status.Answer != nil {
		status.Answer = new(big.Int).Set(status.Answer)
	}
	return &status, nil
}

// SetFeedStatus caches a copy of status.
func (c *FeedCache) SetFeedStatus(ctx context.Context, status *outbound.FeedStatus) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[status.Feed] = feedEntry{
		status:    *status,
		expiresAt: c.now().Add(c.ttl),
	}
	return nil
}

// Close is a no-op.
func (c *FeedCache) Close() error {
	return nil
}
