package redis

import (
	"context"
	"log/slog"

	"github.com/ethereum/go-ethereum/common"

	"github.com/archon-research/stl-listing/internal/ports/outbound"
)

// Compile-time check that CachingProber implements outbound.FeedProber
var _ outbound.FeedProber = (*CachingProber)(nil)

// CachingProber serves probes from a FeedStatusCache and falls back to the
// wrapped prober on a miss. Cache failures are logged and never fail a probe.
type CachingProber struct {
	next   outbound.FeedProber
	cache  outbound.FeedStatusCache
	logger *slog.Logger
}

// NewCachingProber wraps next with cache.
func NewCachingProber(next outbound.FeedProber, cache outbound.FeedStatusCache, logger *slog.Logger) *CachingProber {
	if logger == nil {
		logger = slog.Default()
	}
	return &CachingProber{
		next:   next,
		cache:  cache,
		logger: logger.With("component", "caching-prober"),
	}
}

// Probe implements outbound.FeedProber.
func (p *CachingProber) Probe(ctx context.Context, feed common.Address) (*outbound.FeedStatus, error) {
	cached, err := p.cache.GetFeedStatus(ctx, feed)
	if err != nil {
		p.logger.Warn("feed cache read failed", "feed", feed.Hex(), "error", err)
	}
	if cached != nil {
		return cached, nil
	}

	status, err := p.next.Probe(ctx, feed)
	if err != nil {
		return nil, err
	}
	if err := p.cache.SetFeedStatus(ctx, status); err != nil {
		p.logger.Warn("feed cache write failed", "feed", feed.Hex(), "error", err)
	}
	return status, nil
}
