package outbound

import (
	"context"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// FeedStatus is what a price feed reported when it was probed.
type FeedStatus struct {
	// Feed is the probed feed address.
	Feed common.Address `json:"feed"`

	// Decimals is the feed's answer precision.
	Decimals uint8 `json:"decimals"`

	// Answer is the latest round answer.
	Answer *big.Int `json:"answer"`

	// UpdatedAt is when the latest round was last updated.
	UpdatedAt time.Time `json:"updatedAt"`

	// ProbedAt is when the probe ran.
	ProbedAt time.Time `json:"probedAt"`
}

// FeedProber reads the live state of an oracle price feed.
type FeedProber interface {
	Probe(ctx context.Context, feed common.Address) (*FeedStatus, error)
}

// FeedStatusCache stores recent probe results keyed by feed address.
type FeedStatusCache interface {
	// GetFeedStatus returns the cached status, or nil if none is cached.
	GetFeedStatus(ctx context.Context, feed common.Address) (*FeedStatus, error)

	// SetFeedStatus caches a status.
	SetFeedStatus(ctx context.Context, status *FeedStatus) error

	// Close closes the cache connection.
	Close() error
}
