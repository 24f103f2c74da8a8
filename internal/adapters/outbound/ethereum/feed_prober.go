// Package ethereum reads oracle price feeds over JSON-RPC.
//
// The prober calls decimals() and latestRoundData() on AggregatorV3-style
// feeds with:
//   - Rate limiting to stay within the RPC provider's limits
//   - Automatic retry with exponential backoff for transient failures
//   - A per-call timeout
package ethereum

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"golang.org/x/time/rate"

	"github.com/archon-research/stl-listing/internal/pkg/engineabi"
	"github.com/archon-research/stl-listing/internal/pkg/retry"
	"github.com/archon-research/stl-listing/internal/ports/outbound"
)

// Compile-time check that FeedProber implements outbound.FeedProber.
var _ outbound.FeedProber = (*FeedProber)(nil)

// ContractCaller is the subset of ethclient.Client used by the prober.
type ContractCaller interface {
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
}

// Config holds configuration for the feed prober.
type Config struct {
	// CallTimeout bounds a single eth_call.
	CallTimeout time.Duration

	// RateLimitPerSec caps eth_call requests per second.
	RateLimitPerSec float64

	// Retry controls retries of transient RPC failures.
	Retry retry.Config

	// Logger is the structured logger for the prober.
	Logger *slog.Logger
}

// ConfigDefaults returns a config with default values.
func ConfigDefaults() Config {
	return Config{
		CallTimeout:     10 * time.Second,
		RateLimitPerSec: 10,
		Retry:           retry.DefaultConfig(),
		Logger:          slog.Default(),
	}
}

// FeedProber implements outbound.FeedProber against an Ethereum node.
type FeedProber struct {
	client  ContractCaller
	config  Config
	limiter *rate.Limiter
	logger  *slog.Logger
	now     func() time.Time
}

// NewFeedProber creates a feed prober. Pass an *ethclient.Client as client.
func NewFeedProber(client ContractCaller, config Config) (*FeedProber, error) {
	if client == nil {
		return nil, errors.New("ethereum client is required")
	}

	defaults := ConfigDefaults()
	if config.CallTimeout == 0 {
		config.CallTimeout = defaults.CallTimeout
	}
	if config.RateLimitPerSec == 0 {
		config.RateLimitPerSec = defaults.RateLimitPerSec
	}
	if config.Retry.MaxRetries == 0 && config.Retry.InitialBackoff == 0 {
		config.Retry = defaults.Retry
	}
	if config.Logger == nil {
		config.Logger = defaults.Logger
	}

	return &FeedProber{
		client:  client,
		config:  config,
		limiter: rate.NewLimiter(rate.Limit(config.RateLimitPerSec), 1),
		logger:  config.Logger.With("component", "feed-prober"),
		now:     time.Now,
	}, nil
}

// Probe reads the feed's decimals and latest round.
func (p *FeedProber) Probe(ctx context.Context, feed common.Address) (*outbound.FeedStatus, error) {
	parsed, err := engineabi.GetAggregatorV3ABI()
	if err != nil {
		return nil, err
	}

	decimalsCall, err := parsed.Pack("decimals")
	if err != nil {
		return nil, fmt.Errorf("failed to pack decimals call: %w", err)
	}
	data, err := p.call(ctx, feed, decimalsCall)
	if err != nil {
		return nil, fmt.Errorf("failed to call decimals on feed %s: %w", feed.Hex(), err)
	}
	decimals, err := engineabi.UnpackDecimals(data)
	if err != nil {
		return nil, fmt.Errorf("feed %s: %w", feed.Hex(), err)
	}

	roundCall, err := parsed.Pack("latestRoundData")
	if err != nil {
		return nil, fmt.Errorf("failed to pack latestRoundData call: %w", err)
	}
	data, err = p.call(ctx, feed, roundCall)
	if err != nil {
		return nil, fmt.Errorf("failed to call latestRoundData on feed %s: %w", feed.Hex(), err)
	}
	round, err := engineabi.UnpackLatestRoundData(data)
	if err != nil {
		return nil, fmt.Errorf("feed %s: %w", feed.Hex(), err)
	}
	if !round.UpdatedAt.IsInt64() {
		return nil, fmt.Errorf("feed %s: updatedAt %s out of range", feed.Hex(), round.UpdatedAt)
	}

	status := &outbound.FeedStatus{
		Feed:      feed,
		Decimals:  decimals,
		Answer:    round.Answer,
		UpdatedAt: time.Unix(round.UpdatedAt.Int64(), 0).UTC(),
		ProbedAt:  p.now().UTC(),
	}
	p.logger.Debug("probed feed",
		"feed", feed.Hex(),
		"decimals", decimals,
		"answer", round.Answer.String(),
		"updatedAt", status.UpdatedAt,
	)
	return status, nil
}

// call performs one rate-limited, retried eth_call against the latest block.
func (p *FeedProber) call(ctx context.Context, to common.Address, data []byte) ([]byte, error) {
	msg := ethereum.CallMsg{To: &to, Data: data}

	onRetry := func(attempt int, err error, backoff time.Duration) {
		p.logger.Warn("eth_call failed, retrying",
			"attempt", attempt,
			"maxRetries", p.config.Retry.MaxRetries,
			"backoff", backoff,
			"to", to.Hex(),
			"error", err,
		)
	}

	return retry.Do(ctx, p.config.Retry, nil, onRetry, func() ([]byte, error) {
		if err := p.limiter.Wait(ctx); err != nil {
			return nil, retry.Permanent(fmt.Errorf("rate limiter: %w", err))
		}

		callCtx, cancel := context.WithTimeout(ctx, p.config.CallTimeout)
		defer cancel()

		out, err := p.client.CallContract(callCtx, msg, nil)
		if err != nil {
			if isRevert(err) {
				return nil, retry.Permanent(err)
			}
			return nil, err
		}
		if len(out) == 0 {
			// No code at the address, or a non-feed contract.
			return nil, retry.Permanent(fmt.Errorf("empty return data from %s", to.Hex()))
		}
		return out, nil
	})
}

// isRevert reports whether the node rejected the call itself, which a retry
// will not change.
func isRevert(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "execution reverted") || strings.Contains(msg, "invalid opcode")
}
