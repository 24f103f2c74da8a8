// Package feed_check probes the oracle feeds of a canonical submission and
// reports suspicious feeds as warnings.
//
// A feed check never blocks a submission: an unreachable, stale or oddly
// scaled feed is something a reviewer should look at, not a proof that the
// listing is wrong.
package feed_check

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/archon-research/stl-listing/internal/domain/entity"
	"github.com/archon-research/stl-listing/internal/ports/outbound"
	"github.com/archon-research/stl-listing/internal/services/listing_validator"
)

// Feed check codes. All are advisory warnings.
const (
	CodeFeedUnreachable     listing_validator.Code = "feed_unreachable"
	CodeFeedNonPositive     listing_validator.Code = "feed_non_positive_answer"
	CodeFeedStale           listing_validator.Code = "feed_stale"
	CodeFeedUnexpectedScale listing_validator.Code = "feed_unexpected_decimals"
)

// tracerName is the instrumentation name for this service.
const tracerName = "github.com/archon-research/stl-listing/internal/services/feed_check"

// Config holds configuration for the feed check service.
type Config struct {
	// MaxStaleness is the oldest acceptable latest round.
	MaxStaleness time.Duration

	// ExpectedDecimals is the answer precision the pool oracle expects.
	ExpectedDecimals uint8

	// Concurrency bounds parallel probes.
	Concurrency int

	// Logger is the structured logger.
	Logger *slog.Logger
}

// ConfigDefaults returns a config with default values. Chainlink USD feeds
// report 8 decimals and stablecoin feeds heartbeat once a day.
func ConfigDefaults() Config {
	return Config{
		MaxStaleness:     25 * time.Hour,
		ExpectedDecimals: 8,
		Concurrency:      4,
		Logger:           slog.Default(),
	}
}

// Service checks price feeds through a FeedProber.
type Service struct {
	prober outbound.FeedProber
	config Config
	logger *slog.Logger
	now    func() time.Time
}

// NewService creates a new feed check service.
func NewService(prober outbound.FeedProber, config Config) (*Service, error) {
	if prober == nil {
		return nil, fmt.Errorf("feed prober is required")
	}

	defaults := ConfigDefaults()
	if config.MaxStaleness == 0 {
		config.MaxStaleness = defaults.MaxStaleness
	}
	if config.ExpectedDecimals == 0 {
		config.ExpectedDecimals = defaults.ExpectedDecimals
	}
	if config.Concurrency <= 0 {
		config.Concurrency = defaults.Concurrency
	}
	if config.Logger == nil {
		config.Logger = defaults.Logger
	}

	return &Service{
		prober: prober,
		config: config,
		logger: config.Logger.With("component", "feed-check"),
		now:    time.Now,
	}, nil
}

type probeResult struct {
	status *outbound.FeedStatus
	err    error
}

// Check probes each distinct feed of the submission once and returns one
// warning per affected listing, in canonical asset order. Probe failures are
// reported as warnings; the returned error is only set when ctx ends.
func (s *Service) Check(ctx context.Context, sub *entity.CanonicalSubmission) ([]listing_validator.Diagnostic, error) {
	listings := sub.SortedListings()

	var feeds []common.Address
	seen := make(map[common.Address]bool)
	for _, l := range listings {
		if !seen[l.PriceFeed] {
			seen[l.PriceFeed] = true
			feeds = append(feeds, l.PriceFeed)
		}
	}

	tracer := otel.Tracer(tracerName)
	ctx, span := tracer.Start(ctx, "feedCheck.check",
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(
			attribute.Int("feed_check.listings", len(listings)),
			attribute.Int("feed_check.feeds", len(feeds)),
		),
	)
	defer span.End()

	var mu sync.Mutex
	results := make(map[common.Address]probeResult, len(feeds))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.config.Concurrency)
	for _, feed := range feeds {
		g.Go(func() error {
			pctx, pspan := tracer.Start(gctx, "feedCheck.probe",
				trace.WithSpanKind(trace.SpanKindClient),
				trace.WithAttributes(attribute.String("feed.address", feed.Hex())),
			)
			status, err := s.prober.Probe(pctx, feed)
			if err != nil {
				pspan.RecordError(err)
				pspan.SetStatus(codes.Error, "probe failed")
			}
			pspan.End()

			mu.Lock()
			results[feed] = probeResult{status: status, err: err}
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	if err := ctx.Err(); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "feed check interrupted")
		return nil, fmt.Errorf("feed check interrupted: %w", err)
	}

	now := s.now()
	var out []listing_validator.Diagnostic
	for i := range listings {
		l := &listings[i]
		out = append(out, s.diagnose(l, results[l.PriceFeed], now)...)
	}

	span.SetAttributes(attribute.Int("feed_check.warnings", len(out)))
	s.logger.Info("feed check complete", "feeds", len(feeds), "warnings", len(out))
	return out, nil
}

func (s *Service) diagnose(l *entity.ResolvedListing, r probeResult, now time.Time) []listing_validator.Diagnostic {
	asset := l.AssetSymbol
	if asset == "" {
		asset = fmt.Sprintf("0x%x", l.Asset.Bytes())
	}
	warn := func(code listing_validator.Code, actual, expected, msg string) listing_validator.Diagnostic {
		return listing_validator.Diagnostic{
			Severity: listing_validator.SeverityWarning,
			Class:    listing_validator.ClassAdvisory,
			Code:     code,
			Asset:    asset,
			Field:    entity.FieldPriceFeed,
			Actual:   actual,
			Expected: expected,
			Message:  msg,
		}
	}

	feed := l.PriceFeed.Hex()
	if r.err != nil {
		s.logger.Warn("feed probe failed", "feed", feed, "asset", asset, "error", r.err)
		return []listing_validator.Diagnostic{
			warn(CodeFeedUnreachable, "", "", fmt.Sprintf("price feed %s could not be read: %v", feed, r.err)),
		}
	}
	if r.status == nil {
		return []listing_validator.Diagnostic{
			warn(CodeFeedUnreachable, "", "", fmt.Sprintf("price feed %s returned no data", feed)),
		}
	}

	var out []listing_validator.Diagnostic
	st := r.status
	if st.Answer == nil || st.Answer.Sign() <= 0 {
		actual := "<nil>"
		if st.Answer != nil {
			actual = st.Answer.String()
		}
		out = append(out, warn(CodeFeedNonPositive, actual, "> 0",
			fmt.Sprintf("price feed %s reports a non-positive answer", feed)))
	}
	if age := now.Sub(st.UpdatedAt); age > s.config.MaxStaleness {
		out = append(out, warn(CodeFeedStale, age.Truncate(time.Second).String(), "<= "+s.config.MaxStaleness.String(),
			fmt.Sprintf("price feed %s was last updated %s ago", feed, age.Truncate(time.Second))))
	}
	if st.Decimals != s.config.ExpectedDecimals {
		out = append(out, warn(CodeFeedUnexpectedScale, fmt.Sprint(st.Decimals), fmt.Sprint(s.config.ExpectedDecimals),
			fmt.Sprintf("price feed %s reports %d decimals", feed, st.Decimals)))
	}
	return out
}
