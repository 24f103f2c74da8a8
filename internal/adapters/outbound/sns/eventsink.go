// Package sns implements the EventSink interface using AWS SNS.
//
// Each stored submission is announced on a single topic as a JSON message,
// so downstream consumers (payload builders, dashboards) can fetch the
// archived artifact. Messages carry eventType and digest attributes for
// subscription filtering.
//
// For testing, use the memory.EventSink adapter instead.
package sns

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/aws/aws-sdk-go-v2/service/sns/types"

	"github.com/archon-research/stl-listing/internal/pkg/retry"
	"github.com/archon-research/stl-listing/internal/ports/outbound"
)

// Compile-time check that EventSink implements outbound.EventSink
var _ outbound.EventSink = (*EventSink)(nil)

// SNSPublisher defines the subset of SNS client methods used by EventSink.
type SNSPublisher interface {
	Publish(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error)
}

// Config holds configuration for the SNS event sink.
type Config struct {
	// TopicARN is the topic submission events are published to.
	TopicARN string

	// Retry controls retries of transient publish failures.
	Retry retry.Config

	// Logger is the structured logger for the sink.
	Logger *slog.Logger
}

// ConfigDefaults returns a config with default values.
func ConfigDefaults() Config {
	return Config{
		Retry: retry.Config{
			MaxRetries:     3,
			InitialBackoff: 100 * time.Millisecond,
			MaxBackoff:     5 * time.Second,
			BackoffFactor:  2.0,
		},
		Logger: slog.Default(),
	}
}

// EventSink publishes events to AWS SNS.
type EventSink struct {
	client    SNSPublisher
	config    Config
	logger    *slog.Logger
	closeOnce sync.Once
	closed    bool
	mu        sync.RWMutex
}

// NewEventSink creates a new SNS event sink.
func NewEventSink(client SNSPublisher, config Config) (*EventSink, error) {
	if client == nil {
		return nil, errors.New("sns client is required")
	}
	if config.TopicARN == "" {
		return nil, errors.New("topic ARN is required")
	}

	defaults := ConfigDefaults()
	if config.Retry.MaxRetries == 0 {
		config.Retry.MaxRetries = defaults.Retry.MaxRetries
	}
	if config.Retry.InitialBackoff == 0 {
		config.Retry.InitialBackoff = defaults.Retry.InitialBackoff
	}
	if config.Retry.MaxBackoff == 0 {
		config.Retry.MaxBackoff = defaults.Retry.MaxBackoff
	}
	if config.Retry.BackoffFactor == 0 {
		config.Retry.BackoffFactor = defaults.Retry.BackoffFactor
	}
	if config.Logger == nil {
		config.Logger = defaults.Logger
	}

	return &EventSink{
		client: client,
		config: config,
		logger: config.Logger.With("component", "sns-eventsink"),
	}, nil
}

// Publish publishes an event to SNS.
func (s *EventSink) Publish(ctx context.Context, event outbound.Event) error {
	s.mu.RLock()
	if s.closed {
		s.mu.RUnlock()
		return errors.New("event sink is closed")
	}
	s.mu.RUnlock()

	messageBytes, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	input := &sns.PublishInput{
		TopicArn: aws.String(s.config.TopicARN),
		Message:  aws.String(string(messageBytes)),
		MessageAttributes: map[string]types.MessageAttributeValue{
			"eventType": {
				DataType:    aws.String("String"),
				StringValue: aws.String(string(event.EventType())),
			},
			"digest": {
				DataType:    aws.String("String"),
				StringValue: aws.String(event.GetDigest()),
			},
		},
	}

	onRetry := func(attempt int, err error, backoff time.Duration) {
		s.logger.Warn("request failed, retrying",
			"attempt", attempt,
			"maxRetries", s.config.Retry.MaxRetries,
			"backoff", backoff,
			"error", err,
			"eventType", event.EventType(),
			"digest", event.GetDigest(),
		)
	}

	err = retry.DoVoid(ctx, s.config.Retry, isRetryableError, onRetry, func() error {
		_, err := s.client.Publish(ctx, input)
		return err
	})
	if err != nil {
		s.logger.Error("publish failed", "error", err, "eventType", event.EventType(), "digest", event.GetDigest())
		return fmt.Errorf("failed to publish to SNS: %w", err)
	}
	return nil
}

// isRetryableError determines if an error should trigger a retry.
func isRetryableError(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	// Misconfiguration will not fix itself.
	var notFound *types.NotFoundException
	if errors.As(err, &notFound) {
		return false
	}
	var authErr *types.AuthorizationErrorException
	if errors.As(err, &authErr) {
		return false
	}
	var invalidParam *types.InvalidParameterException
	if errors.As(err, &invalidParam) {
		return false
	}

	// Throttling, internal errors and network issues are transient.
	return true
}

// Close marks the sink as closed and prevents further publishing.
func (s *EventSink) Close() error {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.closed = true
		s.mu.Unlock()
		s.logger.Info("SNS event sink closed")
	})
	return nil
}
