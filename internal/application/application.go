// Package application assembles the listing services and their adapters from
// configuration. Every collaborator without configuration falls back to its
// in-memory adapter, so a bare process still validates, encodes and stores.
package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	awss3 "github.com/aws/aws-sdk-go-v2/service/s3"
	awssns "github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/archon-research/stl-listing/internal/adapters/outbound/ethereum"
	"github.com/archon-research/stl-listing/internal/adapters/outbound/memory"
	"github.com/archon-research/stl-listing/internal/adapters/outbound/postgres"
	"github.com/archon-research/stl-listing/internal/adapters/outbound/redis"
	"github.com/archon-research/stl-listing/internal/adapters/outbound/s3"
	"github.com/archon-research/stl-listing/internal/adapters/outbound/sns"
	"github.com/archon-research/stl-listing/internal/adapters/outbound/telemetry"
	"github.com/archon-research/stl-listing/internal/pkg/engineabi"
	"github.com/archon-research/stl-listing/internal/pkg/env"
	"github.com/archon-research/stl-listing/internal/ports/outbound"
	"github.com/archon-research/stl-listing/internal/services/feed_check"
	"github.com/archon-research/stl-listing/internal/services/listing_validator"
	"github.com/archon-research/stl-listing/internal/services/submission"
)

// Config holds the collaborator wiring of a process.
type Config struct {
	// ServiceName names the process in metrics.
	ServiceName    string
	ServiceVersion string
	Environment    string

	// DatabaseURL selects the PostgreSQL store. Empty uses memory.
	DatabaseURL string

	// AWSRegion is used by S3 and SNS.
	AWSRegion string

	// S3Bucket selects the S3 artifact archive. Empty uses memory.
	S3Bucket   string
	S3Endpoint string

	// SNSTopicARN selects SNS notifications. Empty uses memory.
	SNSTopicARN string
	SNSEndpoint string

	// RPCURL enables feed checks. Empty disables them.
	RPCURL string

	// RedisAddr selects the Redis feed cache. Empty uses memory.
	RedisAddr     string
	RedisPassword string
	FeedCacheTTL  time.Duration

	// Network is passed to listAssets. An empty NetworkName omits calldata.
	Network engineabi.PoolContext

	// OTLPEndpoint enables metric and trace export. Empty keeps the no-op providers.
	OTLPEndpoint string

	// TraceStdout prints spans to stdout when no OTLP endpoint is set.
	TraceStdout bool

	// Logger is the structured logger.
	Logger *slog.Logger
}

// ConfigFromEnv reads the wiring from environment variables.
func ConfigFromEnv(serviceName string) (Config, error) {
	ttl, err := env.GetDuration("FEED_CACHE_TTL", redis.ConfigDefaults().TTL)
	if err != nil {
		return Config{}, err
	}
	traceStdout, err := env.GetBool("OTEL_TRACES_STDOUT", false)
	if err != nil {
		return Config{}, err
	}
	return Config{
		ServiceName:    serviceName,
		ServiceVersion: env.Get("SERVICE_VERSION", "dev"),
		Environment:    env.Get("ENVIRONMENT", "development"),
		DatabaseURL:    env.Get("DATABASE_URL", ""),
		AWSRegion:      env.Get("AWS_REGION", "eu-west-1"),
		S3Bucket:       env.Get("S3_BUCKET", ""),
		S3Endpoint:     env.Get("AWS_S3_ENDPOINT", ""),
		SNSTopicARN:    env.Get("SNS_TOPIC_ARN", ""),
		SNSEndpoint:    env.Get("AWS_SNS_ENDPOINT", ""),
		RPCURL:         env.Get("RPC_URL", ""),
		RedisAddr:      env.Get("REDIS_ADDR", ""),
		RedisPassword:  env.Get("REDIS_PASSWORD", ""),
		FeedCacheTTL:   ttl,
		Network: engineabi.PoolContext{
			NetworkName:         env.Get("NETWORK_NAME", "Ethereum"),
			NetworkAbbreviation: env.Get("NETWORK_ABBREVIATION", "Eth"),
		},
		OTLPEndpoint: env.Get("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
		TraceStdout:  traceStdout,
	}, nil
}

// App holds the assembled services.
type App struct {
	Validator   *listing_validator.Service
	Submissions *submission.Service

	// Feeds is nil when no RPC endpoint is configured.
	Feeds *feed_check.Service

	// Pool is nil when no network is configured.
	Pool *engineabi.PoolContext

	// Checks pings the configured backing stores, keyed by name.
	Checks map[string]func(ctx context.Context) error

	closers []func() error
	logger  *slog.Logger
}

// New assembles the services described by cfg. Close releases every
// connection it opened.
func New(ctx context.Context, cfg Config) (_ *App, err error) {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	logger := cfg.Logger
	app := &App{
		Checks: make(map[string]func(ctx context.Context) error),
		logger: logger.With("component", "application"),
	}
	defer func() {
		if err != nil {
			app.Close()
		}
	}()

	shutdownMetrics, err := telemetry.InitMetrics(ctx, telemetry.MetricConfig{
		ServiceName:    cfg.ServiceName,
		ServiceVersion: cfg.ServiceVersion,
		Environment:    cfg.Environment,
		OTLPEndpoint:   cfg.OTLPEndpoint,
	})
	if err != nil {
		return nil, fmt.Errorf("initializing metrics: %w", err)
	}
	app.closers = append(app.closers, func() error {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return shutdownMetrics(shutdownCtx)
	})

	shutdownTracer, err := telemetry.InitTracer(ctx, telemetry.TracerConfig{
		ServiceName:    cfg.ServiceName,
		ServiceVersion: cfg.ServiceVersion,
		Environment:    cfg.Environment,
		OTLPEndpoint:   cfg.OTLPEndpoint,
		Stdout:         cfg.TraceStdout,
	})
	if err != nil {
		return nil, fmt.Errorf("initializing tracer: %w", err)
	}
	app.closers = append(app.closers, func() error {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return shutdownTracer(shutdownCtx)
	})

	metrics, err := telemetry.NewMetrics(cfg.ServiceName)
	if err != nil {
		return nil, fmt.Errorf("creating metrics: %w", err)
	}

	app.Validator = listing_validator.NewService(listing_validator.ServiceConfig{
		Metrics: metrics,
		Logger:  logger,
	})

	if cfg.Network.NetworkName != "" {
		pool := cfg.Network
		app.Pool = &pool
	}

	repo, err := app.repository(ctx, cfg)
	if err != nil {
		return nil, err
	}
	artifacts, events, err := app.awsAdapters(ctx, cfg)
	if err != nil {
		return nil, err
	}

	app.Submissions, err = submission.NewService(submission.Config{
		Validator:  app.Validator,
		Repository: repo,
		Artifacts:  artifacts,
		Events:     events,
		Pool:       app.Pool,
		Metrics:    metrics,
		Logger:     logger,
	})
	if err != nil {
		return nil, fmt.Errorf("creating submission service: %w", err)
	}

	if cfg.RPCURL != "" {
		if app.Feeds, err = app.feedChecker(ctx, cfg); err != nil {
			return nil, err
		}
	} else {
		app.logger.Info("RPC_URL not set, feed checks disabled")
	}

	return app, nil
}

func (a *App) repository(ctx context.Context, cfg Config) (outbound.SubmissionRepository, error) {
	if cfg.DatabaseURL == "" {
		a.logger.Warn("DATABASE_URL not set, submissions are kept in memory")
		repo := memory.NewSubmissionRepository()
		a.Checks["repository"] = repo.HealthCheck
		return repo, nil
	}

	pool, err := postgres.OpenPool(ctx, postgres.DefaultDBConfig(cfg.DatabaseURL))
	if err != nil {
		return nil, fmt.Errorf("connecting to database: %w", err)
	}
	a.closers = append(a.closers, func() error { pool.Close(); return nil })
	a.Checks["postgres"] = pool.Ping
	a.logger.Info("PostgreSQL connected")

	repo, err := postgres.NewSubmissionRepository(pool, a.logger)
	if err != nil {
		return nil, fmt.Errorf("creating repository: %w", err)
	}
	return repo, nil
}

func (a *App) awsAdapters(ctx context.Context, cfg Config) (outbound.ArtifactArchive, outbound.EventSink, error) {
	var awsCfg aws.Config
	if cfg.S3Bucket != "" || cfg.SNSTopicARN != "" {
		var err error
		awsCfg, err = awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.AWSRegion))
		if err != nil {
			return nil, nil, fmt.Errorf("loading AWS config: %w", err)
		}
	}

	var artifacts outbound.ArtifactArchive
	if cfg.S3Bucket == "" {
		a.logger.Warn("S3_BUCKET not set, artifacts are kept in memory")
		artifacts = memory.NewArtifactStore()
	} else {
		var s3OptFns []func(*awss3.Options)
		if cfg.S3Endpoint != "" {
			s3OptFns = append(s3OptFns, func(o *awss3.Options) {
				o.BaseEndpoint = aws.String(cfg.S3Endpoint)
				o.UsePathStyle = true
			})
		}
		archive, err := s3.NewArtifactArchive(awsCfg, cfg.S3Bucket, a.logger, s3OptFns...)
		if err != nil {
			return nil, nil, fmt.Errorf("creating S3 archive: %w", err)
		}
		a.logger.Info("S3 archive configured", "bucket", archive.Bucket())
		artifacts = archive
	}

	var events outbound.EventSink
	if cfg.SNSTopicARN == "" {
		a.logger.Warn("SNS_TOPIC_ARN not set, events are kept in memory")
		events = memory.NewEventSink()
	} else {
		client := awssns.NewFromConfig(awsCfg, func(o *awssns.Options) {
			if cfg.SNSEndpoint != "" {
				o.BaseEndpoint = aws.String(cfg.SNSEndpoint)
			}
		})
		snsCfg := sns.ConfigDefaults()
		snsCfg.TopicARN = cfg.SNSTopicARN
		snsCfg.Logger = a.logger
		sink, err := sns.NewEventSink(client, snsCfg)
		if err != nil {
			return nil, nil, fmt.Errorf("creating SNS event sink: %w", err)
		}
		events = sink
	}
	a.closers = append(a.closers, events.Close)

	return artifacts, events, nil
}

func (a *App) feedChecker(ctx context.Context, cfg Config) (*feed_check.Service, error) {
	client, err := ethclient.DialContext(ctx, cfg.RPCURL)
	if err != nil {
		return nil, fmt.Errorf("connecting to Ethereum node: %w", err)
	}
	a.closers = append(a.closers, func() error { client.Close(); return nil })

	proberCfg := ethereum.ConfigDefaults()
	proberCfg.Logger = a.logger
	prober, err := ethereum.NewFeedProber(client, proberCfg)
	if err != nil {
		return nil, fmt.Errorf("creating feed prober: %w", err)
	}

	var cache outbound.FeedStatusCache
	if cfg.RedisAddr == "" {
		cache = memory.NewFeedCache(cfg.FeedCacheTTL)
	} else {
		redisCfg := redis.ConfigDefaults()
		redisCfg.Addr = cfg.RedisAddr
		redisCfg.Password = cfg.RedisPassword
		redisCfg.TTL = cfg.FeedCacheTTL
		rc, err := redis.NewFeedCache(redisCfg, a.logger)
		if err != nil {
			return nil, fmt.Errorf("creating feed cache: %w", err)
		}
		a.Checks["redis"] = rc.Ping
		cache = rc
	}
	a.closers = append(a.closers, cache.Close)

	checkCfg := feed_check.ConfigDefaults()
	checkCfg.Logger = a.logger
	return feed_check.NewService(redis.NewCachingProber(prober, cache, a.logger), checkCfg)
}

// Close releases connections in reverse order of opening.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
