// Package main runs the listing HTTP API.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"runtime/debug"
	"strings"
	"sync/atomic"
	"syscall"
	"time"

	apihttp "github.com/archon-research/stl-listing/internal/adapters/inbound/http"
	"github.com/archon-research/stl-listing/internal/application"
	"github.com/archon-research/stl-listing/internal/pkg/env"
	"github.com/archon-research/stl-listing/internal/ports/inbound"
)

// Build-time variables - can be set via ldflags, otherwise populated from Go's build info.
var (
	GitCommit string
	GitBranch string
	BuildTime string
)

func init() {
	if info, ok := debug.ReadBuildInfo(); ok {
		for _, setting := range info.Settings {
			switch setting.Key {
			case "vcs.revision":
				if GitCommit == "" {
					GitCommit = setting.Value
				}
			case "vcs.time":
				if BuildTime == "" {
					BuildTime = setting.Value
				}
			}
		}
	}
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, os.Args[1:]); err != nil {
		slog.Error("fatal", "error", err)
		os.Exit(1)
	}
}

type cliConfig struct {
	server        apihttp.ServerConfig
	maxBodyBytes  int64
	drainDelay    time.Duration
	shutdownAfter time.Duration
}

func parseConfig(args []string) (cliConfig, error) {
	defaults := apihttp.ServerConfigDefaults()

	fs := flag.NewFlagSet("listing-api", flag.ContinueOnError)
	addr := fs.String("addr", env.Get("HTTP_ADDR", defaults.Addr), "Listen address")
	if err := fs.Parse(args); err != nil {
		return cliConfig{}, err
	}

	rpm, err := env.GetInt("RATE_LIMIT_RPM", 600)
	if err != nil {
		return cliConfig{}, err
	}
	requestTimeout, err := env.GetDuration("REQUEST_TIMEOUT", defaults.RequestTimeout)
	if err != nil {
		return cliConfig{}, err
	}
	maxBody, err := env.GetInt("MAX_BODY_BYTES", apihttp.DefaultMaxBodyBytes)
	if err != nil {
		return cliConfig{}, err
	}
	drainDelay, err := env.GetDuration("SHUTDOWN_DRAIN_DELAY", 5*time.Second)
	if err != nil {
		return cliConfig{}, err
	}

	server := defaults
	server.Addr = *addr
	server.RequestTimeout = requestTimeout
	server.RateLimitRPM = rpm
	server.CORSOrigins = splitList(env.Get("CORS_ORIGINS", ""))
	server.APIKeys = splitList(env.Get("LISTING_API_KEYS", ""))

	return cliConfig{
		server:        server,
		maxBodyBytes:  int64(maxBody),
		drainDelay:    drainDelay,
		shutdownAfter: 25 * time.Second,
	}, nil
}

// splitList parses a comma-separated value, dropping blanks.
func splitList(raw string) []string {
	var out []string
	for _, v := range strings.Split(raw, ",") {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}

func run(ctx context.Context, args []string) error {
	cfg, err := parseConfig(args)
	if err != nil {
		return err
	}

	logger := env.NewLogger(os.Stdout, slog.LevelInfo)
	slog.SetDefault(logger)
	logger.Info("starting listing api", "commit", GitCommit, "addr", cfg.server.Addr)
	if len(cfg.server.APIKeys) == 0 {
		logger.Warn("LISTING_API_KEYS not set, API routes are unauthenticated")
	}

	appCfg, err := application.ConfigFromEnv("listing-api")
	if err != nil {
		return err
	}
	appCfg.ServiceVersion = env.Get("SERVICE_VERSION", GitCommit)
	appCfg.Logger = logger

	app, err := application.New(ctx, appCfg)
	if err != nil {
		return fmt.Errorf("assembling services: %w", err)
	}
	defer func() {
		if err := app.Close(); err != nil {
			logger.Error("error closing services", "error", err)
		}
	}()

	handler, err := apihttp.NewHandler(apihttp.HandlerConfig{
		Listings:     app.Validator,
		Submissions:  app.Submissions,
		Feeds:        feedChecker(app),
		Pool:         app.Pool,
		MaxBodyBytes: cfg.maxBodyBytes,
		Logger:       logger,
	})
	if err != nil {
		return fmt.Errorf("creating handler: %w", err)
	}

	checks := make(map[string]apihttp.DependencyCheck, len(app.Checks))
	for name, check := range app.Checks {
		checks[name] = check
	}
	var shuttingDown atomic.Bool
	health := apihttp.NewHealth(apihttp.NewDependencyChecker(checks, 2*time.Second, logger), &shuttingDown, logger)

	cfg.server.Logger = logger
	server := apihttp.NewServer(cfg.server, handler, health)
	server.Start()

	<-ctx.Done()
	logger.Info("shutting down...")

	// Fail probes first so the load balancer stops routing before we stop accepting.
	shuttingDown.Store(true)
	time.Sleep(cfg.drainDelay)

	if err := server.Shutdown(cfg.shutdownAfter); err != nil {
		return fmt.Errorf("shutting down server: %w", err)
	}
	logger.Info("shutdown complete")
	return nil
}

// feedChecker avoids handing the handler a typed nil when feed checks are off.
func feedChecker(app *application.App) inbound.FeedChecker {
	if app.Feeds == nil {
		return nil
	}
	return app.Feeds
}
