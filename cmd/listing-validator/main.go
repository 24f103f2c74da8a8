// Package main provides a CLI that validates a reserve listing configuration
// document and optionally encodes it for the config engine.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/archon-research/stl-listing/internal/adapters/inbound/document"
	"github.com/archon-research/stl-listing/internal/adapters/outbound/ethereum"
	"github.com/archon-research/stl-listing/internal/adapters/outbound/redis"
	"github.com/archon-research/stl-listing/internal/domain/entity"
	"github.com/archon-research/stl-listing/internal/pkg/engineabi"
	"github.com/archon-research/stl-listing/internal/pkg/env"
	"github.com/archon-research/stl-listing/internal/ports/outbound"
	"github.com/archon-research/stl-listing/internal/services/feed_check"
	"github.com/archon-research/stl-listing/internal/services/listing_validator"
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

// errHardErrors is returned when the document has hard validation errors.
var errHardErrors = errors.New("document has hard validation errors")

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cfg, err := parseConfig(os.Args[1:])
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(0)
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	if cfg.showVersion {
		fmt.Printf("listing-validator\n")
		fmt.Printf("  Commit:     %s\n", GitCommit)
		fmt.Printf("  Branch:     %s\n", GitBranch)
		fmt.Printf("  Build Time: %s\n", BuildTime)
		os.Exit(0)
	}

	// Logs go to stderr so stdout carries only the report.
	logger := env.NewLogger(os.Stderr, slog.LevelWarn)
	slog.SetDefault(logger)

	if err := run(ctx, cfg, os.Stdout, logger); err != nil {
		if !errors.Is(err, errHardErrors) {
			logger.Error("validation failed", "error", err)
		}
		os.Exit(1)
	}
}

type cliConfig struct {
	configPath  string
	format      string
	output      string
	encodeOut   string
	calldata    bool
	checkFeeds  bool
	rpcURL      string
	redisAddr   string
	network     engineabi.PoolContext
	showVersion bool
}

func parseConfig(args []string) (cliConfig, error) {
	fs := flag.NewFlagSet("listing-validator", flag.ContinueOnError)
	configPath := fs.String("config", "", "Listing configuration document (.json, .yaml, .yml, .toml)")
	format := fs.String("format", "", "Document format, overrides the file extension: json, yaml or toml")
	output := fs.String("output", "text", "Output format: 'text' or 'json'")
	encodeOut := fs.String("encode-out", "", "Write the canonical submission to this file when valid")
	calldata := fs.Bool("calldata", false, "Print listAssets calldata when valid")
	checkFeeds := fs.Bool("check-feeds", false, "Probe every price feed on chain (requires RPC_URL)")
	network := fs.String("network", "", "Network name passed to listAssets")
	networkAbbr := fs.String("network-abbr", "", "Network abbreviation passed to listAssets")
	showVersion := fs.Bool("version", false, "Show version information and exit")
	if err := fs.Parse(args); err != nil {
		return cliConfig{}, err
	}

	cfg := cliConfig{
		configPath:  *configPath,
		format:      *format,
		output:      *output,
		encodeOut:   *encodeOut,
		calldata:    *calldata,
		checkFeeds:  *checkFeeds,
		showVersion: *showVersion,
		network: engineabi.PoolContext{
			NetworkName:         *network,
			NetworkAbbreviation: *networkAbbr,
		},
	}
	if cfg.showVersion {
		return cfg, nil
	}

	if cfg.configPath == "" {
		cfg.configPath = env.Get("LISTING_CONFIG", "")
	}
	if cfg.configPath == "" {
		return cliConfig{}, fmt.Errorf("config document not provided (use -config flag or LISTING_CONFIG env var)")
	}
	if cfg.output != "text" && cfg.output != "json" {
		return cliConfig{}, fmt.Errorf("unknown output format: %s (supported: text, json)", cfg.output)
	}
	if cfg.format != "" {
		if _, err := document.ParseFormat(cfg.format); err != nil {
			return cliConfig{}, err
		}
	}
	if cfg.network.NetworkName == "" {
		cfg.network.NetworkName = env.Get("NETWORK_NAME", "Ethereum")
	}
	if cfg.network.NetworkAbbreviation == "" {
		cfg.network.NetworkAbbreviation = env.Get("NETWORK_ABBREVIATION", "Eth")
	}
	if cfg.checkFeeds {
		cfg.rpcURL = env.Get("RPC_URL", "")
		if cfg.rpcURL == "" {
			return cliConfig{}, fmt.Errorf("RPC_URL environment variable is required with -check-feeds")
		}
		cfg.redisAddr = env.Get("REDIS_ADDR", "")
	}
	return cfg, nil
}

// result is the JSON output of the CLI.
type result struct {
	Report   *listing_validator.Report `json:"report"`
	Digest   string                    `json:"digest,omitempty"`
	Calldata string                    `json:"calldata,omitempty"`
}

func run(ctx context.Context, cfg cliConfig, stdout io.Writer, logger *slog.Logger) error {
	groups, err := decode(cfg)
	if err != nil {
		return err
	}

	svc := listing_validator.NewService(listing_validator.ServiceConfig{Logger: logger})
	res := result{Report: svc.Validate(ctx, groups)}

	if !res.Report.HasErrors() && (cfg.encodeOut != "" || cfg.calldata || cfg.checkFeeds) {
		enc, err := svc.Encode(ctx, groups)
		if err != nil {
			return fmt.Errorf("encoding: %w", err)
		}
		res.Digest = enc.Digest.Hex()

		if cfg.checkFeeds {
			diags, err := checkFeeds(ctx, cfg, enc.Submission, logger)
			if err != nil {
				return err
			}
			res.Report.AddWarnings(diags...)
		}
		if cfg.encodeOut != "" {
			if err := os.WriteFile(cfg.encodeOut, enc.Canonical, 0o644); err != nil {
				return fmt.Errorf("writing canonical submission: %w", err)
			}
			logger.Info("wrote canonical submission", "path", cfg.encodeOut, "digest", res.Digest)
		}
		if cfg.calldata {
			data, err := engineabi.PackListAssets(cfg.network, enc.Submission)
			if err != nil {
				return fmt.Errorf("packing calldata: %w", err)
			}
			res.Calldata = hexutil.Encode(data)
		}
	}

	if err := printResult(stdout, res, cfg.output); err != nil {
		return fmt.Errorf("printing report: %w", err)
	}
	if res.Report.HasErrors() {
		return errHardErrors
	}
	return nil
}

func decode(cfg cliConfig) ([]entity.MarketGroup, error) {
	if cfg.format == "" {
		return document.DecodeFile(cfg.configPath)
	}
	format, err := document.ParseFormat(cfg.format)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(cfg.configPath)
	if err != nil {
		return nil, fmt.Errorf("opening document: %w", err)
	}
	defer f.Close()
	return document.Decode(f, format)
}

func checkFeeds(ctx context.Context, cfg cliConfig, sub *entity.CanonicalSubmission, logger *slog.Logger) ([]listing_validator.Diagnostic, error) {
	client, err := ethclient.DialContext(ctx, cfg.rpcURL)
	if err != nil {
		return nil, fmt.Errorf("connecting to Ethereum node: %w", err)
	}
	defer client.Close()

	proberCfg := ethereum.ConfigDefaults()
	proberCfg.Logger = logger
	var prober outbound.FeedProber
	prober, err = ethereum.NewFeedProber(client, proberCfg)
	if err != nil {
		return nil, fmt.Errorf("creating feed prober: %w", err)
	}

	if cfg.redisAddr != "" {
		cacheCfg := redis.ConfigDefaults()
		cacheCfg.Addr = cfg.redisAddr
		cache, err := redis.NewFeedCache(cacheCfg, logger)
		if err != nil {
			return nil, fmt.Errorf("creating feed cache: %w", err)
		}
		defer cache.Close()
		prober = redis.NewCachingProber(prober, cache, logger)
	}

	checkCfg := feed_check.ConfigDefaults()
	checkCfg.Logger = logger
	checker, err := feed_check.NewService(prober, checkCfg)
	if err != nil {
		return nil, fmt.Errorf("creating feed checker: %w", err)
	}
	return checker.Check(ctx, sub)
}

func printResult(w io.Writer, res result, format string) error {
	switch format {
	case "json":
		data, err := json.MarshalIndent(res, "", "  ")
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(w, string(data))
		return err
	case "text":
		if _, err := fmt.Fprint(w, res.Report.FormatText()); err != nil {
			return err
		}
		if res.Digest != "" {
			fmt.Fprintf(w, "DIGEST:   %s\n", res.Digest)
		}
		if res.Calldata != "" {
			fmt.Fprintf(w, "CALLDATA: %s\n", res.Calldata)
		}
		return nil
	default:
		return fmt.Errorf("unknown output format: %s (supported: text, json)", format)
	}
}
