// Package main submits one listing document, either through a running
// listing API or directly through the configured collaborators.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/archon-research/stl-listing/internal/adapters/inbound/document"
	"github.com/archon-research/stl-listing/internal/application"
	"github.com/archon-research/stl-listing/internal/pkg/env"
	"github.com/archon-research/stl-listing/internal/services/listing_validator"
	listingsdk "github.com/archon-research/stl-listing/pkg/listing-sdk"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	logger := env.NewLogger(os.Stderr, slog.LevelInfo)
	slog.SetDefault(logger)

	if err := run(ctx, os.Args[1:], os.Stdout, logger); err != nil {
		logger.Error("submission failed", "error", err)
		os.Exit(1)
	}
}

type cliConfig struct {
	configPath string
	format     document.Format
	apiURL     string
	apiKey     string
}

func parseConfig(args []string) (cliConfig, error) {
	fs := flag.NewFlagSet("listing-submitter", flag.ContinueOnError)
	configPath := fs.String("config", "", "Listing configuration document")
	format := fs.String("format", "", "Document format, overrides the file extension: json, yaml or toml")
	apiURL := fs.String("api", "", "Listing API base URL; submits locally when empty")
	if err := fs.Parse(args); err != nil {
		return cliConfig{}, err
	}

	cfg := cliConfig{
		configPath: *configPath,
		apiURL:     *apiURL,
		apiKey:     env.Get("LISTING_API_KEY", ""),
	}
	if cfg.configPath == "" {
		cfg.configPath = env.Get("LISTING_CONFIG", "")
	}
	if cfg.configPath == "" {
		return cliConfig{}, fmt.Errorf("config document not provided (use -config flag or LISTING_CONFIG env var)")
	}
	if cfg.apiURL == "" {
		cfg.apiURL = env.Get("LISTING_API_URL", "")
	}

	var err error
	if *format != "" {
		cfg.format, err = document.ParseFormat(*format)
	} else {
		cfg.format, err = document.FormatFromPath(cfg.configPath)
	}
	if err != nil {
		return cliConfig{}, err
	}
	return cfg, nil
}

func run(ctx context.Context, args []string, stdout io.Writer, logger *slog.Logger) error {
	cfg, err := parseConfig(args)
	if err != nil {
		return err
	}

	data, err := os.ReadFile(cfg.configPath)
	if err != nil {
		return fmt.Errorf("reading document: %w", err)
	}

	var receipt any
	if cfg.apiURL != "" {
		receipt, err = submitRemote(ctx, cfg, data, logger)
	} else {
		receipt, err = submitLocal(ctx, cfg, data, logger)
	}
	if err != nil {
		return err
	}

	out, err := json.MarshalIndent(receipt, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling receipt: %w", err)
	}
	_, err = fmt.Fprintln(stdout, string(out))
	return err
}

func submitRemote(ctx context.Context, cfg cliConfig, data []byte, logger *slog.Logger) (*listingsdk.Receipt, error) {
	client, err := listingsdk.NewClient(listingsdk.ClientConfig{
		BaseURL: cfg.apiURL,
		APIKey:  cfg.apiKey,
		Logger:  logger,
	})
	if err != nil {
		return nil, err
	}

	receipt, err := client.Submit(ctx, data, string(cfg.format))
	if err != nil {
		var apiErr *listingsdk.APIError
		if errors.As(err, &apiErr) && apiErr.Report != nil {
			for _, d := range apiErr.Report.Errors {
				logger.Error("validation error", "group", d.Group, "asset", d.Asset, "field", d.Field, "message", d.Message)
			}
		}
		return nil, err
	}
	logger.Info("submitted", "digest", receipt.Digest.Hex(), "alreadyExisted", receipt.AlreadyExisted)
	return receipt, nil
}

func submitLocal(ctx context.Context, cfg cliConfig, data []byte, logger *slog.Logger) (any, error) {
	groups, err := document.Decode(bytes.NewReader(data), cfg.format)
	if err != nil {
		return nil, err
	}

	appCfg, err := application.ConfigFromEnv("listing-submitter")
	if err != nil {
		return nil, err
	}
	appCfg.Logger = logger

	app, err := application.New(ctx, appCfg)
	if err != nil {
		return nil, fmt.Errorf("assembling services: %w", err)
	}
	defer app.Close()

	receipt, err := app.Submissions.Submit(ctx, groups)
	if err != nil {
		var verr *listing_validator.ValidationError
		if errors.As(err, &verr) {
			for _, d := range verr.Report.Errors {
				logger.Error("validation error", "diagnostic", d.String(), "code", d.Code)
			}
		}
		return nil, err
	}
	logger.Info("submitted", "digest", receipt.Digest.Hex(), "alreadyExisted", receipt.AlreadyExisted)
	return receipt, nil
}
