package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/archon-research/stl-listing/internal/services/listing_validator"
)

const (
	exampleConfig = "../../configs/listings.example.yaml"
	sampleConfig  = "../../internal/adapters/inbound/document/testdata/sample.yaml"
	validJSON     = "../../internal/adapters/inbound/document/testdata/valid.json"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestParseConfig(t *testing.T) {
	tests := []struct {
		name      string
		args      []string
		envVars   map[string]string
		check     func(t *testing.T, cfg cliConfig)
		wantError string
	}{
		{
			name: "defaults",
			args: []string{"-config", "listing.yaml"},
			check: func(t *testing.T, cfg cliConfig) {
				if cfg.output != "text" || cfg.network.NetworkName != "Ethereum" || cfg.network.NetworkAbbreviation != "Eth" {
					t.Errorf("unexpected defaults %+v", cfg)
				}
			},
		},
		{
			name:    "config and network from env",
			args:    nil,
			envVars: map[string]string{"LISTING_CONFIG": "env.yaml", "NETWORK_NAME": "Gnosis", "NETWORK_ABBREVIATION": "Gno"},
			check: func(t *testing.T, cfg cliConfig) {
				if cfg.configPath != "env.yaml" || cfg.network.NetworkName != "Gnosis" || cfg.network.NetworkAbbreviation != "Gno" {
					t.Errorf("unexpected config %+v", cfg)
				}
			},
		},
		{
			name:    "flags override env",
			args:    []string{"-config", "a.toml", "-network", "Base", "-network-abbr", "Bas"},
			envVars: map[string]string{"NETWORK_NAME": "Gnosis"},
			check: func(t *testing.T, cfg cliConfig) {
				if cfg.network.NetworkName != "Base" || cfg.network.NetworkAbbreviation != "Bas" {
					t.Errorf("unexpected network %+v", cfg.network)
				}
			},
		},
		{
			name:    "check feeds reads RPC_URL",
			args:    []string{"-config", "a.yaml", "-check-feeds"},
			envVars: map[string]string{"RPC_URL": "http://localhost:8545"},
			check: func(t *testing.T, cfg cliConfig) {
				if cfg.rpcURL != "http://localhost:8545" {
					t.Errorf("unexpected rpc url %q", cfg.rpcURL)
				}
			},
		},
		{
			name:      "missing config",
			wantError: "config document not provided",
		},
		{
			name:      "bad output",
			args:      []string{"-config", "a.yaml", "-output", "xml"},
			wantError: "unknown output format",
		},
		{
			name:      "bad format",
			args:      []string{"-config", "a.yaml", "-format", "ini"},
			wantError: "unknown document format",
		},
		{
			name:      "check feeds without RPC_URL",
			args:      []string{"-config", "a.yaml", "-check-feeds"},
			wantError: "RPC_URL",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for _, key := range []string{"LISTING_CONFIG", "NETWORK_NAME", "NETWORK_ABBREVIATION", "RPC_URL", "REDIS_ADDR"} {
				t.Setenv(key, "")
			}
			for k, v := range tt.envVars {
				t.Setenv(k, v)
			}

			cfg, err := parseConfig(tt.args)
			if tt.wantError != "" {
				if err == nil || !strings.Contains(err.Error(), tt.wantError) {
					t.Fatalf("expected error containing %q, got %v", tt.wantError, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			tt.check(t, cfg)
		})
	}
}

func TestRun_ExampleConfigPasses(t *testing.T) {
	cfg, err := parseConfig([]string{"-config", exampleConfig, "-calldata"})
	if err != nil {
		t.Fatalf("parseConfig failed: %v", err)
	}

	var out bytes.Buffer
	if err := run(t.Context(), cfg, &out, discardLogger()); err != nil {
		t.Fatalf("run failed: %v\n%s", err, out.String())
	}

	text := out.String()
	for _, want := range []string{"RESULT: PASSED", "DIGEST:   0x", "CALLDATA: 0x"} {
		if !strings.Contains(text, want) {
			t.Errorf("expected output to contain %q:\n%s", want, text)
		}
	}
}

func TestRun_HardErrorsExitNonZero(t *testing.T) {
	cfg, err := parseConfig([]string{"-config", sampleConfig, "-output", "json", "-calldata"})
	if err != nil {
		t.Fatalf("parseConfig failed: %v", err)
	}

	var out bytes.Buffer
	err = run(t.Context(), cfg, &out, discardLogger())
	if !errors.Is(err, errHardErrors) {
		t.Fatalf("expected errHardErrors, got %v", err)
	}

	var res result
	if err := json.Unmarshal(out.Bytes(), &res); err != nil {
		t.Fatalf("output is not JSON: %v\n%s", err, out.String())
	}
	if !res.Report.HasErrors() {
		t.Error("expected errors in the report")
	}
	if res.Calldata != "" || res.Digest != "" {
		t.Error("expected no encoding when the document has hard errors")
	}
}

func TestRun_EncodeOut(t *testing.T) {
	outPath := filepath.Join(t.TempDir(), "submission.json")
	cfg, err := parseConfig([]string{"-config", validJSON, "-encode-out", outPath, "-output", "json"})
	if err != nil {
		t.Fatalf("parseConfig failed: %v", err)
	}

	var out bytes.Buffer
	if err := run(t.Context(), cfg, &out, discardLogger()); err != nil {
		t.Fatalf("run failed: %v", err)
	}

	data, err := os.ReadFile(outPath)
	if err != nil {
		t.Fatalf("expected canonical file: %v", err)
	}
	sub, err := listing_validator.DecodeSubmission(data)
	if err != nil {
		t.Fatalf("canonical file does not decode: %v", err)
	}
	if len(sub.Listings) != 4 {
		t.Errorf("expected 4 listings, got %d", len(sub.Listings))
	}

	var res result
	if err := json.Unmarshal(out.Bytes(), &res); err != nil {
		t.Fatalf("output is not JSON: %v", err)
	}
	if res.Digest != listing_validator.Digest(data).Hex() {
		t.Errorf("digest %s does not match file", res.Digest)
	}
}

func TestRun_FormatOverride(t *testing.T) {
	// A YAML document under a .json name decodes with -format yaml.
	path := filepath.Join(t.TempDir(), "listing.json")
	data, err := os.ReadFile(exampleConfig)
	if err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := parseConfig([]string{"-config", path, "-format", "yaml"})
	if err != nil {
		t.Fatalf("parseConfig failed: %v", err)
	}
	if err := run(t.Context(), cfg, io.Discard, discardLogger()); err != nil {
		t.Fatalf("run failed: %v", err)
	}
}
