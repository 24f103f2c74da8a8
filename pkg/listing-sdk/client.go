// Package listingsdk is a Go client for the listing API.
package listingsdk

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/archon-research/stl-listing/internal/pkg/retry"
)

// Document formats accepted by the API.
const (
	FormatJSON = "json"
	FormatYAML = "yaml"
	FormatTOML = "toml"
)

// Diagnostic is a single validation finding.
type Diagnostic struct {
	Severity      string   `json:"severity"`
	Class         string   `json:"class"`
	Code          string   `json:"code"`
	Group         string   `json:"group"`
	Asset         string   `json:"asset,omitempty"`
	Field         string   `json:"field,omitempty"`
	RelatedFields []string `json:"relatedFields,omitempty"`
	RelatedGroups []string `json:"relatedGroups,omitempty"`
	Actual        string   `json:"actual,omitempty"`
	Expected      string   `json:"expected,omitempty"`
	Message       string   `json:"message"`
}

// Report is the outcome of validating a document.
type Report struct {
	Groups   int          `json:"groups"`
	Listings int          `json:"listings"`
	Errors   []Diagnostic `json:"errors"`
	Warnings []Diagnostic `json:"warnings"`
}

// HasErrors reports whether the document has hard errors.
func (r *Report) HasErrors() bool {
	return len(r.Errors) > 0
}

// Encoded is a successfully encoded document.
type Encoded struct {
	Digest     common.Hash     `json:"digest"`
	Submission json.RawMessage `json:"submission"`
	Calldata   string          `json:"calldata,omitempty"`
	Warnings   []Diagnostic    `json:"warnings"`
}

// Receipt describes a stored submission.
type Receipt struct {
	Digest         common.Hash      `json:"digest"`
	Assets         []common.Address `json:"assets"`
	CreatedAt      time.Time        `json:"createdAt"`
	ArtifactKey    string           `json:"artifactKey,omitempty"`
	Calldata       string           `json:"calldata,omitempty"`
	Warnings       []Diagnostic     `json:"warnings"`
	AlreadyExisted bool             `json:"alreadyExisted"`
}

// APIError is a non-2xx response. Report is set when the document failed
// validation (422).
type APIError struct {
	StatusCode int
	Message    string
	Report     *Report
}

func (e *APIError) Error() string {
	if e.Report != nil {
		return fmt.Sprintf("listing api: status %d: %d errors, %d warnings",
			e.StatusCode, len(e.Report.Errors), len(e.Report.Warnings))
	}
	return fmt.Sprintf("listing api: status %d: %s", e.StatusCode, e.Message)
}

// ClientConfig holds configuration for the client.
type ClientConfig struct {
	// BaseURL is the API root, e.g. "http://localhost:8080".
	BaseURL string

	// APIKey is sent as a bearer token when set.
	APIKey string

	// HTTPClient defaults to a client with a 30s timeout.
	HTTPClient *http.Client

	// Retry controls retries of 429, 5xx and transport failures.
	Retry retry.Config

	// Logger is the structured logger.
	Logger *slog.Logger
}

// Client is the main entry point for the SDK
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	retry      retry.Config
	logger     *slog.Logger
}

// NewClient creates a client for the API at config.BaseURL.
func NewClient(config ClientConfig) (*Client, error) {
	if config.BaseURL == "" {
		return nil, errors.New("base URL is required")
	}
	if config.HTTPClient == nil {
		config.HTTPClient = &http.Client{Timeout: 30 * time.Second}
	}
	if config.Retry.MaxRetries == 0 && config.Retry.InitialBackoff == 0 {
		config.Retry = retry.DefaultConfig()
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	return &Client{
		baseURL:    strings.TrimRight(config.BaseURL, "/"),
		apiKey:     config.APIKey,
		httpClient: config.HTTPClient,
		retry:      config.Retry,
		logger:     config.Logger.With("component", "listing-sdk"),
	}, nil
}

// Validate validates a document. Hard errors are reported in the Report, not
// as an error.
func (c *Client) Validate(ctx context.Context, document []byte, format string) (*Report, error) {
	var report Report
	if err := c.post(ctx, "/v1/listings/validate", document, format, &report); err != nil {
		return nil, err
	}
	return &report, nil
}

// Encode encodes a document. A document with hard errors returns an
// *APIError carrying the report.
func (c *Client) Encode(ctx context.Context, document []byte, format string) (*Encoded, error) {
	var enc Encoded
	if err := c.post(ctx, "/v1/listings/encode", document, format, &enc); err != nil {
		return nil, err
	}
	return &enc, nil
}

// Submit stores a document. Resubmitting an equivalent document returns the
// existing receipt with AlreadyExisted set.
func (c *Client) Submit(ctx context.Context, document []byte, format string) (*Receipt, error) {
	var receipt Receipt
	if err := c.post(ctx, "/v1/listings/submit", document, format, &receipt); err != nil {
		return nil, err
	}
	return &receipt, nil
}

func (c *Client) post(ctx context.Context, path string, document []byte, format string, out any) error {
	url := c.baseURL + path
	if format != "" {
		url += "?format=" + format
	}

	onRetry := func(attempt int, err error, backoff time.Duration) {
		c.logger.Warn("retrying request", "path", path, "attempt", attempt, "backoff", backoff, "error", err)
	}

	return retry.DoVoid(ctx, c.retry, nil, onRetry, func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(document))
		if err != nil {
			return retry.Permanent(fmt.Errorf("creating request: %w", err))
		}
		if c.apiKey != "" {
			req.Header.Set("Authorization", "Bearer "+c.apiKey)
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return fmt.Errorf("request failed: %w", err)
		}
		defer resp.Body.Close()

		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("reading response: %w", err)
		}

		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			if err := json.Unmarshal(body, out); err != nil {
				return retry.Permanent(fmt.Errorf("decoding response: %w", err))
			}
			return nil
		}

		apiErr := parseError(resp.StatusCode, body)
		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			return apiErr
		}
		return retry.Permanent(apiErr)
	})
}

func parseError(status int, body []byte) *APIError {
	apiErr := &APIError{StatusCode: status}
	if status == http.StatusUnprocessableEntity {
		var report Report
		if err := json.Unmarshal(body, &report); err == nil {
			apiErr.Report = &report
			apiErr.Message = "document failed validation"
			return apiErr
		}
	}
	var e struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(body, &e); err == nil && e.Error != "" {
		apiErr.Message = e.Error
	} else {
		apiErr.Message = strings.TrimSpace(string(body))
	}
	return apiErr
}
