// handler.go provides HTTP REST API handlers for the listing service.
//
// This inbound adapter exposes the service functionality over HTTP:
//   - POST /v1/listings/validate: Validate a listing document, 200 with the report
//   - POST /v1/listings/encode: Encode a listing document, 422 with the report on hard errors
//   - POST /v1/listings/submit: Store a listing document, 201 when new and 200 when already stored
//   - GET  /v1/submissions/{digest}: Fetch a stored submission
//   - GET  /v1/assets/{address}/submissions: Submission history of an asset
//
// Documents are JSON, YAML or TOML, picked by ?format= or the Content-Type header.
package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/go-chi/chi/v5"

	"github.com/archon-research/stl-listing/internal/adapters/inbound/document"
	"github.com/archon-research/stl-listing/internal/domain/entity"
	"github.com/archon-research/stl-listing/internal/pkg/engineabi"
	"github.com/archon-research/stl-listing/internal/ports/inbound"
	"github.com/archon-research/stl-listing/internal/services/feed_check"
	"github.com/archon-research/stl-listing/internal/services/listing_validator"
	"github.com/archon-research/stl-listing/internal/services/submission"
)

// Compile-time checks that the services implement the inbound ports.
var (
	_ inbound.ListingService    = (*listing_validator.Service)(nil)
	_ inbound.FeedChecker       = (*feed_check.Service)(nil)
	_ inbound.SubmissionService = (*submission.Service)(nil)
)

// DefaultMaxBodyBytes caps the size of an uploaded listing document.
const DefaultMaxBodyBytes = 1 << 20

// HandlerConfig holds configuration for the API handler.
type HandlerConfig struct {
	// Listings validates and encodes documents. Required.
	Listings inbound.ListingService

	// Submissions stores submissions. Optional; submission routes answer 503 without it.
	Submissions inbound.SubmissionService

	// Feeds probes price feeds when a request asks for ?checkFeeds=true. Optional.
	Feeds inbound.FeedChecker

	// Pool, when set, adds listAssets calldata to encode responses.
	Pool *engineabi.PoolContext

	// MaxBodyBytes caps request bodies. Defaults to DefaultMaxBodyBytes.
	MaxBodyBytes int64

	// Logger is the structured logger.
	Logger *slog.Logger
}

// Handler implements HTTP handlers for the API.
type Handler struct {
	listings     inbound.ListingService
	submissions  inbound.SubmissionService
	feeds        inbound.FeedChecker
	pool         *engineabi.PoolContext
	maxBodyBytes int64
	logger       *slog.Logger
}

// NewHandler creates a new HTTP handler.
func NewHandler(config HandlerConfig) (*Handler, error) {
	if config.Listings == nil {
		return nil, errors.New("listing service is required")
	}
	if config.MaxBodyBytes <= 0 {
		config.MaxBodyBytes = DefaultMaxBodyBytes
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	return &Handler{
		listings:     config.Listings,
		submissions:  config.Submissions,
		feeds:        config.Feeds,
		pool:         config.Pool,
		maxBodyBytes: config.MaxBodyBytes,
		logger:       config.Logger.With("component", "http-handler"),
	}, nil
}

// RegisterRoutes registers the API routes on r.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/v1", func(r chi.Router) {
		r.Route("/listings", func(r chi.Router) {
			r.Post("/validate", h.Validate)
			r.Post("/encode", h.Encode)
			r.Post("/submit", h.Submit)
		})
		r.Get("/submissions/{digest}", h.GetSubmission)
		r.Get("/assets/{address}/submissions", h.ListAssetSubmissions)
	})
}

// EncodeResponse is the body of a successful encode.
type EncodeResponse struct {
	Digest     common.Hash                    `json:"digest"`
	Submission json.RawMessage                `json:"submission"`
	Calldata   string                         `json:"calldata,omitempty"`
	Warnings   []listing_validator.Diagnostic `json:"warnings"`
}

// SubmissionResponse is a stored submission.
type SubmissionResponse struct {
	Digest     common.Hash      `json:"digest"`
	Assets     []common.Address `json:"assets"`
	Warnings   int              `json:"warnings"`
	CreatedAt  time.Time        `json:"createdAt"`
	Submission json.RawMessage  `json:"submission"`
}

// ErrorResponse is the body of a failed request.
type ErrorResponse struct {
	Error string `json:"error"`
	// Group, Index and Field locate document decoding failures.
	Group string `json:"group,omitempty"`
	Index *int   `json:"index,omitempty"`
	Field string `json:"field,omitempty"`
}

// Validate handles POST /v1/listings/validate.
func (h *Handler) Validate(w http.ResponseWriter, r *http.Request) {
	groups, ok := h.decodeDocument(w, r)
	if !ok {
		return
	}

	if !h.wantFeedCheck(r) {
		h.respondJSON(w, http.StatusOK, h.listings.Validate(r.Context(), groups))
		return
	}

	// Feed checks need the canonical submission; Encode validates once and
	// carries the report either way.
	enc, err := h.listings.Encode(r.Context(), groups)
	if err != nil {
		var verr *listing_validator.ValidationError
		if errors.As(err, &verr) {
			h.respondJSON(w, http.StatusOK, verr.Report)
			return
		}
		h.respondServiceError(w, err)
		return
	}
	if !h.checkFeeds(w, r, enc.Submission, enc.Report) {
		return
	}
	h.respondJSON(w, http.StatusOK, enc.Report)
}

// Encode handles POST /v1/listings/encode.
func (h *Handler) Encode(w http.ResponseWriter, r *http.Request) {
	groups, ok := h.decodeDocument(w, r)
	if !ok {
		return
	}

	enc, err := h.listings.Encode(r.Context(), groups)
	if err != nil {
		h.respondServiceError(w, err)
		return
	}
	if h.wantFeedCheck(r) && !h.checkFeeds(w, r, enc.Submission, enc.Report) {
		return
	}

	resp := EncodeResponse{
		Digest:     enc.Digest,
		Submission: enc.Canonical,
		Warnings:   enc.Report.Warnings,
	}
	if h.pool != nil {
		calldata, err := engineabi.PackListAssets(*h.pool, enc.Submission)
		if err != nil {
			h.logger.Error("failed to pack calldata", "digest", enc.Digest.Hex(), "error", err)
			h.respondError(w, http.StatusInternalServerError, "failed to build calldata")
			return
		}
		resp.Calldata = hexutil.Encode(calldata)
	}
	h.respondJSON(w, http.StatusOK, resp)
}

// Submit handles POST /v1/listings/submit.
func (h *Handler) Submit(w http.ResponseWriter, r *http.Request) {
	if h.submissions == nil {
		h.respondError(w, http.StatusServiceUnavailable, "submissions are not configured")
		return
	}
	groups, ok := h.decodeDocument(w, r)
	if !ok {
		return
	}

	receipt, err := h.submissions.Submit(r.Context(), groups)
	if err != nil {
		h.respondServiceError(w, err)
		return
	}

	status := http.StatusCreated
	if receipt.AlreadyExisted {
		status = http.StatusOK
	}
	h.respondJSON(w, status, receipt)
}

// GetSubmission handles GET /v1/submissions/{digest}.
func (h *Handler) GetSubmission(w http.ResponseWriter, r *http.Request) {
	if h.submissions == nil {
		h.respondError(w, http.StatusServiceUnavailable, "submissions are not configured")
		return
	}
	raw := chi.URLParam(r, "digest")
	digestBytes, err := hexutil.Decode(raw)
	if err != nil || len(digestBytes) != common.HashLength {
		h.respondError(w, http.StatusBadRequest, fmt.Sprintf("invalid digest %q: want 0x-prefixed 32-byte hex", raw))
		return
	}

	rec, err := h.submissions.Get(r.Context(), common.BytesToHash(digestBytes))
	if err != nil {
		h.respondServiceError(w, err)
		return
	}
	h.respondJSON(w, http.StatusOK, toSubmissionResponse(rec))
}

// ListAssetSubmissions handles GET /v1/assets/{address}/submissions.
func (h *Handler) ListAssetSubmissions(w http.ResponseWriter, r *http.Request) {
	if h.submissions == nil {
		h.respondError(w, http.StatusServiceUnavailable, "submissions are not configured")
		return
	}
	raw := chi.URLParam(r, "address")
	if !common.IsHexAddress(raw) {
		h.respondError(w, http.StatusBadRequest, fmt.Sprintf("invalid address %q", raw))
		return
	}

	recs, err := h.submissions.History(r.Context(), common.HexToAddress(raw))
	if err != nil {
		h.respondServiceError(w, err)
		return
	}
	out := make([]SubmissionResponse, len(recs))
	for i, rec := range recs {
		out[i] = toSubmissionResponse(rec)
	}
	h.respondJSON(w, http.StatusOK, out)
}

func toSubmissionResponse(rec *entity.SubmissionRecord) SubmissionResponse {
	return SubmissionResponse{
		Digest:     rec.Digest,
		Assets:     rec.Assets,
		Warnings:   rec.Warnings,
		CreatedAt:  rec.CreatedAt,
		Submission: rec.Payload,
	}
}

// decodeDocument reads the request body as a listing document. On failure it
// writes the response and returns false.
func (h *Handler) decodeDocument(w http.ResponseWriter, r *http.Request) ([]entity.MarketGroup, bool) {
	format, err := requestFormat(r)
	if err != nil {
		h.respondError(w, http.StatusUnsupportedMediaType, err.Error())
		return nil, false
	}

	body := http.MaxBytesReader(w, r.Body, h.maxBodyBytes)
	groups, err := document.Decode(body, format)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			h.respondError(w, http.StatusRequestEntityTooLarge, fmt.Sprintf("document exceeds %d bytes", tooLarge.Limit))
			return nil, false
		}
		resp := ErrorResponse{Error: err.Error()}
		var derr *document.DecodeError
		if errors.As(err, &derr) {
			resp.Group = derr.Group
			resp.Field = derr.Field
			if derr.Index >= 0 {
				idx := derr.Index
				resp.Index = &idx
			}
		}
		h.respondJSON(w, http.StatusBadRequest, resp)
		return nil, false
	}
	return groups, true
}

// requestFormat picks the document format from ?format=, then Content-Type.
// A request with neither is read as JSON.
func requestFormat(r *http.Request) (document.Format, error) {
	if f := r.URL.Query().Get("format"); f != "" {
		return document.ParseFormat(f)
	}
	if ct := r.Header.Get("Content-Type"); ct != "" {
		return document.FormatFromContentType(ct)
	}
	return document.FormatJSON, nil
}

func (h *Handler) wantFeedCheck(r *http.Request) bool {
	if h.feeds == nil {
		return false
	}
	v, err := strconv.ParseBool(r.URL.Query().Get("checkFeeds"))
	return err == nil && v
}

// checkFeeds merges feed warnings into report. On failure it writes the
// response and returns false.
func (h *Handler) checkFeeds(w http.ResponseWriter, r *http.Request, sub *entity.CanonicalSubmission, report *listing_validator.Report) bool {
	diags, err := h.feeds.Check(r.Context(), sub)
	if err != nil {
		h.logger.Warn("feed check interrupted", "error", err)
		h.respondError(w, http.StatusServiceUnavailable, "feed check interrupted")
		return false
	}
	report.AddWarnings(diags...)
	return true
}

// respondServiceError maps service errors onto status codes.
func (h *Handler) respondServiceError(w http.ResponseWriter, err error) {
	var verr *listing_validator.ValidationError
	switch {
	case errors.As(err, &verr):
		h.respondJSON(w, http.StatusUnprocessableEntity, verr.Report)
	case errors.Is(err, submission.ErrNotFound):
		h.respondError(w, http.StatusNotFound, err.Error())
	default:
		h.logger.Error("request failed", "error", err)
		h.respondError(w, http.StatusInternalServerError, "internal error")
	}
}

func (h *Handler) respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to encode JSON response", "error", err)
	}
}

func (h *Handler) respondError(w http.ResponseWriter, status int, message string) {
	h.respondJSON(w, status, ErrorResponse{Error: strings.TrimSpace(message)})
}
