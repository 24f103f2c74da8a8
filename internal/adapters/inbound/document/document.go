// Package document decodes listing documents into market groups.
//
// A document maps each group name to the array of listings in that group,
// in the same shape as the listing configuration the engine is driven from:
//
//	USDC/USDT:
//	  - asset: 0xea237441c92cae6fc17caaf9a7acb3f953be4bd1
//	    assetSymbol: USDC
//	    rateStrategyParams:
//	      optimalUsageRatio: 80_00
//	    ...
//
// JSON, YAML and TOML are accepted. Group order follows the document.
// Decoding is deliberately lenient about values that Validate reports on
// (missing keys, malformed addresses, unknown flag values) and strict about
// everything else: syntax errors, unknown keys and non-integer numbers fail.
package document

import (
	"bytes"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/archon-research/stl-listing/internal/domain/entity"
)

// Format is a document encoding.
type Format string

const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
	FormatTOML Format = "toml"
)

// ErrUnknownFormat is returned when a format cannot be determined.
var ErrUnknownFormat = errors.New("unknown document format")

// ParseFormat parses a format name. "yml" is accepted for YAML.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "json":
		return FormatJSON, nil
	case "yaml", "yml":
		return FormatYAML, nil
	case "toml":
		return FormatTOML, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownFormat, s)
}

// FormatFromPath picks the format from a file extension.
func FormatFromPath(path string) (Format, error) {
	ext := strings.TrimPrefix(filepath.Ext(path), ".")
	if ext == "" {
		return "", fmt.Errorf("%w: %s has no extension", ErrUnknownFormat, path)
	}
	return ParseFormat(ext)
}

// FormatFromContentType picks the format from an HTTP Content-Type header.
func FormatFromContentType(contentType string) (Format, error) {
	mediaType, _, _ := strings.Cut(contentType, ";")
	switch strings.ToLower(strings.TrimSpace(mediaType)) {
	case "application/json", "text/json":
		return FormatJSON, nil
	case "application/yaml", "application/x-yaml", "text/yaml", "text/x-yaml":
		return FormatYAML, nil
	case "application/toml", "text/toml":
		return FormatTOML, nil
	}
	return "", fmt.Errorf("%w: content type %q", ErrUnknownFormat, contentType)
}

// DecodeError locates a decoding failure within the document.
type DecodeError struct {
	Group string
	// Index is the listing's position within its group, or -1 for group-level errors.
	Index int
	Field string
	Err   error
}

func (e *DecodeError) Error() string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("group %q", e.Group))
	if e.Index >= 0 {
		sb.WriteString(fmt.Sprintf(" listing %d", e.Index))
	}
	if e.Field != "" {
		sb.WriteString(fmt.Sprintf(" field %s", e.Field))
	}
	sb.WriteString(": ")
	sb.WriteString(e.Err.Error())
	return sb.String()
}

func (e *DecodeError) Unwrap() error { return e.Err }

// Decode reads a whole document and converts it into market groups.
func Decode(r io.Reader, format Format) ([]entity.MarketGroup, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("reading document: %w", err)
	}

	var raw []rawGroup
	switch format {
	case FormatJSON:
		raw, err = decodeJSON(data)
	case FormatYAML:
		raw, err = decodeYAML(data)
	case FormatTOML:
		raw, err = decodeTOML(data)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownFormat, format)
	}
	if err != nil {
		return nil, err
	}

	groups := make([]entity.MarketGroup, 0, len(raw))
	for _, rg := range raw {
		g := entity.MarketGroup{Name: rg.name, Listings: make([]entity.ReserveListing, 0, len(rg.listings))}
		for i, rl := range rg.listings {
			l, err := buildListing(rl)
			if err != nil {
				var de *DecodeError
				if errors.As(err, &de) {
					de.Group, de.Index = rg.name, i
				}
				return nil, err
			}
			g.Listings = append(g.Listings, l)
		}
		groups = append(groups, g)
	}
	return groups, nil
}

// DecodeFile decodes the file at path, picking the format from its extension.
func DecodeFile(path string) ([]entity.MarketGroup, error) {
	format, err := FormatFromPath(path)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	groups, err := Decode(bytes.NewReader(data), format)
	if err != nil {
		return nil, fmt.Errorf("decoding %s: %w", path, err)
	}
	return groups, nil
}

// rawGroup and rawListing are the format-independent intermediate form.
// Scalars are kept as their source text.
type rawGroup struct {
	name     string
	listings []rawListing
}

type rawListing struct {
	fields map[string]string
	// rate is nil when rateStrategyParams is absent.
	rate map[string]string
}

var (
	listingKeys = map[string]bool{}
	rateKeys    = map[string]bool{}
)

func init() {
	prefix := entity.FieldRateStrategyParams + "."
	for _, f := range entity.RequiredFields() {
		if name, ok := strings.CutPrefix(f, prefix); ok {
			rateKeys[name] = true
			continue
		}
		listingKeys[f] = true
	}
	listingKeys[entity.FieldRateStrategyParams] = true
}

func unknownKey(key string) error {
	return &DecodeError{Index: -1, Field: key, Err: errors.New("unknown key")}
}

func buildListing(raw rawListing) (entity.ReserveListing, error) {
	var l entity.ReserveListing
	for _, field := range entity.RequiredFields() {
		var (
			value string
			ok    bool
		)
		if name, nested := strings.CutPrefix(field, entity.FieldRateStrategyParams+"."); nested {
			if raw.rate != nil {
				value, ok = raw.rate[name]
			}
		} else {
			value, ok = raw.fields[field]
		}
		if !ok {
			l.Absent = append(l.Absent, field)
			continue
		}
		if err := setField(&l, field, value); err != nil {
			return entity.ReserveListing{}, &DecodeError{Index: -1, Field: field, Err: err}
		}
	}
	return l, nil
}

func setField(l *entity.ReserveListing, field, value string) error {
	switch field {
	case entity.FieldAsset:
		l.Asset = parseAddress(l, field, value)
		return nil
	case entity.FieldPriceFeed:
		l.PriceFeed = parseAddress(l, field, value)
		return nil
	case entity.FieldAssetSymbol:
		l.AssetSymbol = value
		return nil
	case entity.FieldEnabledToBorrow:
		l.EnabledToBorrow = entity.Flag(value)
		return nil
	case entity.FieldFlashloanable:
		l.Flashloanable = entity.Flag(value)
		return nil
	case entity.FieldStableRateModeEnabled:
		l.StableRateModeEnabled = entity.Flag(value)
		return nil
	case entity.FieldBorrowableInIsolation:
		l.BorrowableInIsolation = entity.Flag(value)
		return nil
	case entity.FieldWithSiloedBorrowing:
		l.WithSiloedBorrowing = entity.Flag(value)
		return nil
	}

	n, err := parseInt(value)
	if err != nil {
		return err
	}
	switch field {
	case entity.FieldOptimalUsageRatio:
		l.RateStrategyParams.OptimalUsageRatio = n
	case entity.FieldBaseVariableBorrowRate:
		l.RateStrategyParams.BaseVariableBorrowRate = n
	case entity.FieldVariableRateSlope1:
		l.RateStrategyParams.VariableRateSlope1 = n
	case entity.FieldVariableRateSlope2:
		l.RateStrategyParams.VariableRateSlope2 = n
	case entity.FieldLTV:
		l.LTV = n
	case entity.FieldLiqThreshold:
		l.LiqThreshold = n
	case entity.FieldLiqBonus:
		l.LiqBonus = n
	case entity.FieldReserveFactor:
		l.ReserveFactor = n
	case entity.FieldLiqProtocolFee:
		l.LiqProtocolFee = n
	case entity.FieldSupplyCap:
		l.SupplyCap = n
	case entity.FieldBorrowCap:
		l.BorrowCap = n
	case entity.FieldDebtCeiling:
		l.DebtCeiling = n
	case entity.FieldEModeCategory:
		l.EModeCategory = n
	default:
		return fmt.Errorf("unhandled field")
	}
	return nil
}

// parseInt accepts decimal integers with optional digit grouping (80_00).
func parseInt(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, errors.New("empty integer")
	}
	digits := strings.TrimLeft(s, "+-")
	if strings.HasPrefix(digits, "_") || strings.HasSuffix(digits, "_") || strings.Contains(digits, "__") {
		return 0, fmt.Errorf("invalid integer %q", s)
	}
	n, err := strconv.ParseInt(strings.ReplaceAll(s, "_", ""), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid integer %q", s)
	}
	return n, nil
}

// parseAddress decodes as many hex bytes as it can. Text that is not valid
// hex is recorded on the listing so Validate can report it; a trailing odd
// nibble or a bad character must never pass as a truncated address.
func parseAddress(l *entity.ReserveListing, field, value string) []byte {
	s := strings.TrimSpace(value)
	s = strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X")
	b, err := hex.DecodeString(s)
	if err != nil {
		if l.Malformed == nil {
			l.Malformed = make(map[string]string, 2)
		}
		l.Malformed[field] = value
	}
	if b == nil {
		return []byte{}
	}
	return b
}
