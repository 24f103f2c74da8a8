package listing_validator

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Severity separates diagnostics that block submission from those that do not.
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
)

// Class is the taxonomy bucket of a diagnostic.
type Class string

const (
	// ClassStructural covers malformed input shape. Always an error.
	ClassStructural Class = "structural"
	// ClassInvariant covers cross-field rule violations.
	ClassInvariant Class = "invariant"
	// ClassAdvisory covers economically risky but structurally valid input.
	ClassAdvisory Class = "advisory"
)

// Code identifies the rule a diagnostic was raised by.
type Code string

// Structural codes.
const (
	CodeEmptyGroupName     Code = "empty_group_name"
	CodeDuplicateGroupName Code = "duplicate_group_name"
	CodeGroupSize          Code = "group_size"
	CodeMissingField       Code = "missing_field"
	CodeAddressLength      Code = "address_length"
	CodeMalformedAddress   Code = "malformed_address"
	CodeInvalidFlag        Code = "invalid_flag"
)

// Hard invariant codes.
const (
	CodeBasisPointsRange     Code = "bps_out_of_range"
	CodeNegativeRate         Code = "negative_rate"
	CodeMaxBorrowRate        Code = "max_borrow_rate_exceeded"
	CodeLTVNotBelowThreshold Code = "ltv_not_below_threshold"
	CodeDuplicateAsset       Code = "duplicate_asset"
	CodeNegativeCapacity     Code = "negative_capacity"
	CodeBorrowCapDisabled    Code = "borrow_cap_without_borrowing"
	CodeZeroPriceFeed        Code = "zero_price_feed"
	CodeEModeRange           Code = "emode_out_of_range"
)

// Warning codes.
const (
	CodeSolvencyMargin    Code = "solvency_margin"
	CodeSlopeOrdering     Code = "slope_ordering"
	CodeSharedPriceFeed   Code = "shared_price_feed"
	CodeNoBorrowableAsset Code = "no_borrowable_asset"
)

// Diagnostic is a single finding, addressable by group, asset and field.
type Diagnostic struct {
	Severity Severity `json:"severity"`
	Class    Class    `json:"class"`
	Code     Code     `json:"code"`

	// Group is the market group name the finding belongs to.
	Group string `json:"group"`

	// Asset is the asset symbol, or the asset address when the symbol is empty.
	// Empty for group-level findings.
	Asset string `json:"asset,omitempty"`

	// Field is the offending field, e.g. "ltv" or "rateStrategyParams.optimalUsageRatio".
	Field string `json:"field,omitempty"`

	// RelatedFields names other fields that take part in the violated rule.
	RelatedFields []string `json:"relatedFields,omitempty"`

	// RelatedGroups names other groups that take part in the finding (duplicates).
	RelatedGroups []string `json:"relatedGroups,omitempty"`

	Actual   string `json:"actual,omitempty"`
	Expected string `json:"expected,omitempty"`
	Message  string `json:"message"`
}

// String renders the diagnostic on one line.
func (d Diagnostic) String() string {
	var sb strings.Builder
	sb.WriteString("group=")
	sb.WriteString(fmt.Sprintf("%q", d.Group))
	if d.Asset != "" {
		sb.WriteString(fmt.Sprintf(" asset=%q", d.Asset))
	}
	if d.Field != "" {
		sb.WriteString(fmt.Sprintf(" field=%q", d.Field))
	}
	sb.WriteString(": ")
	sb.WriteString(d.Message)
	return sb.String()
}

// Report is the outcome of validating one configuration set.
type Report struct {
	// Groups and Listings count what was inspected.
	Groups   int `json:"groups"`
	Listings int `json:"listings"`

	// Errors block submission. Warnings do not.
	Errors   []Diagnostic `json:"errors"`
	Warnings []Diagnostic `json:"warnings"`
}

// NewReport creates an empty report.
func NewReport() *Report {
	return &Report{
		Errors:   make([]Diagnostic, 0),
		Warnings: make([]Diagnostic, 0),
	}
}

// Add files the diagnostic under errors or warnings by its severity.
func (r *Report) Add(d Diagnostic) {
	if d.Severity == SeverityWarning {
		r.Warnings = append(r.Warnings, d)
		return
	}
	d.Severity = SeverityError
	r.Errors = append(r.Errors, d)
}

// AddWarnings appends warnings raised outside validation, such as feed checks.
func (r *Report) AddWarnings(ds ...Diagnostic) {
	for _, d := range ds {
		d.Severity = SeverityWarning
		r.Warnings = append(r.Warnings, d)
	}
}

// HasErrors reports whether any hard error was found.
func (r *Report) HasErrors() bool {
	return len(r.Errors) > 0
}

// Success returns true if submission is not blocked.
func (r *Report) Success() bool {
	return !r.HasErrors()
}

// ErrorsFor returns the hard errors matching group, asset and field.
// Empty arguments match anything.
func (r *Report) ErrorsFor(group, asset, field string) []Diagnostic {
	return filter(r.Errors, group, asset, field)
}

// WarningsFor returns the warnings matching group, asset and field.
// Empty arguments match anything.
func (r *Report) WarningsFor(group, asset, field string) []Diagnostic {
	return filter(r.Warnings, group, asset, field)
}

func filter(ds []Diagnostic, group, asset, field string) []Diagnostic {
	var out []Diagnostic
	for _, d := range ds {
		if group != "" && d.Group != group {
			continue
		}
		if asset != "" && d.Asset != asset {
			continue
		}
		if field != "" && d.Field != field {
			continue
		}
		out = append(out, d)
	}
	return out
}

// FormatText returns the report as human-readable text.
func (r *Report) FormatText() string {
	var sb strings.Builder

	sb.WriteString("================================================================================\n")
	sb.WriteString("                        RESERVE LISTING VALIDATION REPORT\n")
	sb.WriteString("================================================================================\n")
	sb.WriteString(fmt.Sprintf("Groups:   %d\n", r.Groups))
	sb.WriteString(fmt.Sprintf("Listings: %d\n\n", r.Listings))

	for _, d := range r.Errors {
		sb.WriteString(fmt.Sprintf("[ERROR]   %s\n", d.String()))
		writeDetail(&sb, d)
	}
	for _, d := range r.Warnings {
		sb.WriteString(fmt.Sprintf("[WARNING] %s\n", d.String()))
		writeDetail(&sb, d)
	}

	sb.WriteString(fmt.Sprintf("\nSUMMARY: %d errors, %d warnings\n", len(r.Errors), len(r.Warnings)))
	if r.Success() {
		sb.WriteString("RESULT: PASSED (exit code 0)\n")
	} else {
		sb.WriteString("RESULT: FAILED (exit code 1)\n")
	}

	return sb.String()
}

func writeDetail(sb *strings.Builder, d Diagnostic) {
	if d.Actual != "" || d.Expected != "" {
		sb.WriteString(fmt.Sprintf("          actual: %s, expected: %s\n", d.Actual, d.Expected))
	}
	if len(d.RelatedGroups) > 0 {
		sb.WriteString(fmt.Sprintf("          related groups: %s\n", strings.Join(d.RelatedGroups, ", ")))
	}
}

// FormatJSON returns the report as JSON.
func (r *Report) FormatJSON() (string, error) {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshaling report: %w", err)
	}
	return string(data), nil
}
