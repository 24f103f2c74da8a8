package listing_validator

import (
	"encoding/json"
	"strings"
	"testing"
)

func TestReport_AddRoutesBySeverity(t *testing.T) {
	r := NewReport()
	r.Add(Diagnostic{Code: CodeLTVNotBelowThreshold, Group: "A/B"})
	r.Add(Diagnostic{Severity: SeverityWarning, Code: CodeSlopeOrdering, Group: "A/B"})
	r.AddWarnings(Diagnostic{Severity: SeverityError, Code: "feed_stale", Group: "A/B"})

	if len(r.Errors) != 1 || r.Errors[0].Severity != SeverityError {
		t.Errorf("expected one error defaulted to error severity, got %v", r.Errors)
	}
	if len(r.Warnings) != 2 {
		t.Errorf("expected two warnings, got %v", r.Warnings)
	}
	if r.Warnings[1].Severity != SeverityWarning {
		t.Error("AddWarnings must force warning severity")
	}
	if r.Success() {
		t.Error("report with errors must not succeed")
	}
}

func TestDiagnostic_String(t *testing.T) {
	tests := []struct {
		d    Diagnostic
		want string
	}{
		{
			d:    Diagnostic{Group: "USDC/USDT", Asset: "USDT", Field: "ltv", Message: "too high"},
			want: `group="USDC/USDT" asset="USDT" field="ltv": too high`,
		},
		{
			d:    Diagnostic{Group: "X/Y", Message: "bad shape"},
			want: `group="X/Y": bad shape`,
		},
	}

	for _, tt := range tests {
		if got := tt.d.String(); got != tt.want {
			t.Errorf("String() = %q, want %q", got, tt.want)
		}
	}
}

func TestReport_FormatText(t *testing.T) {
	r := NewReport()
	r.Groups = 1
	r.Listings = 2
	r.Add(Diagnostic{
		Group: "A/B", Asset: "A", Field: "ltv", Message: "ltv too high",
		Actual: "9100", Expected: "< 9050",
	})
	r.Add(Diagnostic{
		Severity: SeverityWarning, Group: "C/D", Asset: "C", Field: "priceFeed",
		RelatedGroups: []string{"A/B"}, Message: "shared feed",
	})

	text := r.FormatText()

	for _, want := range []string{
		"Groups:   1",
		"Listings: 2",
		`[ERROR]   group="A/B" asset="A" field="ltv": ltv too high`,
		"actual: 9100, expected: < 9050",
		`[WARNING] group="C/D"`,
		"related groups: A/B",
		"SUMMARY: 1 errors, 1 warnings",
		"RESULT: FAILED (exit code 1)",
	} {
		if !strings.Contains(text, want) {
			t.Errorf("expected text to contain %q\n%s", want, text)
		}
	}
}

func TestReport_FormatTextPassed(t *testing.T) {
	if text := NewReport().FormatText(); !strings.Contains(text, "RESULT: PASSED (exit code 0)") {
		t.Errorf("expected passed result, got\n%s", text)
	}
}

func TestReport_FormatJSON(t *testing.T) {
	r := NewReport()
	r.Add(Diagnostic{Class: ClassInvariant, Code: CodeNegativeCapacity, Group: "A/B", Field: "supplyCap", Message: "negative"})

	out, err := r.FormatJSON()
	if err != nil {
		t.Fatalf("FormatJSON failed: %v", err)
	}

	var decoded Report
	if err := json.Unmarshal([]byte(out), &decoded); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if len(decoded.Errors) != 1 || decoded.Errors[0].Code != CodeNegativeCapacity {
		t.Errorf("unexpected decoded report %+v", decoded)
	}
	if decoded.Warnings == nil {
		t.Error("expected warnings to encode as an empty array, not null")
	}
}
