// Package listing_validator validates proposed reserve listings and encodes
// them into the canonical submission handed to the on-chain configuration engine.
//
// Validation is pure: it reads the groups, never mutates them, and always
// returns a complete report. Structural problems (group shape, missing fields,
// malformed addresses, unknown flag values) are reported first; invariant
// checks only run once the input is structurally sound.
package listing_validator

import (
	"fmt"
	"math/big"
	"strconv"

	"github.com/ethereum/go-ethereum/common"

	"github.com/archon-research/stl-listing/internal/domain/entity"
)

const (
	// listingsPerGroup is the size of a borrow/collateral pair.
	listingsPerGroup = 2

	// MaxBorrowRateBps caps base + slope1 + slope2 (1000%).
	MaxBorrowRateBps int64 = 100_000

	// MaxEModeCategory is the largest category id the engine accepts (uint8).
	MaxEModeCategory int64 = 255
)

// Validate checks every group and listing and returns the full report.
// Findings are ordered by group, then by listing within the group.
func Validate(groups []entity.MarketGroup) *Report {
	report := NewReport()
	report.Groups = len(groups)
	for _, g := range groups {
		report.Listings += len(g.Listings)
	}

	checkStructure(report, groups)
	if report.HasErrors() {
		return report
	}

	p := &pass{
		report: report,
		assets: make(map[common.Address]origin),
		feeds:  make(map[common.Address]origin),
	}
	for _, g := range groups {
		p.checkGroup(g)
	}
	return report
}

// origin remembers where an address was first seen.
type origin struct {
	group  string
	symbol string
	asset  common.Address
}

type pass struct {
	report *Report
	assets map[common.Address]origin
	feeds  map[common.Address]origin
}

func (p *pass) checkGroup(g entity.MarketGroup) {
	borrowable := 0
	for i := range g.Listings {
		l := &g.Listings[i]
		checkListing(p.report.Add, g.Name, l)
		p.checkUniqueness(g.Name, l)
		if l.EnabledToBorrow.Enabled() {
			borrowable++
		}
	}

	if borrowable == 0 {
		p.report.Add(Diagnostic{
			Severity: SeverityWarning,
			Class:    ClassAdvisory,
			Code:     CodeNoBorrowableAsset,
			Group:    g.Name,
			Field:    entity.FieldEnabledToBorrow,
			Actual:   "0 borrow-enabled listings",
			Expected: "at least 1",
			Message:  "no listing in the group has borrowing enabled",
		})
	}
}

// checkUniqueness enforces unique assets and flags feeds shared by distinct assets.
func (p *pass) checkUniqueness(group string, l *entity.ReserveListing) {
	asset := l.AssetAddress()
	feed := l.PriceFeedAddress()
	symbol := symbolOf(l)

	if first, ok := p.assets[asset]; ok {
		msg := fmt.Sprintf("asset %s is already listed in group %q as %s", asset.Hex(), first.group, first.symbol)
		if first.group == group {
			msg = fmt.Sprintf("asset %s is listed twice in group %q", asset.Hex(), group)
		}
		p.report.Add(Diagnostic{
			Severity:      SeverityError,
			Class:         ClassInvariant,
			Code:          CodeDuplicateAsset,
			Group:         group,
			Asset:         symbol,
			Field:         entity.FieldAsset,
			RelatedGroups: []string{first.group},
			Actual:        asset.Hex(),
			Expected:      "asset unique across the configuration set",
			Message:       msg,
		})
		return
	}
	p.assets[asset] = origin{group: group, symbol: symbol, asset: asset}

	if first, ok := p.feeds[feed]; ok && first.asset != asset {
		p.report.Add(Diagnostic{
			Severity:      SeverityWarning,
			Class:         ClassAdvisory,
			Code:          CodeSharedPriceFeed,
			Group:         group,
			Asset:         symbol,
			Field:         entity.FieldPriceFeed,
			RelatedGroups: []string{first.group},
			Actual:        feed.Hex(),
			Expected:      "a feed shared only by assets pegged to the same unit",
			Message:       fmt.Sprintf("price feed is also used by %s in group %q", first.symbol, first.group),
		})
		return
	}
	if _, ok := p.feeds[feed]; !ok {
		p.feeds[feed] = origin{group: group, symbol: symbol, asset: asset}
	}
}

// checkListing runs the per-listing invariants. It assumes the listing is
// structurally sound.
func checkListing(add func(Diagnostic), group string, l *entity.ReserveListing) {
	symbol := symbolOf(l)
	errorf := func(code Code, field string, actual, expected, format string, args ...any) {
		add(Diagnostic{
			Severity: SeverityError,
			Class:    ClassInvariant,
			Code:     code,
			Group:    group,
			Asset:    symbol,
			Field:    field,
			Actual:   actual,
			Expected: expected,
			Message:  fmt.Sprintf(format, args...),
		})
	}

	if l.PriceFeedAddress() == (common.Address{}) {
		errorf(CodeZeroPriceFeed, entity.FieldPriceFeed, common.Address{}.Hex(), "non-zero address",
			"price feed must not be the zero address")
	}

	// Rate curve.
	curve := l.RateStrategyParams
	if !inBasisPoints(curve.OptimalUsageRatio) {
		errorf(CodeBasisPointsRange, entity.FieldOptimalUsageRatio, itoa(curve.OptimalUsageRatio), "[0, 10000]",
			"optimal usage ratio %d bp is outside 0-100%%", curve.OptimalUsageRatio)
	}
	rates := []struct {
		field string
		value int64
	}{
		{entity.FieldBaseVariableBorrowRate, curve.BaseVariableBorrowRate},
		{entity.FieldVariableRateSlope1, curve.VariableRateSlope1},
		{entity.FieldVariableRateSlope2, curve.VariableRateSlope2},
	}
	ratesValid := true
	for _, r := range rates {
		if r.value < 0 {
			ratesValid = false
			errorf(CodeNegativeRate, r.field, itoa(r.value), ">= 0", "rate must not be negative, got %d bp", r.value)
		}
	}
	if ratesValid {
		if total, ok := sumRates(curve.BaseVariableBorrowRate, curve.VariableRateSlope1, curve.VariableRateSlope2); !ok {
			add(Diagnostic{
				Severity:      SeverityError,
				Class:         ClassInvariant,
				Code:          CodeMaxBorrowRate,
				Group:         group,
				Asset:         symbol,
				Field:         entity.FieldVariableRateSlope2,
				RelatedFields: []string{entity.FieldBaseVariableBorrowRate, entity.FieldVariableRateSlope1},
				Actual:        total.String(),
				Expected:      "<= " + itoa(MaxBorrowRateBps),
				Message:       fmt.Sprintf("maximum borrow rate base+slope1+slope2 is %s bp, above the engine limit", total),
			})
		}
		if curve.VariableRateSlope2 < curve.VariableRateSlope1 {
			add(Diagnostic{
				Severity:      SeverityWarning,
				Class:         ClassAdvisory,
				Code:          CodeSlopeOrdering,
				Group:         group,
				Asset:         symbol,
				Field:         entity.FieldVariableRateSlope2,
				RelatedFields: []string{entity.FieldVariableRateSlope1},
				Actual:        itoa(curve.VariableRateSlope2),
				Expected:      ">= " + itoa(curve.VariableRateSlope1),
				Message:       "slope2 is below slope1; rates grow slower above optimal usage",
			})
		}
	}

	// Risk parameters in basis points.
	bps := []struct {
		field string
		value int64
	}{
		{entity.FieldLTV, l.LTV},
		{entity.FieldLiqThreshold, l.LiqThreshold},
		{entity.FieldLiqBonus, l.LiqBonus},
		{entity.FieldReserveFactor, l.ReserveFactor},
		{entity.FieldLiqProtocolFee, l.LiqProtocolFee},
	}
	for _, b := range bps {
		if !inBasisPoints(b.value) {
			errorf(CodeBasisPointsRange, b.field, itoa(b.value), "[0, 10000]",
				"%s %d bp is outside 0-100%%", b.field, b.value)
		}
	}

	if l.LiqThreshold > 0 && l.LTV >= l.LiqThreshold {
		add(Diagnostic{
			Severity:      SeverityError,
			Class:         ClassInvariant,
			Code:          CodeLTVNotBelowThreshold,
			Group:         group,
			Asset:         symbol,
			Field:         entity.FieldLTV,
			RelatedFields: []string{entity.FieldLiqThreshold},
			Actual:        itoa(l.LTV),
			Expected:      "< " + itoa(l.LiqThreshold),
			Message:       fmt.Sprintf("ltv %d bp must be below liqThreshold %d bp", l.LTV, l.LiqThreshold),
		})
	}

	// liqThreshold * (10000 + liqBonus) / 10000 <= 10000, without division.
	if inBasisPoints(l.LiqThreshold) && inBasisPoints(l.LiqBonus) &&
		l.LiqThreshold*(entity.MaxBasisPoints+l.LiqBonus) > entity.MaxBasisPoints*entity.MaxBasisPoints {
		effective := l.LiqThreshold * (entity.MaxBasisPoints + l.LiqBonus) / entity.MaxBasisPoints
		add(Diagnostic{
			Severity:      SeverityWarning,
			Class:         ClassAdvisory,
			Code:          CodeSolvencyMargin,
			Group:         group,
			Asset:         symbol,
			Field:         entity.FieldLiqThreshold,
			RelatedFields: []string{entity.FieldLiqBonus},
			Actual:        itoa(effective),
			Expected:      "<= 10000",
			Message: fmt.Sprintf("liquidation at threshold %d bp with bonus %d bp can pay out more than 100%% of collateral value",
				l.LiqThreshold, l.LiqBonus),
		})
	}

	// Capacity.
	caps := []struct {
		field string
		value int64
	}{
		{entity.FieldSupplyCap, l.SupplyCap},
		{entity.FieldBorrowCap, l.BorrowCap},
		{entity.FieldDebtCeiling, l.DebtCeiling},
	}
	for _, c := range caps {
		if c.value < 0 {
			errorf(CodeNegativeCapacity, c.field, itoa(c.value), ">= 0", "%s must not be negative, got %d", c.field, c.value)
		}
	}

	if l.BorrowCap > 0 && !l.EnabledToBorrow.Enabled() {
		add(Diagnostic{
			Severity:      SeverityError,
			Class:         ClassInvariant,
			Code:          CodeBorrowCapDisabled,
			Group:         group,
			Asset:         symbol,
			Field:         entity.FieldBorrowCap,
			RelatedFields: []string{entity.FieldEnabledToBorrow},
			Actual:        fmt.Sprintf("borrowCap=%d, enabledToBorrow=%s", l.BorrowCap, l.EnabledToBorrow),
			Expected:      "borrowCap=0 or enabledToBorrow=ENABLED",
			Message: fmt.Sprintf("borrowCap %d is set but enabledToBorrow is %s",
				l.BorrowCap, l.EnabledToBorrow),
		})
	}

	if l.EModeCategory < 0 || l.EModeCategory > MaxEModeCategory {
		errorf(CodeEModeRange, entity.FieldEModeCategory, itoa(l.EModeCategory), "[0, 255]",
			"eModeCategory %d is outside the engine's range", l.EModeCategory)
	}
}

// checkStructure reports malformed input shape for the whole batch.
func checkStructure(report *Report, groups []entity.MarketGroup) {
	seen := make(map[string]bool, len(groups))
	for _, g := range groups {
		structural := func(asset, field string, code Code, actual, expected, msg string) {
			report.Add(Diagnostic{
				Severity: SeverityError,
				Class:    ClassStructural,
				Code:     code,
				Group:    g.Name,
				Asset:    asset,
				Field:    field,
				Actual:   actual,
				Expected: expected,
				Message:  msg,
			})
		}

		if g.Name == "" {
			structural("", "", CodeEmptyGroupName, `""`, "non-empty name", "group name must not be empty")
		} else if seen[g.Name] {
			structural("", "", CodeDuplicateGroupName, g.Name, "unique group name",
				fmt.Sprintf("group %q is defined more than once", g.Name))
		}
		seen[g.Name] = true

		if n := len(g.Listings); n != listingsPerGroup {
			structural("", "", CodeGroupSize, strconv.Itoa(n), strconv.Itoa(listingsPerGroup),
				fmt.Sprintf("group must contain a borrow/collateral pair, got %d listings", n))
		}

		for i := range g.Listings {
			l := &g.Listings[i]
			symbol := symbolOf(l)
			absent := make(map[string]bool, len(l.Absent))
			for _, field := range l.Absent {
				absent[field] = true
				structural(symbol, field, CodeMissingField, "missing", "present",
					fmt.Sprintf("required field %s is missing", field))
			}

			for _, a := range []struct {
				field string
				value []byte
			}{
				{entity.FieldAsset, l.Asset},
				{entity.FieldPriceFeed, l.PriceFeed},
			} {
				if absent[a.field] {
					continue
				}
				if text, ok := l.Malformed[a.field]; ok {
					structural(symbol, a.field, CodeMalformedAddress, fmt.Sprintf("%q", text), "0x-prefixed hex",
						fmt.Sprintf("malformed address %q: not valid hex", text))
					continue
				}
				if len(a.value) == entity.AddressLength {
					continue
				}
				structural(symbol, a.field, CodeAddressLength,
					fmt.Sprintf("%d bytes", len(a.value)), fmt.Sprintf("%d bytes", entity.AddressLength),
					fmt.Sprintf("malformed address 0x%x: expected %d bytes, got %d", a.value, entity.AddressLength, len(a.value)))
			}

			for _, f := range l.Flags() {
				if absent[f.Field] || f.Value.Valid() {
					continue
				}
				structural(symbol, f.Field, CodeInvalidFlag, fmt.Sprintf("%q", string(f.Value)),
					fmt.Sprintf("%s or %s", entity.FlagEnabled, entity.FlagDisabled),
					fmt.Sprintf("flag %s has invalid value %q", f.Field, string(f.Value)))
			}
		}
	}
}

// symbolOf names a listing in diagnostics.
func symbolOf(l *entity.ReserveListing) string {
	if l.AssetSymbol != "" {
		return l.AssetSymbol
	}
	return l.AssetHex()
}

func inBasisPoints(v int64) bool {
	return v >= 0 && v <= entity.MaxBasisPoints
}

// sumRates adds rates without wrapping and reports whether the total stays
// within MaxBorrowRateBps.
func sumRates(rates ...int64) (*big.Int, bool) {
	total := new(big.Int)
	for _, r := range rates {
		total.Add(total, big.NewInt(r))
	}
	return total, total.Cmp(big.NewInt(MaxBorrowRateBps)) <= 0
}

func itoa(v int64) string {
	return strconv.FormatInt(v, 10)
}
