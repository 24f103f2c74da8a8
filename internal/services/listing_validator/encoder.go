package listing_validator

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/archon-research/stl-listing/internal/domain/entity"
)

// ValidationError is returned by Encode when the report contains hard errors.
// It carries the complete report, not just the first problem.
type ValidationError struct {
	Report *Report
}

func (e *ValidationError) Error() string {
	if len(e.Report.Errors) == 0 {
		return "listing validation failed"
	}
	return fmt.Sprintf("listing validation failed: %d errors, %d warnings (first: %s)",
		len(e.Report.Errors), len(e.Report.Warnings), e.Report.Errors[0].String())
}

// Encode validates the groups and, if no hard error is found, flattens them
// into a canonical submission keyed by asset address.
func Encode(groups []entity.MarketGroup) (*entity.CanonicalSubmission, error) {
	sub, _, err := EncodeWithReport(groups)
	return sub, err
}

// EncodeWithReport is Encode that also returns the validation report, so
// callers can surface warnings on success.
func EncodeWithReport(groups []entity.MarketGroup) (*entity.CanonicalSubmission, *Report, error) {
	report := Validate(groups)
	if report.HasErrors() {
		return nil, report, &ValidationError{Report: report}
	}

	sub := &entity.CanonicalSubmission{
		Version:  entity.SubmissionVersion,
		Listings: make(map[common.Address]entity.ResolvedListing, report.Listings),
	}
	for _, g := range groups {
		for i := range g.Listings {
			resolved := resolve(&g.Listings[i])
			sub.Listings[resolved.Asset] = resolved
		}
	}
	return sub, report, nil
}

func resolve(l *entity.ReserveListing) entity.ResolvedListing {
	return entity.ResolvedListing{
		Asset:                 l.AssetAddress(),
		AssetSymbol:           l.AssetSymbol,
		PriceFeed:             l.PriceFeedAddress(),
		Role:                  l.Role(),
		RateStrategyParams:    l.RateStrategyParams,
		EnabledToBorrow:       l.EnabledToBorrow,
		Flashloanable:         l.Flashloanable,
		StableRateModeEnabled: l.StableRateModeEnabled,
		BorrowableInIsolation: l.BorrowableInIsolation,
		WithSiloedBorrowing:   l.WithSiloedBorrowing,
		LTV:                   l.LTV,
		LiqThreshold:          l.LiqThreshold,
		LiqBonus:              l.LiqBonus,
		ReserveFactor:         l.ReserveFactor,
		LiqProtocolFee:        l.LiqProtocolFee,
		SupplyCap:             l.SupplyCap,
		BorrowCap:             l.BorrowCap,
		DebtCeiling:           l.DebtCeiling,
		EModeCategory:         l.EModeCategory,
	}
}

// MarshalSubmission returns the canonical bytes of a submission. Listings are
// keyed by lowercase hex address and emitted in sorted key order, so equal
// submissions always produce identical bytes.
func MarshalSubmission(sub *entity.CanonicalSubmission) ([]byte, error) {
	data, err := json.Marshal(sub)
	if err != nil {
		return nil, fmt.Errorf("marshaling submission: %w", err)
	}
	return data, nil
}

// Digest is the keccak256 hash of canonical submission bytes.
func Digest(canonical []byte) common.Hash {
	return crypto.Keccak256Hash(canonical)
}

// DecodeSubmission parses canonical submission bytes. Unknown fields, invalid
// flags, mismatched keys and any listing that would fail validation are rejected.
func DecodeSubmission(data []byte) (*entity.CanonicalSubmission, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()

	var sub entity.CanonicalSubmission
	if err := dec.Decode(&sub); err != nil {
		return nil, fmt.Errorf("decoding submission: %w", err)
	}
	if sub.Version != entity.SubmissionVersion {
		return nil, fmt.Errorf("unsupported submission version %d (want %d)", sub.Version, entity.SubmissionVersion)
	}
	if sub.Listings == nil {
		sub.Listings = make(map[common.Address]entity.ResolvedListing)
	}

	report := NewReport()
	report.Listings = len(sub.Listings)
	for _, addr := range sub.SortedAssets() {
		r := sub.Listings[addr]
		if r.Asset != addr {
			return nil, fmt.Errorf("listing keyed %s carries asset %s", addr.Hex(), r.Asset.Hex())
		}
		l := unresolve(r)
		for _, f := range l.Flags() {
			if !f.Value.Valid() {
				return nil, fmt.Errorf("listing %s: flag %s has invalid value %q", addr.Hex(), f.Field, string(f.Value))
			}
		}
		if r.Role != l.Role() {
			return nil, fmt.Errorf("listing %s: role %q does not match enabledToBorrow=%s", addr.Hex(), r.Role, r.EnabledToBorrow)
		}
		checkListing(report.Add, "", &l)
	}
	if report.HasErrors() {
		return nil, &ValidationError{Report: report}
	}
	return &sub, nil
}

// unresolve turns a resolved listing back into the listing it was built from.
func unresolve(r entity.ResolvedListing) entity.ReserveListing {
	return entity.ReserveListing{
		Asset:                 r.Asset.Bytes(),
		AssetSymbol:           r.AssetSymbol,
		PriceFeed:             r.PriceFeed.Bytes(),
		RateStrategyParams:    r.RateStrategyParams,
		EnabledToBorrow:       r.EnabledToBorrow,
		Flashloanable:         r.Flashloanable,
		StableRateModeEnabled: r.StableRateModeEnabled,
		BorrowableInIsolation: r.BorrowableInIsolation,
		WithSiloedBorrowing:   r.WithSiloedBorrowing,
		LTV:                   r.LTV,
		LiqThreshold:          r.LiqThreshold,
		LiqBonus:              r.LiqBonus,
		ReserveFactor:         r.ReserveFactor,
		LiqProtocolFee:        r.LiqProtocolFee,
		SupplyCap:             r.SupplyCap,
		BorrowCap:             r.BorrowCap,
		DebtCeiling:           r.DebtCeiling,
		EModeCategory:         r.EModeCategory,
	}
}
