package entity

import (
	"bytes"
	"sort"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// SubmissionVersion is the version of the canonical submission layout.
const SubmissionVersion = 1

// ResolvedListing is a listing flattened out of its market group, with every
// field in its canonical unit. It is what the configuration engine receives
// for one asset.
type ResolvedListing struct {
	Asset       common.Address `json:"asset"`
	AssetSymbol string         `json:"assetSymbol"`
	PriceFeed   common.Address `json:"priceFeed"`
	Role        Role           `json:"role"`

	RateStrategyParams InterestRateCurve `json:"rateStrategyParams"`

	EnabledToBorrow       Flag `json:"enabledToBorrow"`
	Flashloanable         Flag `json:"flashloanable"`
	StableRateModeEnabled Flag `json:"stableRateModeEnabled"`
	BorrowableInIsolation Flag `json:"borrowableInIsolation"`
	WithSiloedBorrowing   Flag `json:"withSiloedBorrowing"`

	LTV            int64 `json:"ltv"`
	LiqThreshold   int64 `json:"liqThreshold"`
	LiqBonus       int64 `json:"liqBonus"`
	ReserveFactor  int64 `json:"reserveFactor"`
	LiqProtocolFee int64 `json:"liqProtocolFee"`

	SupplyCap   int64 `json:"supplyCap"`
	BorrowCap   int64 `json:"borrowCap"`
	DebtCeiling int64 `json:"debtCeiling"`

	EModeCategory int64 `json:"eModeCategory"`
}

// CanonicalSubmission is the engine-ready form of a configuration set: one
// resolved listing per asset, independent of how the listings were grouped.
type CanonicalSubmission struct {
	Version  int                                `json:"version"`
	Listings map[common.Address]ResolvedListing `json:"listings"`
}

// SortedAssets returns the submission's asset addresses in ascending byte order.
func (s *CanonicalSubmission) SortedAssets() []common.Address {
	assets := make([]common.Address, 0, len(s.Listings))
	for addr := range s.Listings {
		assets = append(assets, addr)
	}
	sort.Slice(assets, func(i, j int) bool {
		return bytes.Compare(assets[i][:], assets[j][:]) < 0
	})
	return assets
}

// SortedListings returns the resolved listings ordered by asset address.
func (s *CanonicalSubmission) SortedListings() []ResolvedListing {
	assets := s.SortedAssets()
	out := make([]ResolvedListing, len(assets))
	for i, addr := range assets {
		out[i] = s.Listings[addr]
	}
	return out
}

// SubmissionRecord is a stored, immutable submission.
type SubmissionRecord struct {
	// Digest is the keccak256 hash of the canonical submission bytes.
	Digest common.Hash
	// Payload is the canonical submission bytes.
	Payload []byte
	// Assets are the listed asset addresses in canonical order.
	Assets []common.Address
	// Warnings is the number of warnings reported when the submission was encoded.
	Warnings  int
	CreatedAt time.Time
}

// ArtifactPrefix is the object key prefix for archived canonical submissions.
const ArtifactPrefix = "submissions/"

// ArtifactKey returns the archive key for a submission digest.
func ArtifactKey(digest common.Hash) string {
	return ArtifactPrefix + digest.Hex() + ".json"
}
