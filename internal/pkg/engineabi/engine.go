// Package engineabi holds the contract ABIs the listing tools talk to: the
// Aave v3 config engine that receives listings, and the AggregatorV3 price
// feeds the listings point at.
package engineabi

import (
	"fmt"
	"math/big"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"

	"github.com/archon-research/stl-listing/internal/domain/entity"
)

const configEngineABI = `[
	{
		"inputs": [
			{
				"components": [
					{"name": "networkName", "type": "string"},
					{"name": "networkAbbreviation", "type": "string"}
				],
				"name": "context",
				"type": "tuple"
			},
			{
				"components": [
					{"name": "asset", "type": "address"},
					{"name": "assetSymbol", "type": "string"},
					{"name": "priceFeed", "type": "address"},
					{
						"components": [
							{"name": "optimalUsageRatio", "type": "uint256"},
							{"name": "baseVariableBorrowRate", "type": "uint256"},
							{"name": "variableRateSlope1", "type": "uint256"},
							{"name": "variableRateSlope2", "type": "uint256"}
						],
						"name": "rateStrategyParams",
						"type": "tuple"
					},
					{"name": "enabledToBorrow", "type": "uint256"},
					{"name": "flashloanable", "type": "uint256"},
					{"name": "stableRateModeEnabled", "type": "uint256"},
					{"name": "borrowableInIsolation", "type": "uint256"},
					{"name": "withSiloedBorrowing", "type": "uint256"},
					{"name": "ltv", "type": "uint256"},
					{"name": "liqThreshold", "type": "uint256"},
					{"name": "liqBonus", "type": "uint256"},
					{"name": "reserveFactor", "type": "uint256"},
					{"name": "supplyCap", "type": "uint256"},
					{"name": "borrowCap", "type": "uint256"},
					{"name": "debtCeiling", "type": "uint256"},
					{"name": "liqProtocolFee", "type": "uint256"},
					{"name": "eModeCategory", "type": "uint8"}
				],
				"name": "listings",
				"type": "tuple[]"
			}
		],
		"name": "listAssets",
		"outputs": [],
		"stateMutability": "nonpayable",
		"type": "function"
	}
]`

// PoolContext names the network the listings are for.
type PoolContext struct {
	NetworkName         string `abi:"networkName"`
	NetworkAbbreviation string `abi:"networkAbbreviation"`
}

// InterestRateInputData is the engine's rate strategy tuple.
type InterestRateInputData struct {
	OptimalUsageRatio      *big.Int `abi:"optimalUsageRatio"`
	BaseVariableBorrowRate *big.Int `abi:"baseVariableBorrowRate"`
	VariableRateSlope1     *big.Int `abi:"variableRateSlope1"`
	VariableRateSlope2     *big.Int `abi:"variableRateSlope2"`
}

// Listing is the engine's per-asset tuple.
type Listing struct {
	Asset                 common.Address        `abi:"asset"`
	AssetSymbol           string                `abi:"assetSymbol"`
	PriceFeed             common.Address        `abi:"priceFeed"`
	RateStrategyParams    InterestRateInputData `abi:"rateStrategyParams"`
	EnabledToBorrow       *big.Int              `abi:"enabledToBorrow"`
	Flashloanable         *big.Int              `abi:"flashloanable"`
	StableRateModeEnabled *big.Int              `abi:"stableRateModeEnabled"`
	BorrowableInIsolation *big.Int              `abi:"borrowableInIsolation"`
	WithSiloedBorrowing   *big.Int              `abi:"withSiloedBorrowing"`
	LTV                   *big.Int              `abi:"ltv"`
	LiqThreshold          *big.Int              `abi:"liqThreshold"`
	LiqBonus              *big.Int              `abi:"liqBonus"`
	ReserveFactor         *big.Int              `abi:"reserveFactor"`
	SupplyCap             *big.Int              `abi:"supplyCap"`
	BorrowCap             *big.Int              `abi:"borrowCap"`
	DebtCeiling           *big.Int              `abi:"debtCeiling"`
	LiqProtocolFee        *big.Int              `abi:"liqProtocolFee"`
	EModeCategory         uint8                 `abi:"eModeCategory"`
}

var (
	engineOnce sync.Once
	engineABI  *abi.ABI
	engineErr  error
)

// ParseABI parses a JSON ABI definition.
func ParseABI(abiJSON string) (*abi.ABI, error) {
	parsed, err := abi.JSON(strings.NewReader(abiJSON))
	if err != nil {
		return nil, err
	}
	return &parsed, nil
}

// GetConfigEngineABI returns the parsed config engine ABI.
func GetConfigEngineABI() (*abi.ABI, error) {
	engineOnce.Do(func() {
		engineABI, engineErr = ParseABI(configEngineABI)
	})
	return engineABI, engineErr
}

// ToEngineListing converts a resolved listing into the engine tuple. It fails
// on values the engine types cannot hold.
func ToEngineListing(r entity.ResolvedListing) (Listing, error) {
	uints := []struct {
		field string
		value int64
	}{
		{entity.FieldOptimalUsageRatio, r.RateStrategyParams.OptimalUsageRatio},
		{entity.FieldBaseVariableBorrowRate, r.RateStrategyParams.BaseVariableBorrowRate},
		{entity.FieldVariableRateSlope1, r.RateStrategyParams.VariableRateSlope1},
		{entity.FieldVariableRateSlope2, r.RateStrategyParams.VariableRateSlope2},
		{entity.FieldLTV, r.LTV},
		{entity.FieldLiqThreshold, r.LiqThreshold},
		{entity.FieldLiqBonus, r.LiqBonus},
		{entity.FieldReserveFactor, r.ReserveFactor},
		{entity.FieldSupplyCap, r.SupplyCap},
		{entity.FieldBorrowCap, r.BorrowCap},
		{entity.FieldDebtCeiling, r.DebtCeiling},
		{entity.FieldLiqProtocolFee, r.LiqProtocolFee},
	}
	for _, u := range uints {
		if u.value < 0 {
			return Listing{}, fmt.Errorf("asset %s: %s is negative (%d)", r.Asset.Hex(), u.field, u.value)
		}
	}
	if r.EModeCategory < 0 || r.EModeCategory > 255 {
		return Listing{}, fmt.Errorf("asset %s: eModeCategory %d does not fit uint8", r.Asset.Hex(), r.EModeCategory)
	}
	for _, f := range []entity.Flag{r.EnabledToBorrow, r.Flashloanable, r.StableRateModeEnabled, r.BorrowableInIsolation, r.WithSiloedBorrowing} {
		if !f.Valid() {
			return Listing{}, fmt.Errorf("asset %s: invalid flag %q", r.Asset.Hex(), string(f))
		}
	}

	flag := func(f entity.Flag) *big.Int { return new(big.Int).SetUint64(f.EngineValue()) }
	return Listing{
		Asset:       r.Asset,
		AssetSymbol: r.AssetSymbol,
		PriceFeed:   r.PriceFeed,
		RateStrategyParams: InterestRateInputData{
			OptimalUsageRatio:      big.NewInt(r.RateStrategyParams.OptimalUsageRatio),
			BaseVariableBorrowRate: big.NewInt(r.RateStrategyParams.BaseVariableBorrowRate),
			VariableRateSlope1:     big.NewInt(r.RateStrategyParams.VariableRateSlope1),
			VariableRateSlope2:     big.NewInt(r.RateStrategyParams.VariableRateSlope2),
		},
		EnabledToBorrow:       flag(r.EnabledToBorrow),
		Flashloanable:         flag(r.Flashloanable),
		StableRateModeEnabled: flag(r.StableRateModeEnabled),
		BorrowableInIsolation: flag(r.BorrowableInIsolation),
		WithSiloedBorrowing:   flag(r.WithSiloedBorrowing),
		LTV:                   big.NewInt(r.LTV),
		LiqThreshold:          big.NewInt(r.LiqThreshold),
		LiqBonus:              big.NewInt(r.LiqBonus),
		ReserveFactor:         big.NewInt(r.ReserveFactor),
		SupplyCap:             big.NewInt(r.SupplyCap),
		BorrowCap:             big.NewInt(r.BorrowCap),
		DebtCeiling:           big.NewInt(r.DebtCeiling),
		LiqProtocolFee:        big.NewInt(r.LiqProtocolFee),
		EModeCategory:         uint8(r.EModeCategory),
	}, nil
}

// PackListAssets builds listAssets calldata for the submission. Listings are
// packed in asset address order, so the calldata depends only on the
// submission's content.
func PackListAssets(pool PoolContext, sub *entity.CanonicalSubmission) ([]byte, error) {
	parsed, err := GetConfigEngineABI()
	if err != nil {
		return nil, fmt.Errorf("parsing config engine ABI: %w", err)
	}

	resolved := sub.SortedListings()
	listings := make([]Listing, 0, len(resolved))
	for _, r := range resolved {
		l, err := ToEngineListing(r)
		if err != nil {
			return nil, err
		}
		listings = append(listings, l)
	}

	data, err := parsed.Pack("listAssets", pool, listings)
	if err != nil {
		return nil, fmt.Errorf("packing listAssets: %w", err)
	}
	return data, nil
}
