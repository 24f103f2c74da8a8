package testutil

import (
	"github.com/ethereum/go-ethereum/common"

	"github.com/archon-research/stl-listing/internal/domain/entity"
)

// Addresses from the sample listing configuration.
var (
	USDCAddress = common.HexToAddress("0xea237441c92cae6fc17caaf9a7acb3f953be4bd1")
	USDTAddress = common.HexToAddress("0x4632403a83fb736ab2c76b4c32fac9f81e2cfce2")
	DAIAddress  = common.HexToAddress("0x1aa70741167155e08bd319be096c94ee54c6ca19")
	WETHAddress = common.HexToAddress("0x99835d80000f6998015ada61fb88f6f94f3759fe")

	StableFeedAddress = common.HexToAddress("0x34d75eb977f06a53362900d3f09f7edee324afe8")
	ETHFeedAddress    = common.HexToAddress("0x32c3be69beb6628ebbbf2a826d862d68e77dbdc9")
)

// USDCListing is the borrow side of the sample USDC/USDT group.
func USDCListing() entity.ReserveListing {
	return entity.ReserveListing{
		Asset:       USDCAddress.Bytes(),
		AssetSymbol: "USDC",
		PriceFeed:   StableFeedAddress.Bytes(),
		RateStrategyParams: entity.InterestRateCurve{
			OptimalUsageRatio:      80_00,
			BaseVariableBorrowRate: 25,
			VariableRateSlope1:     4_00,
			VariableRateSlope2:     75_00,
		},
		EnabledToBorrow:       entity.FlagEnabled,
		Flashloanable:         entity.FlagDisabled,
		StableRateModeEnabled: entity.FlagEnabled,
		BorrowableInIsolation: entity.FlagDisabled,
		WithSiloedBorrowing:   entity.FlagDisabled,
		LTV:                   80_00,
		LiqThreshold:          0,
		LiqBonus:              5_00,
		ReserveFactor:         10_00,
		SupplyCap:             50_000_000_000,
		BorrowCap:             50_000_000_00,
		DebtCeiling:           0,
		LiqProtocolFee:        10_00,
		EModeCategory:         0,
	}
}

// USDTListing is the collateral side of the sample USDC/USDT group, with the
// borrow cap cleared so the listing is valid on its own.
func USDTListing() entity.ReserveListing {
	return entity.ReserveListing{
		Asset:       USDTAddress.Bytes(),
		AssetSymbol: "USDT",
		PriceFeed:   StableFeedAddress.Bytes(),
		RateStrategyParams: entity.InterestRateCurve{
			OptimalUsageRatio:      90_00,
			BaseVariableBorrowRate: 25,
			VariableRateSlope1:     3_00,
			VariableRateSlope2:     60_00,
		},
		EnabledToBorrow:       entity.FlagDisabled,
		Flashloanable:         entity.FlagDisabled,
		StableRateModeEnabled: entity.FlagDisabled,
		BorrowableInIsolation: entity.FlagDisabled,
		WithSiloedBorrowing:   entity.FlagDisabled,
		LTV:                   90_00,
		LiqThreshold:          90_50,
		LiqBonus:              5_00,
		ReserveFactor:         10_00,
		SupplyCap:             50_000_000_000,
		BorrowCap:             0,
		DebtCeiling:           0,
		LiqProtocolFee:        10_00,
		EModeCategory:         0,
	}
}

// DAIListing is the borrow side of the sample DAI/WETH group.
func DAIListing() entity.ReserveListing {
	return entity.ReserveListing{
		Asset:       DAIAddress.Bytes(),
		AssetSymbol: "DAI",
		PriceFeed:   StableFeedAddress.Bytes(),
		RateStrategyParams: entity.InterestRateCurve{
			OptimalUsageRatio:      80_00,
			BaseVariableBorrowRate: 55,
			VariableRateSlope1:     4_00,
			VariableRateSlope2:     75_00,
		},
		EnabledToBorrow:       entity.FlagEnabled,
		Flashloanable:         entity.FlagDisabled,
		StableRateModeEnabled: entity.FlagDisabled,
		BorrowableInIsolation: entity.FlagDisabled,
		WithSiloedBorrowing:   entity.FlagDisabled,
		LTV:                   80_00,
		LiqThreshold:          0,
		LiqBonus:              5_00,
		ReserveFactor:         10_00,
		SupplyCap:             50_000_000_000,
		BorrowCap:             50_000_000_00,
		DebtCeiling:           0,
		LiqProtocolFee:        10_00,
		EModeCategory:         0,
	}
}

// WETHListing is the collateral side of the sample DAI/WETH group, with the
// borrow cap cleared so the listing is valid on its own.
func WETHListing() entity.ReserveListing {
	return entity.ReserveListing{
		Asset:       WETHAddress.Bytes(),
		AssetSymbol: "WETH",
		PriceFeed:   ETHFeedAddress.Bytes(),
		RateStrategyParams: entity.InterestRateCurve{
			OptimalUsageRatio:      80_00,
			BaseVariableBorrowRate: 55,
			VariableRateSlope1:     3_00,
			VariableRateSlope2:     60_00,
		},
		EnabledToBorrow:       entity.FlagDisabled,
		Flashloanable:         entity.FlagDisabled,
		StableRateModeEnabled: entity.FlagDisabled,
		BorrowableInIsolation: entity.FlagDisabled,
		WithSiloedBorrowing:   entity.FlagDisabled,
		LTV:                   80_00,
		LiqThreshold:          80_50,
		LiqBonus:              10_00,
		ReserveFactor:         10_00,
		SupplyCap:             50_000_000_000,
		BorrowCap:             0,
		DebtCeiling:           0,
		LiqProtocolFee:        10_00,
		EModeCategory:         0,
	}
}

// ValidGroups returns the sample configuration with collateral borrow caps
// cleared. It validates with warnings only.
func ValidGroups() []entity.MarketGroup {
	return []entity.MarketGroup{
		{Name: "USDC/USDT", Listings: []entity.ReserveListing{USDCListing(), USDTListing()}},
		{Name: "DAI/WETH", Listings: []entity.ReserveListing{DAIListing(), WETHListing()}},
	}
}

// SampleGroups returns the sample configuration exactly as authored,
// including the nonzero borrow caps on the collateral assets.
func SampleGroups() []entity.MarketGroup {
	groups := ValidGroups()
	groups[0].Listings[1].BorrowCap = 10
	groups[1].Listings[1].BorrowCap = 10
	return groups
}
