package entity

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
)

// AddressLength is the byte length of token and feed addresses.
const AddressLength = common.AddressLength

// MaxBasisPoints is 100% expressed in basis points.
const MaxBasisPoints int64 = 10_000

// Field names as they appear in listing documents. Diagnostics are tagged with these.
const (
	FieldAsset                  = "asset"
	FieldAssetSymbol            = "assetSymbol"
	FieldPriceFeed              = "priceFeed"
	FieldRateStrategyParams     = "rateStrategyParams"
	FieldOptimalUsageRatio      = "rateStrategyParams.optimalUsageRatio"
	FieldBaseVariableBorrowRate = "rateStrategyParams.baseVariableBorrowRate"
	FieldVariableRateSlope1     = "rateStrategyParams.variableRateSlope1"
	FieldVariableRateSlope2     = "rateStrategyParams.variableRateSlope2"
	FieldEnabledToBorrow        = "enabledToBorrow"
	FieldFlashloanable          = "flashloanable"
	FieldStableRateModeEnabled  = "stableRateModeEnabled"
	FieldBorrowableInIsolation  = "borrowableInIsolation"
	FieldWithSiloedBorrowing    = "withSiloedBorrowing"
	FieldLTV                    = "ltv"
	FieldLiqThreshold           = "liqThreshold"
	FieldLiqBonus               = "liqBonus"
	FieldReserveFactor          = "reserveFactor"
	FieldLiqProtocolFee         = "liqProtocolFee"
	FieldSupplyCap              = "supplyCap"
	FieldBorrowCap              = "borrowCap"
	FieldDebtCeiling            = "debtCeiling"
	FieldEModeCategory          = "eModeCategory"
)

// Role is the part a listing plays in its market group. It is derived from
// the listing's flags, never from its position in the group.
type Role string

const (
	RoleBorrow     Role = "borrow"
	RoleCollateral Role = "collateral"
)

// InterestRateCurve holds the variable-rate strategy inputs, all in basis points.
type InterestRateCurve struct {
	OptimalUsageRatio      int64 `json:"optimalUsageRatio"`
	BaseVariableBorrowRate int64 `json:"baseVariableBorrowRate"`
	VariableRateSlope1     int64 `json:"variableRateSlope1"`
	VariableRateSlope2     int64 `json:"variableRateSlope2"`
}

// ReserveListing is one asset's proposed reserve configuration.
type ReserveListing struct {
	Asset       []byte // 20 bytes
	AssetSymbol string
	PriceFeed   []byte // 20 bytes

	RateStrategyParams InterestRateCurve

	EnabledToBorrow       Flag
	Flashloanable         Flag
	StableRateModeEnabled Flag
	BorrowableInIsolation Flag
	WithSiloedBorrowing   Flag

	// Risk parameters in basis points.
	LTV            int64
	LiqThreshold   int64
	LiqBonus       int64
	ReserveFactor  int64
	LiqProtocolFee int64

	// Capacity in native token units; DebtCeiling is USD with 2 decimals.
	SupplyCap   int64
	BorrowCap   int64
	DebtCeiling int64

	EModeCategory int64

	// Absent lists required document fields that were missing when the
	// listing was decoded. Listings built in code leave it empty.
	Absent []string

	// Malformed holds the document text of address fields that were not
	// valid hex, keyed by field name.
	Malformed map[string]string
}

// Role derives the listing's role from its borrow flag.
func (l *ReserveListing) Role() Role {
	if l.EnabledToBorrow.Enabled() {
		return RoleBorrow
	}
	return RoleCollateral
}

// AssetAddress returns the asset as a fixed-size address. It panics if the
// asset is not exactly AddressLength bytes; callers validate first.
func (l *ReserveListing) AssetAddress() common.Address {
	return mustAddress(l.Asset)
}

// PriceFeedAddress returns the price feed as a fixed-size address. It panics
// if the feed is not exactly AddressLength bytes; callers validate first.
func (l *ReserveListing) PriceFeedAddress() common.Address {
	return mustAddress(l.PriceFeed)
}

// AssetHex returns the asset as a 0x-prefixed hex string of whatever bytes it holds.
func (l *ReserveListing) AssetHex() string {
	return fmt.Sprintf("0x%x", l.Asset)
}

// Flags returns the capability flags keyed by field name, in document order.
func (l *ReserveListing) Flags() []NamedFlag {
	return []NamedFlag{
		{Field: FieldEnabledToBorrow, Value: l.EnabledToBorrow},
		{Field: FieldFlashloanable, Value: l.Flashloanable},
		{Field: FieldStableRateModeEnabled, Value: l.StableRateModeEnabled},
		{Field: FieldBorrowableInIsolation, Value: l.BorrowableInIsolation},
		{Field: FieldWithSiloedBorrowing, Value: l.WithSiloedBorrowing},
	}
}

// NamedFlag pairs a flag with the field it was read from.
type NamedFlag struct {
	Field string
	Value Flag
}

// MarketGroup is a named trading pair carrying its reserve listings.
type MarketGroup struct {
	Name     string
	Listings []ReserveListing
}

// RequiredFields lists every field a listing document must carry.
func RequiredFields() []string {
	return []string{
		FieldAsset,
		FieldAssetSymbol,
		FieldPriceFeed,
		FieldOptimalUsageRatio,
		FieldBaseVariableBorrowRate,
		FieldVariableRateSlope1,
		FieldVariableRateSlope2,
		FieldEnabledToBorrow,
		FieldFlashloanable,
		FieldStableRateModeEnabled,
		FieldBorrowableInIsolation,
		FieldWithSiloedBorrowing,
		FieldLTV,
		FieldLiqThreshold,
		FieldLiqBonus,
		FieldReserveFactor,
		FieldSupplyCap,
		FieldBorrowCap,
		FieldDebtCeiling,
		FieldLiqProtocolFee,
		FieldEModeCategory,
	}
}

func mustAddress(b []byte) common.Address {
	if len(b) != AddressLength {
		panic(fmt.Sprintf("invalid address length: expected %d, got %d", AddressLength, len(b)))
	}
	return common.BytesToAddress(b)
}
