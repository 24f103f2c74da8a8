package engineabi

import (
	"math/big"
	"testing"
)

func TestUnpackLatestRoundData(t *testing.T) {
	parsed, err := GetAggregatorV3ABI()
	if err != nil {
		t.Fatalf("GetAggregatorV3ABI failed: %v", err)
	}

	data, err := parsed.Methods["latestRoundData"].Outputs.Pack(
		big.NewInt(7), big.NewInt(100_000_000), big.NewInt(1_700_000_000), big.NewInt(1_700_000_060), big.NewInt(7),
	)
	if err != nil {
		t.Fatalf("Pack failed: %v", err)
	}

	round, err := UnpackLatestRoundData(data)
	if err != nil {
		t.Fatalf("UnpackLatestRoundData failed: %v", err)
	}
	if round.Answer.Int64() != 100_000_000 || round.UpdatedAt.Int64() != 1_700_000_060 || round.RoundID.Int64() != 7 {
		t.Errorf("unexpected round %+v", round)
	}
}

func TestUnpackDecimals(t *testing.T) {
	parsed, err := GetAggregatorV3ABI()
	if err != nil {
		t.Fatalf("GetAggregatorV3ABI failed: %v", err)
	}

	data, err := parsed.Methods["decimals"].Outputs.Pack(uint8(8))
	if err != nil {
		t.Fatalf("Pack failed: %v", err)
	}

	got, err := UnpackDecimals(data)
	if err != nil {
		t.Fatalf("UnpackDecimals failed: %v", err)
	}
	if got != 8 {
		t.Errorf("got %d, want 8", got)
	}
}

func TestUnpackLatestRoundData_Short(t *testing.T) {
	if _, err := UnpackLatestRoundData([]byte{0x01}); err == nil {
		t.Error("expected error for truncated data")
	}
}
