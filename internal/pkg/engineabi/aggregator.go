package engineabi

import (
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

const aggregatorV3ABI = `[
	{
		"inputs": [],
		"name": "latestRoundData",
		"outputs": [
			{"name": "roundId", "type": "uint80"},
			{"name": "answer", "type": "int256"},
			{"name": "startedAt", "type": "uint256"},
			{"name": "updatedAt", "type": "uint256"},
			{"name": "answeredInRound", "type": "uint80"}
		],
		"stateMutability": "view",
		"type": "function"
	},
	{
		"inputs": [],
		"name": "decimals",
		"outputs": [{"name": "", "type": "uint8"}],
		"stateMutability": "view",
		"type": "function"
	}
]`

var (
	aggregatorOnce sync.Once
	aggregator     *abi.ABI
	aggregatorErr  error
)

// GetAggregatorV3ABI returns the ABI for the Chainlink AggregatorV3Interface.
// Chronicle and Redstone feeds expose the same read methods.
func GetAggregatorV3ABI() (*abi.ABI, error) {
	aggregatorOnce.Do(func() {
		aggregator, aggregatorErr = ParseABI(aggregatorV3ABI)
	})
	return aggregator, aggregatorErr
}

// RoundData is the decoded result of latestRoundData.
type RoundData struct {
	RoundID         *big.Int
	Answer          *big.Int
	StartedAt       *big.Int
	UpdatedAt       *big.Int
	AnsweredInRound *big.Int
}

// UnpackLatestRoundData decodes latestRoundData return data.
func UnpackLatestRoundData(data []byte) (*RoundData, error) {
	parsed, err := GetAggregatorV3ABI()
	if err != nil {
		return nil, err
	}
	out, err := parsed.Unpack("latestRoundData", data)
	if err != nil {
		return nil, fmt.Errorf("unpacking latestRoundData: %w", err)
	}
	if len(out) != 5 {
		return nil, fmt.Errorf("unpacking latestRoundData: expected 5 values, got %d", len(out))
	}

	round := &RoundData{}
	targets := []**big.Int{&round.RoundID, &round.Answer, &round.StartedAt, &round.UpdatedAt, &round.AnsweredInRound}
	for i, target := range targets {
		v, ok := out[i].(*big.Int)
		if !ok {
			return nil, fmt.Errorf("unpacking latestRoundData: value %d has type %T", i, out[i])
		}
		*target = v
	}
	return round, nil
}

// UnpackDecimals decodes decimals return data.
func UnpackDecimals(data []byte) (uint8, error) {
	parsed, err := GetAggregatorV3ABI()
	if err != nil {
		return 0, err
	}
	out, err := parsed.Unpack("decimals", data)
	if err != nil {
		return 0, fmt.Errorf("unpacking decimals: %w", err)
	}
	if len(out) != 1 {
		return 0, fmt.Errorf("unpacking decimals: expected 1 value, got %d", len(out))
	}
	d, ok := out[0].(uint8)
	if !ok {
		return 0, fmt.Errorf("unpacking decimals: unexpected type %T", out[0])
	}
	return d, nil
}
