package feeno

import (
	"context"
	"errors"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/shopspring/decimal"
)

const feeHistoryBlocks = 10

var errNoBaseFee = errors.New("chain did not report a base fee")

// FeeHistoryClient is the subset of ethclient.Client used by the oracle
type FeeHistoryClient interface {
	HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error)
	FeeHistory(ctx context.Context, blockCount uint64, lastBlock *big.Int, rewardPercentiles []float64) (*ethereum.FeeHistory, error)
}

type SpeedPercentile struct {
	Speed      string
	Percentile float64
}

var DefaultSpeeds = []SpeedPercentile{
	{Speed: "slow", Percentile: 20},
	{Speed: "standard", Percentile: 50},
	{Speed: "fast", Percentile: 80},
}

// FeeHistoryOracle derives speed tiers from priority fee percentiles of recent blocks
type FeeHistoryOracle struct {
	client FeeHistoryClient
	speeds []SpeedPercentile
}

func NewFeeHistoryOracle(client FeeHistoryClient, speeds []SpeedPercentile) *FeeHistoryOracle {
	if len(speeds) == 0 {
		speeds = DefaultSpeeds
	}
	return &FeeHistoryOracle{client: client, speeds: speeds}
}

func weiToGwei(wei *big.Int) decimal.Decimal {
	return decimal.NewFromBigInt(wei, -9)
}

func (o *FeeHistoryOracle) GasPrice(ctx context.Context) (*GasPriceSnapshot, error) {
	percentiles := make([]float64, len(o.speeds))
	for i, s := range o.speeds {
		percentiles[i] = s.Percentile
	}

	history, err := o.client.FeeHistory(ctx, feeHistoryBlocks, nil, percentiles)
	if err != nil {
		return nil, err
	}

	// the last entry is the base fee of the next block
	var baseFee *big.Int
	if n := len(history.BaseFee); n > 0 {
		baseFee = history.BaseFee[n-1]
	}
	if baseFee == nil {
		header, err := o.client.HeaderByNumber(ctx, nil)
		if err != nil {
			return nil, err
		}
		baseFee = header.BaseFee
	}
	if baseFee == nil {
		return nil, errNoBaseFee
	}

	snapshot := &GasPriceSnapshot{
		BaseFee:              weiToGwei(baseFee),
		MaxPriorityFeePerGas: make(map[string]decimal.Decimal, len(o.speeds)),
	}
	for i, s := range o.speeds {
		sum := new(big.Int)
		var count int64
		for _, rewards := range history.Reward {
			if i < len(rewards) && rewards[i] != nil {
				sum.Add(sum, rewards[i])
				count++
			}
		}
		if count == 0 {
			continue
		}
		snapshot.MaxPriorityFeePerGas[s.Speed] = weiToGwei(sum.Div(sum, big.NewInt(count)))
	}
	return snapshot, nil
}
