package feeno

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/shopspring/decimal"
)

// ratePrecision is the number of decimal places kept when dividing rates
const ratePrecision = 18

// tierPrice is the native cost of one speed tier
type tierPrice struct {
	// per gas, wei
	baseFee *big.Int
	tip     *big.Int
	// total, wei
	nativeFee *big.Int
	ethGasFee decimal.Decimal
	minerTip  decimal.Decimal
}

func gweiToWei(gwei decimal.Decimal) *big.Int {
	return gwei.Shift(9).BigInt()
}

func weiToEther(wei *big.Int) decimal.Decimal {
	return decimal.NewFromBigInt(wei, -NativeDecimals)
}

func toHexBig(v *big.Int) *hexutil.Big {
	if v == nil {
		return nil
	}
	return (*hexutil.Big)(new(big.Int).Set(v))
}

// priceTier computes the fee of gasUsed at the given gwei prices
func priceTier(gasUsed uint64, baseFeeGwei, tipGwei decimal.Decimal) tierPrice {
	gas := new(big.Int).SetUint64(gasUsed)
	baseFee := gweiToWei(baseFeeGwei)
	tip := gweiToWei(tipGwei)

	baseTotal := new(big.Int).Mul(baseFee, gas)
	tipTotal := new(big.Int).Mul(tip, gas)
	nativeFee := new(big.Int).Add(baseTotal, tipTotal)

	return tierPrice{
		baseFee:   baseFee,
		tip:       tip,
		nativeFee: nativeFee,
		ethGasFee: weiToEther(nativeFee),
		minerTip:  weiToEther(tipTotal),
	}
}

// tokenFee converts a native fee into the fee token with the safety margin, rounded to the token precision
func tokenFee(ethGasFee, ethToToken decimal.Decimal, decimals int32) decimal.Decimal {
	return ethGasFee.Mul(ethToToken).Mul(gasPriceIncreaseCoefficient).Round(decimals)
}

// toBaseUnits truncates a token amount to its smallest unit
func toBaseUnits(amount decimal.Decimal, decimals int32) *big.Int {
	return amount.Shift(decimals).BigInt()
}

// averageRate is the mean native price of one token over the quoted trades
func averageRate(ethFees, tokenVolumes []decimal.Decimal) decimal.Decimal {
	if len(ethFees) == 0 {
		return decimal.Zero
	}
	sum := decimal.Zero
	for i := range ethFees {
		sum = sum.Add(ethFees[i].DivRound(tokenVolumes[i], ratePrecision))
	}
	return sum.DivRound(decimal.NewFromInt(int64(len(ethFees))), ratePrecision)
}
