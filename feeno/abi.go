package feeno

import (
	"context"
	"errors"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/math"
)

const erc20ABIJSON = `[
{"type":"function","name":"name","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"string"}]},
{"type":"function","name":"symbol","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"string"}]},
{"type":"function","name":"decimals","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint8"}]},
{"type":"function","name":"allowance","stateMutability":"view","inputs":[{"name":"owner","type":"address"},{"name":"spender","type":"address"}],"outputs":[{"name":"","type":"uint256"}]},
{"type":"function","name":"approve","stateMutability":"nonpayable","inputs":[{"name":"spender","type":"address"},{"name":"amount","type":"uint256"}],"outputs":[{"name":"","type":"bool"}]},
{"type":"function","name":"transfer","stateMutability":"nonpayable","inputs":[{"name":"to","type":"address"},{"name":"amount","type":"uint256"}],"outputs":[{"name":"","type":"bool"}]}
]`

const uniswapV2RouterABIJSON = `[
{"type":"function","name":"getAmountsOut","stateMutability":"view","inputs":[{"name":"amountIn","type":"uint256"},{"name":"path","type":"address[]"}],"outputs":[{"name":"amounts","type":"uint256[]"}]}
]`

// the settlement contract pulls the approved fee from the payer and either swaps it on the DEX or keeps it for the CEX desk
const settlementABIJSON = `[
{"type":"function","name":"swapFeeOnDex","stateMutability":"nonpayable","inputs":[{"name":"token","type":"address"},{"name":"payer","type":"address"},{"name":"amount","type":"uint256"},{"name":"minNativeOut","type":"uint256"}],"outputs":[]},
{"type":"function","name":"collectFee","stateMutability":"nonpayable","inputs":[{"name":"token","type":"address"},{"name":"payer","type":"address"},{"name":"amount","type":"uint256"}],"outputs":[]}
]`

var (
	erc20ABI           = mustParseABI(erc20ABIJSON)
	uniswapV2RouterABI = mustParseABI(uniswapV2RouterABIJSON)
	settlementABI      = mustParseABI(settlementABIJSON)

	errUnexpectedOutput = errors.New("unexpected contract call output")

	// approvals below half of the max value are not treated as unlimited
	unlimitedAllowanceThreshold = new(big.Int).Rsh(math.MaxBig256, 1)
)

func mustParseABI(data string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(data))
	if err != nil {
		panic(err)
	}
	return parsed
}

// callView packs a view call, executes it on the latest block and unpacks the single return value
func callView(ctx context.Context, caller ethereum.ContractCaller, contract abi.ABI, to common.Address, method string, args ...interface{}) (interface{}, error) {
	data, err := contract.Pack(method, args...)
	if err != nil {
		return nil, err
	}
	res, err := caller.CallContract(ctx, ethereum.CallMsg{To: &to, Data: data}, nil)
	if err != nil {
		return nil, err
	}
	out, err := contract.Unpack(method, res)
	if err != nil {
		return nil, err
	}
	if len(out) != 1 {
		return nil, errUnexpectedOutput
	}
	return out[0], nil
}
