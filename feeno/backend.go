package feeno

import (
	"context"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

type GasOracle interface {
	GasPrice(ctx context.Context) (*GasPriceSnapshot, error)
}

type TokenResolver interface {
	// ResolveToken returns NativeToken for a nil address and ErrUnknownToken if the contract is not an ERC20
	ResolveToken(ctx context.Context, address *common.Address) (*Token, error)
	Tokens() []Token
}

// PriceClient returns the DEX implied rate of a token
type PriceClient interface {
	TokenPrice(ctx context.Context, token *Token) (TokenPrice, error)
}

// VenueClient quotes how many tokens the centralized venue needs to buy each of the native amounts.
// The result is index aligned with ethAmounts, a zero volume means the amount can not be quoted.
type VenueClient interface {
	TradeEstimate(ctx context.Context, symbol string, ethAmounts []decimal.Decimal) ([]decimal.Decimal, error)
}

// Simulator estimates the gas used by a single call
type Simulator interface {
	EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error)
}
