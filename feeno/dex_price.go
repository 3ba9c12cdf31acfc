package feeno

import (
	"context"
	"errors"
	"math/big"
	"strconv"
	"strings"
	"time"

	"github.com/bogdanuch/feeno-api/spike"
	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

var (
	ErrNoLiquidity     = errors.New("no liquidity for token")
	errInvalidPriceKey = errors.New("invalid price key")

	priceCacheTime      = 12 * time.Second
	priceErrorCacheTime = 3 * time.Second
)

type DEXConfig struct {
	Router common.Address
	WETH   common.Address
}

// DEXPriceClient reads the rate of one whole token from a Uniswap V2 style router
type DEXPriceClient struct {
	caller ethereum.ContractCaller
	config DEXConfig
	// keyed by address and decimals so the fetch does not need a second lookup
	prices *spike.Manager[TokenPrice]
}

func NewDEXPriceClient(caller ethereum.ContractCaller, config DEXConfig) *DEXPriceClient {
	c := &DEXPriceClient{caller: caller, config: config}
	c.prices = spike.NewManagerWithErrorCache(c.fetchPrice, priceCacheTime, priceErrorCacheTime)
	return c
}

func (c *DEXPriceClient) TokenPrice(ctx context.Context, token *Token) (TokenPrice, error) {
	if token.IsNative() || *token.Address == c.config.WETH {
		return unitPrice, nil
	}
	return c.prices.GetResult(ctx, priceKey(token))
}

func priceKey(token *Token) string {
	return token.Address.Hex() + ":" + strconv.Itoa(int(token.Decimals))
}

func parsePriceKey(key string) (common.Address, int32, error) {
	address, decimals, ok := strings.Cut(key, ":")
	if !ok || !common.IsHexAddress(address) {
		return common.Address{}, 0, errInvalidPriceKey
	}
	d, err := strconv.ParseInt(decimals, 10, 32)
	if err != nil {
		return common.Address{}, 0, err
	}
	return common.HexToAddress(address), int32(d), nil
}

func (c *DEXPriceClient) fetchPrice(ctx context.Context, key string) (TokenPrice, error) {
	address, decimals, err := parsePriceKey(key)
	if err != nil {
		return TokenPrice{}, err
	}
	oneToken := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(decimals)), nil)
	out, err := callView(ctx, c.caller, uniswapV2RouterABI, c.config.Router, "getAmountsOut",
		oneToken, []common.Address{address, c.config.WETH})
	if err != nil {
		return TokenPrice{}, err
	}
	amounts, ok := out.([]*big.Int)
	if !ok || len(amounts) != 2 {
		return TokenPrice{}, errUnexpectedOutput
	}
	if amounts[1].Sign() <= 0 {
		return TokenPrice{}, ErrNoLiquidity
	}

	tokenToETH := weiToEther(amounts[1])
	return TokenPrice{
		TokenToETH: tokenToETH,
		ETHToToken: decimal.NewFromInt(1).DivRound(tokenToETH, ratePrecision),
	}, nil
}
