package feeno

import (
	"context"
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDEXPriceClient(t *testing.T) {
	ctx := context.Background()
	chain := newFakeChain()
	client := NewDEXPriceClient(chain, DEXConfig{Router: testRouter, WETH: testWETH})

	// 1 USDC buys 0.0005 WETH
	chain.amountsOut[testUSDC] = big.NewInt(500_000_000_000_000)
	usdc := &Token{Address: addressPtr(testUSDC), Symbol: "USDC", Decimals: 6}

	price, err := client.TokenPrice(ctx, usdc)
	require.NoError(t, err)
	requireDecimal(t, "0.0005", price.TokenToETH)
	requireDecimal(t, "2000", price.ETHToToken)

	// cached
	calls := chain.callCount()
	_, err = client.TokenPrice(ctx, usdc)
	require.NoError(t, err)
	require.Equal(t, calls, chain.callCount())

	price, err = client.TokenPrice(ctx, &NativeToken)
	require.NoError(t, err)
	require.Equal(t, unitPrice, price)

	price, err = client.TokenPrice(ctx, &Token{Address: addressPtr(testWETH), Symbol: "WETH", Decimals: 18})
	require.NoError(t, err)
	require.Equal(t, unitPrice, price)
	require.Equal(t, calls, chain.callCount())
}

func TestDEXPriceClientNoLiquidity(t *testing.T) {
	chain := newFakeChain()
	client := NewDEXPriceClient(chain, DEXConfig{Router: testRouter, WETH: testWETH})

	chain.amountsOut[testDAI] = new(big.Int)
	_, err := client.TokenPrice(context.Background(), &Token{Address: addressPtr(testDAI), Symbol: "DAI", Decimals: 18})
	require.ErrorIs(t, err, ErrNoLiquidity)

	_, err = client.TokenPrice(context.Background(), &Token{Address: addressPtr(testUSDC), Symbol: "USDC", Decimals: 6})
	require.ErrorIs(t, err, errReverted)
}

func TestPriceKey(t *testing.T) {
	token := &Token{Address: addressPtr(testUSDC), Decimals: 6}
	address, decimals, err := parsePriceKey(priceKey(token))
	require.NoError(t, err)
	require.Equal(t, testUSDC, address)
	require.Equal(t, int32(6), decimals)

	_, _, err = parsePriceKey("0x12")
	require.ErrorIs(t, err, errInvalidPriceKey)
	_, _, err = parsePriceKey(testUSDC.Hex() + ":x")
	require.Error(t, err)
}
