package feeno

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"
)

func writeTokensFile(t *testing.T, content string) string {
	t.Helper()
	file := filepath.Join(t.TempDir(), "tokens.yaml")
	require.NoError(t, os.WriteFile(file, []byte(content), 0o600))
	return file
}

func TestLoadTokenRegistry(t *testing.T) {
	file := writeTokensFile(t, `
tokens:
  - address: "0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48"
    name: USD Coin
    symbol: USDC
    decimals: 6
    cexSymbol: USDC
  - address: "0x6B175474E89094C44Da98b954EedeAC495271d0F"
    symbol: DAI
    decimals: 18
`)
	registry, err := LoadTokenRegistry(file, newFakeChain())
	require.NoError(t, err)

	tokens := registry.Tokens()
	require.Len(t, tokens, 3)
	require.True(t, tokens[0].IsNative())
	require.Equal(t, "USDC", tokens[1].Symbol)
	require.Equal(t, "USD Coin", tokens[1].Name)
	require.Equal(t, int32(6), tokens[1].Decimals)
	require.Equal(t, "USDC", tokens[1].CEXSymbol)
	require.Equal(t, testDAI, *tokens[2].Address)
	require.Empty(t, tokens[2].CEXSymbol)
}

func TestLoadTokenRegistryInvalid(t *testing.T) {
	testCases := map[string]string{
		"bad address":     "tokens:\n  - address: \"0x12\"\n    symbol: X\n    decimals: 6\n",
		"missing symbol":  "tokens:\n  - address: \"0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48\"\n    decimals: 6\n",
		"negative digits": "tokens:\n  - address: \"0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48\"\n    symbol: X\n    decimals: -1\n",
	}
	for name, content := range testCases {
		t.Run(name, func(t *testing.T) {
			_, err := LoadTokenRegistry(writeTokensFile(t, content), newFakeChain())
			require.ErrorIs(t, err, ErrInvalidTokenConfig)
		})
	}

	_, err := LoadTokenRegistry(writeTokensFile(t, "tokens: [\n"), newFakeChain())
	require.Error(t, err)

	_, err = LoadTokenRegistry(filepath.Join(t.TempDir(), "missing.yaml"), newFakeChain())
	require.Error(t, err)
}

func TestResolveToken(t *testing.T) {
	ctx := context.Background()
	chain := newFakeChain()
	registry := NewTokenRegistry([]Token{{Address: addressPtr(testUSDC), Symbol: "USDC", Decimals: 6, CEXSymbol: "USDC"}}, chain)

	token, err := registry.ResolveToken(ctx, nil)
	require.NoError(t, err)
	require.True(t, token.IsNative())

	token, err = registry.ResolveToken(ctx, addressPtr(common.Address{}))
	require.NoError(t, err)
	require.True(t, token.IsNative())

	token, err = registry.ResolveToken(ctx, addressPtr(testUSDC))
	require.NoError(t, err)
	require.Equal(t, "USDC", token.CEXSymbol)
	require.Equal(t, 0, chain.callCount())

	// tokens off the list are read from chain and have no venue market
	chain.decimals[testDAI] = 18
	chain.symbols[testDAI] = "DAI"
	token, err = registry.ResolveToken(ctx, addressPtr(testDAI))
	require.NoError(t, err)
	require.Equal(t, "DAI", token.Symbol)
	require.Equal(t, int32(18), token.Decimals)
	require.Empty(t, token.CEXSymbol)
	calls := chain.callCount()

	_, err = registry.ResolveToken(ctx, addressPtr(testDAI))
	require.NoError(t, err)
	require.Equal(t, calls, chain.callCount())

	_, err = registry.ResolveToken(ctx, addressPtr(testRouter))
	require.ErrorIs(t, err, ErrUnknownToken)
}
