package feeno

import (
	"context"
	"errors"
	"os"
	"strings"
	"time"

	"github.com/bogdanuch/feeno-api/spike"
	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"gopkg.in/yaml.v3"
)

var (
	ErrInvalidTokenConfig = errors.New("invalid token config")

	tokenCacheTime      = time.Hour
	tokenErrorCacheTime = time.Minute
)

type TokensConfig struct {
	Tokens []struct {
		Address   string `yaml:"address"`
		Name      string `yaml:"name"`
		Symbol    string `yaml:"symbol"`
		Decimals  int32  `yaml:"decimals"`
		CEXSymbol string `yaml:"cexSymbol"`
	} `yaml:"tokens"`
}

// TokenRegistry serves the configured fee tokens and falls back to reading ERC20 metadata on chain
type TokenRegistry struct {
	caller ethereum.ContractCaller
	known  map[common.Address]Token
	list   []Token
	lookup *spike.Manager[Token]
}

// LoadTokenRegistry parses a token list from a file
func LoadTokenRegistry(file string, caller ethereum.ContractCaller) (*TokenRegistry, error) {
	data, err := os.ReadFile(file)
	if err != nil {
		return nil, err
	}

	var config TokensConfig
	err = yaml.Unmarshal(data, &config)
	if err != nil {
		return nil, err
	}

	tokens := make([]Token, 0, len(config.Tokens))
	for _, t := range config.Tokens {
		if !common.IsHexAddress(t.Address) || t.Symbol == "" || t.Decimals < 0 || t.Decimals > 36 {
			return nil, ErrInvalidTokenConfig
		}
		address := common.HexToAddress(t.Address)
		tokens = append(tokens, Token{
			Address:   &address,
			Name:      t.Name,
			Symbol:    t.Symbol,
			Decimals:  t.Decimals,
			CEXSymbol: t.CEXSymbol,
		})
	}
	return NewTokenRegistry(tokens, caller), nil
}

func NewTokenRegistry(tokens []Token, caller ethereum.ContractCaller) *TokenRegistry {
	r := &TokenRegistry{
		caller: caller,
		known:  make(map[common.Address]Token, len(tokens)),
		list:   tokens,
	}
	for _, t := range tokens {
		r.known[*t.Address] = t
	}
	r.lookup = spike.NewManagerWithErrorCache(r.fetchToken, tokenCacheTime, tokenErrorCacheTime)
	return r
}

func (r *TokenRegistry) Tokens() []Token {
	res := make([]Token, 0, len(r.list)+1)
	res = append(res, NativeToken)
	return append(res, r.list...)
}

func (r *TokenRegistry) ResolveToken(ctx context.Context, address *common.Address) (*Token, error) {
	if address == nil || *address == (common.Address{}) {
		token := NativeToken
		return &token, nil
	}
	if token, ok := r.known[*address]; ok {
		return &token, nil
	}
	token, err := r.lookup.GetResult(ctx, address.Hex())
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, ErrUnknownToken
	}
	return &token, nil
}

// fetchToken reads metadata of a token that is not on the list, such tokens have no CEX market
func (r *TokenRegistry) fetchToken(ctx context.Context, key string) (Token, error) {
	address := common.HexToAddress(key)
	decimals, err := callView(ctx, r.caller, erc20ABI, address, "decimals")
	if err != nil {
		return Token{}, err
	}
	dec, ok := decimals.(uint8)
	if !ok {
		return Token{}, errUnexpectedOutput
	}
	symbol, err := callView(ctx, r.caller, erc20ABI, address, "symbol")
	if err != nil {
		return Token{}, err
	}
	sym, ok := symbol.(string)
	if !ok || strings.TrimSpace(sym) == "" {
		return Token{}, errUnexpectedOutput
	}
	return Token{
		Address:  &address,
		Symbol:   sym,
		Decimals: int32(dec),
	}, nil
}
