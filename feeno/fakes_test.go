package feeno

import (
	"bytes"
	"context"
	"errors"
	"math/big"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
)

var (
	errReverted = errors.New("execution reverted")

	testSender     = common.HexToAddress("0x1111111111111111111111111111111111111111")
	testReceiver   = common.HexToAddress("0x2222222222222222222222222222222222222222")
	testSettlement = common.HexToAddress("0x3333333333333333333333333333333333333333")
	testRelayer    = common.HexToAddress("0x4444444444444444444444444444444444444444")
	testRouter     = common.HexToAddress("0x5555555555555555555555555555555555555555")
	testWETH       = common.HexToAddress("0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2")
	testUSDC       = common.HexToAddress("0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48")
	testDAI        = common.HexToAddress("0x6B175474E89094C44Da98b954EedeAC495271d0F")

	testSettlementConfig = SettlementConfig{Contract: testSettlement, Relayer: testRelayer}
)

func addressPtr(a common.Address) *common.Address {
	return &a
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

// fakeChain answers ERC20 and router view calls from in-memory state
type fakeChain struct {
	mu         sync.Mutex
	allowance  map[common.Address]*big.Int
	decimals   map[common.Address]uint8
	symbols    map[common.Address]string
	amountsOut map[common.Address]*big.Int
	err        error
	calls      int
}

func newFakeChain() *fakeChain {
	return &fakeChain{
		allowance:  make(map[common.Address]*big.Int),
		decimals:   make(map[common.Address]uint8),
		symbols:    make(map[common.Address]string),
		amountsOut: make(map[common.Address]*big.Int),
	}
}

func (c *fakeChain) callCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}

func (c *fakeChain) CallContract(_ context.Context, call ethereum.CallMsg, _ *big.Int) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++
	if c.err != nil {
		return nil, c.err
	}
	if len(call.Data) < 4 || call.To == nil {
		return nil, errReverted
	}

	for _, contract := range []abi.ABI{erc20ABI, uniswapV2RouterABI} {
		method, err := contract.MethodById(call.Data[:4])
		if err != nil {
			continue
		}
		args, err := method.Inputs.Unpack(call.Data[4:])
		if err != nil {
			return nil, err
		}
		switch method.Name {
		case "allowance":
			v, ok := c.allowance[*call.To]
			if !ok {
				v = new(big.Int)
			}
			return method.Outputs.Pack(v)
		case "decimals":
			d, ok := c.decimals[*call.To]
			if !ok {
				return nil, errReverted
			}
			return method.Outputs.Pack(d)
		case "symbol":
			s, ok := c.symbols[*call.To]
			if !ok {
				return nil, errReverted
			}
			return method.Outputs.Pack(s)
		case "getAmountsOut":
			amountIn := args[0].(*big.Int)
			path := args[1].([]common.Address)
			out, ok := c.amountsOut[path[0]]
			if !ok {
				return nil, errReverted
			}
			return method.Outputs.Pack([]*big.Int{amountIn, out})
		}
	}
	return nil, errReverted
}

// fakeSimulator returns fixed gas per call shape
type fakeSimulator struct {
	transferGas uint64
	approveGas  uint64
	tokenGas    uint64
	err         error
	calls       atomic.Int32
}

func newFakeSimulator() *fakeSimulator {
	return &fakeSimulator{transferGas: 21_000, approveGas: 46_000, tokenGas: 52_000}
}

func (s *fakeSimulator) EstimateGas(_ context.Context, msg ethereum.CallMsg) (uint64, error) {
	s.calls.Add(1)
	if s.err != nil {
		return 0, s.err
	}
	switch {
	case len(msg.Data) >= 4 && bytes.Equal(msg.Data[:4], erc20ABI.Methods["approve"].ID):
		return s.approveGas, nil
	case len(msg.Data) > 0:
		return s.tokenGas, nil
	default:
		return s.transferGas, nil
	}
}

type fakeOracle struct {
	snapshot *GasPriceSnapshot
	err      error
}

func (o *fakeOracle) GasPrice(context.Context) (*GasPriceSnapshot, error) {
	return o.snapshot, o.err
}

func testSnapshot() *GasPriceSnapshot {
	return &GasPriceSnapshot{
		BaseFee: dec("10"),
		MaxPriorityFeePerGas: map[string]decimal.Decimal{
			"slow":     dec("1"),
			"standard": dec("2"),
			"fast":     dec("3"),
		},
	}
}

type fakePrices struct {
	price TokenPrice
	err   error
	calls atomic.Int32
}

func (p *fakePrices) TokenPrice(context.Context, *Token) (TokenPrice, error) {
	p.calls.Add(1)
	return p.price, p.err
}

type fakeVenue struct {
	mu        sync.Mutex
	volumes   []decimal.Decimal
	err       error
	symbol    string
	requested []decimal.Decimal
	calls     int
}

func (v *fakeVenue) TradeEstimate(_ context.Context, symbol string, ethAmounts []decimal.Decimal) ([]decimal.Decimal, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.calls++
	v.symbol = symbol
	v.requested = ethAmounts
	return v.volumes, v.err
}

type cancelNotification struct {
	bundleID, broadcasts, initiator string
}

type fakeNotifier struct {
	mu   sync.Mutex
	sent []cancelNotification
	err  error
}

func (n *fakeNotifier) NotifyCancel(_ context.Context, bundleID, broadcasts, initiator string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, cancelNotification{bundleID, broadcasts, initiator})
	return n.err
}

func (n *fakeNotifier) notifications() []cancelNotification {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]cancelNotification(nil), n.sent...)
}

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	s := miniredis.RunT(t)
	red := redis.NewClient(&redis.Options{Addr: s.Addr()})
	t.Cleanup(func() { _ = red.Close() })
	return s, red
}
