package feeno

import (
	"encoding/json"
	"fmt"
	"math/big"
	"sort"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/shopspring/decimal"
)

const (
	EstimateEndpointName     = "feeno_estimate"
	GetEstimateEndpointName  = "feeno_getEstimate"
	GetBundleEndpointName    = "feeno_getBundle"
	CancelBundleEndpointName = "feeno_cancelBundle"
	TokensEndpointName       = "feeno_tokens"
)

type FeePayer string

const (
	FeePayerSender   FeePayer = "sender"
	FeePayerReceiver FeePayer = "receiver"
)

func (p FeePayer) Valid() bool {
	return p == FeePayerSender || p == FeePayerReceiver
}

// Strategy is the route used to settle the fee
type Strategy string

const (
	StrategyDEX Strategy = "dexSwap"
	StrategyCEX Strategy = "cexSwap"
)

// SupportedStrategies is the fixed set of strategies every quote covers
var SupportedStrategies = []Strategy{StrategyDEX, StrategyCEX}

// TxParams is the kind specific transaction body.
// Values are kept as strings, JSON numbers are accepted and kept verbatim so large amounts are not rounded.
type TxParams map[string]string

func (p *TxParams) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	params := make(TxParams, len(raw))
	for name, value := range raw {
		var s string
		if err := json.Unmarshal(value, &s); err == nil {
			params[name] = s
			continue
		}
		var n json.Number
		if err := json.Unmarshal(value, &n); err != nil {
			return fmt.Errorf("transactionBody.%s: %w", name, err)
		}
		params[name] = n.String()
	}
	*p = params
	return nil
}

func (p TxParams) Address(name string) (common.Address, error) {
	value := p[name]
	if !common.IsHexAddress(value) {
		return common.Address{}, ErrInvalidRequest.WithMessage(fmt.Sprintf("%s is not a valid address", name))
	}
	return common.HexToAddress(value), nil
}

// Amount parses a decimal or 0x-prefixed hex integer amount in base units
func (p TxParams) Amount(name string) (*big.Int, error) {
	raw := strings.TrimSpace(p[name])
	value, ok := math.ParseBig256(raw)
	if raw == "" || !ok || value.Sign() < 0 {
		return nil, ErrInvalidRequest.WithMessage(fmt.Sprintf("%s is not a valid amount", name))
	}
	return value, nil
}

type QuoteRequest struct {
	TransactionType    string          `json:"transactionType"`
	TransactionBody    TxParams        `json:"transactionBody"`
	AddressFrom        common.Address  `json:"addressFrom"`
	ERC20TokenToPayFee *common.Address `json:"erc20TokenToPayFee"`
	FeePayer           FeePayer        `json:"feePayer"`
}

// GasPriceSnapshot is the oracle answer in gwei
type GasPriceSnapshot struct {
	BaseFee              decimal.Decimal            `json:"baseFee"`
	MaxPriorityFeePerGas map[string]decimal.Decimal `json:"maxPriorityFeePerGas"`
}

// Speeds returns tier names ordered by priority fee, cheapest first
func (s *GasPriceSnapshot) Speeds() []string {
	speeds := make([]string, 0, len(s.MaxPriorityFeePerGas))
	for speed := range s.MaxPriorityFeePerGas {
		speeds = append(speeds, speed)
	}
	sort.Slice(speeds, func(i, j int) bool {
		a, b := s.MaxPriorityFeePerGas[speeds[i]], s.MaxPriorityFeePerGas[speeds[j]]
		if c := a.Cmp(b); c != 0 {
			return c < 0
		}
		return speeds[i] < speeds[j]
	})
	return speeds
}

type Token struct {
	Address  *common.Address `json:"address"`
	Name     string          `json:"name,omitempty"`
	Symbol   string          `json:"symbol"`
	Decimals int32           `json:"decimals"`
	// CEXSymbol is the market name on the centralized venue, empty if the venue does not trade the token
	CEXSymbol string `json:"cexSymbol,omitempty"`
}

func (t *Token) IsNative() bool {
	return t.Address == nil
}

// NativeToken is the fee token used when the caller pays in the chain asset
var NativeToken = Token{Name: "Ether", Symbol: "ETH", Decimals: NativeDecimals}

// TokenPrice is the exchange rate between the chain asset and the fee token
type TokenPrice struct {
	ETHToToken decimal.Decimal
	TokenToETH decimal.Decimal
}

var unitPrice = TokenPrice{ETHToToken: decimal.NewFromInt(1), TokenToETH: decimal.NewFromInt(1)}

// Sub-steps reported in simulations
const (
	SubStepETHTransfer = "ethTransfer"
	SubStepApprove     = "approve"
	SubStepFeeSwap     = "feeSwap"
	SubStepFeeCollect  = "feeCollect"
)

type Simulation struct {
	To       common.Address `json:"to"`
	GasUsage uint64         `json:"gasUsage"`
}

// Simulations maps a sub-step name to the calls it is made of
type Simulations map[string][]Simulation

func (s Simulations) GasUsage(steps ...string) uint64 {
	var total uint64
	for _, step := range steps {
		for _, sim := range s[step] {
			total += sim.GasUsage
		}
	}
	return total
}

type GasEstimate struct {
	TotalGasUsage uint64
	Simulations   Simulations
}

// TxRequest is an unsigned transaction of the bundle
type TxRequest struct {
	// Signer is "user" for transactions the caller signs and "feeno" for the ones the relayer sends
	Signer               string          `json:"signer"`
	From                 *common.Address `json:"from,omitempty"`
	To                   common.Address  `json:"to"`
	Value                *hexutil.Big    `json:"value"`
	Data                 hexutil.Bytes   `json:"data,omitempty"`
	Gas                  hexutil.Uint64  `json:"gas"`
	MaxFeePerGas         *hexutil.Big    `json:"maxFeePerGas"`
	MaxPriorityFeePerGas *hexutil.Big    `json:"maxPriorityFeePerGas"`
}

const (
	SignerUser  = "user"
	SignerFeeno = "feeno"
)

// BuiltTransaction is the payload the caller signs to accept a quote
type BuiltTransaction struct {
	// FeeAmount is the fee in fee token base units
	FeeAmount    *hexutil.Big `json:"feeAmount"`
	Transactions []TxRequest  `json:"transactions"`
}

type SpeedQuote struct {
	ETHGasFee        decimal.Decimal   `json:"ethGasFee"`
	TokenBasedGasFee decimal.Decimal   `json:"tokenBasedGasFee"`
	MinerTip         *decimal.Decimal  `json:"minerTip,omitempty"`
	Data             *BuiltTransaction `json:"data,omitempty"`
}

type StrategyQuote struct {
	Message          string                 `json:"message,omitempty"`
	ETHTokenPrice    *decimal.Decimal       `json:"ethTokenPrice,omitempty"`
	TotalGasUsage    uint64                 `json:"totalGasUsage,omitempty"`
	Simulations      Simulations            `json:"simulations,omitempty"`
	GasUsageDiscount *uint64                `json:"gasUsageDiscount,omitempty"`
	MiningSpeed      map[string]*SpeedQuote `json:"miningSpeed,omitempty"`
}

func degraded(message string) *StrategyQuote {
	return &StrategyQuote{Message: message}
}

func (s *StrategyQuote) Degraded() bool {
	return s.Message != ""
}

type Quote struct {
	Status             bool                        `json:"status"`
	ID                 string                      `json:"id"`
	ERC20TokenToPayFee *common.Address             `json:"erc20TokenToPayFee"`
	ApproveRequired    bool                        `json:"approveRequired"`
	MarketGasPriceGwei *GasPriceSnapshot           `json:"marketGasPriceGwei"`
	FeePayer           FeePayer                    `json:"feePayer"`
	TransactionType    string                      `json:"transactionType"`
	AddressFrom        common.Address              `json:"addressFrom"`
	ExecutionSwap      map[Strategy]*StrategyQuote `json:"executionSwap"`
	ETHQuantity        string                      `json:"ETHQuantity,omitempty"`
}

// Redacted returns a copy of the quote without miner tips and discount bookkeeping.
// The receiver is left untouched.
func (q *Quote) Redacted() *Quote {
	res := *q
	res.ExecutionSwap = make(map[Strategy]*StrategyQuote, len(q.ExecutionSwap))
	for strategy, sq := range q.ExecutionSwap {
		cp := *sq
		cp.GasUsageDiscount = nil
		if sq.MiningSpeed != nil {
			cp.MiningSpeed = make(map[string]*SpeedQuote, len(sq.MiningSpeed))
			for speed, quote := range sq.MiningSpeed {
				speedCopy := *quote
				speedCopy.MinerTip = nil
				cp.MiningSpeed[speed] = &speedCopy
			}
		}
		res.ExecutionSwap[strategy] = &cp
	}
	return &res
}
