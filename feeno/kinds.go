package feeno

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/params"
)

const (
	// settlement calls can not be simulated before the approval lands, so their usage is fixed
	feeSwapGas    uint64 = 180_000
	feeCollectGas uint64 = 90_000
)

// SimulationInput is what a kind needs to estimate the gas of one strategy
type SimulationInput struct {
	Params          TxParams
	Sender          common.Address
	FeeToken        *Token
	FeePayer        FeePayer
	ApproveRequired bool
}

// BuildInput carries the priced tier the transaction payload is built for
type BuildInput struct {
	Params          TxParams
	Sender          common.Address
	FeeToken        *Token
	FeePayer        FeePayer
	ApproveRequired bool
	Estimate        GasEstimate
	// FeeAmount is the fee in fee token base units
	FeeAmount *big.Int
	// NativeFee is the priced gas cost in wei
	NativeFee *big.Int
	// per gas, wei
	BaseFee *big.Int
	Tip     *big.Int
}

// TransactionKind is implemented by every transaction type the node can quote
type TransactionKind interface {
	Name() string
	RequiredParams() []string
	Validate(params TxParams, feeToken *common.Address, payer FeePayer) error
	ApproveRequired(ctx context.Context, sender common.Address, feeToken *Token) (bool, error)
	Simulate(ctx context.Context, strategy Strategy, in SimulationInput) (GasEstimate, error)
	BuildTransaction(ctx context.Context, strategy Strategy, in BuildInput) (*BuiltTransaction, error)
}

// Kinds is the closed registry of transaction kinds
type Kinds map[string]TransactionKind

func NewKinds(kinds ...TransactionKind) Kinds {
	res := make(Kinds, len(kinds))
	for _, k := range kinds {
		res[k.Name()] = k
	}
	return res
}

// Validate checks the request against the declared parameters of its kind
func (k Kinds) Validate(req *QuoteRequest) (TransactionKind, error) {
	kind, ok := k[req.TransactionType]
	if !ok {
		return nil, ErrInvalidRequest.WithMessage("Wrong transactionType")
	}
	if len(req.TransactionBody) == 0 {
		return nil, ErrInvalidRequest
	}
	for _, param := range kind.RequiredParams() {
		if _, ok := req.TransactionBody[param]; !ok {
			return nil, ErrInvalidRequest.WithMessage(fmt.Sprintf("%s not found in transactionBody", param))
		}
	}
	if !req.FeePayer.Valid() {
		return nil, ErrInvalidRequest
	}
	if err := kind.Validate(req.TransactionBody, req.ERC20TokenToPayFee, req.FeePayer); err != nil {
		return nil, err
	}
	return kind, nil
}

type SettlementConfig struct {
	// Contract pulls token fees from the payer
	Contract common.Address
	// Relayer is the account that sends the settlement and funding transactions
	Relayer common.Address
}

// settlement holds the sub-steps shared by every kind: funding, approval and the fee leg
type settlement struct {
	config    SettlementConfig
	caller    ethereum.ContractCaller
	simulator Simulator
}

func newSettlement(config SettlementConfig, caller ethereum.ContractCaller, simulator Simulator) settlement {
	return settlement{config: config, caller: caller, simulator: simulator}
}

func (s settlement) approveRequired(ctx context.Context, sender common.Address, feeToken *Token) (bool, error) {
	if feeToken.IsNative() {
		return false, nil
	}
	out, err := callView(ctx, s.caller, erc20ABI, *feeToken.Address, "allowance", sender, s.config.Contract)
	if err != nil {
		return false, err
	}
	allowance, ok := out.(*big.Int)
	if !ok {
		return false, errUnexpectedOutput
	}
	return allowance.Cmp(unlimitedAllowanceThreshold) < 0, nil
}

func approveCalldata(spender common.Address) []byte {
	data, err := erc20ABI.Pack("approve", spender, math.MaxBig256)
	if err != nil {
		panic(err)
	}
	return data
}

// simulatePrefix estimates the funding and approval sub-steps that precede the user action
func (s settlement) simulatePrefix(ctx context.Context, in SimulationInput, sims Simulations) error {
	if !in.ApproveRequired {
		return nil
	}
	sims[SubStepETHTransfer] = []Simulation{{To: in.Sender, GasUsage: params.TxGas}}

	token := *in.FeeToken.Address
	gas, err := s.simulator.EstimateGas(ctx, ethereum.CallMsg{
		From: in.Sender,
		To:   &token,
		Data: approveCalldata(s.config.Contract),
	})
	if err != nil {
		return fmt.Errorf("approve: %w", err)
	}
	sims[SubStepApprove] = []Simulation{{To: token, GasUsage: gas}}
	return nil
}

// simulateFee adds the fee leg, paying in the native asset needs none
func (s settlement) simulateFee(strategy Strategy, in SimulationInput, sims Simulations) {
	if in.FeeToken.IsNative() {
		return
	}
	switch strategy {
	case StrategyDEX:
		sims[SubStepFeeSwap] = []Simulation{{To: s.config.Contract, GasUsage: feeSwapGas}}
	case StrategyCEX:
		sims[SubStepFeeCollect] = []Simulation{{To: s.config.Contract, GasUsage: feeCollectGas}}
	}
}

func total(sims Simulations) GasEstimate {
	var totalGas uint64
	for _, calls := range sims {
		for _, sim := range calls {
			totalGas += sim.GasUsage
		}
	}
	return GasEstimate{TotalGasUsage: totalGas, Simulations: sims}
}

func maxFeePerGas(in BuildInput) *big.Int {
	fee := new(big.Int).Mul(in.BaseFee, big.NewInt(2))
	return fee.Add(fee, in.Tip)
}

func (s settlement) newTx(in BuildInput, signer string, from *common.Address, to common.Address, value *big.Int, data []byte, gas uint64) TxRequest {
	if value == nil {
		value = new(big.Int)
	}
	return TxRequest{
		Signer:               signer,
		From:                 from,
		To:                   to,
		Value:                (*hexutil.Big)(value),
		Data:                 data,
		Gas:                  hexutil.Uint64(gas),
		MaxFeePerGas:         (*hexutil.Big)(maxFeePerGas(in)),
		MaxPriorityFeePerGas: (*hexutil.Big)(new(big.Int).Set(in.Tip)),
	}
}

// buildPrefix returns the funding and approval transactions, the funding covers the gas of every user signed step
func (s settlement) buildPrefix(in BuildInput, userSteps ...string) []TxRequest {
	if !in.ApproveRequired {
		return nil
	}
	userGas := in.Estimate.Simulations.GasUsage(append([]string{SubStepApprove}, userSteps...)...)
	funding := new(big.Int).Mul(maxFeePerGas(in), new(big.Int).SetUint64(userGas))

	relayer := s.config.Relayer
	sender := in.Sender
	return []TxRequest{
		s.newTx(in, SignerFeeno, &relayer, sender, funding, nil, params.TxGas),
		s.newTx(in, SignerUser, &sender, *in.FeeToken.Address, nil, approveCalldata(s.config.Contract),
			in.Estimate.Simulations.GasUsage(SubStepApprove)),
	}
}

func (s settlement) buildFee(strategy Strategy, in BuildInput) ([]TxRequest, error) {
	if in.FeeToken.IsNative() {
		return nil, nil
	}
	relayer := s.config.Relayer
	token := *in.FeeToken.Address

	var (
		data []byte
		err  error
		gas  uint64
	)
	switch strategy {
	case StrategyDEX:
		// the swap must at least pay back the quoted native fee
		data, err = settlementABI.Pack("swapFeeOnDex", token, in.Sender, in.FeeAmount, in.NativeFee)
		gas = in.Estimate.Simulations.GasUsage(SubStepFeeSwap)
	case StrategyCEX:
		data, err = settlementABI.Pack("collectFee", token, in.Sender, in.FeeAmount)
		gas = in.Estimate.Simulations.GasUsage(SubStepFeeCollect)
	default:
		return nil, fmt.Errorf("unsupported strategy %s", strategy)
	}
	if err != nil {
		return nil, err
	}
	return []TxRequest{s.newTx(in, SignerFeeno, &relayer, s.config.Contract, nil, data, gas)}, nil
}
