package feeno

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
)

const (
	SimpleTransferKind = "simpleTransfer"
	ERC20TransferKind  = "erc20Transfer"
)

var errFeeExceedsAmount = ErrInvalidRequest.WithMessage("Transferred amount does not cover the fee")

// deductFee returns the amount the receiver gets when the fee is taken out of the transfer
func deductFee(amount *big.Int, in BuildInput) (*big.Int, error) {
	if in.FeePayer != FeePayerReceiver {
		return amount, nil
	}
	if amount.Cmp(in.FeeAmount) <= 0 {
		return nil, errFeeExceedsAmount
	}
	return new(big.Int).Sub(amount, in.FeeAmount), nil
}

// SimpleTransfer moves the native asset
type SimpleTransfer struct {
	settlement
}

func NewSimpleTransfer(config SettlementConfig, caller ethereum.ContractCaller, simulator Simulator) *SimpleTransfer {
	return &SimpleTransfer{settlement: newSettlement(config, caller, simulator)}
}

func (k *SimpleTransfer) Name() string {
	return SimpleTransferKind
}

func (k *SimpleTransfer) RequiredParams() []string {
	return []string{"to", "value"}
}

func (k *SimpleTransfer) Validate(params TxParams, feeToken *common.Address, payer FeePayer) error {
	if _, err := params.Address("to"); err != nil {
		return err
	}
	if _, err := params.Amount("value"); err != nil {
		return err
	}
	if payer == FeePayerReceiver && feeToken != nil && *feeToken != (common.Address{}) {
		return ErrInvalidRequest.WithMessage("Receiver can only pay the fee in the transferred asset")
	}
	return nil
}

func (k *SimpleTransfer) ApproveRequired(ctx context.Context, sender common.Address, feeToken *Token) (bool, error) {
	return k.approveRequired(ctx, sender, feeToken)
}

func (k *SimpleTransfer) Simulate(ctx context.Context, strategy Strategy, in SimulationInput) (GasEstimate, error) {
	to, err := in.Params.Address("to")
	if err != nil {
		return GasEstimate{}, err
	}
	value, err := in.Params.Amount("value")
	if err != nil {
		return GasEstimate{}, err
	}

	sims := make(Simulations)
	if err := k.simulatePrefix(ctx, in, sims); err != nil {
		return GasEstimate{}, err
	}
	gas, err := k.simulator.EstimateGas(ctx, ethereum.CallMsg{From: in.Sender, To: &to, Value: value})
	if err != nil {
		return GasEstimate{}, fmt.Errorf("%s: %w", SimpleTransferKind, err)
	}
	sims[SimpleTransferKind] = []Simulation{{To: to, GasUsage: gas}}
	k.simulateFee(strategy, in, sims)
	return total(sims), nil
}

func (k *SimpleTransfer) BuildTransaction(_ context.Context, strategy Strategy, in BuildInput) (*BuiltTransaction, error) {
	to, err := in.Params.Address("to")
	if err != nil {
		return nil, err
	}
	value, err := in.Params.Amount("value")
	if err != nil {
		return nil, err
	}
	value, err = deductFee(value, in)
	if err != nil {
		return nil, err
	}

	sender := in.Sender
	txs := k.buildPrefix(in, SimpleTransferKind)
	txs = append(txs, k.newTx(in, SignerUser, &sender, to, value, nil, in.Estimate.Simulations.GasUsage(SimpleTransferKind)))
	fee, err := k.buildFee(strategy, in)
	if err != nil {
		return nil, err
	}
	return &BuiltTransaction{FeeAmount: toHexBig(in.FeeAmount), Transactions: append(txs, fee...)}, nil
}

// ERC20Transfer moves a token with transfer(to, amount)
type ERC20Transfer struct {
	settlement
}

func NewERC20Transfer(config SettlementConfig, caller ethereum.ContractCaller, simulator Simulator) *ERC20Transfer {
	return &ERC20Transfer{settlement: newSettlement(config, caller, simulator)}
}

func (k *ERC20Transfer) Name() string {
	return ERC20TransferKind
}

func (k *ERC20Transfer) RequiredParams() []string {
	return []string{"token", "to", "amount"}
}

func (k *ERC20Transfer) Validate(params TxParams, feeToken *common.Address, payer FeePayer) error {
	token, err := params.Address("token")
	if err != nil {
		return err
	}
	if _, err := params.Address("to"); err != nil {
		return err
	}
	if _, err := params.Amount("amount"); err != nil {
		return err
	}
	if payer == FeePayerReceiver && (feeToken == nil || *feeToken != token) {
		return ErrInvalidRequest.WithMessage("Receiver can only pay the fee in the transferred asset")
	}
	return nil
}

func (k *ERC20Transfer) ApproveRequired(ctx context.Context, sender common.Address, feeToken *Token) (bool, error) {
	return k.approveRequired(ctx, sender, feeToken)
}

func (k *ERC20Transfer) transferCall(params TxParams, amount *big.Int) (common.Address, []byte, error) {
	token, err := params.Address("token")
	if err != nil {
		return common.Address{}, nil, err
	}
	to, err := params.Address("to")
	if err != nil {
		return common.Address{}, nil, err
	}
	data, err := erc20ABI.Pack("transfer", to, amount)
	return token, data, err
}

func (k *ERC20Transfer) Simulate(ctx context.Context, strategy Strategy, in SimulationInput) (GasEstimate, error) {
	amount, err := in.Params.Amount("amount")
	if err != nil {
		return GasEstimate{}, err
	}
	token, data, err := k.transferCall(in.Params, amount)
	if err != nil {
		return GasEstimate{}, err
	}

	sims := make(Simulations)
	if err := k.simulatePrefix(ctx, in, sims); err != nil {
		return GasEstimate{}, err
	}
	gas, err := k.simulator.EstimateGas(ctx, ethereum.CallMsg{From: in.Sender, To: &token, Data: data})
	if err != nil {
		return GasEstimate{}, fmt.Errorf("%s: %w", ERC20TransferKind, err)
	}
	sims[ERC20TransferKind] = []Simulation{{To: token, GasUsage: gas}}
	k.simulateFee(strategy, in, sims)
	return total(sims), nil
}

func (k *ERC20Transfer) BuildTransaction(_ context.Context, strategy Strategy, in BuildInput) (*BuiltTransaction, error) {
	amount, err := in.Params.Amount("amount")
	if err != nil {
		return nil, err
	}
	amount, err = deductFee(amount, in)
	if err != nil {
		return nil, err
	}
	token, data, err := k.transferCall(in.Params, amount)
	if err != nil {
		return nil, err
	}

	sender := in.Sender
	txs := k.buildPrefix(in, ERC20TransferKind)
	txs = append(txs, k.newTx(in, SignerUser, &sender, token, nil, data, in.Estimate.Simulations.GasUsage(ERC20TransferKind)))
	fee, err := k.buildFee(strategy, in)
	if err != nil {
		return nil, err
	}
	return &BuiltTransaction{FeeAmount: toHexBig(in.FeeAmount), Transactions: append(txs, fee...)}, nil
}
