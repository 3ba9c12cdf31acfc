package feeno

import (
	"context"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ybbus/jsonrpc/v3"
)

type callArgs struct {
	From  common.Address  `json:"from"`
	To    *common.Address `json:"to,omitempty"`
	Value *hexutil.Big    `json:"value,omitempty"`
	Data  hexutil.Bytes   `json:"data,omitempty"`
}

// JSONRPCSimulator estimates gas on a simulation node
// There should be one simulator per node endpoint
type JSONRPCSimulator struct {
	client jsonrpc.RPCClient
}

func NewJSONRPCSimulator(url string) *JSONRPCSimulator {
	return &JSONRPCSimulator{
		client: jsonrpc.NewClient(url),
	}
}

func (s *JSONRPCSimulator) EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error) {
	args := callArgs{
		From: msg.From,
		To:   msg.To,
		Data: msg.Data,
	}
	if msg.Value != nil {
		args.Value = (*hexutil.Big)(msg.Value)
	}

	var result hexutil.Uint64
	// a single slice argument is sent as the params array
	err := s.client.CallFor(ctx, &result, "eth_estimateGas", []interface{}{args})
	return uint64(result), err
}
