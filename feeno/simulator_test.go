package feeno

import (
	"context"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ethereum/go-ethereum"
	"github.com/stretchr/testify/require"
)

func TestJSONRPCSimulator(t *testing.T) {
	var received struct {
		Method string            `json:"method"`
		Params []json.RawMessage `json:"params"`
	}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := json.NewDecoder(r.Body).Decode(&received); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"jsonrpc":"2.0","id":0,"result":"0xb3b0"}`))
	}))
	defer server.Close()

	sim := NewJSONRPCSimulator(server.URL)
	gas, err := sim.EstimateGas(context.Background(), ethereum.CallMsg{
		From:  testSender,
		To:    addressPtr(testReceiver),
		Value: big.NewInt(16),
	})
	require.NoError(t, err)
	require.Equal(t, uint64(46_000), gas)

	require.Equal(t, "eth_estimateGas", received.Method)
	require.Len(t, received.Params, 1)
	require.JSONEq(t, `{"from":"0x1111111111111111111111111111111111111111","to":"0x2222222222222222222222222222222222222222","value":"0x10"}`, string(received.Params[0]))
}

func TestJSONRPCSimulatorError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"jsonrpc":"2.0","id":0,"error":{"code":-32000,"message":"execution reverted"}}`))
	}))
	defer server.Close()

	_, err := NewJSONRPCSimulator(server.URL).EstimateGas(context.Background(), ethereum.CallMsg{From: testSender})
	require.Error(t, err)
	require.Contains(t, err.Error(), "execution reverted")
}
