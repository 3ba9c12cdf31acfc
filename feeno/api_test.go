package feeno

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/bogdanuch/feeno-api/jsonrpcserver"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestAPIServer(t *testing.T) (*httptest.Server, *estimatorFixture) {
	t.Helper()
	f := newEstimatorFixture(t)
	s, red := newTestRedis(t)
	f.store = NewRedisStore(red)
	seedBundle(t, s, "0xabc", "inProgress")

	estimator := f.estimator(false)
	lifecycle := NewLifecycle(zap.NewNop(), f.store, &fakeNotifier{})
	api := NewAPI(zap.NewNop(), estimator, lifecycle, f.tokens)

	handler, err := jsonrpcserver.NewHandler(zap.NewNop(), api.Methods())
	require.NoError(t, err)
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return server, f
}

func rpcCall(t *testing.T, url, method, params string) jsonrpcserver.JSONRPCResponse {
	t.Helper()
	body := `{"jsonrpc":"2.0","id":1,"method":"` + method + `","params":` + params + `}`
	resp, err := http.Post(url, "application/json", bytes.NewBufferString(body)) //nolint:noctx
	require.NoError(t, err)
	defer resp.Body.Close()

	var res jsonrpcserver.JSONRPCResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&res))
	return res
}

func TestAPIEstimate(t *testing.T) {
	server, _ := newTestAPIServer(t)

	res := rpcCall(t, server.URL, EstimateEndpointName, `{
		"transactionType": "simpleTransfer",
		"transactionBody": {"to": "0x2222222222222222222222222222222222222222", "value": 1000000000000000000},
		"addressFrom": "0x1111111111111111111111111111111111111111",
		"erc20TokenToPayFee": null,
		"feePayer": "sender"
	}`)
	require.Nil(t, res.Error)
	require.NotNil(t, res.Result)

	var quote Quote
	require.NoError(t, json.Unmarshal(*res.Result, &quote))
	require.Equal(t, "quote-1", quote.ID)
	require.Len(t, quote.ExecutionSwap, 2)
	require.NotContains(t, string(*res.Result), "minerTip")

	res = rpcCall(t, server.URL, GetEstimateEndpointName, `["quote-1"]`)
	require.Nil(t, res.Error)

	res = rpcCall(t, server.URL, GetEstimateEndpointName, `["quote-2"]`)
	require.NotNil(t, res.Error)
	require.Equal(t, CodeNotFound, res.Error.Code)
	require.Equal(t, "Estimate not found", res.Error.Message)
}

func TestAPIEstimateErrors(t *testing.T) {
	server, f := newTestAPIServer(t)

	res := rpcCall(t, server.URL, EstimateEndpointName, `{"transactionType":"bridge","transactionBody":{"a":"b"},"feePayer":"sender"}`)
	require.NotNil(t, res.Error)
	require.Equal(t, jsonrpcserver.CodeInvalidParams, res.Error.Code)
	require.Equal(t, "Wrong transactionType", res.Error.Message)

	f.oracle.err = errors.New("dial tcp: connection refused") //nolint:goerr113
	res = rpcCall(t, server.URL, EstimateEndpointName, `{
		"transactionType": "simpleTransfer",
		"transactionBody": {"to": "0x2222222222222222222222222222222222222222", "value": "1"},
		"feePayer": "sender"
	}`)
	require.NotNil(t, res.Error)
	require.Equal(t, CodeOracleUnavailable, res.Error.Code)
	require.NotContains(t, res.Error.Message, "connection refused")
}

func TestAPIBundles(t *testing.T) {
	server, _ := newTestAPIServer(t)

	res := rpcCall(t, server.URL, GetBundleEndpointName, `["0x"]`)
	require.NotNil(t, res.Error)
	require.Equal(t, jsonrpcserver.CodeInvalidParams, res.Error.Code)
	require.Equal(t, "Please, send transaction first", res.Error.Message)

	res = rpcCall(t, server.URL, GetBundleEndpointName, `["0xfff"]`)
	require.NotNil(t, res.Error)
	require.Equal(t, CodeNotFound, res.Error.Code)

	res = rpcCall(t, server.URL, CancelBundleEndpointName, `["0xABC"]`)
	require.Nil(t, res.Error)
	var bundle map[string]any
	require.NoError(t, json.Unmarshal(*res.Result, &bundle))
	require.Equal(t, "canceled", bundle["status"])
	require.NotContains(t, bundle, "transactions")
	require.NotContains(t, bundle, "bloxrouteUrl")
	require.Equal(t, "q-1", bundle["quoteId"])

	res = rpcCall(t, server.URL, GetBundleEndpointName, `["0xabc"]`)
	require.Nil(t, res.Error)
	require.NoError(t, json.Unmarshal(*res.Result, &bundle))
	require.Equal(t, "canceled", bundle["status"])
}

func TestAPITokens(t *testing.T) {
	server, _ := newTestAPIServer(t)

	res := rpcCall(t, server.URL, TokensEndpointName, `[]`)
	require.Nil(t, res.Error)
	var tokens []Token
	require.NoError(t, json.Unmarshal(*res.Result, &tokens))
	require.Len(t, tokens, 3)
	require.Equal(t, "ETH", tokens[0].Symbol)
	require.Nil(t, tokens[0].Address)
}

func TestErrorExposure(t *testing.T) {
	internal := errors.New("redis: connection pool timeout") //nolint:goerr113

	require.Equal(t, ErrInternalServiceError, hideInternal(internal))
	require.Equal(t, ErrNotFound, hideInternal(ErrNotFound))
	require.NoError(t, hideInternal(nil))

	exposed := exposeInternal(internal)
	require.ErrorIs(t, exposed, ErrInternalServiceError)
	require.EqualError(t, exposed, "redis: connection pool timeout")
	require.Equal(t, ErrBundleNotFound, exposeInternal(ErrBundleNotFound))
}
