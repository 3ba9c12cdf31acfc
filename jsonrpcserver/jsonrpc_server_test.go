package jsonrpcserver

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type codedError struct{}

func (codedError) Error() string  { return "not found" }
func (codedError) ErrorCode() int { return -32004 }

func TestHandler_ServeHTTP(t *testing.T) {
	var (
		errorArg = -1
		codedArg = -2
		panicArg = -3
		errorOut = errors.New("custom error") //nolint:goerr113
	)
	handlerMethod := func(ctx context.Context, arg1 int) (dummyStruct, error) {
		switch arg1 {
		case errorArg:
			return dummyStruct{}, errorOut
		case codedArg:
			return dummyStruct{}, codedError{}
		case panicArg:
			panic("boom")
		}
		return dummyStruct{arg1}, nil
	}
	objectMethod := func(ctx context.Context, arg dummyStruct) (int, error) {
		return arg.Field * 2, nil
	}
	originMethod := func(ctx context.Context) (string, error) {
		return GetOrigin(ctx), nil
	}

	handler, err := NewHandler(zap.NewNop(), Methods{
		"function": handlerMethod,
		"object":   objectMethod,
		"origin":   originMethod,
	})
	require.NoError(t, err)

	testCases := map[string]struct {
		requestBody      string
		origin           string
		expectedResponse string
	}{
		"success": {
			requestBody:      `{"jsonrpc":"2.0","id":1,"method":"function","params":[1]}`,
			expectedResponse: `{"jsonrpc":"2.0","id":1,"result":{"field":1}}`,
		},
		"error": {
			requestBody:      `{"jsonrpc":"2.0","id":1,"method":"function","params":[-1]}`,
			expectedResponse: `{"jsonrpc":"2.0","id":1,"error":{"code":-32000,"message":"custom error"}}`,
		},
		"error with code": {
			requestBody:      `{"jsonrpc":"2.0","id":1,"method":"function","params":[-2]}`,
			expectedResponse: `{"jsonrpc":"2.0","id":1,"error":{"code":-32004,"message":"not found"}}`,
		},
		"panic": {
			requestBody:      `{"jsonrpc":"2.0","id":1,"method":"function","params":[-3]}`,
			expectedResponse: `{"jsonrpc":"2.0","id":1,"error":{"code":-32603,"message":"internal error"}}`,
		},
		"invalid json": {
			requestBody:      `{"jsonrpc":"2.0","id":1,"method":"function","params":[1]`,
			expectedResponse: `{"jsonrpc":"2.0","id":null,"error":{"code":-32700,"message":"unexpected end of JSON input"}}`,
		},
		"invalid id": {
			requestBody:      `{"jsonrpc":"2.0","id":{"a":1},"method":"function","params":[1]}`,
			expectedResponse: `{"jsonrpc":"2.0","id":null,"error":{"code":-32600,"message":"invalid id type"}}`,
		},
		"method not found": {
			requestBody:      `{"jsonrpc":"2.0","id":1,"method":"not_found","params":[1]}`,
			expectedResponse: `{"jsonrpc":"2.0","id":1,"error":{"code":-32601,"message":"method not found"}}`,
		},
		"invalid params": {
			requestBody:      `{"jsonrpc":"2.0","id":1,"method":"function","params":[1,2]}`,
			expectedResponse: `{"jsonrpc":"2.0","id":1,"error":{"code":-32602,"message":"invalid params: too much arguments"}}`,
		},
		"missing params": {
			requestBody:      `{"jsonrpc":"2.0","id":1,"method":"function","params":[]}`,
			expectedResponse: `{"jsonrpc":"2.0","id":1,"error":{"code":-32602,"message":"invalid params: missing argument: expected at least 1, got 0"}}`,
		},
		"invalid params type": {
			requestBody:      `{"jsonrpc":"2.0","id":1,"method":"function","params":["1"]}`,
			expectedResponse: `{"jsonrpc":"2.0","id":1,"error":{"code":-32602,"message":"invalid params: json: cannot unmarshal string into Go value of type int"}}`,
		},
		"object params": {
			requestBody:      `{"jsonrpc":"2.0","id":"a","method":"object","params":{"field":21}}`,
			expectedResponse: `{"jsonrpc":"2.0","id":"a","result":42}`,
		},
		"origin": {
			requestBody:      `{"jsonrpc":"2.0","id":1,"method":"origin","params":[]}`,
			origin:           "wallet",
			expectedResponse: `{"jsonrpc":"2.0","id":1,"result":"wallet"}`,
		},
	}

	for name, testCase := range testCases {
		t.Run(name, func(t *testing.T) {
			body := bytes.NewReader([]byte(testCase.requestBody))
			request, err := http.NewRequest(http.MethodPost, "/", body)
			require.NoError(t, err)
			if testCase.origin != "" {
				request.Header.Set(OriginHeader, testCase.origin)
			}

			rr := httptest.NewRecorder()

			handler.ServeHTTP(rr, request)
			require.Equal(t, http.StatusOK, rr.Code)
			require.Equal(t, "application/json", rr.Header().Get("Content-Type"))

			require.JSONEq(t, testCase.expectedResponse, rr.Body.String())
		})
	}
}

func TestHandler_Batch(t *testing.T) {
	handler, err := NewHandler(zap.NewNop(), Methods{
		"double": func(ctx context.Context, arg int) (int, error) { return arg * 2, nil },
	})
	require.NoError(t, err)

	serve := func(body string) string {
		request, err := http.NewRequest(http.MethodPost, "/", bytes.NewReader([]byte(body)))
		require.NoError(t, err)
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, request)
		require.Equal(t, http.StatusOK, rr.Code)
		return rr.Body.String()
	}

	require.JSONEq(t, `[
		{"jsonrpc":"2.0","id":1,"result":4},
		{"jsonrpc":"2.0","id":"b","error":{"code":-32601,"message":"method not found"}},
		{"jsonrpc":"2.0","id":null,"error":{"code":-32600,"message":"json: cannot unmarshal number into Go value of type jsonrpcserver.JSONRPCRequest"}}
	]`, serve(` [
		{"jsonrpc":"2.0","id":1,"method":"double","params":[2]},
		{"jsonrpc":"2.0","id":"b","method":"triple","params":[2]},
		42
	]`))

	require.JSONEq(t, `{"jsonrpc":"2.0","id":null,"error":{"code":-32600,"message":"empty batch"}}`, serve(`[]`))

	var tooLarge bytes.Buffer
	tooLarge.WriteString("[")
	for i := 0; i <= maxBatchSize; i++ {
		if i > 0 {
			tooLarge.WriteString(",")
		}
		tooLarge.WriteString(`{"jsonrpc":"2.0","id":1,"method":"double","params":[1]}`)
	}
	tooLarge.WriteString("]")
	require.JSONEq(t, `{"jsonrpc":"2.0","id":null,"error":{"code":-32600,"message":"batch is too large"}}`, serve(tooLarge.String()))
}

func TestNewHandlerRejectsInvalidMethod(t *testing.T) {
	_, err := NewHandler(zap.NewNop(), Methods{
		"bad": func(a int) error { return nil },
	})
	require.ErrorIs(t, err, ErrMustHaveContext)
}
