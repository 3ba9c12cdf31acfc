// Package jsonrpcserver serves Go functions shaped like
// func Foo(context.Context, Arg) (Result, error)
// as JSON-RPC 2.0 methods over HTTP POST, including batches.
//
// Errors returned by methods may implement ErrorCoder to choose the JSON-RPC error code,
// any other error is reported with CodeCustomError.
package jsonrpcserver

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"go.uber.org/zap"
)

var (
	CodeParseError     = -32700
	CodeInvalidRequest = -32600
	CodeMethodNotFound = -32601
	CodeInvalidParams  = -32602
	CodeInternalError  = -32603
	CodeCustomError    = -32000
)

const (
	maxOriginIDLength = 255
	maxRequestSize    = 1 << 20
	maxBatchSize      = 20

	OriginHeader = "x-feeno-origin"
)

type originKey struct{}

// ErrorCoder is implemented by errors that carry their own JSON-RPC code
type ErrorCoder interface {
	error
	ErrorCode() int
}

type JSONRPCRequest struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      any             `json:"id"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params"`
}

type JSONRPCResponse struct {
	JSONRPC string           `json:"jsonrpc"`
	ID      any              `json:"id"`
	Result  *json.RawMessage `json:"result,omitempty"`
	Error   *JSONRPCError    `json:"error,omitempty"`
}

type JSONRPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    *any   `json:"data,omitempty"`
}

type Handler struct {
	log     *zap.Logger
	methods map[string]method
}

type Methods map[string]interface{}

// NewHandler serves the given functions as JSON-RPC methods.
// A function takes a context and JSON decodable arguments and returns an optional JSON encodable result and an error.
func NewHandler(log *zap.Logger, methods Methods) (*Handler, error) {
	m := make(map[string]method, len(methods))
	for name, fn := range methods {
		bound, err := newMethod(fn)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}
		m[name] = bound
	}
	return &Handler{
		log:     log,
		methods: m,
	}, nil
}

func failure(id any, code int, msg string) JSONRPCResponse {
	return JSONRPCResponse{
		JSONRPC: "2.0",
		ID:      id,
		Error:   &JSONRPCError{Code: code, Message: msg},
	}
}

// errorCode picks the code for an error returned by a method
func errorCode(err error) int {
	var coder ErrorCoder
	if errors.As(err, &coder) {
		return coder.ErrorCode()
	}
	if errors.Is(err, ErrInvalidParams) {
		return CodeInvalidParams
	}
	return CodeCustomError
}

// params accepts both positional params and a single object passed by name
func params(raw json.RawMessage) ([]json.RawMessage, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil, nil
	}
	if raw[0] == '{' {
		return []json.RawMessage{raw}, nil
	}
	var res []json.RawMessage
	if err := json.Unmarshal(raw, &res); err != nil {
		return nil, err
	}
	return res, nil
}

func validID(id any) bool {
	switch id.(type) {
	case nil, string, float64:
		return true
	}
	return false
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxRequestSize))
	if err != nil {
		h.write(w, failure(nil, CodeParseError, err.Error()))
		return
	}

	ctx := r.Context()
	if origin := r.Header.Get(OriginHeader); origin != "" {
		if len(origin) > maxOriginIDLength {
			h.write(w, failure(nil, CodeInvalidRequest, OriginHeader+" header is too long"))
			return
		}
		ctx = context.WithValue(ctx, originKey{}, origin)
	}

	body = bytes.TrimSpace(body)
	if len(body) == 0 || body[0] != '[' {
		var req JSONRPCRequest
		if err := json.Unmarshal(body, &req); err != nil {
			h.write(w, failure(nil, CodeParseError, err.Error()))
			return
		}
		h.write(w, h.handle(ctx, req))
		return
	}

	var batch []json.RawMessage
	if err := json.Unmarshal(body, &batch); err != nil {
		h.write(w, failure(nil, CodeParseError, err.Error()))
		return
	}
	switch {
	case len(batch) == 0:
		h.write(w, failure(nil, CodeInvalidRequest, "empty batch"))
		return
	case len(batch) > maxBatchSize:
		h.write(w, failure(nil, CodeInvalidRequest, "batch is too large"))
		return
	}
	responses := make([]JSONRPCResponse, len(batch))
	for i, raw := range batch {
		var req JSONRPCRequest
		if err := json.Unmarshal(raw, &req); err != nil {
			responses[i] = failure(nil, CodeInvalidRequest, err.Error())
			continue
		}
		responses[i] = h.handle(ctx, req)
	}
	h.write(w, responses)
}

func (h *Handler) write(w http.ResponseWriter, res any) {
	if err := json.NewEncoder(w).Encode(res); err != nil {
		h.log.Debug("Failed to write JSON-RPC response", zap.Error(err))
	}
}

func (h *Handler) handle(ctx context.Context, req JSONRPCRequest) JSONRPCResponse {
	if req.JSONRPC != "2.0" {
		return failure(req.ID, CodeParseError, "invalid jsonrpc version")
	}
	if !validID(req.ID) {
		return failure(nil, CodeInvalidRequest, "invalid id type")
	}
	m, ok := h.methods[req.Method]
	if !ok {
		return failure(req.ID, CodeMethodNotFound, "method not found")
	}
	args, err := params(req.Params)
	if err != nil {
		return failure(req.ID, CodeInvalidParams, err.Error())
	}

	result, err := h.call(ctx, req.Method, m, args)
	if err != nil {
		return failure(req.ID, errorCode(err), err.Error())
	}
	encoded, err := json.Marshal(result)
	if err != nil {
		return failure(req.ID, CodeInternalError, err.Error())
	}
	raw := json.RawMessage(encoded)
	return JSONRPCResponse{JSONRPC: "2.0", ID: req.ID, Result: &raw}
}

// call runs the method and turns a panic into an internal error
func (h *Handler) call(ctx context.Context, name string, m method, args []json.RawMessage) (res any, err error) {
	defer func() {
		if r := recover(); r != nil {
			h.log.Error("JSON-RPC method panicked", zap.String("method", name), zap.Any("panic", r), zap.Stack("stack"))
			res, err = nil, errInternal
		}
	}()
	return m.invoke(ctx, args)
}

type internalError struct{}

func (internalError) Error() string  { return "internal error" }
func (internalError) ErrorCode() int { return CodeInternalError }

var errInternal ErrorCoder = internalError{}

// GetOrigin returns the caller supplied OriginHeader, empty when absent
func GetOrigin(ctx context.Context) string {
	value, ok := ctx.Value(originKey{}).(string)
	if !ok {
		return ""
	}
	return value
}
