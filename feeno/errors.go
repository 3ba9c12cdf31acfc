package feeno

import (
	"github.com/bogdanuch/feeno-api/jsonrpcserver"
)

// Error is an API error that carries its JSON-RPC code.
// Errors created with WithMessage still match their parent with errors.Is.
type Error struct {
	Code    int
	Message string
	kind    *Error
}

func (e *Error) Error() string {
	return e.Message
}

func (e *Error) ErrorCode() int {
	return e.Code
}

func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e == t || (e.kind != nil && e.kind == t)
}

// WithMessage returns an error of the same kind with a caller facing message
func (e *Error) WithMessage(msg string) *Error {
	kind := e
	if e.kind != nil {
		kind = e.kind
	}
	return &Error{Code: e.Code, Message: msg, kind: kind}
}

var (
	ErrInvalidRequest    = &Error{Code: jsonrpcserver.CodeInvalidParams, Message: "Bad request"}
	ErrUnknownToken      = &Error{Code: jsonrpcserver.CodeInvalidParams, Message: "Wrong token contract"}
	ErrOracleUnavailable = &Error{Code: CodeOracleUnavailable, Message: "Failed to get the gas price"}
	ErrNotFound          = &Error{Code: CodeNotFound, Message: "Not found"}
	ErrVenueUnavailable  = &Error{Code: CodeVenueUnavailable, Message: "CEX swap is not available for this token"}

	ErrInternalServiceError = &Error{Code: jsonrpcserver.CodeInternalError, Message: "Internal server error"}

	ErrQuoteNotFound  = ErrNotFound.WithMessage("Estimate not found")
	ErrBundleNotFound = ErrNotFound.WithMessage("Transaction not found")
)

const (
	CodeNotFound          = -32004
	CodeOracleUnavailable = -32010
	CodeVenueUnavailable  = -32011
)
