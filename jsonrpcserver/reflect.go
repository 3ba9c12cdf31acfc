package jsonrpcserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
)

var (
	ErrNotFunction         = errors.New("not a function")
	ErrVariadic            = errors.New("variadic functions are not supported")
	ErrMustReturnError     = errors.New("function must return error as a last return value")
	ErrMustHaveContext     = errors.New("function must have context.Context as a first argument")
	ErrTooManyReturnValues = errors.New("too many return values")

	// ErrInvalidParams wraps every failure to decode method arguments
	ErrInvalidParams    = errors.New("invalid params")
	ErrTooMuchArguments = fmt.Errorf("%w: too much arguments", ErrInvalidParams)
	ErrMissingArgument  = fmt.Errorf("%w: missing argument", ErrInvalidParams)
)

var (
	contextType = reflect.TypeOf((*context.Context)(nil)).Elem()
	errorType   = reflect.TypeOf((*error)(nil)).Elem()
)

// method is a Go function exposed over JSON-RPC.
//
// The function takes a context followed by positional arguments and returns an optional result and an error.
// Trailing pointer arguments may be omitted by the caller and are passed as nil.
type method struct {
	fn        reflect.Value
	args      []reflect.Type
	required  int
	hasResult bool
}

func newMethod(fn any) (method, error) {
	t := reflect.TypeOf(fn)
	if t == nil || t.Kind() != reflect.Func {
		return method{}, ErrNotFunction
	}
	if t.IsVariadic() {
		return method{}, ErrVariadic
	}
	if t.NumIn() == 0 || t.In(0) != contextType {
		return method{}, ErrMustHaveContext
	}
	switch n := t.NumOut(); {
	case n == 0 || !t.Out(n-1).Implements(errorType):
		return method{}, ErrMustReturnError
	case n > 2:
		return method{}, ErrTooManyReturnValues
	}

	m := method{
		fn:        reflect.ValueOf(fn),
		args:      make([]reflect.Type, 0, t.NumIn()-1),
		hasResult: t.NumOut() == 2,
	}
	for i := 1; i < t.NumIn(); i++ {
		arg := t.In(i)
		m.args = append(m.args, arg)
		if arg.Kind() != reflect.Pointer {
			m.required = len(m.args)
		}
	}
	return m, nil
}

// decode converts positional params into call arguments
func (m method) decode(params []json.RawMessage) ([]reflect.Value, error) {
	if len(params) > len(m.args) {
		return nil, ErrTooMuchArguments
	}
	if len(params) < m.required {
		return nil, fmt.Errorf("%w: expected at least %d, got %d", ErrMissingArgument, m.required, len(params))
	}

	values := make([]reflect.Value, len(m.args))
	for i, argType := range m.args {
		ptr := reflect.New(argType)
		if i < len(params) {
			if err := json.Unmarshal(params[i], ptr.Interface()); err != nil {
				return nil, fmt.Errorf("%w: %w", ErrInvalidParams, err)
			}
		}
		values[i] = ptr.Elem()
	}
	return values, nil
}

func (m method) invoke(ctx context.Context, params []json.RawMessage) (any, error) {
	values, err := m.decode(params)
	if err != nil {
		return nil, err
	}

	out := m.fn.Call(append([]reflect.Value{reflect.ValueOf(ctx)}, values...))

	var callErr error
	if last := out[len(out)-1]; !last.IsNil() {
		callErr, _ = last.Interface().(error)
	}
	if !m.hasResult {
		return nil, callErr
	}
	return out[0].Interface(), callErr
}
