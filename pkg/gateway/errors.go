package gateway

import (
	"context"
	"errors"

	"github.com/cuemby/foodie/pkg/orders"
	"github.com/cuemby/foodie/pkg/storage"
)

// Kind classifies a failed call
type Kind string

const (
	KindValidation        Kind = "ValidationError"
	KindInvalidTransition Kind = "InvalidTransition"
	KindUnknownStatus     Kind = "UnknownStatus"
	KindNotFound          Kind = "NotFound"
	KindPersistence       Kind = "PersistenceError"
	KindTimeout           Kind = "Timeout"
	KindMethodNotFound    Kind = "MethodNotFound"
	KindInvalidParams     Kind = "InvalidParams"
	KindInvalidRequest    Kind = "InvalidRequest"
	KindParseError        Kind = "ParseError"
	KindInternal          Kind = "InternalError"
)

// JSON-RPC 2.0 error codes
const (
	CodeParseError     = -32700
	CodeInvalidRequest = -32600
	CodeMethodNotFound = -32601
	CodeInvalidParams  = -32602
	CodeInternalError  = -32603
)

// Code returns the JSON-RPC code for a kind. Caller mistakes map to
// invalid params; domain and infrastructure failures map to internal error.
// Kind carries the precise reason either way.
func (k Kind) Code() int {
	switch k {
	case KindParseError:
		return CodeParseError
	case KindInvalidRequest:
		return CodeInvalidRequest
	case KindMethodNotFound:
		return CodeMethodNotFound
	case KindInvalidParams, KindValidation, KindUnknownStatus:
		return CodeInvalidParams
	default:
		return CodeInternalError
	}
}

func newError(kind Kind, msg string) *Error {
	return &Error{Code: kind.Code(), Kind: kind, Message: msg}
}

// classify maps an error from the order machine, catalog or store onto the
// wire taxonomy. Only kind and message leave the process.
func classify(err error) *Error {
	var rpcErr *Error
	switch {
	case errors.As(err, &rpcErr):
		return rpcErr
	case errors.Is(err, context.DeadlineExceeded):
		return newError(KindTimeout, "command timed out")
	case errors.Is(err, context.Canceled):
		return newError(KindTimeout, "command canceled")
	case errors.Is(err, orders.ErrValidation):
		return newError(KindValidation, err.Error())
	case errors.Is(err, orders.ErrUnknownStatus):
		return newError(KindUnknownStatus, err.Error())
	case errors.Is(err, orders.ErrInvalidTransition):
		return newError(KindInvalidTransition, err.Error())
	case errors.Is(err, storage.ErrNotFound):
		return newError(KindNotFound, err.Error())
	case errors.Is(err, storage.ErrPersistence):
		// Driver details stay in the logs
		return newError(KindPersistence, "storage is temporarily unavailable")
	default:
		return newError(KindInternal, "internal error")
	}
}
