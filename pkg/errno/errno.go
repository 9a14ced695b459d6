package errno

import (
	"encoding/json"
	"errors"
)

// Errno defines the error code logic
type Errno struct {
	Code    int
	Message string
}

func (e Errno) Error() string {
	return e.Message
}

// WithMessage 返回同一错误码、不同描述的副本
func (e Errno) WithMessage(msg string) Errno {
	return Errno{Code: e.Code, Message: msg}
}

// Is matches on the code, so WithMessage variants still satisfy errors.Is.
func (e Errno) Is(target error) bool {
	switch t := target.(type) {
	case Errno:
		return t.Code == e.Code
	case *Errno:
		return t != nil && t.Code == e.Code
	}
	return false
}

// RPCError 节点返回的错误信封，原样透传 message 与 data
type RPCError struct {
	Code    int             `json:"code,omitempty"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

func (e *RPCError) Error() string {
	return e.Message
}

// Decode tries to convert an error to Errno
func Decode(err error) (int, string) {
	if err == nil {
		return OK.Code, OK.Message
	}

	var rpcErr *RPCError
	if errors.As(err, &rpcErr) {
		return ErrRPC.Code, rpcErr.Message
	}

	var typed Errno
	if errors.As(err, &typed) {
		return typed.Code, typed.Message
	}
	var typedPtr *Errno
	if errors.As(err, &typedPtr) && typedPtr != nil {
		return typedPtr.Code, typedPtr.Message
	}
	return InternalServerError.Code, err.Error()
}

// Common Errors
var (
	OK                  = Errno{Code: 0, Message: "Success"}
	InternalServerError = Errno{Code: 10001, Message: "Internal server error"}
	ErrBind             = Errno{Code: 10002, Message: "Error occurred while binding the request body to the struct"}
	ErrDatabase         = Errno{Code: 10004, Message: "Database error"}
	ErrRPC              = Errno{Code: 10005, Message: "RPC error"}
)

// Validation Errors (20000+)
var (
	ErrNotFound           = Errno{Code: 20101, Message: "Not Found"}
	ErrMissingTransaction = Errno{Code: 20102, Message: "Transaction not provided"}
	ErrInvalidTransaction = Errno{Code: 20103, Message: "Invalid transaction"}
	ErrDeclined           = Errno{Code: 20104, Message: "Declined"}
	ErrAccountNotFound    = Errno{Code: 20105, Message: "Account not found"}
	ErrTxSendBlocked      = Errno{Code: 20106, Message: "Transaction send blocked by dev kill switch"}
	ErrAccountExists      = Errno{Code: 20107, Message: "Account already exists"}
)

// Custody Errors (30000+)
var (
	ErrKeyNotFound        = Errno{Code: 30101, Message: "Key not found"}
	ErrLocked             = Errno{Code: 30102, Message: "Wallet is locked"}
	ErrDeviceRejected     = Errno{Code: 30103, Message: "Rejected on device"}
	ErrDeviceTimeout      = Errno{Code: 30104, Message: "Device timeout"}
	ErrInvalidPassword    = Errno{Code: 30105, Message: "Invalid password"}
	ErrAlreadyInitialized = Errno{Code: 30106, Message: "Wallet already initialized"}
	ErrNotInitialized     = Errno{Code: 30107, Message: "Wallet not initialized"}
)

// Channel Errors (40000+)
var (
	ErrDisconnected = Errno{Code: 40101, Message: "Disconnected"}
	ErrTimeout      = Errno{Code: 40102, Message: "Request timeout"}
)

var byCode = map[int]Errno{}

func init() {
	for _, e := range []Errno{
		InternalServerError, ErrBind, ErrDatabase, ErrRPC,
		ErrNotFound, ErrMissingTransaction, ErrInvalidTransaction, ErrDeclined,
		ErrAccountNotFound, ErrTxSendBlocked, ErrAccountExists,
		ErrKeyNotFound, ErrLocked, ErrDeviceRejected, ErrDeviceTimeout,
		ErrInvalidPassword, ErrAlreadyInitialized, ErrNotInitialized,
		ErrDisconnected, ErrTimeout,
	} {
		byCode[e.Code] = e
	}
}

// FromCode 根据错误码还原 Errno (跨进程传输后使用)
func FromCode(code int, msg string) (Errno, bool) {
	e, ok := byCode[code]
	if !ok {
		return Errno{}, false
	}
	if msg != "" {
		e.Message = msg
	}
	return e, true
}
