// Package rpc implements the strict JSON-RPC 2.0 request handling used by
// the agent: envelope validation, a static method registry and dispatch.
package rpc

import (
	"encoding/json"
)

// Version is the only accepted protocol-version tag
const Version = "2.0"

// Reserved JSON-RPC error codes
const (
	CodeParseError     = -32700
	CodeInvalidRequest = -32600
	CodeMethodNotFound = -32601
	CodeInvalidParams  = -32602
	CodeInternalError  = -32603
)

var errorMessages = map[int]string{
	CodeParseError:     "Parse error",
	CodeInvalidRequest: "Invalid Request",
	CodeMethodNotFound: "Method not found",
	CodeInvalidParams:  "Invalid params",
	CodeInternalError:  "Internal error",
}

// Request is a validated inbound request. ID keeps the raw JSON of the id
// so it is echoed back exactly.
type Request struct {
	ID     json.RawMessage
	Method string
	Params json.RawMessage
}

// Error is the error member of an error response
type Error struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *Error) Error() string {
	return e.Message
}

// NewError returns the standard error object for code
func NewError(code int) *Error {
	return &Error{Code: code, Message: errorMessages[code]}
}

// successResponse and errorResponse are kept separate so the wire order is
// always jsonrpc, result|error, id.
type successResponse struct {
	Jsonrpc string          `json:"jsonrpc"`
	Result  any             `json:"result"`
	ID      json.RawMessage `json:"id"`
}

type errorResponse struct {
	Jsonrpc string          `json:"jsonrpc"`
	Error   *Error          `json:"error"`
	ID      json.RawMessage `json:"id"`
}

// Status is the result shape of operations that only report success
type Status struct {
	Success bool `json:"success"`
}

var (
	Success = Status{Success: true}
	Failure = Status{Success: false}
)

func encodeResult(id json.RawMessage, result any) ([]byte, error) {
	return json.Marshal(successResponse{Jsonrpc: Version, Result: result, ID: id})
}

// encodeError never fails: Error and a raw id always marshal
func encodeError(id json.RawMessage, code int) []byte {
	data, err := json.Marshal(errorResponse{Jsonrpc: Version, Error: NewError(code), ID: id})
	if err != nil {
		data, _ = json.Marshal(errorResponse{Jsonrpc: Version, Error: NewError(code)})
	}
	return data
}
