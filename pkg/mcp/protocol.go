// Package mcp implements the line-oriented JSON-RPC protocol that exposes
// Polymarket data to AI assistants: tools, resources, prompts, and the
// session lifecycle over stdio.
package mcp

import (
	"encoding/json"
	"fmt"
)

// ProtocolVersion is the protocol revision reported during initialize.
const ProtocolVersion = "2024-11-05"

// jsonRPCVersion is the only framing version accepted on the wire.
const jsonRPCVersion = "2.0"

// JSON-RPC error codes. The -32000 range carries domain failures.
const (
	CodeParseError     = -32700
	CodeInvalidRequest = -32600
	CodeMethodNotFound = -32601
	CodeInvalidParams  = -32602
	CodeInternalError  = -32603

	CodeNotInitialized   = -32000
	CodeNotFound         = -32002
	CodeUpstreamFailure  = -32010
	CodeMissingPriceData = -32011
	CodeUpstreamParse    = -32012
)

// Request is an incoming JSON-RPC message. A missing or null id marks a
// notification, which never receives a response.
type Request struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

// IsNotification reports whether the message expects no response.
func (r *Request) IsNotification() bool {
	return len(r.ID) == 0 || string(r.ID) == "null"
}

// Response is an outgoing JSON-RPC message. Exactly one of Result and Error
// is set.
type Response struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Result  interface{}     `json:"result,omitempty"`
	Error   *Error          `json:"error,omitempty"`
}

// Error is a JSON-RPC error object. It also implements the error interface
// so handlers can return protocol errors directly.
type Error struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	return fmt.Sprintf("jsonrpc error %d: %s", e.Code, e.Message)
}

// NewResponse builds a success response.
func NewResponse(id json.RawMessage, result interface{}) *Response {
	return &Response{JSONRPC: jsonRPCVersion, ID: normalizeID(id), Result: result}
}

// NewErrorResponse builds an error response.
func NewErrorResponse(id json.RawMessage, code int, message string) *Response {
	return &Response{
		JSONRPC: jsonRPCVersion,
		ID:      normalizeID(id),
		Error:   &Error{Code: code, Message: message},
	}
}

// normalizeID keeps the id field serializable when a parse failure left no
// usable request id.
func normalizeID(id json.RawMessage) json.RawMessage {
	if len(id) == 0 {
		return json.RawMessage("null")
	}
	return id
}
