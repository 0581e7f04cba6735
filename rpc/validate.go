package rpc

import (
	"bytes"
	"encoding/json"
)

// Validate checks raw against the four-key JSON-RPC envelope. On success it
// returns the request. Otherwise it returns the request id when one could be
// recovered, so the caller can address its error response; a nil id means
// the message is treated as unparseable.
func Validate(raw []byte) (*Request, json.RawMessage) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil || fields == nil {
		return nil, nil
	}

	id, ok := fields["id"]
	if !ok || !validID(id) {
		return nil, nil
	}

	if len(fields) != 4 {
		return nil, id
	}

	var version string
	if err := json.Unmarshal(fields["jsonrpc"], &version); err != nil || version != Version {
		return nil, id
	}

	var method string
	if err := json.Unmarshal(fields["method"], &method); err != nil {
		return nil, id
	}

	params, ok := fields["params"]
	if !ok {
		return nil, id
	}

	return &Request{ID: id, Method: method, Params: params}, nil
}

// validID accepts the id shapes the envelope allows: string, number or null
func validID(id json.RawMessage) bool {
	id = bytes.TrimSpace(id)
	if len(id) == 0 {
		return false
	}
	switch id[0] {
	case '"', 'n', '-', '0', '1', '2', '3', '4', '5', '6', '7', '8', '9':
		return true
	}
	return false
}
