package rpc

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
)

// Dispatcher turns one inbound message into one response. Calls are
// serialized, so operations never interleave against shared state.
type Dispatcher struct {
	mu       sync.Mutex
	registry *Registry
	logger   *slog.Logger
}

// NewDispatcher creates a dispatcher over registry
func NewDispatcher(registry *Registry, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{
		registry: registry,
		logger:   logger,
	}
}

// Dispatch validates raw, runs the named operation and returns the
// serialized response.
func (d *Dispatcher) Dispatch(ctx context.Context, raw []byte) []byte {
	d.mu.Lock()
	defer d.mu.Unlock()

	req, id := Validate(raw)
	if req == nil {
		if id == nil {
			d.logger.Warn("Rejected unparseable message", "size", len(raw))
			return encodeError(nil, CodeParseError)
		}
		d.logger.Warn("Rejected invalid request", "id", string(id))
		return encodeError(id, CodeInvalidParams)
	}

	op, ok := d.registry.Lookup(req.Method)
	if !ok {
		d.logger.Warn("Method not found", "method", req.Method, "id", string(req.ID))
		return encodeError(req.ID, CodeMethodNotFound)
	}

	result, err := invoke(ctx, op, req.Params)
	if err != nil {
		d.logger.Error("Operation failed", "method", op.Name, "kind", op.Kind, "id", string(req.ID), "error", err)
		return encodeError(req.ID, CodeInternalError)
	}

	response, err := encodeResult(req.ID, result)
	if err != nil {
		d.logger.Error("Failed to encode result", "method", op.Name, "id", string(req.ID), "error", err)
		return encodeError(req.ID, CodeInternalError)
	}

	d.logger.Info("Dispatched", "method", op.Name, "kind", op.Kind, "id", string(req.ID))
	return response
}

// invoke runs the handler, converting a panic into an error
func invoke(ctx context.Context, op Operation, params json.RawMessage) (result any, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic in %s: %v", op.Name, r)
		}
	}()
	return op.Handler(ctx, params)
}
