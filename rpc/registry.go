package rpc

import (
	"context"
	"encoding/json"
	"fmt"
)

// Kind classifies what an operation does to the vehicle
type Kind int

const (
	KindQuery    Kind = iota // reads state only
	KindMutation             // changes vehicle or agent state
	KindCommand              // issues a vehicle command
)

func (k Kind) String() string {
	switch k {
	case KindQuery:
		return "query"
	case KindMutation:
		return "mutation"
	case KindCommand:
		return "command"
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// Handler runs an operation. Params are passed as received. Business-rule
// failures are returned as a result (usually Failure) with a nil error;
// a non-nil error is reported to the caller as an internal error.
type Handler func(ctx context.Context, params json.RawMessage) (any, error)

// Operation is one named entry of the registry
type Operation struct {
	Name    string
	Kind    Kind
	Handler Handler
}

// Registry is the fixed operation table, built once at startup
type Registry struct {
	operations []Operation
}

// NewRegistry builds a registry, rejecting empty or duplicate names
func NewRegistry(operations ...Operation) (*Registry, error) {
	seen := make(map[string]bool, len(operations))
	for _, op := range operations {
		if op.Name == "" {
			return nil, fmt.Errorf("operation with empty name")
		}
		if op.Handler == nil {
			return nil, fmt.Errorf("operation %q has no handler", op.Name)
		}
		if seen[op.Name] {
			return nil, fmt.Errorf("duplicate operation %q", op.Name)
		}
		seen[op.Name] = true
	}
	return &Registry{operations: append([]Operation(nil), operations...)}, nil
}

// Lookup finds an operation by exact name
func (r *Registry) Lookup(name string) (Operation, bool) {
	for _, op := range r.operations {
		if op.Name == name {
			return op, true
		}
	}
	return Operation{}, false
}

// Names lists the registered operations in registration order
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.operations))
	for _, op := range r.operations {
		names = append(names, op.Name)
	}
	return names
}
