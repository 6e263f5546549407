package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/botflow/engine/pkg/api"
)

type (
	// Handler executes one node type. The returned outcome tells the
	// executor whether to continue, suspend, or terminate the run
	Handler interface {
		Execute(
			ctx context.Context, ec *ExecContext, node *api.Node,
		) (*api.Outcome, error)
	}

	// Resumer is implemented by handlers that consume the next inbound
	// event after suspending, such as keyboard prompts
	Resumer interface {
		Handler
		Resume(
			ctx context.Context, ec *ExecContext, node *api.Node,
		) (*api.Outcome, error)
	}

	// HandlerRegistry maps node types to their handlers
	HandlerRegistry struct {
		handlers map[api.NodeType]Handler
	}
)

var ErrNoHandler = errors.New("no handler for node type")

// NewHandlerRegistry creates an empty handler registry
func NewHandlerRegistry() *HandlerRegistry {
	return &HandlerRegistry{
		handlers: map[api.NodeType]Handler{},
	}
}

// Register installs the handler for a node type, replacing any prior one
func (r *HandlerRegistry) Register(t api.NodeType, h Handler) {
	r.handlers[t] = h
}

// Lookup returns the handler for a node type
func (r *HandlerRegistry) Lookup(t api.NodeType) (Handler, error) {
	h, ok := r.handlers[t]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNoHandler, t)
	}
	return h, nil
}
