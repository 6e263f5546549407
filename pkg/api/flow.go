package api

import (
	"errors"
	"fmt"

	"github.com/botflow/engine/pkg/util"
)

type (
	// FlowStatus marks a flow as the tenant's active version or not.
	// At most one flow per tenant is ACTIVE at any time
	FlowStatus string

	// Edge is a directed link between two nodes, optionally labeled for
	// multi-outcome nodes such as condition and random
	Edge struct {
		ID     EdgeID `json:"id"`
		Source NodeID `json:"source"`
		Target NodeID `json:"target"`
		Label  Label  `json:"label,omitempty"`
	}

	// FlowDefinition is the editor wire shape of one flow graph
	FlowDefinition struct {
		ID       FlowID     `json:"id"`
		TenantID TenantID   `json:"tenant_id"`
		Name     string     `json:"name,omitempty"`
		Status   FlowStatus `json:"status"`
		Nodes    []*Node    `json:"nodes"`
		Edges    []*Edge    `json:"edges"`
	}
)

const (
	FlowActive   FlowStatus = "active"
	FlowInactive FlowStatus = "inactive"
)

var (
	ErrFlowIDEmpty      = errors.New("flow ID empty")
	ErrTenantIDEmpty    = errors.New("tenant ID empty")
	ErrFlowNoNodes      = errors.New("flow has no nodes")
	ErrDuplicateNodeID  = errors.New("duplicate node ID")
	ErrEdgeSourceEmpty  = errors.New("edge source empty")
	ErrEdgeTargetEmpty  = errors.New("edge target empty")
	ErrEdgeUnknownNode  = errors.New("edge references unknown node")
	ErrNoStartNode      = errors.New("flow has no start node")
	ErrMultipleStart    = errors.New("flow has multiple start nodes")
	ErrInvalidFlowState = errors.New("invalid flow status")
)

var validFlowStatuses = util.SetOf(FlowActive, FlowInactive)

// Validate checks the definition's structural invariants: a single start
// node, unique node IDs, and edge endpoints that resolve within the flow
func (f *FlowDefinition) Validate() error {
	if f.ID == "" {
		return ErrFlowIDEmpty
	}
	if f.TenantID == "" {
		return ErrTenantIDEmpty
	}
	if f.Status != "" && !validFlowStatuses.Contains(f.Status) {
		return fmt.Errorf("%w: %s", ErrInvalidFlowState, f.Status)
	}
	if len(f.Nodes) == 0 {
		return ErrFlowNoNodes
	}

	ids := make(util.Set[NodeID], len(f.Nodes))
	starts := 0
	for _, n := range f.Nodes {
		if err := n.Validate(); err != nil {
			return err
		}
		if ids.Contains(n.ID) {
			return fmt.Errorf("%w: %s", ErrDuplicateNodeID, n.ID)
		}
		ids.Add(n.ID)
		if n.Type == NodeTypeStart {
			starts++
		}
	}

	if starts == 0 {
		return ErrNoStartNode
	}
	if starts > 1 {
		return ErrMultipleStart
	}

	for _, e := range f.Edges {
		if e.Source == "" {
			return fmt.Errorf("%w: %s", ErrEdgeSourceEmpty, e.ID)
		}
		if e.Target == "" {
			return fmt.Errorf("%w: %s", ErrEdgeTargetEmpty, e.ID)
		}
		if !ids.Contains(e.Source) {
			return fmt.Errorf("%w: %s -> %s", ErrEdgeUnknownNode,
				e.ID, e.Source)
		}
		if !ids.Contains(e.Target) {
			return fmt.Errorf("%w: %s -> %s", ErrEdgeUnknownNode,
				e.ID, e.Target)
		}
	}
	return nil
}

// StartNode returns the flow's single start node
func (f *FlowDefinition) StartNode() *Node {
	for _, n := range f.Nodes {
		if n.Type == NodeTypeStart {
			return n
		}
	}
	return nil
}

// IsActive reports whether this definition is the tenant's active version
func (f *FlowDefinition) IsActive() bool {
	return f.Status == FlowActive
}
