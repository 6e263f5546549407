package api

import (
	"maps"
	"time"

	"github.com/kode4food/timebox"
)

type (
	// EventType identifies a catalog event
	EventType = timebox.EventType

	// CatalogState is the event-sourced state of one tenant's flow
	// catalog: every saved definition plus which one is active
	CatalogState struct {
		LastUpdated time.Time                  `json:"last_updated"`
		Flows       map[FlowID]*FlowDefinition `json:"flows"`
		Active      FlowID                     `json:"active,omitempty"`
		Version     int64                      `json:"version"`
	}

	// FlowSavedEvent records a definition create or replace
	FlowSavedEvent struct {
		Flow *FlowDefinition `json:"flow"`
	}

	// FlowActivatedEvent records an activation swap. Applying it marks the
	// target ACTIVE and every other flow of the tenant INACTIVE
	FlowActivatedEvent struct {
		FlowID FlowID `json:"flow_id"`
	}

	// FlowDeletedEvent records a definition removal
	FlowDeletedEvent struct {
		FlowID FlowID `json:"flow_id"`
	}
)

const (
	EventTypeFlowSaved     EventType = "flow_saved"
	EventTypeFlowActivated EventType = "flow_activated"
	EventTypeFlowDeleted   EventType = "flow_deleted"
)

// SetFlow returns a new CatalogState with the definition stored
func (st *CatalogState) SetFlow(id FlowID, flow *FlowDefinition) *CatalogState {
	res := *st
	res.Flows = maps.Clone(st.Flows)
	res.Flows[id] = flow
	return &res
}

// DeleteFlow returns a new CatalogState with the definition removed. If the
// removed flow was active the catalog is left with no active flow
func (st *CatalogState) DeleteFlow(id FlowID) *CatalogState {
	res := *st
	res.Flows = maps.Clone(st.Flows)
	delete(res.Flows, id)
	if res.Active == id {
		res.Active = ""
	}
	return &res
}

// SetActive returns a new CatalogState with the target flow ACTIVE and all
// other flows INACTIVE, in one state transition. This is what makes the
// "at most one active flow per tenant" invariant hold by construction
func (st *CatalogState) SetActive(id FlowID) *CatalogState {
	res := *st
	res.Flows = make(map[FlowID]*FlowDefinition, len(st.Flows))
	for flowID, flow := range st.Flows {
		f := *flow
		if flowID == id {
			f.Status = FlowActive
		} else {
			f.Status = FlowInactive
		}
		res.Flows[flowID] = &f
	}
	res.Active = id
	res.Version++
	return &res
}

// SetLastUpdated returns a new CatalogState with the timestamp set
func (st *CatalogState) SetLastUpdated(t time.Time) *CatalogState {
	res := *st
	res.LastUpdated = t
	return &res
}

// ActiveFlow returns the tenant's active definition, or nil
func (st *CatalogState) ActiveFlow() *FlowDefinition {
	if st.Active == "" {
		return nil
	}
	return st.Flows[st.Active]
}
