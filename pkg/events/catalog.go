package events

import (
	"encoding/json"

	"github.com/kode4food/timebox"

	"github.com/botflow/engine/pkg/api"
)

const catalogPrefix = "catalog"

// CatalogAppliers folds catalog events into a tenant's CatalogState
var CatalogAppliers = timebox.Appliers[*api.CatalogState]{
	api.EventTypeFlowSaved:     flowSaved,
	api.EventTypeFlowActivated: flowActivated,
	api.EventTypeFlowDeleted:   flowDeleted,
}

// CatalogID returns the aggregate identifier for a tenant's catalog
func CatalogID(tenantID api.TenantID) timebox.AggregateID {
	return timebox.NewAggregateID(catalogPrefix, timebox.ID(tenantID))
}

// NewCatalogState constructs an empty catalog
func NewCatalogState() *api.CatalogState {
	return &api.CatalogState{
		Flows: map[api.FlowID]*api.FlowDefinition{},
	}
}

func IsCatalogEvent(ev *timebox.Event) bool {
	return len(ev.AggregateID) >= 2 && ev.AggregateID[0] == catalogPrefix
}

// CatalogTenant extracts the tenant from a catalog event's aggregate ID
func CatalogTenant(ev *timebox.Event) api.TenantID {
	return api.TenantID(ev.AggregateID[1])
}

func flowSaved(st *api.CatalogState, ev *timebox.Event) *api.CatalogState {
	var fs api.FlowSavedEvent
	if err := json.Unmarshal(ev.Data, &fs); err != nil {
		return st
	}
	return st.
		SetFlow(fs.Flow.ID, fs.Flow).
		SetLastUpdated(ev.Timestamp)
}

func flowActivated(st *api.CatalogState, ev *timebox.Event) *api.CatalogState {
	var fa api.FlowActivatedEvent
	if err := json.Unmarshal(ev.Data, &fa); err != nil {
		return st
	}
	return st.
		SetActive(fa.FlowID).
		SetLastUpdated(ev.Timestamp)
}

func flowDeleted(st *api.CatalogState, ev *timebox.Event) *api.CatalogState {
	var fd api.FlowDeletedEvent
	if err := json.Unmarshal(ev.Data, &fd); err != nil {
		return st
	}
	return st.
		DeleteFlow(fd.FlowID).
		SetLastUpdated(ev.Timestamp)
}
