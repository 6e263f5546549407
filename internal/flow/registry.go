package flow

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/kode4food/timebox"

	"github.com/botflow/engine/internal/util"
	"github.com/botflow/engine/pkg/api"
	"github.com/botflow/engine/pkg/events"
)

type (
	// Registry is the event-sourced catalog of flow definitions, one
	// aggregate per tenant, with an LRU cache of compiled graphs
	Registry struct {
		exec   *CatalogExecutor
		graphs *util.LRUCache[*CompiledGraph]
	}

	// CatalogExecutor manages catalog state persistence and event sourcing
	CatalogExecutor = timebox.Executor[*api.CatalogState]

	// CatalogAggregator aggregates catalog state from events
	CatalogAggregator = timebox.Aggregator[*api.CatalogState]
)

var (
	ErrFlowNotFound = errors.New("flow not found")
	ErrNoActiveFlow = errors.New("no active flow")
)

// NewRegistry creates a registry backed by the given catalog store
func NewRegistry(store *timebox.Store, cacheSize int) *Registry {
	return &Registry{
		exec: timebox.NewExecutor(
			store, events.NewCatalogState, events.CatalogAppliers,
		),
		graphs: util.NewLRUCache[*CompiledGraph](cacheSize),
	}
}

// Save validates a definition and stores it in the tenant's catalog,
// replacing any prior version with the same ID. The stored status follows
// the catalog: a definition only becomes active through Activate
func (r *Registry) Save(ctx context.Context, def *api.FlowDefinition) error {
	if err := def.Validate(); err != nil {
		return err
	}

	cmd := func(st *api.CatalogState, ag *CatalogAggregator) error {
		d := *def
		if st.Active == d.ID {
			d.Status = api.FlowActive
		} else {
			d.Status = api.FlowInactive
		}
		return events.Raise(ag, api.EventTypeFlowSaved, api.FlowSavedEvent{
			Flow: &d,
		})
	}
	if _, err := r.exec.Exec(
		ctx, events.CatalogID(def.TenantID), cmd,
	); err != nil {
		return err
	}

	r.graphs.Remove(graphKey(def.TenantID, def.ID))
	return nil
}

// Activate makes the given flow the tenant's single active version.
// Returns ErrFlowNotFound if the flow is not in the catalog
func (r *Registry) Activate(
	ctx context.Context, tenantID api.TenantID, flowID api.FlowID,
) error {
	cmd := func(st *api.CatalogState, ag *CatalogAggregator) error {
		if _, ok := st.Flows[flowID]; !ok {
			return fmt.Errorf("%w: %s", ErrFlowNotFound, flowID)
		}
		return events.Raise(ag, api.EventTypeFlowActivated,
			api.FlowActivatedEvent{FlowID: flowID},
		)
	}
	_, err := r.exec.Exec(ctx, events.CatalogID(tenantID), cmd)
	return err
}

// Delete removes a definition from the tenant's catalog
func (r *Registry) Delete(
	ctx context.Context, tenantID api.TenantID, flowID api.FlowID,
) error {
	cmd := func(st *api.CatalogState, ag *CatalogAggregator) error {
		if _, ok := st.Flows[flowID]; !ok {
			return fmt.Errorf("%w: %s", ErrFlowNotFound, flowID)
		}
		return events.Raise(ag, api.EventTypeFlowDeleted,
			api.FlowDeletedEvent{FlowID: flowID},
		)
	}
	if _, err := r.exec.Exec(
		ctx, events.CatalogID(tenantID), cmd,
	); err != nil {
		return err
	}

	r.graphs.Remove(graphKey(tenantID, flowID))
	return nil
}

// Get returns one definition from the tenant's catalog
func (r *Registry) Get(
	ctx context.Context, tenantID api.TenantID, flowID api.FlowID,
) (*api.FlowDefinition, error) {
	st, err := r.catalog(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	def, ok := st.Flows[flowID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrFlowNotFound, flowID)
	}
	return def, nil
}

// List returns the tenant's definitions ordered by flow ID
func (r *Registry) List(
	ctx context.Context, tenantID api.TenantID,
) ([]*api.FlowDefinition, error) {
	st, err := r.catalog(ctx, tenantID)
	if err != nil {
		return nil, err
	}

	res := make([]*api.FlowDefinition, 0, len(st.Flows))
	for _, def := range st.Flows {
		res = append(res, def)
	}
	slices.SortFunc(res, func(a, b *api.FlowDefinition) int {
		switch {
		case a.ID < b.ID:
			return -1
		case a.ID > b.ID:
			return 1
		}
		return 0
	})
	return res, nil
}

// Active returns the tenant's active definition
func (r *Registry) Active(
	ctx context.Context, tenantID api.TenantID,
) (*api.FlowDefinition, error) {
	st, err := r.catalog(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	def := st.ActiveFlow()
	if def == nil {
		return nil, fmt.Errorf("%w: %s", ErrNoActiveFlow, tenantID)
	}
	return def, nil
}

// ActiveGraph returns the compiled graph of the tenant's active flow,
// served from the cache when possible
func (r *Registry) ActiveGraph(
	ctx context.Context, tenantID api.TenantID,
) (*CompiledGraph, error) {
	def, err := r.Active(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	return r.graphs.Get(graphKey(tenantID, def.ID),
		func() (*CompiledGraph, error) {
			return Compile(def)
		},
	)
}

func (r *Registry) catalog(
	ctx context.Context, tenantID api.TenantID,
) (*api.CatalogState, error) {
	return r.exec.Exec(ctx, events.CatalogID(tenantID),
		func(*api.CatalogState, *CatalogAggregator) error {
			return nil
		},
	)
}

func graphKey(tenantID api.TenantID, flowID api.FlowID) string {
	return string(tenantID) + "/" + string(flowID)
}
