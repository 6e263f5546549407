package flow_test

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/kode4food/timebox"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/botflow/engine/internal/config"
	"github.com/botflow/engine/internal/flow"
	"github.com/botflow/engine/pkg/api"
)

func TestSaveAndGet(t *testing.T) {
	withRegistry(t, func(ctx context.Context, reg *flow.Registry) {
		def := welcomeFlow()
		require.NoError(t, reg.Save(ctx, def))

		got, err := reg.Get(ctx, "acme", "welcome")
		require.NoError(t, err)
		assert.Equal(t, def.ID, got.ID)
		assert.Equal(t, api.FlowInactive, got.Status)

		_, err = reg.Get(ctx, "acme", "missing")
		assert.ErrorIs(t, err, flow.ErrFlowNotFound)
	})
}

func TestSaveRejectsInvalid(t *testing.T) {
	withRegistry(t, func(ctx context.Context, reg *flow.Registry) {
		def := welcomeFlow()
		def.Nodes = def.Nodes[1:]

		err := reg.Save(ctx, def)
		assert.ErrorIs(t, err, api.ErrNoStartNode)
	})
}

func TestActivateSwapsSingleActive(t *testing.T) {
	withRegistry(t, func(ctx context.Context, reg *flow.Registry) {
		first := welcomeFlow()
		second := welcomeFlow()
		second.ID = "support"
		require.NoError(t, reg.Save(ctx, first))
		require.NoError(t, reg.Save(ctx, second))

		_, err := reg.Active(ctx, "acme")
		assert.ErrorIs(t, err, flow.ErrNoActiveFlow)

		require.NoError(t, reg.Activate(ctx, "acme", "welcome"))
		active, err := reg.Active(ctx, "acme")
		require.NoError(t, err)
		assert.Equal(t, api.FlowID("welcome"), active.ID)

		require.NoError(t, reg.Activate(ctx, "acme", "support"))
		active, err = reg.Active(ctx, "acme")
		require.NoError(t, err)
		assert.Equal(t, api.FlowID("support"), active.ID)

		prior, err := reg.Get(ctx, "acme", "welcome")
		require.NoError(t, err)
		assert.Equal(t, api.FlowInactive, prior.Status)
	})
}

func TestActivateUnknownFlow(t *testing.T) {
	withRegistry(t, func(ctx context.Context, reg *flow.Registry) {
		err := reg.Activate(ctx, "acme", "missing")
		assert.ErrorIs(t, err, flow.ErrFlowNotFound)
	})
}

func TestSavePreservesActiveStatus(t *testing.T) {
	withRegistry(t, func(ctx context.Context, reg *flow.Registry) {
		def := welcomeFlow()
		require.NoError(t, reg.Save(ctx, def))
		require.NoError(t, reg.Activate(ctx, "acme", "welcome"))

		// republishing the active flow keeps it active
		updated := welcomeFlow()
		updated.Name = "Welcome v2"
		require.NoError(t, reg.Save(ctx, updated))

		active, err := reg.Active(ctx, "acme")
		require.NoError(t, err)
		assert.Equal(t, "Welcome v2", active.Name)
		assert.Equal(t, api.FlowActive, active.Status)
	})
}

func TestDelete(t *testing.T) {
	withRegistry(t, func(ctx context.Context, reg *flow.Registry) {
		require.NoError(t, reg.Save(ctx, welcomeFlow()))
		require.NoError(t, reg.Activate(ctx, "acme", "welcome"))

		require.NoError(t, reg.Delete(ctx, "acme", "welcome"))
		_, err := reg.Get(ctx, "acme", "welcome")
		assert.ErrorIs(t, err, flow.ErrFlowNotFound)

		_, err = reg.Active(ctx, "acme")
		assert.ErrorIs(t, err, flow.ErrNoActiveFlow)

		err = reg.Delete(ctx, "acme", "welcome")
		assert.ErrorIs(t, err, flow.ErrFlowNotFound)
	})
}

func TestList(t *testing.T) {
	withRegistry(t, func(ctx context.Context, reg *flow.Registry) {
		defs, err := reg.List(ctx, "acme")
		require.NoError(t, err)
		assert.Empty(t, defs)

		second := welcomeFlow()
		second.ID = "support"
		require.NoError(t, reg.Save(ctx, welcomeFlow()))
		require.NoError(t, reg.Save(ctx, second))

		defs, err = reg.List(ctx, "acme")
		require.NoError(t, err)
		require.Len(t, defs, 2)
		assert.Equal(t, api.FlowID("support"), defs[0].ID)
		assert.Equal(t, api.FlowID("welcome"), defs[1].ID)
	})
}

func TestActiveGraph(t *testing.T) {
	withRegistry(t, func(ctx context.Context, reg *flow.Registry) {
		require.NoError(t, reg.Save(ctx, welcomeFlow()))
		require.NoError(t, reg.Activate(ctx, "acme", "welcome"))

		g, err := reg.ActiveGraph(ctx, "acme")
		require.NoError(t, err)
		require.NotNil(t, g.Start)
		assert.Equal(t, api.NodeID("start"), g.Start.ID)

		// saving a replacement invalidates the cached graph
		updated := welcomeFlow()
		updated.Nodes = append(updated.Nodes, &api.Node{
			ID:      "extra",
			Type:    api.NodeTypeMessage,
			Message: &api.MessageConfig{Text: "More"},
		})
		require.NoError(t, reg.Save(ctx, updated))

		g, err = reg.ActiveGraph(ctx, "acme")
		require.NoError(t, err)
		_, ok := g.Node("extra")
		assert.True(t, ok)
	})
}

func TestTenantsAreIsolated(t *testing.T) {
	withRegistry(t, func(ctx context.Context, reg *flow.Registry) {
		require.NoError(t, reg.Save(ctx, welcomeFlow()))

		other := welcomeFlow()
		other.TenantID = "globex"
		require.NoError(t, reg.Save(ctx, other))
		require.NoError(t, reg.Activate(ctx, "globex", "welcome"))

		_, err := reg.Active(ctx, "acme")
		assert.ErrorIs(t, err, flow.ErrNoActiveFlow)

		active, err := reg.Active(ctx, "globex")
		require.NoError(t, err)
		assert.Equal(t, api.TenantID("globex"), active.TenantID)
	})
}

func withRegistry(
	t *testing.T, fn func(context.Context, *flow.Registry),
) {
	t.Helper()

	server, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(server.Close)

	tb, err := timebox.NewTimebox(timebox.Config{
		MaxRetries: timebox.DefaultMaxRetries,
		CacheSize:  100,
		Workers:    true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = tb.Close() })

	storeConfig := config.NewDefaultConfig().CatalogStore
	storeConfig.Addr = server.Addr()
	storeConfig.Prefix = "test-catalog"

	store, err := tb.NewStore(storeConfig)
	require.NoError(t, err)

	fn(context.Background(), flow.NewRegistry(store, 100))
}
