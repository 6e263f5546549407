package engine_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/kode4food/timebox"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"gocloud.dev/blob"
	_ "gocloud.dev/blob/memblob"

	"github.com/botflow/engine/internal/client"
	"github.com/botflow/engine/internal/config"
	"github.com/botflow/engine/internal/engine"
	"github.com/botflow/engine/internal/flow"
	"github.com/botflow/engine/internal/session"
	"github.com/botflow/engine/internal/tenantdb"
	"github.com/botflow/engine/internal/transport"
	"github.com/botflow/engine/pkg/api"
)

type (
	testEnv struct {
		eng      *engine.Engine
		flows    *flow.Registry
		sessions *session.Store
		rec      *transport.Recorder
		invoker  *stubInvoker
		model    *stubModel
		files    *blob.Bucket
		cfg      *config.Config
	}

	stubInvoker struct {
		mu    sync.Mutex
		vars  api.Variables
		errs  []error
		calls int
	}

	stubModel struct {
		text   string
		chunks []string
		err    error
	}
)

func (s *stubInvoker) Invoke(
	_ context.Context, _ *api.HTTPConfig, _ client.Resolver,
) (api.Variables, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if len(s.errs) > 0 {
		err := s.errs[0]
		s.errs = s.errs[1:]
		if err != nil {
			return nil, err
		}
	}
	return s.vars, nil
}

func (s *stubInvoker) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func (s *stubModel) Complete(
	_ context.Context, _ *client.CompletionRequest,
) (string, error) {
	return s.text, s.err
}

func (s *stubModel) Stream(
	_ context.Context, _ *client.CompletionRequest,
	fn func(string) error,
) error {
	if s.err != nil {
		return s.err
	}
	for _, chunk := range s.chunks {
		if err := fn(chunk); err != nil {
			return err
		}
	}
	return nil
}

func withEngine(t *testing.T, fn func(context.Context, *testEnv)) {
	t.Helper()
	newTestEnv(t, false, fn)
}

func withRunningEngine(t *testing.T, fn func(context.Context, *testEnv)) {
	t.Helper()
	newTestEnv(t, true, fn)
}

func newTestEnv(
	t *testing.T, start bool, fn func(context.Context, *testEnv),
) {
	t.Helper()
	ctx := context.Background()

	server, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(server.Close)

	redisClient := redis.NewClient(&redis.Options{Addr: server.Addr()})
	t.Cleanup(func() { _ = redisClient.Close() })

	tb, err := timebox.NewTimebox(timebox.Config{
		MaxRetries: timebox.DefaultMaxRetries,
		CacheSize:  100,
		Workers:    true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = tb.Close() })

	cfg := config.NewDefaultConfig()
	cfg.Redis.Addr = server.Addr()
	cfg.CatalogStore.Addr = server.Addr()
	cfg.CatalogStore.Prefix = "test-catalog"
	cfg.StepBudget = 16
	cfg.WorkerPool = 2
	cfg.Retry.BackoffType = api.BackoffFixed
	cfg.Retry.BackoffMs = 1
	cfg.Retry.MaxBackoffMs = 5
	cfg.Retry.MaxRetries = 2

	store, err := tb.NewStore(cfg.CatalogStore)
	require.NoError(t, err)

	bucket, err := blob.OpenBucket(ctx, "mem://")
	require.NoError(t, err)
	t.Cleanup(func() { _ = bucket.Close() })

	env := &testEnv{
		flows: flow.NewRegistry(store, 100),
		sessions: session.NewStore(
			redisClient, cfg.Redis.Prefix, cfg.SessionTTL,
		),
		rec:     transport.NewRecorder(),
		invoker: &stubInvoker{},
		model:   &stubModel{},
		files:   bucket,
		cfg:     cfg,
	}
	env.eng = engine.New(&engine.Deps{
		Flows:     env.flows,
		Sessions:  env.sessions,
		Transport: env.rec,
		Invoker:   env.invoker,
		Inference: env.model,
		Database: tenantdb.NewRedisStore(
			redisClient, cfg.Redis.Prefix, "leads",
		),
		Files: bucket,
		Redis: redisClient,
		Hub:   tb.GetHub(),
	}, cfg)

	if start {
		env.eng.Start()
	}
	t.Cleanup(func() { _ = env.eng.Stop() })

	fn(ctx, env)
}

func activate(
	t *testing.T, ctx context.Context, env *testEnv,
	def *api.FlowDefinition,
) {
	t.Helper()
	require.NoError(t, env.flows.Save(ctx, def))
	require.NoError(t, env.flows.Activate(ctx, def.TenantID, def.ID))
}

// activateAndSettle waits out the asynchronous tenant reset that follows
// activation when the engine's event loop is running
func activateAndSettle(
	t *testing.T, ctx context.Context, env *testEnv,
	def *api.FlowDefinition,
) {
	t.Helper()
	activate(t, ctx, env, def)
	time.Sleep(100 * time.Millisecond)
}

func flowDef(
	id api.FlowID, nodes []*api.Node, edges []*api.Edge,
) *api.FlowDefinition {
	return &api.FlowDefinition{
		ID:       id,
		TenantID: "acme",
		Nodes:    nodes,
		Edges:    edges,
	}
}

func edge(src, dst api.NodeID, label api.Label) *api.Edge {
	return &api.Edge{
		ID:     api.EdgeID(string(src) + "-" + string(dst)),
		Source: src,
		Target: dst,
		Label:  label,
	}
}

func startNode(id api.NodeID) *api.Node {
	return &api.Node{ID: id, Type: api.NodeTypeStart}
}

func endNode(id api.NodeID) *api.Node {
	return &api.Node{ID: id, Type: api.NodeTypeEnd}
}

func messageNode(id api.NodeID, text string) *api.Node {
	return &api.Node{
		ID:      id,
		Type:    api.NodeTypeMessage,
		Message: &api.MessageConfig{Text: text},
	}
}

func inbound(text string) *api.InboundEvent {
	return &api.InboundEvent{
		TenantID:    "acme",
		UserID:      "u1",
		ChatAddress: "chat-1",
		EventID:     uuid.NewString(),
		Text:        text,
	}
}

func sessionKey() api.SessionKey {
	return api.SessionKey{Tenant: "acme", User: "u1"}
}
