package engine

import (
	"context"
	"log/slog"
	"time"

	"github.com/botflow/engine/pkg/api"
	"github.com/botflow/engine/pkg/log"
)

func retryPath(key api.SessionKey) []string {
	return []string{"retry", string(key.Tenant), string(key.User)}
}

func retryTenantPath(tenantID api.TenantID) []string {
	return []string{"retry", string(tenantID)}
}

// scheduleRetry re-runs a node that failed transiently after a backoff
// derived from the attempt count. Scheduling at the session's path
// replaces any earlier pending retry for it
func (e *Engine) scheduleRetry(
	ec *ExecContext, node *api.Node, attempt int,
) {
	key := ec.Session.Key
	ev := ec.Event
	nodeID := node.ID
	delay := e.config.Retry.Backoff(attempt)

	slog.Info("Node retry scheduled",
		log.Session(key),
		log.NodeID(nodeID),
		slog.Int("attempt", attempt),
		slog.Duration("delay", delay))

	e.sched.Schedule(e.ctx, retryPath(key), time.Now().Add(delay),
		func() error {
			return e.retryNode(key, ev, nodeID, attempt)
		},
	)
}

func (e *Engine) retryNode(
	key api.SessionKey, ev *api.InboundEvent, nodeID api.NodeID,
	attempt int,
) error {
	ctx, cancel := context.WithTimeout(e.ctx, time.Minute)
	defer cancel()

	return e.sessions.WithLock(key, func() error {
		graph, err := e.flows.ActiveGraph(ctx, key.Tenant)
		if err != nil {
			return dropNoActiveFlow(err)
		}

		sess, err := e.sessions.Get(ctx, key)
		if err != nil {
			return err
		}
		if sess == nil || sess.CurrentNodeID != nodeID {
			// The session moved on before the retry fired
			return nil
		}

		ec := &ExecContext{Graph: graph, Session: sess, Event: ev}
		node, ok := graph.Node(nodeID)
		if !ok {
			sess.Reset()
			return e.saveSession(ctx, ec)
		}
		return e.run(ctx, ec, node, false, attempt)
	})
}
