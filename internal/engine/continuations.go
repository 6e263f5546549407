package engine

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/botflow/engine/pkg/api"
	"github.com/botflow/engine/pkg/log"
)

type (
	// ContinuationStore persists pending delay resumptions in a per-tenant
	// sorted set, scored by resume time, so they survive restarts
	ContinuationStore struct {
		client *redis.Client
		prefix string
	}

	// Continuation identifies a suspended session waiting on a timer
	Continuation struct {
		UserID api.UserID `json:"user_id"`
		NodeID api.NodeID `json:"node_id"`
	}

	// ScheduledContinuation pairs a continuation with its resume time
	ScheduledContinuation struct {
		Continuation
		At time.Time
	}
)

// NewContinuationStore creates a continuation store under the given key
// prefix
func NewContinuationStore(
	client *redis.Client, prefix string,
) *ContinuationStore {
	return &ContinuationStore{
		client: client,
		prefix: prefix,
	}
}

// Add records a pending continuation
func (s *ContinuationStore) Add(
	ctx context.Context, tenantID api.TenantID, c *Continuation,
	at time.Time,
) error {
	member, err := json.Marshal(c)
	if err != nil {
		return err
	}
	return s.client.ZAdd(ctx, s.key(tenantID), redis.Z{
		Score:  float64(at.UnixMilli()),
		Member: string(member),
	}).Err()
}

// Remove drops a continuation once it has fired
func (s *ContinuationStore) Remove(
	ctx context.Context, tenantID api.TenantID, c *Continuation,
) error {
	member, err := json.Marshal(c)
	if err != nil {
		return err
	}
	return s.client.ZRem(ctx, s.key(tenantID), string(member)).Err()
}

// DeleteTenant drops every pending continuation of a tenant
func (s *ContinuationStore) DeleteTenant(
	ctx context.Context, tenantID api.TenantID,
) error {
	return s.client.Del(ctx, s.key(tenantID)).Err()
}

// All returns every pending continuation grouped by tenant. Used on
// startup to reschedule timers that were lost with the process
func (s *ContinuationStore) All(
	ctx context.Context,
) (map[api.TenantID][]ScheduledContinuation, error) {
	match := s.prefix + ":cont:*"
	iter := s.client.Scan(ctx, 0, match, 100).Iterator()

	res := map[api.TenantID][]ScheduledContinuation{}
	for iter.Next(ctx) {
		key := iter.Val()
		tenant := api.TenantID(strings.TrimPrefix(
			key, s.prefix+":cont:",
		))

		members, err := s.client.ZRangeWithScores(ctx, key, 0, -1).Result()
		if err != nil {
			return nil, err
		}
		for _, z := range members {
			var c Continuation
			member, ok := z.Member.(string)
			if !ok || json.Unmarshal([]byte(member), &c) != nil {
				continue
			}
			res[tenant] = append(res[tenant], ScheduledContinuation{
				Continuation: c,
				At:           time.UnixMilli(int64(z.Score)),
			})
		}
	}
	return res, iter.Err()
}

func (s *ContinuationStore) key(tenantID api.TenantID) string {
	return s.prefix + ":cont:" + string(tenantID)
}

func contPath(key api.SessionKey) []string {
	return []string{"cont", string(key.Tenant), string(key.User)}
}

func contTenantPath(tenantID api.TenantID) []string {
	return []string{"cont", string(tenantID)}
}

func (e *Engine) scheduleContinuation(
	ctx context.Context, key api.SessionKey, nodeID api.NodeID,
	at time.Time,
) {
	c := &Continuation{UserID: key.User, NodeID: nodeID}
	if err := e.conts.Add(ctx, key.Tenant, c, at); err != nil {
		slog.Error("Failed to persist continuation",
			log.Session(key),
			log.Error(err))
	}
	e.sched.Schedule(ctx, contPath(key), at, func() error {
		return e.fireContinuation(key, nodeID)
	})
}

// fireContinuation resumes a session whose delay has elapsed. Sessions
// that moved on in the meantime are left alone
func (e *Engine) fireContinuation(
	key api.SessionKey, nodeID api.NodeID,
) error {
	ctx, cancel := context.WithTimeout(e.ctx, time.Minute)
	defer cancel()

	c := &Continuation{UserID: key.User, NodeID: nodeID}
	if err := e.conts.Remove(ctx, key.Tenant, c); err != nil {
		slog.Warn("Failed to remove continuation",
			log.Session(key),
			log.Error(err))
	}

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
			return nil
		}

		ec := &ExecContext{
			Graph:   graph,
			Session: sess,
			Event: &api.InboundEvent{
				TenantID:    key.Tenant,
				UserID:      key.User,
				ChatAddress: sess.ChatAddress,
			},
		}

		node, ok := graph.Node(nodeID)
		if !ok {
			sess.Reset()
			return e.saveSession(ctx, ec)
		}

		e.trace(ec, api.TraceResumed, node, "delay elapsed")
		edge := graph.Next(nodeID, "")
		if edge == nil {
			e.trace(ec, api.TraceDeadEnd, node, "")
			sess.Reset()
			return e.saveSession(ctx, ec)
		}

		next, _ := graph.Node(edge.Target)
		return e.run(ctx, ec, next, false, 0)
	})
}

func (e *Engine) recoverContinuations(ctx context.Context) error {
	pending, err := e.conts.All(ctx)
	if err != nil {
		return err
	}

	count := 0
	for tenant, list := range pending {
		for _, sc := range list {
			key := api.SessionKey{Tenant: tenant, User: sc.UserID}
			nodeID := sc.NodeID
			e.sched.Schedule(ctx, contPath(key), sc.At, func() error {
				return e.fireContinuation(key, nodeID)
			})
			count++
		}
	}
	if count > 0 {
		slog.Info("Continuations recovered",
			slog.Int("count", count))
	}
	return nil
}
