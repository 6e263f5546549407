package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/botflow/engine/internal/flow"
	"github.com/botflow/engine/internal/transport"
	"github.com/botflow/engine/pkg/api"
	"github.com/botflow/engine/pkg/log"
)

var ErrHandlerPanicked = errors.New("node handler panicked")

// HandleEvent processes one inbound event. Redelivered events are dropped
// through the dedupe store; events for the same session serialize on its
// lock while other sessions proceed concurrently
func (e *Engine) HandleEvent(
	ctx context.Context, ev *api.InboundEvent,
) error {
	if ev.EventID != "" {
		fresh, err := e.sessions.MarkProcessed(
			ctx, ev.TenantID, ev.EventID, e.config.DedupeTTL,
		)
		if err != nil {
			return err
		}
		if !fresh {
			slog.Debug("Duplicate event dropped",
				log.TenantID(ev.TenantID),
				log.EventID(ev.EventID))
			return nil
		}
	}

	key := api.SessionKey{Tenant: ev.TenantID, User: ev.UserID}
	return e.sessions.WithLock(key, func() error {
		return e.process(ctx, key, ev)
	})
}

func (e *Engine) process(
	ctx context.Context, key api.SessionKey, ev *api.InboundEvent,
) error {
	graph, err := e.flows.ActiveGraph(ctx, ev.TenantID)
	if err != nil {
		return dropNoActiveFlow(err)
	}

	sess, err := e.sessions.GetOrCreate(ctx, key, ev.ChatAddress)
	if err != nil {
		return err
	}

	ec := &ExecContext{Graph: graph, Session: sess, Event: ev}
	if sess.IsIdle() {
		return e.run(ctx, ec, graph.Start, false, 0)
	}

	node, ok := graph.Node(sess.CurrentNodeID)
	if !ok {
		// The node the session was parked at no longer exists; the flow
		// was replaced underneath it
		sess.Reset()
		return e.run(ctx, ec, graph.Start, false, 0)
	}
	return e.run(ctx, ec, node, true, 0)
}

// run advances the session from the given node until it suspends,
// terminates, dead-ends, or exhausts the step budget. attempt carries the
// retry count for the first node when invoked from a scheduled retry
func (e *Engine) run(
	ctx context.Context, ec *ExecContext, node *api.Node, resume bool,
	attempt int,
) error {
	for steps := 0; ; steps++ {
		if steps >= e.config.StepBudget {
			// Loop guard for cyclic graphs: park the session here instead
			// of spinning; the next inbound event picks it back up
			e.trace(ec, api.TraceRunaway, node, "step budget exhausted")
			slog.Warn("Runaway flow suspended",
				log.Session(ec.Session.Key),
				log.NodeID(node.ID))
			ec.Session.CurrentNodeID = node.ID
			return e.saveSession(ctx, ec)
		}

		outcome, err := e.executeNode(ctx, ec, node, resume)
		resume = false
		if err != nil {
			next, done, ferr := e.failNode(ctx, ec, node, attempt, err)
			if done || ferr != nil {
				return ferr
			}
			node = next
			attempt = 0
			continue
		}
		attempt = 0

		ec.Session.Apply(outcome.Mutations)

		switch outcome.Kind {
		case api.OutcomeSuspend:
			ec.Session.CurrentNodeID = outcome.SuspendAt
			if err := e.saveSession(ctx, ec); err != nil {
				return err
			}
			if !outcome.ResumeAt.IsZero() {
				e.scheduleContinuation(
					ctx, ec.Session.Key, outcome.SuspendAt,
					outcome.ResumeAt,
				)
			}
			e.trace(ec, api.TraceSuspended, node, "")
			return nil

		case api.OutcomeTerminate:
			e.trace(ec, api.TraceTerminated, node, "")
			ec.Session.Reset()
			return e.saveSession(ctx, ec)

		default:
			e.trace(ec, api.TraceNodeExecuted, node, "")
			edge := ec.Graph.Next(node.ID, outcome.Branch)
			if edge == nil {
				e.trace(ec, api.TraceDeadEnd, node,
					deadEndDetail(ec.Graph, node.ID, outcome.Branch))
				ec.Session.Reset()
				return e.saveSession(ctx, ec)
			}
			node, _ = ec.Graph.Node(edge.Target)
		}
	}
}

func (e *Engine) executeNode(
	ctx context.Context, ec *ExecContext, node *api.Node, resume bool,
) (out *api.Outcome, err error) {
	h, err := e.handlers.Lookup(node.Type)
	if err != nil {
		return nil, err
	}

	defer func() {
		if r := recover(); r != nil {
			out = nil
			err = fmt.Errorf("%w: %v", ErrHandlerPanicked, r)
		}
	}()

	if resume {
		if resumer, ok := h.(Resumer); ok {
			e.trace(ec, api.TraceResumed, node, "")
			return resumer.Resume(ctx, ec, node)
		}
	}
	return h.Execute(ctx, ec, node)
}

// failNode handles a node execution failure. Transient failures park the
// session at the node and schedule a retry with backoff; once retries are
// exhausted the session stays parked so the next inbound event tries
// again. Permanent failures follow the node's failure edge when one
// exists, otherwise the user gets the fallback message and the session
// ends
func (e *Engine) failNode(
	ctx context.Context, ec *ExecContext, node *api.Node, attempt int,
	cause error,
) (*api.Node, bool, error) {
	transient := api.IsTransient(cause)
	if transient && attempt < e.config.Retry.MaxRetries {
		ec.Session.CurrentNodeID = node.ID
		if err := e.saveSession(ctx, ec); err != nil {
			return nil, true, err
		}
		e.scheduleRetry(ec, node, attempt+1)
		return nil, true, nil
	}

	e.trace(ec, api.TraceNodeFailed, node, cause.Error())
	slog.Warn("Node failed",
		log.Session(ec.Session.Key),
		log.NodeID(node.ID),
		log.Error(cause))

	if edge := ec.Graph.Next(node.ID, api.LabelFailure); edge != nil {
		next, _ := ec.Graph.Node(edge.Target)
		return next, false, nil
	}

	if transient {
		ec.Session.CurrentNodeID = node.ID
		return nil, true, e.saveSession(ctx, ec)
	}

	e.sendFallback(ctx, ec)
	ec.Session.Reset()
	return nil, true, e.saveSession(ctx, ec)
}

func (e *Engine) sendFallback(ctx context.Context, ec *ExecContext) {
	if ec.Session.ChatAddress == "" {
		return
	}
	err := e.out.SendMessage(ctx, &transport.Message{
		TenantID: ec.Session.Key.Tenant,
		Chat:     ec.Session.ChatAddress,
		Text:     e.config.FallbackMessage,
	})
	if err != nil {
		slog.Warn("Fallback message delivery failed",
			log.Session(ec.Session.Key),
			log.Error(err))
	}
}

func (e *Engine) saveSession(ctx context.Context, ec *ExecContext) error {
	ec.Session.Touch(time.Now())
	return e.sessions.Save(ctx, ec.Session)
}

func (e *Engine) trace(
	ec *ExecContext, kind api.TraceKind, node *api.Node, detail string,
) {
	e.traces.Publish(&api.TraceEvent{
		Timestamp: time.Now(),
		Kind:      kind,
		TenantID:  ec.Session.Key.Tenant,
		UserID:    ec.Session.Key.User,
		FlowID:    ec.Graph.Definition.ID,
		NodeID:    node.ID,
		NodeType:  node.Type,
		Detail:    detail,
	})
}

// deadEndDetail names the branch that found no edge and the labels the
// node actually offers
func deadEndDetail(
	g *flow.CompiledGraph, id api.NodeID, branch api.Label,
) string {
	edges := g.OutEdges(id)
	if len(edges) == 0 {
		return fmt.Sprintf("no outgoing edges for branch %q", branch)
	}
	labels := make([]string, len(edges))
	for i, e := range edges {
		labels[i] = string(e.Label)
	}
	return fmt.Sprintf("no edge for branch %q, have [%s]",
		branch, strings.Join(labels, " "))
}

// dropNoActiveFlow swallows the case where a tenant has no active flow;
// events for such tenants are dropped rather than erroring
func dropNoActiveFlow(err error) error {
	if errors.Is(err, flow.ErrNoActiveFlow) {
		return nil
	}
	return err
}
