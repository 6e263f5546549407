package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/kode4food/caravan"
	"github.com/kode4food/caravan/message"
	"github.com/kode4food/caravan/topic"
	"github.com/kode4food/timebox"
	"github.com/redis/go-redis/v9"
	"gocloud.dev/blob"

	"github.com/botflow/engine/internal/client"
	"github.com/botflow/engine/internal/config"
	"github.com/botflow/engine/internal/engine/scheduler"
	"github.com/botflow/engine/internal/flow"
	"github.com/botflow/engine/internal/session"
	"github.com/botflow/engine/internal/tenantdb"
	"github.com/botflow/engine/internal/transport"
	"github.com/botflow/engine/pkg/api"
	"github.com/botflow/engine/pkg/events"
	"github.com/botflow/engine/pkg/log"
)

type (
	// Engine is the core conversation execution engine. Inbound events are
	// queued onto a worker pool; each event advances one session through
	// the tenant's active flow
	Engine struct {
		config   *config.Config
		flows    *flow.Registry
		sessions *session.Store
		out      transport.Transport
		handlers *HandlerRegistry
		lua      *LuaEnv
		traces   *TraceHub
		jobs     *JobQueue
		sched    *scheduler.Scheduler
		conts    *ContinuationStore
		consumer EventConsumer
		handler  timebox.Handler
		prod     topic.Producer[*api.InboundEvent]
		cons     topic.Consumer[*api.InboundEvent]
		ctx      context.Context
		cancel   context.CancelFunc
		wg       sync.WaitGroup
	}

	// Deps are the collaborators the engine and its handlers run against
	Deps struct {
		Flows     *flow.Registry
		Sessions  *session.Store
		Transport transport.Transport
		Invoker   client.Invoker
		Inference client.Inference
		Database  tenantdb.Store
		Files     *blob.Bucket
		Redis     *redis.Client
		Hub       timebox.EventHub
	}

	// EventConsumer consumes catalog events from the event hub
	EventConsumer = topic.Consumer[*timebox.Event]
)

var ErrShutdownTimeout = errors.New("shutdown timeout exceeded")

func newInboundTopic() topic.Topic[*api.InboundEvent] {
	return caravan.NewTopic[*api.InboundEvent]()
}

// New creates an engine wired to the given collaborators
func New(deps *Deps, cfg *config.Config) *Engine {
	ctx, cancel := context.WithCancel(context.Background())

	jobs := NewJobQueue(deps.Transport.SendGroupOp)
	inbound := newInboundTopic()
	lua := NewLuaEnv()

	e := &Engine{
		config:   cfg,
		flows:    deps.Flows,
		sessions: deps.Sessions,
		out:      deps.Transport,
		handlers: DefaultHandlers(deps, jobs, lua),
		lua:      lua,
		traces:   NewTraceHub(),
		jobs:     jobs,
		sched:    scheduler.New(time.Now, scheduler.NewTimer),
		conts:    NewContinuationStore(deps.Redis, cfg.Redis.Prefix),
		consumer: deps.Hub.NewConsumer(),
		ctx:      ctx,
		cancel:   cancel,
		prod:     inbound.NewProducer(),
		cons:     inbound.NewConsumer(),
	}
	e.handler = e.createEventHandler()
	return e
}

func (e *Engine) createEventHandler() timebox.Handler {
	return timebox.MakeDispatcher(map[timebox.EventType]timebox.Handler{
		timebox.EventType(api.EventTypeFlowActivated): timebox.MakeHandler(
			e.handleFlowActivated,
		),
		timebox.EventType(api.EventTypeFlowSaved): timebox.MakeHandler(
			e.handleFlowSaved,
		),
	})
}

// Start begins processing inbound events, scheduled continuations, and
// catalog changes
func (e *Engine) Start() {
	slog.Info("Engine starting",
		slog.Int("workers", e.config.WorkerPool))

	go e.sched.Run(e.ctx)
	e.jobs.Start()

	ctx, cancel := context.WithTimeout(e.ctx, 30*time.Second)
	defer cancel()
	if err := e.recoverContinuations(ctx); err != nil {
		slog.Error("Failed to recover continuations",
			log.Error(err))
	}

	for range e.config.WorkerPool {
		e.wg.Go(e.worker)
	}
	go e.eventLoop()
}

// Stop gracefully shuts down the engine
func (e *Engine) Stop() error {
	e.cancel()
	defer e.consumer.Close()
	defer e.traces.Close()

	done := make(chan struct{})
	go func() {
		e.wg.Wait()
		e.jobs.Flush()
		close(done)
	}()

	select {
	case <-done:
		slog.Info("Engine stopped")
		return nil
	case <-time.After(e.config.ShutdownTimeout):
		return ErrShutdownTimeout
	}
}

// Submit queues an inbound event for processing
func (e *Engine) Submit(ev *api.InboundEvent) {
	message.Send(e.prod, ev)
}

// Traces returns the hub streaming execution trace events
func (e *Engine) Traces() *TraceHub {
	return e.traces
}

// CheckScripts compiles every script node in a definition, surfacing
// syntax errors at save time instead of mid-conversation
func (e *Engine) CheckScripts(def *api.FlowDefinition) error {
	for _, n := range def.Nodes {
		if n.Type != api.NodeTypeScript {
			continue
		}
		if err := e.lua.Check(n.Script.Script); err != nil {
			return fmt.Errorf("%s: %w", n.ID, err)
		}
	}
	return nil
}

func (e *Engine) worker() {
	for {
		select {
		case <-e.ctx.Done():
			return
		case ev, ok := <-e.cons.Receive():
			if !ok {
				return
			}
			if err := e.HandleEvent(e.ctx, ev); err != nil {
				slog.Error("Event processing failed",
					log.TenantID(ev.TenantID),
					log.EventID(ev.EventID),
					log.Error(err))
			}
		}
	}
}

func (e *Engine) eventLoop() {
	for {
		select {
		case <-e.ctx.Done():
			return
		case ev, ok := <-e.consumer.Receive():
			if !ok {
				return
			}
			e.routeEvent(ev)
		}
	}
}

func (e *Engine) routeEvent(ev *timebox.Event) {
	if !events.IsCatalogEvent(ev) {
		return
	}
	if err := e.handler(ev); err != nil {
		slog.Error("Failed to handle catalog event",
			slog.String("event_type", string(ev.Type)),
			log.Error(err))
	}
}

// handleFlowActivated resets every session of the tenant and drops its
// pending continuations and retries. Activation swaps the flow out from
// under in-flight conversations, so they start over
func (e *Engine) handleFlowActivated(
	ev *timebox.Event, _ api.FlowActivatedEvent,
) error {
	return e.resetTenant(events.CatalogTenant(ev))
}

// handleFlowSaved resets the tenant when the saved definition replaces
// the active flow in place. A structural edit invalidates parked
// positions even when their node IDs survive the edit
func (e *Engine) handleFlowSaved(
	ev *timebox.Event, fs api.FlowSavedEvent,
) error {
	if fs.Flow == nil || !fs.Flow.IsActive() {
		return nil
	}
	return e.resetTenant(events.CatalogTenant(ev))
}

func (e *Engine) resetTenant(tenant api.TenantID) error {
	ctx, cancel := context.WithTimeout(e.ctx, 30*time.Second)
	defer cancel()

	e.sched.CancelPrefix(ctx, contTenantPath(tenant))
	e.sched.CancelPrefix(ctx, retryTenantPath(tenant))
	if err := e.conts.DeleteTenant(ctx, tenant); err != nil {
		return err
	}

	n, err := e.sessions.ResetAllForTenant(ctx, tenant)
	if err != nil {
		return err
	}
	slog.Info("Tenant sessions reset",
		log.TenantID(tenant),
		slog.Int("sessions", n))
	return nil
}
