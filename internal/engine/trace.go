package engine

import (
	"github.com/kode4food/caravan"
	"github.com/kode4food/caravan/message"
	"github.com/kode4food/caravan/topic"

	"github.com/botflow/engine/pkg/api"
)

type (
	// TraceHub fans execution trace events out to subscribers. Each
	// consumer sees every event published after it subscribes
	TraceHub struct {
		topic topic.Topic[*api.TraceEvent]
		prod  topic.Producer[*api.TraceEvent]
	}

	// TraceConsumer receives trace events from the hub
	TraceConsumer = topic.Consumer[*api.TraceEvent]
)

// NewTraceHub creates a trace hub
func NewTraceHub() *TraceHub {
	t := caravan.NewTopic[*api.TraceEvent]()
	return &TraceHub{
		topic: t,
		prod:  t.NewProducer(),
	}
}

// Publish emits a trace event to all subscribers
func (h *TraceHub) Publish(ev *api.TraceEvent) {
	message.Send(h.prod, ev)
}

// NewConsumer subscribes to the trace stream
func (h *TraceHub) NewConsumer() TraceConsumer {
	return h.topic.NewConsumer()
}

// Close stops the hub's producer
func (h *TraceHub) Close() {
	h.prod.Close()
}
