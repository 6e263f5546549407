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

	"github.com/botflow/engine/internal/transport"
	"github.com/botflow/engine/pkg/log"
)

type (
	// JobQueue executes queued group operations sequentially, off the
	// event-processing path. A group node enqueues and moves on
	JobQueue struct {
		queue    topic.Topic[*transport.GroupOp]
		prod     topic.Producer[*transport.GroupOp]
		cons     topic.Consumer[*transport.GroupOp]
		exec     JobFunc
		stop     chan struct{}
		started  sync.Once
		stopOnce sync.Once
		wg       sync.WaitGroup
	}

	// JobFunc carries out one group operation
	JobFunc func(context.Context, *transport.GroupOp) error
)

const (
	jobMaxAttempts = 3
	jobRetryDelay  = 100 * time.Millisecond
)

var ErrJobPanicked = errors.New("group job panicked")

// NewJobQueue creates a job queue that runs operations through exec
func NewJobQueue(exec JobFunc) *JobQueue {
	queue := caravan.NewTopic[*transport.GroupOp]()
	return &JobQueue{
		queue: queue,
		prod:  queue.NewProducer(),
		cons:  queue.NewConsumer(),
		exec:  exec,
		stop:  make(chan struct{}),
	}
}

// Start begins processing queued operations
func (q *JobQueue) Start() {
	q.started.Do(func() {
		q.wg.Go(func() {
			for {
				select {
				case <-q.stop:
					return
				case op, ok := <-q.cons.Receive():
					if !ok {
						return
					}
					q.runJob(op)
				}
			}
		})
	})
}

// Enqueue adds a group operation to the queue
func (q *JobQueue) Enqueue(op *transport.GroupOp) {
	if op == nil {
		return
	}
	message.Send(q.prod, op)
}

// Flush waits for queued operations to complete and stops the queue
func (q *JobQueue) Flush() {
	q.stopOnce.Do(func() {
		close(q.stop)
	})
	q.wg.Wait()
	for {
		select {
		case op, ok := <-q.cons.Receive():
			if !ok {
				q.close()
				return
			}
			q.runJob(op)
		default:
			q.close()
			return
		}
	}
}

func (q *JobQueue) close() {
	q.prod.Close()
	q.cons.Close()
}

func (q *JobQueue) runJob(op *transport.GroupOp) {
	for attempt := range jobMaxAttempts {
		err := q.tryJob(op)
		if err == nil {
			return
		}
		slog.Error("Group job failed",
			slog.String("action", string(op.Action)),
			slog.String("group", op.Group),
			slog.Int("attempt", attempt+1),
			slog.Int("max_attempts", jobMaxAttempts),
			log.Error(err))
		if attempt < jobMaxAttempts-1 {
			time.Sleep(jobRetryDelay)
		}
	}
	slog.Error("Group job permanently failed",
		slog.String("action", string(op.Action)),
		slog.String("group", op.Group))
}

func (q *JobQueue) tryJob(op *transport.GroupOp) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrJobPanicked, r)
		}
	}()
	ctx, cancel := context.WithTimeout(
		context.Background(), 30*time.Second,
	)
	defer cancel()
	return q.exec(ctx, op)
}
