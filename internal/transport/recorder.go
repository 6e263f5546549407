package transport

import (
	"context"
	"sync"
)

// Recorder is an in-memory Transport that captures deliveries for tests
type Recorder struct {
	messages  []*Message
	documents []*Document
	groupOps  []*GroupOp
	fail      error
	mu        sync.Mutex
}

var _ Transport = (*Recorder)(nil)

// NewRecorder creates an empty recording transport
func NewRecorder() *Recorder {
	return &Recorder{}
}

// SendMessage records a text delivery
func (r *Recorder) SendMessage(_ context.Context, msg *Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.fail != nil {
		return r.fail
	}
	r.messages = append(r.messages, msg)
	return nil
}

// SendDocument records a file delivery
func (r *Recorder) SendDocument(_ context.Context, doc *Document) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.fail != nil {
		return r.fail
	}
	r.documents = append(r.documents, doc)
	return nil
}

// SendGroupOp records a group operation
func (r *Recorder) SendGroupOp(_ context.Context, op *GroupOp) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.fail != nil {
		return r.fail
	}
	r.groupOps = append(r.groupOps, op)
	return nil
}

// FailWith makes subsequent deliveries return the given error
func (r *Recorder) FailWith(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fail = err
}

// Messages returns the recorded text deliveries
func (r *Recorder) Messages() []*Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	res := make([]*Message, len(r.messages))
	copy(res, r.messages)
	return res
}

// Documents returns the recorded file deliveries
func (r *Recorder) Documents() []*Document {
	r.mu.Lock()
	defer r.mu.Unlock()
	res := make([]*Document, len(r.documents))
	copy(res, r.documents)
	return res
}

// GroupOps returns the recorded group operations
func (r *Recorder) GroupOps() []*GroupOp {
	r.mu.Lock()
	defer r.mu.Unlock()
	res := make([]*GroupOp, len(r.groupOps))
	copy(res, r.groupOps)
	return res
}
