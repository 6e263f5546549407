package api

import (
	"errors"
	"fmt"
	"time"
)

type (
	// InboundEvent is one delivery from the messaging transport. EventID is
	// the transport's delivery identifier and drives duplicate suppression;
	// the server mints one when the transport does not supply it
	InboundEvent struct {
		TenantID     TenantID     `json:"tenant_id"`
		UserID       UserID       `json:"user_id"`
		ChatAddress  string       `json:"chat"`
		EventID      string       `json:"event_id,omitempty"`
		Text         string       `json:"text,omitempty"`
		CallbackData string       `json:"callback_data,omitempty"`
		Attachments  []Attachment `json:"attachments,omitempty"`
	}

	// Attachment references transport-held media on an inbound event
	Attachment struct {
		Kind string `json:"kind"`
		Ref  string `json:"ref"`
		Name string `json:"name,omitempty"`
	}

	// OutcomeKind tells the executor how to proceed after a handler ran
	OutcomeKind string

	// Outcome is the result of one handler execution: continue along an
	// edge (optionally labeled), suspend awaiting the next event, or
	// terminate the run. Mutations are applied by the executor before the
	// session is persisted
	Outcome struct {
		ResumeAt  time.Time   `json:"resume_at,omitzero"`
		Mutations Variables   `json:"mutations,omitempty"`
		Kind      OutcomeKind `json:"kind"`
		Branch    Label       `json:"branch,omitempty"`
		SuspendAt NodeID      `json:"suspend_at,omitempty"`
	}

	// TraceKind classifies a trace event emitted by the executor
	TraceKind string

	// TraceEvent is one observable execution step, streamed to websocket
	// subscribers
	TraceEvent struct {
		Timestamp time.Time `json:"timestamp"`
		Kind      TraceKind `json:"kind"`
		TenantID  TenantID  `json:"tenant_id"`
		UserID    UserID    `json:"user_id"`
		FlowID    FlowID    `json:"flow_id,omitempty"`
		NodeID    NodeID    `json:"node_id,omitempty"`
		NodeType  NodeType  `json:"node_type,omitempty"`
		Detail    string    `json:"detail,omitempty"`
	}
)

const (
	OutcomeContinue  OutcomeKind = "continue"
	OutcomeSuspend   OutcomeKind = "suspend"
	OutcomeTerminate OutcomeKind = "terminate"
)

const (
	TraceNodeExecuted TraceKind = "node_executed"
	TraceSuspended    TraceKind = "suspended"
	TraceTerminated   TraceKind = "terminated"
	TraceNodeFailed   TraceKind = "node_failed"
	TraceRunaway      TraceKind = "runaway"
	TraceDeadEnd      TraceKind = "dead_end"
	TraceResumed      TraceKind = "resumed"
)

// ErrTransient marks failures of external collaborators (webhook timeouts,
// model-call 5xx) that the executor retries with backoff
var ErrTransient = errors.New("transient external error")

// Transient wraps an external failure so the executor schedules a retry
// instead of failing the node outright
func Transient(err error) error {
	return fmt.Errorf("%w: %w", ErrTransient, err)
}

// IsTransient reports whether an error should be retried
func IsTransient(err error) bool {
	return errors.Is(err, ErrTransient)
}

// Continue proceeds along the node's single outgoing edge
func Continue() *Outcome {
	return &Outcome{Kind: OutcomeContinue}
}

// ContinueBranch proceeds along the edge carrying the given label
func ContinueBranch(label Label) *Outcome {
	return &Outcome{Kind: OutcomeContinue, Branch: label}
}

// Suspend stops the run and waits for the next inbound event, positioned
// at the given node
func Suspend(at NodeID) *Outcome {
	return &Outcome{Kind: OutcomeSuspend, SuspendAt: at}
}

// SuspendUntil stops the run at the given node and asks the executor to
// schedule a continuation that resumes it at the given time
func SuspendUntil(at NodeID, t time.Time) *Outcome {
	return &Outcome{Kind: OutcomeSuspend, SuspendAt: at, ResumeAt: t}
}

// Terminate ends the run; the executor sets the session idle
func Terminate() *Outcome {
	return &Outcome{Kind: OutcomeTerminate}
}

// WithMutation records a variable value to be applied by the executor
func (o *Outcome) WithMutation(name, value string) *Outcome {
	if o.Mutations == nil {
		o.Mutations = Variables{}
	}
	o.Mutations[name] = value
	return o
}
