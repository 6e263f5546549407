package api

import (
	"maps"
	"time"
)

type (
	// Variables holds session-scoped variable values. Values are strings;
	// numeric operations parse and re-render them
	Variables map[string]string

	// Session is the durable conversation state for one (tenant, user)
	// pair. CurrentNodeID "" means idle: not started, or just terminated
	Session struct {
		LastActivity  time.Time  `json:"last_activity"`
		Variables     Variables  `json:"variables"`
		Key           SessionKey `json:"key"`
		ChatAddress   string     `json:"chat_address"`
		CurrentNodeID NodeID     `json:"current_node_id,omitempty"`
	}
)

// NewSession creates an idle session for the given key and delivery address
func NewSession(key SessionKey, chat string) *Session {
	return &Session{
		Key:          key,
		ChatAddress:  chat,
		Variables:    Variables{},
		LastActivity: time.Now(),
	}
}

// IsIdle reports whether the session is positioned at no node
func (s *Session) IsIdle() bool {
	return s.CurrentNodeID == ""
}

// Reset returns the session to idle and clears its variables
func (s *Session) Reset() {
	s.CurrentNodeID = ""
	s.Variables = Variables{}
}

// Touch refreshes the session's activity timestamp
func (s *Session) Touch(t time.Time) {
	s.LastActivity = t
}

// Apply merges variable mutations into the session
func (s *Session) Apply(mutations Variables) {
	if len(mutations) == 0 {
		return
	}
	if s.Variables == nil {
		s.Variables = Variables{}
	}
	maps.Copy(s.Variables, mutations)
}
