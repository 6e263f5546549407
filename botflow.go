// Package engine is the Botflow conversation engine: a multi-tenant
// daemon that drives chat sessions through graph-shaped conversation
// flows
package engine

const (
	// Name identifies the service in logs and health responses
	Name = "botflow"

	// Version is the engine release version
	Version = "0.1.0"
)
