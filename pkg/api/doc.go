// Package api defines the wire types shared between the flow engine, its
// HTTP surface, and its collaborators: flow definitions and their typed
// node configs, durable sessions, inbound events, handler outcomes, and
// the catalog events the registry is sourced from.
//
// Definition validation lives here so malformed flows are rejected at
// save time and never reach the executor.
package api
