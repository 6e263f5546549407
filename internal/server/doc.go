// Package server implements the HTTP API server for the conversation
// engine
//
// This package provides REST endpoints for managing flow definitions,
// sessions, inbound event intake, health checks, and WebSocket trace
// streaming
package server
