// Package server hosts the simulation-facing WebSocket ingest endpoint
// and the diagnostics HTTP API.
package server
