// Package server exposes the relay over WebSocket. Each accepted connection
// becomes a Client whose read pump feeds frames to the chat router or the
// signaling relay and whose write pump drains its send queue.
//
// The implementation is organized into specialized files for the hub,
// clients, HTTP handlers, origin checks, rate limiting and metrics.
package server
