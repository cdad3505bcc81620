// Package server implements the HTTP and WebSocket side of the room relay.
//
// The Hub owns the relay registry and runs the single event loop that
// admits connections, dispatches their envelopes and removes them again.
// Each Client runs a read pump that decodes frames and a write pump that
// drains its send queue. Configuration, origin checks, rate limiting,
// routing and the HTTP server helpers live alongside.
package server
