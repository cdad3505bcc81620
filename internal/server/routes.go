// Package server wires HTTP handlers into a gorilla/mux router for the relay.
package server

import (
	"net/http"

	"github.com/gorilla/mux"
)

// NewRouter returns the relay's routes. WebSocket upgrades are accepted on
// any path; plain requests get the health, stats and test page endpoints.
func NewRouter(h *Handlers) *mux.Router {
	r := mux.NewRouter()

	r.NewRoute().
		HeadersRegexp("Upgrade", "(?i)^websocket$").
		Methods(http.MethodGet).
		HandlerFunc(h.WebSocket)

	r.HandleFunc("/health", h.Health).Methods(http.MethodGet)
	r.HandleFunc("/stats", h.Stats).Methods(http.MethodGet)
	r.HandleFunc("/test", h.TestPage).Methods(http.MethodGet)
	r.HandleFunc("/", h.Health).Methods(http.MethodGet)

	return r
}
