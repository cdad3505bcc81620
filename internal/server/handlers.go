// Package server exposes HTTP handlers, including WebSocket upgrades, health
// and stats endpoints, and the built-in test page.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

// Handlers serves the relay's HTTP surface.
type Handlers struct {
	hub      *Hub
	cfg      Config
	upgrader websocket.Upgrader
	logger   *slog.Logger
}

// NewHandlers builds the HTTP handlers for hub using cfg for per-connection
// limits and the origin policy.
func NewHandlers(hub *Hub, cfg Config, logger *slog.Logger) *Handlers {
	if logger == nil {
		logger = slog.Default()
	}
	cfg = cfg.Sanitize()
	policy := NewOriginPolicy(cfg.AllowedOrigins, logger)

	return &Handlers{
		hub: hub,
		cfg: cfg,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     policy.CheckOrigin,
		},
		logger: logger,
	}
}

// WebSocket upgrades the request and hands the new client to the hub, which
// admits it to the general pool and starts its pumps. NewRouter only sends
// GET upgrades here; the method check covers mounting the handler directly.
func (h *Handlers) WebSocket(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed. WebSocket endpoint only accepts GET requests.", http.StatusMethodNotAllowed)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written the HTTP error response.
		h.logger.Warn("websocket upgrade failed", "addr", r.RemoteAddr, "error", err)
		return
	}

	client := NewClient(conn, h.hub, r.RemoteAddr, h.cfg)
	if err := h.hub.Register(client); err != nil {
		h.logger.Warn("rejecting connection", "addr", r.RemoteAddr, "error", err)
		msg := websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down")
		_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait))
		_ = conn.Close()
	}
}

// Health provides a simple health check endpoint that returns server status.
func (h *Handlers) Health(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	_, _ = fmt.Fprint(w, "Room relay server is running!")
}

// Stats reports room and pool counts as JSON.
func (h *Handlers) Stats(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	stats, err := h.hub.Stats(ctx)
	if err != nil {
		h.logger.Warn("stats unavailable", "error", err)
		http.Error(w, "stats unavailable", http.StatusServiceUnavailable)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(stats); err != nil {
		h.logger.Warn("writing stats response", "error", err)
	}
}

// TestPage serves an HTML page for sending raw envelopes by hand.
func (h *Handlers) TestPage(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/html")
	if _, err := fmt.Fprint(w, testPageHTML); err != nil {
		h.logger.Warn("writing test page", "error", err)
	}
}

const testPageHTML = `<!DOCTYPE html>
<html>
<head>
    <title>Room Relay Test</title>
    <style>
        body { font-family: Arial, sans-serif; margin: 20px; }
        #log { border: 1px solid #ccc; height: 300px; padding: 10px; overflow-y: scroll; margin: 10px 0; background-color: #f9f9f9; font-family: monospace; }
        input { padding: 5px; margin-right: 6px; }
        .status { margin: 10px 0; padding: 5px; border-radius: 3px; }
        .connected { background-color: #d4edda; color: #155724; }
        .disconnected { background-color: #f8d7da; color: #721c24; }
    </style>
</head>
<body>
    <h1>Room Relay Test</h1>
    <div id="status" class="status disconnected">Disconnected</div>
    <div>
        <select id="type">
            <option>REQUEST</option>
            <option>UPDATE_PARTICIPANT</option>
            <option>UPDATE_CONTENTS</option>
            <option>REMOVE_PARTICIPANT</option>
            <option>CLEAR</option>
            <option>ROOMS_TO_SHOW</option>
            <option>REQUEST_ROOM_PROPS</option>
            <option>ROOM_PROP</option>
        </select>
        <input type="text" id="room" placeholder="room">
        <input type="text" id="participant" placeholder="participant">
        <input type="text" id="value" placeholder="value">
        <button onclick="send()">Send</button>
        <button id="connectButton" onclick="toggle()">Connect</button>
    </div>
    <div id="log"></div>
    <script>
        let ws = null;
        const logDiv = document.getElementById('log');
        const statusDiv = document.getElementById('status');
        const field = id => document.getElementById(id).value;

        function log(prefix, text) {
            const line = document.createElement('div');
            line.textContent = prefix + ' ' + text;
            logDiv.appendChild(line);
            logDiv.scrollTop = logDiv.scrollHeight;
        }

        function setStatus(connected) {
            statusDiv.textContent = connected ? 'Connected' : 'Disconnected';
            statusDiv.className = 'status ' + (connected ? 'connected' : 'disconnected');
            document.getElementById('connectButton').textContent = connected ? 'Disconnect' : 'Connect';
        }

        function toggle() {
            if (ws && ws.readyState === WebSocket.OPEN) {
                ws.close();
                return;
            }
            const scheme = location.protocol === 'https:' ? 'wss://' : 'ws://';
            ws = new WebSocket(scheme + location.host + '/ws');
            ws.onopen = () => { log('--', 'connected'); setStatus(true); };
            ws.onmessage = e => log('<<', e.data);
            ws.onclose = e => { log('--', 'closed ' + e.code); setStatus(false); ws = null; };
        }

        function send() {
            if (!ws || ws.readyState !== WebSocket.OPEN) return;
            const frame = JSON.stringify({ t: field('type'), r: field('room'), p: field('participant'), v: field('value') });
            ws.send(frame);
            log('>>', frame);
        }
    </script>
</body>
</html>`
