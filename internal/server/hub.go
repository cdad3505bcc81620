// Package server coordinates client admission, frame dispatch, and
// connection cleanup for the relay via the Hub type.
package server

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/Tyrowin/roomrelay/internal/pool"
	"github.com/Tyrowin/roomrelay/internal/protocol"
	"github.com/Tyrowin/roomrelay/internal/relay"
)

// ErrHubStopped is returned by hub calls made after shutdown began.
var ErrHubStopped = errors.New("hub stopped")

type inboundFrame struct {
	client *Client
	env    protocol.Envelope
	raw    []byte
}

// Hub serialises every state change of the relay. Admissions, removals and
// decoded frames arrive over channels and Run handles each one to
// completion before taking the next, so the registry needs no locks.
type Hub struct {
	registry   *relay.Registry
	dispatcher *relay.Dispatcher
	logger     *slog.Logger

	clients    map[*Client]struct{}
	register   chan *Client
	unregister chan *Client
	inbound    chan inboundFrame
	calls      chan func()

	wg     sync.WaitGroup
	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

// NewHub creates a hub driving the given registry and dispatcher. Call Run
// in its own goroutine before registering clients.
func NewHub(registry *relay.Registry, dispatcher *relay.Dispatcher, logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Hub{
		registry:   registry,
		dispatcher: dispatcher,
		logger:     logger,
		clients:    make(map[*Client]struct{}),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		inbound:    make(chan inboundFrame),
		calls:      make(chan func()),
		ctx:        ctx,
		cancel:     cancel,
		done:       make(chan struct{}),
	}
}

// Run starts the hub's main event loop. It returns once Shutdown is called.
func (h *Hub) Run() {
	defer close(h.done)

	for {
		select {
		case <-h.ctx.Done():
			h.shutdownClients()
			return

		case client := <-h.register:
			if client == nil {
				h.logger.Warn("received nil client registration; skipping")
				continue
			}
			if h.admit(client) {
				h.startPumps(client)
			}

		case client := <-h.unregister:
			h.remove(client, "disconnected")

		case in := <-h.inbound:
			h.handleInbound(in)

		case fn := <-h.calls:
			fn()
		}
	}
}

// Register hands a freshly upgraded client to the hub, which admits it to
// the general pool and starts its pumps.
func (h *Hub) Register(c *Client) error {
	select {
	case h.register <- c:
		return nil
	case <-h.ctx.Done():
		return ErrHubStopped
	}
}

// Stats returns registry counts, read inside the event loop.
func (h *Hub) Stats(ctx context.Context) (relay.Stats, error) {
	var stats relay.Stats
	err := h.call(ctx, func() { stats = h.registry.Stats() })
	return stats, err
}

// call runs fn on the hub goroutine and waits for it to finish.
func (h *Hub) call(ctx context.Context, fn func()) error {
	finished := make(chan struct{})
	wrapped := func() {
		defer close(finished)
		fn()
	}

	select {
	case h.calls <- wrapped:
	case <-ctx.Done():
		return ctx.Err()
	case <-h.ctx.Done():
		return ErrHubStopped
	}

	select {
	case <-finished:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (h *Hub) unregisterClient(c *Client) {
	select {
	case h.unregister <- c:
	case <-h.ctx.Done():
	}
}

// deliver passes a decoded frame to the event loop. It reports false once
// the hub is shutting down.
func (h *Hub) deliver(c *Client, env protocol.Envelope, raw []byte) bool {
	select {
	case h.inbound <- inboundFrame{client: c, env: env, raw: raw}:
		return true
	case <-h.ctx.Done():
		return false
	}
}

func (h *Hub) admit(c *Client) bool {
	if _, ok := h.clients[c]; ok {
		h.logger.Warn("client registered twice", "conn", c.id)
		return false
	}
	h.clients[c] = struct{}{}
	h.registry.Admit(c)
	h.logger.Info("client registered", "conn", c.id, "addr", c.addr, "clients", len(h.clients))
	return true
}

func (h *Hub) startPumps(c *Client) {
	h.wg.Add(2)
	go func() {
		defer h.wg.Done()
		c.writePump()
	}()
	go func() {
		defer h.wg.Done()
		c.readPump()
	}()
}

// remove releases c from its pool and stops its write pump. Removing a
// client twice is expected when the hub closed it first; an unknown client
// that was never closed is a bookkeeping anomaly, which Release logs.
func (h *Hub) remove(c *Client, reason string) {
	if _, ok := h.clients[c]; !ok {
		if !c.closed {
			h.registry.Release(c)
		}
		return
	}

	delete(h.clients, c)
	m, _ := h.registry.Release(c)
	c.closeSend()
	h.logger.Info("client removed",
		"conn", c.id, "addr", c.addr, "pool", m.String(), "reason", reason, "clients", len(h.clients))
}

func (h *Hub) handleInbound(in inboundFrame) {
	if _, ok := h.clients[in.client]; !ok {
		h.logger.Debug("dropping frame from removed client", "conn", in.client.id, "type", in.env.Type)
		return
	}

	if err := h.dispatcher.Dispatch(in.client, in.env, in.raw); err != nil {
		h.handleDispatchError(in.client, in.env, err)
	}
}

func (h *Hub) handleDispatchError(sender *Client, env protocol.Envelope, err error) {
	var bErr *pool.BroadcastError
	switch {
	case errors.Is(err, protocol.ErrMalformedValue):
		h.logger.Warn("invalid frame value; closing connection",
			"conn", sender.id, "type", env.Type, "error", err)
		h.remove(sender, "invalid frame")

	case errors.As(err, &bErr):
		h.logger.Warn("frame not delivered to every peer",
			"conn", sender.id, "type", env.Type, "pool", bErr.Pool, "failed", len(bErr.Failures), "error", err)
		for _, peer := range bErr.Peers(pool.ErrSendBufferFull) {
			if c, ok := peer.(*Client); ok {
				h.remove(c, "send buffer full")
			}
		}

	default:
		h.logger.Error("dispatch failed", "conn", sender.id, "type", env.Type, "error", err)
	}
}

func (h *Hub) shutdownClients() {
	h.logger.Info("shutting down all client connections", "clients", len(h.clients))

	for c := range h.clients {
		h.remove(c, "server shutdown")
	}
}

// Shutdown stops the event loop, closes every client and waits for their
// pumps to exit or ctx to expire.
func (h *Hub) Shutdown(ctx context.Context) error {
	h.logger.Info("initiating hub shutdown")
	h.cancel()

	select {
	case <-h.done:
	case <-ctx.Done():
		return ctx.Err()
	}

	finished := make(chan struct{})
	go func() {
		h.wg.Wait()
		close(finished)
	}()

	select {
	case <-finished:
		h.logger.Info("hub shutdown completed")
		return nil
	case <-ctx.Done():
		h.logger.Warn("hub shutdown timed out; some connections may still be open")
		return ctx.Err()
	}
}
