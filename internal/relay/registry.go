// Package relay holds the process-wide relay state and the dispatcher that
// applies client envelopes to it.
//
// A Registry is built once at startup and handed to the Dispatcher and the
// hub that drives it. Nothing here locks: every call must come from the one
// goroutine that owns the registry.
package relay

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/Tyrowin/roomrelay/internal/pool"
	"github.com/Tyrowin/roomrelay/internal/room"
)

// ErrUnknownPeer is returned when an operation names a peer that was never
// admitted or has already been released.
var ErrUnknownPeer = errors.New("unknown peer")

// Kind tells which pool a peer currently belongs to.
type Kind int

const (
	// General is the process-wide pool of peers not bound to a room.
	General Kind = iota + 1
	// Subscriber is a room's property subscriber pool.
	Subscriber
)

func (k Kind) String() string {
	switch k {
	case General:
		return "general"
	case Subscriber:
		return "subscriber"
	default:
		return "unknown"
	}
}

// Membership is the tagged pool assignment of one peer. Room is only set
// for Subscriber.
type Membership struct {
	Kind Kind
	Room string
}

func (m Membership) String() string {
	if m.Kind == Subscriber {
		return "subscriber:" + m.Room
	}
	return m.Kind.String()
}

// Stats is a point-in-time count of registry contents.
type Stats struct {
	Rooms       int `json:"rooms"`
	Connections int `json:"connections"`
	General     int `json:"general"`
	Subscribers int `json:"subscribers"`
}

// Registry owns the room store, the general pool and the membership tag of
// every admitted peer.
type Registry struct {
	rooms      *room.Store
	general    *pool.Pool
	membership map[pool.Peer]Membership
	logger     *slog.Logger
}

// NewRegistry returns an empty registry.
func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		rooms:      room.NewStore(),
		general:    pool.New("general"),
		membership: make(map[pool.Peer]Membership),
		logger:     logger,
	}
}

// Rooms returns the room store.
func (r *Registry) Rooms() *room.Store {
	return r.rooms
}

// General returns the general pool.
func (r *Registry) General() *pool.Pool {
	return r.general
}

// Membership returns the pool assignment of p.
func (r *Registry) Membership(p pool.Peer) (Membership, bool) {
	m, ok := r.membership[p]
	return m, ok
}

// Len returns the number of admitted peers.
func (r *Registry) Len() int {
	return len(r.membership)
}

// Admit places a new peer in the general pool. Admitting a peer twice is
// ignored and reported as false.
func (r *Registry) Admit(p pool.Peer) bool {
	if m, ok := r.membership[p]; ok {
		r.logger.Warn("peer admitted twice", "conn", p.ID(), "pool", m.String())
		return false
	}
	r.general.Add(p)
	r.membership[p] = Membership{Kind: General}
	return true
}

// Bind moves p into the subscriber pool of the named room and returns the
// room. A peer in the general pool leaves it; a peer already subscribed to
// another room is removed from that room's pool first, so it is never held
// by two pools. Binding to the current room changes nothing.
func (r *Registry) Bind(p pool.Peer, name string) (*room.Room, error) {
	m, ok := r.membership[p]
	if !ok {
		return nil, fmt.Errorf("bind %s to room %q: %w", p.ID(), name, ErrUnknownPeer)
	}

	target := r.rooms.Get(name)

	switch m.Kind {
	case General:
		r.general.Remove(p)
	case Subscriber:
		if m.Room == name {
			return target, nil
		}
		if prev, ok := r.rooms.Lookup(m.Room); ok {
			prev.Subscribers().Remove(p)
		}
		r.logger.Info("subscriber moved between rooms", "conn", p.ID(), "from", m.Room, "to", name)
	}

	target.Subscribers().Add(p)
	r.membership[p] = Membership{Kind: Subscriber, Room: name}
	return target, nil
}

// Release removes p from whichever pool holds it and reports the pool it
// was found in. A peer that no pool holds is a bookkeeping anomaly: it is
// logged and otherwise ignored.
func (r *Registry) Release(p pool.Peer) (Membership, bool) {
	m, tracked := r.membership[p]
	delete(r.membership, p)

	if tracked && r.removeFrom(p, m) {
		return m, true
	}

	// The tag is missing or stale. Fall back to the slow path: general pool
	// first, then every room's subscribers.
	if found, ok := r.scan(p); ok {
		r.logger.Warn("peer membership out of sync with pools",
			"conn", p.ID(), "tagged", m.String(), "found", found.String())
		return found, true
	}

	r.logger.Warn("peer to release not found in any pool", "conn", p.ID())
	return Membership{}, false
}

// Stats counts rooms, admitted peers and pool sizes.
func (r *Registry) Stats() Stats {
	s := Stats{
		Rooms:       r.rooms.Len(),
		Connections: len(r.membership),
		General:     r.general.Len(),
	}
	r.rooms.Each(func(rm *room.Room) bool {
		s.Subscribers += rm.Subscribers().Len()
		return true
	})
	return s
}

func (r *Registry) removeFrom(p pool.Peer, m Membership) bool {
	switch m.Kind {
	case General:
		return r.general.Remove(p)
	case Subscriber:
		rm, ok := r.rooms.Lookup(m.Room)
		return ok && rm.Subscribers().Remove(p)
	default:
		return false
	}
}

func (r *Registry) scan(p pool.Peer) (Membership, bool) {
	if r.general.Remove(p) {
		return Membership{Kind: General}, true
	}

	var found Membership
	ok := false
	r.rooms.Each(func(rm *room.Room) bool {
		if rm.Subscribers().Remove(p) {
			found = Membership{Kind: Subscriber, Room: rm.Name()}
			ok = true
			return false
		}
		return true
	})
	return found, ok
}
