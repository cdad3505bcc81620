// Package pool holds ordered sets of connected peers and fans frames out to
// them.
//
// A Pool is not safe for concurrent use. The relay confines every pool to
// the hub goroutine, so membership changes and fan-out never interleave.
package pool

import (
	"errors"
	"fmt"
	"slices"
)

var (
	// ErrSendBufferFull is returned by a Peer whose outbound queue cannot
	// take another frame.
	ErrSendBufferFull = errors.New("send buffer full")

	// ErrPeerClosed is returned by a Peer that no longer accepts frames.
	ErrPeerClosed = errors.New("peer closed")
)

// Peer is a connection that can receive frames. Identity is the interface
// value itself, so implementations should be pointer types.
type Peer interface {
	ID() string
	Send(frame []byte) error
}

// Pool is an ordered set of peers. Membership is checked by identity and a
// peer is never held twice.
type Pool struct {
	name    string
	members []Peer
}

// New returns an empty pool. The name only appears in logs and errors.
func New(name string) *Pool {
	return &Pool{name: name}
}

// Name returns the pool's name.
func (p *Pool) Name() string {
	return p.name
}

// Add appends peer to the pool. It reports false if the peer was already a
// member, in which case the pool is unchanged.
func (p *Pool) Add(peer Peer) bool {
	if p.indexOf(peer) >= 0 {
		return false
	}
	p.members = append(p.members, peer)
	return true
}

// Remove drops peer from the pool and reports whether it was a member.
func (p *Pool) Remove(peer Peer) bool {
	idx := p.indexOf(peer)
	if idx < 0 {
		return false
	}
	// slices.Delete clears the vacated tail slot.
	p.members = slices.Delete(p.members, idx, idx+1)
	return true
}

// Contains reports whether peer is a member.
func (p *Pool) Contains(peer Peer) bool {
	return p.indexOf(peer) >= 0
}

// Len returns the number of members.
func (p *Pool) Len() int {
	return len(p.members)
}

// Members returns a copy of the members in insertion order.
func (p *Pool) Members() []Peer {
	return append([]Peer(nil), p.members...)
}

// Broadcast sends frame to every member except the given peer, which may be
// nil. It returns the number of successful sends. A failed send never stops
// delivery to the remaining members; all failures are returned together as
// a *BroadcastError.
func (p *Pool) Broadcast(except Peer, frame []byte) (int, error) {
	return p.fanOut(except, frame)
}

// BroadcastAll sends frame to every member, without exclusion.
func (p *Pool) BroadcastAll(frame []byte) (int, error) {
	return p.fanOut(nil, frame)
}

// Unicast sends frame to a single peer. A failure is reported as a
// *BroadcastError so callers handle replies and fan-out the same way.
func Unicast(peer Peer, frame []byte) error {
	if err := peer.Send(frame); err != nil {
		return &BroadcastError{Pool: "unicast", Attempted: 1, Failures: []SendFailure{{Peer: peer, Err: err}}}
	}
	return nil
}

func (p *Pool) fanOut(except Peer, frame []byte) (int, error) {
	// Snapshot so a peer's Send cannot disturb the iteration.
	targets := p.Members()

	sent := 0
	var failures []SendFailure
	for _, peer := range targets {
		if except != nil && peer == except {
			continue
		}
		if err := peer.Send(frame); err != nil {
			failures = append(failures, SendFailure{Peer: peer, Err: err})
			continue
		}
		sent++
	}

	if len(failures) > 0 {
		return sent, &BroadcastError{Pool: p.name, Attempted: sent + len(failures), Failures: failures}
	}
	return sent, nil
}

func (p *Pool) indexOf(peer Peer) int {
	for i, member := range p.members {
		if member == peer {
			return i
		}
	}
	return -1
}

// SendFailure records one peer that did not accept a broadcast frame.
type SendFailure struct {
	Peer Peer
	Err  error
}

// BroadcastError aggregates the per-peer failures of one fan-out.
type BroadcastError struct {
	Pool      string
	Attempted int
	Failures  []SendFailure
}

func (e *BroadcastError) Error() string {
	return fmt.Sprintf("broadcast to %s: %d of %d sends failed: %v",
		e.Pool, len(e.Failures), e.Attempted, errors.Join(e.Unwrap()...))
}

// Unwrap exposes each failure so errors.Is can match the per-peer causes.
func (e *BroadcastError) Unwrap() []error {
	errs := make([]error, 0, len(e.Failures))
	for _, f := range e.Failures {
		errs = append(errs, fmt.Errorf("peer %s: %w", f.Peer.ID(), f.Err))
	}
	return errs
}

// Peers returns the peers whose send failed with an error matching target.
func (e *BroadcastError) Peers(target error) []Peer {
	var peers []Peer
	for _, f := range e.Failures {
		if errors.Is(f.Err, target) {
			peers = append(peers, f.Peer)
		}
	}
	return peers
}
