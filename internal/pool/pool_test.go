package pool

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockPeer struct {
	id       string
	received [][]byte
	sendErr  error
}

func (m *mockPeer) ID() string { return m.id }

func (m *mockPeer) Send(frame []byte) error {
	if m.sendErr != nil {
		return m.sendErr
	}
	m.received = append(m.received, frame)
	return nil
}

func TestPool_AddRemove(t *testing.T) {
	p := New("general")
	a := &mockPeer{id: "a"}
	b := &mockPeer{id: "b"}

	assert.True(t, p.Add(a))
	assert.True(t, p.Add(b))
	assert.False(t, p.Add(a), "duplicate add must not grow the pool")
	assert.Equal(t, 2, p.Len())
	assert.Equal(t, []Peer{a, b}, p.Members())

	assert.True(t, p.Remove(a))
	assert.False(t, p.Remove(a), "second remove is a no-op")
	assert.False(t, p.Contains(a))
	assert.True(t, p.Contains(b))
	assert.Equal(t, 1, p.Len())
}

func TestPool_RemoveReleasesSlot(t *testing.T) {
	p := New("general")
	a := &mockPeer{id: "a"}
	b := &mockPeer{id: "b"}
	c := &mockPeer{id: "c"}
	p.Add(a)
	p.Add(b)
	p.Add(c)

	require.True(t, p.Remove(b))
	assert.Equal(t, []Peer{a, c}, p.Members())

	backing := p.members[:cap(p.members)]
	for _, peer := range backing[p.Len():] {
		assert.Nil(t, peer, "removed peer must not stay reachable past the pool length")
	}
}

func TestPool_IdentityNotID(t *testing.T) {
	p := New("general")
	a := &mockPeer{id: "same"}
	b := &mockPeer{id: "same"}

	require.True(t, p.Add(a))
	assert.False(t, p.Contains(b))
	assert.True(t, p.Add(b))
	assert.Equal(t, 2, p.Len())
}

func TestPool_Broadcast(t *testing.T) {
	tests := []struct {
		name         string
		all          bool
		wantReceived map[string]int
		wantSent     int
	}{
		{
			name:         "excludes sender",
			wantReceived: map[string]int{"sender": 0, "r1": 1, "r2": 1},
			wantSent:     2,
		},
		{
			name:         "all includes sender",
			all:          true,
			wantReceived: map[string]int{"sender": 1, "r1": 1, "r2": 1},
			wantSent:     3,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := New("room:A")
			sender := &mockPeer{id: "sender"}
			peers := []*mockPeer{sender, {id: "r1"}, {id: "r2"}}
			for _, peer := range peers {
				p.Add(peer)
			}

			var (
				sent int
				err  error
			)
			if tt.all {
				sent, err = p.BroadcastAll([]byte("frame"))
			} else {
				sent, err = p.Broadcast(sender, []byte("frame"))
			}

			require.NoError(t, err)
			assert.Equal(t, tt.wantSent, sent)
			for _, peer := range peers {
				assert.Len(t, peer.received, tt.wantReceived[peer.id], peer.id)
			}
		})
	}
}

func TestPool_BroadcastNilExcept(t *testing.T) {
	p := New("general")
	a := &mockPeer{id: "a"}
	p.Add(a)

	sent, err := p.Broadcast(nil, []byte("frame"))
	require.NoError(t, err)
	assert.Equal(t, 1, sent)
	assert.Equal(t, [][]byte{[]byte("frame")}, a.received)
}

func TestPool_BroadcastContinuesPastFailures(t *testing.T) {
	p := New("general")
	full := &mockPeer{id: "full", sendErr: ErrSendBufferFull}
	closed := &mockPeer{id: "closed", sendErr: ErrPeerClosed}
	ok1 := &mockPeer{id: "ok1"}
	ok2 := &mockPeer{id: "ok2"}
	for _, peer := range []*mockPeer{full, ok1, closed, ok2} {
		p.Add(peer)
	}

	sent, err := p.BroadcastAll([]byte("frame"))
	assert.Equal(t, 2, sent)
	assert.Len(t, ok1.received, 1)
	assert.Len(t, ok2.received, 1)

	var bErr *BroadcastError
	require.True(t, errors.As(err, &bErr))
	assert.Equal(t, "general", bErr.Pool)
	assert.Equal(t, 4, bErr.Attempted)
	assert.Len(t, bErr.Failures, 2)
	assert.ErrorIs(t, err, ErrSendBufferFull)
	assert.ErrorIs(t, err, ErrPeerClosed)
	assert.Equal(t, []Peer{full}, bErr.Peers(ErrSendBufferFull))
	assert.Contains(t, err.Error(), "2 of 4 sends failed")
}

func TestPool_EmptyBroadcast(t *testing.T) {
	p := New("empty")
	sent, err := p.Broadcast(&mockPeer{id: "nobody"}, []byte("frame"))
	require.NoError(t, err)
	assert.Zero(t, sent)
}

func TestUnicast(t *testing.T) {
	ok := &mockPeer{id: "ok"}
	require.NoError(t, Unicast(ok, []byte("reply")))
	assert.Equal(t, [][]byte{[]byte("reply")}, ok.received)

	full := &mockPeer{id: "full", sendErr: ErrSendBufferFull}
	err := Unicast(full, []byte("reply"))

	var bErr *BroadcastError
	require.True(t, errors.As(err, &bErr))
	assert.Equal(t, "unicast", bErr.Pool)
	assert.Equal(t, []Peer{full}, bErr.Peers(ErrSendBufferFull))
}
