// Package room implements the in-memory room registry shared by every
// relay connection.
//
// Rooms are created on first reference and live until the process exits.
// Neither Room nor Store is safe for concurrent use; callers confine them
// to a single goroutine.
package room

import (
	"sort"

	"github.com/Tyrowin/roomrelay/internal/pool"
	"github.com/Tyrowin/roomrelay/internal/protocol"
)

// Room is a named bucket of participants, contents and properties, plus the
// pool of connections subscribed to its properties.
type Room struct {
	name         string
	participants map[string]string
	contents     map[string]string
	properties   map[string]string
	visible      bool
	subscribers  *pool.Pool
}

func newRoom(name string) *Room {
	return &Room{
		name:         name,
		participants: make(map[string]string),
		contents:     make(map[string]string),
		properties:   make(map[string]string),
		subscribers:  pool.New("room:" + name),
	}
}

// Name returns the room's name exactly as it was first referenced.
func (r *Room) Name() string {
	return r.name
}

// SetParticipant stores value for participant id, replacing any previous value.
func (r *Room) SetParticipant(id, value string) {
	r.participants[id] = value
}

// Participant returns the value stored for participant id.
func (r *Room) Participant(id string) (string, bool) {
	v, ok := r.participants[id]
	return v, ok
}

// SetContent stores value for content id, replacing any previous value.
func (r *Room) SetContent(id, value string) {
	r.contents[id] = value
}

// Content returns the value stored for content id.
func (r *Room) Content(id string) (string, bool) {
	v, ok := r.contents[id]
	return v, ok
}

// RemoveParticipant deletes id from both participants and contents.
// Removing an unknown id is a no-op.
func (r *Room) RemoveParticipant(id string) {
	delete(r.participants, id)
	delete(r.contents, id)
}

// SetProperty stores a room property.
func (r *Room) SetProperty(key, value string) {
	r.properties[key] = value
}

// Property returns the value of a room property.
func (r *Room) Property(key string) (string, bool) {
	v, ok := r.properties[key]
	return v, ok
}

// Properties returns every property as key/value pairs ordered by key.
func (r *Room) Properties() []protocol.Property {
	props := make([]protocol.Property, 0, len(r.properties))
	for _, key := range sortedKeys(r.properties) {
		props = append(props, protocol.Property{Key: key, Value: r.properties[key]})
	}
	return props
}

// Visible reports whether the room is included in REQUEST snapshots.
func (r *Room) Visible() bool {
	return r.visible
}

// Show marks the room as visible.
func (r *Room) Show() {
	r.visible = true
}

// Subscribers returns the pool of connections bound to this room.
func (r *Room) Subscribers() *pool.Pool {
	return r.subscribers
}

// Info projects the room's participants and contents for a snapshot.
func (r *Room) Info() protocol.RoomInfo {
	return protocol.RoomInfo{
		Room:         r.name,
		Participants: entries(r.participants),
		Contents:     entries(r.contents),
	}
}

// reset empties the volatile state. Properties, visibility and subscribers
// survive.
func (r *Room) reset() {
	clear(r.participants)
	clear(r.contents)
}

func entries(m map[string]string) []protocol.Entry {
	out := make([]protocol.Entry, 0, len(m))
	for _, id := range sortedKeys(m) {
		out = append(out, protocol.Entry{ID: id, Value: m[id]})
	}
	return out
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
