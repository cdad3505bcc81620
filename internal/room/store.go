package room

import (
	"sort"

	"github.com/Tyrowin/roomrelay/internal/protocol"
)

// Store maps room names to rooms. Names are case-sensitive and used as-is.
type Store struct {
	rooms map[string]*Room
}

// NewStore returns an empty store.
func NewStore() *Store {
	return &Store{rooms: make(map[string]*Room)}
}

// Get returns the room registered under name, creating and registering an
// empty one on first reference. Repeated calls return the same *Room.
func (s *Store) Get(name string) *Room {
	if r, ok := s.rooms[name]; ok {
		return r
	}
	r := newRoom(name)
	s.rooms[name] = r
	return r
}

// Lookup returns the room registered under name without creating it.
func (s *Store) Lookup(name string) (*Room, bool) {
	r, ok := s.rooms[name]
	return r, ok
}

// Len returns the number of registered rooms.
func (s *Store) Len() int {
	return len(s.rooms)
}

// Clear empties participants and contents of every registered room.
func (s *Store) Clear() {
	for _, r := range s.rooms {
		r.reset()
	}
}

// Each calls fn for every room in name order until fn returns false.
func (s *Store) Each(fn func(*Room) bool) {
	for _, name := range s.names() {
		if !fn(s.rooms[name]) {
			return
		}
	}
}

// Snapshot projects every room for which keep returns true, in name order.
// A nil keep selects every room.
func (s *Store) Snapshot(keep func(*Room) bool) []protocol.RoomInfo {
	infos := make([]protocol.RoomInfo, 0, len(s.rooms))
	s.Each(func(r *Room) bool {
		if keep == nil || keep(r) {
			infos = append(infos, r.Info())
		}
		return true
	})
	return infos
}

// Visible is a Snapshot predicate selecting rooms marked visible.
func Visible(r *Room) bool {
	return r.Visible()
}

func (s *Store) names() []string {
	names := make([]string, 0, len(s.rooms))
	for name := range s.rooms {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
