package rooms

import "sync"

// Registry is the authoritative, process-local map from rooms to their
// members, together with the mirror index from connections back to rooms.
//
// The two indexes are mutated only inside the registry's single critical
// section, which keeps them exact mirror images: for every member {c} of
// room {r}, r appears in the session set of c, and vice versa. That mirror
// is what makes disconnect cleanup proportional to the connection's own
// room count rather than the global room count.
//
// Registry is safe for concurrent use.
type Registry struct {
	mu       sync.Mutex
	rooms    map[RoomKey]map[string]Member
	sessions map[string]map[RoomKey]struct{}
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		rooms:    make(map[RoomKey]map[string]Member),
		sessions: make(map[string]map[RoomKey]struct{}),
	}
}

// Join inserts or replaces the member's membership in room and returns a
// snapshot of the room's full roster. Joining a room the connection is
// already in is an idempotent overwrite, never a duplicate.
func (r *Registry) Join(room RoomKey, m Member) []Member {
	if m.Status == "" {
		m.Status = StatusOnline
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	members, ok := r.rooms[room]
	if !ok {
		members = make(map[string]Member)
		r.rooms[room] = members
	}
	members[m.ConnID] = m

	entry, ok := r.sessions[m.ConnID]
	if !ok {
		entry = make(map[RoomKey]struct{})
		r.sessions[m.ConnID] = entry
	}
	entry[room] = struct{}{}

	return snapshot(members)
}

// Leave removes the connection's membership in room. The removed member is
// returned; ok is false when the connection was not a member, which is a
// benign no-op rather than an error. When the last member leaves, the room
// entry itself is deleted.
func (r *Registry) Leave(room RoomKey, connID string) (Member, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.leaveLocked(room, connID)
}

func (r *Registry) leaveLocked(room RoomKey, connID string) (Member, bool) {
	members, ok := r.rooms[room]
	if !ok {
		return Member{}, false
	}
	m, ok := members[connID]
	if !ok {
		return Member{}, false
	}
	delete(members, connID)
	if len(members) == 0 {
		delete(r.rooms, room)
	}

	if entry, ok := r.sessions[connID]; ok {
		delete(entry, room)
		if len(entry) == 0 {
			delete(r.sessions, connID)
		}
	}
	return m, true
}

// Members returns a snapshot of the room's roster. The slice is owned by
// the caller; mutating it does not affect the registry.
func (r *Registry) Members(room RoomKey) []Member {
	r.mu.Lock()
	defer r.mu.Unlock()
	return snapshot(r.rooms[room])
}

// Member looks up a single membership, used by typing handlers to attach
// the sender's display name.
func (r *Registry) Member(room RoomKey, connID string) (Member, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.rooms[room][connID]
	return m, ok
}

// Sessions returns the rooms the connection currently belongs to.
func (r *Registry) Sessions(connID string) []RoomKey {
	r.mu.Lock()
	defer r.mu.Unlock()
	entry := r.sessions[connID]
	keys := make([]RoomKey, 0, len(entry))
	for room := range entry {
		keys = append(keys, room)
	}
	return keys
}

// Drained is one membership removed by Drain.
type Drained struct {
	Room   RoomKey
	Member Member
}

// Drain removes the connection from every room it belongs to and returns
// the removed memberships. Called exactly once at disconnect; a second
// call finds nothing and returns an empty slice.
func (r *Registry) Drain(connID string) []Drained {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry := r.sessions[connID]
	keys := make([]RoomKey, 0, len(entry))
	for room := range entry {
		keys = append(keys, room)
	}
	out := make([]Drained, 0, len(keys))
	for _, room := range keys {
		if m, ok := r.leaveLocked(room, connID); ok {
			out = append(out, Drained{Room: room, Member: m})
		}
	}
	return out
}

// RoomCount reports the number of live rooms, optionally filtered by kind.
func (r *Registry) RoomCount(kind Kind) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	if kind == "" {
		return len(r.rooms)
	}
	n := 0
	for room := range r.rooms {
		if room.Kind == kind {
			n++
		}
	}
	return n
}

func snapshot(members map[string]Member) []Member {
	out := make([]Member, 0, len(members))
	for _, m := range members {
		out = append(out, m)
	}
	return out
}
