// Package room tracks which connections belong to which battle room and
// sub-audience within one server process.
package room

import "sync"

// Audience selects a slice of a room's members.
type Audience string

const (
	// AudienceAll is every member of the room.
	AudienceAll Audience = "all"
	// AudienceAgents is the agents-only sub-audience.
	AudienceAgents Audience = "agents"
	// AudienceSpectators is the spectators-only sub-audience.
	AudienceSpectators Audience = "spectators"
)

// Key returns the wire name for a room id plus audience, following the
// battle:<id>[:<audience>] scheme.
func Key(roomID string, audience Audience) string {
	if audience == AudienceAll {
		return "battle:" + roomID
	}
	return "battle:" + roomID + ":" + string(audience)
}

// Member is a connection that can receive room events. Deliver must not
// block; a slow member is the member's own problem, never the room's.
type Member interface {
	ID() string
	Deliver(event string, payload any) error
}

// Registry is the process-local membership table. The outer lock guards the
// room map only; each room carries its own lock so unrelated rooms never
// serialize on one another.
type Registry struct {
	mu    sync.RWMutex
	rooms map[string]*roomState
}

type roomState struct {
	mu      sync.RWMutex
	members map[string]roomEntry // connection id -> entry
}

type roomEntry struct {
	member   Member
	audience Audience // AudienceAgents or AudienceSpectators
}

func NewRegistry() *Registry {
	return &Registry{rooms: make(map[string]*roomState)}
}

// Join adds m to roomID under the given sub-audience. It is idempotent:
// joining a room the member already belongs to changes nothing and returns
// false. Returns true only when a new membership was created.
func (r *Registry) Join(m Member, roomID string, audience Audience) bool {
	if audience == AudienceAll {
		audience = AudienceSpectators
	}

	r.mu.Lock()
	rs, ok := r.rooms[roomID]
	if !ok {
		rs = &roomState{members: make(map[string]roomEntry)}
		r.rooms[roomID] = rs
	}
	// Take the room lock before releasing the map lock. A concurrent
	// last-leave's prune would otherwise delete the room in between and
	// this membership would land in an orphaned roomState.
	rs.mu.Lock()
	r.mu.Unlock()
	defer rs.mu.Unlock()

	if _, exists := rs.members[m.ID()]; exists {
		return false
	}
	rs.members[m.ID()] = roomEntry{member: m, audience: audience}
	return true
}

// Leave removes m's membership in roomID. Returns true if a membership was
// actually removed; leaving a room the member never joined is a no-op.
func (r *Registry) Leave(m Member, roomID string) bool {
	r.mu.RLock()
	rs, ok := r.rooms[roomID]
	r.mu.RUnlock()
	if !ok {
		return false
	}

	rs.mu.Lock()
	_, exists := rs.members[m.ID()]
	if exists {
		delete(rs.members, m.ID())
	}
	empty := len(rs.members) == 0
	rs.mu.Unlock()

	if empty {
		r.prune(roomID)
	}
	return exists
}

// LeaveAll removes every membership held by m and returns the ids of the
// rooms it actually left. Each room's cleanup is independent.
func (r *Registry) LeaveAll(m Member) []string {
	r.mu.RLock()
	ids := make([]string, 0, len(r.rooms))
	for id := range r.rooms {
		ids = append(ids, id)
	}
	r.mu.RUnlock()

	var left []string
	for _, id := range ids {
		if r.Leave(m, id) {
			left = append(left, id)
		}
	}
	return left
}

// Members returns the members of roomID matching audience.
func (r *Registry) Members(roomID string, audience Audience) []Member {
	r.mu.RLock()
	rs, ok := r.rooms[roomID]
	r.mu.RUnlock()
	if !ok {
		return nil
	}

	rs.mu.RLock()
	defer rs.mu.RUnlock()

	out := make([]Member, 0, len(rs.members))
	for _, e := range rs.members {
		if audience == AudienceAll || e.audience == audience {
			out = append(out, e.member)
		}
	}
	return out
}

// Count returns how many members of roomID match audience.
func (r *Registry) Count(roomID string, audience Audience) int {
	return len(r.Members(roomID, audience))
}

// Contains reports whether m holds a membership in roomID.
func (r *Registry) Contains(m Member, roomID string) bool {
	r.mu.RLock()
	rs, ok := r.rooms[roomID]
	r.mu.RUnlock()
	if !ok {
		return false
	}

	rs.mu.RLock()
	defer rs.mu.RUnlock()
	_, exists := rs.members[m.ID()]
	return exists
}

// prune drops roomID if it is still empty. Rechecked under both locks since
// a join may have raced the final leave.
func (r *Registry) prune(roomID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rs, ok := r.rooms[roomID]
	if !ok {
		return
	}
	rs.mu.RLock()
	empty := len(rs.members) == 0
	rs.mu.RUnlock()
	if empty {
		delete(r.rooms, roomID)
	}
}
