package core

import (
	"sort"
	"sync"
	"time"
)

// DefaultRoom is where every connection lands after auth.
const DefaultRoom = "general"

// DefaultRooms exist from start and survive being empty.
var DefaultRooms = []string{"general", "random", "help"}

// RoomStats describes one room.
type RoomStats struct {
	Name         string    `json:"name"`
	CreatedAt    time.Time `json:"created_at"`
	MemberCount  int       `json:"member_count"`
	MessageCount uint64    `json:"message_count"`
}

// RoomSummary aggregates stats of every room.
type RoomSummary struct {
	TotalRooms   int         `json:"total_rooms"`
	TotalMembers int         `json:"total_members"`
	Rooms        []RoomStats `json:"rooms"`
}

type room struct {
	name      string
	createdAt time.Time
	members   map[string]struct{}
	messages  uint64
}

// RoomRegistry owns rooms and the membership relation in both directions.
// members (room -> ids) and joined (id -> rooms) change together under mu.
type RoomRegistry struct {
	mu       sync.RWMutex
	rooms    map[string]*room
	joined   map[string]map[string]struct{}
	defaults map[string]struct{}
	now      func() time.Time
}

// NewRoomRegistry creates a registry holding the default rooms.
func NewRoomRegistry() *RoomRegistry {
	r := &RoomRegistry{
		rooms:    make(map[string]*room),
		joined:   make(map[string]map[string]struct{}),
		defaults: make(map[string]struct{}, len(DefaultRooms)),
		now:      time.Now,
	}
	for _, name := range DefaultRooms {
		r.defaults[name] = struct{}{}
		r.rooms[name] = r.newRoom(name)
	}
	return r
}

func (r *RoomRegistry) newRoom(name string) *room {
	return &room{
		name:      name,
		createdAt: r.now(),
		members:   make(map[string]struct{}),
	}
}

// IsDefault reports whether name is exempt from empty-room deletion.
func (r *RoomRegistry) IsDefault(name string) bool {
	_, ok := r.defaults[name]
	return ok
}

// Join adds id to the room, creating it if needed. Returns false if id was
// already a member.
func (r *RoomRegistry) Join(id, name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	rm, ok := r.rooms[name]
	if !ok {
		rm = r.newRoom(name)
		r.rooms[name] = rm
	}
	if _, member := rm.members[id]; member {
		return false
	}
	rm.members[id] = struct{}{}

	set, ok := r.joined[id]
	if !ok {
		set = make(map[string]struct{})
		r.joined[id] = set
	}
	set[name] = struct{}{}
	return true
}

// Leave removes id from the room. Returns false if id was not a member.
func (r *RoomRegistry) Leave(id, name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.leaveLocked(id, name)
}

func (r *RoomRegistry) leaveLocked(id, name string) bool {
	removed := false
	if rm, ok := r.rooms[name]; ok {
		if _, member := rm.members[id]; member {
			delete(rm.members, id)
			removed = true
		}
		if len(rm.members) == 0 && !r.IsDefault(name) {
			delete(r.rooms, name)
		}
	}
	if set, ok := r.joined[id]; ok {
		delete(set, name)
		if len(set) == 0 {
			delete(r.joined, id)
		}
	}
	return removed
}

// LeaveAll removes id from every room and drops its bookkeeping. It returns
// the rooms that were left, sorted.
func (r *RoomRegistry) LeaveAll(id string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	left := sortedKeys(r.joined[id])
	for _, name := range left {
		r.leaveLocked(id, name)
	}
	delete(r.joined, id)
	return left
}

// Members returns a snapshot of the room's member identities, sorted. An
// absent room has no members.
func (r *RoomRegistry) Members(name string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rm, ok := r.rooms[name]
	if !ok {
		return []string{}
	}
	return sortedKeys(rm.members)
}

// RoomsOf returns the rooms id has joined, sorted.
func (r *RoomRegistry) RoomsOf(id string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return sortedKeys(r.joined[id])
}

// Exists reports whether the room is present.
func (r *RoomRegistry) Exists(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	_, ok := r.rooms[name]
	return ok
}

// IsMember reports whether id belongs to the room.
func (r *RoomRegistry) IsMember(id, name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	_, ok := r.joined[id][name]
	return ok
}

// List returns all room names, sorted.
func (r *RoomRegistry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.rooms))
	for name := range r.rooms {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Count returns the number of rooms.
func (r *RoomRegistry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.rooms)
}

// TotalMemberships sums member counts across rooms; a connection counts once
// per room it belongs to.
func (r *RoomRegistry) TotalMemberships() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.totalMembershipsLocked()
}

func (r *RoomRegistry) totalMembershipsLocked() int {
	total := 0
	for _, rm := range r.rooms {
		total += len(rm.members)
	}
	return total
}

// IncrementMessageCount bumps the room's message counter if the room exists.
func (r *RoomRegistry) IncrementMessageCount(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if rm, ok := r.rooms[name]; ok {
		rm.messages++
	}
}

// Stats returns stats for one room.
func (r *RoomRegistry) Stats(name string) (RoomStats, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rm, ok := r.rooms[name]
	if !ok {
		return RoomStats{}, false
	}
	return rm.stats(), true
}

// AllStats returns a summary over every room, sorted by name.
func (r *RoomRegistry) AllStats() RoomSummary {
	r.mu.RLock()
	defer r.mu.RUnlock()

	summary := RoomSummary{
		TotalRooms:   len(r.rooms),
		TotalMembers: r.totalMembershipsLocked(),
		Rooms:        make([]RoomStats, 0, len(r.rooms)),
	}
	for _, rm := range r.rooms {
		summary.Rooms = append(summary.Rooms, rm.stats())
	}
	sort.Slice(summary.Rooms, func(i, j int) bool {
		return summary.Rooms[i].Name < summary.Rooms[j].Name
	})
	return summary
}

// Sweep deletes every empty non-default room and returns how many went.
func (r *RoomRegistry) Sweep() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	deleted := 0
	for name, rm := range r.rooms {
		if len(rm.members) == 0 && !r.IsDefault(name) {
			delete(r.rooms, name)
			deleted++
		}
	}
	return deleted
}

func (rm *room) stats() RoomStats {
	return RoomStats{
		Name:         rm.name,
		CreatedAt:    rm.createdAt,
		MemberCount:  len(rm.members),
		MessageCount: rm.messages,
	}
}

func sortedKeys(set map[string]struct{}) []string {
	keys := make([]string, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
