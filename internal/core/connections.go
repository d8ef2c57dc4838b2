package core

import (
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/vovakirdan/wirechat-relay/internal/utils"
)

// Connection is a live, authenticated client as seen by the registry.
type Connection struct {
	ID           string
	Name         string
	Handle       Handle
	ConnectedAt  time.Time
	LastActivity time.Time
}

// ConnectionStats summarizes registry activity since start.
type ConnectionStats struct {
	Online              int    `json:"online_clients"`
	TotalConnections    uint64 `json:"total_connections"`
	TotalDisconnections uint64 `json:"total_disconnections"`
}

// ConnectionRegistry owns live connections and guarantees unique identities and names.
type ConnectionRegistry struct {
	mu     sync.RWMutex
	byID   map[string]*Connection
	byName map[string]string

	totalConnections    uint64
	totalDisconnections uint64

	newID func() string
	now   func() time.Time
}

// NewConnectionRegistry creates an empty registry.
func NewConnectionRegistry() *ConnectionRegistry {
	return &ConnectionRegistry{
		byID:   make(map[string]*Connection),
		byName: make(map[string]string),
		newID:  utils.NewID,
		now:    time.Now,
	}
}

// Register adds a connection under a fresh identity. A taken name gets the
// first free numeric suffix (name_1, name_2, ...). The returned copy carries
// the assigned identity and name.
func (r *ConnectionRegistry) Register(h Handle, requestedName string) Connection {
	r.mu.Lock()
	defer r.mu.Unlock()

	id := r.newID()
	for r.byID[id] != nil {
		id = r.newID()
	}

	name := requestedName
	for n := 1; ; n++ {
		if _, taken := r.byName[name]; !taken {
			break
		}
		name = requestedName + "_" + strconv.Itoa(n)
	}

	now := r.now()
	conn := &Connection{
		ID:           id,
		Name:         name,
		Handle:       h,
		ConnectedAt:  now,
		LastActivity: now,
	}
	r.byID[id] = conn
	r.byName[name] = id
	r.totalConnections++

	return *conn
}

// Unregister removes a connection and frees its name. Returns false if the
// identity was already gone.
func (r *ConnectionRegistry) Unregister(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	conn, ok := r.byID[id]
	if !ok {
		return false
	}
	delete(r.byID, id)
	if r.byName[conn.Name] == id {
		delete(r.byName, conn.Name)
	}
	r.totalDisconnections++
	return true
}

// Handle returns the transport handle of a live connection.
func (r *ConnectionRegistry) Handle(id string) (Handle, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	conn, ok := r.byID[id]
	if !ok {
		return nil, false
	}
	return conn.Handle, true
}

// Name returns the display name of id, or UnknownName.
func (r *ConnectionRegistry) Name(id string) string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if conn, ok := r.byID[id]; ok {
		return conn.Name
	}
	return UnknownName
}

// Lookup returns a copy of the connection entry.
func (r *ConnectionRegistry) Lookup(id string) (Connection, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	conn, ok := r.byID[id]
	if !ok {
		return Connection{}, false
	}
	return *conn, true
}

// IDByName resolves a live display name to its identity.
func (r *ConnectionRegistry) IDByName(name string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, ok := r.byName[name]
	return id, ok
}

// Touch refreshes the last-activity time. Unknown identities are ignored.
func (r *ConnectionRegistry) Touch(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if conn, ok := r.byID[id]; ok {
		conn.LastActivity = r.now()
	}
}

// Snapshot copies all entries.
func (r *ConnectionRegistry) Snapshot() map[string]Connection {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make(map[string]Connection, len(r.byID))
	for id, conn := range r.byID {
		out[id] = *conn
	}
	return out
}

// Count returns the number of live connections.
func (r *ConnectionRegistry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byID)
}

// Names returns all live display names, sorted.
func (r *ConnectionRegistry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.byName))
	for name := range r.byName {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// NameTaken reports whether a live connection uses name.
func (r *ConnectionRegistry) NameTaken(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	_, ok := r.byName[name]
	return ok
}

// Stats returns online and lifetime counters.
func (r *ConnectionRegistry) Stats() ConnectionStats {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return ConnectionStats{
		Online:              len(r.byID),
		TotalConnections:    r.totalConnections,
		TotalDisconnections: r.totalDisconnections,
	}
}
