package websocket

import (
	"sync"

	"barchat/internal/metrics"
)

// roomOrder serializes persist-then-broadcast sequences for one room so
// members observe messages in persistence order. Order locks are
// refcounted and keyed by room ID rather than stored on the room entry:
// a broadcast may still hold one after its room is collected, and a
// broadcast in a recreated room must contend on the same lock.
type roomOrder struct {
	mu   sync.Mutex
	refs int
}

// Registry is the in-memory authority mapping room IDs to their active
// connections. It is the only mutable state shared across connections;
// every mutation is atomic with respect to concurrent lifecycles.
type Registry struct {
	mu     sync.RWMutex
	rooms  map[string]map[*Client]struct{}
	orders map[string]*roomOrder
}

func NewRegistry() *Registry {
	return &Registry{
		rooms:  make(map[string]map[*Client]struct{}),
		orders: make(map[string]*roomOrder),
	}
}

// Register adds a connection to its room, creating the room entry on
// first use.
func (r *Registry) Register(roomID string, c *Client) {
	r.mu.Lock()
	members, ok := r.rooms[roomID]
	if !ok {
		members = make(map[*Client]struct{})
		r.rooms[roomID] = members
	}
	members[c] = struct{}{}
	rooms := len(r.rooms)
	r.mu.Unlock()

	metrics.ActiveConnections.Inc()
	metrics.ActiveRooms.Set(float64(rooms))
}

// Deregister removes a connection from its room and deletes the room
// entry once it is empty. Removing a connection that is not registered
// is a no-op, so double cleanup is harmless.
func (r *Registry) Deregister(roomID string, c *Client) {
	r.mu.Lock()
	members, ok := r.rooms[roomID]
	if !ok {
		r.mu.Unlock()
		return
	}
	if _, member := members[c]; !member {
		r.mu.Unlock()
		return
	}
	delete(members, c)
	if len(members) == 0 {
		delete(r.rooms, roomID)
	}
	rooms := len(r.rooms)
	r.mu.Unlock()

	metrics.ActiveConnections.Dec()
	metrics.ActiveRooms.Set(float64(rooms))
}

// MembersOf returns a snapshot of the room's connections. A peer
// joining or leaving after the snapshot either entirely misses or
// entirely receives any given broadcast.
func (r *Registry) MembersOf(roomID string) []*Client {
	r.mu.RLock()
	defer r.mu.RUnlock()

	entry, ok := r.rooms[roomID]
	if !ok {
		return nil
	}
	members := make([]*Client, 0, len(entry))
	for c := range entry {
		members = append(members, c)
	}
	return members
}

// LockRoom acquires the room's broadcast order lock. It returns false
// if the room has no members. The registry lock itself is released
// before the caller runs, so external calls made while ordered never
// block registration elsewhere. The order lock outlives room
// collection: holders of a collected room's lock still exclude
// broadcasts in its recreated successor.
func (r *Registry) LockRoom(roomID string) (unlock func(), ok bool) {
	r.mu.Lock()
	if _, ok := r.rooms[roomID]; !ok {
		r.mu.Unlock()
		return nil, false
	}
	order, ok := r.orders[roomID]
	if !ok {
		order = &roomOrder{}
		r.orders[roomID] = order
	}
	order.refs++
	r.mu.Unlock()

	order.mu.Lock()
	return func() {
		order.mu.Unlock()
		r.mu.Lock()
		order.refs--
		if order.refs == 0 {
			delete(r.orders, roomID)
		}
		r.mu.Unlock()
	}, true
}

// Connections reports the current total connection count.
func (r *Registry) Connections() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	n := 0
	for _, members := range r.rooms {
		n += len(members)
	}
	return n
}

// Shutdown closes every registered connection and clears all entries.
// In-memory membership is not durable; unsent broadcasts are dropped.
func (r *Registry) Shutdown() {
	r.mu.RLock()
	var all []*Client
	for _, members := range r.rooms {
		for c := range members {
			all = append(all, c)
		}
	}
	r.mu.RUnlock()

	for _, c := range all {
		c.Close()
	}
}
