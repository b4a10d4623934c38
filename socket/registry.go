package socket

import (
	"context"
	"sync"

	"noteszone/pkg/logger"

	"go.uber.org/zap"
)

// Member is a connection that can be placed in a room.
type Member interface {
	// Deliver queues msg without blocking and reports whether it was accepted.
	Deliver(msg []byte) bool
	UserID() string
}

// Registry maps note ids to the members subscribed to them.
type Registry interface {
	Join(room string, m Member)
	Leave(room string, m Member)
	// LeaveAll removes m from every room and returns the rooms it was in.
	LeaveAll(m Member) []string
	Broadcast(ctx context.Context, room string, msg []byte) error
	// Evict removes the members of userID from room, or every member when userID is empty.
	Evict(ctx context.Context, room, userID string) error
}

// LocalRegistry is a process-local Registry guarded by a mutex. Delivery
// happens under the read lock so a member that has left never receives again.
type LocalRegistry struct {
	mu     sync.RWMutex
	rooms  map[string]map[Member]struct{}
	joined map[Member]map[string]struct{}

	// OnFull is called when a member's buffer rejects a message. It logs a
	// warning unless replaced.
	OnFull func(room string, m Member)
}

func NewLocalRegistry() *LocalRegistry {
	return &LocalRegistry{
		rooms:  make(map[string]map[Member]struct{}),
		joined: make(map[Member]map[string]struct{}),
		OnFull: logFull,
	}
}

func logFull(room string, m Member) {
	logger.Log.Warn("send buffer is full, dropping frame",
		zap.String("note", room),
		zap.String("user", m.UserID()),
	)
}

func (r *LocalRegistry) Join(room string, m Member) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.rooms[room] == nil {
		r.rooms[room] = make(map[Member]struct{})
	}
	r.rooms[room][m] = struct{}{}
	if r.joined[m] == nil {
		r.joined[m] = make(map[string]struct{})
	}
	r.joined[m][room] = struct{}{}
}

func (r *LocalRegistry) Leave(room string, m Member) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.remove(room, m)
}

func (r *LocalRegistry) LeaveAll(m Member) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	rooms := make([]string, 0, len(r.joined[m]))
	for room := range r.joined[m] {
		rooms = append(rooms, room)
	}
	for _, room := range rooms {
		r.remove(room, m)
	}
	return rooms
}

func (r *LocalRegistry) Broadcast(_ context.Context, room string, msg []byte) error {
	r.Deliver(room, msg)
	return nil
}

// Deliver hands msg to every local member of room and returns the accepted count.
func (r *LocalRegistry) Deliver(room string, msg []byte) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	delivered := 0
	for m := range r.rooms[room] {
		if m.Deliver(msg) {
			delivered++
		} else if r.OnFull != nil {
			r.OnFull(room, m)
		}
	}
	return delivered
}

func (r *LocalRegistry) Evict(_ context.Context, room, userID string) error {
	r.EvictLocal(room, userID)
	return nil
}

func (r *LocalRegistry) EvictLocal(room, userID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for m := range r.rooms[room] {
		if userID == "" || m.UserID() == userID {
			r.remove(room, m)
		}
	}
}

// Size returns the number of members in room.
func (r *LocalRegistry) Size(room string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.rooms[room])
}

// Rooms returns the rooms m currently belongs to.
func (r *LocalRegistry) Rooms(m Member) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rooms := make([]string, 0, len(r.joined[m]))
	for room := range r.joined[m] {
		rooms = append(rooms, room)
	}
	return rooms
}

func (r *LocalRegistry) remove(room string, m Member) {
	if members, ok := r.rooms[room]; ok {
		delete(members, m)
		if len(members) == 0 {
			delete(r.rooms, room)
		}
	}
	if rooms, ok := r.joined[m]; ok {
		delete(rooms, room)
		if len(rooms) == 0 {
			delete(r.joined, m)
		}
	}
}
