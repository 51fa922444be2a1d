package runtime

import (
	"sync"

	"deskchat/contract"
	"deskchat/domain"
	"deskchat/errors"
)

type Set map[string]struct{}

type session struct {
	conn *domain.Connection
	sink contract.EventSink
}

// Registry tracks live connections and the room reverse index. It is the
// only process-wide mutable structure of the messaging core; one instance
// is created at server start and injected into the gateway and the room
// workers.
type Registry struct {
	mu          sync.RWMutex
	sessions    map[string]session            // connection id -> live session
	roomMembers map[domain.ConversationID]Set // room -> connection ids
}

func NewRegistry() *Registry {
	return &Registry{
		sessions:    make(map[string]session),
		roomMembers: make(map[domain.ConversationID]Set),
	}
}

// Register records a freshly authenticated connection. A duplicate id is a
// transport misbehavior; it is rejected so an established session can never
// be hijacked by id reuse.
func (r *Registry) Register(conn *domain.Connection, sink contract.EventSink) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.sessions[conn.ID]; ok {
		return errors.ErrDuplicateConnection
	}
	r.sessions[conn.ID] = session{conn: conn, sink: sink}
	return nil
}

// Unregister removes the connection from the registry and from every room
// it had joined, and closes its sink so in-flight fan-out fails fast
// instead of blocking on a dead connection. Idempotent: unregistering an
// unknown id is a no-op, which covers double-disconnect races.
func (r *Registry) Unregister(connectionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[connectionID]
	if !ok {
		return
	}
	delete(r.sessions, connectionID)

	for _, roomID := range s.conn.Rooms() {
		members, ok := r.roomMembers[roomID]
		if !ok {
			continue
		}
		delete(members, connectionID)

		// If no one is left in the room, remove the room entry entirely
		if len(members) == 0 {
			delete(r.roomMembers, roomID)
		}
	}

	s.sink.Close()
}

func (r *Registry) Get(connectionID string) (*domain.Connection, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[connectionID]
	if !ok {
		return nil, false
	}
	return s.conn, true
}

// Subscribe adds a registered connection to a room's member set. Rooms are
// not created or destroyed explicitly; the entry appears with the first
// subscriber and vanishes with the last one. Membership authorization
// happens upstream, before this call.
func (r *Registry) Subscribe(connectionID string, roomID domain.ConversationID) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.sessions[connectionID]; !ok {
		return
	}
	if _, ok := r.roomMembers[roomID]; !ok {
		r.roomMembers[roomID] = make(Set)
	}
	r.roomMembers[roomID][connectionID] = struct{}{}
}

// SinksForRoom retrieves all active delivery channels for a room.
// It performs a two-step lookup:
//  1. Identifies connection ids associated with the room via roomMembers.
//  2. Resolves those ids into actual EventSinks using the sessions map.
//
// Only currently-joined, currently-live connections are returned, so a
// connection closed between subscribe and fan-out is simply absent.
func (r *Registry) SinksForRoom(roomID domain.ConversationID) []contract.EventSink {
	r.mu.RLock()
	defer r.mu.RUnlock()

	members, ok := r.roomMembers[roomID]
	if !ok {
		return nil
	}
	var activeSinks []contract.EventSink
	for connectionID := range members {
		if s, exists := r.sessions[connectionID]; exists {
			activeSinks = append(activeSinks, s.sink)
		}
	}
	return activeSinks
}
