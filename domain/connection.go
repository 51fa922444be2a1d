package domain

import "sync"

// Connection represents one authenticated live session. A user may hold
// several connections concurrently (one per tab), each joining rooms
// independently.
//
// joinedRooms is owned exclusively by this connection. Mutations are
// serialized per connection so that a misbehaving client emitting
// concurrent join/send frames cannot corrupt the set; unrelated
// connections never contend on the same mutex.
type Connection struct {
	ID       string
	Identity Identity

	mu          sync.Mutex
	joinedRooms map[ConversationID]struct{}
}

func NewConnection(id string, identity Identity) *Connection {
	return &Connection{
		ID:          id,
		Identity:    identity,
		joinedRooms: make(map[ConversationID]struct{}),
	}
}

func (c *Connection) Join(room ConversationID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.joinedRooms[room] = struct{}{}
}

func (c *Connection) HasJoined(room ConversationID) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.joinedRooms[room]
	return ok
}

// Rooms returns a snapshot of the joined conversation ids.
func (c *Connection) Rooms() []ConversationID {
	c.mu.Lock()
	defer c.mu.Unlock()
	rooms := make([]ConversationID, 0, len(c.joinedRooms))
	for id := range c.joinedRooms {
		rooms = append(rooms, id)
	}
	return rooms
}
