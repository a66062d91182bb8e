package chat

import (
	"sort"
	"sync"
)

// Session is the live state of one connected identity.
type Session struct {
	ConnID      string
	Name        string
	Theme       string
	CurrentRoom string
}

// SessionRegistry tracks active sessions by connection id and by display
// name, and maintains a derived room index so fan-out targets can be
// computed from current room membership at delivery time.
type SessionRegistry struct {
	mu     sync.RWMutex
	byConn map[string]*Session
	byName map[string]string
	byRoom map[string]map[string]struct{}
}

func NewSessionRegistry() *SessionRegistry {
	return &SessionRegistry{
		byConn: make(map[string]*Session),
		byName: make(map[string]string),
		byRoom: make(map[string]map[string]struct{}),
	}
}

// Register creates a session for connID placed in defaultRoom. It fails
// with ErrNameTaken when name already belongs to an active session; the
// existing session is left untouched.
func (sr *SessionRegistry) Register(connID, name, theme, defaultRoom string) (Session, error) {
	sr.mu.Lock()
	defer sr.mu.Unlock()

	if _, taken := sr.byName[name]; taken {
		return Session{}, ErrNameTaken
	}

	sess := &Session{ConnID: connID, Name: name, Theme: theme, CurrentRoom: defaultRoom}
	sr.byConn[connID] = sess
	sr.byName[name] = connID
	sr.joinRoomLocked(connID, defaultRoom)
	return *sess, nil
}

// LookupByConnection returns the session for connID.
func (sr *SessionRegistry) LookupByConnection(connID string) (Session, bool) {
	sr.mu.RLock()
	defer sr.mu.RUnlock()

	sess, ok := sr.byConn[connID]
	if !ok {
		return Session{}, false
	}
	return *sess, true
}

// LookupByName returns the connection id for an online display name.
func (sr *SessionRegistry) LookupByName(name string) (string, bool) {
	sr.mu.RLock()
	defer sr.mu.RUnlock()

	connID, ok := sr.byName[name]
	return connID, ok
}

// SetCurrentRoom moves the session to roomID, updating the room index in the
// same critical section so the connection is never grouped under two rooms
// at once. No-op if the session is already there or does not exist.
func (sr *SessionRegistry) SetCurrentRoom(connID, roomID string) {
	sr.mu.Lock()
	defer sr.mu.Unlock()

	sess, ok := sr.byConn[connID]
	if !ok || sess.CurrentRoom == roomID {
		return
	}
	sr.leaveRoomLocked(connID, sess.CurrentRoom)
	sess.CurrentRoom = roomID
	sr.joinRoomLocked(connID, roomID)
}

// Remove destroys the session for connID and returns it for use in leave
// notifications. Returns false for unknown connections.
func (sr *SessionRegistry) Remove(connID string) (Session, bool) {
	sr.mu.Lock()
	defer sr.mu.Unlock()

	sess, ok := sr.byConn[connID]
	if !ok {
		return Session{}, false
	}
	delete(sr.byConn, connID)
	delete(sr.byName, sess.Name)
	sr.leaveRoomLocked(connID, sess.CurrentRoom)
	return *sess, true
}

// Connections returns the ids of all connections currently in roomID.
func (sr *SessionRegistry) Connections(roomID string) []string {
	sr.mu.RLock()
	defer sr.mu.RUnlock()

	conns := make([]string, 0, len(sr.byRoom[roomID]))
	for connID := range sr.byRoom[roomID] {
		conns = append(conns, connID)
	}
	sort.Strings(conns)
	return conns
}

// ParticipantsIn returns the display names of sessions currently in roomID.
func (sr *SessionRegistry) ParticipantsIn(roomID string) []string {
	sr.mu.RLock()
	defer sr.mu.RUnlock()

	names := make([]string, 0, len(sr.byRoom[roomID]))
	for connID := range sr.byRoom[roomID] {
		if sess, ok := sr.byConn[connID]; ok {
			names = append(names, sess.Name)
		}
	}
	sort.Strings(names)
	return names
}

// OnlineNames returns all online display names in sorted order.
func (sr *SessionRegistry) OnlineNames() []string {
	sr.mu.RLock()
	defer sr.mu.RUnlock()

	names := make([]string, 0, len(sr.byName))
	for name := range sr.byName {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (sr *SessionRegistry) joinRoomLocked(connID, roomID string) {
	if sr.byRoom[roomID] == nil {
		sr.byRoom[roomID] = make(map[string]struct{})
	}
	sr.byRoom[roomID][connID] = struct{}{}
}

func (sr *SessionRegistry) leaveRoomLocked(connID, roomID string) {
	if conns := sr.byRoom[roomID]; conns != nil {
		delete(conns, connID)
		if len(conns) == 0 {
			delete(sr.byRoom, roomID)
		}
	}
}
