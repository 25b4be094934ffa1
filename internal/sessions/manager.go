package sessions

import (
	"sort"
	"sync"
)

type connState struct {
	documentID string
}

// Manager maps connections to the single document they have joined and each
// document to its member set. It is ephemeral: losing it never affects content.
//
// Joining a second document leaves the first room before entering the new one.
type Manager struct {
	mu    sync.RWMutex
	conns map[string]*connState
	rooms map[string]map[string]struct{}
}

func NewManager() *Manager {
	return &Manager{
		conns: make(map[string]*connState),
		rooms: make(map[string]map[string]struct{}),
	}
}

// Connect registers a live connection. Calling it again for a known id is a no-op.
func (m *Manager) Connect(connID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.conns[connID]; !ok {
		m.conns[connID] = &connState{}
	}
}

// Join puts connID into the room for documentID. It is idempotent for the
// current room and replaces membership when connID is joined elsewhere.
func (m *Manager) Join(connID, documentID string) (JoinResult, error) {
	if documentID == "" {
		return JoinResult{}, ErrEmptyDocumentID
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	cs, ok := m.conns[connID]
	if !ok {
		return JoinResult{}, ErrNotConnected
	}
	res := JoinResult{DocumentID: documentID}
	if cs.documentID == documentID {
		return res, nil
	}
	if cs.documentID != "" {
		t := m.removeLocked(connID, cs)
		res.Left = &t
	}

	room, ok := m.rooms[documentID]
	if !ok {
		room = make(map[string]struct{})
		m.rooms[documentID] = room
	}
	peers := sortedKeys(room, "")
	room[connID] = struct{}{}
	cs.documentID = documentID

	res.Changed = true
	res.Joined = &Transition{
		DocumentID:   documentID,
		ConnectionID: connID,
		Kind:         KindJoined,
		Peers:        peers,
		Count:        len(room),
	}
	return res, nil
}

// Leave removes connID from its current room. ok is false when it was not joined.
func (m *Manager) Leave(connID string) (t Transition, ok bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cs, found := m.conns[connID]
	if !found || cs.documentID == "" {
		return Transition{}, false
	}
	return m.removeLocked(connID, cs), true
}

// OnDisconnect releases everything held by connID and forgets the connection.
// Only the first call for a connection has an effect; wasJoined reports whether
// a room was left as a result.
func (m *Manager) OnDisconnect(connID string) (t Transition, wasJoined bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cs, found := m.conns[connID]
	if !found {
		return Transition{}, false
	}
	delete(m.conns, connID)
	if cs.documentID == "" {
		return Transition{}, false
	}
	return m.removeLocked(connID, cs), true
}

func (m *Manager) removeLocked(connID string, cs *connState) Transition {
	docID := cs.documentID
	cs.documentID = ""
	room := m.rooms[docID]
	delete(room, connID)
	if len(room) == 0 {
		delete(m.rooms, docID)
	}
	return Transition{
		DocumentID:   docID,
		ConnectionID: connID,
		Kind:         KindLeft,
		Peers:        sortedKeys(room, ""),
		Count:        len(room),
	}
}

// MembersOf returns the connections joined to documentID, sorted.
func (m *Manager) MembersOf(documentID string) []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return sortedKeys(m.rooms[documentID], "")
}

// PeersOf returns the members of connID's current room other than connID.
// The bool is false when connID is not joined anywhere.
func (m *Manager) PeersOf(connID string) (documentID string, peers []string, ok bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	cs, found := m.conns[connID]
	if !found || cs.documentID == "" {
		return "", nil, false
	}
	return cs.documentID, sortedKeys(m.rooms[cs.documentID], connID), true
}

// RoomOf returns the document connID is joined to.
func (m *Manager) RoomOf(connID string) (string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	cs, found := m.conns[connID]
	if !found || cs.documentID == "" {
		return "", false
	}
	return cs.documentID, true
}

func (m *Manager) State(connID string) State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	cs, found := m.conns[connID]
	switch {
	case !found:
		return Disconnected
	case cs.documentID == "":
		return Connected
	}
	return Joined
}

// Count is the number of members in documentID's room.
func (m *Manager) Count(documentID string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.rooms[documentID])
}

// Snapshot returns the member count of every non-empty room.
func (m *Manager) Snapshot() map[string]int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string]int, len(m.rooms))
	for id, room := range m.rooms {
		out[id] = len(room)
	}
	return out
}

// Rooms is the number of non-empty rooms.
func (m *Manager) Rooms() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.rooms)
}

// Connections is the number of registered connections.
func (m *Manager) Connections() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.conns)
}

func sortedKeys(set map[string]struct{}, exclude string) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		if k != exclude {
			out = append(out, k)
		}
	}
	sort.Strings(out)
	return out
}
