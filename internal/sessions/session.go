package sessions

import "errors"

// State is the lifecycle of one connection: Disconnected -> Connected -> Joined(doc) -> Disconnected.
type State int

const (
	Disconnected State = iota
	Connected
	Joined
)

func (s State) String() string {
	switch s {
	case Connected:
		return "connected"
	case Joined:
		return "joined"
	}
	return "disconnected"
}

var (
	// ErrNotConnected is returned when a membership operation names a connection
	// that was never registered or has already been disconnected.
	ErrNotConnected = errors.New("connection is not connected")
	// ErrEmptyDocumentID rejects joins without a document id.
	ErrEmptyDocumentID = errors.New("document id is required")
)

// TransitionKind tells peers whether a collaborator arrived or went away.
type TransitionKind string

const (
	KindJoined TransitionKind = "joined"
	KindLeft   TransitionKind = "left"
)

// Transition is one membership change in a room. Peers are the members that
// should be notified: everyone in the room except ConnectionID.
type Transition struct {
	DocumentID   string
	ConnectionID string
	Kind         TransitionKind
	Peers        []string
	// Count is the room size after the transition.
	Count int
}

// JoinResult describes what a Join changed.
type JoinResult struct {
	DocumentID string
	// Changed is false when the connection was already in DocumentID.
	Changed bool
	// Left is set when joining replaced membership in another room.
	Left *Transition
	// Joined is set whenever Changed is true.
	Joined *Transition
}
