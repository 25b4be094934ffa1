package realtime

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Event names on the persistent channel.
const (
	// client -> server
	EventJoinDocument = "join-document"
	EventSendChanges  = "send-changes"
	EventSaveDocument = "save-document"

	// server -> client
	EventLoadDocument   = "load-document"
	EventReceiveChanges = "receive-changes"
	EventUserJoined     = "user-joined"
	EventUserLeft       = "user-left"
	EventPresenceCount  = "presence-count"
	EventDocumentSaved  = "document-saved"
	EventError          = "error"
)

// ErrTransportClosed is reported when a frame cannot be delivered because the
// connection is gone. It triggers cleanup and is never shown to users.
var ErrTransportClosed = errors.New("transport closed")

// Message is the JSON envelope of every frame: {"event": "...", "data": ...}.
// Edit payloads carry the whole buffer, not a delta.
type Message struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// SavePayload is the data of a save-document frame. An empty DocumentID means
// the sender's current room.
type SavePayload struct {
	DocumentID string `json:"documentId"`
	Content    string `json:"content"`
}

type SavedPayload struct {
	DocumentID string    `json:"documentId"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

type PresencePayload struct {
	DocumentID string `json:"documentId"`
	Count      int    `json:"count"`
}

type ErrorPayload struct {
	Event   string `json:"event,omitempty"`
	Message string `json:"message"`
}

// NewMessage builds an envelope; data may be nil for signal-only events.
func NewMessage(event string, data interface{}) (Message, error) {
	m := Message{Event: event}
	if data == nil {
		return m, nil
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return Message{}, fmt.Errorf("encode %s: %w", event, err)
	}
	m.Data = raw
	return m, nil
}

// Encode builds an envelope and serializes it into a frame.
func Encode(event string, data interface{}) ([]byte, error) {
	m, err := NewMessage(event, data)
	if err != nil {
		return nil, err
	}
	return json.Marshal(m)
}

func Decode(frame []byte) (Message, error) {
	var m Message
	if err := json.Unmarshal(frame, &m); err != nil {
		return Message{}, fmt.Errorf("decode frame: %w", err)
	}
	if m.Event == "" {
		return Message{}, errors.New("decode frame: missing event")
	}
	return m, nil
}

// Bind unmarshals the data of m into v.
func (m Message) Bind(v interface{}) error {
	if len(m.Data) == 0 {
		return fmt.Errorf("%s: missing data", m.Event)
	}
	if err := json.Unmarshal(m.Data, v); err != nil {
		return fmt.Errorf("%s: %w", m.Event, err)
	}
	return nil
}

// Text unmarshals a string payload (document id or content).
func (m Message) Text() (string, error) {
	var s string
	err := m.Bind(&s)
	return s, err
}
