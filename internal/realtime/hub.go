package realtime

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/gogotex/gogotex/backend/collab-service/internal/document"
	"github.com/gogotex/gogotex/backend/collab-service/internal/sessions"
	"github.com/gogotex/gogotex/backend/collab-service/pkg/logger"
	"github.com/gogotex/gogotex/backend/collab-service/pkg/metrics"
)

// Peer is one live connection as seen by the hub.
type Peer interface {
	ID() string
	// Send queues a frame without blocking. It returns false when the frame
	// cannot be queued (buffer full or connection closed).
	Send(frame []byte) bool
	Close()
}

// DocumentStore is the part of the persistence controller the hub needs.
type DocumentStore interface {
	Get(ctx context.Context, id string) (*document.Document, error)
	Autosave(ctx context.Context, id, content string) (*document.Document, error)
}

// Hub relays frames between the members of each document room. Edits are
// forwarded to every other member of the sender's room with no merge; the last
// frame a client receives wins at that client.
type Hub struct {
	rooms    *sessions.Manager
	docs     DocumentStore
	presence sessions.PresenceRepository

	mu    sync.RWMutex
	peers map[string]Peer

	// seq orders membership changes with the frames that report them, so a
	// joiner's presence-count and its peers' deltas reach every client in the
	// order the room actually changed.
	seq sync.Mutex
	// mirrorMu serializes presence writes; each write reads the current size.
	mirrorMu sync.Mutex
}

type HubOption func(*Hub)

// WithPresenceRepository mirrors room sizes into an external store.
func WithPresenceRepository(r sessions.PresenceRepository) HubOption {
	return func(h *Hub) { h.presence = r }
}

func NewHub(rooms *sessions.Manager, docs DocumentStore, opts ...HubOption) *Hub {
	h := &Hub{rooms: rooms, docs: docs, peers: make(map[string]Peer)}
	for _, o := range opts {
		o(h)
	}
	return h
}

// Register makes p reachable for relays. It must be called once before Handle.
func (h *Hub) Register(p Peer) {
	h.mu.Lock()
	h.peers[p.ID()] = p
	h.mu.Unlock()
	h.rooms.Connect(p.ID())
	metrics.ActiveConnections.Inc()
	logger.Debugf("connection registered: conn=%s", p.ID())
}

// Handle dispatches one client frame.
func (h *Hub) Handle(ctx context.Context, p Peer, msg Message) {
	var err error
	switch msg.Event {
	case EventJoinDocument:
		var docID string
		if docID, err = msg.Text(); err == nil {
			err = h.Join(ctx, p, docID)
		}
	case EventSendChanges:
		var content string
		if content, err = msg.Text(); err == nil {
			h.Edit(p, content)
		}
	case EventSaveDocument:
		var payload SavePayload
		if err = msg.Bind(&payload); err == nil {
			err = h.Save(ctx, p, payload)
		}
	default:
		err = errors.New("unknown event")
	}
	if err != nil {
		logger.Debugf("frame rejected: conn=%s event=%s err=%v", p.ID(), msg.Event, err)
		h.sendError(p, msg.Event, err)
	}
}

// Join moves p into documentID's room, tells the other members, and loads the
// last persisted snapshot for p only. A late joiner sees durable state, which
// may lag behind edits still in flight between other members.
func (h *Hub) Join(ctx context.Context, p Peer, documentID string) error {
	h.seq.Lock()
	res, err := h.rooms.Join(p.ID(), documentID)
	if err != nil {
		h.seq.Unlock()
		return err
	}
	var slow []Peer
	if res.Left != nil {
		slow = append(slow, h.announce(*res.Left)...)
	}
	count := h.rooms.Count(documentID)
	if res.Joined != nil {
		slow = append(slow, h.announce(*res.Joined)...)
		count = res.Joined.Count
	}
	slow = append(slow, h.sendTo(p, EventPresenceCount, PresencePayload{DocumentID: documentID, Count: count})...)
	h.seq.Unlock()

	if res.Left != nil {
		h.mirror(res.Left.DocumentID)
	}
	if res.Joined != nil {
		h.mirror(documentID)
		logger.Infof("joined: conn=%s doc=%s members=%d", p.ID(), documentID, count)
	}
	h.drop(slow)

	d, err := h.docs.Get(ctx, documentID)
	if err != nil {
		if errors.Is(err, document.ErrNotFound) {
			return err
		}
		logger.Warnf("snapshot load failed: conn=%s doc=%s err=%v", p.ID(), documentID, err)
		return document.ErrStoreUnavailable
	}
	h.drop(h.sendTo(p, EventLoadDocument, d.Content))
	return nil
}

// Edit relays content to every other member of p's room. Relaying to an empty
// set, or from a connection that has not joined, is a silent no-op.
func (h *Hub) Edit(p Peer, content string) {
	_, peers, ok := h.rooms.PeersOf(p.ID())
	if !ok || len(peers) == 0 {
		return
	}
	frame, err := Encode(EventReceiveChanges, content)
	if err != nil {
		logger.Errorf("encode edit: %v", err)
		return
	}
	h.drop(h.broadcast(peers, EventReceiveChanges, frame))
}

// Save persists content through the autosave path and acknowledges the sender.
func (h *Hub) Save(ctx context.Context, p Peer, payload SavePayload) error {
	docID := payload.DocumentID
	if docID == "" {
		room, ok := h.rooms.RoomOf(p.ID())
		if !ok {
			return errors.New("not joined to a document")
		}
		docID = room
	}
	d, err := h.docs.Autosave(ctx, docID, payload.Content)
	if err != nil {
		if errors.Is(err, document.ErrNotFound) {
			return document.ErrNotFound
		}
		return errors.New("save failed")
	}
	h.drop(h.sendTo(p, EventDocumentSaved, SavedPayload{DocumentID: d.ID, UpdatedAt: d.UpdatedAt}))
	return nil
}

// Leave removes p from its room without closing the connection.
func (h *Hub) Leave(p Peer) {
	h.seq.Lock()
	t, ok := h.rooms.Leave(p.ID())
	var slow []Peer
	if ok {
		slow = h.announce(t)
	}
	h.seq.Unlock()

	if ok {
		h.mirror(t.DocumentID)
	}
	h.drop(slow)
}

// Disconnect releases p's membership and closes it. Only the first call for a
// peer does anything; it reports whether this call performed the cleanup.
func (h *Hub) Disconnect(p Peer) bool {
	h.mu.Lock()
	if _, ok := h.peers[p.ID()]; !ok {
		h.mu.Unlock()
		return false
	}
	delete(h.peers, p.ID())
	h.mu.Unlock()

	metrics.ActiveConnections.Dec()
	h.seq.Lock()
	t, wasJoined := h.rooms.OnDisconnect(p.ID())
	var slow []Peer
	if wasJoined {
		slow = h.announce(t)
	}
	h.seq.Unlock()

	if wasJoined {
		h.mirror(t.DocumentID)
		logger.Infof("left on disconnect: conn=%s doc=%s remaining=%d", p.ID(), t.DocumentID, t.Count)
	}
	p.Close()
	h.drop(slow)
	return true
}

// Shutdown disconnects every registered peer.
func (h *Hub) Shutdown() {
	h.mu.RLock()
	all := make([]Peer, 0, len(h.peers))
	for _, p := range h.peers {
		all = append(all, p)
	}
	h.mu.RUnlock()
	for _, p := range all {
		h.Disconnect(p)
	}
}

// PresenceCount returns the number of active collaborators on documentID,
// combined across instances when a presence repository is configured.
func (h *Hub) PresenceCount(ctx context.Context, documentID string) int {
	if h.presence != nil {
		n, err := h.presence.Count(ctx, documentID)
		if err == nil {
			return n
		}
		logger.Warnf("presence lookup failed, using local count: doc=%s err=%v", documentID, err)
	}
	return h.rooms.Count(documentID)
}

// RunPresenceRefresh rewrites every local room size to the presence repository
// on each tick so that live entries do not expire. It returns when ctx is done.
func (h *Hub) RunPresenceRefresh(ctx context.Context, interval time.Duration) {
	if h.presence == nil || interval <= 0 {
		return
	}
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-t.C:
			for docID := range h.rooms.Snapshot() {
				h.mirror(docID)
			}
		case <-ctx.Done():
			return
		}
	}
}

// announce queues user-joined or user-left on the peers of a transition and
// returns the peers that could not keep up. Callers hold seq.
func (h *Hub) announce(t sessions.Transition) []Peer {
	metrics.ActiveRooms.Set(float64(h.rooms.Rooms()))

	event := EventUserJoined
	if t.Kind == sessions.KindLeft {
		event = EventUserLeft
	}
	frame, err := Encode(event, nil)
	if err != nil {
		logger.Errorf("encode %s: %v", event, err)
		return nil
	}
	return h.broadcast(t.Peers, event, frame)
}

// mirror writes the room's current size, not the size at the time of the
// transition, so the last write always reflects the latest membership.
func (h *Hub) mirror(documentID string) {
	if h.presence == nil {
		return
	}
	h.mirrorMu.Lock()
	defer h.mirrorMu.Unlock()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := h.presence.SetCount(ctx, documentID, h.rooms.Count(documentID)); err != nil {
		logger.Warnf("presence mirror failed: doc=%s err=%v", documentID, err)
	}
}

// broadcast queues frame on each listed peer and returns the peers whose
// buffers were full.
func (h *Hub) broadcast(ids []string, event string, frame []byte) []Peer {
	h.mu.RLock()
	targets := make([]Peer, 0, len(ids))
	for _, id := range ids {
		if p, ok := h.peers[id]; ok {
			targets = append(targets, p)
		}
	}
	h.mu.RUnlock()

	var slow []Peer
	for _, p := range targets {
		if p.Send(frame) {
			metrics.MessagesRelayed.WithLabelValues(event).Inc()
		} else {
			slow = append(slow, p)
		}
	}
	return slow
}

// drop disconnects peers that cannot keep up rather than let them stall a room.
// It must not be called with seq held.
func (h *Hub) drop(slow []Peer) {
	for _, p := range slow {
		if h.Disconnect(p) {
			metrics.SlowPeersDropped.Inc()
			logger.Warnf("dropped connection: conn=%s err=%v", p.ID(), ErrTransportClosed)
		}
	}
}

func (h *Hub) sendTo(p Peer, event string, data interface{}) []Peer {
	frame, err := Encode(event, data)
	if err != nil {
		logger.Errorf("encode %s: %v", event, err)
		return nil
	}
	return h.broadcast([]string{p.ID()}, event, frame)
}

func (h *Hub) sendError(p Peer, event string, err error) {
	h.drop(h.sendTo(p, EventError, ErrorPayload{Event: event, Message: err.Error()}))
}
