package collabclient

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gogotex/gogotex/backend/collab-service/internal/document"
	"github.com/gogotex/gogotex/backend/collab-service/internal/realtime"
	"github.com/gogotex/gogotex/backend/collab-service/internal/sessions"
	"github.com/gogotex/gogotex/backend/collab-service/pkg/logger"
	"github.com/gorilla/websocket"
)

const (
	DefaultAutosaveDelay = 2 * time.Second
	autosaveTimeout      = 10 * time.Second
)

// ErrClosed is returned by operations on a closed Session.
var ErrClosed = errors.New("session closed")

// Handlers receive session events. Every field is optional. Handlers run on
// the session's goroutines; Close detaches them.
type Handlers struct {
	// OnContent fires when the buffer is replaced by the server, either the
	// snapshot loaded on join or another collaborator's edit.
	OnContent  func(content string)
	OnPresence func(count int)
	OnNotice   func(Notice)
}

type Options struct {
	// AutosaveDelay is the quiescence window after the last local edit.
	AutosaveDelay time.Duration
	// WebSocketURL overrides the endpoint derived from the API base.
	WebSocketURL string
	Dialer       *websocket.Dialer
	Handlers     Handlers
}

// Session is one open document: its connection, buffer, presence count and
// autosave timer. It is created when the document is opened and must be
// closed when it is left.
type Session struct {
	api  *API
	opts Options
	ws   *websocket.Conn

	writeMu sync.Mutex

	mu        sync.Mutex
	docID     string
	title     string
	buffer    string
	lastSaved time.Time
	timer     *time.Timer
	handlers  Handlers
	closed    bool

	presence *sessions.Counter
	notices  noticeBoard

	ctx       context.Context
	cancel    context.CancelFunc
	readDone  chan struct{}
	closeOnce sync.Once
}

// Open loads documentID over HTTP, connects and joins its room. An empty id
// or "new" opens an unsaved document that joins a room once Save creates it.
// When the document cannot be fetched Open fails and nothing stays open.
func Open(ctx context.Context, api *API, documentID string, opts Options) (*Session, error) {
	if opts.AutosaveDelay <= 0 {
		opts.AutosaveDelay = DefaultAutosaveDelay
	}
	if opts.WebSocketURL == "" {
		opts.WebSocketURL = api.WebSocketURL()
	}
	if opts.Dialer == nil {
		opts.Dialer = websocket.DefaultDialer
	}

	s := &Session{
		api:      api,
		opts:     opts,
		handlers: opts.Handlers,
		presence: sessions.NewCounter(),
		readDone: make(chan struct{}),
	}
	if !document.IsNewID(documentID) {
		d, err := api.Get(ctx, documentID)
		if err != nil {
			return nil, fmt.Errorf("open %s: %w", documentID, err)
		}
		s.docID = d.ID
		s.title = d.Title
		s.buffer = d.Content
		s.lastSaved = d.UpdatedAt
	}

	ws, resp, err := opts.Dialer.DialContext(ctx, opts.WebSocketURL, nil)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", opts.WebSocketURL, err)
	}
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	s.ws = ws
	s.ctx, s.cancel = context.WithCancel(context.Background())
	go s.readLoop()

	if s.docID != "" {
		if err := s.send(realtime.EventJoinDocument, s.docID); err != nil {
			s.Close()
			return nil, err
		}
	}
	return s, nil
}

func (s *Session) DocumentID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.docID
}

func (s *Session) Title() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.title
}

// Content is the local buffer.
func (s *Session) Content() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.buffer
}

func (s *Session) LastSaved() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastSaved
}

// Collaborators is the active headcount including this client; never below 1.
func (s *Session) Collaborators() int { return s.presence.Value() }

// Notice returns the status line currently shown, if any.
func (s *Session) Notice() (Notice, bool) { return s.notices.get() }

// Edit replaces the local buffer, relays it to the other collaborators and
// re-arms the autosave timer. Unsaved documents are relayed but not autosaved.
func (s *Session) Edit(content string) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	s.buffer = content
	docID := s.docID
	if docID != "" {
		if s.timer != nil {
			s.timer.Stop()
		}
		s.timer = time.AfterFunc(s.opts.AutosaveDelay, func() { s.autosave(docID, content) })
	}
	s.mu.Unlock()

	return s.send(realtime.EventSendChanges, content)
}

// Save persists the buffer explicitly: it creates the document when the
// session has none yet, otherwise it replaces the stored content. title is
// only used on creation. A failure leaves a persistent notice.
func (s *Session) Save(ctx context.Context, title string) (*Document, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, ErrClosed
	}
	docID, content := s.docID, s.buffer
	s.mu.Unlock()
	s.notices.clearPersistent()

	var (
		d   *Document
		err error
		msg = MsgSaved
	)
	if docID == "" {
		d, err = s.api.Create(ctx, document.NormalizeTitle(title), content)
		msg = MsgCreated
	} else {
		d, err = s.api.Update(ctx, docID, content)
	}
	if err != nil {
		logger.Warnf("save failed: doc=%s err=%v", docID, err)
		s.notify(Notice{Kind: NoticeError, Message: fmt.Sprintf("%s: %v", MsgSaveFailed, err)})
		return nil, err
	}

	s.mu.Lock()
	s.lastSaved = d.UpdatedAt
	created := s.docID == ""
	if created {
		s.docID = d.ID
		s.title = d.Title
	}
	s.mu.Unlock()

	if created {
		if err := s.send(realtime.EventJoinDocument, d.ID); err != nil {
			logger.Warnf("join after create failed: doc=%s err=%v", d.ID, err)
		}
	}
	s.notify(Notice{Kind: NoticeInfo, Message: msg, TTL: 2 * time.Second})
	return d, nil
}

// Close leaves the document: it cancels a pending autosave, closes the
// connection and detaches every handler. It is safe to call more than once.
func (s *Session) Close() error {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.closed = true
		if s.timer != nil {
			s.timer.Stop()
			s.timer = nil
		}
		s.handlers = Handlers{}
		s.mu.Unlock()

		if s.cancel != nil {
			s.cancel()
		}
		s.notices.close()
		if s.ws != nil {
			s.writeMu.Lock()
			_ = s.ws.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
			s.writeMu.Unlock()
			_ = s.ws.Close()
			<-s.readDone
		}
	})
	return nil
}

func (s *Session) autosave(docID, content string) {
	ctx, cancel := context.WithTimeout(s.ctx, autosaveTimeout)
	defer cancel()
	d, err := s.api.Update(ctx, docID, content)
	if err != nil {
		if s.ctx.Err() != nil {
			return
		}
		logger.Warnf("autosave failed: doc=%s err=%v", docID, err)
		s.notify(Notice{Kind: NoticeError, Message: MsgAutosaveFailed, TTL: 3 * time.Second})
		return
	}
	s.mu.Lock()
	s.lastSaved = d.UpdatedAt
	s.mu.Unlock()
	s.notify(Notice{Kind: NoticeInfo, Message: MsgAutosaved, TTL: 2 * time.Second})
}

func (s *Session) send(event string, data interface{}) error {
	frame, err := realtime.Encode(event, data)
	if err != nil {
		return err
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if err := s.ws.WriteMessage(websocket.TextMessage, frame); err != nil {
		return fmt.Errorf("%w: %v", realtime.ErrTransportClosed, err)
	}
	return nil
}

// readLoop applies server events until the connection ends. The default ping
// handler answers server pings while it reads.
func (s *Session) readLoop() {
	defer close(s.readDone)
	for {
		_, frame, err := s.ws.ReadMessage()
		if err != nil {
			if s.ctx.Err() == nil {
				logger.Warnf("connection lost: doc=%s err=%v", s.DocumentID(), err)
			}
			return
		}
		msg, err := realtime.Decode(frame)
		if err != nil {
			logger.Debugf("ignoring frame: %v", err)
			continue
		}
		s.apply(msg)
	}
}

func (s *Session) apply(msg realtime.Message) {
	switch msg.Event {
	case realtime.EventLoadDocument, realtime.EventReceiveChanges:
		content, err := msg.Text()
		if err != nil {
			logger.Debugf("bad %s frame: %v", msg.Event, err)
			return
		}
		s.mu.Lock()
		s.buffer = content
		h := s.handlers.OnContent
		s.mu.Unlock()
		if h != nil {
			h(content)
		}
	case realtime.EventUserJoined:
		s.presenceChanged(s.presence.Joined())
	case realtime.EventUserLeft:
		s.presenceChanged(s.presence.Left())
	case realtime.EventPresenceCount:
		var p realtime.PresencePayload
		if err := msg.Bind(&p); err == nil {
			s.presenceChanged(s.presence.Set(p.Count))
		}
	case realtime.EventError:
		var p realtime.ErrorPayload
		_ = msg.Bind(&p)
		logger.Warnf("server error: event=%s message=%s", p.Event, p.Message)
	}
}

func (s *Session) presenceChanged(n int) {
	s.mu.Lock()
	h := s.handlers.OnPresence
	s.mu.Unlock()
	if h != nil {
		h(n)
	}
}

func (s *Session) notify(n Notice) {
	s.mu.Lock()
	h, closed := s.handlers.OnNotice, s.closed
	s.mu.Unlock()
	if closed {
		return
	}
	s.notices.show(n)
	if h != nil {
		h(n)
	}
}
