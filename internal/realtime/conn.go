package realtime

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/gogotex/gogotex/backend/collab-service/pkg/logger"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// Settings tunes liveness detection and buffering for each connection.
type Settings struct {
	// PingInterval is how often the server pings; it must be below PongTimeout.
	PingInterval time.Duration
	// PongTimeout bounds how long a silent connection stays joined. An abruptly
	// dropped client is cleaned up within this window.
	PongTimeout    time.Duration
	WriteTimeout   time.Duration
	SendBuffer     int
	MaxMessageSize int64
}

func DefaultSettings() Settings {
	return Settings{
		PingInterval:   25 * time.Second,
		PongTimeout:    60 * time.Second,
		WriteTimeout:   10 * time.Second,
		SendBuffer:     64,
		MaxMessageSize: 8 << 20,
	}
}

// Conn is a WebSocket-backed Peer. One goroutine reads frames and dispatches
// them to the hub in arrival order; another drains the send queue and pings.
type Conn struct {
	id       string
	ws       *websocket.Conn
	hub      *Hub
	settings Settings

	send      chan []byte
	done      chan struct{}
	closeOnce sync.Once

	ctx    context.Context
	cancel context.CancelFunc
}

func newConn(parent context.Context, ws *websocket.Conn, hub *Hub, s Settings) *Conn {
	ctx, cancel := context.WithCancel(parent)
	return &Conn{
		id:       uuid.NewString(),
		ws:       ws,
		hub:      hub,
		settings: s,
		send:     make(chan []byte, s.SendBuffer),
		done:     make(chan struct{}),
		ctx:      ctx,
		cancel:   cancel,
	}
}

func (c *Conn) ID() string { return c.id }

func (c *Conn) Send(frame []byte) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.send <- frame:
		return true
	default:
		return false
	}
}

// Close stops both pumps. The write pump closes the socket, which unblocks the reader.
func (c *Conn) Close() {
	c.closeOnce.Do(func() {
		close(c.done)
		c.cancel()
	})
}

// Serve registers the connection and blocks until it is gone. Disconnect runs
// exactly once however the connection ends.
func (c *Conn) Serve() {
	c.hub.Register(c)
	go c.writePump()
	c.readPump()
}

func (c *Conn) readPump() {
	defer c.hub.Disconnect(c)

	c.ws.SetReadLimit(c.settings.MaxMessageSize)
	_ = c.ws.SetReadDeadline(time.Now().Add(c.settings.PongTimeout))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(c.settings.PongTimeout))
	})

	for {
		mt, frame, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseNoStatusReceived) {
				logger.Debugf("connection closed: conn=%s err=%v", c.id, err)
			}
			return
		}
		_ = c.ws.SetReadDeadline(time.Now().Add(c.settings.PongTimeout))
		if mt != websocket.TextMessage {
			continue
		}
		msg, err := Decode(frame)
		if err != nil {
			c.hub.sendError(c, "", err)
			continue
		}
		c.hub.Handle(c.ctx, c, msg)
	}
}

func (c *Conn) writePump() {
	ticker := time.NewTicker(c.settings.PingInterval)
	defer func() {
		ticker.Stop()
		_ = c.ws.Close()
	}()

	for {
		select {
		case frame := <-c.send:
			if err := c.write(websocket.TextMessage, frame); err != nil {
				c.Close()
				return
			}
		case <-ticker.C:
			if err := c.write(websocket.PingMessage, nil); err != nil {
				c.Close()
				return
			}
		case <-c.done:
			c.flush()
			_ = c.write(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}

// flush writes frames that were queued before Close, e.g. a final user-left.
func (c *Conn) flush() {
	for {
		select {
		case frame := <-c.send:
			if err := c.write(websocket.TextMessage, frame); err != nil {
				return
			}
		default:
			return
		}
	}
}

func (c *Conn) write(mt int, payload []byte) error {
	_ = c.ws.SetWriteDeadline(time.Now().Add(c.settings.WriteTimeout))
	if err := c.ws.WriteMessage(mt, payload); err != nil {
		if !errors.Is(err, websocket.ErrCloseSent) {
			logger.Debugf("write failed: conn=%s err=%v", c.id, err)
		}
		return err
	}
	return nil
}
