package realtime

import (
	"context"
	"net/http"
	"net/url"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/gogotex/gogotex/backend/collab-service/pkg/logger"
	"github.com/gorilla/websocket"
)

// NewUpgrader returns an upgrader accepting the given origins. "*" accepts any
// origin; requests without an Origin header (non-browser clients) are accepted.
func NewUpgrader(allowedOrigins []string) *websocket.Upgrader {
	allowAll := false
	allowed := map[string]bool{}
	for _, o := range allowedOrigins {
		if o == "*" {
			allowAll = true
		}
		allowed[strings.TrimRight(strings.ToLower(o), "/")] = true
	}
	return &websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			if origin == "" || allowAll {
				return true
			}
			u, err := url.Parse(origin)
			if err != nil {
				return false
			}
			if strings.EqualFold(u.Host, r.Host) {
				return true
			}
			return allowed[strings.TrimRight(strings.ToLower(origin), "/")]
		},
	}
}

// RegisterRoutes mounts the WebSocket endpoint and the presence lookup.
func RegisterRoutes(rg gin.IRoutes, hub *Hub, upgrader *websocket.Upgrader, s Settings) {
	rg.GET("/ws", ServeWS(hub, upgrader, s))
	rg.GET("/documents/:id/presence", func(c *gin.Context) {
		id := c.Param("id")
		c.JSON(http.StatusOK, gin.H{"documentId": id, "active": hub.PresenceCount(c.Request.Context(), id)})
	})
}

// ServeWS upgrades the request and serves the connection until it closes.
func ServeWS(hub *Hub, upgrader *websocket.Upgrader, s Settings) gin.HandlerFunc {
	return func(c *gin.Context) {
		ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			// Upgrade has already written an HTTP error response
			logger.Warnf("websocket upgrade failed: remote=%s err=%v", c.ClientIP(), err)
			return
		}
		// the connection's own context is canceled on Close; the request's is not relied on after hijack
		conn := newConn(context.WithoutCancel(c.Request.Context()), ws, hub, s)
		logger.Infof("user connected: conn=%s remote=%s", conn.ID(), c.ClientIP())
		conn.Serve()
		logger.Infof("user disconnected: conn=%s", conn.ID())
	}
}
