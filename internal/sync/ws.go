package sync

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // OK for demo; restrict in production
	},
}

// WSHandler upgrades the connection and registers it for the
// authenticated user. userID extracts the identity the auth middleware
// stored on the request context.
func WSHandler(hub *Hub, userID func(*gin.Context) string) gin.HandlerFunc {
	return func(c *gin.Context) {
		uid := userID(c)
		if uid == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
			return
		}

		ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			return
		}

		hub.Add(ws, uid)
		hub.logger.Debug("ws client connected", slog.String("user", uid))

		_ = ws.WriteMessage(
			websocket.TextMessage,
			[]byte(`{"event":"welcome","transport":"websocket"}`),
		)

		// hold the connection open; incoming frames are ignored
		for {
			if _, _, err := ws.ReadMessage(); err != nil {
				break
			}
		}

		hub.Remove(ws)
		hub.logger.Debug("ws client disconnected", slog.String("user", uid))
	}
}
