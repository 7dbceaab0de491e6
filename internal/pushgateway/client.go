package pushgateway

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"storefront/internal/pkg/logger"
	"storefront/internal/pkg/session"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

type Client struct {
	hub    *Hub
	userID string
	conn   *websocket.Conn
	send   chan []byte
}

// ServeWS upgrades the connection and records in Redis which gateway node
// owns this user's session.
func ServeWS(hub *Hub, sessions *session.Manager, nodeID string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID := r.URL.Query().Get("userId")
		if userID == "" {
			http.Error(w, "userId query parameter required", http.StatusBadRequest)
			return
		}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			logger.Ctx(r.Context()).Error().Err(err).Msg("websocket upgrade failed")
			return
		}
		if err := sessions.SetUserGateway(r.Context(), userID, nodeID); err != nil {
			logger.Ctx(r.Context()).Error().Err(err).Str("user_id", userID).Msg("session registration failed")
			conn.Close()
			return
		}

		client := &Client{hub: hub, userID: userID, conn: conn, send: make(chan []byte, 64)}
		hub.register <- client
		go client.writePump()
		go client.readPump(sessions)
	}
}

// readPump drains (and discards) client frames so pings work and close
// frames are noticed.
func (c *Client) readPump(sessions *session.Manager) {
	defer func() {
		c.hub.unregister <- c
		c.conn.Close()
		if err := sessions.ClearUserGateway(context.Background(), c.userID); err != nil {
			logger.L().Error().Err(err).Str("user_id", c.userID).Msg("session cleanup failed")
		}
	}()
	c.conn.SetReadLimit(512)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()
	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
