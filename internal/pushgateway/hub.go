// Package pushgateway holds the websocket edge: clients connect here, their
// session is registered in Redis, and order notifications consumed from the
// broker are pushed to whichever node holds the user's connection.
package pushgateway

import (
	"storefront/internal/pkg/logger"
)

// Hub tracks the websocket clients connected to this node, one per user.
type Hub struct {
	clients    map[string]*Client
	register   chan *Client
	unregister chan *Client
	deliver    chan delivery
	done       chan struct{}
}

type delivery struct {
	userID  string
	message []byte
}

func NewHub() *Hub {
	return &Hub{
		clients:    make(map[string]*Client),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		deliver:    make(chan delivery, 256),
		done:       make(chan struct{}),
	}
}

// Run owns the clients map; all mutation goes through the channels.
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			if old, ok := h.clients[client.userID]; ok {
				close(old.send)
			}
			h.clients[client.userID] = client
			logger.L().Info().Str("user_id", client.userID).Msg("websocket client connected")

		case client := <-h.unregister:
			if current, ok := h.clients[client.userID]; ok && current == client {
				delete(h.clients, client.userID)
				close(client.send)
				logger.L().Info().Str("user_id", client.userID).Msg("websocket client disconnected")
			}

		case d := <-h.deliver:
			client, ok := h.clients[d.userID]
			if !ok {
				continue // user reconnected elsewhere; their node will deliver
			}
			select {
			case client.send <- d.message:
			default:
				delete(h.clients, d.userID)
				close(client.send)
			}

		case <-h.done:
			for _, client := range h.clients {
				close(client.send)
			}
			return
		}
	}
}

// Deliver queues a message for the named user if connected to this node.
func (h *Hub) Deliver(userID string, message []byte) {
	select {
	case h.deliver <- delivery{userID: userID, message: message}:
	case <-h.done:
	}
}

func (h *Hub) Stop() { close(h.done) }
