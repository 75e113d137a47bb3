// Package ws hosts the push side of the event stream: a hub of connected
// dashboard clients that every backend event is broadcast to. The stream is
// one-way; clients never send anything meaningful.
package ws

import (
	"context"
	"log/slog"
	"net/http"
	"sync"

	"github.com/coder/websocket"
	"github.com/gin-gonic/gin"
	"github.com/repolens/repolens/internal/lensmsg"
	"github.com/repolens/repolens/internal/version"
)

const maxMessageSize = 64 * 1024

// Hub tracks connected clients and fans events out to them.
type Hub struct {
	clients  map[string]*Client
	register chan *Client

	// greet builds the system event sent on accept; swapped to carry the
	// live watcher state
	greet func() *lensmsg.Event

	wg sync.WaitGroup
	mu sync.RWMutex
}

func NewHub(greet func() *lensmsg.Event) *Hub {
	if greet == nil {
		greet = func() *lensmsg.Event {
			return lensmsg.NewSystemEvent(version.Version, false)
		}
	}
	return &Hub{
		clients:  make(map[string]*Client),
		register: make(chan *Client),
		greet:    greet,
	}
}

func (h *Hub) Run(ctx context.Context) {
	slog.Info("wshub started")
	defer slog.Info("wshub stopped")

	for {
		select {
		case client, ok := <-h.register:
			if !ok {
				return
			}
			h.mu.Lock()
			h.clients[client.ConnID] = client
			slog.Debug("wshub registered", "connId", client.ConnID, "active", len(h.clients))
			h.mu.Unlock()

			h.wg.Add(1)
			go client.Start(context.Background())
			go func() {
				<-client.Closed

				h.mu.Lock()
				delete(h.clients, client.ConnID)
				slog.Debug("wshub removed", "connId", client.ConnID, "active", len(h.clients))
				h.mu.Unlock()
				h.wg.Done()
			}()

		case <-ctx.Done():
			return
		}
	}
}

// Broadcast queues an event for every connected client. Slow clients drop
// events rather than block the hub; a dropped event costs one extra fetch
// after the client notices via the next one.
func (h *Hub) Broadcast(ev *lensmsg.Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, client := range h.clients {
		select {
		case client.EventTx <- ev:
		default:
			slog.Warn("wshub send buffer full", "connId", client.ConnID, "kind", ev.Kind)
		}
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) Shutdown(ctx context.Context) {
	close(h.register)

	h.mu.RLock()
	clients := make([]*Client, 0, len(h.clients))
	for _, client := range h.clients {
		clients = append(clients, client)
	}
	h.mu.RUnlock()

	for _, client := range clients {
		go client.Close()
	}

	h.wg.Wait()
	slog.Info("wshub shutdown")
}

// Handler upgrades the request and registers the connection with the hub.
func (h *Hub) Handler(ctx *gin.Context) {
	conn, err := websocket.Accept(ctx.Writer, ctx.Request, nil)
	if err != nil {
		ctx.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
			"code":  "websocket_accept_failed",
			"error": err.Error(),
		})
		return
	}
	conn.SetReadLimit(maxMessageSize)

	client := NewClient(conn)
	client.EventTx <- h.greet()
	h.register <- client
}
