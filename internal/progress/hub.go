package progress

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/valuation-cli/internal/model"
)

const writeWait = 10 * time.Second

// Message is the envelope sent to websocket clients.
type Message struct {
	Type string              `json:"type"`
	Data model.BatchSnapshot `json:"data"`
}

type client struct {
	conn *websocket.Conn
	mu   sync.Mutex // serializes writes
}

func (c *client) write(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

// Hub broadcasts batch snapshots to connected websocket clients. New clients
// immediately receive the latest snapshot.
type Hub struct {
	upgrader websocket.Upgrader

	mu      sync.RWMutex
	clients map[*client]struct{}
	last    []byte
}

// NewHub creates a Hub. An empty allowedOrigins accepts any origin.
func NewHub(allowedOrigins ...string) *Hub {
	h := &Hub{clients: make(map[*client]struct{})}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 4096,
		CheckOrigin: func(r *http.Request) bool {
			if len(allowedOrigins) == 0 {
				return true
			}
			origin := r.Header.Get("Origin")
			for _, o := range allowedOrigins {
				if o == "*" || o == origin {
					return true
				}
			}
			return false
		},
	}
	return h
}

// Publish sends snap to every client. Write failures drop the client.
func (h *Hub) Publish(_ context.Context, snap model.BatchSnapshot) error {
	typ := "progress"
	if snap.Finished {
		typ = "finished"
	}
	data, err := json.Marshal(Message{Type: typ, Data: snap})
	if err != nil {
		return eris.Wrap(err, "progress: marshal snapshot")
	}

	h.mu.Lock()
	h.last = data
	clients := make([]*client, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.Unlock()

	for _, c := range clients {
		if err := c.write(data); err != nil {
			zap.L().Debug("websocket write failed, dropping client", zap.Error(err))
			h.unregister(c)
		}
	}
	return nil
}

// ServeHTTP upgrades the request and keeps the connection registered until
// the client disconnects.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		zap.L().Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	c := &client{conn: conn}

	h.mu.Lock()
	h.clients[c] = struct{}{}
	last := h.last
	h.mu.Unlock()

	if last != nil {
		if err := c.write(last); err != nil {
			h.unregister(c)
			return
		}
	}

	// Reads only detect disconnects.
	go func() {
		defer h.unregister(c)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}

func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	_, ok := h.clients[c]
	delete(h.clients, c)
	h.mu.Unlock()
	if ok {
		_ = c.conn.Close()
	}
}

// ConnectionCount returns the number of connected clients.
func (h *Hub) ConnectionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Reset forgets the last snapshot so new clients start empty.
func (h *Hub) Reset() {
	h.mu.Lock()
	h.last = nil
	h.mu.Unlock()
}
