package realtime

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"signalist/internal/logger"
)

const writeWait = 10 * time.Second

// Client wraps a websocket connection. gorilla allows one concurrent writer,
// so every write goes through mu.
type Client struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (c *Client) WriteJSON(v any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteJSON(v)
}

// Hub fans dashboard snapshots out to every connected client.
type Hub struct {
	mu      sync.RWMutex
	clients map[*Client]struct{}
}

func NewHub() *Hub {
	return &Hub{clients: make(map[*Client]struct{})}
}

func (h *Hub) AddClient(conn *websocket.Conn) *Client {
	c := &Client{conn: conn}
	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()
	return c
}

func (h *Hub) RemoveClient(c *Client) {
	h.mu.Lock()
	_, ok := h.clients[c]
	delete(h.clients, c)
	h.mu.Unlock()
	if ok {
		_ = c.conn.Close()
	}
}

func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// BroadcastJSON writes v to every client and drops the ones that fail.
func (h *Hub) BroadcastJSON(v any) {
	h.mu.RLock()
	clients := make([]*Client, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.RUnlock()

	for _, c := range clients {
		if err := c.WriteJSON(v); err != nil {
			logger.Get().Debugw("dropping websocket client", "remote", c.conn.RemoteAddr().String(), "error", err)
			h.RemoveClient(c)
		}
	}
}
