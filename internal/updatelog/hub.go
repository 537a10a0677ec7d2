package updatelog

import (
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

// clientSendBuffer bounds each subscriber's outgoing queue; a client
// that falls behind is disconnected rather than letting the broadcaster
// block on a slow reader (spec.md §4.4: "no replay — clients must
// reread history from the store on reconnect").
const clientSendBuffer = 64

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Hub fans out broadcast Updates to every connected /ws/update client,
// grounded on the teacher's internal/websocket Hub (register/unregister
// channels draining into one run loop, NewHub/Run/HandleWebSocket
// shape recalled from cmd/pulse/main.go's wiring and the hub tests).
type Hub struct {
	mu      sync.Mutex
	clients map[*client]struct{}

	register   chan *client
	unregister chan *client
	broadcast  chan interface{}
}

type client struct {
	conn *websocket.Conn
	send chan interface{}
}

func NewHub() *Hub {
	return &Hub{
		clients:    make(map[*client]struct{}),
		register:   make(chan *client),
		unregister: make(chan *client),
		broadcast:  make(chan interface{}, 256),
	}
}

// Run drives the hub's single-goroutine register/unregister/broadcast
// loop; callers start it once with `go hub.Run()`.
func (h *Hub) Run() {
	for {
		select {
		case c := <-h.register:
			h.mu.Lock()
			h.clients[c] = struct{}{}
			h.mu.Unlock()
		case c := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[c]; ok {
				delete(h.clients, c)
				close(c.send)
			}
			h.mu.Unlock()
		case msg, ok := <-h.broadcast:
			if !ok {
				return
			}
			h.mu.Lock()
			for c := range h.clients {
				select {
				case c.send <- msg:
				default:
					// slow consumer: drop it rather than block the broadcaster
					delete(h.clients, c)
					close(c.send)
				}
			}
			h.mu.Unlock()
		}
	}
}

// Broadcast publishes msg to every currently-connected client.
func (h *Hub) Broadcast(msg interface{}) {
	h.broadcast <- msg
}

// HandleWebSocket upgrades the request and registers the connection as
// a subscriber until it disconnects.
func (h *Hub) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Error().Err(err).Msg("update hub: websocket upgrade failed")
		return
	}

	c := &client{conn: conn, send: make(chan interface{}, clientSendBuffer)}
	h.register <- c

	go h.writePump(c)
	h.readPump(c)
}

// readPump discards client messages (this is a server-push-only
// channel) and exists only to detect disconnects.
func (h *Hub) readPump(c *client) {
	defer func() {
		h.unregister <- c
		_ = c.conn.Close()
	}()
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *Hub) writePump(c *client) {
	const pingInterval = 30 * time.Second
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()
	for {
		select {
		case msg, ok := <-c.send:
			if !ok {
				_ = c.conn.Close()
				return
			}
			if err := c.conn.WriteJSON(msg); err != nil {
				return
			}
		case <-ticker.C:
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
