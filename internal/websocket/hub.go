// Package websocket broadcasts live-reload messages to connected browsers.
package websocket

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"

	"github.com/conneroisu/kiln/internal/asset"
	"github.com/conneroisu/kiln/internal/logging"
)

// Message types sent to the browser.
const (
	// TypeReload asks for a full page reload.
	TypeReload = "reload"
	// TypeCSS asks the page to refetch its stylesheets only.
	TypeCSS = "css"
)

// Message is a live-reload message.
type Message struct {
	Type      string      `json:"type"`
	Class     asset.Class `json:"class"`
	Paths     []string    `json:"paths"`
	RunID     string      `json:"run_id"`
	Timestamp time.Time   `json:"timestamp"`
}

const (
	sendBuffer   = 16
	writeTimeout = 10 * time.Second
	pingInterval = 30 * time.Second
)

type client struct {
	conn *websocket.Conn
	send chan []byte
}

// Hub tracks browser connections and fans messages out to them. A single
// goroutine owns the client set.
type Hub struct {
	logger         logging.Logger
	originPatterns []string

	register   chan *client
	unregister chan *client
	broadcast  chan []byte

	mu      sync.RWMutex
	clients map[*client]bool

	ctx          context.Context
	cancel       context.CancelFunc
	shutdownOnce sync.Once
	done         chan struct{}
}

// NewHub creates a hub and starts its goroutine. originPatterns are extra
// allowed origins on top of same-origin requests.
func NewHub(logger logging.Logger, originPatterns ...string) *Hub {
	if logger == nil {
		logger = logging.Nop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	h := &Hub{
		logger:         logger.WithComponent("websocket"),
		originPatterns: originPatterns,
		register:       make(chan *client),
		unregister:     make(chan *client),
		broadcast:      make(chan []byte, 64),
		clients:        make(map[*client]bool),
		ctx:            ctx,
		cancel:         cancel,
		done:           make(chan struct{}),
	}
	go h.run()
	return h
}

// ServeHTTP upgrades the request and registers the connection.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if h.ctx.Err() != nil {
		http.Error(w, "Service Unavailable", http.StatusServiceUnavailable)
		return
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns:  h.originPatterns,
		CompressionMode: websocket.CompressionDisabled,
	})
	if err != nil {
		h.logger.Warn(r.Context(), err, "WebSocket upgrade failed", "remote", r.RemoteAddr)
		return
	}

	c := &client{conn: conn, send: make(chan []byte, sendBuffer)}
	select {
	case h.register <- c:
	case <-h.ctx.Done():
		_ = conn.Close(websocket.StatusServiceRestart, "server shutting down")
		return
	}

	go h.writePump(c)
	h.readPump(c)
}

func (h *Hub) run() {
	defer close(h.done)
	for {
		select {
		case c := <-h.register:
			h.mu.Lock()
			h.clients[c] = true
			n := len(h.clients)
			h.mu.Unlock()
			h.logger.Debug(h.ctx, "Browser connected", "clients", n)

		case c := <-h.unregister:
			h.remove(c)

		case msg := <-h.broadcast:
			h.mu.RLock()
			var slow []*client
			for c := range h.clients {
				select {
				case c.send <- msg:
				default:
					slow = append(slow, c)
				}
			}
			h.mu.RUnlock()
			for _, c := range slow {
				h.remove(c)
			}

		case <-h.ctx.Done():
			h.mu.Lock()
			for c := range h.clients {
				close(c.send)
				_ = c.conn.Close(websocket.StatusGoingAway, "server shutdown")
			}
			h.clients = make(map[*client]bool)
			h.mu.Unlock()
			return
		}
	}
}

func (h *Hub) remove(c *client) {
	h.mu.Lock()
	_, ok := h.clients[c]
	if ok {
		delete(h.clients, c)
		close(c.send)
	}
	h.mu.Unlock()
	if ok {
		_ = c.conn.Close(websocket.StatusNormalClosure, "")
	}
}

// readPump discards client messages; it exists to notice disconnects.
func (h *Hub) readPump(c *client) {
	defer func() {
		select {
		case h.unregister <- c:
		case <-h.ctx.Done():
		}
	}()
	for {
		if _, _, err := c.conn.Read(h.ctx); err != nil {
			return
		}
	}
}

func (h *Hub) writePump(c *client) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case msg, ok := <-c.send:
			if !ok {
				return
			}
			ctx, cancel := context.WithTimeout(h.ctx, writeTimeout)
			err := c.conn.Write(ctx, websocket.MessageText, msg)
			cancel()
			if err != nil {
				return
			}
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(h.ctx, writeTimeout)
			err := c.conn.Ping(ctx)
			cancel()
			if err != nil {
				return
			}
		case <-h.ctx.Done():
			return
		}
	}
}

// Broadcast sends msg to every connected browser. Messages are dropped once
// the hub is shut down.
func (h *Hub) Broadcast(msg Message) {
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now()
	}
	data, err := json.Marshal(msg)
	if err != nil {
		h.logger.Error(h.ctx, err, "Cannot encode reload message")
		return
	}
	select {
	case h.broadcast <- data:
	case <-h.ctx.Done():
	}
}

// Reload tells browsers that outputs of class changed. A styles-only change
// refreshes stylesheets in place.
func (h *Hub) Reload(ctx context.Context, class asset.Class, paths []string, runID string) {
	msg := Message{Type: TypeReload, Class: class, Paths: paths, RunID: runID}
	if class == asset.Styles {
		msg.Type = TypeCSS
	}
	h.logger.Debug(ctx, "Broadcasting reload", "class", string(class), "type", msg.Type, "paths", len(paths))
	h.Broadcast(msg)
}

// Clients returns the number of connected browsers.
func (h *Hub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Shutdown closes every connection and stops the hub.
func (h *Hub) Shutdown(ctx context.Context) error {
	h.shutdownOnce.Do(h.cancel)
	select {
	case <-h.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
