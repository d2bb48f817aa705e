// Package events provides the websocket event sink that the presentation
// layer may optionally observe.
//
// Background work in karuta is deliberately fire-and-forget: remote mirror
// calls and sync runs never block or alert the user on routine failure.
// This hub is the defined failure/progress channel for that work - every
// sync lifecycle change, entry mutation and mirror failure is broadcast to
// connected clients.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/coder/websocket"
)

// Well-known event names.
const (
	EventSyncStarted   = "sync_started"
	EventSyncCompleted = "sync_completed"
	EventSyncFailed    = "sync_failed"
	EventEntriesAdded  = "entries_added"
	EventEntryUpdated  = "entry_updated"
	EventEntryDeleted  = "entry_deleted"
	EventMirrorFailed  = "mirror_failed"
)

// Message is one broadcast event.
type Message struct {
	Event     string          `json:"event"`
	Timestamp time.Time       `json:"timestamp"`
	Data      json.RawMessage `json:"data,omitempty"`
}

// Hub manages websocket subscribers and broadcasts messages to them.
type Hub struct {
	clients   map[*websocket.Conn]bool
	clientsMu sync.RWMutex

	broadcast chan Message

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	logger *log.Logger
}

// NewHub creates a hub. Call Start before publishing and Stop on shutdown.
// If logger is nil, a default logger writing to stderr is used.
func NewHub(logger *log.Logger) *Hub {
	if logger == nil {
		logger = log.New(os.Stderr, "[events] ", log.LstdFlags)
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Hub{
		clients:   make(map[*websocket.Conn]bool),
		broadcast: make(chan Message, 100),
		ctx:       ctx,
		cancel:    cancel,
		logger:    logger,
	}
}

// Start begins the broadcast loop.
func (h *Hub) Start() {
	h.wg.Add(1)
	go h.broadcastLoop()
}

// Stop disconnects all clients and stops the broadcast loop.
func (h *Hub) Stop() {
	h.cancel()

	h.clientsMu.Lock()
	for conn := range h.clients {
		_ = conn.Close(websocket.StatusGoingAway, "server shutting down")
		delete(h.clients, conn)
	}
	h.clientsMu.Unlock()

	h.wg.Wait()
}

// Publish broadcasts an event to all subscribers. Never blocks: when the
// channel is full the message is dropped, since observers are optional.
func (h *Hub) Publish(event string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		h.logger.Printf("failed to marshal %s payload: %v", event, err)
		data = nil
	}

	msg := Message{Event: event, Timestamp: time.Now(), Data: data}
	select {
	case h.broadcast <- msg:
	case <-h.ctx.Done():
	default:
		h.logger.Printf("Warning: broadcast channel full, dropping %s", event)
	}
}

// Handler returns the HTTP handler that upgrades connections to websocket
// subscriptions. Mount it wherever the API router lives.
func (h *Hub) Handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
			OriginPatterns: []string{"*"},
		})
		if err != nil {
			h.logger.Printf("websocket upgrade failed: %v", err)
			return
		}

		h.clientsMu.Lock()
		h.clients[conn] = true
		count := len(h.clients)
		h.clientsMu.Unlock()

		h.logger.Printf("client connected (total: %d)", count)
		go h.readLoop(conn)
	}
}

// ClientCount returns the current number of subscribers.
func (h *Hub) ClientCount() int {
	h.clientsMu.RLock()
	defer h.clientsMu.RUnlock()
	return len(h.clients)
}

func (h *Hub) broadcastLoop() {
	defer h.wg.Done()

	for {
		select {
		case <-h.ctx.Done():
			return

		case msg := <-h.broadcast:
			data, err := json.Marshal(msg)
			if err != nil {
				h.logger.Printf("failed to marshal message: %v", err)
				continue
			}

			h.clientsMu.RLock()
			conns := make([]*websocket.Conn, 0, len(h.clients))
			for conn := range h.clients {
				conns = append(conns, conn)
			}
			h.clientsMu.RUnlock()

			// Writes happen outside the lock so a slow client can't stall
			// new subscriptions.
			for _, conn := range conns {
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				err := conn.Write(ctx, websocket.MessageText, data)
				cancel()
				if err != nil {
					h.removeClient(conn)
				}
			}
		}
	}
}

// readLoop keeps the connection alive and reaps disconnected clients.
// Client messages are not processed.
func (h *Hub) readLoop(conn *websocket.Conn) {
	defer h.removeClient(conn)
	for {
		if _, _, err := conn.Read(h.ctx); err != nil {
			return
		}
	}
}

func (h *Hub) removeClient(conn *websocket.Conn) {
	h.clientsMu.Lock()
	_, exists := h.clients[conn]
	if exists {
		delete(h.clients, conn)
	}
	count := len(h.clients)
	h.clientsMu.Unlock()

	if exists {
		_ = conn.Close(websocket.StatusNormalClosure, "")
		h.logger.Printf("client disconnected (total: %d)", count)
	}
}

// MirrorFailure is the payload of EventMirrorFailed.
type MirrorFailure struct {
	Collection string `json:"collection"`
	ID         string `json:"id"`
	Op         string `json:"op"`
	Error      string `json:"error"`
}

func (f MirrorFailure) String() string {
	return fmt.Sprintf("%s %s %s: %s", f.Op, f.Collection, f.ID, f.Error)
}
