package hub

import (
	"encoding/json"
	"log"
	"sync"

	"docbroker/internal/events"
)

type Writer interface {
	Write(message []byte) error
	Close() error
}

type Connection struct {
	UserID string
	Writer Writer
}

// Hub tracks the websocket connections of portal clients, indexed by
// user. Editing session events are pushed to the user they belong to.
type Hub struct {
	mu          sync.RWMutex
	connections map[string]map[*Connection]struct{}
}

func New() *Hub {
	return &Hub{connections: make(map[string]map[*Connection]struct{})}
}

func (h *Hub) Register(conn *Connection) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.connections[conn.UserID] == nil {
		h.connections[conn.UserID] = make(map[*Connection]struct{})
	}
	h.connections[conn.UserID][conn] = struct{}{}
}

func (h *Hub) Unregister(conn *Connection) {
	h.mu.Lock()
	defer h.mu.Unlock()

	set := h.connections[conn.UserID]
	if set == nil {
		return
	}
	delete(set, conn)
	if len(set) == 0 {
		delete(h.connections, conn.UserID)
	}
}

func (h *Hub) Broadcast(userID string, message []byte) {
	h.mu.RLock()
	set := h.connections[userID]
	conns := make([]*Connection, 0, len(set))
	for c := range set {
		conns = append(conns, c)
	}
	h.mu.RUnlock()

	var failed []*Connection
	for _, c := range conns {
		if err := c.Writer.Write(message); err != nil {
			failed = append(failed, c)
		}
	}
	for _, c := range failed {
		_ = c.Writer.Close()
		h.Unregister(c)
	}
}

// EditorMessage is the wire form of an editing session event pushed to a
// portal client.
type EditorMessage struct {
	Type  string       `json:"type"`
	Event events.Event `json:"event"`
}

// Bridge forwards editing session events to the affected user's
// websocket connections. Subscribe it on the event dispatcher.
type Bridge struct {
	Hub *Hub
}

func NewBridge(h *Hub) *Bridge {
	return &Bridge{Hub: h}
}

func (b *Bridge) OnEditorEvent(evt events.Event) {
	out, err := json.Marshal(EditorMessage{Type: "editor", Event: evt})
	if err != nil {
		log.Printf("hub: marshal %s event: %v", evt.Type, err)
		return
	}
	b.Hub.Broadcast(evt.Record.UserID, out)
}
