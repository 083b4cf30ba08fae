package backendtest

import (
	"encoding/json"
	"log"
	"sync"

	websocket "github.com/gofiber/contrib/websocket"

	"github.com/abin98anto/skillforge-client/internal/push"
)

// hub fans push events out to connected clients by room. It is the test
// double of the backend's fan-out, so it favors simplicity over throughput:
// a mutex-guarded room table with a buffered send channel per client.
type hub struct {
	mu    sync.Mutex
	rooms map[string]map[*hubClient]struct{}
}

type hubClient struct {
	conn   *websocket.Conn
	userID string
	send   chan []byte
	rooms  map[string]struct{}
}

func newHub() *hub {
	return &hub{rooms: make(map[string]map[*hubClient]struct{})}
}

func (h *hub) newClient(conn *websocket.Conn, userID string) *hubClient {
	return &hubClient{
		conn:   conn,
		userID: userID,
		send:   make(chan []byte, 32),
		rooms:  make(map[string]struct{}),
	}
}

func (h *hub) join(client *hubClient, room string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	set, ok := h.rooms[room]
	if !ok {
		set = make(map[*hubClient]struct{})
		h.rooms[room] = set
	}
	set[client] = struct{}{}
	client.rooms[room] = struct{}{}
}

func (h *hub) drop(client *hubClient) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for room := range client.rooms {
		set := h.rooms[room]
		if _, ok := set[client]; ok {
			delete(set, client)
		}
		if len(set) == 0 {
			delete(h.rooms, room)
		}
	}
	close(client.send)
}

// emit delivers a typed event to every client in the room.
func (h *hub) emit(room, eventType string, payload interface{}) {
	data, err := json.Marshal(payload)
	if err != nil {
		log.Printf("backendtest: encode %s payload: %v", eventType, err)
		return
	}
	encoded, err := json.Marshal(push.Event{Type: eventType, Data: data})
	if err != nil {
		log.Printf("backendtest: encode %s event: %v", eventType, err)
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for client := range h.rooms[room] {
		select {
		case client.send <- encoded:
		default:
			// Slow client; the real backend drops these too.
		}
	}
}

func (c *hubClient) writePump() {
	for payload := range c.send {
		if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
			return
		}
	}
}
