package funnelreferences

import (
	"context"
	"crm/source/schemas"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	wsWriteTimeout = 5 * time.Second
	wsSendBuffer   = 64
)

type FunnelWSMessage struct {
	Action  string              `json:"action"`
	Event   schemas.FunnelEvent `json:"event"`
	Details string              `json:"details"`
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

type hubClient struct {
	conn *websocket.Conn
	send chan FunnelWSMessage
}

// Hub broadcasts funnel events to the connected kanban boards. Each board has
// its own writer; a board whose buffer is full or whose write fails is
// dropped, so Notify never waits on a slow connection.
type Hub struct {
	mu      sync.Mutex
	clients map[*hubClient]bool
}

func NewHub() *Hub {
	return &Hub{clients: make(map[*hubClient]bool)}
}

func (h *Hub) Notify(ctx context.Context, event schemas.FunnelEvent) error {
	h.broadcast(FunnelWSMessage{
		Action:  event.Action,
		Event:   event,
		Details: eventDetails(event.Action),
	})
	return nil
}

func (h *Hub) broadcast(msg FunnelWSMessage) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for client := range h.clients {
		select {
		case client.send <- msg:
		default:
			log.Printf("[WebSocket] Cliente lento descartado")
			h.unregister(client)
		}
	}
}

func (h *Hub) register(client *hubClient) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[client] = true
}

// unregister must be called with mu held.
func (h *Hub) unregister(client *hubClient) {
	if h.clients[client] {
		delete(h.clients, client)
		close(client.send)
	}
}

func (h *Hub) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// ServeHTTP upgrades the connection and keeps it registered until the board
// goes away. Messages sent by boards are ignored.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[WebSocket] Não foi possível fazer upgrade para websocket: %v", err)
		return
	}
	defer conn.Close()

	client := &hubClient{conn: conn, send: make(chan FunnelWSMessage, wsSendBuffer)}
	h.register(client)
	go client.writeLoop()

	for {
		if _, _, err := conn.NextReader(); err != nil {
			break
		}
	}

	h.mu.Lock()
	h.unregister(client)
	h.mu.Unlock()
}

// writeLoop is the only writer of the connection. It closes the connection
// once the client is unregistered or a write fails, which ends ServeHTTP's
// read loop.
func (c *hubClient) writeLoop() {
	defer c.conn.Close()
	for msg := range c.send {
		c.conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
		if err := c.conn.WriteJSON(msg); err != nil {
			return
		}
	}
}

func eventDetails(action string) string {
	switch action {
	case schemas.FUNNEL_EVENT_CREATE:
		return "Oportunidade adicionada ao funil"
	case schemas.FUNNEL_EVENT_MOVE:
		return "Oportunidade movida de estágio"
	case schemas.FUNNEL_EVENT_DELETE:
		return "Oportunidade removida do funil"
	}
	return ""
}
