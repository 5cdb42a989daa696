package websocket

import (
	"context"
	"log"
	"sync"

	"github.com/anjiri1684/affiliate_ledger/services"
	"github.com/google/uuid"
)

// Conn is the part of a websocket connection the hub writes to.
type Conn interface {
	WriteJSON(v interface{}) error
	Close() error
}

type Client struct {
	AffiliateID uuid.UUID
	Conn        Conn
}

// Hub pushes ledger events to the dashboards an affiliate has open.
type Hub struct {
	register   chan *Client
	unregister chan *Client
	broadcast  chan services.Event

	mu      sync.RWMutex
	clients map[uuid.UUID]map[Conn]bool
}

func NewHub() *Hub {
	return &Hub{
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan services.Event, 256),
		clients:    make(map[uuid.UUID]map[Conn]bool),
	}
}

func (h *Hub) Register(c *Client)   { h.register <- c }
func (h *Hub) Unregister(c *Client) { h.unregister <- c }

// Publish queues the event for delivery. A full queue drops the event.
func (h *Hub) Publish(_ context.Context, e services.Event) error {
	select {
	case h.broadcast <- e:
	default:
		log.Printf("⚠️ Websocket hub queue full, dropping %s for affiliate %s", e.Type, e.AffiliateID)
	}
	return nil
}

func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			h.closeAll()
			return
		case client := <-h.register:
			h.mu.Lock()
			if h.clients[client.AffiliateID] == nil {
				h.clients[client.AffiliateID] = make(map[Conn]bool)
			}
			h.clients[client.AffiliateID][client.Conn] = true
			h.mu.Unlock()
			log.Printf("Client registered: %s", client.AffiliateID)
		case client := <-h.unregister:
			h.remove(client.AffiliateID, client.Conn)
			log.Printf("Client unregistered: %s", client.AffiliateID)
		case event := <-h.broadcast:
			h.deliver(event)
		}
	}
}

func (h *Hub) deliver(e services.Event) {
	h.mu.RLock()
	conns := make([]Conn, 0, len(h.clients[e.AffiliateID]))
	for conn := range h.clients[e.AffiliateID] {
		conns = append(conns, conn)
	}
	h.mu.RUnlock()

	for _, conn := range conns {
		if err := conn.WriteJSON(e); err != nil {
			log.Printf("Error sending event to affiliate %s: %v", e.AffiliateID, err)
			conn.Close()
			h.remove(e.AffiliateID, conn)
		}
	}
}

func (h *Hub) remove(affiliateID uuid.UUID, conn Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if conns, ok := h.clients[affiliateID]; ok {
		delete(conns, conn)
		if len(conns) == 0 {
			delete(h.clients, affiliateID)
		}
	}
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for id, conns := range h.clients {
		for conn := range conns {
			conn.Close()
		}
		delete(h.clients, id)
	}
}

// Connections reports how many sockets are open for an affiliate.
func (h *Hub) Connections(affiliateID uuid.UUID) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[affiliateID])
}
