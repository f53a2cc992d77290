// Package ws fans admission events out to websocket subscribers.
package ws

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/go-logr/logr"
	"github.com/gorilla/websocket"

	"api-rate-validator/internal/gate"
	"api-rate-validator/internal/logging"
)

// AllGroup receives every admission regardless of client.
const AllGroup = "*"

// ClientGroup is the group that receives admissions of one client.
func ClientGroup(clientID string) string {
	return "client:" + clientID
}

type Hub struct {
	clients    map[string]map[*websocket.Conn]bool
	broadcast  chan Message
	register   chan Subscription
	unregister chan Subscription
	done       chan struct{}
	stopOnce   sync.Once
	log        logr.Logger
}

type Message struct {
	Group string
	Data  []byte
}

type Subscription struct {
	Group string
	Conn  *websocket.Conn
}

// NewHub creates a hub whose broadcast queue holds up to buffer messages.
// Messages beyond that are dropped rather than blocking the sender.
func NewHub(buffer int, log logr.Logger) *Hub {
	if buffer <= 0 {
		buffer = 256
	}
	return &Hub{
		clients:    make(map[string]map[*websocket.Conn]bool),
		broadcast:  make(chan Message, buffer),
		register:   make(chan Subscription),
		unregister: make(chan Subscription),
		done:       make(chan struct{}),
		log:        log.WithName("ws"),
	}
}

// Run serves registrations and broadcasts until ctx is done, then closes
// every remaining connection.
func (h *Hub) Run(ctx context.Context) {
	defer h.stopOnce.Do(func() { close(h.done) })
	for {
		select {
		case <-ctx.Done():
			for group, conns := range h.clients {
				for c := range conns {
					_ = c.Close()
				}
				delete(h.clients, group)
			}
			return

		case s := <-h.register:
			if _, ok := h.clients[s.Group]; !ok {
				h.clients[s.Group] = make(map[*websocket.Conn]bool)
			}
			h.clients[s.Group][s.Conn] = true
			h.log.V(logging.VERBOSE).Info("client joined", "group", s.Group)

		case s := <-h.unregister:
			if conns, ok := h.clients[s.Group]; ok {
				if _, ok := conns[s.Conn]; ok {
					delete(conns, s.Conn)
					_ = s.Conn.Close()
					if len(conns) == 0 {
						delete(h.clients, s.Group)
					}
					h.log.V(logging.VERBOSE).Info("client left", "group", s.Group)
				}
			}

		case msg := <-h.broadcast:
			for c := range h.clients[msg.Group] {
				if err := c.WriteMessage(websocket.TextMessage, msg.Data); err != nil {
					h.log.V(logging.VERBOSE).Info("write failed, dropping client", "group", msg.Group, "err", err.Error())
					delete(h.clients[msg.Group], c)
					_ = c.Close()
				}
			}
		}
	}
}

// Broadcast queues data for group. It reports false when the queue is full
// or the hub has stopped.
func (h *Hub) Broadcast(group string, data []byte) bool {
	select {
	case <-h.done:
		return false
	default:
	}
	select {
	case h.broadcast <- Message{Group: group, Data: data}:
		return true
	default:
		return false
	}
}

func (h *Hub) Register(group string, conn *websocket.Conn) {
	select {
	case h.register <- Subscription{Group: group, Conn: conn}:
	case <-h.done:
		_ = conn.Close()
	}
}

func (h *Hub) Unregister(group string, conn *websocket.Conn) {
	select {
	case h.unregister <- Subscription{Group: group, Conn: conn}:
	case <-h.done:
	}
}

// Admitted publishes a to the all-clients group and to the client's group.
func (h *Hub) Admitted(_ context.Context, a gate.Admission) {
	data, err := json.Marshal(a)
	if err != nil {
		h.log.Error(err, "marshal admission")
		return
	}
	for _, group := range []string{AllGroup, ClientGroup(a.ClientID)} {
		if !h.Broadcast(group, data) {
			h.log.V(logging.VERBOSE).Info("admission event dropped", "group", group)
		}
	}
}

var _ gate.Observer = (*Hub)(nil)
