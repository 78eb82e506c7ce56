package server

import (
	"log"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"

	"parkwhere_backend/internal/carpark"
	"parkwhere_backend/internal/event"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// wsMessage is what renderers receive: the event kind and its payload.
type wsMessage struct {
	Type event.Kind `json:"type"`
	Data any        `json:"data"`
}

// wsClient pairs a connection with a write mutex. Events arrive on
// whichever goroutine raised them (HTTP handler, MQTT, poller), and
// gorilla/websocket allows only one concurrent writer per connection.
type wsClient struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (c *wsClient) write(msg wsMessage) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.WriteJSON(msg)
}

// Hub fans carpark-update and nearby-list-update events out to every
// connected websocket client.
type Hub struct {
	mu      sync.Mutex
	clients map[*wsClient]struct{}
}

func NewHub() *Hub {
	return &Hub{clients: make(map[*wsClient]struct{})}
}

// Bind attaches the hub to the registry's nearby-list events and to every
// seeded carpark's update events. Carparks live for the whole session, so
// attaching once after seeding covers everything.
func (h *Hub) Bind(reg *carpark.Registry) {
	reg.Attach(h, event.NearbyListUpdate, func(payload any) {
		list, ok := payload.([]*carpark.Carpark)
		if !ok {
			return
		}
		h.broadcast(wsMessage{Type: event.NearbyListUpdate, Data: toNearbyItems(reg, list)})
	})
	for _, c := range reg.All() {
		c.Attach(h, event.CarparkUpdate, func(payload any) {
			cp, ok := payload.(*carpark.Carpark)
			if !ok {
				return
			}
			h.broadcast(wsMessage{Type: event.CarparkUpdate, Data: reg.SnapshotRecord(cp)})
		})
	}
}

// HandleWS upgrades the connection and keeps it registered until the
// client goes away.
func (h *Hub) HandleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("ws: error upgrading to websocket: %v", err)
		return
	}
	client := &wsClient{conn: conn}

	h.mu.Lock()
	h.clients[client] = struct{}{}
	h.mu.Unlock()

	// Clients never send anything meaningful; the read loop only notices
	// the close.
	go func() {
		defer h.drop(client)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}

func (h *Hub) drop(client *wsClient) {
	h.mu.Lock()
	delete(h.clients, client)
	h.mu.Unlock()
	client.conn.Close()
}

func (h *Hub) broadcast(msg wsMessage) {
	h.mu.Lock()
	clients := make([]*wsClient, 0, len(h.clients))
	for client := range h.clients {
		clients = append(clients, client)
	}
	h.mu.Unlock()

	for _, client := range clients {
		if err := client.write(msg); err != nil {
			log.Printf("ws: error writing JSON to websocket: %v", err)
			h.drop(client)
		}
	}
}
