package server

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"parkwhere_backend/internal/event"
)

func dialHub(t *testing.T, hub *Hub) *websocket.Conn {
	t.Helper()
	ts := httptest.NewServer(http.HandlerFunc(hub.HandleWS))
	t.Cleanup(ts.Close)

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(ts.URL, "http"), nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })

	// The handler registers the client just after the handshake; wait for
	// it before broadcasting.
	deadline := time.Now().Add(time.Second)
	for {
		hub.mu.Lock()
		n := len(hub.clients)
		hub.mu.Unlock()
		if n == 1 {
			return conn
		}
		if time.Now().After(deadline) {
			t.Fatal("client never registered with the hub")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

// Events reach the hub from whichever goroutine raised them: HTTP
// handlers, the MQTT handler, the availability poller. Writes to one
// connection must still be serialised. Run with -race.
func TestBroadcastFromManyGoroutines(t *testing.T) {
	hub := NewHub()
	conn := dialHub(t, hub)

	const writers, perWriter = 4, 25
	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < perWriter; j++ {
				hub.broadcast(wsMessage{Type: event.CarparkUpdate, Data: j})
			}
		}()
	}

	for i := 0; i < writers*perWriter; i++ {
		var msg wsMessage
		if err := conn.ReadJSON(&msg); err != nil {
			t.Fatalf("read message %d: %v", i, err)
		}
		if msg.Type != event.CarparkUpdate {
			t.Fatalf("message %d type = %q, want %q", i, msg.Type, event.CarparkUpdate)
		}
	}
	wg.Wait()
}
