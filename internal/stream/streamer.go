// Package stream pushes promise lifecycle events to WebSocket clients so
// dashboards can follow deposits, verdicts and resolutions live.
package stream

import (
	"log"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/selfpromise/backend/internal/events"
)

// Streamer manages WebSocket connections and fans bus events out to them.
type Streamer struct {
	bus        *events.Bus
	clients    map[*websocket.Conn]bool
	broadcast  chan *events.Event
	register   chan *websocket.Conn
	unregister chan *websocket.Conn
	mu         sync.RWMutex
	upgrader   websocket.Upgrader
}

// NewStreamer creates a streamer over the given event bus.
func NewStreamer(bus *events.Bus) *Streamer {
	return &Streamer{
		bus:        bus,
		clients:    make(map[*websocket.Conn]bool),
		broadcast:  make(chan *events.Event, 256),
		register:   make(chan *websocket.Conn),
		unregister: make(chan *websocket.Conn),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true // Allow all origins for development
			},
		},
	}
}

// Run subscribes to all bus events and serves the hub loop. Call in a
// goroutine.
func (s *Streamer) Run() {
	sub := s.bus.Subscribe()
	defer s.bus.Unsubscribe(sub)

	for {
		select {
		case client := <-s.register:
			s.mu.Lock()
			s.clients[client] = true
			n := len(s.clients)
			s.mu.Unlock()
			log.Printf("[Stream] client connected (total: %d)", n)

		case client := <-s.unregister:
			s.mu.Lock()
			if _, ok := s.clients[client]; ok {
				delete(s.clients, client)
				client.Close()
			}
			n := len(s.clients)
			s.mu.Unlock()
			log.Printf("[Stream] client disconnected (total: %d)", n)

		case event := <-sub:
			s.deliver(event)

		case event := <-s.broadcast:
			s.deliver(event)
		}
	}
}

func (s *Streamer) deliver(event *events.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for client := range s.clients {
		if err := client.WriteJSON(event); err != nil {
			log.Printf("[Stream] write error: %v", err)
			client.Close()
			delete(s.clients, client)
		}
	}
}

// HandleWebSocket upgrades the connection and registers the client.
func (s *Streamer) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[Stream] upgrade error: %v", err)
		return
	}

	s.register <- conn

	// Drain client reads until the peer disconnects.
	go func() {
		defer func() { s.unregister <- conn }()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				break
			}
		}
	}()
}

// Broadcast pushes an event directly to connected clients, bypassing the bus.
func (s *Streamer) Broadcast(event *events.Event) {
	s.broadcast <- event
}

// Statistics reports hub state for the health endpoint.
func (s *Streamer) Statistics() map[string]interface{} {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return map[string]interface{}{
		"connected_clients": len(s.clients),
		"broadcast_queue":   len(s.broadcast),
	}
}
