package controllers

import (
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"marketsync/scheduler"
)

const (
	maxWebSocketClients   = 100
	webSocketWriteTimeout = 10 * time.Second
	webSocketPongTimeout  = 60 * time.Second
	webSocketPingInterval = 30 * time.Second
)

// statusMessage is one frame pushed to websocket subscribers
type statusMessage struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
	Time string      `json:"time"`
}

// wsClient is one connected websocket subscriber
type wsClient struct {
	conn *websocket.Conn
	send chan []byte
}

// StatusHub streams task state transitions to websocket clients. It hooks
// into the scheduler's state listener and fans updates out to every client.
type StatusHub struct {
	scheduler  *scheduler.Scheduler
	clients    map[*wsClient]bool
	broadcast  chan statusMessage
	register   chan *wsClient
	unregister chan *wsClient
	shutdown   chan struct{}
	mu         sync.RWMutex
	upgrader   websocket.Upgrader
}

// NewStatusHub creates the hub and subscribes it to scheduler state changes
func NewStatusHub(s *scheduler.Scheduler) *StatusHub {
	hub := &StatusHub{
		scheduler:  s,
		clients:    make(map[*wsClient]bool),
		broadcast:  make(chan statusMessage, 256),
		register:   make(chan *wsClient),
		unregister: make(chan *wsClient),
		shutdown:   make(chan struct{}),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
	}

	s.SetStateListener(func(name string, state scheduler.TaskState) {
		msg := statusMessage{
			Type: "task_state",
			Data: gin.H{"name": name, "state": state},
			Time: time.Now().UTC().Format(time.RFC3339),
		}
		select {
		case hub.broadcast <- msg:
		default:
			// drop the update rather than block a state transition
		}
	})

	go hub.run()
	return hub
}

// Shutdown closes every client connection and stops the hub
func (h *StatusHub) Shutdown() {
	close(h.shutdown)

	h.mu.Lock()
	for client := range h.clients {
		close(client.send)
		client.conn.Close()
	}
	h.clients = make(map[*wsClient]bool)
	h.mu.Unlock()

	log.Println("Status hub shutdown complete")
}

// run is the hub loop: register, unregister, broadcast
func (h *StatusHub) run() {
	for {
		select {
		case <-h.shutdown:
			return

		case client := <-h.register:
			h.mu.Lock()
			if len(h.clients) >= maxWebSocketClients {
				h.mu.Unlock()
				client.conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseTryAgainLater, "Server at capacity"))
				client.conn.Close()
				log.Printf("WebSocket client rejected: max clients reached (%d)", maxWebSocketClients)
				continue
			}
			h.clients[client] = true
			clientCount := len(h.clients)
			h.mu.Unlock()
			log.Printf("WebSocket client connected. Total clients: %d", clientCount)

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
			}
			clientCount := len(h.clients)
			h.mu.Unlock()
			log.Printf("WebSocket client disconnected. Total clients: %d", clientCount)

		case message := <-h.broadcast:
			data, err := json.Marshal(message)
			if err != nil {
				log.Printf("Error marshaling broadcast message: %v", err)
				continue
			}

			h.mu.Lock()
			deadClients := make([]*wsClient, 0)
			for client := range h.clients {
				select {
				case client.send <- data:
				default:
					// client buffer full, mark for removal
					deadClients = append(deadClients, client)
				}
			}
			for _, client := range deadClients {
				delete(h.clients, client)
				close(client.send)
			}
			h.mu.Unlock()
		}
	}
}

// HandleWebSocket upgrades the connection and attaches it to the hub
// GET /api/v1/ws/status
func (h *StatusHub) HandleWebSocket(c *gin.Context) {
	h.mu.RLock()
	atCapacity := len(h.clients) >= maxWebSocketClients
	h.mu.RUnlock()

	if atCapacity {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"error":   "at_capacity",
			"message": "Server at capacity",
		})
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Printf("WebSocket upgrade error: %v", err)
		return
	}

	client := &wsClient{
		conn: conn,
		send: make(chan []byte, 256),
	}

	h.register <- client

	go client.writePump()
	go client.readPump(h)

	// greet the new client with a full snapshot
	snapshot := statusMessage{
		Type: "snapshot",
		Data: gin.H{"task_states": h.scheduler.StatesSnapshot()},
		Time: time.Now().UTC().Format(time.RFC3339),
	}
	if data, err := json.Marshal(snapshot); err == nil {
		select {
		case client.send <- data:
		default:
		}
	}
}

// writePump writes messages and keepalive pings to the connection
func (c *wsClient) writePump() {
	ticker := time.NewTicker(webSocketPingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(webSocketWriteTimeout))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(webSocketWriteTimeout))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump drains the connection so pings and close frames are processed
func (c *wsClient) readPump(h *StatusHub) {
	defer func() {
		h.unregister <- c
		c.conn.Close()
	}()

	c.conn.SetReadLimit(512)
	c.conn.SetReadDeadline(time.Now().Add(webSocketPongTimeout))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(webSocketPongTimeout))
		return nil
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("WebSocket read error: %v", err)
			}
			break
		}
	}
}
