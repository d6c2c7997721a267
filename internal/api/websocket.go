package api

import (
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"grimm.is/holdover/internal/logging"
)

// Topics pushed to WebSocket clients.
const (
	TopicStatus      = "status"
	TopicBadge       = "badge"
	TopicTransitions = "transitions"
	TopicSweeps      = "sweeps"
)

const wsWriteTimeout = 5 * time.Second

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     sameOrigin,
}

// sameOrigin allows requests without an Origin header, loopback origins and
// origins naming the requested host.
func sameOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	if strings.Contains(origin, "://localhost:") || strings.Contains(origin, "://127.0.0.1:") {
		return true
	}
	for _, scheme := range []string{"http://", "https://"} {
		if rest, ok := strings.CutPrefix(origin, scheme); ok {
			return rest == r.Host
		}
	}
	return false
}

// WSMessage is a topic-based message sent to clients
type WSMessage struct {
	Topic string `json:"topic"`
	Data  any    `json:"data"`
}

type wsClient struct {
	conn *websocket.Conn
	send chan []byte

	mu     sync.RWMutex
	topics map[string]bool
}

func (c *wsClient) subscribed(topic string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.topics[topic]
}

func (c *wsClient) setTopics(topics []string, on bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, t := range topics {
		if on {
			c.topics[t] = true
		} else {
			delete(c.topics, t)
		}
	}
}

// WSManager fans published messages out to subscribed WebSocket clients.
// New clients are subscribed to the badge topic and receive one status
// snapshot on connect.
type WSManager struct {
	mu       sync.RWMutex
	clients  map[*wsClient]struct{}
	closed   bool
	snapshot func() any
}

// NewWSManager creates a manager. snapshot may be nil.
func NewWSManager(snapshot func() any) *WSManager {
	return &WSManager{
		clients:  make(map[*wsClient]struct{}),
		snapshot: snapshot,
	}
}

// Publish sends a message to all clients subscribed to topic. Status
// messages go to everyone. Slow clients miss messages rather than block.
func (m *WSManager) Publish(topic string, data any) {
	msg, err := json.Marshal(WSMessage{Topic: topic, Data: data})
	if err != nil {
		logging.APILog("error", "ws marshal %s: %v", topic, err)
		return
	}

	m.mu.RLock()
	defer m.mu.RUnlock()
	for c := range m.clients {
		if topic == TopicStatus || c.subscribed(topic) {
			select {
			case c.send <- msg:
			default:
			}
		}
	}
}

// ClientCount returns the number of connected clients.
func (m *WSManager) ClientCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.clients)
}

// Close disconnects every client and refuses new ones.
func (m *WSManager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	for c := range m.clients {
		delete(m.clients, c)
		close(c.send)
	}
}

func (m *WSManager) register(c *wsClient) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return false
	}
	m.clients[c] = struct{}{}
	return true
}

func (m *WSManager) unregister(c *wsClient) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.clients[c]; ok {
		delete(m.clients, c)
		close(c.send)
	}
}

// ServeHTTP upgrades the request and serves one client until it disconnects.
func (m *WSManager) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logging.APILog("warn", "ws upgrade failed: %v", err)
		return
	}

	c := &wsClient{
		conn:   conn,
		send:   make(chan []byte, 64),
		topics: map[string]bool{TopicBadge: true},
	}
	if m.snapshot != nil {
		if msg, err := json.Marshal(WSMessage{Topic: TopicStatus, Data: m.snapshot()}); err == nil {
			c.send <- msg
		}
	}
	if !m.register(c) {
		conn.Close()
		return
	}

	go c.writePump()
	c.readPump(m)
}

// readPump applies subscribe and unsubscribe requests until the connection drops.
func (c *wsClient) readPump(m *WSManager) {
	defer m.unregister(c)

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			return
		}

		var msg struct {
			Action string   `json:"action"`
			Topics []string `json:"topics"`
		}
		if err := json.Unmarshal(message, &msg); err != nil {
			continue
		}
		switch msg.Action {
		case "subscribe":
			c.setTopics(msg.Topics, true)
		case "unsubscribe":
			c.setTopics(msg.Topics, false)
		}
	}
}

// writePump drains the send queue and closes the connection when it is closed.
func (c *wsClient) writePump() {
	defer c.conn.Close()

	for message := range c.send {
		c.conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
		if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
			return
		}
	}
	c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
}
