package websocket

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/fastsplits/xc-engine/internal/models"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // Admin surface sits behind the gateway
	},
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

// Client represents a connected admin client
type Client struct {
	CourseID *uuid.UUID // nil means all courses
	Conn     *websocket.Conn
	Send     chan []byte
	Hub      *LifecycleHub
}

// LifecycleEvent is the message pushed when a recommendation changes state
type LifecycleEvent struct {
	Type           string                `json:"type"` // "recommendation_pending", "recommendation_applied", "recommendation_dismissed"
	Recommendation models.Recommendation `json:"recommendation"`
	Timestamp      time.Time             `json:"timestamp"`
}

// LifecycleHub maintains active WebSocket connections and fans out
// recommendation lifecycle events
type LifecycleHub struct {
	clients    map[*Client]bool
	broadcast  chan LifecycleEvent
	register   chan *Client
	unregister chan *Client
	logger     *logrus.Logger
	mutex      sync.RWMutex
}

// NewLifecycleHub creates a new lifecycle event hub
func NewLifecycleHub(logger *logrus.Logger) *LifecycleHub {
	return &LifecycleHub{
		clients:    make(map[*Client]bool),
		broadcast:  make(chan LifecycleEvent, 256),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		logger:     logger,
	}
}

// Run starts the hub loop
func (h *LifecycleHub) Run() {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case client := <-h.register:
			h.registerClient(client)
		case client := <-h.unregister:
			h.unregisterClient(client)
		case event := <-h.broadcast:
			h.broadcastEvent(event)
		case <-ticker.C:
			h.pingClients()
		}
	}
}

// BroadcastLifecycleEvent implements services.EventBroadcaster. Drops the
// event if the broadcast buffer is full rather than blocking the lifecycle.
func (h *LifecycleHub) BroadcastLifecycleEvent(eventType string, rec models.Recommendation) {
	event := LifecycleEvent{
		Type:           eventType,
		Recommendation: rec,
		Timestamp:      time.Now().UTC(),
	}
	select {
	case h.broadcast <- event:
	default:
		h.logger.WithField("event_type", eventType).Warn("Lifecycle event dropped, broadcast buffer full")
	}
}

func (h *LifecycleHub) registerClient(client *Client) {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	h.clients[client] = true
	h.logger.WithField("total_clients", len(h.clients)).Info("Lifecycle WebSocket client connected")
}

func (h *LifecycleHub) unregisterClient(client *Client) {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	if _, ok := h.clients[client]; ok {
		delete(h.clients, client)
		close(client.Send)
	}
}

func (h *LifecycleHub) broadcastEvent(event LifecycleEvent) {
	data, err := json.Marshal(event)
	if err != nil {
		h.logger.WithError(err).Error("Failed to marshal lifecycle event")
		return
	}

	h.mutex.RLock()
	defer h.mutex.RUnlock()

	for client := range h.clients {
		if client.CourseID != nil && *client.CourseID != event.Recommendation.CourseID {
			continue
		}
		select {
		case client.Send <- data:
		default:
			// Slow client, let the write pump time it out
		}
	}
}

func (h *LifecycleHub) pingClients() {
	h.mutex.RLock()
	defer h.mutex.RUnlock()

	for client := range h.clients {
		if err := client.Conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(10*time.Second)); err != nil {
			h.logger.WithError(err).Debug("Failed to ping lifecycle client")
		}
	}
}

// HandleWebSocket upgrades an HTTP request into a lifecycle event stream.
// An optional course_id query parameter narrows events to one course.
func (h *LifecycleHub) HandleWebSocket(c *gin.Context) {
	var courseID *uuid.UUID
	if raw := c.Query("course_id"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid course_id"})
			return
		}
		courseID = &id
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.WithError(err).Error("Failed to upgrade WebSocket connection")
		return
	}

	client := &Client{
		CourseID: courseID,
		Conn:     conn,
		Send:     make(chan []byte, 64),
		Hub:      h,
	}
	h.register <- client

	go client.writePump()
	go client.readPump()
}

func (c *Client) writePump() {
	defer c.Conn.Close()
	for data := range c.Send {
		c.Conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
		if err := c.Conn.WriteMessage(websocket.TextMessage, data); err != nil {
			return
		}
	}
}

func (c *Client) readPump() {
	defer func() {
		c.Hub.unregister <- c
		c.Conn.Close()
	}()
	c.Conn.SetReadLimit(512)
	for {
		if _, _, err := c.Conn.ReadMessage(); err != nil {
			return
		}
	}
}
