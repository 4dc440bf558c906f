package transport

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"go-pricetag-viewer/internal/logger"
	"go-pricetag-viewer/internal/observer"
)

const (
	writeWait      = 10 * time.Second
	clientBacklog  = 64
	readLimitBytes = 512
)

// LiveHub streams session events to websocket clients. It is an observer;
// slow clients lose events instead of stalling the session.
type LiveHub struct {
	upgrader websocket.Upgrader

	mu      sync.RWMutex
	clients map[*liveClient]struct{}
}

type liveClient struct {
	conn *websocket.Conn
	send chan []byte
}

// NewLiveHub creates a hub with no clients
func NewLiveHub() *LiveHub {
	return &LiveHub{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
		},
		clients: make(map[*liveClient]struct{}),
	}
}

// OnEvent fans the event out to every client
func (h *LiveHub) OnEvent(ctx context.Context, event observer.Event) {
	payload, err := json.Marshal(event)
	if err != nil {
		logger.WithError(err).Error("Failed to encode live event")
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for client := range h.clients {
		select {
		case client.send <- payload:
		default:
			logger.WithFields(logrus.Fields{
				"event_type": event.EventType,
				"remote":     client.conn.RemoteAddr().String(),
			}).Warn("Live client is behind, dropping event")
		}
	}
}

// GetObserverName returns the observer name
func (h *LiveHub) GetObserverName() string {
	return "live_hub"
}

// Len is the number of connected clients
func (h *LiveHub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Serve upgrades the request and streams events until the client goes away
func (h *LiveHub) Serve(c *gin.Context) {
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logger.WithError(err).WithField("ip", c.ClientIP()).Warn("Websocket upgrade failed")
		return
	}

	client := &liveClient{conn: conn, send: make(chan []byte, clientBacklog)}
	h.mu.Lock()
	h.clients[client] = struct{}{}
	h.mu.Unlock()

	logger.WithField("remote", conn.RemoteAddr().String()).Debug("Live client connected")

	go h.writeLoop(client)
	h.readLoop(client)
}

// readLoop discards client messages; it only notices the disconnect
func (h *LiveHub) readLoop(client *liveClient) {
	defer h.remove(client)
	client.conn.SetReadLimit(readLimitBytes)
	for {
		if _, _, err := client.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *LiveHub) writeLoop(client *liveClient) {
	defer client.conn.Close()
	for msg := range client.send {
		client.conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := client.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			return
		}
	}
	client.conn.SetWriteDeadline(time.Now().Add(writeWait))
	client.conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
}

func (h *LiveHub) remove(client *liveClient) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[client]; ok {
		delete(h.clients, client)
		close(client.send)
	}
}

// Close disconnects every client
func (h *LiveHub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for client := range h.clients {
		delete(h.clients, client)
		close(client.send)
	}
}
