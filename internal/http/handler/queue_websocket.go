package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	"github.com/sirupsen/logrus"
)

const (
	pongWait     = 60 * time.Second
	pingInterval = 20 * time.Second
	writeWait    = 5 * time.Second
)

var errClientClosed = errors.New("websocket client closed")

/*
|--------------------------------------------------------------------------
| Message Structure
|--------------------------------------------------------------------------
*/

// QueueSignal tells a display to re-fetch the snapshot. It carries no state.
type QueueSignal struct {
	Type      string `json:"type"`
	QueueID   string `json:"queue_id"`
	Timestamp string `json:"timestamp"`
}

func signalMessage(msgType, queueID string) []byte {
	msg, _ := json.Marshal(QueueSignal{
		Type:      msgType,
		QueueID:   queueID,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
	return msg
}

/*
|--------------------------------------------------------------------------
| WebSocket Client Registry
|--------------------------------------------------------------------------
*/

type clientInfo struct {
	conn      *websocket.Conn
	writeMux  sync.Mutex
	closeChan chan struct{}
	closed    bool
	id        string
	queueID   string
}

type clientRegistry struct {
	mu      sync.RWMutex
	clients map[string]*clientInfo
	counter uint64
}

func newClientRegistry() *clientRegistry {
	return &clientRegistry{clients: make(map[string]*clientInfo)}
}

func (r *clientRegistry) register(c *websocket.Conn, queueID string) (*clientInfo, int) {
	id := atomic.AddUint64(&r.counter, 1)
	client := &clientInfo{
		conn:      c,
		closeChan: make(chan struct{}),
		id:        fmt.Sprintf("client-%d", id),
		queueID:   queueID,
	}

	r.mu.Lock()
	r.clients[client.id] = client
	total := len(r.clients)
	r.mu.Unlock()
	return client, total
}

func (r *clientRegistry) unregister(client *clientInfo) int {
	r.mu.Lock()
	delete(r.clients, client.id)
	total := len(r.clients)
	r.mu.Unlock()

	client.writeMux.Lock()
	if !client.closed {
		client.closed = true
		close(client.closeChan)
	}
	client.writeMux.Unlock()
	return total
}

func (r *clientRegistry) count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.clients)
}

/*
|--------------------------------------------------------------------------
| WebSocket Handler
|--------------------------------------------------------------------------
*/

// UpgradeQueueSocket rejects plain HTTP requests and unknown queues before
// the connection is upgraded.
func (h *Handler) UpgradeQueueSocket(c *fiber.Ctx) error {
	if !websocket.IsWebSocketUpgrade(c) {
		return fiber.ErrUpgradeRequired
	}
	if _, err := h.engine.GetQueue(c.UserContext(), c.Params("id")); err != nil {
		return h.fail(c, err)
	}
	return c.Next()
}

// QueueWebSocket - GET /ws/queues/:id
// Pushes a queue_changed signal whenever the queue mutates.
func (h *Handler) QueueWebSocket(c *websocket.Conn) {
	queueID := c.Params("id")
	client, total := h.clients.register(c, queueID)
	log := h.log.WithFields(logrus.Fields{"client": client.id, "queue_id": queueID})
	log.WithField("clients", total).Info("websocket connected")

	sub := h.broker.Subscribe(queueID)
	defer func() {
		h.broker.Unsubscribe(sub)
		remaining := h.clients.unregister(client)
		_ = c.Close()
		log.WithField("clients", remaining).Info("websocket disconnected")
	}()

	_ = c.SetReadDeadline(time.Now().Add(pongWait))
	c.SetPongHandler(func(string) error {
		return c.SetReadDeadline(time.Now().Add(pongWait))
	})

	if err := writeToClient(client, signalMessage("subscribed", queueID)); err != nil {
		log.WithError(err).Debug("initial write failed")
		return
	}

	go h.pumpSignals(client, sub.C, log)

	// Read loop. Clients only send pongs and close frames.
	for {
		if _, _, err := c.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err,
				websocket.CloseGoingAway,
				websocket.CloseAbnormalClosure,
				websocket.CloseNormalClosure,
			) {
				log.WithError(err).Warn("websocket unexpected close")
			}
			return
		}
	}
}

// pumpSignals forwards broker signals and keeps the connection alive with pings.
func (h *Handler) pumpSignals(client *clientInfo, signals <-chan struct{}, log logrus.FieldLogger) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-signals:
			if err := writeToClient(client, signalMessage("queue_changed", client.queueID)); err != nil {
				log.WithError(err).Debug("signal write failed")
				_ = client.conn.Close()
				return
			}
		case <-ticker.C:
			client.writeMux.Lock()
			if client.closed {
				client.writeMux.Unlock()
				return
			}
			_ = client.conn.SetWriteDeadline(time.Now().Add(writeWait))
			err := client.conn.WriteMessage(websocket.PingMessage, nil)
			client.writeMux.Unlock()
			if err != nil {
				log.WithError(err).Debug("ping failed")
				_ = client.conn.Close()
				return
			}
		case <-client.closeChan:
			return
		}
	}
}

func writeToClient(c *clientInfo, message []byte) error {
	c.writeMux.Lock()
	defer c.writeMux.Unlock()

	if c.closed {
		return errClientClosed
	}
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteMessage(websocket.TextMessage, message)
}
