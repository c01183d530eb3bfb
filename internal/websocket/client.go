package websocket

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"context"

	"playsync-service/internal/models"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer. Sized for playback.sync
	// snapshots carrying a full queue.
	maxMessageSize = 16384
)

var Upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}

		if customOrigins := os.Getenv("ALLOWED_ORIGINS"); customOrigins != "" {
			for _, allowed := range strings.Split(customOrigins, ",") {
				if origin == strings.TrimSpace(allowed) {
					return true
				}
			}
		}

		// Allow localhost variations for development
		return strings.Contains(origin, "localhost") || strings.Contains(origin, "127.0.0.1")
	},
}

// Conn is the subset of *websocket.Conn the client uses. Tests substitute
// an in-memory implementation.
type Conn interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	SetReadLimit(limit int64)
	SetReadDeadline(t time.Time) error
	SetWriteDeadline(t time.Time) error
	SetPongHandler(h func(appData string) error)
	Close() error
}

// Client is one connection session: a long-lived bidirectional connection
// bound to an authenticated user for its whole lifetime.
type Client struct {
	id     string
	hub    *Hub
	conn   Conn
	send   chan []byte
	userID string

	// The device registered over this connection, nil until device.register
	device   *models.Device
	deviceMu sync.RWMutex

	// Serializes sends against closing the send channel
	sendMu sync.Mutex

	// Connection state management
	ctx        context.Context
	cancel     context.CancelFunc
	closed     int32 // atomic flag to track if client is closed
	sendClosed int32 // atomic flag to track if send channel is closed

	// Goroutine coordination
	wg sync.WaitGroup
}

func NewClient(hub *Hub, conn Conn, userID string) *Client {
	ctx, cancel := context.WithCancel(context.Background())

	return &Client{
		id:     uuid.New().String(),
		hub:    hub,
		conn:   conn,
		send:   make(chan []byte, 256),
		userID: userID,
		ctx:    ctx,
		cancel: cancel,
	}
}

func (c *Client) GetID() string {
	return c.id
}

func (c *Client) GetUserID() string {
	return c.userID
}

// Device returns the device registered over this connection, or nil.
func (c *Client) Device() *models.Device {
	c.deviceMu.RLock()
	defer c.deviceMu.RUnlock()
	return c.device
}

func (c *Client) setDevice(device *models.Device) {
	c.deviceMu.Lock()
	defer c.deviceMu.Unlock()
	c.device = device
}

// isClosed returns true if the client is closed
func (c *Client) isClosed() bool {
	return atomic.LoadInt32(&c.closed) == 1
}

// close marks the client as closed and cancels the context
func (c *Client) close() {
	if atomic.CompareAndSwapInt32(&c.closed, 0, 1) {
		c.cancel()
		slog.Debug("Client marked as closed", "connectionID", c.id, "userID", c.userID)
	}
}

// closeSendChannel safely closes the send channel. The sendClosed flag is
// raised before the close and every send checks it under sendMu, so no
// writer can hit the channel once it is closed.
func (c *Client) closeSendChannel() {
	if atomic.CompareAndSwapInt32(&c.sendClosed, 0, 1) {
		c.sendMu.Lock()
		close(c.send)
		c.sendMu.Unlock()
		slog.Debug("Send channel closed", "connectionID", c.id, "userID", c.userID)
	}
}

// waitForGoroutines waits for all client goroutines to finish with timeout
func (c *Client) waitForGoroutines(timeout time.Duration) {
	done := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		slog.Debug("All goroutines finished", "connectionID", c.id, "userID", c.userID)
	case <-time.After(timeout):
		slog.Warn("Timeout waiting for goroutines to finish", "connectionID", c.id, "userID", c.userID, "timeout", timeout)
	}
}

func (c *Client) readPump() {
	c.wg.Add(1)
	defer func() {
		c.wg.Done()
		c.close()

		select {
		case c.hub.unregister <- c:
			slog.Debug("Client unregister request sent", "connectionID", c.id, "userID", c.userID)
		case <-time.After(5 * time.Second):
			slog.Warn("Timeout sending unregister request", "connectionID", c.id, "userID", c.userID)
		}

		if err := c.conn.Close(); err != nil {
			slog.Debug("Error closing connection", "connectionID", c.id, "userID", c.userID, "error", err)
		}
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		if c.isClosed() {
			return websocket.ErrCloseSent
		}
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		select {
		case <-c.ctx.Done():
			return
		default:
		}

		_, messageBytes, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				slog.Error("WebSocket error", "connectionID", c.id, "userID", c.userID, "error", err)
			} else {
				slog.Debug("WebSocket connection closed", "connectionID", c.id, "userID", c.userID, "error", err)
			}
			break
		}

		var msg Message
		if err := json.Unmarshal(messageBytes, &msg); err != nil {
			slog.Error("Failed to unmarshal message", "connectionID", c.id, "userID", c.userID, "error", err)
			c.sendError(ErrCodeInvalidMessage, "Invalid message format")
			continue
		}

		// The authenticated identity always wins over whatever the
		// client put in the envelope.
		msg.UserID = c.userID
		msg.Timestamp = time.Now().Unix()
		if msg.ID == "" {
			msg.ID = uuid.New().String()
		}

		select {
		case c.hub.handleMessage <- &ClientMessage{Client: c, Message: &msg}:
		case <-time.After(5 * time.Second):
			slog.Warn("Timeout sending message to hub", "connectionID", c.id, "userID", c.userID)
		case <-c.ctx.Done():
			return
		}
	}
}

func (c *Client) writePump() {
	c.wg.Add(1)
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		c.wg.Done()
		ticker.Stop()
		slog.Debug("WritePump finished", "connectionID", c.id, "userID", c.userID)
	}()

	for {
		select {
		case message, ok := <-c.send:
			if c.isClosed() {
				return
			}

			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				slog.Debug("Error writing message", "connectionID", c.id, "userID", c.userID, "error", err)
				return
			}

		case <-ticker.C:
			if c.isClosed() {
				return
			}

			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				slog.Debug("Error sending ping", "connectionID", c.id, "userID", c.userID, "error", err)
				return
			}

		case <-c.ctx.Done():
			return
		}
	}
}

// SendMessage queues a message for delivery over this connection. Delivery
// is best-effort: a closed client or a full buffer drops the message and
// reports ErrClientDisconnected. A full buffer also tears the client down,
// and the client must stay safe to push to afterwards since the hub may
// still hold it in a fan-out set.
func (c *Client) SendMessage(message *Message) error {
	if c.isClosed() {
		return ErrClientDisconnected
	}

	data, err := json.Marshal(message)
	if err != nil {
		return err
	}

	c.sendMu.Lock()
	if atomic.LoadInt32(&c.sendClosed) == 1 {
		c.sendMu.Unlock()
		return ErrClientDisconnected
	}

	select {
	case c.send <- data:
		c.sendMu.Unlock()
		return nil
	case <-c.ctx.Done():
		c.sendMu.Unlock()
		return ErrClientDisconnected
	default:
		c.sendMu.Unlock()
		// Send buffer is full, mark the client closed before releasing
		// the channel so later pushes fail fast instead of hitting a
		// closed channel.
		slog.Warn("Send buffer full, closing client", "connectionID", c.id, "userID", c.userID)
		c.close()
		c.closeSendChannel()
		return ErrClientDisconnected
	}
}

func (c *Client) sendError(code, message string) {
	errorMsg := NewErrorMessage(uuid.New().String(), c.userID, code, message)
	c.SendMessage(errorMsg)
}

// ServeWS upgrades an authenticated HTTP request to a websocket connection
// session and hands it to the hub.
func ServeWS(hub *Hub, w http.ResponseWriter, r *http.Request, userID string) {
	conn, err := Upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Error("Failed to upgrade WebSocket connection", "userID", userID, "error", err)
		return
	}

	client := NewClient(hub, conn, userID)
	slog.Info("New WebSocket connection established", "connectionID", client.id, "userID", client.userID)

	select {
	case client.hub.register <- client:
	case <-time.After(5 * time.Second):
		slog.Error("Timeout sending registration request", "connectionID", client.id, "userID", client.userID)
		conn.Close()
		return
	}

	go client.writePump()
	go client.readPump()
}
