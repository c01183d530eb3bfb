package websocket

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"playsync-service/internal/models"

	"github.com/google/uuid"
)

var (
	ErrClientDisconnected = fmt.Errorf("client disconnected")
)

// SessionStore is the shared per-user session state the hub coordinates:
// device set, active-device pointer and playback state. Implemented by
// session.Store (Redis) and by an in-memory fake in tests.
type SessionStore interface {
	AddDevice(ctx context.Context, userID string, device models.Device) (int64, error)
	RemoveDevice(ctx context.Context, userID, connectionID string) (*models.Device, error)
	ListDevices(ctx context.Context, userID string) ([]models.Device, error)
	SetActiveDevice(ctx context.Context, userID, deviceID string) error
	GetActiveDevice(ctx context.Context, userID string) (string, error)
	SetPlaybackState(ctx context.Context, userID string, state models.PlaybackState) error
	GetPlaybackState(ctx context.Context, userID string) (models.PlaybackState, error)
	Refresh(ctx context.Context, userID string) error
}

// EventPublisher emits session events for downstream consumers. Optional.
type EventPublisher interface {
	PublishDeviceEvent(ctx context.Context, eventType, userID string, device models.Device) error
	PublishPlaybackEvent(ctx context.Context, userID string, state models.PlaybackState) error
}

// SessionRecorder persists the device session audit trail. Optional.
type SessionRecorder interface {
	RecordConnect(ctx context.Context, userID string, device models.Device) error
	RecordDisconnect(ctx context.Context, userID, connectionID string) error
}

type ClientMessage struct {
	Client  *Client
	Message *Message
}

type Hub struct {
	// Registered clients
	clients map[*Client]bool

	// Connection lookup by connection ID
	connections map[string]*Client

	// Client lookup by user ID; the fan-out set for one user
	userClients map[string]map[*Client]bool

	// Register requests from the clients
	register chan *Client

	// Unregister requests from clients
	unregister chan *Client

	// Handle messages from clients
	handleMessage chan *ClientMessage

	store    SessionStore
	events   EventPublisher
	recorder SessionRecorder

	// Context for graceful shutdown
	ctx    context.Context
	cancel context.CancelFunc

	// Mutex for thread safety
	mu sync.RWMutex
}

func NewHub(store SessionStore) *Hub {
	ctx, cancel := context.WithCancel(context.Background())

	return &Hub{
		clients:       make(map[*Client]bool),
		connections:   make(map[string]*Client),
		userClients:   make(map[string]map[*Client]bool),
		register:      make(chan *Client),
		unregister:    make(chan *Client),
		handleMessage: make(chan *ClientMessage),
		store:         store,
		ctx:           ctx,
		cancel:        cancel,
	}
}

// SetEventPublisher wires an optional Kafka publisher. Call before Run.
func (h *Hub) SetEventPublisher(events EventPublisher) {
	h.events = events
}

// SetSessionRecorder wires the optional audit recorder. Call before Run.
func (h *Hub) SetSessionRecorder(recorder SessionRecorder) {
	h.recorder = recorder
}

func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.registerClient(client)

		case client := <-h.unregister:
			h.unregisterClient(client)

		case clientMsg := <-h.handleMessage:
			h.handleClientMessage(clientMsg)

		case <-h.ctx.Done():
			slog.Info("WebSocket hub shutting down")
			return
		}
	}
}

func (h *Hub) Stop() {
	h.cancel()
}

func (h *Hub) registerClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.clients[client] = true
	h.connections[client.id] = client

	if h.userClients[client.userID] == nil {
		h.userClients[client.userID] = make(map[*Client]bool)
	}
	h.userClients[client.userID][client] = true

	slog.Info("Client registered", "connectionID", client.id, "userID", client.userID)
}

// unregisterClient tears down a connection session. The device entry is
// removed the instant its connection closes; the active-device pointer is
// deliberately left untouched even when it referenced this device.
func (h *Hub) unregisterClient(client *Client) {
	h.mu.Lock()
	if _, ok := h.clients[client]; !ok {
		h.mu.Unlock()
		return
	}

	delete(h.clients, client)
	delete(h.connections, client.id)
	if clients, ok := h.userClients[client.userID]; ok {
		delete(clients, client)
		if len(clients) == 0 {
			delete(h.userClients, client.userID)
		}
	}
	h.mu.Unlock()

	client.close()
	client.closeSendChannel()
	// Bounded wait off the hub loop; logs when a pump fails to exit.
	go client.waitForGoroutines(10 * time.Second)

	removed, err := h.store.RemoveDevice(h.ctx, client.userID, client.id)
	if err != nil {
		slog.Error("Failed to remove device on disconnect", "connectionID", client.id, "userID", client.userID, "error", err)
	}

	if removed != nil {
		if h.recorder != nil {
			if err := h.recorder.RecordDisconnect(h.ctx, client.userID, client.id); err != nil {
				slog.Warn("Failed to record disconnect", "connectionID", client.id, "error", err)
			}
		}
		if h.events != nil {
			if err := h.events.PublishDeviceEvent(h.ctx, "device.removed", client.userID, *removed); err != nil {
				slog.Warn("Failed to publish device event", "connectionID", client.id, "error", err)
			}
		}
		h.broadcastDeviceList(client.userID)
	}

	slog.Info("Client unregistered", "connectionID", client.id, "userID", client.userID)
}

// connectionByID resolves a live connection, or nil.
func (h *Hub) connectionByID(connectionID string) *Client {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.connections[connectionID]
}

// userConnections snapshots the live connections of a user.
func (h *Hub) userConnections(userID string) []*Client {
	h.mu.RLock()
	defer h.mu.RUnlock()

	clients := make([]*Client, 0, len(h.userClients[userID]))
	for client := range h.userClients[userID] {
		clients = append(clients, client)
	}
	return clients
}

// pushToUser fans a message out to every connection of a user. The except
// connection, when non-nil, is skipped: the transport never echoes an
// update back to its originator.
func (h *Hub) pushToUser(userID string, message *Message, except *Client) {
	for _, client := range h.userConnections(userID) {
		if client == except {
			continue
		}
		if err := client.SendMessage(message); err != nil {
			slog.Debug("Failed to push message", "connectionID", client.id, "userID", userID, "type", message.Type, "error", err)
		}
	}
}

// broadcastDeviceList pushes the current device set and active pointer to
// every connection of the user. Store failures degrade to an empty list.
func (h *Hub) broadcastDeviceList(userID string) {
	devices, err := h.store.ListDevices(h.ctx, userID)
	if err != nil {
		slog.Error("Failed to list devices for broadcast", "userID", userID, "error", err)
		devices = []models.Device{}
	}

	activeID, err := h.store.GetActiveDevice(h.ctx, userID)
	if err != nil {
		slog.Error("Failed to read active device for broadcast", "userID", userID, "error", err)
		activeID = ""
	}

	msg := NewDeviceListMessage(uuid.New().String(), userID, devices, activeID)
	h.pushToUser(userID, msg, nil)
}
