package websocket

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"playsync-service/internal/models"

	"github.com/redis/go-redis/v9"
)

// mockConn implements the Conn interface for testing
type mockConn struct {
	mu       sync.Mutex
	messages [][]byte
	closed   bool
}

func (m *mockConn) WriteMessage(messageType int, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosedConnection
	}
	m.messages = append(m.messages, data)
	return nil
}

func (m *mockConn) ReadMessage() (messageType int, p []byte, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return 0, nil, ErrClosedConnection
	}
	return 1, []byte(`{"type":"playback.get"}`), nil
}

func (m *mockConn) SetReadLimit(limit int64) {}

func (m *mockConn) SetReadDeadline(t time.Time) error { return nil }

func (m *mockConn) SetWriteDeadline(t time.Time) error { return nil }

func (m *mockConn) SetPongHandler(h func(string) error) {}

func (m *mockConn) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

// ErrClosedConnection is returned when attempting to use a closed connection
var ErrClosedConnection = &mockError{"connection closed"}

type mockError struct {
	message string
}

func (e *mockError) Error() string {
	return e.message
}

// fakeStore is an in-memory SessionStore used to exercise the hub without
// Redis. Write counters let tests assert that a dropped command never
// touched the state.
type fakeStore struct {
	mu      sync.Mutex
	devices map[string]map[string]models.Device
	active  map[string]string
	states  map[string]models.PlaybackState

	setStateCalls int
	listErr       error
	getStateErr   error
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		devices: make(map[string]map[string]models.Device),
		active:  make(map[string]string),
		states:  make(map[string]models.PlaybackState),
	}
}

func (f *fakeStore) AddDevice(_ context.Context, userID string, device models.Device) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.devices[userID] == nil {
		f.devices[userID] = make(map[string]models.Device)
	}
	f.devices[userID][device.ConnectionID] = device
	return int64(len(f.devices[userID])), nil
}

func (f *fakeStore) RemoveDevice(_ context.Context, userID, connectionID string) (*models.Device, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	device, ok := f.devices[userID][connectionID]
	if !ok {
		return nil, nil
	}
	delete(f.devices[userID], connectionID)
	return &device, nil
}

func (f *fakeStore) ListDevices(_ context.Context, userID string) ([]models.Device, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listErr != nil {
		return nil, f.listErr
	}
	devices := make([]models.Device, 0, len(f.devices[userID]))
	for _, device := range f.devices[userID] {
		devices = append(devices, device)
	}
	return devices, nil
}

func (f *fakeStore) SetActiveDevice(_ context.Context, userID, deviceID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.active[userID] = deviceID
	return nil
}

func (f *fakeStore) GetActiveDevice(_ context.Context, userID string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.active[userID], nil
}

func (f *fakeStore) SetPlaybackState(_ context.Context, userID string, state models.PlaybackState) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.setStateCalls++
	f.states[userID] = state
	return nil
}

func (f *fakeStore) GetPlaybackState(_ context.Context, userID string) (models.PlaybackState, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.getStateErr != nil {
		return models.DefaultPlaybackState(), f.getStateErr
	}
	state, ok := f.states[userID]
	if !ok {
		return models.DefaultPlaybackState(), nil
	}
	return state, nil
}

func (f *fakeStore) Refresh(_ context.Context, userID string) error {
	return nil
}

func (f *fakeStore) stateWrites() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.setStateCalls
}

func (f *fakeStore) playbackState(userID string) models.PlaybackState {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.states[userID]
}

func (f *fakeStore) activeDevice(userID string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.active[userID]
}

// Helper functions for tests

func createTestHub(store SessionStore) *Hub {
	return NewHub(store)
}

// createTestClient builds a registered client without starting the pumps;
// outgoing messages accumulate in the send buffer where tests read them.
func createTestClient(hub *Hub, userID string) *Client {
	client := NewClient(hub, &mockConn{messages: make([][]byte, 0)}, userID)
	hub.registerClient(client)
	return client
}

// drainMessages decodes everything queued on the client's send buffer.
func drainMessages(c *Client) []*Message {
	var out []*Message
	for {
		select {
		case data, ok := <-c.send:
			if !ok {
				return out
			}
			var msg Message
			if err := json.Unmarshal(data, &msg); err == nil {
				out = append(out, &msg)
			}
		default:
			return out
		}
	}
}

// inbound wraps a payload the way the read pump would before handing it to
// the hub.
func inbound(client *Client, msgType MessageType, payload interface{}) *ClientMessage {
	dataMap := make(map[string]interface{})
	if payload != nil {
		if raw, err := json.Marshal(payload); err == nil {
			json.Unmarshal(raw, &dataMap)
		}
	}
	msg := NewMessage("test-msg", msgType, client.userID, dataMap)
	return &ClientMessage{Client: client, Message: msg}
}

// registerDevice runs a device.register round-trip and returns the new
// device id from the confirmation message.
func registerDevice(hub *Hub, client *Client, name, class string) string {
	hub.handleClientMessage(inbound(client, MessageTypeRegisterDevice, RegisterDeviceData{
		Name:  name,
		Class: class,
	}))
	for _, msg := range drainMessages(client) {
		if msg.Type == MessageTypeDeviceRegistered {
			var data DeviceRegisteredData
			if err := msg.DecodeData(&data); err == nil {
				return data.DeviceID
			}
		}
	}
	return ""
}

// isRedisAvailable checks if Redis is available for testing
func isRedisAvailable() bool {
	client := redis.NewClient(&redis.Options{
		Addr: "localhost:6379",
	})
	defer client.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 1*time.Second)
	defer cancel()

	_, err := client.Ping(ctx).Result()
	return err == nil
}
