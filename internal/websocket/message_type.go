package websocket

import (
	"encoding/json"
	"fmt"
	"time"

	"playsync-service/internal/models"
)

// MessageType represents the type of WebSocket message using a custom enum
// type for better type safety
type MessageType string

// WebSocket message types - the playback synchronization protocol
const (
	// Device lifecycle (caller -> server)
	MessageTypeRegisterDevice MessageType = "device.register"
	MessageTypeSelectDevice   MessageType = "device.select"
	MessageTypeListDevices    MessageType = "device.list"

	// Device lifecycle (server -> client)
	MessageTypeDeviceRegistered    MessageType = "device.registered"
	MessageTypeDeviceListUpdated   MessageType = "device.list_updated"
	MessageTypeActiveDeviceChanged MessageType = "device.active_changed"

	// Playback commands (caller -> server, mirrored server -> client)
	MessageTypePlay      MessageType = "playback.play"
	MessageTypePause     MessageType = "playback.pause"
	MessageTypeNext      MessageType = "playback.next"
	MessageTypePrevious  MessageType = "playback.previous"
	MessageTypeSetVolume MessageType = "playback.volume"
	MessageTypePlaySong  MessageType = "playback.play_song"

	// State synchronization
	MessageTypeSyncState     MessageType = "playback.sync"
	MessageTypeGetState      MessageType = "playback.get"
	MessageTypePlaybackState MessageType = "playback.state"

	// Error events
	MessageTypeError MessageType = "error"
)

// Error codes pushed back to the originating connection
const (
	ErrCodeInvalidMessage  = "INVALID_MESSAGE"
	ErrCodeInvalidPayload  = "INVALID_PAYLOAD"
	ErrCodeInvalidDeviceID = "INVALID_DEVICE_ID"
	ErrCodeInvalidVolume   = "INVALID_VOLUME"
	ErrCodeUnsupportedType = "UNSUPPORTED_TYPE"
	ErrCodeInternal        = "INTERNAL_ERROR"
)

// String returns the string representation of the MessageType
func (mt MessageType) String() string {
	return string(mt)
}

// IsValid checks if the MessageType is a valid enum value
func (mt MessageType) IsValid() bool {
	switch mt {
	case MessageTypeRegisterDevice, MessageTypeSelectDevice, MessageTypeListDevices,
		MessageTypeDeviceRegistered, MessageTypeDeviceListUpdated, MessageTypeActiveDeviceChanged,
		MessageTypePlay, MessageTypePause, MessageTypeNext, MessageTypePrevious,
		MessageTypeSetVolume, MessageTypePlaySong,
		MessageTypeSyncState, MessageTypeGetState, MessageTypePlaybackState,
		MessageTypeError:
		return true
	default:
		return false
	}
}

// IsPlaybackCommand reports whether the type is one of the transport-level
// playback control commands handled by the command relay.
func (mt MessageType) IsPlaybackCommand() bool {
	switch mt {
	case MessageTypePlay, MessageTypePause, MessageTypeNext, MessageTypePrevious,
		MessageTypeSetVolume, MessageTypePlaySong:
		return true
	default:
		return false
	}
}

// Base message structure with typed MessageType for better type safety
type Message struct {
	ID        string                 `json:"id"`
	Type      MessageType            `json:"type"`
	Data      map[string]interface{} `json:"data"`
	Timestamp int64                  `json:"timestamp"`
	UserID    string                 `json:"user_id,omitempty"`
}

// Message data structures for different message types

type RegisterDeviceData struct {
	Name  string `json:"name"`
	Class string `json:"class"`
}

type SelectDeviceData struct {
	DeviceID string `json:"device_id"`
}

type DeviceRegisteredData struct {
	DeviceID string `json:"device_id"`
}

type DeviceListData struct {
	Devices        []models.Device `json:"devices"`
	ActiveDeviceID string          `json:"active_device_id"`
}

type ActiveDeviceChangedData struct {
	ActiveDeviceID string `json:"active_device_id"`
}

type SetVolumeData struct {
	Volume *int `json:"volume"`
}

type PlaySongData struct {
	SongID    string  `json:"song_id"`
	StartTime float64 `json:"start_time"`
}

type SyncStateData struct {
	State models.PlaybackState `json:"state"`
}

type PlaybackStateData struct {
	State models.PlaybackState `json:"state"`
}

type ErrorData struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// DecodeData unmarshals the loose data map of a message into a typed payload
// struct.
func (m *Message) DecodeData(dest interface{}) error {
	raw, err := json.Marshal(m.Data)
	if err != nil {
		return fmt.Errorf("failed to re-encode message data: %w", err)
	}
	if err := json.Unmarshal(raw, dest); err != nil {
		return fmt.Errorf("failed to decode message data: %w", err)
	}
	return nil
}

// Message constructors for type safety and consistency

// NewMessage creates a new message with the specified type and data
func NewMessage(id string, msgType MessageType, userID string, data map[string]interface{}) *Message {
	if data == nil {
		data = make(map[string]interface{})
	}
	return &Message{
		ID:        id,
		Type:      msgType,
		Data:      data,
		Timestamp: time.Now().Unix(),
		UserID:    userID,
	}
}

// newDataMessage converts a typed payload struct to the loose map form used
// on the wire.
func newDataMessage(id string, msgType MessageType, userID string, payload interface{}) *Message {
	dataMap := make(map[string]interface{})
	if payload != nil {
		if raw, err := json.Marshal(payload); err == nil {
			json.Unmarshal(raw, &dataMap)
		}
	}
	return NewMessage(id, msgType, userID, dataMap)
}

// NewErrorMessage creates an error message
func NewErrorMessage(id, userID, code, message string) *Message {
	return newDataMessage(id, MessageTypeError, userID, ErrorData{
		Code:    code,
		Message: message,
	})
}

// NewDeviceRegisteredMessage confirms a registration to the caller
func NewDeviceRegisteredMessage(id, userID, deviceID string) *Message {
	return newDataMessage(id, MessageTypeDeviceRegistered, userID, DeviceRegisteredData{
		DeviceID: deviceID,
	})
}

// NewDeviceListMessage carries the current device set and active pointer
func NewDeviceListMessage(id, userID string, devices []models.Device, activeDeviceID string) *Message {
	if devices == nil {
		devices = []models.Device{}
	}
	return newDataMessage(id, MessageTypeDeviceListUpdated, userID, DeviceListData{
		Devices:        devices,
		ActiveDeviceID: activeDeviceID,
	})
}

// NewActiveDeviceChangedMessage announces a new active device
func NewActiveDeviceChangedMessage(id, userID, deviceID string) *Message {
	return newDataMessage(id, MessageTypeActiveDeviceChanged, userID, ActiveDeviceChangedData{
		ActiveDeviceID: deviceID,
	})
}

// NewPlaybackStateMessage carries a full state snapshot
func NewPlaybackStateMessage(id, userID string, state models.PlaybackState) *Message {
	return newDataMessage(id, MessageTypePlaybackState, userID, PlaybackStateData{
		State: state,
	})
}

// NewCommandMessage mirrors a playback command to other devices
func NewCommandMessage(id string, msgType MessageType, userID string, data map[string]interface{}) *Message {
	return NewMessage(id, msgType, userID, data)
}
