package websocket

import (
	"log/slog"
	"time"

	"playsync-service/internal/models"

	"github.com/google/uuid"
)

// handleClientMessage dispatches one inbound message. Messages from a single
// connection arrive here sequentially; messages from different connections
// of the same user may interleave, so all shared state lives behind the
// session store and the hub maps.
func (h *Hub) handleClientMessage(cm *ClientMessage) {
	client := cm.Client
	msg := cm.Message

	switch msg.Type {
	case MessageTypeRegisterDevice:
		h.handleRegisterDevice(client, msg)
	case MessageTypeSelectDevice:
		h.handleSelectDevice(client, msg)
	case MessageTypeListDevices:
		h.handleListDevices(client, msg)
	case MessageTypePlay, MessageTypePause, MessageTypeNext, MessageTypePrevious,
		MessageTypeSetVolume, MessageTypePlaySong:
		h.handlePlaybackCommand(client, msg)
	case MessageTypeSyncState:
		h.handleSyncState(client, msg)
	case MessageTypeGetState:
		h.handleGetState(client, msg)
	default:
		client.sendError(ErrCodeUnsupportedType, "Unsupported message type: "+msg.Type.String())
	}
}

// handleRegisterDevice creates the device entry for this connection. When
// the user's device set goes from empty to one entry the new device becomes
// active automatically; with existing devices no automatic change occurs.
func (h *Hub) handleRegisterDevice(client *Client, msg *Message) {
	var data RegisterDeviceData
	if err := msg.DecodeData(&data); err != nil {
		client.sendError(ErrCodeInvalidPayload, "Invalid register payload")
		return
	}
	if data.Name == "" {
		client.sendError(ErrCodeInvalidPayload, "Device name is required")
		return
	}
	class := models.DeviceClass(data.Class)
	if !class.IsValid() {
		client.sendError(ErrCodeInvalidPayload, "Device class must be web, mobile or desktop")
		return
	}

	device := models.Device{
		ID:           uuid.New().String(),
		ConnectionID: client.id,
		Name:         data.Name,
		Class:        class,
		ConnectedAt:  time.Now().Unix(),
	}

	count, err := h.store.AddDevice(h.ctx, client.userID, device)
	if err != nil {
		slog.Error("Failed to register device", "connectionID", client.id, "userID", client.userID, "error", err)
		client.sendError(ErrCodeInternal, "Device registration failed")
		return
	}

	client.setDevice(&device)
	slog.Info("Device registered", "userID", client.userID, "deviceID", device.ID, "name", device.Name, "class", device.Class)

	// Empty-to-one transition: the first device becomes active without an
	// explicit selection.
	if count == 1 {
		if err := h.store.SetActiveDevice(h.ctx, client.userID, device.ID); err != nil {
			slog.Error("Failed to auto-activate first device", "userID", client.userID, "deviceID", device.ID, "error", err)
		} else {
			slog.Info("First device auto-activated", "userID", client.userID, "deviceID", device.ID)
			h.pushToUser(client.userID, NewActiveDeviceChangedMessage(uuid.New().String(), client.userID, device.ID), nil)
		}
	}

	client.SendMessage(NewDeviceRegisteredMessage(msg.ID, client.userID, device.ID))
	h.broadcastDeviceList(client.userID)

	if h.recorder != nil {
		if err := h.recorder.RecordConnect(h.ctx, client.userID, device); err != nil {
			slog.Warn("Failed to record device session", "deviceID", device.ID, "error", err)
		}
	}
	if h.events != nil {
		if err := h.events.PublishDeviceEvent(h.ctx, "device.registered", client.userID, device); err != nil {
			slog.Warn("Failed to publish device event", "deviceID", device.ID, "error", err)
		}
	}
}

// handleSelectDevice moves the active-device pointer. There is no ownership
// check beyond the user scoping: any of the user's connections may select
// any of the user's devices, including one that has already disconnected.
func (h *Hub) handleSelectDevice(client *Client, msg *Message) {
	var data SelectDeviceData
	if err := msg.DecodeData(&data); err != nil {
		client.sendError(ErrCodeInvalidPayload, "Invalid select payload")
		return
	}
	if _, err := uuid.Parse(data.DeviceID); err != nil {
		client.sendError(ErrCodeInvalidDeviceID, "Device id is not a valid identifier")
		return
	}

	if err := h.store.SetActiveDevice(h.ctx, client.userID, data.DeviceID); err != nil {
		client.sendError(ErrCodeInternal, "Failed to select active device")
		return
	}

	slog.Info("Active device selected", "userID", client.userID, "deviceID", data.DeviceID)
	h.pushToUser(client.userID, NewActiveDeviceChangedMessage(uuid.New().String(), client.userID, data.DeviceID), nil)
}

// handleListDevices answers a point query with the device set and the
// active pointer. Used by clients right after connecting to reconcile.
func (h *Hub) handleListDevices(client *Client, msg *Message) {
	devices, err := h.store.ListDevices(h.ctx, client.userID)
	if err != nil {
		slog.Error("Failed to list devices", "userID", client.userID, "error", err)
		devices = []models.Device{}
	}
	activeID, err := h.store.GetActiveDevice(h.ctx, client.userID)
	if err != nil {
		slog.Error("Failed to read active device", "userID", client.userID, "error", err)
		activeID = ""
	}

	client.SendMessage(NewDeviceListMessage(msg.ID, client.userID, devices, activeID))
}

// handlePlaybackCommand is the command relay. A command counts only when it
// comes from the active device's own connection; anything else is a silent
// no-op, including a dangling active pointer and a disconnected target.
// Accepted commands update the shared state and are mirrored to the user's
// other connections so their UIs follow the active device's intent.
func (h *Hub) handlePlaybackCommand(client *Client, msg *Message) {
	// Malformed payloads are rejected synchronously even when the command
	// would be dropped: the caller must be able to tell "ignored" from
	// "invalid".
	var volume int
	var playSong PlaySongData
	switch msg.Type {
	case MessageTypeSetVolume:
		var data SetVolumeData
		if err := msg.DecodeData(&data); err != nil || data.Volume == nil {
			client.sendError(ErrCodeInvalidPayload, "Volume is required")
			return
		}
		if !models.ValidVolume(*data.Volume) {
			client.sendError(ErrCodeInvalidVolume, "Volume must be between 0 and 100")
			return
		}
		volume = *data.Volume
	case MessageTypePlaySong:
		if err := msg.DecodeData(&playSong); err != nil || playSong.SongID == "" {
			client.sendError(ErrCodeInvalidPayload, "Song id is required")
			return
		}
		if playSong.StartTime < 0 {
			playSong.StartTime = 0
		}
	}

	active := h.resolveActiveConnection(client.userID)
	if active == nil {
		// No active device, a stale pointer, or a disconnected target:
		// all the same silent no-op. Never an error to the caller.
		slog.Debug("Playback command dropped, no reachable active device", "userID", client.userID, "type", msg.Type)
		return
	}
	if active != client {
		// Only the active device drives playback. Commands from other
		// devices of the same user are dropped without a state write.
		slog.Debug("Playback command dropped, caller is not the active device", "userID", client.userID, "connectionID", client.id, "type", msg.Type)
		return
	}

	// Next/Previous are pure relays: the queue advance happens on the
	// active client, which then publishes the resulting state via
	// playback.sync. Everything else also records the logical state so
	// reconnecting devices observe the latest intent.
	if msg.Type != MessageTypeNext && msg.Type != MessageTypePrevious {
		state, err := h.store.GetPlaybackState(h.ctx, client.userID)
		if err != nil {
			slog.Error("Failed to read playback state, applying command to defaults", "userID", client.userID, "error", err)
		}

		switch msg.Type {
		case MessageTypePlay:
			state.ApplyPlay()
		case MessageTypePause:
			state.ApplyPause()
		case MessageTypeSetVolume:
			state.ApplyVolume(volume)
		case MessageTypePlaySong:
			state.ApplyPlaySong(playSong.SongID, playSong.StartTime)
		}

		if err := h.store.SetPlaybackState(h.ctx, client.userID, state); err != nil {
			slog.Error("Failed to write playback state", "userID", client.userID, "error", err)
		}
		if h.events != nil {
			if err := h.events.PublishPlaybackEvent(h.ctx, client.userID, state); err != nil {
				slog.Warn("Failed to publish playback event", "userID", client.userID, "error", err)
			}
		}
	}

	// Mirror the command to the user's other connections, excluding the
	// originator.
	h.pushToUser(client.userID, NewCommandMessage(uuid.New().String(), msg.Type, client.userID, msg.Data), client)

	if err := h.store.Refresh(h.ctx, client.userID); err != nil {
		slog.Debug("Failed to refresh session TTL", "userID", client.userID, "error", err)
	}
}

// resolveActiveConnection maps the active-device pointer to a live
// connection. Returns nil when there is no active device, the pointer is
// stale, or the device's connection is gone.
func (h *Hub) resolveActiveConnection(userID string) *Client {
	activeID, err := h.store.GetActiveDevice(h.ctx, userID)
	if err != nil {
		slog.Error("Failed to resolve active device", "userID", userID, "error", err)
		return nil
	}
	if activeID == "" {
		return nil
	}

	devices, err := h.store.ListDevices(h.ctx, userID)
	if err != nil {
		slog.Error("Failed to list devices while resolving active connection", "userID", userID, "error", err)
		return nil
	}

	for _, device := range devices {
		if device.ID == activeID {
			return h.connectionByID(device.ConnectionID)
		}
	}
	return nil
}

// handleSyncState accepts a full state snapshot from any of the user's
// connections, stores it last-writer-wins, and fans it out to every other
// connection. The sender is excluded by the fan-out primitive, which is the
// echo suppression the clients rely on.
func (h *Hub) handleSyncState(client *Client, msg *Message) {
	var data SyncStateData
	if err := msg.DecodeData(&data); err != nil {
		client.sendError(ErrCodeInvalidPayload, "Invalid state snapshot")
		return
	}

	state := data.State
	state.Normalize()
	state.Touch()

	if err := h.store.SetPlaybackState(h.ctx, client.userID, state); err != nil {
		// Live fan-out still happens; only catch-up reads are affected.
		slog.Error("Failed to store synced state", "userID", client.userID, "error", err)
	}

	h.pushToUser(client.userID, NewPlaybackStateMessage(uuid.New().String(), client.userID, state), client)

	if h.events != nil {
		if err := h.events.PublishPlaybackEvent(h.ctx, client.userID, state); err != nil {
			slog.Warn("Failed to publish playback event", "userID", client.userID, "error", err)
		}
	}
	if err := h.store.Refresh(h.ctx, client.userID); err != nil {
		slog.Debug("Failed to refresh session TTL", "userID", client.userID, "error", err)
	}
}

// handleGetState answers a point read, used by a freshly registered device
// to catch up on updates it never received live.
func (h *Hub) handleGetState(client *Client, msg *Message) {
	state, err := h.store.GetPlaybackState(h.ctx, client.userID)
	if err != nil {
		// Degrade to the documented default rather than surfacing a
		// storage error for a best-effort convenience feature.
		slog.Error("Failed to read playback state", "userID", client.userID, "error", err)
		state = models.DefaultPlaybackState()
	}

	client.SendMessage(NewPlaybackStateMessage(msg.ID, client.userID, state))
}
