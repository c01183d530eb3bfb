package handlers

import (
	"log/slog"
	"net/http"
	"strconv"

	"playsync-service/internal/history"
	"playsync-service/internal/models"
	"playsync-service/internal/session"

	"github.com/gin-gonic/gin"
)

// SessionHandler exposes read-only REST views of the session state, used
// by clients that want a catch-up snapshot without holding a websocket
// open (e.g. a widget or a settings page).
type SessionHandler struct {
	store    *session.Store
	recorder *history.Recorder
}

func NewSessionHandler(store *session.Store, recorder *history.Recorder) *SessionHandler {
	return &SessionHandler{
		store:    store,
		recorder: recorder,
	}
}

// GetDevices returns the device set and active pointer of the caller.
func (h *SessionHandler) GetDevices(c *gin.Context) {
	userID := c.GetString("user_id")

	devices, err := h.store.ListDevices(c.Request.Context(), userID)
	if err != nil {
		slog.Error("Failed to list devices", "userID", userID, "error", err)
		devices = []models.Device{}
	}
	activeID, err := h.store.GetActiveDevice(c.Request.Context(), userID)
	if err != nil {
		slog.Error("Failed to read active device", "userID", userID, "error", err)
		activeID = ""
	}

	c.JSON(http.StatusOK, gin.H{
		"devices":          devices,
		"active_device_id": activeID,
	})
}

// GetPlayback returns the caller's current playback state.
func (h *SessionHandler) GetPlayback(c *gin.Context) {
	userID := c.GetString("user_id")

	state, err := h.store.GetPlaybackState(c.Request.Context(), userID)
	if err != nil {
		slog.Error("Failed to read playback state", "userID", userID, "error", err)
		state = models.DefaultPlaybackState()
	}

	c.JSON(http.StatusOK, gin.H{"state": state})
}

// GetHistory returns recent device sessions of the caller. Returns an
// empty list when the audit store is disabled.
func (h *SessionHandler) GetHistory(c *gin.Context) {
	userID := c.GetString("user_id")

	if h.recorder == nil {
		c.JSON(http.StatusOK, gin.H{"sessions": []history.DeviceSession{}})
		return
	}

	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	sessions, err := h.recorder.Sessions(c.Request.Context(), userID, limit)
	if err != nil {
		slog.Error("Failed to read session history", "userID", userID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to read session history"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"sessions": sessions})
}
