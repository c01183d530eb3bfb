package handlers

import (
	"log/slog"
	"net/http"

	"playsync-service/internal/websocket"

	"github.com/gin-gonic/gin"
)

type WSHandler struct {
	hub *websocket.Hub
}

func NewWSHandler(hub *websocket.Hub) *WSHandler {
	return &WSHandler{hub: hub}
}

// HandleWebSocket upgrades the request to a connection session. The user
// identity was already resolved by the websocket auth middleware; an
// unauthenticated request never reaches this point.
func (h *WSHandler) HandleWebSocket(c *gin.Context) {
	userID := c.GetString("user_id")
	if userID == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthenticated"})
		return
	}

	slog.Debug("WebSocket connection request", "userID", userID)
	websocket.ServeWS(h.hub, c.Writer, c.Request, userID)
}
