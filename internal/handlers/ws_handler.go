package handlers

import (
	"github.com/gin-gonic/gin"

	"github.com/edustream/groupchat-service/internal/realtime"
	"github.com/edustream/groupchat-service/internal/utils"
)

type WSHandler struct {
	BaseHandler
	hub *realtime.Hub
}

func NewWSHandler(hub *realtime.Hub, logger utils.Logger) *WSHandler {
	return &WSHandler{
		BaseHandler: NewBaseHandler(logger),
		hub:         hub,
	}
}

// Connect upgrades the request to a WebSocket session. Auth has
// already run; the token arrives as a query parameter on handshake.
func (h *WSHandler) Connect(c *gin.Context) {
	userID, ok := h.requireUserID(c)
	if !ok {
		return
	}

	userName := ""
	if user, err := GetUserFromContext(c); err == nil {
		userName = user.FullName
	}

	h.hub.ServeWS(c.Writer, c.Request, userID, userName)
}
