package websocket

import (
	"medresponse/pkg/logger"

	"github.com/gin-gonic/gin"
)

type Handler struct {
	hub *Hub
	log *logger.Logger
}

func NewHandler(log *logger.Logger) *Handler {
	hub := NewHub(log)
	go hub.Run()

	return &Handler{
		hub: hub,
		log: log,
	}
}

// HandleWebSocket upgrades the connection and joins the client to its role
// room. Identity comes from query parameters; authenticating them is the
// responsibility of the fronting layer.
func (h *Handler) HandleWebSocket(c *gin.Context) {
	userID := c.Query("user_id")
	role := c.Query("role")

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.WithError(err).Warn("Websocket upgrade failed")
		return
	}

	client := NewClient(h.hub, conn, userID, role)
	h.hub.register <- client

	go client.writePump()
	go client.readPump()
}

func (h *Handler) GetHub() *Hub {
	return h.hub
}
