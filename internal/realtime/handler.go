package realtime

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

// Handler upgrades authenticated requests to notification sessions.
// Identity arrives as X-User-ID from the auth layer in front of us.
type Handler struct {
	hub      *Hub
	presence PresenceRefresher
	logger   *zap.Logger
}

func NewHandler(hub *Hub, presence PresenceRefresher, logger *zap.Logger) *Handler {
	return &Handler{
		hub:      hub,
		presence: presence,
		logger:   logger.Named("realtime.handler"),
	}
}

func (h *Handler) Serve(c *gin.Context) {
	userID, err := strconv.ParseInt(c.GetHeader("X-User-ID"), 10, 64)
	if err != nil || userID <= 0 {
		c.AbortWithStatus(http.StatusUnauthorized)
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	s := newSession(userID, h.hub, conn, h.presence, h.logger)
	s.run(c.Request.Context())
}
