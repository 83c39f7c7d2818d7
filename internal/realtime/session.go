package realtime

import (
	"context"
	"sync"
	"time"

	json "github.com/goccy/go-json"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4 * 1024
	sendBuffer     = 16
)

// clientMessage is what the browser sends us. Only heartbeats today.
type clientMessage struct {
	Type string `json:"type"`
}

// PresenceRefresher marks the user online on connect and on every
// heartbeat. Implemented by the presence tracker.
type PresenceRefresher interface {
	MarkOnline(ctx context.Context, userID int64) error
}

// Session is one websocket connection of one user.
type Session struct {
	userID   int64
	hub      *Hub
	conn     *websocket.Conn
	presence PresenceRefresher
	send     chan CountUpdate
	close    sync.Once
	logger   *zap.Logger
}

func newSession(userID int64, hub *Hub, conn *websocket.Conn, presence PresenceRefresher, logger *zap.Logger) *Session {
	return &Session{
		userID:   userID,
		hub:      hub,
		conn:     conn,
		presence: presence,
		send:     make(chan CountUpdate, sendBuffer),
		logger:   logger.Named("realtime.session"),
	}
}

// run joins the hub, marks the user online, and pumps until the
// connection dies. Disconnect leaves the group only; presence is left
// to expire on its TTL so a brief network blip does not flip the user
// offline.
func (s *Session) run(ctx context.Context) {
	s.hub.join(s)
	defer s.hub.leave(s)

	if err := s.presence.MarkOnline(ctx, s.userID); err != nil {
		s.logger.Warn("initial online mark failed", zap.Int64("user_id", s.userID), zap.Error(err))
	}

	go s.writePump()
	s.readPump(ctx)
}

func (s *Session) readPump(ctx context.Context) {
	defer s.closeOnce()

	s.conn.SetReadLimit(maxMessageSize)
	_ = s.conn.SetReadDeadline(time.Now().Add(pongWait))
	s.conn.SetPongHandler(func(string) error {
		return s.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure, websocket.CloseNormalClosure) {
				s.logger.Warn("unexpected close", zap.Int64("user_id", s.userID), zap.Error(err))
			}
			return
		}

		var msg clientMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			continue
		}
		if msg.Type == "heartbeat" {
			if err := s.presence.MarkOnline(ctx, s.userID); err != nil {
				s.logger.Warn("heartbeat presence refresh failed",
					zap.Int64("user_id", s.userID), zap.Error(err))
			}
		}
	}
}

func (s *Session) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		s.closeOnce()
	}()

	for {
		select {
		case update, ok := <-s.send:
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = s.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := s.conn.WriteJSON(update); err != nil {
				return
			}
		case <-ticker.C:
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (s *Session) closeOnce() {
	s.close.Do(func() {
		_ = s.conn.Close()
	})
}
