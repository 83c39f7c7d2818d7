// Package realtime delivers unread-count updates to connected clients
// over websockets. Sessions join a per-user group on connect; a push
// fans out to every session in the group, one per open tab.
package realtime

import (
	"sync"

	"go.uber.org/zap"
)

// CountUpdate is the server-to-client payload. UpdateList false means
// only the badge changed and the client's list view is still current.
type CountUpdate struct {
	UnreadNotificationsCount int64 `json:"unread_notifications_count"`
	UpdateList               bool  `json:"update_list"`
}

// Hub tracks the sessions of each user.
type Hub struct {
	mu     sync.RWMutex
	groups map[int64]map[*Session]struct{}
	logger *zap.Logger
}

func NewHub(logger *zap.Logger) *Hub {
	return &Hub{
		groups: make(map[int64]map[*Session]struct{}),
		logger: logger.Named("realtime.hub"),
	}
}

// PushUnreadCount fans the update out to every session of the user.
// A session whose send buffer is full is dropped rather than blocked
// on; its read pump will clean it up.
func (h *Hub) PushUnreadCount(userID int64, count int64, updateList bool) {
	update := CountUpdate{UnreadNotificationsCount: count, UpdateList: updateList}

	h.mu.RLock()
	sessions := make([]*Session, 0, len(h.groups[userID]))
	for s := range h.groups[userID] {
		sessions = append(sessions, s)
	}
	h.mu.RUnlock()

	for _, s := range sessions {
		select {
		case s.send <- update:
		default:
			h.logger.Warn("session send buffer full, closing",
				zap.Int64("user_id", userID))
			s.closeOnce()
		}
	}
}

// SessionCount reports open sessions for the user.
func (h *Hub) SessionCount(userID int64) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.groups[userID])
}

func (h *Hub) join(s *Session) {
	h.mu.Lock()
	group, ok := h.groups[s.userID]
	if !ok {
		group = make(map[*Session]struct{})
		h.groups[s.userID] = group
	}
	group[s] = struct{}{}
	total := len(group)
	h.mu.Unlock()
	h.logger.Debug("session joined", zap.Int64("user_id", s.userID), zap.Int("sessions", total))
}

func (h *Hub) leave(s *Session) {
	h.mu.Lock()
	if group, ok := h.groups[s.userID]; ok {
		delete(group, s)
		if len(group) == 0 {
			delete(h.groups, s.userID)
		}
	}
	h.mu.Unlock()
	h.logger.Debug("session left", zap.Int64("user_id", s.userID))
}
