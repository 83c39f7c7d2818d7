package presence

import (
	"context"

	"github.com/ThreeDotsLabs/watermill/message"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/studygrove/studygrove/internal/clock"
	userdomain "github.com/studygrove/studygrove/internal/user/domain"
)

// Syncer flushes the live presence set into users.last_seen so the
// relational side stays close to reality even if sockets die silently.
type Syncer struct {
	tracker *Tracker
	users   userdomain.Repository
	db      *gorm.DB
	clock   clock.Clock
	logger  *zap.Logger
}

func NewSyncer(tracker *Tracker, users userdomain.Repository, db *gorm.DB, clk clock.Clock, logger *zap.Logger) *Syncer {
	return &Syncer{
		tracker: tracker,
		users:   users,
		db:      db,
		clock:   clk,
		logger:  logger.Named("presence.sync"),
	}
}

// HandleSyncPresence bulk-updates last_seen for every currently online
// user. IDs with no matching row, such as a user deleted since their
// last heartbeat, are skipped by the UPDATE itself.
func (s *Syncer) HandleSyncPresence(ctx context.Context, _ *message.Message) error {
	ids, err := s.tracker.ListOnlineIDs(ctx)
	if err != nil {
		return err
	}
	if len(ids) == 0 {
		return nil
	}
	if err := s.users.TouchLastSeen(ctx, s.db, ids, s.clock.Now()); err != nil {
		return err
	}
	s.logger.Debug("presence synced", zap.Int("online", len(ids)))
	return nil
}
