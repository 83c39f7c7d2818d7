package service

import (
	"context"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/studygrove/studygrove/internal/notification/domain"
	"github.com/studygrove/studygrove/internal/outbox"
	"github.com/studygrove/studygrove/internal/tasks"
)

// Service is the recipient-facing side: listing, read flags, deletion.
// Bulk mutations answer immediately; the count push happens off the
// request path, after commit.
type Service struct {
	db       *gorm.DB
	runner   *outbox.Runner
	repo     domain.Repository
	enqueuer *tasks.Enqueuer
	logger   *zap.Logger
}

func NewService(db *gorm.DB, runner *outbox.Runner, repo domain.Repository, enqueuer *tasks.Enqueuer, logger *zap.Logger) *Service {
	return &Service{
		db:       db,
		runner:   runner,
		repo:     repo,
		enqueuer: enqueuer,
		logger:   logger.Named("notification.service"),
	}
}

func (s *Service) List(ctx context.Context, userID int64, limit, offset int) ([]domain.Notification, error) {
	return s.repo.ListByRecipient(ctx, s.db, userID, limit, offset)
}

func (s *Service) UnreadCount(ctx context.Context, userID int64) (int64, error) {
	return s.repo.CountUnread(ctx, s.db, userID)
}

// MarkRead flips one notification to read. No push: the acting client
// already knows, and list reads recount on render.
func (s *Service) MarkRead(ctx context.Context, userID, id int64) error {
	n, err := s.repo.FindByID(ctx, s.db, id)
	if err != nil {
		return err
	}
	if n.UserID != userID {
		return domain.ErrForbidden
	}
	if n.IsRead {
		return nil
	}
	return s.repo.MarkRead(ctx, s.db, id)
}

// MarkAllRead flips every unread notification and schedules one
// count-only push, so every other open tab drops its badge without
// reloading its list.
func (s *Service) MarkAllRead(ctx context.Context, userID int64) error {
	return s.runner.Run(ctx, func(ctx context.Context, tx *gorm.DB) error {
		changed, err := s.repo.MarkAllRead(ctx, tx, userID)
		if err != nil {
			return err
		}
		s.logger.Debug("marked all read", zap.Int64("user_id", userID), zap.Int64("changed", changed))

		outbox.Register(ctx, func(ctx context.Context) {
			s.enqueuer.EnqueueDedupedLogged(ctx, tasks.TopicPushUnreadCount,
				pushDedupKey(userID),
				tasks.PushUnreadCountPayload{UserID: userID, UpdateList: false})
		})
		return nil
	})
}

func (s *Service) Delete(ctx context.Context, userID, id int64) error {
	return s.runner.Run(ctx, func(ctx context.Context, tx *gorm.DB) error {
		n, err := s.repo.FindByID(ctx, tx, id)
		if err != nil {
			return err
		}
		if n.UserID != userID {
			return domain.ErrForbidden
		}
		if err := s.repo.Delete(ctx, tx, id); err != nil {
			return err
		}
		s.registerPush(ctx, userID)
		return nil
	})
}

func (s *Service) DeleteAll(ctx context.Context, userID int64) error {
	return s.runner.Run(ctx, func(ctx context.Context, tx *gorm.DB) error {
		deleted, err := s.repo.DeleteAll(ctx, tx, userID)
		if err != nil {
			return err
		}
		if deleted == 0 {
			return nil
		}
		s.registerPush(ctx, userID)
		return nil
	})
}

func (s *Service) registerPush(ctx context.Context, userID int64) {
	outbox.Register(ctx, func(ctx context.Context) {
		s.enqueuer.EnqueueDedupedLogged(ctx, tasks.TopicPushUnreadCount,
			pushDedupKey(userID),
			tasks.PushUnreadCountPayload{UserID: userID, UpdateList: true})
	})
}
