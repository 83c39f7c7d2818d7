package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/ThreeDotsLabs/watermill/message"
	"go.uber.org/zap"
	"gorm.io/gorm"

	contentdomain "github.com/studygrove/studygrove/internal/content/domain"
	"github.com/studygrove/studygrove/internal/notification/domain"
	"github.com/studygrove/studygrove/internal/outbox"
	"github.com/studygrove/studygrove/internal/tasks"
	userdomain "github.com/studygrove/studygrove/internal/user/domain"
)

// Broadcaster fans a count update out to every open session of one
// user. Implemented by the realtime hub.
type Broadcaster interface {
	PushUnreadCount(userID int64, count int64, updateList bool)
}

// Handlers are the worker-side consumers for the notification topics.
type Handlers struct {
	db            *gorm.DB
	runner        *outbox.Runner
	notifications domain.Repository
	content       contentdomain.Repository
	users         userdomain.Repository
	enqueuer      *tasks.Enqueuer
	broadcaster   Broadcaster
	logger        *zap.Logger
}

func NewHandlers(
	db *gorm.DB,
	runner *outbox.Runner,
	notifications domain.Repository,
	content contentdomain.Repository,
	users userdomain.Repository,
	enqueuer *tasks.Enqueuer,
	broadcaster Broadcaster,
	logger *zap.Logger,
) *Handlers {
	return &Handlers{
		db:            db,
		runner:        runner,
		notifications: notifications,
		content:       content,
		users:         users,
		enqueuer:      enqueuer,
		broadcaster:   broadcaster,
		logger:        logger.Named("notification.handlers"),
	}
}

// HandleCreateNotification persists one notification. The related
// object is re-checked under a row lock first: if it was deleted while
// the task sat in the queue, the task completes without writing.
func (h *Handlers) HandleCreateNotification(ctx context.Context, msg *message.Message) error {
	var p tasks.CreateNotificationPayload
	if err := tasks.Decode(msg, &p); err != nil {
		return err
	}

	return h.runner.Run(ctx, func(ctx context.Context, tx *gorm.DB) error {
		exists, err := h.relatedExists(ctx, tx, domain.RelatedType(p.RelatedType), p.RelatedID)
		if err != nil {
			if errors.Is(err, domain.ErrUnknownRelatedType) {
				h.logger.Warn("unknown related object type",
					zap.String("related_type", p.RelatedType),
					zap.Int64("related_id", p.RelatedID),
					zap.Int64("recipient_id", p.RecipientID),
					zap.String("kind", p.Kind))
				return nil
			}
			return err
		}
		if !exists {
			return nil
		}

		n := &domain.Notification{
			UserID:      p.RecipientID,
			ActorID:     p.ActorID,
			Kind:        domain.Kind(p.Kind),
			RelatedType: domain.RelatedType(p.RelatedType),
			RelatedID:   p.RelatedID,
			Message:     p.Message,
		}
		if err := h.notifications.Create(ctx, tx, n); err != nil {
			return err
		}

		h.logger.Info("notification created",
			zap.Int64("recipient_id", p.RecipientID),
			zap.Int64("actor_id", p.ActorID),
			zap.String("kind", p.Kind))

		outbox.Register(ctx, func(ctx context.Context) {
			h.enqueuer.EnqueueDedupedLogged(ctx, tasks.TopicPushUnreadCount,
				pushDedupKey(p.RecipientID),
				tasks.PushUnreadCountPayload{UserID: p.RecipientID, UpdateList: true})
		})
		return nil
	})
}

// HandlePushUnreadCount recomputes the unread count at execution time
// and broadcasts it. A stale queued push is therefore harmless.
func (h *Handlers) HandlePushUnreadCount(ctx context.Context, msg *message.Message) error {
	var p tasks.PushUnreadCountPayload
	if err := tasks.Decode(msg, &p); err != nil {
		return err
	}

	count, err := h.notifications.CountUnread(ctx, h.db, p.UserID)
	if err != nil {
		return err
	}
	h.broadcaster.PushUnreadCount(p.UserID, count, p.UpdateList)
	return nil
}

func (h *Handlers) relatedExists(ctx context.Context, tx *gorm.DB, relatedType domain.RelatedType, relatedID int64) (bool, error) {
	var err error
	switch relatedType {
	case domain.RelatedPost:
		_, err = h.content.FindPostForUpdate(ctx, tx, relatedID)
	case domain.RelatedComment:
		_, err = h.content.FindCommentForUpdate(ctx, tx, relatedID)
	case domain.RelatedLike:
		_, err = h.content.FindLikeByIDForUpdate(ctx, tx, relatedID)
	case domain.RelatedUser:
		_, err = h.users.FindByIDForUpdate(ctx, tx, relatedID)
	default:
		return false, domain.ErrUnknownRelatedType
	}
	if err != nil {
		if errors.Is(err, contentdomain.ErrNotFound) || errors.Is(err, userdomain.ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func pushDedupKey(userID int64) string {
	return fmt.Sprintf("%s:%d", tasks.TopicPushUnreadCount, userID)
}
