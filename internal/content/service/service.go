// Package service is the thin write boundary for posts, comments,
// likes, and accounts. Every mutation runs inside an outbox scope: the
// row changes plus the clamped counter fast path commit together, and
// the notification tasks fire only after that commit.
package service

import (
	"context"
	"errors"
	"strings"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/studygrove/studygrove/internal/content/domain"
	notifdomain "github.com/studygrove/studygrove/internal/notification/domain"
	notifservice "github.com/studygrove/studygrove/internal/notification/service"
	"github.com/studygrove/studygrove/internal/outbox"
	"github.com/studygrove/studygrove/internal/tasks"
	userdomain "github.com/studygrove/studygrove/internal/user/domain"
	"github.com/studygrove/studygrove/pkg/db"
)

var (
	ErrEmptyTitle    = errors.New("content: post title is empty")
	ErrEmptyBody     = errors.New("content: body is empty")
	ErrEmptyUsername = errors.New("content: username is empty")
	ErrUsernameTaken = errors.New("content: username already taken")
	ErrReplyMismatch = errors.New("content: reply targets a comment on another post")
)

type Service struct {
	db            *gorm.DB
	runner        *outbox.Runner
	users         userdomain.Repository
	content       domain.Repository
	notifications notifdomain.Repository
	composer      *notifservice.Composer
	enqueuer      *tasks.Enqueuer
	genID         *snowflake.Node
	logger        *zap.Logger
}

func NewService(
	db *gorm.DB,
	runner *outbox.Runner,
	users userdomain.Repository,
	content domain.Repository,
	notifications notifdomain.Repository,
	composer *notifservice.Composer,
	enqueuer *tasks.Enqueuer,
	genID *snowflake.Node,
	logger *zap.Logger,
) *Service {
	return &Service{
		db:            db,
		runner:        runner,
		users:         users,
		content:       content,
		notifications: notifications,
		composer:      composer,
		enqueuer:      enqueuer,
		genID:         genID,
		logger:        logger.Named("content.service"),
	}
}

// RegisterUser creates the account with the system avatar and queues
// the welcome notification.
func (s *Service) RegisterUser(ctx context.Context, username string) (*userdomain.User, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return nil, ErrEmptyUsername
	}

	user := &userdomain.User{
		ID:               s.genID.Generate().Int64(),
		Username:         username,
		Avatar:           userdomain.DefaultAvatarPath,
		AvatarSmallSize1: userdomain.DefaultAvatarSmallSize1Path,
		AvatarSmallSize2: userdomain.DefaultAvatarSmallSize2Path,
		AvatarSmallSize3: userdomain.DefaultAvatarSmallSize3Path,
	}
	err := s.runner.Run(ctx, func(ctx context.Context, tx *gorm.DB) error {
		if err := s.users.Create(ctx, tx, user); err != nil {
			return err
		}
		s.composer.OnUserRegistered(ctx, user)
		return nil
	})
	if err != nil {
		if db.IsDuplicateKeyErr(err) {
			return nil, ErrUsernameTaken
		}
		return nil, err
	}
	s.logger.Info("user registered", zap.Int64("user_id", user.ID), zap.String("username", username))
	return user, nil
}

// DeleteUser removes the account, everything it authored, and every
// notification it received or acted in, then queues deletion of its
// avatar files.
func (s *Service) DeleteUser(ctx context.Context, userID int64) error {
	return s.runner.Run(ctx, func(ctx context.Context, tx *gorm.DB) error {
		if _, err := s.users.FindByIDForUpdate(ctx, tx, userID); err != nil {
			return err
		}
		if err := s.content.PurgeByAuthor(ctx, tx, userID); err != nil {
			return err
		}
		if err := s.notifications.PurgeByParticipant(ctx, tx, userID); err != nil {
			return err
		}
		if err := s.users.Delete(ctx, tx, userID); err != nil {
			return err
		}

		outbox.Register(ctx, func(ctx context.Context) {
			// No explicit paths: the handler sweeps the whole avatar
			// prefix, which for a deleted row is everything.
			s.enqueuer.EnqueueLogged(ctx, tasks.TopicDeleteStoragePaths,
				tasks.DeleteStoragePathsPayload{UserID: userID})
		})
		return nil
	})
}

// CreatePost writes the post, bumps the author's posts_count, and
// queues the author's confirmation notification.
func (s *Service) CreatePost(ctx context.Context, authorID int64, title, body string) (*domain.Post, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return nil, ErrEmptyTitle
	}
	if strings.TrimSpace(body) == "" {
		return nil, ErrEmptyBody
	}

	post := &domain.Post{
		ID:       s.genID.Generate().Int64(),
		AuthorID: authorID,
		Title:    title,
		Body:     body,
	}
	err := s.runner.Run(ctx, func(ctx context.Context, tx *gorm.DB) error {
		if _, err := s.users.FindByID(ctx, tx, authorID); err != nil {
			return err
		}
		if err := s.content.CreatePost(ctx, tx, post); err != nil {
			return err
		}
		if err := s.users.ClampAddCounter(ctx, tx, authorID, userdomain.CounterPosts, 1); err != nil {
			return err
		}
		s.composer.OnPostCreated(ctx, post)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return post, nil
}

// DeletePost drops the post with its comment and like subtree and
// decrements the author's posts_count. Reputation lost with the
// subtree's likes is left to the next reconciliation pass.
func (s *Service) DeletePost(ctx context.Context, postID int64) error {
	return s.runner.Run(ctx, func(ctx context.Context, tx *gorm.DB) error {
		post, err := s.content.FindPostForUpdate(ctx, tx, postID)
		if err != nil {
			return err
		}
		if err := s.content.DeletePost(ctx, tx, postID); err != nil {
			return err
		}
		return s.users.ClampAddCounter(ctx, tx, post.AuthorID, userdomain.CounterPosts, -1)
	})
}

// CreateComment writes the comment, bumps the author's comments_count,
// and queues notifications for the post author and, on replies, the
// parent comment's author.
func (s *Service) CreateComment(ctx context.Context, authorID, postID int64, replyToID *int64, body string) (*domain.Comment, error) {
	if strings.TrimSpace(body) == "" {
		return nil, ErrEmptyBody
	}

	comment := &domain.Comment{
		ID:        s.genID.Generate().Int64(),
		PostID:    postID,
		AuthorID:  authorID,
		ReplyToID: replyToID,
		Body:      body,
	}
	err := s.runner.Run(ctx, func(ctx context.Context, tx *gorm.DB) error {
		author, err := s.users.FindByID(ctx, tx, authorID)
		if err != nil {
			return err
		}
		post, err := s.content.FindPost(ctx, tx, postID)
		if err != nil {
			return err
		}
		var replyTo *domain.Comment
		if replyToID != nil {
			replyTo, err = s.content.FindComment(ctx, tx, *replyToID)
			if err != nil {
				return err
			}
			if replyTo.PostID != postID {
				return ErrReplyMismatch
			}
		}

		if err := s.content.CreateComment(ctx, tx, comment); err != nil {
			return err
		}
		if err := s.users.ClampAddCounter(ctx, tx, authorID, userdomain.CounterComments, 1); err != nil {
			return err
		}
		s.composer.OnCommentCreated(ctx, author, post, comment, replyTo)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return comment, nil
}

// DeleteComment drops the comment with its likes and decrements the
// author's comments_count.
func (s *Service) DeleteComment(ctx context.Context, commentID int64) error {
	return s.runner.Run(ctx, func(ctx context.Context, tx *gorm.DB) error {
		comment, err := s.content.FindCommentForUpdate(ctx, tx, commentID)
		if err != nil {
			return err
		}
		if err := s.content.DeleteComment(ctx, tx, commentID); err != nil {
			return err
		}
		return s.users.ClampAddCounter(ctx, tx, comment.AuthorID, userdomain.CounterComments, -1)
	})
}

// AddLike likes a post or comment. Liking twice is a silent no-op: no
// counter bump, no notification. A fresh like credits the subject
// owner's reputation and queues the like notification.
func (s *Service) AddLike(ctx context.Context, userID int64, subject domain.SubjectType, subjectID int64) error {
	return s.runner.Run(ctx, func(ctx context.Context, tx *gorm.DB) error {
		actor, err := s.users.FindByID(ctx, tx, userID)
		if err != nil {
			return err
		}

		like := &domain.Like{
			ID:          s.genID.Generate().Int64(),
			UserID:      userID,
			SubjectType: subject,
			SubjectID:   subjectID,
		}

		switch subject {
		case domain.SubjectPost:
			post, err := s.content.FindPost(ctx, tx, subjectID)
			if err != nil {
				return err
			}
			created, err := s.content.CreateLike(ctx, tx, like)
			if err != nil || !created {
				return err
			}
			if err := s.users.ClampAddCounter(ctx, tx, post.AuthorID, userdomain.CounterReputation, 1); err != nil {
				return err
			}
			s.composer.OnPostLiked(ctx, actor, post, like)
			return nil
		case domain.SubjectComment:
			comment, err := s.content.FindComment(ctx, tx, subjectID)
			if err != nil {
				return err
			}
			created, err := s.content.CreateLike(ctx, tx, like)
			if err != nil || !created {
				return err
			}
			if err := s.users.ClampAddCounter(ctx, tx, comment.AuthorID, userdomain.CounterReputation, 1); err != nil {
				return err
			}
			s.composer.OnCommentLiked(ctx, actor, comment, like)
			return nil
		default:
			return domain.ErrInvalidSubject
		}
	})
}

// RemoveLike undoes a like and debits the subject owner's reputation,
// clamped at zero. Unliking something never liked is a no-op.
func (s *Service) RemoveLike(ctx context.Context, userID int64, subject domain.SubjectType, subjectID int64) error {
	return s.runner.Run(ctx, func(ctx context.Context, tx *gorm.DB) error {
		like, err := s.content.FindLike(ctx, tx, userID, subject, subjectID)
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				return nil
			}
			return err
		}

		var ownerID int64
		switch subject {
		case domain.SubjectPost:
			post, err := s.content.FindPost(ctx, tx, subjectID)
			if err != nil {
				return err
			}
			ownerID = post.AuthorID
		case domain.SubjectComment:
			comment, err := s.content.FindComment(ctx, tx, subjectID)
			if err != nil {
				return err
			}
			ownerID = comment.AuthorID
		default:
			return domain.ErrInvalidSubject
		}

		if err := s.content.DeleteLike(ctx, tx, like.ID); err != nil {
			return err
		}
		return s.users.ClampAddCounter(ctx, tx, ownerID, userdomain.CounterReputation, -1)
	})
}
