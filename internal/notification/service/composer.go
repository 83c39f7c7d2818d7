package service

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	contentdomain "github.com/studygrove/studygrove/internal/content/domain"
	"github.com/studygrove/studygrove/internal/notification/domain"
	"github.com/studygrove/studygrove/internal/outbox"
	"github.com/studygrove/studygrove/internal/tasks"
	userdomain "github.com/studygrove/studygrove/internal/user/domain"
)

// titleLimit caps the quoted title/body fragment inside a message.
const titleLimit = 15

// Composer turns domain events into create_notification tasks. Every
// method must be called inside an open outbox scope; the enqueue fires
// only after that scope's outermost transaction commits.
type Composer struct {
	enqueuer *tasks.Enqueuer
	logger   *zap.Logger
}

func NewComposer(enqueuer *tasks.Enqueuer, logger *zap.Logger) *Composer {
	return &Composer{
		enqueuer: enqueuer,
		logger:   logger.Named("notification.compose"),
	}
}

// OnPostLiked notifies the post author about a new like.
func (c *Composer) OnPostLiked(ctx context.Context, actor *userdomain.User, post *contentdomain.Post, like *contentdomain.Like) {
	var message string
	if post.AuthorID == actor.ID {
		message = fmt.Sprintf("You liked your own post %q.", truncateChars(post.Title, titleLimit))
	} else {
		message = fmt.Sprintf("User %s liked your post %q.", actor.Username, truncateChars(post.Title, titleLimit))
	}
	c.submit(ctx, tasks.CreateNotificationPayload{
		RecipientID: post.AuthorID,
		ActorID:     actor.ID,
		Kind:        string(domain.KindPostLike),
		RelatedType: string(domain.RelatedLike),
		RelatedID:   like.ID,
		Message:     message,
	})
}

// OnCommentLiked notifies the comment author about a new like.
func (c *Composer) OnCommentLiked(ctx context.Context, actor *userdomain.User, comment *contentdomain.Comment, like *contentdomain.Like) {
	var message string
	if comment.AuthorID == actor.ID {
		message = fmt.Sprintf("You liked your own comment %q.", truncateChars(comment.Body, titleLimit))
	} else {
		message = fmt.Sprintf("User %s liked your comment %q.", actor.Username, truncateChars(comment.Body, titleLimit))
	}
	c.submit(ctx, tasks.CreateNotificationPayload{
		RecipientID: comment.AuthorID,
		ActorID:     actor.ID,
		Kind:        string(domain.KindCommentLike),
		RelatedType: string(domain.RelatedLike),
		RelatedID:   like.ID,
		Message:     message,
	})
}

// OnPostCreated confirms a fresh post to its author.
func (c *Composer) OnPostCreated(ctx context.Context, post *contentdomain.Post) {
	c.submit(ctx, tasks.CreateNotificationPayload{
		RecipientID: post.AuthorID,
		ActorID:     post.AuthorID,
		Kind:        string(domain.KindPostCreated),
		RelatedType: string(domain.RelatedPost),
		RelatedID:   post.ID,
		Message:     fmt.Sprintf("You published a new post %q.", truncateChars(post.Title, titleLimit)),
	})
}

// OnCommentCreated notifies the post author and, for replies, the
// parent comment's author. The post-author copy is suppressed when the
// post author is already a party to the reply.
func (c *Composer) OnCommentCreated(ctx context.Context, actor *userdomain.User, post *contentdomain.Post, comment *contentdomain.Comment, replyTo *contentdomain.Comment) {
	if replyTo == nil {
		c.notifyCommentOnPost(ctx, actor, post, comment)
		return
	}
	if actor.ID != post.AuthorID && post.AuthorID != replyTo.AuthorID {
		c.notifyCommentOnPost(ctx, actor, post, comment)
	}
	c.notifyReplyToComment(ctx, actor, comment, replyTo)
}

// OnUserRegistered sends the welcome notification.
func (c *Composer) OnUserRegistered(ctx context.Context, user *userdomain.User) {
	c.submit(ctx, tasks.CreateNotificationPayload{
		RecipientID: user.ID,
		ActorID:     user.ID,
		Kind:        string(domain.KindUserRegistered),
		RelatedType: string(domain.RelatedUser),
		RelatedID:   user.ID,
		Message:     "You have successfully registered!",
	})
}

func (c *Composer) notifyCommentOnPost(ctx context.Context, actor *userdomain.User, post *contentdomain.Post, comment *contentdomain.Comment) {
	var message string
	if actor.ID == post.AuthorID {
		message = fmt.Sprintf("You left a comment %q on your post %q.",
			truncateChars(comment.Body, titleLimit), truncateChars(post.Title, titleLimit))
	} else {
		message = fmt.Sprintf("User %s left a comment %q on your post %q.",
			actor.Username, truncateChars(comment.Body, titleLimit), truncateChars(post.Title, titleLimit))
	}
	c.submit(ctx, tasks.CreateNotificationPayload{
		RecipientID: post.AuthorID,
		ActorID:     actor.ID,
		Kind:        string(domain.KindCommentOnPost),
		RelatedType: string(domain.RelatedComment),
		RelatedID:   comment.ID,
		Message:     message,
	})
}

func (c *Composer) notifyReplyToComment(ctx context.Context, actor *userdomain.User, comment *contentdomain.Comment, replyTo *contentdomain.Comment) {
	var message string
	if actor.ID == replyTo.AuthorID {
		message = fmt.Sprintf("You replied %q to your comment %q.",
			truncateChars(comment.Body, titleLimit), truncateChars(replyTo.Body, titleLimit))
	} else {
		message = fmt.Sprintf("User %s replied %q to your comment %q.",
			actor.Username, truncateChars(comment.Body, titleLimit), truncateChars(replyTo.Body, titleLimit))
	}
	c.submit(ctx, tasks.CreateNotificationPayload{
		RecipientID: replyTo.AuthorID,
		ActorID:     actor.ID,
		Kind:        string(domain.KindReplyToComment),
		RelatedType: string(domain.RelatedComment),
		RelatedID:   comment.ID,
		Message:     message,
	})
}

func (c *Composer) submit(ctx context.Context, payload tasks.CreateNotificationPayload) {
	outbox.Register(ctx, func(ctx context.Context) {
		c.enqueuer.EnqueueLogged(ctx, tasks.TopicCreateNotification, payload)
	})
}
