package domain

import (
	"errors"
	"time"
)

// Kind labels the event a notification describes.
type Kind string

const (
	KindPostLike       Kind = "post_like"
	KindCommentLike    Kind = "comment_like"
	KindPostCreated    Kind = "post_created"
	KindCommentOnPost  Kind = "comment_on_post"
	KindReplyToComment Kind = "reply_to_comment"
	KindUserRegistered Kind = "user_registered"
)

// RelatedType names the table a notification's related object lives in.
type RelatedType string

const (
	RelatedPost    RelatedType = "post"
	RelatedComment RelatedType = "comment"
	RelatedLike    RelatedType = "like"
	RelatedUser    RelatedType = "user"
)

var (
	ErrNotFound           = errors.New("notification: not found")
	ErrUnknownRelatedType = errors.New("notification: unknown related object type")
	ErrForbidden          = errors.New("notification: not owned by caller")
)

// Notification is owned by its recipient. The related reference may
// point at a row deleted after creation; readers must tolerate that.
type Notification struct {
	ID          int64       `gorm:"primaryKey"`
	UserID      int64       `gorm:"index:idx_notifications_user_read,priority:1;index:idx_notifications_user_created,priority:1"`
	ActorID     int64       `gorm:"index"`
	Kind        Kind        `gorm:"size:50"`
	RelatedType RelatedType `gorm:"size:20"`
	RelatedID   int64
	Message     string    `gorm:"size:255"`
	IsRead      bool      `gorm:"index:idx_notifications_user_read,priority:2"`
	CreatedAt   time.Time `gorm:"index:idx_notifications_user_created,priority:2,sort:desc"`
}

func (Notification) TableName() string { return "notifications" }
