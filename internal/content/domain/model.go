package domain

import (
	"errors"
	"time"
)

// SubjectType tags what a like points at.
type SubjectType string

const (
	SubjectPost    SubjectType = "post"
	SubjectComment SubjectType = "comment"
)

type Post struct {
	ID        int64     `json:"id" gorm:"primaryKey"`
	AuthorID  int64     `json:"author_id" gorm:"not null;index:idx_posts_author"`
	Title     string    `json:"title" gorm:"type:text;not null"`
	Body      string    `json:"body" gorm:"type:text;not null"`
	CreatedAt time.Time `json:"created_at" gorm:"not null"`
	UpdatedAt time.Time `json:"updated_at" gorm:"not null"`
}

func (Post) TableName() string { return "posts" }

type Comment struct {
	ID        int64     `json:"id" gorm:"primaryKey"`
	PostID    int64     `json:"post_id" gorm:"not null;index:idx_comments_post"`
	AuthorID  int64     `json:"author_id" gorm:"not null;index:idx_comments_author"`
	ReplyToID *int64    `json:"reply_to_id,omitempty" gorm:"index:idx_comments_reply_to"`
	Body      string    `json:"body" gorm:"type:text;not null"`
	CreatedAt time.Time `json:"created_at" gorm:"not null"`
}

func (Comment) TableName() string { return "comments" }

// Like is unique per (user, subject); a second like of the same subject is a
// no-op, not an error.
type Like struct {
	ID          int64       `json:"id" gorm:"primaryKey"`
	UserID      int64       `json:"user_id" gorm:"not null;uniqueIndex:ux_likes_user_subject,priority:1"`
	SubjectType SubjectType `json:"subject_type" gorm:"type:text;not null;uniqueIndex:ux_likes_user_subject,priority:2;index:idx_likes_subject,priority:1"`
	SubjectID   int64       `json:"subject_id" gorm:"not null;uniqueIndex:ux_likes_user_subject,priority:3;index:idx_likes_subject,priority:2"`
	CreatedAt   time.Time   `json:"created_at" gorm:"not null"`
}

func (Like) TableName() string { return "likes" }

var (
	ErrNotFound       = errors.New("not_found")
	ErrInvalidSubject = errors.New("invalid_subject_type")
)
