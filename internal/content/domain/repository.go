package domain

import (
	"context"

	"gorm.io/gorm"
)

type Repository interface {
	CreatePost(ctx context.Context, db *gorm.DB, post *Post) error
	FindPost(ctx context.Context, db *gorm.DB, id int64) (*Post, error)
	// FindPostForUpdate locks the row for the enclosing transaction.
	FindPostForUpdate(ctx context.Context, db *gorm.DB, id int64) (*Post, error)
	// DeletePost removes the post with its comments and every like pointing
	// at the post or its comments.
	DeletePost(ctx context.Context, db *gorm.DB, id int64) error

	CreateComment(ctx context.Context, db *gorm.DB, comment *Comment) error
	FindComment(ctx context.Context, db *gorm.DB, id int64) (*Comment, error)
	FindCommentForUpdate(ctx context.Context, db *gorm.DB, id int64) (*Comment, error)
	// DeleteComment removes the comment and its likes.
	DeleteComment(ctx context.Context, db *gorm.DB, id int64) error

	// CreateLike inserts unless the (user, subject) pair already exists;
	// reports whether a row was written.
	CreateLike(ctx context.Context, db *gorm.DB, like *Like) (bool, error)
	FindLike(ctx context.Context, db *gorm.DB, userID int64, subject SubjectType, subjectID int64) (*Like, error)
	FindLikeByID(ctx context.Context, db *gorm.DB, id int64) (*Like, error)
	FindLikeByIDForUpdate(ctx context.Context, db *gorm.DB, id int64) (*Like, error)
	DeleteLike(ctx context.Context, db *gorm.DB, id int64) error

	// PurgeByAuthor removes everything a departing user wrote: their
	// likes, their comments and posts, and likes pointing at those.
	PurgeByAuthor(ctx context.Context, db *gorm.DB, authorID int64) error

	// Authoritative aggregates for counter reconciliation, grouped by owner.
	PostCountsByAuthor(ctx context.Context, db *gorm.DB) (map[int64]int, error)
	CommentCountsByAuthor(ctx context.Context, db *gorm.DB) (map[int64]int, error)
	// ReputationByAuthor sums likes across each user's posts and comments.
	ReputationByAuthor(ctx context.Context, db *gorm.DB) (map[int64]int, error)
}
