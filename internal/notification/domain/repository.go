package domain

import (
	"context"

	"gorm.io/gorm"
)

type Repository interface {
	Create(ctx context.Context, db *gorm.DB, n *Notification) error
	FindByID(ctx context.Context, db *gorm.DB, id int64) (*Notification, error)
	// ListByRecipient returns the recipient's notifications newest first.
	ListByRecipient(ctx context.Context, db *gorm.DB, userID int64, limit, offset int) ([]Notification, error)
	CountUnread(ctx context.Context, db *gorm.DB, userID int64) (int64, error)

	MarkRead(ctx context.Context, db *gorm.DB, id int64) error
	// MarkAllRead returns how many rows flipped to read.
	MarkAllRead(ctx context.Context, db *gorm.DB, userID int64) (int64, error)
	Delete(ctx context.Context, db *gorm.DB, id int64) error
	DeleteAll(ctx context.Context, db *gorm.DB, userID int64) (int64, error)
	// PurgeByParticipant removes every notification the user received or
	// acted in, mirroring account deletion.
	PurgeByParticipant(ctx context.Context, db *gorm.DB, userID int64) error
}
