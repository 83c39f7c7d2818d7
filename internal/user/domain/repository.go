package domain

import (
	"context"
	"time"

	"gorm.io/gorm"
)

type Repository interface {
	Create(ctx context.Context, db *gorm.DB, user *User) error
	FindByID(ctx context.Context, db *gorm.DB, id int64) (*User, error)
	// FindByIDForUpdate locks the row for the enclosing transaction.
	FindByIDForUpdate(ctx context.Context, db *gorm.DB, id int64) (*User, error)
	Delete(ctx context.Context, db *gorm.DB, id int64) error

	// ClampAddCounter atomically applies `counter = max(counter + delta, 0)`.
	// counter must be one of the Counter* column names.
	ClampAddCounter(ctx context.Context, db *gorm.DB, userID int64, counter string, delta int) error

	// UpdateAvatarPaths persists the avatar columns only.
	UpdateAvatarPaths(ctx context.Context, db *gorm.DB, user *User) error

	// TouchLastSeen bulk-updates last_seen for the given users.
	TouchLastSeen(ctx context.Context, db *gorm.DB, ids []int64, at time.Time) error

	// SnapshotsAfter pages counter snapshots ordered by id (keyset).
	SnapshotsAfter(ctx context.Context, db *gorm.DB, afterID int64, limit int) ([]CounterSnapshot, error)
	// WriteSnapshots overwrites the counter columns for the given rows.
	WriteSnapshots(ctx context.Context, db *gorm.DB, rows []CounterSnapshot) error
}
