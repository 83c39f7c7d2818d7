package repository

import (
	"context"
	"errors"
	"time"

	"github.com/studygrove/studygrove/internal/user/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Create(ctx context.Context, db *gorm.DB, user *domain.User) error {
	return db.WithContext(ctx).Create(user).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id int64) (*domain.User, error) {
	var u domain.User
	err := db.WithContext(ctx).First(&u, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return &u, nil
}

func (r *repo) FindByIDForUpdate(ctx context.Context, db *gorm.DB, id int64) (*domain.User, error) {
	var u domain.User
	err := db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		First(&u, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return &u, nil
}

func (r *repo) Delete(ctx context.Context, db *gorm.DB, id int64) error {
	return db.WithContext(ctx).Delete(&domain.User{}, "id = ?", id).Error
}

var counterColumns = map[string]bool{
	domain.CounterPosts:      true,
	domain.CounterComments:   true,
	domain.CounterReputation: true,
}

// ClampAddCounter is a single conditional UPDATE, never read-modify-write,
// so concurrent workers cannot drive a counter below zero.
func (r *repo) ClampAddCounter(ctx context.Context, db *gorm.DB, userID int64, counter string, delta int) error {
	if !counterColumns[counter] {
		return domain.ErrInvalidCounter
	}
	return db.WithContext(ctx).Exec(
		`UPDATE users SET `+counter+` = CASE WHEN `+counter+` + ? < 0 THEN 0 ELSE `+counter+` + ? END WHERE id = ?`,
		delta, delta, userID,
	).Error
}

func (r *repo) UpdateAvatarPaths(ctx context.Context, db *gorm.DB, user *domain.User) error {
	return db.WithContext(ctx).Model(&domain.User{}).
		Where("id = ?", user.ID).
		Updates(map[string]any{
			"avatar":             user.Avatar,
			"avatar_small_size1": user.AvatarSmallSize1,
			"avatar_small_size2": user.AvatarSmallSize2,
			"avatar_small_size3": user.AvatarSmallSize3,
			"updated_at":         time.Now().UTC(),
		}).Error
}

func (r *repo) TouchLastSeen(ctx context.Context, db *gorm.DB, ids []int64, at time.Time) error {
	if len(ids) == 0 {
		return nil
	}
	return db.WithContext(ctx).Model(&domain.User{}).
		Where("id IN ?", ids).
		Update("last_seen", at).Error
}

func (r *repo) SnapshotsAfter(ctx context.Context, db *gorm.DB, afterID int64, limit int) ([]domain.CounterSnapshot, error) {
	var rows []domain.CounterSnapshot
	err := db.WithContext(ctx).Raw(
		`SELECT id AS user_id, posts_count, comments_count, reputation
		 FROM users WHERE id > ? ORDER BY id LIMIT ?`,
		afterID, limit,
	).Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *repo) WriteSnapshots(ctx context.Context, db *gorm.DB, rows []domain.CounterSnapshot) error {
	if len(rows) == 0 {
		return nil
	}
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, row := range rows {
			err := tx.Model(&domain.User{}).
				Where("id = ?", row.UserID).
				Updates(map[string]any{
					"posts_count":    row.PostsCount,
					"comments_count": row.CommentsCount,
					"reputation":     row.Reputation,
				}).Error
			if err != nil {
				return err
			}
		}
		return nil
	})
}
