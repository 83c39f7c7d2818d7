package repository

import (
	"context"
	"errors"

	"github.com/studygrove/studygrove/internal/content/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) CreatePost(ctx context.Context, db *gorm.DB, post *domain.Post) error {
	return db.WithContext(ctx).Create(post).Error
}

func (r *repo) FindPost(ctx context.Context, db *gorm.DB, id int64) (*domain.Post, error) {
	var p domain.Post
	if err := db.WithContext(ctx).First(&p, "id = ?", id).Error; err != nil {
		return nil, mapNotFound(err)
	}
	return &p, nil
}

func (r *repo) FindPostForUpdate(ctx context.Context, db *gorm.DB, id int64) (*domain.Post, error) {
	var p domain.Post
	err := db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		First(&p, "id = ?", id).Error
	if err != nil {
		return nil, mapNotFound(err)
	}
	return &p, nil
}

func (r *repo) DeletePost(ctx context.Context, db *gorm.DB, id int64) error {
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Exec(
			`DELETE FROM likes WHERE subject_type = ? AND subject_id IN (SELECT id FROM comments WHERE post_id = ?)`,
			domain.SubjectComment, id,
		).Error; err != nil {
			return err
		}
		if err := tx.Exec(
			`DELETE FROM likes WHERE subject_type = ? AND subject_id = ?`,
			domain.SubjectPost, id,
		).Error; err != nil {
			return err
		}
		if err := tx.Delete(&domain.Comment{}, "post_id = ?", id).Error; err != nil {
			return err
		}
		return tx.Delete(&domain.Post{}, "id = ?", id).Error
	})
}

func (r *repo) CreateComment(ctx context.Context, db *gorm.DB, comment *domain.Comment) error {
	return db.WithContext(ctx).Create(comment).Error
}

func (r *repo) FindComment(ctx context.Context, db *gorm.DB, id int64) (*domain.Comment, error) {
	var c domain.Comment
	if err := db.WithContext(ctx).First(&c, "id = ?", id).Error; err != nil {
		return nil, mapNotFound(err)
	}
	return &c, nil
}

func (r *repo) FindCommentForUpdate(ctx context.Context, db *gorm.DB, id int64) (*domain.Comment, error) {
	var c domain.Comment
	err := db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		First(&c, "id = ?", id).Error
	if err != nil {
		return nil, mapNotFound(err)
	}
	return &c, nil
}

func (r *repo) DeleteComment(ctx context.Context, db *gorm.DB, id int64) error {
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Exec(
			`DELETE FROM likes WHERE subject_type = ? AND subject_id = ?`,
			domain.SubjectComment, id,
		).Error; err != nil {
			return err
		}
		return tx.Delete(&domain.Comment{}, "id = ?", id).Error
	})
}

func (r *repo) CreateLike(ctx context.Context, db *gorm.DB, like *domain.Like) (bool, error) {
	res := db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_id"}, {Name: "subject_type"}, {Name: "subject_id"}},
			DoNothing: true,
		}).
		Create(like)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repo) FindLike(ctx context.Context, db *gorm.DB, userID int64, subject domain.SubjectType, subjectID int64) (*domain.Like, error) {
	var l domain.Like
	err := db.WithContext(ctx).
		First(&l, "user_id = ? AND subject_type = ? AND subject_id = ?", userID, subject, subjectID).Error
	if err != nil {
		return nil, mapNotFound(err)
	}
	return &l, nil
}

func (r *repo) FindLikeByID(ctx context.Context, db *gorm.DB, id int64) (*domain.Like, error) {
	var l domain.Like
	if err := db.WithContext(ctx).First(&l, "id = ?", id).Error; err != nil {
		return nil, mapNotFound(err)
	}
	return &l, nil
}

func (r *repo) FindLikeByIDForUpdate(ctx context.Context, db *gorm.DB, id int64) (*domain.Like, error) {
	var l domain.Like
	err := db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		First(&l, "id = ?", id).Error
	if err != nil {
		return nil, mapNotFound(err)
	}
	return &l, nil
}

func (r *repo) DeleteLike(ctx context.Context, db *gorm.DB, id int64) error {
	return db.WithContext(ctx).Delete(&domain.Like{}, "id = ?", id).Error
}

func (r *repo) PurgeByAuthor(ctx context.Context, db *gorm.DB, authorID int64) error {
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Delete(&domain.Like{}, "user_id = ?", authorID).Error; err != nil {
			return err
		}
		if err := tx.Exec(
			`DELETE FROM likes WHERE subject_type = ? AND subject_id IN (SELECT id FROM comments WHERE author_id = ?)`,
			domain.SubjectComment, authorID,
		).Error; err != nil {
			return err
		}
		if err := tx.Exec(
			`DELETE FROM likes WHERE subject_type = ? AND subject_id IN (SELECT id FROM comments WHERE post_id IN (SELECT id FROM posts WHERE author_id = ?))`,
			domain.SubjectComment, authorID,
		).Error; err != nil {
			return err
		}
		if err := tx.Exec(
			`DELETE FROM likes WHERE subject_type = ? AND subject_id IN (SELECT id FROM posts WHERE author_id = ?)`,
			domain.SubjectPost, authorID,
		).Error; err != nil {
			return err
		}
		if err := tx.Exec(
			`DELETE FROM comments WHERE author_id = ? OR post_id IN (SELECT id FROM posts WHERE author_id = ?)`,
			authorID, authorID,
		).Error; err != nil {
			return err
		}
		return tx.Delete(&domain.Post{}, "author_id = ?", authorID).Error
	})
}

type ownerCount struct {
	OwnerID int64
	Total   int
}

func (r *repo) PostCountsByAuthor(ctx context.Context, db *gorm.DB) (map[int64]int, error) {
	return scanOwnerCounts(ctx, db,
		`SELECT author_id AS owner_id, COUNT(*) AS total FROM posts GROUP BY author_id`)
}

func (r *repo) CommentCountsByAuthor(ctx context.Context, db *gorm.DB) (map[int64]int, error) {
	return scanOwnerCounts(ctx, db,
		`SELECT author_id AS owner_id, COUNT(*) AS total FROM comments GROUP BY author_id`)
}

func (r *repo) ReputationByAuthor(ctx context.Context, db *gorm.DB) (map[int64]int, error) {
	fromPosts, err := scanOwnerCounts(ctx, db,
		`SELECT p.author_id AS owner_id, COUNT(*) AS total
		 FROM likes l JOIN posts p ON l.subject_type = 'post' AND l.subject_id = p.id
		 GROUP BY p.author_id`)
	if err != nil {
		return nil, err
	}
	fromComments, err := scanOwnerCounts(ctx, db,
		`SELECT c.author_id AS owner_id, COUNT(*) AS total
		 FROM likes l JOIN comments c ON l.subject_type = 'comment' AND l.subject_id = c.id
		 GROUP BY c.author_id`)
	if err != nil {
		return nil, err
	}
	for owner, total := range fromComments {
		fromPosts[owner] += total
	}
	return fromPosts, nil
}

func scanOwnerCounts(ctx context.Context, db *gorm.DB, query string) (map[int64]int, error) {
	var rows []ownerCount
	if err := db.WithContext(ctx).Raw(query).Scan(&rows).Error; err != nil {
		return nil, err
	}
	out := make(map[int64]int, len(rows))
	for _, row := range rows {
		out[row.OwnerID] = row.Total
	}
	return out, nil
}

func mapNotFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return domain.ErrNotFound
	}
	return err
}
