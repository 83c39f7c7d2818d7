// Package reconcile recomputes the cached user counters from the
// authoritative tables. The fast-path increments are best effort; this
// full recompute is the source of truth that heals any drift from lost
// tasks, crashes, or racing writers.
package reconcile

import (
	"context"

	"github.com/ThreeDotsLabs/watermill/message"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/studygrove/studygrove/internal/config"
	contentdomain "github.com/studygrove/studygrove/internal/content/domain"
	userdomain "github.com/studygrove/studygrove/internal/user/domain"
)

type Reconciler struct {
	db      *gorm.DB
	users   userdomain.Repository
	content contentdomain.Repository
	jobsCfg *config.JobsConfigHolder
	logger  *zap.Logger
}

func NewReconciler(
	db *gorm.DB,
	users userdomain.Repository,
	content contentdomain.Repository,
	jobsCfg *config.JobsConfigHolder,
	logger *zap.Logger,
) *Reconciler {
	return &Reconciler{
		db:      db,
		users:   users,
		content: content,
		jobsCfg: jobsCfg,
		logger:  logger.Named("reconcile"),
	}
}

// HandleReconcileCounters walks every user in id-ordered batches and
// overwrites posts_count, comments_count, and reputation with values
// recomputed from the posts, comments, and likes tables. Only rows
// whose cached values drifted are written, so a clean second run
// performs zero writes.
func (r *Reconciler) HandleReconcileCounters(ctx context.Context, _ *message.Message) error {
	posts, err := r.content.PostCountsByAuthor(ctx, r.db)
	if err != nil {
		return err
	}
	comments, err := r.content.CommentCountsByAuthor(ctx, r.db)
	if err != nil {
		return err
	}
	reputation, err := r.content.ReputationByAuthor(ctx, r.db)
	if err != nil {
		return err
	}

	batchSize := r.jobsCfg.Current().CounterBatchSize
	var scanned, fixed int
	afterID := int64(0)
	for {
		snapshots, err := r.users.SnapshotsAfter(ctx, r.db, afterID, batchSize)
		if err != nil {
			return err
		}
		if len(snapshots) == 0 {
			break
		}
		afterID = snapshots[len(snapshots)-1].UserID
		scanned += len(snapshots)

		var drifted []userdomain.CounterSnapshot
		for _, snap := range snapshots {
			want := userdomain.CounterSnapshot{
				UserID:        snap.UserID,
				PostsCount:    posts[snap.UserID],
				CommentsCount: comments[snap.UserID],
				Reputation:    reputation[snap.UserID],
			}
			if want != snap {
				drifted = append(drifted, want)
			}
		}
		if len(drifted) > 0 {
			if err := r.users.WriteSnapshots(ctx, r.db, drifted); err != nil {
				return err
			}
			fixed += len(drifted)
		}
	}

	if fixed > 0 {
		r.logger.Info("counters reconciled",
			zap.Int("scanned", scanned), zap.Int("corrected", fixed))
	} else {
		r.logger.Debug("counters clean", zap.Int("scanned", scanned))
	}
	return nil
}
