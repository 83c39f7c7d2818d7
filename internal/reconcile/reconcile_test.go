package reconcile

import (
	"context"
	"fmt"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/studygrove/studygrove/internal/config"
	contentdomain "github.com/studygrove/studygrove/internal/content/domain"
	contentrepo "github.com/studygrove/studygrove/internal/content/repository"
	userdomain "github.com/studygrove/studygrove/internal/user/domain"
	userrepo "github.com/studygrove/studygrove/internal/user/repository"
)

// countingUsers wraps the user repository to observe snapshot writes.
type countingUsers struct {
	userdomain.Repository
	writes int
}

func (c *countingUsers) WriteSnapshots(ctx context.Context, db *gorm.DB, rows []userdomain.CounterSnapshot) error {
	c.writes += len(rows)
	return c.Repository.WriteSnapshots(ctx, db, rows)
}

func newReconcilerEnv(t *testing.T, batchSize int) (*gorm.DB, *Reconciler, *countingUsers) {
	t.Helper()

	db, err := gorm.Open(sqlite.Open("file::memory:?cache=shared"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&userdomain.User{}, &contentdomain.Post{}, &contentdomain.Comment{}, &contentdomain.Like{}))
	t.Cleanup(func() {
		for _, table := range []string{"likes", "comments", "posts", "users"} {
			db.Exec("DELETE FROM " + table)
		}
	})

	users := &countingUsers{Repository: userrepo.Provide()}
	holder := config.StaticJobsConfigHolder(config.JobsConfig{CounterBatchSize: batchSize})
	r := NewReconciler(db, users, contentrepo.Provide(), holder, zap.NewNop())
	return db, r, users
}

func counters(t *testing.T, db *gorm.DB, userID int64) userdomain.CounterSnapshot {
	t.Helper()
	var u userdomain.User
	require.NoError(t, db.First(&u, "id = ?", userID).Error)
	return userdomain.CounterSnapshot{
		UserID:        u.ID,
		PostsCount:    u.PostsCount,
		CommentsCount: u.CommentsCount,
		Reputation:    u.Reputation,
	}
}

func TestReconcileHealsDrift(t *testing.T) {
	db, r, _ := newReconcilerEnv(t, 100)
	ctx := context.Background()

	// Cached counters wildly off in both directions.
	require.NoError(t, db.Create(&userdomain.User{ID: 1, Username: "alice", PostsCount: 9, Reputation: 3}).Error)
	require.NoError(t, db.Create(&userdomain.User{ID: 2, Username: "bob", CommentsCount: 7}).Error)

	require.NoError(t, db.Create(&contentdomain.Post{ID: 10, AuthorID: 1, Title: "t", Body: "b"}).Error)
	require.NoError(t, db.Create(&contentdomain.Comment{ID: 20, PostID: 10, AuthorID: 2, Body: "c"}).Error)
	require.NoError(t, db.Create(&contentdomain.Like{ID: 30, UserID: 2, SubjectType: contentdomain.SubjectPost, SubjectID: 10}).Error)
	require.NoError(t, db.Create(&contentdomain.Like{ID: 31, UserID: 1, SubjectType: contentdomain.SubjectComment, SubjectID: 20}).Error)

	require.NoError(t, r.HandleReconcileCounters(ctx, nil))

	require.Equal(t, userdomain.CounterSnapshot{UserID: 1, PostsCount: 1, Reputation: 1}, counters(t, db, 1))
	require.Equal(t, userdomain.CounterSnapshot{UserID: 2, CommentsCount: 1, Reputation: 1}, counters(t, db, 2))
}

func TestReconcileSecondRunWritesNothing(t *testing.T) {
	db, r, users := newReconcilerEnv(t, 100)
	ctx := context.Background()

	require.NoError(t, db.Create(&userdomain.User{ID: 1, Username: "alice", PostsCount: 5}).Error)
	require.NoError(t, db.Create(&contentdomain.Post{ID: 10, AuthorID: 1, Title: "t", Body: "b"}).Error)

	require.NoError(t, r.HandleReconcileCounters(ctx, nil))
	require.Equal(t, 1, users.writes)

	require.NoError(t, r.HandleReconcileCounters(ctx, nil))
	require.Equal(t, 1, users.writes, "a clean pass must not touch any row")
}

func TestReconcileFollowsContentLifecycle(t *testing.T) {
	db, r, _ := newReconcilerEnv(t, 100)
	ctx := context.Background()

	require.NoError(t, db.Create(&userdomain.User{ID: 1, Username: "alice"}).Error)
	require.NoError(t, db.Create(&userdomain.User{ID: 2, Username: "bob"}).Error)

	// Post appears.
	require.NoError(t, db.Create(&contentdomain.Post{ID: 10, AuthorID: 1, Title: "t", Body: "b"}).Error)
	require.NoError(t, r.HandleReconcileCounters(ctx, nil))
	require.Equal(t, 1, counters(t, db, 1).PostsCount)

	// Bob likes it.
	require.NoError(t, db.Create(&contentdomain.Like{ID: 30, UserID: 2, SubjectType: contentdomain.SubjectPost, SubjectID: 10}).Error)
	require.NoError(t, r.HandleReconcileCounters(ctx, nil))
	require.Equal(t, 1, counters(t, db, 1).Reputation)

	// Bob takes the like back.
	require.NoError(t, db.Delete(&contentdomain.Like{}, "id = ?", 30).Error)
	require.NoError(t, r.HandleReconcileCounters(ctx, nil))
	require.Equal(t, 0, counters(t, db, 1).Reputation)

	// Post goes away entirely.
	require.NoError(t, db.Delete(&contentdomain.Post{}, "id = ?", 10).Error)
	require.NoError(t, r.HandleReconcileCounters(ctx, nil))
	require.Equal(t, userdomain.CounterSnapshot{UserID: 1}, counters(t, db, 1))
}

func TestReconcileIgnoresDanglingLikes(t *testing.T) {
	db, r, _ := newReconcilerEnv(t, 100)
	ctx := context.Background()

	require.NoError(t, db.Create(&userdomain.User{ID: 1, Username: "alice", Reputation: 4}).Error)
	// Like pointing at a post that no longer exists must not count.
	require.NoError(t, db.Create(&contentdomain.Like{ID: 30, UserID: 2, SubjectType: contentdomain.SubjectPost, SubjectID: 999}).Error)

	require.NoError(t, r.HandleReconcileCounters(ctx, nil))
	require.Equal(t, 0, counters(t, db, 1).Reputation)
}

func TestReconcilePaginatesInKeyOrder(t *testing.T) {
	db, r, users := newReconcilerEnv(t, 2)
	ctx := context.Background()

	for id := int64(1); id <= 5; id++ {
		require.NoError(t, db.Create(&userdomain.User{ID: id, Username: fmt.Sprintf("user%d", id), PostsCount: 3}).Error)
	}

	require.NoError(t, r.HandleReconcileCounters(ctx, nil))
	require.Equal(t, 5, users.writes, "every drifted row across all batches gets corrected")
	for id := int64(1); id <= 5; id++ {
		require.Equal(t, 0, counters(t, db, id).PostsCount)
	}
}
