package outbox

import (
	"context"
	"errors"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

type note struct {
	ID   int64 `gorm:"primaryKey"`
	Body string
}

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file::memory:?cache=shared"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&note{}))
	t.Cleanup(func() {
		db.Exec("DELETE FROM notes")
	})
	return db
}

func TestRunFiresCallbacksAfterCommit(t *testing.T) {
	db := newTestDB(t)
	runner := NewRunner(db, zap.NewNop())

	var fired []string
	err := runner.Run(context.Background(), func(ctx context.Context, tx *gorm.DB) error {
		require.NoError(t, tx.Create(&note{Body: "a"}).Error)
		Register(ctx, func(context.Context) { fired = append(fired, "first") })
		Register(ctx, func(context.Context) { fired = append(fired, "second") })
		require.Empty(t, fired, "callbacks must not fire before commit")
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, []string{"first", "second"}, fired)
}

func TestRunDiscardsCallbacksOnRollback(t *testing.T) {
	db := newTestDB(t)
	runner := NewRunner(db, zap.NewNop())

	fired := false
	err := runner.Run(context.Background(), func(ctx context.Context, tx *gorm.DB) error {
		require.NoError(t, tx.Create(&note{Body: "a"}).Error)
		Register(ctx, func(context.Context) { fired = true })
		return errors.New("boom")
	})
	require.Error(t, err)
	require.False(t, fired)

	var count int64
	require.NoError(t, db.Model(&note{}).Count(&count).Error)
	require.Zero(t, count, "rollback must discard writes")
}

func TestNestedRunJoinsOuterTransaction(t *testing.T) {
	db := newTestDB(t)
	runner := NewRunner(db, zap.NewNop())

	var fired []string
	err := runner.Run(context.Background(), func(ctx context.Context, tx *gorm.DB) error {
		Register(ctx, func(context.Context) { fired = append(fired, "outer") })
		return runner.Run(ctx, func(ctx context.Context, inner *gorm.DB) error {
			require.True(t, InTransaction(ctx))
			Register(ctx, func(context.Context) { fired = append(fired, "inner") })
			require.Empty(t, fired, "nested callbacks wait for the outermost commit")
			return inner.Create(&note{Body: "nested"}).Error
		})
	})
	require.NoError(t, err)
	require.Equal(t, []string{"outer", "inner"}, fired)
}

func TestNestedFailureRollsBackEverything(t *testing.T) {
	db := newTestDB(t)
	runner := NewRunner(db, zap.NewNop())

	fired := false
	err := runner.Run(context.Background(), func(ctx context.Context, tx *gorm.DB) error {
		if err := tx.Create(&note{Body: "outer"}).Error; err != nil {
			return err
		}
		Register(ctx, func(context.Context) { fired = true })
		return runner.Run(ctx, func(ctx context.Context, inner *gorm.DB) error {
			return errors.New("inner failure")
		})
	})
	require.Error(t, err)
	require.False(t, fired)

	var count int64
	require.NoError(t, db.Model(&note{}).Count(&count).Error)
	require.Zero(t, count)
}

func TestRegisterOutsideTransactionRunsImmediately(t *testing.T) {
	fired := false
	Register(context.Background(), func(context.Context) { fired = true })
	require.True(t, fired)
}
