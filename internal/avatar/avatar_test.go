package avatar

import (
	"bytes"
	"context"
	"image/color"
	"strings"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/disintegration/imaging"
	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/studygrove/studygrove/internal/config"
	"github.com/studygrove/studygrove/internal/outbox"
	"github.com/studygrove/studygrove/internal/storage"
	"github.com/studygrove/studygrove/internal/tasks"
	userdomain "github.com/studygrove/studygrove/internal/user/domain"
	userrepo "github.com/studygrove/studygrove/internal/user/repository"
)

type avatarEnv struct {
	db        *gorm.DB
	store     storage.Store
	svc       *Service
	handlers  *Handlers
	thumbs    <-chan tasks.GenerateAvatarThumbnailsPayload
	deletions <-chan tasks.DeleteStoragePathsPayload
}

func newAvatarEnv(t *testing.T) *avatarEnv {
	t.Helper()

	db, err := gorm.Open(sqlite.Open("file::memory:?cache=shared"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&userdomain.User{}))
	t.Cleanup(func() { db.Exec("DELETE FROM users") })

	ps, err := tasks.NewPubSub(config.Config{TaskTransport: "memory"}, nil, watermill.NopLogger{})
	require.NoError(t, err)
	enq := tasks.NewEnqueuer(ps, tasks.NewDedupLease(nil), zap.NewNop())
	runner := outbox.NewRunner(db, zap.NewNop())
	store := storage.NewMemStore()
	users := userrepo.Provide()

	return &avatarEnv{
		db:        db,
		store:     store,
		svc:       NewService(db, runner, users, store, enq, zap.NewNop()),
		handlers:  NewHandlers(db, runner, users, store, enq, zap.NewNop()),
		thumbs:    subscribe[tasks.GenerateAvatarThumbnailsPayload](t, ps, tasks.TopicGenerateAvatarThumbnails),
		deletions: subscribe[tasks.DeleteStoragePathsPayload](t, ps, tasks.TopicDeleteStoragePaths),
	}
}

func subscribe[T any](t *testing.T, ps *tasks.PubSub, topic string) <-chan T {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	msgs, err := ps.Subscriber.Subscribe(ctx, topic)
	require.NoError(t, err)

	out := make(chan T, 16)
	go func() {
		for msg := range msgs {
			var p T
			if err := tasks.Decode(msg, &p); err == nil {
				out <- p
			}
			msg.Ack()
		}
	}()
	return out
}

func recv[T any](t *testing.T, ch <-chan T) T {
	t.Helper()
	select {
	case p := <-ch:
		return p
	case <-time.After(5 * time.Second):
		t.Fatal("expected a queued task")
		panic("unreachable")
	}
}

func expectNone[T any](t *testing.T, ch <-chan T) {
	t.Helper()
	select {
	case p := <-ch:
		t.Fatalf("unexpected queued task: %+v", p)
	case <-time.After(100 * time.Millisecond):
	}
}

func (e *avatarEnv) userWithDefaults(t *testing.T, id int64) *userdomain.User {
	t.Helper()
	u := &userdomain.User{
		ID:               id,
		Username:         "alice",
		Avatar:           userdomain.DefaultAvatarPath,
		AvatarSmallSize1: userdomain.DefaultAvatarSmallSize1Path,
		AvatarSmallSize2: userdomain.DefaultAvatarSmallSize2Path,
		AvatarSmallSize3: userdomain.DefaultAvatarSmallSize3Path,
	}
	require.NoError(t, e.db.Create(u).Error)
	return u
}

func (e *avatarEnv) reload(t *testing.T, id int64) *userdomain.User {
	t.Helper()
	var u userdomain.User
	require.NoError(t, e.db.First(&u, "id = ?", id).Error)
	return &u
}

func (e *avatarEnv) saveImage(t *testing.T, path string, w, h int) {
	t.Helper()
	require.NoError(t, e.store.Save(context.Background(), path, bytes.NewReader(imageBytes(t, w, h))))
}

func (e *avatarEnv) exists(t *testing.T, path string) bool {
	t.Helper()
	ok, err := e.store.Exists(context.Background(), path)
	require.NoError(t, err)
	return ok
}

func imageBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	img := imaging.New(w, h, color.NRGBA{R: 200, G: 100, B: 50, A: 255})
	var buf bytes.Buffer
	require.NoError(t, imaging.Encode(&buf, img, imaging.PNG))
	return buf.Bytes()
}

func TestSetAvatarStoresOriginalAndQueuesThumbnails(t *testing.T) {
	env := newAvatarEnv(t)
	ctx := context.Background()
	env.userWithDefaults(t, 7)

	newPath, err := env.svc.SetAvatar(ctx, 7, bytes.NewReader(imageBytes(t, 50, 50)), "me.png")
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(newPath, "avatars/7/"))
	require.True(t, strings.HasSuffix(newPath, ".png"))
	require.True(t, env.exists(t, newPath))

	u := env.reload(t, 7)
	require.Equal(t, newPath, u.Avatar)
	require.Equal(t, userdomain.DefaultAvatarSmallSize1Path, u.AvatarSmallSize1,
		"thumbnails reset to defaults until the worker renders them")

	p := recv(t, env.thumbs)
	require.EqualValues(t, 7, p.UserID)
	require.Equal(t, newPath, p.SourcePath)
	require.Empty(t, p.SupersededPaths, "the default generation is never deleted")
}

func TestSetAvatarCarriesSupersededGeneration(t *testing.T) {
	env := newAvatarEnv(t)
	ctx := context.Background()
	env.userWithDefaults(t, 7)

	oldPath, err := env.svc.SetAvatar(ctx, 7, bytes.NewReader(imageBytes(t, 50, 50)), "a.png")
	require.NoError(t, err)
	recv(t, env.thumbs)

	newPath, err := env.svc.SetAvatar(ctx, 7, bytes.NewReader(imageBytes(t, 50, 50)), "b.jpg")
	require.NoError(t, err)

	p := recv(t, env.thumbs)
	require.Equal(t, newPath, p.SourcePath)
	require.Equal(t, []string{oldPath}, p.SupersededPaths)
}

func TestSetAvatarRejectsUnsupportedExtension(t *testing.T) {
	env := newAvatarEnv(t)
	env.userWithDefaults(t, 7)

	_, err := env.svc.SetAvatar(context.Background(), 7, bytes.NewReader(nil), "script.exe")
	require.ErrorIs(t, err, ErrUnsupportedFormat)
	_, err = env.svc.SetAvatar(context.Background(), 7, bytes.NewReader(nil), "noext")
	require.ErrorIs(t, err, ErrUnsupportedFormat)
}

func TestSetAvatarMissingUserLeavesOrphanForSweep(t *testing.T) {
	env := newAvatarEnv(t)

	_, err := env.svc.SetAvatar(context.Background(), 999, bytes.NewReader(imageBytes(t, 10, 10)), "a.png")
	require.ErrorIs(t, err, userdomain.ErrNotFound)

	// The original landed in storage before the row update failed; the
	// prefix sweep is what reclaims it later.
	paths, listErr := env.store.List(context.Background(), userdomain.AvatarPrefix(999))
	require.NoError(t, listErr)
	require.Len(t, paths, 1)
}

func TestThumbnailPath(t *testing.T) {
	require.Equal(t, "avatars/7/ab12_small_size1.png", ThumbnailPath("avatars/7/ab12.png", 1))
	require.Equal(t, "avatars/7/ab12_small_size3.jpg", ThumbnailPath("avatars/7/ab12.jpg", 3))
}

func TestHandleGenerateThumbnailsRendersAllSizes(t *testing.T) {
	env := newAvatarEnv(t)
	ctx := context.Background()
	u := env.userWithDefaults(t, 7)

	source := "avatars/7/orig.png"
	env.saveImage(t, source, 900, 600)
	u.Avatar = source
	require.NoError(t, env.db.Save(u).Error)

	msg, err := tasks.Encode(tasks.GenerateAvatarThumbnailsPayload{UserID: 7, SourcePath: source})
	require.NoError(t, err)
	require.NoError(t, env.handlers.HandleGenerateThumbnails(ctx, msg))

	got := env.reload(t, 7)
	require.Equal(t, "avatars/7/orig_small_size1.png", got.AvatarSmallSize1)
	require.Equal(t, "avatars/7/orig_small_size2.png", got.AvatarSmallSize2)
	require.Equal(t, "avatars/7/orig_small_size3.png", got.AvatarSmallSize3)
	for _, p := range got.Thumbnails() {
		require.True(t, env.exists(t, p))
	}

	// The bounding box is honored.
	r, err := env.store.Open(ctx, got.AvatarSmallSize1)
	require.NoError(t, err)
	defer r.Close()
	img, err := imaging.Decode(r)
	require.NoError(t, err)
	require.LessOrEqual(t, img.Bounds().Dx(), 100)
	require.LessOrEqual(t, img.Bounds().Dy(), 100)
}

func TestHandleGenerateThumbnailsSkipsStaleTaskButStillChainsCleanup(t *testing.T) {
	env := newAvatarEnv(t)
	ctx := context.Background()
	u := env.userWithDefaults(t, 7)
	u.Avatar = "avatars/7/current.png"
	require.NoError(t, env.db.Save(u).Error)

	old := []string{"avatars/7/previous.png", "avatars/7/previous_small_size1.png"}
	msg, err := tasks.Encode(tasks.GenerateAvatarThumbnailsPayload{
		UserID: 7, SourcePath: "avatars/7/stale.png", SupersededPaths: old,
	})
	require.NoError(t, err)
	require.NoError(t, env.handlers.HandleGenerateThumbnails(ctx, msg))

	got := env.reload(t, 7)
	require.Equal(t, "avatars/7/current.png", got.Avatar)
	require.Equal(t, userdomain.DefaultAvatarSmallSize1Path, got.AvatarSmallSize1)

	p := recv(t, env.deletions)
	require.Equal(t, old, p.Paths)
}

func TestHandleGenerateThumbnailsCorruptSourceKeepsDefaults(t *testing.T) {
	env := newAvatarEnv(t)
	ctx := context.Background()
	u := env.userWithDefaults(t, 7)

	source := "avatars/7/broken.png"
	require.NoError(t, env.store.Save(ctx, source, strings.NewReader("not an image")))
	u.Avatar = source
	require.NoError(t, env.db.Save(u).Error)

	msg, err := tasks.Encode(tasks.GenerateAvatarThumbnailsPayload{UserID: 7, SourcePath: source})
	require.NoError(t, err)
	require.NoError(t, env.handlers.HandleGenerateThumbnails(ctx, msg), "an unreadable upload must not poison the queue")

	got := env.reload(t, 7)
	require.Equal(t, userdomain.DefaultAvatarSmallSize1Path, got.AvatarSmallSize1)
	require.Equal(t, userdomain.DefaultAvatarSmallSize2Path, got.AvatarSmallSize2)
	require.Equal(t, userdomain.DefaultAvatarSmallSize3Path, got.AvatarSmallSize3)
}

func TestHandleGenerateThumbnailsMissingUserIsNoOp(t *testing.T) {
	env := newAvatarEnv(t)

	msg, err := tasks.Encode(tasks.GenerateAvatarThumbnailsPayload{UserID: 999, SourcePath: "avatars/999/x.png"})
	require.NoError(t, err)
	require.NoError(t, env.handlers.HandleGenerateThumbnails(context.Background(), msg))
}

func TestHandleDeleteStoragePathsExplicit(t *testing.T) {
	env := newAvatarEnv(t)
	ctx := context.Background()

	env.saveImage(t, "avatars/7/a.png", 10, 10)
	env.saveImage(t, "avatars/7/b.png", 10, 10)
	env.saveImage(t, userdomain.DefaultAvatarPath, 10, 10)

	msg, err := tasks.Encode(tasks.DeleteStoragePathsPayload{
		UserID: 7,
		Paths: []string{
			"avatars/7/a.png",
			"avatars/7/gone-already.png",
			userdomain.DefaultAvatarPath,
		},
	})
	require.NoError(t, err)
	require.NoError(t, env.handlers.HandleDeleteStoragePaths(ctx, msg))

	require.False(t, env.exists(t, "avatars/7/a.png"))
	require.True(t, env.exists(t, "avatars/7/b.png"), "only listed paths are deleted")
	require.True(t, env.exists(t, userdomain.DefaultAvatarPath), "system images are never deleted")
}

func TestHandleDeleteStoragePathsSweepSparesLiveGeneration(t *testing.T) {
	env := newAvatarEnv(t)
	ctx := context.Background()
	u := env.userWithDefaults(t, 7)
	u.Avatar = "avatars/7/live.png"
	u.AvatarSmallSize1 = "avatars/7/live_small_size1.png"
	require.NoError(t, env.db.Save(u).Error)

	env.saveImage(t, "avatars/7/live.png", 10, 10)
	env.saveImage(t, "avatars/7/live_small_size1.png", 10, 10)
	env.saveImage(t, "avatars/7/orphan.png", 10, 10)

	msg, err := tasks.Encode(tasks.DeleteStoragePathsPayload{UserID: 7})
	require.NoError(t, err)
	require.NoError(t, env.handlers.HandleDeleteStoragePaths(ctx, msg))

	require.True(t, env.exists(t, "avatars/7/live.png"))
	require.True(t, env.exists(t, "avatars/7/live_small_size1.png"))
	require.False(t, env.exists(t, "avatars/7/orphan.png"))
}

func TestHandleDeleteStoragePathsSweepAfterAccountDeletion(t *testing.T) {
	env := newAvatarEnv(t)
	ctx := context.Background()

	// No user row: everything under the prefix goes.
	env.saveImage(t, "avatars/42/a.png", 10, 10)
	env.saveImage(t, "avatars/42/a_small_size2.png", 10, 10)

	msg, err := tasks.Encode(tasks.DeleteStoragePathsPayload{UserID: 42})
	require.NoError(t, err)
	require.NoError(t, env.handlers.HandleDeleteStoragePaths(ctx, msg))

	paths, err := env.store.List(ctx, userdomain.AvatarPrefix(42))
	require.NoError(t, err)
	require.Empty(t, paths)
}

func TestClearAvatarResetsRowAndQueuesDeletion(t *testing.T) {
	env := newAvatarEnv(t)
	ctx := context.Background()
	u := env.userWithDefaults(t, 7)
	u.Avatar = "avatars/7/custom.png"
	u.AvatarSmallSize1 = "avatars/7/custom_small_size1.png"
	require.NoError(t, env.db.Save(u).Error)

	require.NoError(t, env.svc.ClearAvatar(ctx, 7))

	got := env.reload(t, 7)
	require.Equal(t, userdomain.DefaultAvatarPath, got.Avatar)
	require.Equal(t, userdomain.DefaultAvatarSmallSize1Path, got.AvatarSmallSize1)

	p := recv(t, env.deletions)
	require.ElementsMatch(t, []string{"avatars/7/custom.png", "avatars/7/custom_small_size1.png"}, p.Paths)

	// Already default: nothing to do, nothing queued.
	require.NoError(t, env.svc.ClearAvatar(ctx, 7))
	expectNone(t, env.deletions)
}

func TestEnsureDefaultThumbnails(t *testing.T) {
	env := newAvatarEnv(t)
	ctx := context.Background()

	// No default original: bootstrap is skipped, not failed.
	require.NoError(t, env.handlers.EnsureDefaultThumbnails(ctx))
	require.False(t, env.exists(t, userdomain.DefaultAvatarSmallSize1Path))

	img := imaging.New(400, 400, color.NRGBA{R: 10, G: 20, B: 30, A: 255})
	var buf bytes.Buffer
	require.NoError(t, imaging.Encode(&buf, img, imaging.JPEG))
	require.NoError(t, env.store.Save(ctx, userdomain.DefaultAvatarPath, &buf))

	require.NoError(t, env.handlers.EnsureDefaultThumbnails(ctx))
	require.True(t, env.exists(t, userdomain.DefaultAvatarSmallSize1Path))
	require.True(t, env.exists(t, userdomain.DefaultAvatarSmallSize2Path))
	require.True(t, env.exists(t, userdomain.DefaultAvatarSmallSize3Path))
}
