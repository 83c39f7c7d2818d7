package avatar

import (
	"bytes"
	"context"
	"errors"
	"image"
	"path"
	"strings"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/disintegration/imaging"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/studygrove/studygrove/internal/outbox"
	"github.com/studygrove/studygrove/internal/storage"
	"github.com/studygrove/studygrove/internal/tasks"
	userdomain "github.com/studygrove/studygrove/internal/user/domain"
)

// Handlers are the worker-side consumers for the avatar topics.
type Handlers struct {
	db       *gorm.DB
	runner   *outbox.Runner
	users    userdomain.Repository
	store    storage.Store
	enqueuer *tasks.Enqueuer
	logger   *zap.Logger
}

func NewHandlers(
	db *gorm.DB,
	runner *outbox.Runner,
	users userdomain.Repository,
	store storage.Store,
	enqueuer *tasks.Enqueuer,
	logger *zap.Logger,
) *Handlers {
	return &Handlers{
		db:       db,
		runner:   runner,
		users:    users,
		store:    store,
		enqueuer: enqueuer,
		logger:   logger.Named("avatar.handlers"),
	}
}

// HandleGenerateThumbnails renders the three thumbnail sizes for the
// carried original and points the user row at them. A decode or encode
// failure on one size is logged and skipped; the other sizes still
// land. Whatever happens, the superseded paths carried in the message
// are chained into a delete task afterwards.
func (h *Handlers) HandleGenerateThumbnails(ctx context.Context, msg *message.Message) error {
	var p tasks.GenerateAvatarThumbnailsPayload
	if err := tasks.Decode(msg, &p); err != nil {
		return err
	}
	defer h.chainCleanup(ctx, p.UserID, p.SupersededPaths)

	user, err := h.users.FindByID(ctx, h.db, p.UserID)
	if err != nil {
		if errors.Is(err, userdomain.ErrNotFound) {
			return nil
		}
		return err
	}
	// The row moved on to another upload or back to the default while
	// this task sat in the queue.
	if user.Avatar != p.SourcePath || userdomain.IsDefaultAvatarPath(p.SourcePath) {
		return nil
	}

	src, err := h.decodeSource(ctx, p.SourcePath)
	if err != nil {
		h.logger.Warn("avatar source unreadable, keeping default thumbnails",
			zap.Int64("user_id", p.UserID), zap.String("path", p.SourcePath), zap.Error(err))
		return nil
	}

	generated := map[int]string{}
	for slot, size := range userdomain.AvatarSmallSizes {
		target := ThumbnailPath(p.SourcePath, slot)
		if ok, err := h.store.Exists(ctx, target); err == nil && ok {
			generated[slot] = target
			continue
		}
		if err := h.renderThumbnail(ctx, src, target, size); err != nil {
			h.logger.Warn("thumbnail generation failed for one size",
				zap.Int64("user_id", p.UserID), zap.Int("slot", slot),
				zap.Int("size", size), zap.Error(err))
			continue
		}
		generated[slot] = target
	}
	if len(generated) == 0 {
		return nil
	}

	return h.runner.Run(ctx, func(ctx context.Context, tx *gorm.DB) error {
		user, err := h.users.FindByIDForUpdate(ctx, tx, p.UserID)
		if err != nil {
			if errors.Is(err, userdomain.ErrNotFound) {
				return nil
			}
			return err
		}
		if user.Avatar != p.SourcePath {
			return nil
		}
		if path, ok := generated[1]; ok {
			user.AvatarSmallSize1 = path
		}
		if path, ok := generated[2]; ok {
			user.AvatarSmallSize2 = path
		}
		if path, ok := generated[3]; ok {
			user.AvatarSmallSize3 = path
		}
		return h.users.UpdateAvatarPaths(ctx, tx, user)
	})
}

// HandleDeleteStoragePaths removes avatar files. Explicit paths are
// deleted as given; an empty list falls back to sweeping the user's
// whole prefix, sparing only files the live row still references.
// Deletes are idempotent and the system images are never touched.
func (h *Handlers) HandleDeleteStoragePaths(ctx context.Context, msg *message.Message) error {
	var p tasks.DeleteStoragePathsPayload
	if err := tasks.Decode(msg, &p); err != nil {
		return err
	}

	targets := p.Paths
	if len(targets) == 0 {
		var err error
		targets, err = h.sweepTargets(ctx, p.UserID)
		if err != nil {
			return err
		}
	}

	var errs []error
	for _, target := range targets {
		if userdomain.IsDefaultAvatarPath(target) {
			continue
		}
		if err := h.store.Delete(ctx, target); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (h *Handlers) sweepTargets(ctx context.Context, userID int64) ([]string, error) {
	listed, err := h.store.List(ctx, userdomain.AvatarPrefix(userID))
	if err != nil {
		return nil, err
	}

	live := map[string]struct{}{}
	user, err := h.users.FindByID(ctx, h.db, userID)
	if err == nil {
		for _, p := range user.OwnedAvatarPaths() {
			live[p] = struct{}{}
		}
	} else if !errors.Is(err, userdomain.ErrNotFound) {
		return nil, err
	}

	targets := make([]string, 0, len(listed))
	for _, p := range listed {
		if _, ok := live[p]; ok {
			continue
		}
		targets = append(targets, p)
	}
	return targets, nil
}

func (h *Handlers) chainCleanup(ctx context.Context, userID int64, paths []string) {
	if len(paths) == 0 {
		return
	}
	h.enqueuer.EnqueueLogged(ctx, tasks.TopicDeleteStoragePaths,
		tasks.DeleteStoragePathsPayload{UserID: userID, Paths: paths})
}

func (h *Handlers) decodeSource(ctx context.Context, sourcePath string) (image.Image, error) {
	r, err := h.store.Open(ctx, sourcePath)
	if err != nil {
		return nil, err
	}
	defer r.Close()
	return imaging.Decode(r, imaging.AutoOrientation(true))
}

func (h *Handlers) renderThumbnail(ctx context.Context, src image.Image, target string, size int) error {
	format, err := imaging.FormatFromExtension(strings.TrimPrefix(path.Ext(target), "."))
	if err != nil {
		return err
	}

	thumb := imaging.Fit(src, size, size, imaging.Lanczos)
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, thumb, format); err != nil {
		return err
	}
	return h.store.Save(ctx, target, &buf)
}

// EnsureDefaultThumbnails renders the system image's thumbnails once at
// startup so new accounts always have something to show.
func (h *Handlers) EnsureDefaultThumbnails(ctx context.Context) error {
	exists, err := h.store.Exists(ctx, userdomain.DefaultAvatarPath)
	if err != nil {
		return err
	}
	if !exists {
		h.logger.Warn("default avatar missing from storage, skipping bootstrap",
			zap.String("path", userdomain.DefaultAvatarPath))
		return nil
	}

	src, err := h.decodeSource(ctx, userdomain.DefaultAvatarPath)
	if err != nil {
		return err
	}

	defaults := map[int]string{
		1: userdomain.DefaultAvatarSmallSize1Path,
		2: userdomain.DefaultAvatarSmallSize2Path,
		3: userdomain.DefaultAvatarSmallSize3Path,
	}
	var errs []error
	for slot, target := range defaults {
		if ok, err := h.store.Exists(ctx, target); err == nil && ok {
			continue
		}
		if err := h.renderThumbnail(ctx, src, target, userdomain.AvatarSmallSizes[slot]); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
