// Package avatar owns the per-user avatar lifecycle: upload, thumbnail
// generation, and removal of files no user row references anymore.
package avatar

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/studygrove/studygrove/internal/outbox"
	"github.com/studygrove/studygrove/internal/storage"
	"github.com/studygrove/studygrove/internal/tasks"
	userdomain "github.com/studygrove/studygrove/internal/user/domain"
)

var ErrUnsupportedFormat = errors.New("avatar: unsupported image format")

var allowedExts = map[string]struct{}{
	".jpg":  {},
	".jpeg": {},
	".png":  {},
}

// Service handles the request-side avatar operations. File writes for
// the original happen before the row update; thumbnail generation and
// old-generation cleanup run on the worker tier after commit.
type Service struct {
	db       *gorm.DB
	runner   *outbox.Runner
	users    userdomain.Repository
	store    storage.Store
	enqueuer *tasks.Enqueuer
	logger   *zap.Logger
}

func NewService(
	db *gorm.DB,
	runner *outbox.Runner,
	users userdomain.Repository,
	store storage.Store,
	enqueuer *tasks.Enqueuer,
	logger *zap.Logger,
) *Service {
	return &Service{
		db:       db,
		runner:   runner,
		users:    users,
		store:    store,
		enqueuer: enqueuer,
		logger:   logger.Named("avatar.service"),
	}
}

// SetAvatar stores the uploaded original under a fresh token and swaps
// the row to it. The previous generation's paths are computed before
// the row is overwritten and ride in the thumbnail task, so their
// deletion is chained strictly after the new thumbnails exist.
func (s *Service) SetAvatar(ctx context.Context, userID int64, upload io.Reader, filename string) (string, error) {
	ext := strings.ToLower(path.Ext(filename))
	if _, ok := allowedExts[ext]; !ok {
		return "", ErrUnsupportedFormat
	}

	newPath := fmt.Sprintf("%s%s%s", userdomain.AvatarPrefix(userID), uuid.NewString(), ext)
	if err := s.store.Save(ctx, newPath, upload); err != nil {
		return "", err
	}

	err := s.runner.Run(ctx, func(ctx context.Context, tx *gorm.DB) error {
		user, err := s.users.FindByIDForUpdate(ctx, tx, userID)
		if err != nil {
			return err
		}
		superseded := user.OwnedAvatarPaths()

		user.Avatar = newPath
		user.AvatarSmallSize1 = userdomain.DefaultAvatarSmallSize1Path
		user.AvatarSmallSize2 = userdomain.DefaultAvatarSmallSize2Path
		user.AvatarSmallSize3 = userdomain.DefaultAvatarSmallSize3Path
		if err := s.users.UpdateAvatarPaths(ctx, tx, user); err != nil {
			return err
		}

		outbox.Register(ctx, func(ctx context.Context) {
			s.enqueuer.EnqueueLogged(ctx, tasks.TopicGenerateAvatarThumbnails,
				tasks.GenerateAvatarThumbnailsPayload{
					UserID:          userID,
					SourcePath:      newPath,
					SupersededPaths: superseded,
				})
		})
		return nil
	})
	if err != nil {
		// The row still points at the old generation; the stored
		// original is an orphan the prefix sweep can reclaim later.
		return "", err
	}
	return newPath, nil
}

// ClearAvatar resets the row to the system images and queues deletion
// of the replaced generation.
func (s *Service) ClearAvatar(ctx context.Context, userID int64) error {
	return s.runner.Run(ctx, func(ctx context.Context, tx *gorm.DB) error {
		user, err := s.users.FindByIDForUpdate(ctx, tx, userID)
		if err != nil {
			return err
		}
		superseded := user.OwnedAvatarPaths()
		if len(superseded) == 0 {
			return nil
		}

		user.Avatar = userdomain.DefaultAvatarPath
		user.AvatarSmallSize1 = userdomain.DefaultAvatarSmallSize1Path
		user.AvatarSmallSize2 = userdomain.DefaultAvatarSmallSize2Path
		user.AvatarSmallSize3 = userdomain.DefaultAvatarSmallSize3Path
		if err := s.users.UpdateAvatarPaths(ctx, tx, user); err != nil {
			return err
		}

		outbox.Register(ctx, func(ctx context.Context) {
			s.enqueuer.EnqueueLogged(ctx, tasks.TopicDeleteStoragePaths,
				tasks.DeleteStoragePathsPayload{UserID: userID, Paths: superseded})
		})
		return nil
	})
}

// ThumbnailPath derives the slot's thumbnail path from the original:
// `avatars/7/ab12.png` becomes `avatars/7/ab12_small_size2.png`.
func ThumbnailPath(sourcePath string, slot int) string {
	ext := path.Ext(sourcePath)
	base := strings.TrimSuffix(sourcePath, ext)
	return fmt.Sprintf("%s_small_size%d%s", base, slot, ext)
}
