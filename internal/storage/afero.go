package storage

import (
	"context"
	"io"
	"os"
	"path"
	"strings"

	"github.com/spf13/afero"
	"github.com/studygrove/studygrove/internal/config"
	"go.uber.org/fx"
)

type fsStore struct {
	fs afero.Fs
}

// NewFilesystemStore returns a Store rooted at dir on the host filesystem.
func NewFilesystemStore(dir string) Store {
	return &fsStore{fs: afero.NewBasePathFs(afero.NewOsFs(), dir)}
}

// NewMemStore returns an in-memory Store for tests.
func NewMemStore() Store {
	return &fsStore{fs: afero.NewMemMapFs()}
}

func fromConfig(cfg config.Config) Store {
	return NewFilesystemStore(cfg.StorageRoot)
}

func (s *fsStore) Save(ctx context.Context, p string, r io.Reader) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if dir := path.Dir(p); dir != "." {
		if err := s.fs.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	f, err := s.fs.Create(p)
	if err != nil {
		return err
	}
	if _, err := io.Copy(f, r); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

func (s *fsStore) Open(ctx context.Context, p string) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f, err := s.fs.Open(p)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return f, nil
}

func (s *fsStore) Exists(ctx context.Context, p string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	return afero.Exists(s.fs, p)
}

func (s *fsStore) Delete(ctx context.Context, p string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := s.fs.Remove(p); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

func (s *fsStore) List(ctx context.Context, prefix string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	dir := strings.TrimSuffix(prefix, "/")
	entries, err := afero.ReadDir(s.fs, dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	paths := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		paths = append(paths, path.Join(dir, e.Name()))
	}
	return paths, nil
}

// Module provides the filesystem-backed blob store.
var Module = fx.Module("storage",
	fx.Provide(fromConfig),
)
