package media

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"mime"
	"os"
	"path/filepath"
)

// FilesystemStore keeps banners in <root>/banners.
type FilesystemStore struct {
	dir string
}

func NewFilesystemStore(root string) *FilesystemStore {
	return &FilesystemStore{dir: filepath.Join(root, Namespace)}
}

func (s *FilesystemStore) Dir() string {
	return s.dir
}

func (s *FilesystemStore) Put(_ context.Context, name string, body io.Reader, _ int64, _ string) error {
	if !ValidName(name) {
		return fmt.Errorf("invalid banner name %q", name)
	}
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("create banner dir: %w", err)
	}

	path := filepath.Join(s.dir, name)
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		if errors.Is(err, fs.ErrExist) {
			return ErrExists
		}
		return fmt.Errorf("create banner: %w", err)
	}
	if _, err := io.Copy(f, body); err != nil {
		_ = f.Close()
		_ = os.Remove(path)
		return fmt.Errorf("write banner: %w", err)
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(path)
		return fmt.Errorf("close banner: %w", err)
	}
	return nil
}

func (s *FilesystemStore) Open(_ context.Context, name string) (io.ReadCloser, Info, error) {
	if !ValidName(name) {
		return nil, Info{}, ErrNotFound
	}
	f, err := os.Open(filepath.Join(s.dir, name))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, Info{}, ErrNotFound
		}
		return nil, Info{}, fmt.Errorf("open banner: %w", err)
	}
	stat, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, Info{}, fmt.Errorf("stat banner: %w", err)
	}
	return f, Info{
		Size:        stat.Size(),
		ContentType: mime.TypeByExtension(filepath.Ext(name)),
		ModTime:     stat.ModTime(),
	}, nil
}

func (s *FilesystemStore) Delete(_ context.Context, name string) error {
	if !ValidName(name) {
		return ErrNotFound
	}
	err := os.Remove(filepath.Join(s.dir, name))
	if errors.Is(err, fs.ErrNotExist) {
		return ErrNotFound
	}
	return err
}
