package storage

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// LocalStore writes objects below a directory on disk and serves them from
// baseURL, typically the app's static uploads route.
type LocalStore struct {
	dir     string
	baseURL string
}

// NewLocalStore creates dir if needed.
func NewLocalStore(dir, baseURL string) (*LocalStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create storage dir: %w", err)
	}
	return &LocalStore{dir: dir, baseURL: baseURL}, nil
}

func (l *LocalStore) path(key string) (string, error) {
	key, err := CleanKey(key)
	if err != nil {
		return "", err
	}
	return filepath.Join(l.dir, filepath.FromSlash(key)), nil
}

// Put streams into a ".part" file and renames it into place on success.
// The temp file is removed on any failure, including cancellation.
func (l *LocalStore) Put(ctx context.Context, obj Object, onProgress ProgressFunc) (err error) {
	dst, err := l.path(obj.Key)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return fmt.Errorf("create object dir: %w", err)
	}
	tmp := dst + ".part"
	f, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("create temp object: %w", err)
	}
	defer func() {
		if err != nil {
			_ = os.Remove(tmp)
		}
	}()

	if _, err = io.Copy(f, newProgressReader(ctx, obj.Body, obj.Size, onProgress)); err != nil {
		f.Close()
		return fmt.Errorf("write object: %w", err)
	}
	if err = f.Close(); err != nil {
		return fmt.Errorf("close object: %w", err)
	}
	if err = os.Rename(tmp, dst); err != nil {
		return fmt.Errorf("commit object: %w", err)
	}
	return nil
}

// URL returns baseURL/key if the object exists.
func (l *LocalStore) URL(ctx context.Context, key string) (string, error) {
	p, err := l.path(key)
	if err != nil {
		return "", err
	}
	if _, err := os.Stat(p); err != nil {
		if os.IsNotExist(err) {
			return "", ErrNotFound
		}
		return "", err
	}
	cleaned, _ := CleanKey(key)
	return joinURL(l.baseURL, cleaned), nil
}

// Delete removes the object file, ignoring files that are already gone.
func (l *LocalStore) Delete(ctx context.Context, key string) error {
	p, err := l.path(key)
	if err != nil {
		return err
	}
	if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}
