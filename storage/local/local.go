// Package local stores artifacts on the local filesystem.
package local

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/kbukum/recipeflow/logger"
	"github.com/kbukum/recipeflow/storage"
)

func init() {
	storage.RegisterFactory(storage.ProviderLocal, func(cfg storage.Config, log *logger.Logger) (storage.Storage, error) {
		s, err := NewStorage(cfg.BasePath)
		if err != nil {
			return nil, err
		}
		s.prefix = cfg.Prefix
		s.publicBaseURL = strings.TrimRight(cfg.PublicBaseURL, "/")
		log.Debug("local storage ready", map[string]interface{}{"base_path": s.basePath})
		return s, nil
	})
}

// Storage implements storage.Storage using the local filesystem.
type Storage struct {
	basePath      string
	prefix        string
	publicBaseURL string
}

// NewStorage creates a local filesystem storage rooted at basePath.
func NewStorage(basePath string) (*Storage, error) {
	abs, err := filepath.Abs(basePath)
	if err != nil {
		return nil, fmt.Errorf("storage: resolve base path: %w", err)
	}
	if err := os.MkdirAll(abs, 0o750); err != nil {
		return nil, fmt.Errorf("storage: create base directory: %w", err)
	}
	return &Storage{basePath: abs}, nil
}

// key returns the slash-separated object key for p, prefix included.
func (s *Storage) key(p string) (string, error) {
	clean, err := storage.CleanPath(p)
	if err != nil {
		return "", err
	}
	return storage.Join(s.prefix, clean), nil
}

func (s *Storage) fullPath(p string) (string, string, error) {
	key, err := s.key(p)
	if err != nil {
		return "", "", err
	}
	return key, filepath.Join(s.basePath, filepath.FromSlash(key)), nil
}

// Put writes r to a file under the base path. Parent directories are created.
func (s *Storage) Put(ctx context.Context, p string, r io.Reader, contentType string) (*storage.Object, error) {
	key, full, err := s.fullPath(p)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Dir(full), 0o750); err != nil {
		return nil, fmt.Errorf("storage: create directory: %w", err)
	}

	// Write to a temp file and rename so readers never see a partial object.
	tmp, err := os.CreateTemp(filepath.Dir(full), ".upload-*")
	if err != nil {
		return nil, fmt.Errorf("storage: create file: %w", err)
	}
	n, copyErr := io.Copy(tmp, r)
	closeErr := tmp.Close()
	if copyErr != nil || closeErr != nil {
		_ = os.Remove(tmp.Name())
		if copyErr == nil {
			copyErr = closeErr
		}
		return nil, fmt.Errorf("storage: write file: %w", copyErr)
	}
	if err := os.Rename(tmp.Name(), full); err != nil {
		_ = os.Remove(tmp.Name())
		return nil, fmt.Errorf("storage: rename file: %w", err)
	}

	u, err := s.URL(ctx, p)
	if err != nil {
		return nil, err
	}
	return &storage.Object{Path: key, URL: u, Size: n, ContentType: contentType}, nil
}

// Get returns a reader for the file at p.
func (s *Storage) Get(_ context.Context, p string) (io.ReadCloser, error) {
	_, full, err := s.fullPath(p)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(full)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", storage.ErrNotFound, p)
		}
		return nil, fmt.Errorf("storage: open file: %w", err)
	}
	return f, nil
}

// Delete removes a file. Returns nil if the file does not exist.
func (s *Storage) Delete(_ context.Context, p string) error {
	_, full, err := s.fullPath(p)
	if err != nil {
		return err
	}
	if err := os.Remove(full); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("storage: delete file: %w", err)
	}
	return nil
}

// Exists checks whether a file exists at p.
func (s *Storage) Exists(_ context.Context, p string) (bool, error) {
	_, full, err := s.fullPath(p)
	if err != nil {
		return false, err
	}
	if _, err := os.Stat(full); err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("storage: stat file: %w", err)
	}
	return true, nil
}

// URL returns a file:// URL, or PublicBaseURL joined with the key when set.
func (s *Storage) URL(_ context.Context, p string) (string, error) {
	key, full, err := s.fullPath(p)
	if err != nil {
		return "", err
	}
	if s.publicBaseURL != "" {
		return s.publicBaseURL + "/" + key, nil
	}
	u := &url.URL{Scheme: "file", Path: filepath.ToSlash(full)}
	return u.String(), nil
}

// compile-time check
var _ storage.Storage = (*Storage)(nil)
