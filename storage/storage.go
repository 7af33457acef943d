package storage

import (
	"bytes"
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io"
	"path"
	"strings"
)

var (
	// ErrNotFound is returned by Get for a missing object.
	ErrNotFound = stderrors.New("storage: object not found")
	// ErrInvalidPath is returned for paths escaping the storage root.
	ErrInvalidPath = stderrors.New("storage: invalid path")
)

// Object describes a stored artifact.
type Object struct {
	Path        string `json:"path"`
	URL         string `json:"url"`
	Size        int64  `json:"size"`
	ContentType string `json:"contentType,omitempty"`
}

// Storage defines the object storage operations the engine needs.
type Storage interface {
	// Put writes r to path and returns where it can be fetched.
	Put(ctx context.Context, path string, r io.Reader, contentType string) (*Object, error)

	// Get returns a reader for the object at path. The caller closes it.
	Get(ctx context.Context, path string) (io.ReadCloser, error)

	// Delete removes the object at path. A missing object is not an error.
	Delete(ctx context.Context, path string) error

	// Exists checks whether an object exists at path.
	Exists(ctx context.Context, path string) (bool, error)

	// URL returns the address of the object at path.
	URL(ctx context.Context, path string) (string, error)
}

// PutJSON encodes v as indented JSON and stores it at p.
func PutJSON(ctx context.Context, s Storage, p string, v any) (*Object, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("storage: encode json: %w", err)
	}
	return s.Put(ctx, p, bytes.NewReader(data), "application/json")
}

// CleanPath normalizes p to a slash-separated relative key and rejects
// paths that climb out of the root.
func CleanPath(p string) (string, error) {
	p = strings.TrimLeft(strings.ReplaceAll(p, "\\", "/"), "/")
	if p == "" {
		return "", fmt.Errorf("%w: empty", ErrInvalidPath)
	}
	clean := path.Clean(p)
	if clean == "." || clean == ".." || strings.HasPrefix(clean, "../") {
		return "", fmt.Errorf("%w: %q", ErrInvalidPath, p)
	}
	return clean, nil
}

// Join prefixes key with prefix when one is set.
func Join(prefix, key string) string {
	prefix = strings.Trim(prefix, "/")
	if prefix == "" {
		return key
	}
	return prefix + "/" + key
}
