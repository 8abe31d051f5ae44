// Package storage provides the object stores that uploaded media lands in.
// Every backend reports transfer progress and guarantees that a failed or
// cancelled Put leaves no partial object behind.
package storage

import (
	"context"
	"errors"
	"io"
	"path"
	"strings"
)

var (
	// ErrNotFound is returned when a key has no stored object.
	ErrNotFound = errors.New("storage: object not found")
	// ErrInvalidKey is returned for empty keys or keys escaping the store root.
	ErrInvalidKey = errors.New("storage: invalid key")
)

// ProgressFunc is called during a transfer with the bytes sent so far and the
// declared total. total is -1 when the size is unknown.
type ProgressFunc func(sent, total int64)

// Object describes a payload to store.
type Object struct {
	Key          string
	ContentType  string
	CacheControl string
	Size         int64
	Body         io.Reader
}

// Store abstracts the object store so upload logic stays unit testable.
type Store interface {
	// Put streams obj to the store. onProgress may be nil.
	Put(ctx context.Context, obj Object, onProgress ProgressFunc) error
	// URL returns the canonical retrieval URL for key.
	URL(ctx context.Context, key string) (string, error)
	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error
}

// CleanKey normalizes a slash-separated key and rejects keys that are empty
// or contain parent references.
func CleanKey(key string) (string, error) {
	key = strings.TrimSpace(strings.ReplaceAll(key, "\\", "/"))
	for _, seg := range strings.Split(key, "/") {
		if seg == ".." {
			return "", ErrInvalidKey
		}
	}
	cleaned := strings.TrimPrefix(path.Clean("/"+key), "/")
	if cleaned == "" {
		return "", ErrInvalidKey
	}
	return cleaned, nil
}

// joinURL appends an escaped key to base.
func joinURL(base, key string) string {
	segments := strings.Split(key, "/")
	for i, s := range segments {
		segments[i] = escapeSegment(s)
	}
	return strings.TrimRight(base, "/") + "/" + strings.Join(segments, "/")
}
