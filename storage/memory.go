package storage

import (
	"bytes"
	"context"
	"io"
	"sync"
)

type memObject struct {
	data         []byte
	contentType  string
	cacheControl string
}

// MemoryStore keeps objects in process memory. It is used by tests and by
// development setups without a bucket.
type MemoryStore struct {
	mu      sync.Mutex
	objects map[string]memObject
	baseURL string
}

// NewMemoryStore constructs a store whose URLs are rooted at baseURL.
func NewMemoryStore(baseURL string) *MemoryStore {
	return &MemoryStore{objects: make(map[string]memObject), baseURL: baseURL}
}

// Put buffers the payload and stores it only once fully read.
func (m *MemoryStore) Put(ctx context.Context, obj Object, onProgress ProgressFunc) error {
	key, err := CleanKey(obj.Key)
	if err != nil {
		return err
	}
	var buf bytes.Buffer
	if _, err := io.Copy(&buf, newProgressReader(ctx, obj.Body, obj.Size, onProgress)); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[key] = memObject{
		data:         buf.Bytes(),
		contentType:  obj.ContentType,
		cacheControl: obj.CacheControl,
	}
	return nil
}

// URL returns baseURL/key for stored objects.
func (m *MemoryStore) URL(ctx context.Context, key string) (string, error) {
	key, err := CleanKey(key)
	if err != nil {
		return "", err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.objects[key]; !ok {
		return "", ErrNotFound
	}
	return joinURL(m.baseURL, key), nil
}

// Delete removes a stored payload.
func (m *MemoryStore) Delete(ctx context.Context, key string) error {
	key, err := CleanKey(key)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.objects, key)
	return nil
}

// Bytes returns a copy of the stored payload for assertions.
func (m *MemoryStore) Bytes(key string) ([]byte, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	obj, ok := m.objects[key]
	return append([]byte(nil), obj.data...), ok
}

// Len returns the number of stored objects.
func (m *MemoryStore) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.objects)
}
