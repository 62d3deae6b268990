package blob

import (
	"context"
	"fmt"
	"net/url"
	"sync"
	"time"
)

var _ Store = (*MemoryStore)(nil)

// MemoryStore keeps blobs in memory. Presigned URLs point at a fake host and
// are only useful for tests and local development.
type MemoryStore struct {
	mu      sync.RWMutex
	objects map[string]Object
	now     func() time.Time
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		objects: make(map[string]Object),
		now:     time.Now,
	}
}

func (m *MemoryStore) Put(_ context.Context, key string, body []byte, contentType string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.objects[key] = Object{Body: append([]byte(nil), body...), ContentType: contentType}
	return nil
}

func (m *MemoryStore) Get(_ context.Context, key string) (*Object, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	obj, ok := m.objects[key]
	if !ok {
		return nil, ErrNotFound
	}
	obj.Body = append([]byte(nil), obj.Body...)
	return &obj, nil
}

func (m *MemoryStore) PresignUpload(_ context.Context, key, contentType string, ttl time.Duration) (string, error) {
	return m.presign("PUT", key, ttl), nil
}

func (m *MemoryStore) PresignDownload(_ context.Context, key string, ttl time.Duration) (string, error) {
	return m.presign("GET", key, ttl), nil
}

func (m *MemoryStore) presign(method, key string, ttl time.Duration) string {
	q := url.Values{}
	q.Set("method", method)
	q.Set("expires", fmt.Sprint(m.now().Add(ttl).Unix()))
	return (&url.URL{Scheme: "memory", Host: "blobs", Path: "/" + key, RawQuery: q.Encode()}).String()
}
