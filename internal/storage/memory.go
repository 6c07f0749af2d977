package storage

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"
)

// MemoryStore is an in-process object store. Presigned URLs point at a fake
// host; Put simulates the client upload.
type MemoryStore struct {
	mu      sync.Mutex
	objects map[string]string
	cdnBase string
}

// NewMemoryStore creates an empty store serving public URLs under cdnBase
func NewMemoryStore(cdnBase string) *MemoryStore {
	return &MemoryStore{objects: make(map[string]string), cdnBase: strings.TrimRight(cdnBase, "/")}
}

func (m *MemoryStore) PresignUpload(_ context.Context, key, contentType string, size int64, _ map[string]string, ttl time.Duration) (string, error) {
	q := url.Values{}
	q.Set("contentType", contentType)
	q.Set("size", fmt.Sprint(size))
	q.Set("expires", fmt.Sprint(int(ttl.Seconds())))
	return "https://uploads.invalid/" + key + "?" + q.Encode(), nil
}

// Put records an uploaded object
func (m *MemoryStore) Put(key, contentType string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[key] = contentType
}

func (m *MemoryStore) Exists(_ context.Context, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.objects[key]
	return ok, nil
}

func (m *MemoryStore) PublicURL(key string) string {
	return m.cdnBase + "/" + key
}
