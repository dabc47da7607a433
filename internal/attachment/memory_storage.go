package attachment

import (
	"context"
	"io"
	"sync"
)

// MemoryStorage is an in-memory Storage for tests and local development.
type MemoryStorage struct {
	mu      sync.RWMutex
	objects map[string][]byte
	baseURL string
}

// NewMemoryStorage creates an in-memory storage serving from baseURL.
func NewMemoryStorage(baseURL string) *MemoryStorage {
	return &MemoryStorage{
		objects: make(map[string][]byte),
		baseURL: baseURL,
	}
}

// Put stores the object under key and returns its URL.
func (s *MemoryStorage) Put(_ context.Context, key string, upload Upload) (string, error) {
	data, err := io.ReadAll(upload.Content)
	if err != nil {
		return "", err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects[key] = data
	return s.baseURL + "/" + key, nil
}

// Remove deletes the object under key.
func (s *MemoryStorage) Remove(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.objects, key)
	return nil
}

// Get returns a stored object's bytes, for test assertions.
func (s *MemoryStorage) Get(key string) ([]byte, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	data, ok := s.objects[key]
	return data, ok
}

// Ensure MemoryStorage implements Storage.
var _ Storage = (*MemoryStorage)(nil)
