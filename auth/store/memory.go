package store

import (
	"context"

	"github.com/viant/authpipe/internal/collection"
)

type memoryBackend struct {
	values *collection.SyncMap[string, string]
}

func (m *memoryBackend) Get(_ context.Context, keys ...string) (map[string]string, error) {
	return m.values.GetAll(keys...), nil
}

func (m *memoryBackend) Set(_ context.Context, values map[string]string) error {
	m.values.PutAll(values)
	return nil
}

func (m *memoryBackend) Delete(_ context.Context, keys ...string) error {
	m.values.Delete(keys...)
	return nil
}

// NewMemoryBackend returns a process-local Backend.
func NewMemoryBackend() Backend {
	return &memoryBackend{values: collection.NewSyncMap[string, string]()}
}

// NewMemoryStore is a shortcut for New(NewMemoryBackend(), options...).
func NewMemoryStore(options ...Option) *Store {
	return New(NewMemoryBackend(), options...)
}
