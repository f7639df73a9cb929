package s3

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sync"
)

var _ Storage = (*MemoryStorage)(nil)

// MemoryStorage хранилище объектов в памяти для локального запуска без S3
type MemoryStorage struct {
	mu      sync.RWMutex
	objects map[string]memoryObject
}

type memoryObject struct {
	data        []byte
	contentType string
}

func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{objects: make(map[string]memoryObject)}
}

func (m *MemoryStorage) PutObject(ctx context.Context, key string, body io.Reader, size int64, contentType string) error {
	if key == "" || body == nil {
		return fmt.Errorf("key and body are required")
	}
	data, err := io.ReadAll(body)
	if err != nil {
		return fmt.Errorf("failed to read object body: %w", err)
	}
	if int64(len(data)) != size {
		return fmt.Errorf("object size mismatch: expected %d, got %d", size, len(data))
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	m.objects[key] = memoryObject{data: data, contentType: contentType}
	m.mu.Unlock()
	return nil
}

func (m *MemoryStorage) GetObject(_ context.Context, key string) (Object, error) {
	m.mu.RLock()
	obj, ok := m.objects[key]
	m.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrObjectNotFound, key)
	}

	return &s3Object{
		ReadCloser:    io.NopCloser(bytes.NewReader(obj.data)),
		contentLength: int64(len(obj.data)),
		contentType:   obj.contentType,
	}, nil
}

func (m *MemoryStorage) DeleteObject(_ context.Context, key string) error {
	m.mu.Lock()
	delete(m.objects, key)
	m.mu.Unlock()
	return nil
}

// Len число хранимых объектов
func (m *MemoryStorage) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.objects)
}
