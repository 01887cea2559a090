package storage

import (
	"bytes"
	"context"
	"fmt"
	"sync"

	"github.com/solatis/microproto/internal/types"
)

// MemoryKV keeps values in process memory. Values vanish on exit.
type MemoryKV struct {
	mu   sync.RWMutex
	data map[string][]byte
}

func NewMemoryKV() *MemoryKV {
	return &MemoryKV{data: make(map[string][]byte)}
}

func (m *MemoryKV) Get(_ context.Context, key string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.data[key]
	if !ok {
		return nil, fmt.Errorf("%s: %w", key, types.ErrNotFound)
	}
	return bytes.Clone(v), nil
}

func (m *MemoryKV) Put(_ context.Context, key string, value []byte) error {
	m.mu.Lock()
	m.data[key] = bytes.Clone(value)
	m.mu.Unlock()
	return nil
}

func (m *MemoryKV) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	delete(m.data, key)
	m.mu.Unlock()
	return nil
}

func (m *MemoryKV) Clear(_ context.Context) error {
	m.mu.Lock()
	clear(m.data)
	m.mu.Unlock()
	return nil
}

// Keys returns the stored keys, for listings.
func (m *MemoryKV) Keys() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	keys := make([]string, 0, len(m.data))
	for k := range m.data {
		keys = append(keys, k)
	}
	return keys
}

// MemoryBlobs is a BlobStore over a MemoryKV.
type MemoryBlobs struct {
	kv *MemoryKV
}

func NewMemoryBlobs() *MemoryBlobs { return &MemoryBlobs{kv: NewMemoryKV()} }

func (m *MemoryBlobs) PutBody(ctx context.Context, key string, body []byte) error {
	return m.kv.Put(ctx, key, body)
}

func (m *MemoryBlobs) GetBody(ctx context.Context, key string) ([]byte, error) {
	return m.kv.Get(ctx, key)
}

func (m *MemoryBlobs) DeleteBody(ctx context.Context, key string) error {
	return m.kv.Delete(ctx, key)
}
