package objectstore

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"
)

// MemStore is an in-memory Store used by tests and offline tooling.
type MemStore struct {
	mu      sync.RWMutex
	objects map[string][]byte
	mtimes  map[string]time.Time

	// FailPut, when set, is returned by Put to exercise failure paths.
	FailPut error
}

var _ Store = (*MemStore)(nil)

// NewMemStore creates an empty in-memory store.
func NewMemStore() *MemStore {
	return &MemStore{
		objects: make(map[string][]byte),
		mtimes:  make(map[string]time.Time),
	}
}

// Seed stores an object without going through Put's failure hook.
func (m *MemStore) Seed(key string, data []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[key] = append([]byte(nil), data...)
	m.mtimes[key] = time.Now().UTC()
}

// SeedSized stores a zero-filled object of the given size. Listings only
// expose identities and sizes, so resolver tests never need real bodies.
func (m *MemStore) SeedSized(key string, size int64) {
	m.Seed(key, make([]byte, size))
}

func (m *MemStore) List(_ context.Context, prefix string) ([]Object, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []Object
	for key, data := range m.objects {
		if !strings.HasPrefix(key, prefix) {
			continue
		}
		out = append(out, Object{
			Key:          key,
			Size:         int64(len(data)),
			LastModified: m.mtimes[key],
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

func (m *MemStore) Get(_ context.Context, key string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	data, ok := m.objects[key]
	if !ok {
		return nil, &StoreError{Op: "Get", Bucket: "mem", Key: key, Err: ErrNotFound}
	}
	return append([]byte(nil), data...), nil
}

func (m *MemStore) Put(_ context.Context, key string, data []byte) error {
	if m.FailPut != nil {
		return &StoreError{Op: "Put", Bucket: "mem", Key: key, Err: m.FailPut}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[key] = append([]byte(nil), data...)
	m.mtimes[key] = time.Now().UTC()
	return nil
}

func (m *MemStore) Download(ctx context.Context, key, localPath string) error {
	b, err := m.Get(ctx, key)
	if err != nil {
		return err
	}
	if dir := filepath.Dir(localPath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("create download dir: %w", err)
		}
	}
	return os.WriteFile(localPath, b, 0644)
}

func (m *MemStore) Upload(ctx context.Context, key, localPath string) error {
	b, err := os.ReadFile(localPath)
	if err != nil {
		return fmt.Errorf("read upload source: %w", err)
	}
	return m.Put(ctx, key, b)
}

func (m *MemStore) IsEmpty(_ context.Context, key string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	data, ok := m.objects[key]
	return !ok || len(data) == 0, nil
}

func (m *MemStore) Close() error {
	return nil
}
