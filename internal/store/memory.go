package store

import (
	"context"
	"sort"
	"sync"
)

// Memory is a map-backed KV. A non-zero quota caps the total bytes of
// stored values, mimicking a browser storage quota.
type Memory struct {
	mu    sync.Mutex
	data  map[string]map[string][]byte
	used  int
	quota int
}

func NewMemory(quota int) *Memory {
	return &Memory{data: make(map[string]map[string][]byte), quota: quota}
}

func (m *Memory) Get(_ context.Context, bucket, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.data[bucket][key]
	if !ok {
		return nil, ErrNotFound
	}
	return append([]byte(nil), v...), nil
}

func (m *Memory) Set(_ context.Context, bucket, key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	b := m.data[bucket]
	used := m.used - len(b[key]) + len(value)
	if m.quota > 0 && used > m.quota {
		return ErrCapacity
	}
	if b == nil {
		b = make(map[string][]byte)
		m.data[bucket] = b
	}
	b[key] = append([]byte(nil), value...)
	m.used = used
	return nil
}

func (m *Memory) Delete(_ context.Context, bucket, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if v, ok := m.data[bucket][key]; ok {
		m.used -= len(v)
		delete(m.data[bucket], key)
	}
	return nil
}

func (m *Memory) Iterate(_ context.Context, bucket string, fn func(string, []byte) error) error {
	m.mu.Lock()
	b := m.data[bucket]
	keys := make([]string, 0, len(b))
	vals := make(map[string][]byte, len(b))
	for k, v := range b {
		keys = append(keys, k)
		vals[k] = append([]byte(nil), v...)
	}
	m.mu.Unlock()

	sort.Strings(keys)
	for _, k := range keys {
		if err := fn(k, vals[k]); err != nil {
			return err
		}
	}
	return nil
}

func (m *Memory) Clear(_ context.Context, bucket string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, v := range m.data[bucket] {
		m.used -= len(v)
	}
	delete(m.data, bucket)
	return nil
}

func (m *Memory) Close() error { return nil }

// Used reports the bytes currently stored.
func (m *Memory) Used() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.used
}
