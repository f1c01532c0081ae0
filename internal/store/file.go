package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// File keeps every bucket in one JSON document, rewritten atomically
// (temp file then rename) on each change. A non-zero quota caps the
// document size in bytes.
type File struct {
	mu    sync.Mutex
	path  string
	quota int
	mem   *Memory
}

type fileDoc map[string]map[string]string

// OpenFile loads path if it exists; a missing file starts empty.
func OpenFile(path string, quota int) (*File, error) {
	if path == "" {
		return nil, fmt.Errorf("file store path is empty")
	}
	f := &File{path: path, quota: quota, mem: NewMemory(0)}

	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return f, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read store file: %w", err)
	}
	var doc fileDoc
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse store file %s: %w", path, err)
	}
	ctx := context.Background()
	for bucket, kv := range doc {
		for k, v := range kv {
			if err := f.mem.Set(ctx, bucket, k, []byte(v)); err != nil {
				return nil, err
			}
		}
	}
	return f, nil
}

func (f *File) Get(ctx context.Context, bucket, key string) ([]byte, error) {
	return f.mem.Get(ctx, bucket, key)
}

func (f *File) Set(ctx context.Context, bucket, key string, value []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	prev, prevErr := f.mem.Get(ctx, bucket, key)
	if err := f.mem.Set(ctx, bucket, key, value); err != nil {
		return err
	}
	if err := f.flush(); err != nil {
		if prevErr == nil {
			_ = f.mem.Set(ctx, bucket, key, prev)
		} else {
			_ = f.mem.Delete(ctx, bucket, key)
		}
		return err
	}
	return nil
}

func (f *File) Delete(ctx context.Context, bucket, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	prev, prevErr := f.mem.Get(ctx, bucket, key)
	if err := f.mem.Delete(ctx, bucket, key); err != nil {
		return err
	}
	if err := f.flush(); err != nil {
		if prevErr == nil {
			_ = f.mem.Set(ctx, bucket, key, prev)
		}
		return err
	}
	return nil
}

func (f *File) Iterate(ctx context.Context, bucket string, fn func(string, []byte) error) error {
	return f.mem.Iterate(ctx, bucket, fn)
}

func (f *File) Clear(ctx context.Context, bucket string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	prev := make(map[string][]byte)
	if err := f.mem.Iterate(ctx, bucket, func(k string, v []byte) error {
		prev[k] = append([]byte(nil), v...)
		return nil
	}); err != nil {
		return err
	}
	if err := f.mem.Clear(ctx, bucket); err != nil {
		return err
	}
	if err := f.flush(); err != nil {
		for k, v := range prev {
			_ = f.mem.Set(ctx, bucket, k, v)
		}
		return err
	}
	return nil
}

func (f *File) Close() error { return nil }

// flush serializes the whole store. Callers hold f.mu.
func (f *File) flush() error {
	doc := make(fileDoc)
	f.mem.mu.Lock()
	for bucket, kv := range f.mem.data {
		if len(kv) == 0 {
			continue
		}
		m := make(map[string]string, len(kv))
		for k, v := range kv {
			m[k] = string(v)
		}
		doc[bucket] = m
	}
	f.mem.mu.Unlock()

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("encode store file: %w", err)
	}
	if f.quota > 0 && len(data) > f.quota {
		return ErrCapacity
	}

	tmp, err := os.CreateTemp(filepath.Dir(f.path), filepath.Base(f.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp store file: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("write temp store file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("close temp store file: %w", err)
	}
	if err := os.Rename(tmp.Name(), f.path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("replace store file: %w", err)
	}
	return nil
}
