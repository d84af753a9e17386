package tenantstore

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// FileBackend keeps one JSON file per user and kind:
// <root>/<user-dir>/<kind>.json.
type FileBackend struct {
	root string

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func NewFileBackend(root string) *FileBackend {
	return &FileBackend{root: root, locks: make(map[string]*sync.Mutex)}
}

func (b *FileBackend) path(userDir, kind string) string {
	return filepath.Join(b.root, userDir, kind+".json")
}

func (b *FileBackend) lock(key string) *sync.Mutex {
	b.mu.Lock()
	defer b.mu.Unlock()
	l, ok := b.locks[key]
	if !ok {
		l = &sync.Mutex{}
		b.locks[key] = l
	}
	return l
}

func (b *FileBackend) Read(_ context.Context, userDir, kind string) (*Envelope, error) {
	data, err := os.ReadFile(b.path(userDir, kind))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("decode %s: %w", kind, err)
	}
	return &env, nil
}

func (b *FileBackend) Update(ctx context.Context, userDir, kind string, fn func(cur *Envelope) (*Envelope, error)) error {
	path := b.path(userDir, kind)
	l := b.lock(path)
	l.Lock()
	defer l.Unlock()

	cur, err := b.Read(ctx, userDir, kind)
	if err != nil {
		return err
	}
	next, err := fn(cur)
	if err != nil {
		return err
	}

	data, err := json.MarshalIndent(next, "", "  ")
	if err != nil {
		return err
	}
	return writeFileAtomic(path, data)
}

func (b *FileBackend) Close() error { return nil }

// writeFileAtomic writes to a temp file in the same directory and renames it
// over path, so readers see the old record or the new one.
func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return err
	}
	return nil
}
