// Package assets holds the CPU-side resource builders and the cached file
// source used by the disk import bridge.
package assets

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
)

// Manager reads asset files through a cache. Files missing at their given
// path are looked up by base name in the search roots, last added first.
type Manager struct {
	roots []string
	cache *Cache
	mu    sync.RWMutex
}

// NewManager creates a new asset manager.
func NewManager() *Manager {
	return &Manager{
		cache: NewCache(),
	}
}

// AddRoot adds a texture search directory.
func (m *Manager) AddRoot(dir string) error {
	info, err := os.Stat(dir)
	if err != nil {
		return fmt.Errorf("adding search root %s: %w", dir, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("adding search root %s: not a directory", dir)
	}

	m.mu.Lock()
	m.roots = append(m.roots, dir)
	m.mu.Unlock()

	return nil
}

// Roots returns the search roots in the order they were added.
func (m *Manager) Roots() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]string(nil), m.roots...)
}

// ReadFile returns the contents of path. It implements bridge.FileSource.
func (m *Manager) ReadFile(path string) ([]byte, error) {
	// Check cache first
	if data, ok := m.cache.Get(path); ok {
		return data, nil
	}

	data, err := os.ReadFile(path)
	if err == nil {
		m.cache.Set(path, data)
		return data, nil
	}
	if !errors.Is(err, fs.ErrNotExist) {
		return nil, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	// Search roots in reverse order
	base := filepath.Base(path)
	for i := len(m.roots) - 1; i >= 0; i-- {
		data, rerr := os.ReadFile(filepath.Join(m.roots[i], base))
		if rerr == nil {
			m.cache.Set(path, data)
			return data, nil
		}
	}

	return nil, err
}

// Forget drops a cached file so the next read hits the disk.
func (m *Manager) Forget(path string) { m.cache.Delete(path) }

// Cache returns the manager's cache.
func (m *Manager) Cache() *Cache { return m.cache }

// Close drops the search roots and cached data.
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.roots = nil
	m.cache.Clear()
}
