package loader

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/Faultbox/assetforge/internal/resources"
	"github.com/Faultbox/assetforge/pkg/bridge"
)

const watchOBJ = `v 0 0 0
v 1 0 0
v 0 1 0
f 1 2 3
`

type forgetLog struct {
	mu    sync.Mutex
	paths []string
}

func (f *forgetLog) Forget(path string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.paths = append(f.paths, path)
}

func (f *forgetLog) len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.paths)
}

func nextReload(t *testing.T, w *Watcher) Reload {
	t.Helper()
	select {
	case r, ok := <-w.Results():
		if !ok {
			t.Fatal("results closed")
		}
		return r
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for reload")
	}
	return Reload{}
}

func TestWatcher(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "model.obj")
	if err := os.WriteFile(path, []byte(watchOBJ), 0o644); err != nil {
		t.Fatal(err)
	}

	reg := resources.NewRegistry()
	store := newStore(reg)
	l, err := New(bridge.NewDisk(), reg, store, testConfig())
	if err != nil {
		t.Fatal(err)
	}
	defer l.Close()

	forgets := &forgetLog{}
	w, err := NewWatcher(l, AssetConfig{Name: "watched"}, DefaultAssetReadConfig(),
		WithForgetter(forgets), WithWatchDelay(20*time.Millisecond))
	if err != nil {
		t.Fatalf("NewWatcher failed: %v", err)
	}

	if err := w.Watch(path); err != nil {
		t.Fatalf("Watch failed: %v", err)
	}
	first := nextReload(t, w)
	if first.Err != nil {
		t.Fatalf("initial import failed: %v", first.Err)
	}
	if first.Group == nil || len(first.Group.Of(resources.KindModel)) != 1 {
		t.Fatalf("expected one model, got %+v", first.Group)
	}
	if first.Session == "" {
		t.Error("expected a session id")
	}

	if err := os.WriteFile(path, []byte(watchOBJ+"v 1 1 0\nf 2 4 3\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	second := nextReload(t, w)
	if second.Err != nil {
		t.Fatalf("re-import failed: %v", second.Err)
	}
	if !first.Group.IsDisposed() {
		t.Error("expected previous import disposed")
	}
	mesh, err := store.Mesh(second.Group.Of(resources.KindMesh)[0])
	if err != nil {
		t.Fatal(err)
	}
	if len(mesh.Triangles) != 2 {
		t.Errorf("expected re-imported mesh with 2 triangles, got %d", len(mesh.Triangles))
	}
	if forgets.len() == 0 {
		t.Error("expected changed file forgotten")
	}

	if err := w.Close(); err != nil {
		t.Errorf("Close failed: %v", err)
	}
	for range w.Results() {
	}
	if err := w.Watch(path); err == nil {
		t.Error("expected error watching after close")
	}
	if second.Group.IsDisposed() {
		t.Error("expected imports to survive Close")
	}
}

func TestWatcher_ImportError(t *testing.T) {
	reg := resources.NewRegistry()
	l, err := New(bridge.NewDisk(), reg, newStore(reg), testConfig())
	if err != nil {
		t.Fatal(err)
	}
	defer l.Close()

	w, err := NewWatcher(l, AssetConfig{}, DefaultAssetReadConfig())
	if err != nil {
		t.Fatal(err)
	}
	defer w.Close()

	path := filepath.Join(t.TempDir(), "scene.fbx")
	if err := os.WriteFile(path, []byte("binary"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := w.Watch(path); err != nil {
		t.Fatal(err)
	}
	r := nextReload(t, w)
	if r.Err == nil || r.Group != nil {
		t.Errorf("expected unsupported format error, got %+v", r)
	}
	if bridge.CodeOf(r.Err) != bridge.ErrorUnsupportedFormat {
		t.Errorf("expected unsupported format, got %v", r.Err)
	}
}
