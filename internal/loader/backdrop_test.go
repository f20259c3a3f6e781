package loader

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/Faultbox/assetforge/internal/resources"
	"github.com/Faultbox/assetforge/pkg/bridge"
)

var ktxMagic = []byte{0xAB, 'K', 'T', 'X', ' ', '1', '1', 0xBB, '\r', '\n', 0x1A, '\n'}

func writeBackdropFiles(t *testing.T, dir, base string) (skybox, ibl string) {
	t.Helper()
	skybox = filepath.Join(dir, base+"_skybox.ktx")
	ibl = filepath.Join(dir, base+"_ibl.ktx")
	for _, p := range []string{skybox, ibl} {
		if err := os.WriteFile(p, ktxMagic, 0o644); err != nil {
			t.Fatal(err)
		}
	}
	return skybox, ibl
}

func TestLoadBackdropTexture(t *testing.T) {
	l, mem, _ := newTestLoader(t)
	dir := t.TempDir()
	skybox, ibl := writeBackdropFiles(t, dir, "sky")

	h, err := l.LoadBackdropTexture(skybox, ibl, "")
	if err != nil {
		t.Fatalf("LoadBackdropTexture failed: %v", err)
	}
	if h.Kind != resources.KindBackdropTexture {
		t.Errorf("expected backdrop handle, got %v", h)
	}
	if mem.Backdrops() != 2 {
		t.Errorf("expected 2 loaded components, got %d", mem.Backdrops())
	}
	if name, _ := l.BackdropName(h); name != "Unnamed Backdrop Texture" {
		t.Errorf("expected default name, got %q", name)
	}
	if _, err := l.Backdrop(h); err != nil {
		t.Errorf("expected live backdrop, got %v", err)
	}
	if l.Outstanding() != 0 {
		t.Errorf("expected 0 outstanding buffers, got %d", l.Outstanding())
	}

	if err := l.DisposeBackdrop(h); err != nil {
		t.Fatalf("DisposeBackdrop failed: %v", err)
	}
	if err := l.DisposeBackdrop(h); err != nil {
		t.Errorf("expected second dispose to be a no-op, got %v", err)
	}
	if !l.IsBackdropDisposed(h) {
		t.Error("expected backdrop disposed")
	}
	if mem.Backdrops() != 0 {
		t.Errorf("expected components unloaded, got %d", mem.Backdrops())
	}
}

func TestLoadBackdropTexture_Errors(t *testing.T) {
	l, mem, _ := newTestLoader(t)
	dir := t.TempDir()
	skybox, ibl := writeBackdropFiles(t, dir, "sky")

	_, err := l.LoadBackdropTexture(filepath.Join(dir, "none.ktx"), ibl, "")
	if !errors.Is(err, ErrFileNotFound) {
		t.Errorf("expected ErrFileNotFound, got %v", err)
	}

	mem.FailOn("LoadIBL", bridge.ErrorDecode)
	if _, err := l.LoadBackdropTexture(skybox, ibl, ""); bridge.CodeOf(err) != bridge.ErrorDecode {
		t.Errorf("expected decode failure, got %v", err)
	}
	if mem.Backdrops() != 0 {
		t.Errorf("expected skybox unloaded after ibl failure, got %d", mem.Backdrops())
	}
	if l.Outstanding() != 0 {
		t.Errorf("expected 0 outstanding buffers, got %d", l.Outstanding())
	}
}

func TestLoadBackdropTextureFromDirectory(t *testing.T) {
	l, mem, _ := newTestLoader(t)
	dir := t.TempDir()

	if _, err := l.LoadBackdropTextureFromDirectory(dir, "env"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}

	writeBackdropFiles(t, dir, "studio")
	h, err := l.LoadBackdropTextureFromDirectory(dir, "env")
	if err != nil {
		t.Fatalf("LoadBackdropTextureFromDirectory failed: %v", err)
	}
	if name, _ := l.BackdropName(h); name != "env" {
		t.Errorf("expected name env, got %q", name)
	}

	// Close unloads backdrops still held by the loader
	if err := l.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if mem.Backdrops() != 0 {
		t.Errorf("expected backdrops unloaded on close, got %d", mem.Backdrops())
	}
}

func writeScript(t *testing.T, body string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell scripts are not executable on windows")
	}
	path := filepath.Join(t.TempDir(), "fakecmgen")
	if err := os.WriteFile(path, []byte("#!/bin/sh\n"+body+"\n"), 0o755); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestPreprocessor(t *testing.T) {
	// arguments are -q -f ktx -x <dest> <src>
	script := writeScript(t, `touch "$5/out_skybox.ktx" "$5/out_ibl.ktx"`)
	src := filepath.Join(t.TempDir(), "env.hdr")
	if err := os.WriteFile(src, []byte("hdr"), 0o644); err != nil {
		t.Fatal(err)
	}
	dest := filepath.Join(t.TempDir(), "nested", "out")

	p := NewPreprocessor(script, time.Second)
	if err := p.Run(context.Background(), src, dest); err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	skybox, ibl, err := findBackdropFiles(dest)
	if err != nil {
		t.Fatalf("expected output files: %v", err)
	}
	if filepath.Base(skybox) != "out_skybox.ktx" || filepath.Base(ibl) != "out_ibl.ktx" {
		t.Errorf("unexpected outputs %s, %s", skybox, ibl)
	}

	if err := p.Run(context.Background(), filepath.Join(t.TempDir(), "none.hdr"), dest); !errors.Is(err, ErrFileNotFound) {
		t.Errorf("expected ErrFileNotFound, got %v", err)
	}
}

func TestPreprocessor_Failures(t *testing.T) {
	src := filepath.Join(t.TempDir(), "env.hdr")
	if err := os.WriteFile(src, []byte("hdr"), 0o644); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name    string
		body    string
		timeout time.Duration
	}{
		{"no output", `echo "bad input"`, time.Second},
		{"timeout", `exec sleep 5`, 100 * time.Millisecond},
		{"child holds output", `sleep 5 & exec sleep 5`, 100 * time.Millisecond},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := NewPreprocessor(writeScript(t, tt.body), tt.timeout)
			start := time.Now()
			err := p.Run(context.Background(), src, t.TempDir())
			if !errors.Is(err, ErrPreprocess) {
				t.Errorf("expected ErrPreprocess, got %v", err)
			}
			if elapsed := time.Since(start); elapsed > 3*time.Second {
				t.Errorf("expected Run bounded by its timeout, took %v", elapsed)
			}
		})
	}

	p := NewPreprocessor(filepath.Join(t.TempDir(), "missing"), time.Second)
	if err := p.Run(context.Background(), src, t.TempDir()); !errors.Is(err, ErrPreprocess) {
		t.Errorf("expected ErrPreprocess for a missing tool, got %v", err)
	}
}

func TestPreprocessHDR(t *testing.T) {
	script := writeScript(t, `for f in "$5/a_skybox.ktx" "$5/a_ibl.ktx"; do printf '\253KTX 11\273\r\n\032\n' > "$f"; done`)
	src := filepath.Join(t.TempDir(), "env.exr")
	if err := os.WriteFile(src, []byte("exr"), 0o644); err != nil {
		t.Fatal(err)
	}

	mem := bridge.NewMemory()
	reg := resources.NewRegistry()
	l, err := New(mem, reg, newStore(reg), testConfig(), WithPreprocessor(NewPreprocessor(script, time.Second)))
	if err != nil {
		t.Fatal(err)
	}
	defer l.Close()

	dest := t.TempDir()
	if err := l.PreprocessHDR(context.Background(), src, dest); err != nil {
		t.Fatalf("PreprocessHDR failed: %v", err)
	}
	skybox, _, err := findBackdropFiles(dest)
	if err != nil {
		t.Fatal(err)
	}
	data, err := os.ReadFile(skybox)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != string(ktxMagic) {
		t.Errorf("expected KTX header from tool, got %q", data)
	}
	if _, err := l.LoadBackdropTextureFromDirectory(dest, ""); err != nil {
		t.Errorf("expected preprocessed backdrop to load, got %v", err)
	}
}

func TestPreprocessorName(t *testing.T) {
	want := map[string]string{"windows": "cmgen.exe", "darwin": "cmgen_mac"}[runtime.GOOS]
	if want == "" {
		want = "cmgen"
	}
	if got := PreprocessorName(); got != want {
		t.Errorf("expected %s, got %s", want, got)
	}
}
