package loader

import (
	"errors"
	"testing"

	"github.com/Faultbox/assetforge/pkg/bridge"
)

func twoMeshAsset() *bridge.MemoryAsset {
	quad := bridge.MemoryMesh{
		Vertices:  make([]bridge.Vertex, 4),
		Triangles: []bridge.Triangle{{A: 0, B: 1, C: 2}, {A: 2, B: 3, C: 0}},
	}
	return &bridge.MemoryAsset{
		Meshes:    []bridge.MemoryMesh{triangleMesh(0), quad},
		Materials: []bridge.MemoryMaterial{material(nil)},
	}
}

func TestReadMeshMetadata(t *testing.T) {
	l, mem, _ := newTestLoader(t)
	mem.AddAsset("asset", twoMeshAsset())

	md, err := l.ReadMeshMetadata("asset", MeshReadConfig{})
	if err != nil {
		t.Fatalf("ReadMeshMetadata failed: %v", err)
	}
	want := MeshMetadata{Meshes: 2, Vertices: 7, Triangles: 3}
	if md != want {
		t.Errorf("expected %+v, got %+v", want, md)
	}
	if mem.OpenHandles() != 0 {
		t.Errorf("expected asset closed, got %d open", mem.OpenHandles())
	}
}

func TestLoadMesh(t *testing.T) {
	l, mem, store := newTestLoader(t)
	mem.AddAsset("asset", twoMeshAsset())

	h, err := l.LoadMesh("asset", "combined", MeshReadConfig{})
	if err != nil {
		t.Fatalf("LoadMesh failed: %v", err)
	}
	m, err := store.Mesh(h)
	if err != nil {
		t.Fatal(err)
	}
	if len(m.Vertices) != 7 || len(m.Triangles) != 3 {
		t.Fatalf("expected 7 vertices and 3 triangles, got %d and %d", len(m.Vertices), len(m.Triangles))
	}
	// the quad's indices follow the triangle's three vertices
	if m.Triangles[1] != (bridge.Triangle{A: 3, B: 4, C: 5}) {
		t.Errorf("expected rebased triangle, got %+v", m.Triangles[1])
	}
	if m.Triangles[2] != (bridge.Triangle{A: 5, B: 6, C: 3}) {
		t.Errorf("expected rebased triangle, got %+v", m.Triangles[2])
	}
	if name, _ := store.Meshes().Name(h); name != "combined" {
		t.Errorf("expected name combined, got %q", name)
	}
	if l.Outstanding() != 0 {
		t.Errorf("expected 0 outstanding buffers, got %d", l.Outstanding())
	}
}

func TestReadMesh(t *testing.T) {
	l, mem, _ := newTestLoader(t)
	mem.AddAsset("asset", twoMeshAsset())

	vertices := make([]bridge.Vertex, 7)
	triangles := make([]bridge.Triangle, 3)
	md, err := l.ReadMesh("asset", MeshReadConfig{}, vertices, triangles)
	if err != nil {
		t.Fatalf("ReadMesh failed: %v", err)
	}
	if md.Vertices != 7 || md.Triangles != 3 {
		t.Errorf("unexpected metadata %+v", md)
	}
	if triangles[2] != (bridge.Triangle{A: 5, B: 6, C: 3}) {
		t.Errorf("expected rebased triangle, got %+v", triangles[2])
	}

	tests := []struct {
		name      string
		vertices  int
		triangles int
	}{
		{"vertices", 6, 3},
		{"triangles", 7, 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := l.ReadMesh("asset", MeshReadConfig{}, make([]bridge.Vertex, tt.vertices), make([]bridge.Triangle, tt.triangles))
			if !errors.Is(err, ErrBufferTooSmall) {
				t.Errorf("expected ErrBufferTooSmall, got %v", err)
			}
			if mem.OpenHandles() != 0 {
				t.Errorf("expected asset closed, got %d open", mem.OpenHandles())
			}
		})
	}
}

func TestLoadMesh_Oversized(t *testing.T) {
	l, mem, _ := newTestLoader(t)
	huge := bridge.MemoryMesh{Vertices: make([]bridge.Vertex, 1<<12)}
	mem.AddAsset("asset", &bridge.MemoryAsset{Meshes: []bridge.MemoryMesh{huge}})

	// oversized requests get a dedicated buffer instead of failing
	h, err := l.LoadMesh("asset", "", MeshReadConfig{})
	if err != nil {
		t.Fatalf("LoadMesh failed: %v", err)
	}
	if h.IsZero() {
		t.Error("expected a mesh handle")
	}
	if l.Outstanding() != 0 {
		t.Errorf("expected 0 outstanding buffers, got %d", l.Outstanding())
	}
}
