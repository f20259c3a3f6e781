package resources

import (
	"errors"
	"testing"
)

type fixture struct {
	reg       *Registry
	meshes    *Table[string]
	materials *Table[string]
	released  []Handle
}

func newFixture() *fixture {
	f := &fixture{reg: NewRegistry()}
	track := func(h Handle, _ string) error {
		f.released = append(f.released, h)
		return nil
	}
	f.meshes = NewTable[string](f.reg, KindMesh, track)
	f.materials = NewTable[string](f.reg, KindMaterial, track)
	return f
}

func TestHandle_String(t *testing.T) {
	if s := (Handle{Kind: KindMesh, ID: 3}).String(); s != "Mesh#3" {
		t.Errorf("expected Mesh#3, got %s", s)
	}
	if KindBackdropTexture.DefaultName() != "Unnamed Backdrop Texture" {
		t.Errorf("unexpected default name %q", KindBackdropTexture.DefaultName())
	}
}

func TestTable_AddGet(t *testing.T) {
	f := newFixture()
	a := f.meshes.Add("a", "first")
	b := f.meshes.Add("b", "")
	m := f.materials.Add("m", "")

	if a.ID != 1 || b.ID != 2 || m.ID != 1 {
		t.Errorf("expected per-kind IDs 1, 2 and 1, got %d %d %d", a.ID, b.ID, m.ID)
	}
	if got, _ := f.meshes.Get(b); got != "b" {
		t.Errorf("expected b, got %q", got)
	}
	if name, _ := f.meshes.Name(b); name != "Unnamed Mesh" {
		t.Errorf("expected default name, got %q", name)
	}
	if f.reg.Name(a) != "first" {
		t.Errorf("expected name first, got %q", f.reg.Name(a))
	}
	if _, err := f.meshes.Get(m); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound for wrong kind, got %v", err)
	}
	if _, err := f.meshes.Get(Handle{Kind: KindMesh, ID: 99}); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound for unissued handle, got %v", err)
	}
}

func TestRegistry_IndependentCounters(t *testing.T) {
	f1, f2 := newFixture(), newFixture()
	f1.meshes.Add("x", "")
	f1.meshes.Add("y", "")
	if h := f2.meshes.Add("z", ""); h.ID != 1 {
		t.Errorf("expected registries not to share counters, got ID %d", h.ID)
	}
}

func TestTable_DisposeIdempotent(t *testing.T) {
	f := newFixture()
	h := f.meshes.Add("a", "")

	if err := f.meshes.Dispose(h); err != nil {
		t.Fatalf("Dispose failed: %v", err)
	}
	if err := f.reg.Dispose(h); err != nil {
		t.Errorf("expected second dispose to be a no-op, got %v", err)
	}
	if len(f.released) != 1 {
		t.Errorf("expected release once, got %d", len(f.released))
	}
	if !f.reg.IsDisposed(h) {
		t.Error("expected handle to be disposed")
	}
	if _, err := f.meshes.Get(h); !errors.Is(err, ErrDisposed) {
		t.Errorf("expected ErrDisposed, got %v", err)
	}
	if f.reg.Name(h) != "" {
		t.Errorf("expected name to be dropped, got %q", f.reg.Name(h))
	}
	next := f.meshes.Add("b", "")
	if next.ID != 2 {
		t.Errorf("expected IDs not to be reused, got %d", next.ID)
	}
}

func TestTable_DependencyViolation(t *testing.T) {
	f := newFixture()
	mesh := f.meshes.Add("mesh", "hull")
	mat := f.materials.Add("mat", "")
	model := f.reg.CreateModelGroup("ship")
	if err := model.Add(mesh); err != nil {
		t.Fatalf("Add failed: %v", err)
	}
	if err := model.Add(mat); err != nil {
		t.Fatalf("Add failed: %v", err)
	}

	err := f.reg.Dispose(mesh)
	if !errors.Is(err, ErrDependencyViolation) {
		t.Fatalf("expected ErrDependencyViolation, got %v", err)
	}
	var de *DependencyError
	if !errors.As(err, &de) {
		t.Fatalf("expected *DependencyError, got %T", err)
	}
	if de.Name != "hull" || len(de.Dependents) != 1 || de.Dependents[0] != model.Handle() {
		t.Errorf("unexpected dependency error %+v", de)
	}
	if f.reg.IsDisposed(mesh) || f.reg.IsDisposed(mat) {
		t.Error("expected mesh and material to stay intact")
	}
	if len(f.released) != 0 {
		t.Errorf("expected nothing released, got %v", f.released)
	}

	if err := model.Dispose(); err != nil {
		t.Fatalf("model Dispose failed: %v", err)
	}
	if f.reg.IsDisposed(mesh) {
		t.Error("expected non-cascading model to leave its mesh alive")
	}
	if err := f.reg.Dispose(mesh); err != nil {
		t.Errorf("expected mesh dispose to succeed after model, got %v", err)
	}
}

func TestGroup_SealAndCascade(t *testing.T) {
	f := newFixture()
	g := f.reg.CreateGroup(true, 3, "")
	a := f.meshes.Add("a", "")
	m := f.materials.Add("m", "")
	b := f.meshes.Add("b", "")
	for _, h := range []Handle{a, m, b} {
		if err := g.Add(h); err != nil {
			t.Fatalf("Add failed: %v", err)
		}
	}
	g.Seal()
	if err := g.Add(f.meshes.Add("c", "")); !errors.Is(err, ErrGroupSealed) {
		t.Errorf("expected ErrGroupSealed, got %v", err)
	}
	if got := g.Of(KindMesh); len(got) != 2 || got[0] != a || got[1] != b {
		t.Errorf("unexpected meshes %v", got)
	}
	if g.Name() != "Unnamed Resource Group" {
		t.Errorf("unexpected group name %q", g.Name())
	}

	if err := g.Dispose(); err != nil {
		t.Fatalf("Dispose failed: %v", err)
	}
	expected := []Handle{b, m, a}
	if len(f.released) != len(expected) {
		t.Fatalf("expected %d releases, got %v", len(expected), f.released)
	}
	for i, h := range expected {
		if f.released[i] != h {
			t.Errorf("release %d: expected %s, got %s", i, h, f.released[i])
		}
	}
	if !g.IsDisposed() || !f.reg.IsDisposed(g.Handle()) {
		t.Error("expected group to be disposed")
	}
	if err := g.Dispose(); err != nil {
		t.Errorf("expected second group dispose to be a no-op, got %v", err)
	}
}

func TestGroup_CascadeCombinesErrors(t *testing.T) {
	f := newFixture()
	g := f.reg.CreateGroup(true, 2, "outer")
	mesh := f.meshes.Add("a", "")
	mat := f.materials.Add("m", "")
	g.Add(mesh)
	g.Add(mat)

	// a model outside the group keeps the mesh alive
	model := f.reg.CreateModelGroup("")
	model.Add(mesh)

	err := g.Dispose()
	if !errors.Is(err, ErrDependencyViolation) {
		t.Fatalf("expected combined dependency error, got %v", err)
	}
	if !f.reg.IsDisposed(mat) {
		t.Error("expected teardown to continue past the failing member")
	}
	if f.reg.IsDisposed(mesh) {
		t.Error("expected mesh to survive")
	}
}

func TestTracker(t *testing.T) {
	tr := NewTracker()
	a := Handle{Kind: KindModel, ID: 1}
	b := Handle{Kind: KindModel, ID: 2}
	x := Handle{Kind: KindMesh, ID: 1}

	tr.Register(b, x)
	tr.Register(a, x)
	if deps := tr.Dependents(x); len(deps) != 2 || deps[0] != a {
		t.Errorf("expected sorted dependents, got %v", deps)
	}
	tr.Unregister(a, x)
	if err := tr.CheckDisposable(x); !errors.Is(err, ErrDependencyViolation) {
		t.Errorf("expected violation while b remains, got %v", err)
	}
	tr.DropDependent(b)
	if err := tr.CheckDisposable(x); err != nil {
		t.Errorf("expected no dependents, got %v", err)
	}
	if len(tr.Targets(b)) != 0 {
		t.Errorf("expected b to have no targets, got %v", tr.Targets(b))
	}
}

func TestRegistry_UnknownKind(t *testing.T) {
	r := NewRegistry()
	if err := r.Dispose(Handle{Kind: KindMesh, ID: 1}); !errors.Is(err, ErrUnknownKind) {
		t.Errorf("expected ErrUnknownKind, got %v", err)
	}
	if !r.IsDisposed(Handle{Kind: KindTexture, ID: 1}) {
		t.Error("expected handle of unregistered kind to read as disposed")
	}
}
