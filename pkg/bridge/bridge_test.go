package bridge

import (
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"testing"

	"github.com/ftrvxmtrx/tga"

	"github.com/Faultbox/assetforge/pkg/texel"
)

func TestResult_Err(t *testing.T) {
	if err := Success.Err("Op"); err != nil {
		t.Errorf("expected nil for success, got %v", err)
	}

	err := ErrorFileNotFound.Err("OpenAsset")
	var re *ResultError
	if !errors.As(err, &re) {
		t.Fatalf("expected *ResultError, got %T", err)
	}
	if re.Op != "OpenAsset" || re.Code != ErrorFileNotFound {
		t.Errorf("unexpected result error %+v", re)
	}
	if !errors.Is(err, ErrNotExist) {
		t.Error("expected file-not-found to match ErrNotExist")
	}
	if errors.Is(ErrorDecode.Err("x"), ErrNotExist) {
		t.Error("expected decode failure not to match ErrNotExist")
	}
	if CodeOf(err) != ErrorFileNotFound {
		t.Errorf("expected code %v, got %v", ErrorFileNotFound, CodeOf(err))
	}
	if CodeOf(errors.New("other")) != ErrorGeneric {
		t.Error("expected foreign errors to map to ErrorGeneric")
	}

	cause := errors.New("disk on fire")
	if !errors.Is(ErrorGeneric.Wrap("Op", cause), cause) {
		t.Error("expected wrapped cause to be reachable")
	}
}

func TestMaterialParam(t *testing.T) {
	p := Num(1, 0, 0.5, 1)
	if p.ToTexel() != (texel.RGBA32{R: 255, G: 0, B: 128, A: 255}) {
		t.Errorf("unexpected texel %v", p.ToTexel())
	}
	if !Tex(3).SameTexture(Tex(3)) {
		t.Error("expected identical texture refs to match")
	}
	if Tex(3).SameTexture(Tex(4)) || Num(0, 0, 0, 0).SameTexture(Num(0, 0, 0, 0)) {
		t.Error("expected different or numerical params not to match")
	}
}

func testAsset() *MemoryAsset {
	return &MemoryAsset{
		Meshes: []MemoryMesh{{
			Vertices:  []Vertex{{UV: [2]float32{0, 0.25}}, {}, {}},
			Triangles: []Triangle{{0, 1, 2}},
			Material:  0,
		}},
		Materials: []MemoryMaterial{{Params: MaterialParams{ParamColor: Tex(0)}, AlphaFormat: AlphaBlending, RefractionThickness: 0.3}},
		Textures:  []MemoryTexture{{Dims: texel.Dims{X: 2, Y: 1}, Texels: []texel.RGBA32{{R: 1}, {R: 2}}}},
	}
}

func TestMemory_Asset(t *testing.T) {
	m := NewMemory()
	m.AddAsset("a.obj", testAsset())

	h, err := m.OpenAsset("a.obj", true, true)
	if err != nil {
		t.Fatalf("OpenAsset failed: %v", err)
	}
	if m.OpenHandles() != 1 {
		t.Errorf("expected 1 open handle, got %d", m.OpenHandles())
	}

	if n, _ := m.MeshCount(h); n != 1 {
		t.Errorf("expected 1 mesh, got %d", n)
	}
	verts := make([]Vertex, 3)
	if err := m.CopyMeshVertices(h, 0, true, verts); err != nil {
		t.Fatalf("CopyMeshVertices failed: %v", err)
	}
	if verts[0].UV[1] != 0.75 {
		t.Errorf("expected flipped V 0.75, got %v", verts[0].UV[1])
	}
	if err := m.CopyMeshVertices(h, 0, false, make([]Vertex, 2)); CodeOf(err) != ErrorBufferTooSmall {
		t.Errorf("expected ErrorBufferTooSmall, got %v", err)
	}
	if _, err := m.MeshVertexCount(h, 5); CodeOf(err) != ErrorIndexOutOfRange {
		t.Errorf("expected ErrorIndexOutOfRange, got %v", err)
	}

	var params MaterialParams
	alpha, refr, err := m.MaterialData(h, 0, &params)
	if err != nil {
		t.Fatalf("MaterialData failed: %v", err)
	}
	if alpha != AlphaBlending || refr != 0.3 || params[ParamColor] != Tex(0) {
		t.Errorf("unexpected material data %d %v %+v", alpha, refr, params[ParamColor])
	}

	dst := make([]texel.RGBA32, 2)
	if w, hh, err := m.CopyTextureData(h, 0, "", dst); err != nil || w != 2 || hh != 1 {
		t.Fatalf("CopyTextureData: %d %d %v", w, hh, err)
	}
	if dst[1].R != 2 {
		t.Errorf("expected texel R 2, got %d", dst[1].R)
	}
	if m.TextureLoads(0) != 1 {
		t.Errorf("expected 1 texture load, got %d", m.TextureLoads(0))
	}

	if err := m.CloseAsset(h); err != nil {
		t.Fatalf("CloseAsset failed: %v", err)
	}
	if _, err := m.MeshCount(h); CodeOf(err) != ErrorInvalidHandle {
		t.Errorf("expected ErrorInvalidHandle after close, got %v", err)
	}
	if err := m.CloseAsset(h); err == nil {
		t.Error("expected error closing twice")
	}
}

func TestMemory_FailOn(t *testing.T) {
	m := NewMemory()
	m.AddAsset("a.obj", testAsset())
	m.FailOn("MeshCount", ErrorGeneric)

	h, _ := m.OpenAsset("a.obj", false, false)
	if _, err := m.MeshCount(h); CodeOf(err) != ErrorGeneric {
		t.Errorf("expected injected failure, got %v", err)
	}
	m.FailOn("MeshCount", Success)
	if _, err := m.MeshCount(h); err != nil {
		t.Errorf("expected failure to be cleared, got %v", err)
	}

	if _, err := m.OpenAsset("missing.obj", false, false); !errors.Is(err, ErrNotExist) {
		t.Errorf("expected ErrNotExist, got %v", err)
	}
}

func TestMemory_TextureFile(t *testing.T) {
	m := NewMemory()
	m.AddImage("t.png", MemoryImage{Dims: texel.Dims{X: 1, Y: 2}, Channels: 4, Texels: []texel.RGBA32{{1, 2, 3, 4}, {5, 6, 7, 8}}})

	w, h, ch, err := m.TextureFileInfo("t.png")
	if err != nil || w != 1 || h != 2 || ch != 4 {
		t.Fatalf("TextureFileInfo: %d %d %d %v", w, h, ch, err)
	}

	rgb := make([]byte, 6)
	if _, _, err := m.CopyTextureFile("t.png", false, rgb); err != nil {
		t.Fatalf("CopyTextureFile failed: %v", err)
	}
	if rgb[3] != 5 || rgb[5] != 7 {
		t.Errorf("unexpected packed RGB %v", rgb)
	}

	if _, _, err := m.CopyTextureFile("t.png", true, rgb); CodeOf(err) != ErrorBufferTooSmall {
		t.Errorf("expected ErrorBufferTooSmall for RGBA into 6 bytes, got %v", err)
	}
}

func writePNG(t *testing.T, path string, w, h int, c color.NRGBA) {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetNRGBA(x, y, c)
		}
	}
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create %s: %v", path, err)
	}
	defer f.Close()
	if err := png.Encode(f, img); err != nil {
		t.Fatalf("encode %s: %v", path, err)
	}
}

const testOBJ = `# two quads, two materials
mtllib scene.mtl
v 0 0 0
v 1 0 0
v 1 1 0
v 0 1 0
vt 0 0
vt 1 0
vt 1 1
vt 0 1
vn 0 0 1
usemtl red
f 1/1/1 2/2/1 3/3/1 4/4/1
usemtl textured
f 1/1 2/2 3/3
`

const testMTL = `newmtl red
Kd 1 0 0
Pr 0.5
Ni 1.5

newmtl textured
map_Kd -bm 1 albedo.png
Ns 100
map_Pm albedo.png
d 0.5
`

func TestDisk_OBJ(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "scene.obj"), []byte(testOBJ), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "scene.mtl"), []byte(testMTL), 0o644); err != nil {
		t.Fatal(err)
	}
	writePNG(t, filepath.Join(dir, "albedo.png"), 4, 2, color.NRGBA{10, 20, 30, 255})

	d := NewDisk()
	h, err := d.OpenAsset(filepath.Join(dir, "scene.obj"), true, true)
	if err != nil {
		t.Fatalf("OpenAsset failed: %v", err)
	}
	defer d.CloseAsset(h)

	if n, _ := d.MeshCount(h); n != 2 {
		t.Fatalf("expected 2 meshes, got %d", n)
	}
	if n, _ := d.MaterialCount(h); n != 2 {
		t.Fatalf("expected 2 materials, got %d", n)
	}
	if n, _ := d.TextureCount(h); n != 1 {
		t.Fatalf("expected 1 shared texture, got %d", n)
	}

	if n, _ := d.MeshVertexCount(h, 0); n != 4 {
		t.Errorf("expected 4 vertices in quad, got %d", n)
	}
	if n, _ := d.MeshTriangleCount(h, 0); n != 2 {
		t.Errorf("expected quad to triangulate into 2, got %d", n)
	}
	verts := make([]Vertex, 3)
	if err := d.CopyMeshVertices(h, 1, false, verts); err != nil {
		t.Fatalf("CopyMeshVertices failed: %v", err)
	}
	if verts[0].Normal != [3]float32{0, 0, 1} {
		t.Errorf("expected computed normal +Z, got %v", verts[0].Normal)
	}
	if idx, _ := d.MeshMaterialIndex(h, 1); idx != 1 {
		t.Errorf("expected mesh 1 to use material 1, got %d", idx)
	}

	var params MaterialParams
	if _, _, err := d.MaterialData(h, 0, &params); err != nil {
		t.Fatalf("MaterialData failed: %v", err)
	}
	if params[ParamColor] != Num(1, 0, 0, 1) {
		t.Errorf("unexpected color param %+v", params[ParamColor])
	}
	if params[ParamRoughness] != Num(0.5, 0.5, 0.5, 1) {
		t.Errorf("unexpected roughness param %+v", params[ParamRoughness])
	}
	if params[ParamIoR].Format != Numerical || params[ParamIoR].R != 1.5 {
		t.Errorf("unexpected IoR param %+v", params[ParamIoR])
	}

	alpha, refr, _ := d.MaterialData(h, 1, &params)
	if alpha != AlphaBlending || refr >= 0 {
		t.Errorf("expected blending and no refraction thickness, got %d %v", alpha, refr)
	}
	if !params[ParamColor].SameTexture(params[ParamMetallic]) {
		t.Error("expected color and metallic to share one texture")
	}
	if params[ParamGlossiness].Format != Numerical {
		t.Errorf("expected glossiness from Ns, got %+v", params[ParamGlossiness])
	}

	w, hh, err := d.TextureSize(h, 0, dir)
	if err != nil || w != 4 || hh != 2 {
		t.Fatalf("TextureSize: %d %d %v", w, hh, err)
	}
	texels := make([]texel.RGBA32, 8)
	if _, _, err := d.CopyTextureData(h, 0, dir, texels); err != nil {
		t.Fatalf("CopyTextureData failed: %v", err)
	}
	if texels[7] != (texel.RGBA32{10, 20, 30, 255}) {
		t.Errorf("unexpected texel %v", texels[7])
	}
}

func TestDisk_Errors(t *testing.T) {
	dir := t.TempDir()
	d := NewDisk()

	_, err := d.OpenAsset(filepath.Join(dir, "missing.obj"), false, false)
	if !errors.Is(err, ErrNotExist) || !errors.Is(err, fs.ErrNotExist) {
		t.Errorf("expected not-exist error, got %v", err)
	}
	if _, err := d.OpenAsset(filepath.Join(dir, "model.fbx"), false, false); CodeOf(err) != ErrorUnsupportedFormat {
		t.Errorf("expected ErrorUnsupportedFormat, got %v", err)
	}

	bad := filepath.Join(dir, "bad.obj")
	os.WriteFile(bad, []byte("v 0 0 0\nf 1 2 3\n"), 0o644)
	if _, err := d.OpenAsset(bad, false, false); CodeOf(err) != ErrorDecode {
		t.Errorf("expected ErrorDecode for out-of-range face, got %v", err)
	}

	if _, err := d.LoadSkybox([]byte("not ktx")); CodeOf(err) != ErrorUnsupportedFormat {
		t.Errorf("expected ErrorUnsupportedFormat for skybox, got %v", err)
	}
	sky, err := d.LoadSkybox(append(append([]byte{}, ktxMagic...), "11"...))
	if err != nil {
		t.Fatalf("LoadSkybox failed: %v", err)
	}
	if err := d.UnloadSkybox(sky); err != nil {
		t.Errorf("UnloadSkybox failed: %v", err)
	}
}

func TestDisk_TextureFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "half.png")
	writePNG(t, path, 2, 2, color.NRGBA{200, 100, 50, 128})

	d := NewDisk()
	w, h, ch, err := d.TextureFileInfo(path)
	if err != nil {
		t.Fatalf("TextureFileInfo failed: %v", err)
	}
	if w != 2 || h != 2 || ch != 4 {
		t.Errorf("expected 2x2 with 4 channels, got %dx%d with %d", w, h, ch)
	}

	buf := make([]byte, 16)
	if _, _, err := d.CopyTextureFile(path, true, buf); err != nil {
		t.Fatalf("CopyTextureFile failed: %v", err)
	}
	if buf[0] != 200 || buf[3] != 128 {
		t.Errorf("unexpected texel bytes %v", buf[:4])
	}
}

func TestDisk_TextureFormats(t *testing.T) {
	img := image.NewNRGBA(image.Rect(0, 0, 3, 2))
	for i := 0; i < 6; i++ {
		img.SetNRGBA(i%3, i/3, color.NRGBA{10, 20, 30, 255})
	}

	tests := []struct {
		name   string
		file   string
		encode func(io.Writer, image.Image) error
		exact  bool
	}{
		{"png", "a.png", png.Encode, true},
		{"jpeg", "a.jpg", func(w io.Writer, m image.Image) error { return jpeg.Encode(w, m, nil) }, false},
		{"tga", "a.tga", tga.Encode, true},
	}
	d := NewDisk()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), tt.file)
			f, err := os.Create(path)
			if err != nil {
				t.Fatal(err)
			}
			if err := tt.encode(f, img); err != nil {
				t.Fatal(err)
			}
			f.Close()

			w, h, _, err := d.TextureFileInfo(path)
			if err != nil {
				t.Fatalf("TextureFileInfo failed: %v", err)
			}
			if w != 3 || h != 2 {
				t.Errorf("expected 3x2, got %dx%d", w, h)
			}
			buf := make([]byte, 3*2*3)
			if _, _, err := d.CopyTextureFile(path, false, buf); err != nil {
				t.Fatalf("CopyTextureFile failed: %v", err)
			}
			if tt.exact && (buf[0] != 10 || buf[1] != 20 || buf[2] != 30) {
				t.Errorf("expected texel {10 20 30}, got %v", buf[:3])
			}
		})
	}

	path := filepath.Join(t.TempDir(), "junk.tga")
	if err := os.WriteFile(path, []byte("not an image"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, _, _, err := d.TextureFileInfo(path); CodeOf(err) != ErrorDecode {
		t.Errorf("expected decode failure, got %v", err)
	}
}
