package bridge

import (
	"sync"

	"github.com/Faultbox/assetforge/pkg/texel"
)

// MemoryMesh is one sub-mesh of an in-memory asset.
type MemoryMesh struct {
	Vertices  []Vertex
	Triangles []Triangle
	Material  int
}

// MemoryMaterial is one material of an in-memory asset.
type MemoryMaterial struct {
	Params              MaterialParams
	AlphaFormat         int32
	RefractionThickness float32
}

// MemoryTexture is an embedded texture. Dims may be invalid to simulate
// malformed data.
type MemoryTexture struct {
	Dims   texel.Dims
	Texels []texel.RGBA32
}

// MemoryAsset is an asset served by Memory.
type MemoryAsset struct {
	Meshes    []MemoryMesh
	Materials []MemoryMaterial
	Textures  []MemoryTexture
}

// MemoryImage is a standalone texture file served by Memory.
type MemoryImage struct {
	Dims     texel.Dims
	Channels int
	Texels   []texel.RGBA32
}

// Memory is an in-process Bridge. It records how often each embedded
// texture was copied and can be told to fail specific operations.
type Memory struct {
	mu           sync.Mutex
	assets       map[string]*MemoryAsset
	images       map[string]MemoryImage
	open         map[Handle]*MemoryAsset
	backdrops    map[Handle][]byte
	next         Handle
	failures     map[string]Result
	textureLoads map[int]int
}

// NewMemory creates an empty in-memory bridge.
func NewMemory() *Memory {
	return &Memory{
		assets:       make(map[string]*MemoryAsset),
		images:       make(map[string]MemoryImage),
		open:         make(map[Handle]*MemoryAsset),
		backdrops:    make(map[Handle][]byte),
		failures:     make(map[string]Result),
		textureLoads: make(map[int]int),
	}
}

// AddAsset registers an asset under path.
func (m *Memory) AddAsset(path string, a *MemoryAsset) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.assets[path] = a
}

// AddImage registers a standalone image under path.
func (m *Memory) AddImage(path string, img MemoryImage) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.images[path] = img
}

// FailOn makes every subsequent call of op return code. Success clears it.
func (m *Memory) FailOn(op string, code Result) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if code == Success {
		delete(m.failures, op)
		return
	}
	m.failures[op] = code
}

// TextureLoads returns how many times embedded texture tex was copied.
func (m *Memory) TextureLoads(tex int) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.textureLoads[tex]
}

// ResetTextureLoads clears the texture copy counters.
func (m *Memory) ResetTextureLoads() {
	m.mu.Lock()
	defer m.mu.Unlock()
	clear(m.textureLoads)
}

// OpenHandles returns the number of assets opened and not closed.
func (m *Memory) OpenHandles() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.open)
}

// Backdrops returns the number of loaded skybox/IBL components.
func (m *Memory) Backdrops() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.backdrops)
}

func (m *Memory) failed(op string) error {
	if code, ok := m.failures[op]; ok {
		return code.Err(op)
	}
	return nil
}

func (m *Memory) asset(op string, h Handle) (*MemoryAsset, error) {
	if err := m.failed(op); err != nil {
		return nil, err
	}
	a, ok := m.open[h]
	if !ok {
		return nil, ErrorInvalidHandle.Err(op)
	}
	return a, nil
}

func (m *Memory) mesh(op string, h Handle, idx int) (*MemoryMesh, error) {
	a, err := m.asset(op, h)
	if err != nil {
		return nil, err
	}
	if idx < 0 || idx >= len(a.Meshes) {
		return nil, ErrorIndexOutOfRange.Err(op)
	}
	return &a.Meshes[idx], nil
}

func (m *Memory) OpenAsset(path string, fixCommonErrors, optimize bool) (Handle, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failed("OpenAsset"); err != nil {
		return 0, err
	}
	a, ok := m.assets[path]
	if !ok {
		return 0, ErrorFileNotFound.Err("OpenAsset")
	}
	m.next++
	m.open[m.next] = a
	return m.next, nil
}

func (m *Memory) CloseAsset(h Handle) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.open[h]; !ok {
		return ErrorInvalidHandle.Err("CloseAsset")
	}
	delete(m.open, h)
	return m.failed("CloseAsset")
}

func (m *Memory) MeshCount(h Handle) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, err := m.asset("MeshCount", h)
	if err != nil {
		return 0, err
	}
	return len(a.Meshes), nil
}

func (m *Memory) MaterialCount(h Handle) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, err := m.asset("MaterialCount", h)
	if err != nil {
		return 0, err
	}
	return len(a.Materials), nil
}

func (m *Memory) TextureCount(h Handle) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, err := m.asset("TextureCount", h)
	if err != nil {
		return 0, err
	}
	return len(a.Textures), nil
}

func (m *Memory) MeshVertexCount(h Handle, mesh int) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	me, err := m.mesh("MeshVertexCount", h, mesh)
	if err != nil {
		return 0, err
	}
	return len(me.Vertices), nil
}

func (m *Memory) MeshTriangleCount(h Handle, mesh int) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	me, err := m.mesh("MeshTriangleCount", h, mesh)
	if err != nil {
		return 0, err
	}
	return len(me.Triangles), nil
}

func (m *Memory) CopyMeshVertices(h Handle, mesh int, correctFlipped bool, dst []Vertex) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	me, err := m.mesh("CopyMeshVertices", h, mesh)
	if err != nil {
		return err
	}
	if len(dst) < len(me.Vertices) {
		return ErrorBufferTooSmall.Err("CopyMeshVertices")
	}
	copy(dst, me.Vertices)
	if correctFlipped {
		for i := range me.Vertices {
			dst[i].UV[1] = 1 - dst[i].UV[1]
		}
	}
	return nil
}

func (m *Memory) CopyMeshTriangles(h Handle, mesh int, dst []Triangle) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	me, err := m.mesh("CopyMeshTriangles", h, mesh)
	if err != nil {
		return err
	}
	if len(dst) < len(me.Triangles) {
		return ErrorBufferTooSmall.Err("CopyMeshTriangles")
	}
	copy(dst, me.Triangles)
	return nil
}

func (m *Memory) MeshMaterialIndex(h Handle, mesh int) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	me, err := m.mesh("MeshMaterialIndex", h, mesh)
	if err != nil {
		return 0, err
	}
	return me.Material, nil
}

func (m *Memory) MaterialData(h Handle, material int, params *MaterialParams) (int32, float32, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, err := m.asset("MaterialData", h)
	if err != nil {
		return 0, 0, err
	}
	if material < 0 || material >= len(a.Materials) {
		return 0, 0, ErrorIndexOutOfRange.Err("MaterialData")
	}
	mat := a.Materials[material]
	*params = mat.Params
	return mat.AlphaFormat, mat.RefractionThickness, nil
}

func (m *Memory) texture(op string, h Handle, tex int) (*MemoryTexture, error) {
	a, err := m.asset(op, h)
	if err != nil {
		return nil, err
	}
	if tex < 0 || tex >= len(a.Textures) {
		return nil, ErrorIndexOutOfRange.Err(op)
	}
	return &a.Textures[tex], nil
}

func (m *Memory) TextureSize(h Handle, tex int, rootDir string) (int, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, err := m.texture("TextureSize", h, tex)
	if err != nil {
		return 0, 0, err
	}
	return t.Dims.X, t.Dims.Y, nil
}

func (m *Memory) CopyTextureData(h Handle, tex int, rootDir string, dst []texel.RGBA32) (int, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, err := m.texture("CopyTextureData", h, tex)
	if err != nil {
		return 0, 0, err
	}
	if !t.Dims.Valid() || len(t.Texels) < t.Dims.Area() {
		return 0, 0, ErrorDecode.Err("CopyTextureData")
	}
	if len(dst) < t.Dims.Area() {
		return 0, 0, ErrorBufferTooSmall.Err("CopyTextureData")
	}
	copy(dst, t.Texels[:t.Dims.Area()])
	m.textureLoads[tex]++
	return t.Dims.X, t.Dims.Y, nil
}

func (m *Memory) image(op, path string) (MemoryImage, error) {
	if err := m.failed(op); err != nil {
		return MemoryImage{}, err
	}
	img, ok := m.images[path]
	if !ok {
		return MemoryImage{}, ErrorFileNotFound.Err(op)
	}
	return img, nil
}

func (m *Memory) TextureFileInfo(path string) (int, int, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	img, err := m.image("TextureFileInfo", path)
	if err != nil {
		return 0, 0, 0, err
	}
	return img.Dims.X, img.Dims.Y, img.Channels, nil
}

func (m *Memory) CopyTextureFile(path string, includeAlpha bool, dst []byte) (int, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	img, err := m.image("CopyTextureFile", path)
	if err != nil {
		return 0, 0, err
	}
	if !img.Dims.Valid() || len(img.Texels) < img.Dims.Area() {
		return 0, 0, ErrorDecode.Err("CopyTextureFile")
	}
	if err := packTexels(img.Texels[:img.Dims.Area()], includeAlpha, dst); err != nil {
		return 0, 0, err
	}
	return img.Dims.X, img.Dims.Y, nil
}

// packTexels writes texels to dst as packed 3 or 4 byte texels.
func packTexels(src []texel.RGBA32, includeAlpha bool, dst []byte) error {
	stride := 3
	if includeAlpha {
		stride = 4
	}
	if len(dst) < len(src)*stride {
		return ErrorBufferTooSmall.Err("CopyTextureFile")
	}
	for i, t := range src {
		o := i * stride
		dst[o], dst[o+1], dst[o+2] = t.R, t.G, t.B
		if includeAlpha {
			dst[o+3] = t.A
		}
	}
	return nil
}

func (m *Memory) loadBackdrop(op string, data []byte) (Handle, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failed(op); err != nil {
		return 0, err
	}
	if len(data) == 0 {
		return 0, ErrorDecode.Err(op)
	}
	m.next++
	m.backdrops[m.next] = append([]byte(nil), data...)
	return m.next, nil
}

func (m *Memory) unloadBackdrop(op string, h Handle) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.backdrops[h]; !ok {
		return ErrorInvalidHandle.Err(op)
	}
	delete(m.backdrops, h)
	return nil
}

func (m *Memory) LoadSkybox(data []byte) (Handle, error) { return m.loadBackdrop("LoadSkybox", data) }
func (m *Memory) LoadIBL(data []byte) (Handle, error)    { return m.loadBackdrop("LoadIBL", data) }
func (m *Memory) UnloadSkybox(h Handle) error            { return m.unloadBackdrop("UnloadSkybox", h) }
func (m *Memory) UnloadIBL(h Handle) error               { return m.unloadBackdrop("UnloadIBL", h) }

var _ Bridge = (*Memory)(nil)
