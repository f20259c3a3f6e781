package bridge

import (
	"bytes"
	"fmt"
	"image"
	"path/filepath"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/Faultbox/assetforge/pkg/texel"
)

// ktxMagic prefixes both KTX 1 and KTX 2 containers.
var ktxMagic = []byte{0xAB, 'K', 'T', 'X', ' '}

// Disk is a Bridge over files on disk. Models are read as Wavefront OBJ with
// MTL materials; textures in any format registered with the image package.
type Disk struct {
	files FileSource
	log   *zap.Logger

	mu        sync.Mutex
	open      map[Handle]*diskAsset
	backdrops map[Handle][]byte
	next      Handle
}

type diskAsset struct {
	path    string
	obj     *objAsset
	decoded map[int]*image.NRGBA
}

// DiskOption configures a Disk bridge.
type DiskOption func(*Disk)

// WithFileSource routes every file read through src.
func WithFileSource(src FileSource) DiskOption {
	return func(d *Disk) { d.files = src }
}

// WithLogger sets the logger used for decode diagnostics.
func WithLogger(l *zap.Logger) DiskOption {
	return func(d *Disk) { d.log = l }
}

// NewDisk creates a disk-backed bridge.
func NewDisk(opts ...DiskOption) *Disk {
	d := &Disk{
		files:     OSFiles{},
		log:       zap.NewNop(),
		open:      make(map[Handle]*diskAsset),
		backdrops: make(map[Handle][]byte),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

func (d *Disk) asset(op string, h Handle) (*diskAsset, error) {
	a, ok := d.open[h]
	if !ok {
		return nil, ErrorInvalidHandle.Err(op)
	}
	return a, nil
}

func (d *Disk) OpenAsset(path string, fixCommonErrors, optimize bool) (Handle, error) {
	if ext := strings.ToLower(filepath.Ext(path)); ext != ".obj" {
		return 0, ErrorUnsupportedFormat.Wrap("OpenAsset", fmt.Errorf("unsupported model extension %q", ext))
	}
	data, err := d.files.ReadFile(path)
	if err != nil {
		return 0, readCode(err).Wrap("OpenAsset", err)
	}
	obj, err := parseOBJ(data, filepath.Dir(path), fixCommonErrors, optimize, d.files.ReadFile)
	if err != nil {
		return 0, ErrorDecode.Wrap("OpenAsset", fmt.Errorf("%s: %w", path, err))
	}
	d.log.Debug("parsed obj",
		zap.String("path", path),
		zap.Int("meshes", len(obj.meshes)),
		zap.Int("materials", len(obj.materials)),
		zap.Int("textures", len(obj.textures)))

	d.mu.Lock()
	defer d.mu.Unlock()
	d.next++
	d.open[d.next] = &diskAsset{path: path, obj: obj, decoded: make(map[int]*image.NRGBA)}
	return d.next, nil
}

func (d *Disk) CloseAsset(h Handle) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.open[h]; !ok {
		return ErrorInvalidHandle.Err("CloseAsset")
	}
	delete(d.open, h)
	return nil
}

func (d *Disk) MeshCount(h Handle) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	a, err := d.asset("MeshCount", h)
	if err != nil {
		return 0, err
	}
	return len(a.obj.meshes), nil
}

func (d *Disk) MaterialCount(h Handle) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	a, err := d.asset("MaterialCount", h)
	if err != nil {
		return 0, err
	}
	return len(a.obj.materials), nil
}

func (d *Disk) TextureCount(h Handle) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	a, err := d.asset("TextureCount", h)
	if err != nil {
		return 0, err
	}
	return len(a.obj.textures), nil
}

func (d *Disk) mesh(op string, h Handle, idx int) (*MemoryMesh, error) {
	a, err := d.asset(op, h)
	if err != nil {
		return nil, err
	}
	if idx < 0 || idx >= len(a.obj.meshes) {
		return nil, ErrorIndexOutOfRange.Err(op)
	}
	return &a.obj.meshes[idx], nil
}

func (d *Disk) MeshVertexCount(h Handle, mesh int) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	m, err := d.mesh("MeshVertexCount", h, mesh)
	if err != nil {
		return 0, err
	}
	return len(m.Vertices), nil
}

func (d *Disk) MeshTriangleCount(h Handle, mesh int) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	m, err := d.mesh("MeshTriangleCount", h, mesh)
	if err != nil {
		return 0, err
	}
	return len(m.Triangles), nil
}

func (d *Disk) CopyMeshVertices(h Handle, mesh int, correctFlipped bool, dst []Vertex) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	m, err := d.mesh("CopyMeshVertices", h, mesh)
	if err != nil {
		return err
	}
	if len(dst) < len(m.Vertices) {
		return ErrorBufferTooSmall.Err("CopyMeshVertices")
	}
	copy(dst, m.Vertices)
	if correctFlipped {
		// OBJ texture space has V pointing up
		for i := range m.Vertices {
			dst[i].UV[1] = 1 - dst[i].UV[1]
		}
	}
	return nil
}

func (d *Disk) CopyMeshTriangles(h Handle, mesh int, dst []Triangle) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	m, err := d.mesh("CopyMeshTriangles", h, mesh)
	if err != nil {
		return err
	}
	if len(dst) < len(m.Triangles) {
		return ErrorBufferTooSmall.Err("CopyMeshTriangles")
	}
	copy(dst, m.Triangles)
	return nil
}

func (d *Disk) MeshMaterialIndex(h Handle, mesh int) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	m, err := d.mesh("MeshMaterialIndex", h, mesh)
	if err != nil {
		return 0, err
	}
	return m.Material, nil
}

func (d *Disk) MaterialData(h Handle, material int, params *MaterialParams) (int32, float32, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	a, err := d.asset("MaterialData", h)
	if err != nil {
		return 0, 0, err
	}
	if material < 0 || material >= len(a.obj.materials) {
		return 0, 0, ErrorIndexOutOfRange.Err("MaterialData")
	}
	m := a.obj.materials[material]
	*params = m.Params
	return m.AlphaFormat, m.RefractionThickness, nil
}

// embedded decodes (once per open asset) the texture at index tex.
func (d *Disk) embedded(op string, h Handle, tex int, rootDir string) (*image.NRGBA, error) {
	a, err := d.asset(op, h)
	if err != nil {
		return nil, err
	}
	if tex < 0 || tex >= len(a.obj.textures) {
		return nil, ErrorIndexOutOfRange.Err(op)
	}
	if img, ok := a.decoded[tex]; ok {
		return img, nil
	}
	path := filepath.FromSlash(a.obj.textures[tex])
	if !filepath.IsAbs(path) {
		path = filepath.Join(rootDir, path)
	}
	data, err := d.files.ReadFile(path)
	if err != nil {
		return nil, readCode(err).Wrap(op, err)
	}
	img, _, err := decodeImage(data)
	if err != nil {
		return nil, ErrorDecode.Wrap(op, fmt.Errorf("%s: %w", path, err))
	}
	d.log.Debug("decoded embedded texture", zap.String("path", path), zap.Int("index", tex))
	a.decoded[tex] = img
	return img, nil
}

func (d *Disk) TextureSize(h Handle, tex int, rootDir string) (int, int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	img, err := d.embedded("TextureSize", h, tex, rootDir)
	if err != nil {
		return 0, 0, err
	}
	return img.Rect.Dx(), img.Rect.Dy(), nil
}

func (d *Disk) CopyTextureData(h Handle, tex int, rootDir string, dst []texel.RGBA32) (int, int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	img, err := d.embedded("CopyTextureData", h, tex, rootDir)
	if err != nil {
		return 0, 0, err
	}
	if err := copyNRGBA(img, dst); err != nil {
		return 0, 0, err
	}
	return img.Rect.Dx(), img.Rect.Dy(), nil
}

func (d *Disk) decodeFile(op, path string) (*image.NRGBA, int, error) {
	data, err := d.files.ReadFile(path)
	if err != nil {
		return nil, 0, readCode(err).Wrap(op, err)
	}
	img, channels, err := decodeImage(data)
	if err != nil {
		return nil, 0, ErrorDecode.Wrap(op, fmt.Errorf("%s: %w", path, err))
	}
	return img, channels, nil
}

func (d *Disk) TextureFileInfo(path string) (int, int, int, error) {
	img, channels, err := d.decodeFile("TextureFileInfo", path)
	if err != nil {
		return 0, 0, 0, err
	}
	return img.Rect.Dx(), img.Rect.Dy(), channels, nil
}

func (d *Disk) CopyTextureFile(path string, includeAlpha bool, dst []byte) (int, int, error) {
	img, _, err := d.decodeFile("CopyTextureFile", path)
	if err != nil {
		return 0, 0, err
	}
	if err := packTexels(nrgbaTexels(img), includeAlpha, dst); err != nil {
		return 0, 0, err
	}
	return img.Rect.Dx(), img.Rect.Dy(), nil
}

func (d *Disk) loadBackdrop(op string, data []byte) (Handle, error) {
	if !bytes.HasPrefix(data, ktxMagic) {
		return 0, ErrorUnsupportedFormat.Wrap(op, fmt.Errorf("not a KTX container"))
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.next++
	d.backdrops[d.next] = bytes.Clone(data)
	return d.next, nil
}

func (d *Disk) unloadBackdrop(op string, h Handle) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.backdrops[h]; !ok {
		return ErrorInvalidHandle.Err(op)
	}
	delete(d.backdrops, h)
	return nil
}

func (d *Disk) LoadSkybox(data []byte) (Handle, error) { return d.loadBackdrop("LoadSkybox", data) }
func (d *Disk) LoadIBL(data []byte) (Handle, error)    { return d.loadBackdrop("LoadIBL", data) }
func (d *Disk) UnloadSkybox(h Handle) error            { return d.unloadBackdrop("UnloadSkybox", h) }
func (d *Disk) UnloadIBL(h Handle) error               { return d.unloadBackdrop("UnloadIBL", h) }

var _ Bridge = (*Disk)(nil)
