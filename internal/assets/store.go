package assets

import (
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/Faultbox/assetforge/internal/resources"
	"github.com/Faultbox/assetforge/pkg/bridge"
	"github.com/Faultbox/assetforge/pkg/texel"
)

// Mesh is a built mesh.
type Mesh struct {
	Vertices  []bridge.Vertex
	Triangles []bridge.Triangle
}

// Texture is a built texture. Exactly one of RGB and RGBA is set.
type Texture struct {
	Dims    texel.Dims
	RGB     []texel.RGB24
	RGBA    []texel.RGBA32
	Linear  bool
	MipMaps bool
}

// HasAlpha reports whether the texture stores an alpha channel.
func (t *Texture) HasAlpha() bool { return t.RGBA != nil }

// At returns the texel at (x, y) widened to RGBA.
func (t *Texture) At(x, y int) texel.RGBA32 {
	i := t.Dims.Index(x, y)
	if t.RGBA != nil {
		return t.RGBA[i]
	}
	return t.RGB[i].RGBA()
}

// TextureConfig controls texture creation.
type TextureConfig struct {
	Name string
	// Linear marks data that must not be treated as sRGB.
	Linear          bool
	GenerateMipMaps bool
	Process         texel.ProcessConfig
}

// MaterialKind distinguishes the two material models.
type MaterialKind uint8

const (
	StandardMaterial MaterialKind = iota
	TransmissiveMaterial
)

func (k MaterialKind) String() string {
	if k == TransmissiveMaterial {
		return "transmissive"
	}
	return "standard"
}

// AlphaMode selects how a material's color alpha is used.
type AlphaMode uint8

const (
	MaskOnly AlphaMode = iota
	FullBlending
)

func (m AlphaMode) String() string {
	if m == FullBlending {
		return "blend"
	}
	return "mask"
}

// Material is a built material. Optional maps hold the zero handle.
type Material struct {
	Kind                   MaterialKind
	ColorMap               resources.Handle
	AbsorptionTransmission resources.Handle
	NormalMap              resources.Handle
	ORMMap                 resources.Handle
	AnisotropyMap          resources.Handle
	EmissiveMap            resources.Handle
	ClearCoatMap           resources.Handle
	Alpha                  AlphaMode
	RefractionThickness    float32
}

// Maps returns the non-zero texture handles of m.
func (m *Material) Maps() []resources.Handle {
	var out []resources.Handle
	for _, h := range []resources.Handle{m.ColorMap, m.AbsorptionTransmission, m.NormalMap, m.ORMMap, m.AnisotropyMap, m.EmissiveMap, m.ClearCoatMap} {
		if !h.IsZero() {
			out = append(out, h)
		}
	}
	return out
}

// MeshBuilder creates meshes from staged vertex data. The builder copies
// its inputs.
type MeshBuilder interface {
	CreateMesh(vertices []bridge.Vertex, triangles []bridge.Triangle, name string) (resources.Handle, error)
}

// TextureBuilder creates textures from staged texel data. The builder
// copies its inputs.
type TextureBuilder interface {
	CreateTextureRGB(texels []texel.RGB24, dims texel.Dims, cfg TextureConfig) (resources.Handle, error)
	CreateTextureRGBA(texels []texel.RGBA32, dims texel.Dims, cfg TextureConfig) (resources.Handle, error)
}

// MaterialBuilder creates materials referencing previously built textures.
type MaterialBuilder interface {
	CreateMaterial(m Material, name string) (resources.Handle, error)
}

// ErrMissingMap is returned for materials lacking a required map.
var ErrMissingMap = errors.New("material is missing a required map")

// Store is the CPU-side implementation of every builder, keeping data in
// registry tables.
type Store struct {
	reg       *resources.Registry
	meshes    *resources.Table[*Mesh]
	textures  *resources.Table[*Texture]
	materials *resources.Table[*Material]
	log       *zap.Logger
}

// NewStore creates the mesh, texture and material tables on reg.
func NewStore(reg *resources.Registry, log *zap.Logger) *Store {
	if log == nil {
		log = zap.NewNop()
	}
	s := &Store{reg: reg, log: log}
	s.meshes = resources.NewTable[*Mesh](reg, resources.KindMesh, func(_ resources.Handle, m *Mesh) error {
		m.Vertices, m.Triangles = nil, nil
		return nil
	})
	s.textures = resources.NewTable[*Texture](reg, resources.KindTexture, func(_ resources.Handle, t *Texture) error {
		t.RGB, t.RGBA = nil, nil
		return nil
	})
	s.materials = resources.NewTable[*Material](reg, resources.KindMaterial, nil)
	return s
}

// Meshes returns the mesh table.
func (s *Store) Meshes() *resources.Table[*Mesh] { return s.meshes }

// Textures returns the texture table.
func (s *Store) Textures() *resources.Table[*Texture] { return s.textures }

// Materials returns the material table.
func (s *Store) Materials() *resources.Table[*Material] { return s.materials }

// CreateMesh implements MeshBuilder.
func (s *Store) CreateMesh(vertices []bridge.Vertex, triangles []bridge.Triangle, name string) (resources.Handle, error) {
	for i, t := range triangles {
		for _, idx := range [3]int32{t.A, t.B, t.C} {
			if idx < 0 || int(idx) >= len(vertices) {
				return resources.Handle{}, fmt.Errorf("triangle %d references vertex %d of %d", i, idx, len(vertices))
			}
		}
	}
	m := &Mesh{
		Vertices:  append([]bridge.Vertex(nil), vertices...),
		Triangles: append([]bridge.Triangle(nil), triangles...),
	}
	h := s.meshes.Add(m, name)
	s.log.Debug("mesh created", zap.Stringer("handle", h), zap.Int("vertices", len(vertices)), zap.Int("triangles", len(triangles)))
	return h, nil
}

func checkTexture(n int, dims texel.Dims) error {
	if !dims.Valid() {
		return fmt.Errorf("invalid texture dimensions %v", dims)
	}
	if n < dims.Area() {
		return fmt.Errorf("%w: %d texels for %v", texel.ErrShortBuffer, n, dims)
	}
	return nil
}

// CreateTextureRGB implements TextureBuilder.
func (s *Store) CreateTextureRGB(texels []texel.RGB24, dims texel.Dims, cfg TextureConfig) (resources.Handle, error) {
	if err := checkTexture(len(texels), dims); err != nil {
		return resources.Handle{}, err
	}
	data := append([]texel.RGB24(nil), texels[:dims.Area()]...)
	if err := texel.Process(data, dims, cfg.Process); err != nil {
		return resources.Handle{}, err
	}
	return s.addTexture(&Texture{Dims: dims, RGB: data, Linear: cfg.Linear, MipMaps: cfg.GenerateMipMaps}, cfg.Name), nil
}

// CreateTextureRGBA implements TextureBuilder.
func (s *Store) CreateTextureRGBA(texels []texel.RGBA32, dims texel.Dims, cfg TextureConfig) (resources.Handle, error) {
	if err := checkTexture(len(texels), dims); err != nil {
		return resources.Handle{}, err
	}
	data := append([]texel.RGBA32(nil), texels[:dims.Area()]...)
	if err := texel.Process(data, dims, cfg.Process); err != nil {
		return resources.Handle{}, err
	}
	return s.addTexture(&Texture{Dims: dims, RGBA: data, Linear: cfg.Linear, MipMaps: cfg.GenerateMipMaps}, cfg.Name), nil
}

func (s *Store) addTexture(t *Texture, name string) resources.Handle {
	h := s.textures.Add(t, name)
	s.log.Debug("texture created",
		zap.Stringer("handle", h),
		zap.Stringer("dims", t.Dims),
		zap.Bool("alpha", t.HasAlpha()),
		zap.Bool("linear", t.Linear))
	return h
}

// CreateMaterial implements MaterialBuilder. The material depends on every
// map it references.
func (s *Store) CreateMaterial(m Material, name string) (resources.Handle, error) {
	if m.ColorMap.IsZero() {
		return resources.Handle{}, fmt.Errorf("%w: color", ErrMissingMap)
	}
	if m.Kind == TransmissiveMaterial && m.AbsorptionTransmission.IsZero() {
		return resources.Handle{}, fmt.Errorf("%w: absorption/transmission", ErrMissingMap)
	}
	if m.Kind == StandardMaterial && !m.AbsorptionTransmission.IsZero() {
		return resources.Handle{}, fmt.Errorf("standard material cannot use an absorption/transmission map")
	}
	maps := m.Maps()
	for _, t := range maps {
		if _, err := s.textures.Get(t); err != nil {
			return resources.Handle{}, fmt.Errorf("material map: %w", err)
		}
	}
	mat := m
	h := s.materials.Add(&mat, name)
	for _, t := range maps {
		s.reg.Tracker().Register(h, t)
	}
	s.log.Debug("material created", zap.Stringer("handle", h), zap.Stringer("kind", m.Kind), zap.Int("maps", len(maps)))
	return h, nil
}

// Mesh returns a built mesh.
func (s *Store) Mesh(h resources.Handle) (*Mesh, error) { return s.meshes.Get(h) }

// Texture returns a built texture.
func (s *Store) Texture(h resources.Handle) (*Texture, error) { return s.textures.Get(h) }

// Material returns a built material.
func (s *Store) Material(h resources.Handle) (*Material, error) { return s.materials.Get(h) }

var (
	_ MeshBuilder     = (*Store)(nil)
	_ TextureBuilder  = (*Store)(nil)
	_ MaterialBuilder = (*Store)(nil)
)
