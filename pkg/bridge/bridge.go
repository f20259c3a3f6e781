// Package bridge defines the boundary to the asset import library: an opaque
// handle-based API returning counts, sizes and binary data that the loader
// copies into caller-provided buffers.
//
// Two implementations are provided. Memory serves assets registered in
// process and is used by tests and demos. Disk reads Wavefront OBJ/MTL
// assets and common image formats from the filesystem.
package bridge

import "github.com/Faultbox/assetforge/pkg/texel"

// Handle identifies an opened asset or a loaded backdrop component.
type Handle uintptr

// Vertex is the interleaved vertex layout copied out of an asset.
type Vertex struct {
	Position [3]float32
	Normal   [3]float32
	Tangent  [4]float32
	UV       [2]float32
}

// Triangle holds three indices into the owning mesh's vertex list.
type Triangle struct {
	A, B, C int32
}

// ParamFormat says how a material channel is described.
type ParamFormat int32

const (
	NotIncluded ParamFormat = iota
	Numerical
	TextureMap
)

func (f ParamFormat) String() string {
	switch f {
	case NotIncluded:
		return "not-included"
	case Numerical:
		return "numerical"
	case TextureMap:
		return "texture"
	default:
		return "unknown"
	}
}

// MaterialParam describes one material channel. For Numerical params R..A
// hold normalized values; for TextureMap params TextureIndex names an
// embedded texture of the asset.
type MaterialParam struct {
	Format       ParamFormat
	TextureIndex int32
	R, G, B, A   float32
}

// Num returns a Numerical param.
func Num(r, g, b, a float32) MaterialParam {
	return MaterialParam{Format: Numerical, R: r, G: g, B: b, A: a}
}

// Tex returns a TextureMap param referencing embedded texture idx.
func Tex(idx int32) MaterialParam {
	return MaterialParam{Format: TextureMap, TextureIndex: idx}
}

// ToTexel converts a Numerical param to a texel.
func (p MaterialParam) ToTexel() texel.RGBA32 {
	return texel.FromFloats(p.R, p.G, p.B, p.A)
}

// SameTexture reports whether p and o reference the same embedded texture.
func (p MaterialParam) SameTexture(o MaterialParam) bool {
	return p.Format == TextureMap && o.Format == TextureMap && p.TextureIndex == o.TextureIndex
}

// Material channel indices into MaterialParams.
const (
	ParamColor = iota
	ParamNormal
	ParamAmbientOcclusion
	ParamRoughness
	ParamGlossiness
	ParamMetallic
	ParamIoR
	ParamAbsorption
	ParamTransmission
	ParamEmissiveColor
	ParamEmissiveIntensity
	ParamAnisotropyAngle
	ParamAnisotropyStrength
	ParamClearCoatStrength
	ParamClearCoatRoughness

	ParamCount
)

// MaterialParams is the fixed block of channel descriptors for one material.
type MaterialParams [ParamCount]MaterialParam

// Alpha formats reported alongside material params.
const (
	AlphaOpaque   int32 = 0
	AlphaMask     int32 = 1
	AlphaBlending int32 = 2
)

// Bridge is the import library boundary. Implementations are not required
// to be safe for concurrent use.
type Bridge interface {
	OpenAsset(path string, fixCommonErrors, optimize bool) (Handle, error)
	CloseAsset(h Handle) error

	MeshCount(h Handle) (int, error)
	MaterialCount(h Handle) (int, error)
	TextureCount(h Handle) (int, error)

	MeshVertexCount(h Handle, mesh int) (int, error)
	MeshTriangleCount(h Handle, mesh int) (int, error)
	CopyMeshVertices(h Handle, mesh int, correctFlipped bool, dst []Vertex) error
	CopyMeshTriangles(h Handle, mesh int, dst []Triangle) error
	MeshMaterialIndex(h Handle, mesh int) (int, error)

	// MaterialData fills params and returns the alpha format and refraction
	// thickness (negative when absent).
	MaterialData(h Handle, material int, params *MaterialParams) (alphaFormat int32, refractionThickness float32, err error)

	TextureSize(h Handle, tex int, rootDir string) (width, height int, err error)
	CopyTextureData(h Handle, tex int, rootDir string, dst []texel.RGBA32) (width, height int, err error)

	// TextureFileInfo reports the dimensions and channel count of an image file.
	TextureFileInfo(path string) (width, height, channels int, err error)
	// CopyTextureFile decodes an image file into dst as packed RGB24 or
	// RGBA32 texels.
	CopyTextureFile(path string, includeAlpha bool, dst []byte) (width, height int, err error)

	LoadSkybox(data []byte) (Handle, error)
	LoadIBL(data []byte) (Handle, error)
	UnloadSkybox(h Handle) error
	UnloadIBL(h Handle) error
}
