package loader

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/Faultbox/assetforge/pkg/texel"
)

// BuiltinPrefix marks texture paths that are generated in memory instead of
// being read from disk.
const BuiltinPrefix = "?tffr_builtin?"

// Built-in default material maps.
var (
	BuiltinColorMap        = BuiltinPrefix + "map_color"
	BuiltinNormalMap       = BuiltinPrefix + "map_normals"
	BuiltinORMMap          = BuiltinPrefix + "map_orm"
	BuiltinORMRMap         = BuiltinPrefix + "map_ormr"
	BuiltinATMap           = BuiltinPrefix + "map_at"
	BuiltinEmissiveMap     = BuiltinPrefix + "map_emissive"
	BuiltinAnisotropyMap   = BuiltinPrefix + "map_anisotropy"
	BuiltinClearCoatMap    = BuiltinPrefix + "map_clearcoat"
	builtinMapNames        = []string{"map_color", "map_normals", "map_orm", "map_ormr", "map_at", "map_emissive", "map_anisotropy", "map_clearcoat"}
	builtinGrayPercentages = []int{0, 10, 20, 30, 40, 50, 60, 70, 80, 90, 100}
)

// IsBuiltin reports whether path names a built-in texture.
func IsBuiltin(path string) bool { return strings.HasPrefix(path, BuiltinPrefix) }

// GrayPath returns the built-in path of a gray texture. percent must be a
// multiple of 10 between 0 and 100.
func GrayPath(percent int) string { return fmt.Sprintf("%sgray_%d", BuiltinPrefix, percent) }

// BytesPath returns the built-in path of a single RGB texel.
func BytesPath(r, g, b uint8) string { return fmt.Sprintf("%sbytes_%d_%d_%d", BuiltinPrefix, r, g, b) }

// BytesPathAlpha returns the built-in path of a single RGBA texel.
func BytesPathAlpha(r, g, b, a uint8) string {
	return fmt.Sprintf("%sbytes_%d_%d_%d_%d", BuiltinPrefix, r, g, b, a)
}

// BuiltinPaths lists every fixed built-in path. bytes_ paths are open
// ended and not included.
func BuiltinPaths() []string {
	paths := make([]string, 0, len(builtinMapNames)+len(builtinGrayPercentages))
	for _, n := range builtinMapNames {
		paths = append(paths, BuiltinPrefix+n)
	}
	for _, p := range builtinGrayPercentages {
		paths = append(paths, GrayPath(p))
	}
	return paths
}

// builtinTexel is a 1x1 built-in texture. Exactly one field is set.
type builtinTexel struct {
	rgb  *texel.RGB24
	rgba *texel.RGBA32
}

func rgbTexel(t texel.RGB24) builtinTexel   { return builtinTexel{rgb: &t} }
func rgbaTexel(t texel.RGBA32) builtinTexel { return builtinTexel{rgba: &t} }
func (b builtinTexel) hasAlpha() bool       { return b.rgba != nil }

func (b builtinTexel) RGBA() texel.RGBA32 {
	if b.rgba != nil {
		return *b.rgba
	}
	return b.rgb.RGBA()
}

// lookupBuiltin resolves a built-in path. ok is false for any path that is
// not a known built-in.
func lookupBuiltin(path string) (builtinTexel, bool) {
	if !IsBuiltin(path) {
		return builtinTexel{}, false
	}
	name := path[len(BuiltinPrefix):]
	switch {
	case strings.HasPrefix(name, "map_"):
		return builtinMap(name)
	case strings.HasPrefix(name, "gray_"):
		return builtinGray(name[len("gray_"):])
	case strings.HasPrefix(name, "bytes_"):
		return builtinBytes(name[len("bytes_"):])
	}
	return builtinTexel{}, false
}

func builtinMap(name string) (builtinTexel, bool) {
	switch name {
	case "map_color":
		return rgbaTexel(DefaultColor), true
	case "map_normals":
		return rgbTexel(DefaultNormal), true
	case "map_orm":
		return rgbTexel(texel.FromFloats(DefaultOcclusion, DefaultRoughness, DefaultMetallic, 1).RGB()), true
	case "map_ormr":
		return rgbaTexel(texel.FromFloats(DefaultOcclusion, DefaultRoughness, DefaultMetallic, DefaultReflectance)), true
	case "map_at":
		at := DefaultAbsorption
		at.A = texel.FloatToByte(DefaultTransmission)
		return rgbaTexel(at), true
	case "map_emissive":
		e := DefaultEmissiveColor
		e.A = texel.FloatToByte(DefaultEmissiveIntensity)
		return rgbaTexel(e), true
	case "map_anisotropy":
		// zero strength along +X
		t := []texel.RGB24{{}}
		if err := texel.AnisotropyFromRadial(t, texel.DefaultRadialConfig); err != nil {
			return builtinTexel{}, false
		}
		return rgbTexel(t[0]), true
	case "map_clearcoat":
		th, r := texel.FloatToByte(DefaultClearCoatThickness), texel.FloatToByte(DefaultClearCoatRoughness)
		return rgbTexel(texel.RGB24{R: th, G: r, B: th}), true
	}
	return builtinTexel{}, false
}

func builtinGray(percent string) (builtinTexel, bool) {
	n, err := strconv.Atoi(percent)
	if err != nil || n < 0 || n > 100 || n%10 != 0 || strconv.Itoa(n) != percent {
		return builtinTexel{}, false
	}
	v := uint8(float32(255) * float32(n) / 100)
	return rgbaTexel(texel.Gray(v)), true
}

func builtinBytes(name string) (builtinTexel, bool) {
	parts := strings.Split(name, "_")
	if len(parts) != 3 && len(parts) != 4 {
		return builtinTexel{}, false
	}
	var v [4]uint8
	for i, p := range parts {
		b, err := strconv.ParseUint(p, 10, 8)
		if err != nil {
			return builtinTexel{}, false
		}
		v[i] = uint8(b)
	}
	if len(parts) == 3 {
		return rgbTexel(texel.RGB24{R: v[0], G: v[1], B: v[2]}), true
	}
	return rgbaTexel(texel.RGBA32{R: v[0], G: v[1], B: v[2], A: v[3]}), true
}
