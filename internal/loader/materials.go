package loader

import (
	"fmt"
	"math"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/Faultbox/assetforge/internal/assets"
	"github.com/Faultbox/assetforge/internal/resources"
	"github.com/Faultbox/assetforge/pkg/arena"
	"github.com/Faultbox/assetforge/pkg/bridge"
	"github.com/Faultbox/assetforge/pkg/texel"
)

// Channel defaults used when a material leaves a channel out.
const (
	DefaultOcclusion           float32 = 1
	DefaultRoughness           float32 = 0.4
	DefaultMetallic            float32 = 0
	DefaultReflectance         float32 = 0.5
	DefaultTransmission        float32 = 1
	DefaultEmissiveIntensity   float32 = 1
	DefaultClearCoatThickness  float32 = 1
	DefaultClearCoatRoughness  float32 = 0
	DefaultRefractionThickness float32 = 0.1
)

var (
	DefaultColor         = texel.RGBA32{R: 255, G: 255, B: 255, A: 255}
	DefaultNormal        = texel.RGB24{R: 128, G: 128, B: 255}
	DefaultAbsorption    = texel.RGBA32{A: 255}
	DefaultEmissiveColor = texel.RGBA32{R: 255, G: 255, B: 255, A: 255}
)

// IoRToReflectance converts an index of refraction to a reflectance value.
func IoRToReflectance(ior float32) float32 {
	return float32(math.Pow(float64((ior-1)/(ior+1)), 2))
}

func grayOf(v float32) texel.RGBA32 { return texel.Gray(texel.FloatToByte(v)) }

// embeddedTexture is an asset texture staged in the texture arena.
type embeddedTexture struct {
	buf    arena.Buffer
	dims   texel.Dims
	texels []texel.RGBA32
}

func textureError(idx int32, err error) error {
	if bridge.CodeOf(err) == bridge.ErrorIndexOutOfRange {
		return fmt.Errorf("%w: asset texture at index '%d': %w", ErrNotFound, idx, err)
	}
	return fmt.Errorf("asset texture at index '%d': %w", idx, err)
}

// loadEmbeddedTexture copies texture idx of an open asset into a rented
// buffer. The caller returns the buffer.
func (l *Loader) loadEmbeddedTexture(asset bridge.Handle, idx int32, rootDir string) (*embeddedTexture, error) {
	w, h, err := l.bridge.TextureSize(asset, int(idx), rootDir)
	if err != nil {
		return nil, textureError(idx, err)
	}
	if w < 0 || h < 0 || (h != 0 && (w*h)/h != w) {
		return nil, fmt.Errorf("%w: width or height for asset texture at index '%d' was malformed (%dx%d)", ErrMalformedData, idx, w, h)
	}
	n := w * h

	buf, err := arena.RentFor[texel.RGBA32](l.textureArena, n)
	if err != nil {
		return nil, fmt.Errorf("asset texture at index '%d': %w", idx, err)
	}
	texels := arena.View[texel.RGBA32](buf, n)

	w, h, err = l.bridge.CopyTextureData(asset, int(idx), rootDir, texels)
	if err == nil && (w < 0 || h < 0 || w*h > n) {
		err = fmt.Errorf("%w: asset texture at index '%d' copied as %dx%d into %d texels", ErrMalformedData, idx, w, h, n)
	}
	if err != nil {
		err = textureError(idx, err)
		l.giveBack(l.textureArena, buf, &err)
		return nil, err
	}
	return &embeddedTexture{buf: buf, dims: texel.Dims{X: w, Y: h}, texels: texels[:w*h]}, nil
}

// synthesis builds the maps of one material.
type synthesis struct {
	l       *Loader
	asset   bridge.Handle
	rootDir string
	base    assets.TextureConfig
	// maps built but not yet handed to the asset group
	created []resources.Handle
}

func (s *synthesis) texConfig(linear bool) assets.TextureConfig {
	c := s.base
	c.Linear = linear
	return c
}

func (s *synthesis) track(h resources.Handle, err error) (resources.Handle, error) {
	if err == nil && !h.IsZero() {
		s.created = append(s.created, h)
	}
	return h, err
}

func (s *synthesis) rgba(texels []texel.RGBA32, dims texel.Dims, linear bool) (resources.Handle, error) {
	return s.track(s.l.build.CreateTextureRGBA(texels, dims, s.texConfig(linear)))
}

func (s *synthesis) rgb(texels []texel.RGB24, dims texel.Dims, linear bool) (resources.Handle, error) {
	return s.track(s.l.build.CreateTextureRGB(texels, dims, s.texConfig(linear)))
}

// discard disposes maps that never reached the asset group.
func (s *synthesis) discard() error {
	var err error
	for i := len(s.created) - 1; i >= 0; i-- {
		err = multierr.Append(err, s.l.reg.Dispose(s.created[i]))
	}
	s.created = nil
	return err
}

func (s *synthesis) embedded(idx int32) (*embeddedTexture, error) {
	return s.l.loadEmbeddedTexture(s.asset, idx, s.rootDir)
}

func (s *synthesis) release(t *embeddedTexture, err *error) {
	if t != nil {
		s.l.giveBack(s.l.textureArena, t.buf, err)
	}
}

// verbatim builds embedded texture idx without combining it.
func (s *synthesis) verbatim(idx int32, linear, asRGB bool) (h resources.Handle, err error) {
	tex, err := s.embedded(idx)
	if err != nil {
		return resources.Handle{}, err
	}
	defer s.release(tex, &err)

	if asRGB {
		rgb, cerr := texel.ConvertToRGB(tex.texels, nil)
		if cerr != nil {
			return resources.Handle{}, cerr
		}
		return s.rgb(rgb, tex.dims, linear)
	}
	return s.rgba(tex.texels, tex.dims, linear)
}

// sourceSet holds the resolved inputs of one combination.
type sourceSet struct {
	srcs []texel.Source
	texs []*embeddedTexture
}

func (set *sourceSet) embedded(i int) bool { return set.texs[i] != nil }

// resolve turns params into combination sources: numerical params become a
// single texel, texture params are loaded, absent params use the default.
func (s *synthesis) resolve(params []bridge.MaterialParam, defaults []texel.RGBA32) (*sourceSet, error) {
	set := &sourceSet{}
	for i, p := range params {
		var (
			src texel.Source
			tex *embeddedTexture
		)
		switch p.Format {
		case bridge.Numerical:
			src = texel.Source{Texels: []texel.RGBA32{p.ToTexel()}, Dims: texel.One}
		case bridge.TextureMap:
			var err error
			if tex, err = s.embedded(p.TextureIndex); err != nil {
				return set, err
			}
			src = texel.Source{Texels: tex.texels, Dims: tex.dims}
		default:
			src = texel.Source{Texels: []texel.RGBA32{defaults[i]}, Dims: texel.One}
		}
		set.srcs = append(set.srcs, src)
		set.texs = append(set.texs, tex)
	}
	return set, nil
}

func (s *synthesis) releaseAll(set *sourceSet, err *error) {
	for _, t := range set.texs {
		s.release(t, err)
	}
}

func pick(tex int, ch texel.Channel) texel.Pick { return texel.Pick{Texture: tex, Channel: ch} }

func rgbSel(r, g, b texel.Pick) texel.CombineConfig {
	return texel.CombineConfig{Strategy: texel.RepeatingTile, Red: r, Green: g, Blue: b}
}

func rgbaSel(r, g, b, a texel.Pick) texel.CombineConfig {
	cfg := rgbSel(r, g, b)
	cfg.Alpha = &a
	return cfg
}

func destDims(srcs []texel.Source) texel.Dims {
	dims := make([]texel.Dims, len(srcs))
	for i, s := range srcs {
		dims[i] = s.Dims
	}
	d, _ := texel.CombinedDims(dims...)
	return d
}

func combineRGBA(srcs []texel.Source, cfg texel.CombineConfig) ([]texel.RGBA32, texel.Dims, error) {
	dst := make([]texel.RGBA32, destDims(srcs).Area())
	dims, err := texel.Combine(srcs, cfg, dst)
	return dst, dims, err
}

func combineRGB(srcs []texel.Source, cfg texel.CombineConfig) ([]texel.RGB24, texel.Dims, error) {
	dst := make([]texel.RGB24, destDims(srcs).Area())
	dims, err := texel.CombineRGB(srcs, cfg, dst)
	return dst, dims, err
}

func absent(params ...bridge.MaterialParam) bool {
	for _, p := range params {
		if p.Format != bridge.NotIncluded {
			return false
		}
	}
	return true
}

func (s *synthesis) colorMap(p bridge.MaterialParam) (resources.Handle, error) {
	switch p.Format {
	case bridge.Numerical:
		return s.rgba([]texel.RGBA32{p.ToTexel()}, texel.One, true)
	case bridge.TextureMap:
		return s.verbatim(p.TextureIndex, false, false)
	default:
		return s.rgba([]texel.RGBA32{DefaultColor}, texel.One, true)
	}
}

func (s *synthesis) absorptionTransmissionMap(absorption, transmission bridge.MaterialParam) (h resources.Handle, err error) {
	if absorption.Format == bridge.NotIncluded && transmission.Format == bridge.NotIncluded {
		return resources.Handle{}, nil
	}
	if absorption.SameTexture(transmission) {
		return s.verbatim(absorption.TextureIndex, false, false)
	}

	set, err := s.resolve(
		[]bridge.MaterialParam{absorption, transmission},
		[]texel.RGBA32{DefaultAbsorption, texel.FromFloats(DefaultTransmission, 0, 0, 0)},
	)
	defer s.releaseAll(set, &err)
	if err != nil {
		return resources.Handle{}, err
	}

	dst, dims, err := combineRGBA(set.srcs, rgbaSel(pick(0, texel.R), pick(0, texel.G), pick(0, texel.B), pick(1, texel.R)))
	if err != nil {
		return resources.Handle{}, err
	}
	return s.rgba(dst, dims, !set.embedded(0))
}

func (s *synthesis) normalMap(p bridge.MaterialParam) (resources.Handle, error) {
	switch p.Format {
	case bridge.Numerical:
		return s.rgb([]texel.RGB24{p.ToTexel().RGB()}, texel.One, true)
	case bridge.TextureMap:
		return s.verbatim(p.TextureIndex, true, true)
	default:
		return resources.Handle{}, nil
	}
}

// metallicChannel picks where metallic lives given which of the occlusion,
// roughness and metallic params share a texture.
func metallicChannel(occRough, roughMetal, occMetal bool) texel.Channel {
	switch {
	case !roughMetal && !occMetal:
		return texel.R
	case !occRough && roughMetal && !occMetal:
		return texel.G
	case !occRough && !roughMetal && occMetal:
		return texel.G
	default:
		return texel.B
	}
}

// ormMap builds the occlusion/roughness/metallic map, with reflectance in
// alpha when the IoR is known or reflectanceRequired is set.
func (s *synthesis) ormMap(params *bridge.MaterialParams, reflectanceRequired bool) (h resources.Handle, err error) {
	occ := params[bridge.ParamAmbientOcclusion]
	rough := params[bridge.ParamRoughness]
	gloss := params[bridge.ParamGlossiness]
	metal := params[bridge.ParamMetallic]
	ior := params[bridge.ParamIoR]

	if absent(occ, rough, gloss, metal) && ior.Format != bridge.Numerical {
		return resources.Handle{}, nil
	}

	var reflectance *float32
	if ior.Format == bridge.Numerical {
		r := IoRToReflectance(ior.R)
		reflectance = &r
	}
	if reflectance == nil && reflectanceRequired {
		r := DefaultReflectance
		reflectance = &r
	}

	occRough := occ.SameTexture(rough)
	roughMetal := rough.SameTexture(metal)
	if reflectance == nil && occRough && roughMetal {
		return s.verbatim(occ.TextureIndex, true, false)
	}
	occMetal := occ.SameTexture(metal)

	glossOverRough := rough.Format == bridge.NotIncluded && gloss.Format != bridge.NotIncluded
	if glossOverRough {
		rough = gloss
	}

	set, err := s.resolve(
		[]bridge.MaterialParam{occ, rough, metal},
		[]texel.RGBA32{grayOf(DefaultOcclusion), grayOf(DefaultRoughness), grayOf(DefaultMetallic)},
	)
	defer s.releaseAll(set, &err)
	if err != nil {
		return resources.Handle{}, err
	}

	if glossOverRough {
		texel.Negate(set.srcs[1].Texels)
	}
	roughCh := texel.R
	if occRough {
		roughCh = texel.G
	}
	metalCh := metallicChannel(occRough, roughMetal, occMetal)

	if reflectance != nil {
		srcs := append(set.srcs, texel.Source{Texels: []texel.RGBA32{grayOf(*reflectance)}, Dims: texel.One})
		dst, dims, err := combineRGBA(srcs, rgbaSel(pick(0, texel.R), pick(1, roughCh), pick(2, metalCh), pick(3, texel.A)))
		if err != nil {
			return resources.Handle{}, err
		}
		return s.rgba(dst, dims, true)
	}

	dst, dims, err := combineRGB(set.srcs, rgbSel(pick(0, texel.R), pick(1, roughCh), pick(2, metalCh)))
	if err != nil {
		return resources.Handle{}, err
	}
	return s.rgb(dst, dims, true)
}

func (s *synthesis) anisotropyMap(angle, strength bridge.MaterialParam) (h resources.Handle, err error) {
	if absent(angle, strength) {
		return resources.Handle{}, nil
	}
	// a shared texture is already in tangent vector form
	if angle.SameTexture(strength) {
		return s.verbatim(angle.TextureIndex, true, true)
	}

	set, err := s.resolve(
		[]bridge.MaterialParam{angle, strength},
		[]texel.RGBA32{{}, {R: 255, G: 255, B: 255, A: 255}},
	)
	defer s.releaseAll(set, &err)
	if err != nil {
		return resources.Handle{}, err
	}

	dst, dims, err := combineRGB(set.srcs, rgbSel(pick(0, texel.R), pick(0, texel.R), pick(1, texel.R)))
	if err != nil {
		return resources.Handle{}, err
	}
	if err := texel.AnisotropyFromRadial(dst, texel.DefaultRadialConfig); err != nil {
		return resources.Handle{}, err
	}
	return s.rgb(dst, dims, true)
}

func (s *synthesis) emissiveMap(color, intensity bridge.MaterialParam) (h resources.Handle, err error) {
	if absent(color, intensity) {
		return resources.Handle{}, nil
	}
	if color.SameTexture(intensity) {
		return s.verbatim(color.TextureIndex, false, false)
	}

	set, err := s.resolve(
		[]bridge.MaterialParam{color, intensity},
		[]texel.RGBA32{DefaultEmissiveColor, grayOf(DefaultEmissiveIntensity)},
	)
	defer s.releaseAll(set, &err)
	if err != nil {
		return resources.Handle{}, err
	}

	dst, dims, err := combineRGBA(set.srcs, rgbaSel(pick(0, texel.R), pick(0, texel.G), pick(0, texel.B), pick(1, texel.R)))
	if err != nil {
		return resources.Handle{}, err
	}
	return s.rgba(dst, dims, !set.embedded(0))
}

func (s *synthesis) clearCoatMap(strength, roughness bridge.MaterialParam) (h resources.Handle, err error) {
	if absent(strength, roughness) {
		return resources.Handle{}, nil
	}
	if strength.SameTexture(roughness) {
		return s.verbatim(strength.TextureIndex, true, true)
	}

	set, err := s.resolve(
		[]bridge.MaterialParam{strength, roughness},
		[]texel.RGBA32{grayOf(DefaultClearCoatThickness), grayOf(DefaultClearCoatRoughness)},
	)
	defer s.releaseAll(set, &err)
	if err != nil {
		return resources.Handle{}, err
	}

	dst, dims, err := combineRGB(set.srcs, rgbSel(pick(0, texel.R), pick(1, texel.R), pick(0, texel.R)))
	if err != nil {
		return resources.Handle{}, err
	}
	return s.rgb(dst, dims, true)
}

// synthesizeMaterial reads material index of an open asset, builds its
// maps, adds them to group and creates the material. Maps built before a
// failure are disposed again.
func (l *Loader) synthesizeMaterial(asset bridge.Handle, index int, rootDir string, group *resources.Group, base assets.TextureConfig) (h resources.Handle, err error) {
	var params bridge.MaterialParams
	alphaFormat, refraction, err := l.bridge.MaterialData(asset, index, &params)
	if err != nil {
		return resources.Handle{}, fmt.Errorf("material %d: %w", index, err)
	}

	s := &synthesis{l: l, asset: asset, rootDir: rootDir, base: base}
	defer func() {
		if err != nil {
			err = multierr.Append(fmt.Errorf("material %d: %w", index, err), s.discard())
		}
	}()

	var m assets.Material
	if m.ColorMap, err = s.colorMap(params[bridge.ParamColor]); err != nil {
		return resources.Handle{}, err
	}
	if m.AbsorptionTransmission, err = s.absorptionTransmissionMap(params[bridge.ParamAbsorption], params[bridge.ParamTransmission]); err != nil {
		return resources.Handle{}, err
	}
	transmissive := !m.AbsorptionTransmission.IsZero()
	if m.NormalMap, err = s.normalMap(params[bridge.ParamNormal]); err != nil {
		return resources.Handle{}, err
	}
	if m.ORMMap, err = s.ormMap(&params, transmissive); err != nil {
		return resources.Handle{}, err
	}
	if m.AnisotropyMap, err = s.anisotropyMap(params[bridge.ParamAnisotropyAngle], params[bridge.ParamAnisotropyStrength]); err != nil {
		return resources.Handle{}, err
	}
	if m.EmissiveMap, err = s.emissiveMap(params[bridge.ParamEmissiveColor], params[bridge.ParamEmissiveIntensity]); err != nil {
		return resources.Handle{}, err
	}
	if !transmissive {
		if m.ClearCoatMap, err = s.clearCoatMap(params[bridge.ParamClearCoatStrength], params[bridge.ParamClearCoatRoughness]); err != nil {
			return resources.Handle{}, err
		}
	}

	for len(s.created) > 0 {
		if err = group.Add(s.created[0]); err != nil {
			return resources.Handle{}, err
		}
		s.created = s.created[1:]
	}

	if alphaFormat == bridge.AlphaBlending {
		m.Alpha = assets.FullBlending
	}
	if transmissive {
		m.Kind = assets.TransmissiveMaterial
		m.RefractionThickness = DefaultRefractionThickness
		if refraction >= 0 {
			m.RefractionThickness = refraction
		}
	}

	if h, err = l.build.CreateMaterial(m, ""); err != nil {
		return resources.Handle{}, err
	}
	l.log.Debug("material synthesized",
		zap.Int("index", index),
		zap.Stringer("handle", h),
		zap.Stringer("kind", m.Kind),
		zap.Int("maps", len(m.Maps())))
	return h, nil
}
