package texel

import (
	"errors"
	"fmt"
	"math"
	"strings"
)

// ScalingStrategy selects how a smaller source is sampled against a larger
// combined destination.
type ScalingStrategy uint8

const (
	// PixelUpscale samples the nearest source texel.
	PixelUpscale ScalingStrategy = iota
	// BilinearUpscale blends the four nearest source texels.
	BilinearUpscale
	// RepeatingTile wraps coordinates (x mod w, y mod h).
	RepeatingTile
	// ExtendEdges centers the source and clamps to its edges.
	ExtendEdges
)

// DefaultScalingStrategy is used by configs built without an explicit strategy.
const DefaultScalingStrategy = PixelUpscale

func (s ScalingStrategy) String() string {
	switch s {
	case PixelUpscale:
		return "pixel"
	case BilinearUpscale:
		return "bilinear"
	case RepeatingTile:
		return "tile"
	case ExtendEdges:
		return "extend"
	default:
		return fmt.Sprintf("ScalingStrategy(%d)", s)
	}
}

// ParseScalingStrategy parses the names returned by ScalingStrategy.String.
func ParseScalingStrategy(s string) (ScalingStrategy, error) {
	switch strings.ToLower(s) {
	case "pixel", "nearest", "":
		return PixelUpscale, nil
	case "bilinear":
		return BilinearUpscale, nil
	case "tile", "wrap", "repeat":
		return RepeatingTile, nil
	case "extend", "clamp":
		return ExtendEdges, nil
	}
	return 0, fmt.Errorf("unknown scaling strategy %q", s)
}

// Combination errors.
var (
	ErrSourceCount  = errors.New("texel: combination needs 2 to 4 sources")
	ErrBadSelection = errors.New("texel: invalid channel selection")
	ErrShortBuffer  = errors.New("texel: buffer too small")
)

// Source is one input of a combination.
type Source struct {
	Texels []RGBA32
	Dims   Dims
}

// Pick selects one channel of one source texture (0 = A ... 3 = D).
type Pick struct {
	Texture int
	Channel Channel
}

// CombineConfig maps destination channels to source channels.
// When Alpha is nil the destination alpha is fully opaque.
type CombineConfig struct {
	Strategy ScalingStrategy
	Red      Pick
	Green    Pick
	Blue     Pick
	Alpha    *Pick
}

// Selection builds a config from three or four picks.
func Selection(strategy ScalingStrategy, picks ...Pick) (CombineConfig, error) {
	if len(picks) < 3 || len(picks) > 4 {
		return CombineConfig{}, fmt.Errorf("%w: need 3 or 4 channel picks, got %d", ErrBadSelection, len(picks))
	}
	cfg := CombineConfig{Strategy: strategy, Red: picks[0], Green: picks[1], Blue: picks[2]}
	if len(picks) == 4 {
		p := picks[3]
		cfg.Alpha = &p
	}
	return cfg, nil
}

// ParseSelection parses a selection string such as "arag ab" or "0r1g2b3a".
// Each pair is a source texture (a-d or 0-3) followed by a channel
// (r/g/b/a, x/y/z/w or 0-3). Whitespace is ignored.
func ParseSelection(strategy ScalingStrategy, s string) (CombineConfig, error) {
	s = strings.Join(strings.Fields(strings.ToLower(s)), "")
	if len(s) != 6 && len(s) != 8 {
		return CombineConfig{}, fmt.Errorf("%w: %q must hold 3 or 4 texture/channel pairs", ErrBadSelection, s)
	}
	picks := make([]Pick, 0, 4)
	for i := 0; i < len(s); i += 2 {
		p, err := parsePick(s[i], s[i+1])
		if err != nil {
			return CombineConfig{}, err
		}
		picks = append(picks, p)
	}
	return Selection(strategy, picks...)
}

func parsePick(tex, ch byte) (Pick, error) {
	var p Pick
	switch tex {
	case 'a', '0':
		p.Texture = 0
	case 'b', '1':
		p.Texture = 1
	case 'c', '2':
		p.Texture = 2
	case 'd', '3':
		p.Texture = 3
	default:
		return p, fmt.Errorf("%w: %q is not a source texture (a-d, 0-3)", ErrBadSelection, tex)
	}
	switch ch {
	case 'r', 'x', '0':
		p.Channel = R
	case 'g', 'y', '1':
		p.Channel = G
	case 'b', 'z', '2':
		p.Channel = B
	case 'a', 'w', '3':
		p.Channel = A
	default:
		return p, fmt.Errorf("%w: %q is not a channel (r/g/b/a, x/y/z/w, 0-3)", ErrBadSelection, ch)
	}
	return p, nil
}

func (c CombineConfig) validate(sources int) error {
	picks := []Pick{c.Red, c.Green, c.Blue}
	if c.Alpha != nil {
		picks = append(picks, *c.Alpha)
	}
	for _, p := range picks {
		if !p.Channel.Valid() {
			return fmt.Errorf("%w: unknown channel %d", ErrBadSelection, p.Channel)
		}
		if p.Texture < 0 || p.Texture >= sources {
			return fmt.Errorf("%w: texture %d referenced but only %d sources given", ErrBadSelection, p.Texture, sources)
		}
	}
	if c.Strategy > ExtendEdges {
		return fmt.Errorf("%w: unknown scaling strategy %d", ErrBadSelection, c.Strategy)
	}
	return nil
}

func (c CombineConfig) sel(samples []RGBA32) RGBA32 {
	pick := func(p Pick) uint8 {
		v, ok := samples[p.Texture].Channel(p.Channel)
		if !ok {
			return 0
		}
		return v
	}
	out := RGBA32{pick(c.Red), pick(c.Green), pick(c.Blue), math.MaxUint8}
	if c.Alpha != nil {
		out.A = pick(*c.Alpha)
	}
	return out
}

// CombinedDims returns the per-axis maximum of the given dimensions and
// whether they all matched.
func CombinedDims(dims ...Dims) (Dims, bool) {
	if len(dims) == 0 {
		return Dims{}, true
	}
	out := dims[0]
	matched := true
	for _, d := range dims[1:] {
		if d != dims[0] {
			matched = false
		}
		out.X = max(out.X, d.X)
		out.Y = max(out.Y, d.Y)
	}
	return out, matched
}

// Combine writes the combination of 2-4 sources into dst and returns the
// destination dimensions. dst must hold CombinedDims(...).Area() texels.
func Combine(sources []Source, cfg CombineConfig, dst []RGBA32) (Dims, error) {
	return combine(sources, cfg, len(dst), func(i int, t RGBA32) { dst[i] = t })
}

// CombineRGB is Combine with an RGB24 destination; the alpha pick is ignored.
func CombineRGB(sources []Source, cfg CombineConfig, dst []RGB24) (Dims, error) {
	return combine(sources, cfg, len(dst), func(i int, t RGBA32) { dst[i] = t.RGB() })
}

func combine(sources []Source, cfg CombineConfig, dstLen int, put func(int, RGBA32)) (Dims, error) {
	if len(sources) < 2 || len(sources) > 4 {
		return Dims{}, fmt.Errorf("%w: got %d", ErrSourceCount, len(sources))
	}
	if err := cfg.validate(len(sources)); err != nil {
		return Dims{}, err
	}
	dims := make([]Dims, len(sources))
	for i, s := range sources {
		if !s.Dims.Valid() {
			return Dims{}, fmt.Errorf("texel: source %d has invalid dimensions %v", i, s.Dims)
		}
		if len(s.Texels) < s.Dims.Area() {
			return Dims{}, fmt.Errorf("%w: source %d holds %d texels, %v needs %d", ErrShortBuffer, i, len(s.Texels), s.Dims, s.Dims.Area())
		}
		dims[i] = s.Dims
	}
	dest, matched := CombinedDims(dims...)
	if dstLen < dest.Area() {
		return dest, fmt.Errorf("%w: destination holds %d texels, combined texture %v needs %d", ErrShortBuffer, dstLen, dest, dest.Area())
	}

	samples := make([]RGBA32, len(sources))
	if matched {
		for i := 0; i < dest.Area(); i++ {
			for s := range sources {
				samples[s] = sources[s].Texels[i]
			}
			put(i, cfg.sel(samples))
		}
		return dest, nil
	}

	offsets := make([]Dims, len(sources))
	for s := range sources {
		offsets[s] = centeringOffset(sources[s].Dims, dest)
	}
	for y := 0; y < dest.Y; y++ {
		for x := 0; x < dest.X; x++ {
			for s := range sources {
				samples[s] = Sample(x, y, sources[s].Texels, sources[s].Dims, dest, offsets[s], cfg.Strategy)
			}
			put(dest.Index(x, y), cfg.sel(samples))
		}
	}
	return dest, nil
}

// Sample returns the source texel for destination (x, y) under strategy.
func Sample(x, y int, src []RGBA32, srcDims, destDims, offset Dims, strategy ScalingStrategy) RGBA32 {
	if srcDims == destDims {
		return src[srcDims.Index(x, y)]
	}
	if srcDims == One {
		return src[0]
	}
	switch strategy {
	case BilinearUpscale:
		return sampleBilinear(x, y, src, srcDims, destDims)
	case RepeatingTile:
		return SampleWrapped(x, y, src, srcDims)
	case ExtendEdges:
		return src[srcDims.IndexClamped(x-offset.X, y-offset.Y)]
	default:
		return sampleNearest(x, y, src, srcDims, destDims)
	}
}

// SampleWrapped samples src at (x mod w, y mod h).
func SampleWrapped(x, y int, src []RGBA32, dims Dims) RGBA32 {
	return src[dims.X*(y%dims.Y)+(x%dims.X)]
}

func centeringOffset(src, dest Dims) Dims {
	return Dims{(dest.X - src.X) / 2, (dest.Y - src.Y) / 2}
}

func sampleNearest(x, y int, src []RGBA32, srcDims, destDims Dims) RGBA32 {
	sx := int((float32(x) + 0.5) * float32(srcDims.X) / float32(destDims.X))
	sy := int((float32(y) + 0.5) * float32(srcDims.Y) / float32(destDims.Y))
	return src[srcDims.IndexClamped(sx, sy)]
}

func sampleBilinear(x, y int, src []RGBA32, srcDims, destDims Dims) RGBA32 {
	fx := (float32(x)+0.5)*float32(srcDims.X)/float32(destDims.X) - 0.5
	fy := (float32(y)+0.5)*float32(srcDims.Y)/float32(destDims.Y) - 0.5
	x0 := int(math.Floor(float64(fx)))
	y0 := int(math.Floor(float64(fy)))
	dx := fx - float32(x0)
	dy := fy - float32(y0)

	bottom := Blend(src[srcDims.IndexClamped(x0, y0)], src[srcDims.IndexClamped(x0+1, y0)], dx)
	top := Blend(src[srcDims.IndexClamped(x0, y0+1)], src[srcDims.IndexClamped(x0+1, y0+1)], dx)
	return Blend(bottom, top, dy)
}
