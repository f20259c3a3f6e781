package texel

import "fmt"

// ProcessConfig describes in-place post-processing of a texel buffer.
type ProcessConfig struct {
	FlipX   bool
	FlipY   bool
	InvertR bool
	InvertG bool
	InvertB bool
	InvertA bool
	// Swizzle, when set, names the source channel for R, G, B and A.
	Swizzle *[4]Channel
}

// NoProcessing leaves texels untouched.
var NoProcessing = ProcessConfig{}

// Flip returns a config that only flips along the given axes.
func Flip(x, y bool) ProcessConfig { return ProcessConfig{FlipX: x, FlipY: y} }

// Invert returns a config that inverts every channel.
func Invert() ProcessConfig {
	return ProcessConfig{InvertR: true, InvertG: true, InvertB: true, InvertA: true}
}

// IsNoop reports whether c would leave a buffer unchanged.
func (c ProcessConfig) IsNoop() bool {
	return !c.FlipX && !c.FlipY && !c.InvertR && !c.InvertG && !c.InvertB && !c.InvertA && c.Swizzle == nil
}

func (c ProcessConfig) inverts(ch Channel) bool {
	switch ch {
	case R:
		return c.InvertR
	case G:
		return c.InvertG
	case B:
		return c.InvertB
	case A:
		return c.InvertA
	}
	return false
}

// Process applies cfg to texels in place. Swizzle runs before inversion so
// the invert flags refer to destination channels.
func Process[T Texel[T]](texels []T, dims Dims, cfg ProcessConfig) error {
	if !dims.Valid() {
		return fmt.Errorf("texel: cannot process texture with dimensions %v", dims)
	}
	if len(texels) < dims.Area() {
		return fmt.Errorf("%w: %d texels for %v", ErrShortBuffer, len(texels), dims)
	}
	if cfg.IsNoop() {
		return nil
	}
	texels = texels[:dims.Area()]

	if cfg.FlipX {
		for y := 0; y < dims.Y; y++ {
			row := texels[y*dims.X : (y+1)*dims.X]
			for i, j := 0, len(row)-1; i < j; i, j = i+1, j-1 {
				row[i], row[j] = row[j], row[i]
			}
		}
	}
	if cfg.FlipY {
		for top, bottom := 0, dims.Y-1; top < bottom; top, bottom = top+1, bottom-1 {
			a := texels[top*dims.X : (top+1)*dims.X]
			b := texels[bottom*dims.X : (bottom+1)*dims.X]
			for i := range a {
				a[i], b[i] = b[i], a[i]
			}
		}
	}

	if cfg.Swizzle != nil {
		for _, ch := range cfg.Swizzle {
			if !ch.Valid() {
				return fmt.Errorf("texel: invalid swizzle channel %d", ch)
			}
		}
		for i, t := range texels {
			out := t
			for dst, src := range cfg.Swizzle {
				v, ok := t.Channel(src)
				if !ok {
					// RGB24 has no alpha to pull from.
					v = 255
				}
				out = out.WithChannel(Channel(dst), v)
			}
			texels[i] = out
		}
	}

	invert := [4]bool{cfg.inverts(R), cfg.inverts(G), cfg.inverts(B), cfg.inverts(A)}
	if invert != [4]bool{} {
		for i, t := range texels {
			for ch, on := range invert {
				if !on {
					continue
				}
				if v, ok := t.Channel(Channel(ch)); ok {
					t = t.WithChannel(Channel(ch), 255-v)
				}
			}
			texels[i] = t
		}
	}
	return nil
}

// Negate inverts every channel present on T.
func Negate[T Texel[T]](texels []T) {
	for i, t := range texels {
		for ch := R; ch <= A; ch++ {
			if v, ok := t.Channel(ch); ok {
				t = t.WithChannel(ch, 255-v)
			}
		}
		texels[i] = t
	}
}

// ConvertToRGB narrows texels to RGB24, allocating dst when it is nil.
func ConvertToRGB(src []RGBA32, dst []RGB24) ([]RGB24, error) {
	if dst == nil {
		dst = make([]RGB24, len(src))
	}
	if err := ToRGB(src, dst); err != nil {
		return nil, err
	}
	return dst[:len(src)], nil
}
