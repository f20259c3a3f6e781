// Package texel defines the texel formats used by the import pipeline and the
// utilities that combine and process texel buffers.
package texel

import (
	"fmt"
	"math"
)

// Channel selects one color channel of a texel.
type Channel uint8

const (
	R Channel = iota
	G
	B
	A
)

// String returns the channel letter.
func (c Channel) String() string {
	switch c {
	case R:
		return "R"
	case G:
		return "G"
	case B:
		return "B"
	case A:
		return "A"
	default:
		return fmt.Sprintf("Channel(%d)", c)
	}
}

// Valid reports whether c names a known channel.
func (c Channel) Valid() bool { return c <= A }

// Dims holds texture dimensions in texels.
type Dims struct {
	X, Y int
}

// One is the size of a single-texel texture.
var One = Dims{1, 1}

// Area returns X*Y.
func (d Dims) Area() int { return d.X * d.Y }

// Index returns the row-major index of (x, y).
func (d Dims) Index(x, y int) int { return d.X*y + x }

// IndexClamped clamps (x, y) into range before indexing.
func (d Dims) IndexClamped(x, y int) int {
	return d.Index(clamp(x, 0, d.X-1), clamp(y, 0, d.Y-1))
}

// Valid reports whether both dimensions are positive.
func (d Dims) Valid() bool { return d.X > 0 && d.Y > 0 }

func (d Dims) String() string { return fmt.Sprintf("%dx%d", d.X, d.Y) }

// RGB24 is a three channel 8-bit texel.
type RGB24 struct {
	R, G, B uint8
}

// RGBA32 is a four channel 8-bit texel.
type RGBA32 struct {
	R, G, B, A uint8
}

// Texel is implemented by both texel formats.
type Texel[T any] interface {
	RGB24 | RGBA32
	Channel(c Channel) (uint8, bool)
	WithChannel(c Channel, v uint8) T
}

// Channel returns the value of c. Alpha is not present on RGB24.
func (t RGB24) Channel(c Channel) (uint8, bool) {
	switch c {
	case R:
		return t.R, true
	case G:
		return t.G, true
	case B:
		return t.B, true
	}
	return 0, false
}

// WithChannel returns a copy of t with channel c set to v.
func (t RGB24) WithChannel(c Channel, v uint8) RGB24 {
	switch c {
	case R:
		t.R = v
	case G:
		t.G = v
	case B:
		t.B = v
	}
	return t
}

// RGBA widens t with an opaque alpha channel.
func (t RGB24) RGBA() RGBA32 { return RGBA32{t.R, t.G, t.B, math.MaxUint8} }

// Channel returns the value of c.
func (t RGBA32) Channel(c Channel) (uint8, bool) {
	switch c {
	case R:
		return t.R, true
	case G:
		return t.G, true
	case B:
		return t.B, true
	case A:
		return t.A, true
	}
	return 0, false
}

// WithChannel returns a copy of t with channel c set to v.
func (t RGBA32) WithChannel(c Channel, v uint8) RGBA32 {
	switch c {
	case R:
		t.R = v
	case G:
		t.G = v
	case B:
		t.B = v
	case A:
		t.A = v
	}
	return t
}

// RGB drops the alpha channel.
func (t RGBA32) RGB() RGB24 { return RGB24{t.R, t.G, t.B} }

// Gray returns a texel with every channel set to v.
func Gray(v uint8) RGBA32 { return RGBA32{v, v, v, v} }

// FromFloats converts normalized floats to a texel. Values are clamped to [0, 1].
func FromFloats(r, g, b, a float32) RGBA32 {
	return RGBA32{FloatToByte(r), FloatToByte(g), FloatToByte(b), FloatToByte(a)}
}

// FloatToByte maps a normalized float to [0, 255] with rounding.
func FloatToByte(f float32) uint8 {
	if f != f || f <= 0 {
		return 0
	}
	if f >= 1 {
		return math.MaxUint8
	}
	return uint8(f*math.MaxUint8 + 0.5)
}

// ByteToFloat maps a byte to a normalized float.
func ByteToFloat(b uint8) float32 { return float32(b) / math.MaxUint8 }

// ToRGB converts RGBA texels to RGB texels. dst must be at least as long as src.
func ToRGB(src []RGBA32, dst []RGB24) error {
	if len(dst) < len(src) {
		return fmt.Errorf("texel: destination length %d is smaller than source length %d", len(dst), len(src))
	}
	for i, t := range src {
		dst[i] = t.RGB()
	}
	return nil
}

// ToRGBA converts RGB texels to opaque RGBA texels.
func ToRGBA(src []RGB24, dst []RGBA32) error {
	if len(dst) < len(src) {
		return fmt.Errorf("texel: destination length %d is smaller than source length %d", len(dst), len(src))
	}
	for i, t := range src {
		dst[i] = t.RGBA()
	}
	return nil
}

func blend(a, b uint8, f float32) uint8 {
	return uint8(float32(a) + (float32(b)-float32(a))*f + 0.5)
}

// Blend linearly interpolates each channel of a toward b.
func Blend(a, b RGBA32, f float32) RGBA32 {
	return RGBA32{blend(a.R, b.R, f), blend(a.G, b.G, f), blend(a.B, b.B, f), blend(a.A, b.A, f)}
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
