package texel

import (
	"fmt"
	"math"
)

// AngleRange is the span of angles encoded by a byte channel.
type AngleRange uint8

const (
	// ZeroTo360 maps 0..255 onto a full turn.
	ZeroTo360 AngleRange = iota
	// ZeroTo180 maps 0..255 onto a half turn; the direction is unsigned.
	ZeroTo180
)

// RadialConfig describes how radial anisotropy data is laid out.
type RadialConfig struct {
	Range AngleRange
	// ZeroDegrees is the direction of angle 0 in degrees, measured
	// anticlockwise from +X.
	ZeroDegrees   float64
	Anticlockwise bool
	// Angle is read from this channel.
	Angle Channel
	// Strength is read from this channel and copied to B of the output.
	Strength Channel
}

// DefaultRadialConfig reads the angle from R and the strength from B, with
// angle 0 pointing along +X and angles increasing anticlockwise.
var DefaultRadialConfig = RadialConfig{
	Range:         ZeroTo360,
	Anticlockwise: true,
	Angle:         R,
	Strength:      B,
}

// AnisotropyFromRadial converts texels holding a radial angle and a strength
// into tangent-space vectors: R and G hold the XY direction remapped to
// [0, 255], B holds the strength.
func AnisotropyFromRadial(texels []RGB24, cfg RadialConfig) error {
	if cfg.Angle > B || cfg.Strength > B {
		return fmt.Errorf("texel: anisotropy channels must be R, G or B (got %v, %v)", cfg.Angle, cfg.Strength)
	}
	span := 360.0
	if cfg.Range == ZeroTo180 {
		span = 180.0
	}
	for i, t := range texels {
		a, _ := t.Channel(cfg.Angle)
		s, _ := t.Channel(cfg.Strength)

		deg := float64(a) / 255 * span
		if !cfg.Anticlockwise {
			deg = -deg
		}
		rad := (deg + cfg.ZeroDegrees) * math.Pi / 180
		texels[i] = RGB24{
			R: FloatToByte(float32(math.Cos(rad)*0.5 + 0.5)),
			G: FloatToByte(float32(math.Sin(rad)*0.5 + 0.5)),
			B: s,
		}
	}
	return nil
}
