package main

import (
	"fmt"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"strings"

	"github.com/HugoSmits86/nativewebp"
	"go.uber.org/zap"

	"github.com/Faultbox/assetforge/internal/assets"
	"github.com/Faultbox/assetforge/internal/logger"
	"github.com/Faultbox/assetforge/internal/resources"
)

// toImage converts a built texture to an image.
func toImage(t *assets.Texture) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, t.Dims.X, t.Dims.Y))
	for y := 0; y < t.Dims.Y; y++ {
		for x := 0; x < t.Dims.X; x++ {
			c := t.At(x, y)
			img.SetNRGBA(x, y, color.NRGBA{R: c.R, G: c.G, B: c.B, A: c.A})
		}
	}
	return img
}

func exportName(path string) string {
	base := filepath.Base(path)
	base = strings.TrimSuffix(base, filepath.Ext(base))
	// built-in paths carry characters that are not valid in file names
	return strings.NewReplacer("?", "", "/", "_", "\\", "_").Replace(base)
}

// export writes texture h to the output directory in the configured format.
func (e *env) export(h resources.Handle, name string) error {
	t, err := e.store.Texture(h)
	if err != nil {
		return err
	}
	dir := e.cfg.Output.Directory
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating output directory: %w", err)
	}

	format := strings.ToLower(e.cfg.Output.Format)
	if format != "webp" && format != "png" {
		return fmt.Errorf("unsupported export format %q", e.cfg.Output.Format)
	}
	out := filepath.Join(dir, name+"."+format)
	f, err := os.Create(out)
	if err != nil {
		return err
	}
	defer f.Close()

	img := toImage(t)
	switch format {
	case "webp":
		err = nativewebp.Encode(f, img, nil)
	case "png":
		err = png.Encode(f, img)
	}
	if err != nil {
		return fmt.Errorf("encoding %s: %w", out, err)
	}
	logger.Info("texture exported", zap.Stringer("handle", h), zap.String("file", out))
	return nil
}
