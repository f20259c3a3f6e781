package loader

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/Faultbox/assetforge/internal/assets"
	"github.com/Faultbox/assetforge/internal/resources"
	"github.com/Faultbox/assetforge/pkg/arena"
	"github.com/Faultbox/assetforge/pkg/texel"
)

// TextureMetadata describes a texture file without decoding its texels.
type TextureMetadata struct {
	Dims     texel.Dims
	HasAlpha bool
}

// fileInfo validates the size reported for a texture file.
func (l *Loader) fileInfo(path string) (texel.Dims, int, error) {
	w, h, channels, err := l.bridge.TextureFileInfo(path)
	if err != nil {
		return texel.Dims{}, 0, err
	}
	if w < 0 || h < 0 || (h != 0 && (w*h)/h != w) {
		return texel.Dims{}, 0, fmt.Errorf("%w: width or height for texture file was malformed (%dx%d)", ErrMalformedData, w, h)
	}
	return texel.Dims{X: w, Y: h}, channels, nil
}

// copyFile decodes path into a rented buffer as packed RGB or RGBA texels.
// The caller returns the buffer.
func (l *Loader) copyFile(path string, dims texel.Dims, includeAlpha bool) (arena.Buffer, texel.Dims, error) {
	stride := 3
	if includeAlpha {
		stride = 4
	}
	n := dims.Area() * stride
	buf, err := l.textureArena.Rent(n)
	if err != nil {
		return arena.Buffer{}, texel.Dims{}, err
	}
	w, h, err := l.bridge.CopyTextureFile(path, includeAlpha, buf.Bytes()[:n])
	if err == nil && (w < 0 || h < 0 || w*h*stride > n) {
		err = fmt.Errorf("%w: texture file copied as %dx%d, expected %v", ErrMalformedData, w, h, dims)
	}
	if err != nil {
		l.giveBack(l.textureArena, buf, &err)
		return arena.Buffer{}, texel.Dims{}, err
	}
	return buf, texel.Dims{X: w, Y: h}, nil
}

// LoadTexture builds a texture from a file or a built-in path. The alpha
// channel is kept only when the file has one and read.IncludeAlpha is set.
func (l *Loader) LoadTexture(path string, cfg assets.TextureConfig, read TextureReadConfig) (h resources.Handle, err error) {
	if err := l.checkOpen(); err != nil {
		return resources.Handle{}, err
	}
	if b, ok := lookupBuiltin(path); ok {
		if b.rgb != nil {
			h, err = l.build.CreateTextureRGB([]texel.RGB24{*b.rgb}, texel.One, cfg)
		} else {
			h, err = l.build.CreateTextureRGBA([]texel.RGBA32{*b.rgba}, texel.One, cfg)
		}
		return h, importError(path, "build", err)
	}
	if err := l.checkPath(path); err != nil {
		return resources.Handle{}, importError(path, "open", err)
	}

	dims, channels, err := l.fileInfo(path)
	if err != nil {
		return resources.Handle{}, importError(path, "texture info", err)
	}
	includeAlpha := channels > 3 && read.IncludeAlpha

	buf, dims, err := l.copyFile(path, dims, includeAlpha)
	if err != nil {
		return resources.Handle{}, importError(path, "texture data", err)
	}
	defer l.giveBack(l.textureArena, buf, &err)

	if includeAlpha {
		h, err = l.build.CreateTextureRGBA(arena.View[texel.RGBA32](buf, dims.Area()), dims, cfg)
	} else {
		h, err = l.build.CreateTextureRGB(arena.View[texel.RGB24](buf, dims.Area()), dims, cfg)
	}
	if err != nil {
		return resources.Handle{}, importError(path, "build", err)
	}
	l.log.Info("texture loaded",
		zap.String("path", path),
		zap.Stringer("handle", h),
		zap.Stringer("dims", dims),
		zap.Bool("alpha", includeAlpha))
	return h, nil
}

// ReadTextureMetadata reports the size of a texture and whether it has an
// alpha channel.
func (l *Loader) ReadTextureMetadata(path string) (TextureMetadata, error) {
	if err := l.checkOpen(); err != nil {
		return TextureMetadata{}, err
	}
	if b, ok := lookupBuiltin(path); ok {
		return TextureMetadata{Dims: texel.One, HasAlpha: b.hasAlpha()}, nil
	}
	if err := l.checkPath(path); err != nil {
		return TextureMetadata{}, importError(path, "open", err)
	}
	dims, channels, err := l.fileInfo(path)
	if err != nil {
		return TextureMetadata{}, importError(path, "texture info", err)
	}
	return TextureMetadata{Dims: dims, HasAlpha: channels > 3}, nil
}

// ReadTexture decodes a texture into dst as RGBA texels and applies proc.
// dst must hold at least as many texels as the texture has.
func (l *Loader) ReadTexture(path string, proc texel.ProcessConfig, dst []texel.RGBA32) (dims texel.Dims, err error) {
	if err := l.checkOpen(); err != nil {
		return texel.Dims{}, err
	}
	if b, ok := lookupBuiltin(path); ok {
		if len(dst) < 1 {
			return texel.Dims{}, fmt.Errorf("%w: given destination buffer size (%d) is too small to accomodate texture data (1 texels)", ErrBufferTooSmall, len(dst))
		}
		dst[0] = b.RGBA()
		return texel.One, texel.Process(dst[:1], texel.One, proc)
	}
	if err := l.checkPath(path); err != nil {
		return texel.Dims{}, importError(path, "open", err)
	}

	info, _, err := l.fileInfo(path)
	if err != nil {
		return texel.Dims{}, importError(path, "texture info", err)
	}
	if len(dst) < info.Area() {
		return texel.Dims{}, fmt.Errorf("%w: given destination buffer size (%d) is too small to accomodate texture data (%d texels)", ErrBufferTooSmall, len(dst), info.Area())
	}

	buf, dims, err := l.copyFile(path, info, true)
	if err != nil {
		return texel.Dims{}, importError(path, "texture data", err)
	}
	defer l.giveBack(l.textureArena, buf, &err)

	copy(dst, arena.View[texel.RGBA32](buf, dims.Area()))
	if err := texel.Process(dst[:dims.Area()], dims, proc); err != nil {
		return texel.Dims{}, importError(path, "process", err)
	}
	return dims, nil
}

// CombinedTextureInput is one source of LoadCombinedTexture.
type CombinedTextureInput struct {
	Path    string
	Process texel.ProcessConfig
}

// LoadCombinedTexture reads two to four textures, combines them channel by
// channel and builds the result. The result has an alpha channel only when
// cfg selects one.
func (l *Loader) LoadCombinedTexture(inputs []CombinedTextureInput, cfg texel.CombineConfig, texCfg assets.TextureConfig) (resources.Handle, error) {
	if err := l.checkOpen(); err != nil {
		return resources.Handle{}, err
	}
	if len(inputs) < 2 || len(inputs) > 4 {
		return resources.Handle{}, fmt.Errorf("%w: %d inputs", texel.ErrSourceCount, len(inputs))
	}

	srcs := make([]texel.Source, len(inputs))
	for i, in := range inputs {
		meta, err := l.ReadTextureMetadata(in.Path)
		if err != nil {
			return resources.Handle{}, err
		}
		texels := make([]texel.RGBA32, meta.Dims.Area())
		dims, err := l.ReadTexture(in.Path, in.Process, texels)
		if err != nil {
			return resources.Handle{}, err
		}
		srcs[i] = texel.Source{Texels: texels[:dims.Area()], Dims: dims}
	}

	var (
		h    resources.Handle
		dims texel.Dims
		err  error
	)
	if cfg.Alpha != nil {
		var dst []texel.RGBA32
		if dst, dims, err = combineRGBA(srcs, cfg); err == nil {
			h, err = l.build.CreateTextureRGBA(dst, dims, texCfg)
		}
	} else {
		var dst []texel.RGB24
		if dst, dims, err = combineRGB(srcs, cfg); err == nil {
			h, err = l.build.CreateTextureRGB(dst, dims, texCfg)
		}
	}
	if err != nil {
		return resources.Handle{}, fmt.Errorf("combining %d textures: %w", len(inputs), err)
	}
	l.log.Info("combined texture loaded", zap.Int("inputs", len(inputs)), zap.Stringer("dims", dims), zap.Stringer("handle", h))
	return h, nil
}
