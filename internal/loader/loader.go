// Package loader imports meshes, models, textures and backdrops through an
// import bridge, synthesizes the engine's material texture channels and
// registers everything it builds with a resource registry.
//
// A Loader is a single-writer session: it owns three buffer arenas and the
// registry it was created with, and must not be used from more than one
// goroutine at a time.
package loader

import (
	"fmt"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/Faultbox/assetforge/internal/assets"
	"github.com/Faultbox/assetforge/internal/config"
	"github.com/Faultbox/assetforge/internal/resources"
	"github.com/Faultbox/assetforge/pkg/arena"
	"github.com/Faultbox/assetforge/pkg/bridge"
)

// Builders creates the engine resources a Loader produces.
type Builders interface {
	assets.MeshBuilder
	assets.TextureBuilder
	assets.MaterialBuilder
}

// MeshReadConfig controls how mesh data is read from an asset.
type MeshReadConfig struct {
	FixCommonExportErrors     bool
	Optimize                  bool
	CorrectFlippedOrientation bool
}

// TextureReadConfig controls how a texture file is read.
type TextureReadConfig struct {
	// IncludeAlpha keeps the alpha channel of files that have one.
	IncludeAlpha bool
}

// AssetReadConfig controls how a model file is read.
type AssetReadConfig struct {
	Mesh    MeshReadConfig
	Texture TextureReadConfig
	// SkipUnusedMaterials leaves materials no mesh references unbuilt.
	SkipUnusedMaterials bool
}

// AssetConfig controls what LoadModels creates.
type AssetConfig struct {
	// Name of the returned group.
	Name string
	// Texture is the base config of every synthesized map; the color
	// space is decided per map.
	Texture assets.TextureConfig
}

// DefaultAssetReadConfig returns the read config used when none is given.
func DefaultAssetReadConfig() AssetReadConfig {
	return AssetReadConfig{
		Mesh: MeshReadConfig{
			FixCommonExportErrors:     true,
			Optimize:                  true,
			CorrectFlippedOrientation: true,
		},
		SkipUnusedMaterials: true,
	}
}

// ReadConfigFrom converts import settings to an AssetReadConfig.
func ReadConfigFrom(c config.ImportConfig) AssetReadConfig {
	return AssetReadConfig{
		Mesh: MeshReadConfig{
			FixCommonExportErrors:     c.FixCommonErrors,
			Optimize:                  c.Optimize,
			CorrectFlippedOrientation: c.CorrectFlipped,
		},
		Texture:             TextureReadConfig{IncludeAlpha: true},
		SkipUnusedMaterials: c.SkipUnusedMaterials,
	}
}

// AssetConfigFrom converts import settings to an AssetConfig named name.
func AssetConfigFrom(c config.ImportConfig, name string) AssetConfig {
	return AssetConfig{
		Name:    name,
		Texture: assets.TextureConfig{GenerateMipMaps: c.GenerateMipMaps},
	}
}

// Loader imports assets into a registry.
type Loader struct {
	cfg    config.LoaderConfig
	bridge bridge.Bridge
	reg    *resources.Registry
	build  Builders
	log    *zap.Logger
	prep   *Preprocessor

	backdrops *resources.Table[*Backdrop]

	vertexArena  *arena.Arena // vertices and triangles
	textureArena *arena.Arena // embedded texture texels and texture files
	ktxArena     *arena.Arena // skybox and IBL files

	closed bool
}

// Option configures a Loader.
type Option func(*Loader)

// WithLogger sets the logger. The default discards everything.
func WithLogger(l *zap.Logger) Option {
	return func(ld *Loader) {
		if l != nil {
			ld.log = l
		}
	}
}

// WithPreprocessor sets the HDR preprocessor used by PreprocessHDR.
func WithPreprocessor(p *Preprocessor) Option {
	return func(ld *Loader) { ld.prep = p }
}

// New creates a loader. cfg is clamped before use. The registry must not
// already serve another loader.
func New(b bridge.Bridge, reg *resources.Registry, build Builders, cfg config.LoaderConfig, opts ...Option) (*Loader, error) {
	if b == nil || reg == nil || build == nil {
		return nil, fmt.Errorf("creating loader: bridge, registry and builders are required")
	}
	if reg.HasTable(resources.KindBackdropTexture) {
		return nil, fmt.Errorf("creating loader: registry already serves a loader")
	}
	cfg.Clamp()

	l := &Loader{
		cfg:    cfg,
		bridge: b,
		reg:    reg,
		build:  build,
		log:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(l)
	}
	if l.prep == nil {
		l.prep = NewPreprocessor(cfg.PreprocessorPath, cfg.HdrTimeout)
	}

	var err error
	if l.vertexArena, err = arena.New(cfg.MaxVertexIndexBufferBytes); err != nil {
		return nil, fmt.Errorf("vertex arena: %w", err)
	}
	if l.textureArena, err = arena.New(cfg.MaxEmbeddedTextureBytes); err != nil {
		return nil, fmt.Errorf("texture arena: %w", err)
	}
	if l.ktxArena, err = arena.New(cfg.MaxKtxBytes); err != nil {
		return nil, fmt.Errorf("ktx arena: %w", err)
	}

	l.backdrops = resources.NewTable[*Backdrop](reg, resources.KindBackdropTexture, l.releaseBackdrop)

	l.log.Debug("loader created",
		zap.Int("vertexArenaBlock", l.vertexArena.BlockSize()),
		zap.Int("textureArenaBlock", l.textureArena.BlockSize()),
		zap.Int("ktxArenaBlock", l.ktxArena.BlockSize()))
	return l, nil
}

// Registry returns the registry the loader writes to.
func (l *Loader) Registry() *resources.Registry { return l.reg }

// Config returns the clamped loader config.
func (l *Loader) Config() config.LoaderConfig { return l.cfg }

// Outstanding returns the number of rented buffers not yet returned across
// all arenas. It is zero between calls.
func (l *Loader) Outstanding() int {
	return l.vertexArena.Outstanding() + l.textureArena.Outstanding() + l.ktxArena.Outstanding()
}

// IsClosed reports whether Close was called.
func (l *Loader) IsClosed() bool { return l.closed }

// Close unloads every backdrop texture and frees the arenas. Resources
// already handed out stay in the registry. Closing twice is a no-op.
func (l *Loader) Close() error {
	if l.closed {
		return nil
	}
	err := l.backdrops.DisposeAll()
	l.vertexArena.Close()
	l.textureArena.Close()
	l.ktxArena.Close()
	l.closed = true
	l.log.Debug("loader closed")
	return err
}

func (l *Loader) checkOpen() error {
	if l.closed {
		return ErrClosed
	}
	return nil
}

// checkPath validates a file path against the configured length limit.
func (l *Loader) checkPath(path string) error {
	if len(path) > l.cfg.MaxFilePathLength {
		return fmt.Errorf("%w: %d bytes, limit is %d", ErrPathTooLong, len(path), l.cfg.MaxFilePathLength)
	}
	return nil
}

// giveBack returns buf to a and folds any failure into *err.
func (l *Loader) giveBack(a *arena.Arena, buf arena.Buffer, err *error) {
	if rerr := a.Return(buf); rerr != nil {
		l.log.Error("returning pooled buffer", zap.Error(rerr))
		*err = multierr.Append(*err, rerr)
	}
}
