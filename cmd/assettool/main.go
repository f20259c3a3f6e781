// assettool imports models, textures and HDR backdrops and reports or
// exports what the loader builds from them.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/Faultbox/assetforge/internal/assets"
	"github.com/Faultbox/assetforge/internal/config"
	"github.com/Faultbox/assetforge/internal/loader"
	"github.com/Faultbox/assetforge/internal/logger"
	"github.com/Faultbox/assetforge/internal/resources"
	"github.com/Faultbox/assetforge/pkg/bridge"
	"github.com/Faultbox/assetforge/pkg/texel"
)

func main() {
	config.ParseFlags()
	args := config.Args()
	if len(args) < 1 {
		printUsage()
		os.Exit(1)
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Config error: %v\n", err)
		os.Exit(1)
	}
	if err := logger.InitWithFileConfig(cfg.Logging.Level, fileConfig(cfg.Logging), true); err != nil {
		fmt.Fprintf(os.Stderr, "Logger error: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	command, rest := args[0], args[1:]
	if command == "help" || command == "-h" || command == "--help" {
		printUsage()
		return
	}
	if command == "builtin" {
		cmdBuiltin()
		return
	}
	if command == "config" {
		if err := cmdConfig(cfg, rest); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	e, err := newEnv(cfg)
	if err != nil {
		logger.Error("setup failed", zap.Error(err))
		os.Exit(1)
	}
	defer e.close()

	switch command {
	case "info":
		err = e.cmdInfo(rest)
	case "models", "import":
		err = e.cmdModels(rest)
	case "texture", "tex":
		err = e.cmdTexture(rest)
	case "combine":
		err = e.cmdCombine(rest)
	case "hdr":
		err = e.cmdHDR(rest)
	case "watch":
		err = e.cmdWatch(rest)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", command)
		printUsage()
		os.Exit(1)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		e.close()
		logger.Sync()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println(`assettool - model, texture and backdrop import utility

Usage:
  assettool [global options] <command> [options]

Commands:
  info <model.obj>                          Show mesh totals
  models [-export] <model.obj>              Import models and list what was built
  texture [-linear] [-export] <path>        Import a texture file or built-in path
  combine -select <sel> [-export] <a> <b> [c] [d]
                                            Combine 2-4 textures channel by channel
  builtin                                   List built-in texture paths
  config [path]                             Write the effective config (.yaml or .toml)
  hdr <image.hdr> [dest]                    Convert an HDR image and load it as backdrop
  watch <model.obj>...                      Re-import models when they change

Global options:
  -config <file>   -debug   -out <dir>   -format webp|png
  -root <dir>      -keep-unused-materials   -no-optimize   -cmgen <path>

Examples:
  assettool info scene.obj
  assettool -format png models -export scene.obj
  assettool combine -select "arbgcb" ao.png rough.png metal.png
  assettool texture "?tffr_builtin?gray_50"`)
}

func fileConfig(c config.LoggingConfig) logger.FileConfig {
	if c.LogFile == "" {
		return logger.FileConfig{}
	}
	fc := logger.DefaultFileConfig(c.LogFile)
	fc.JSON = c.JSON
	return fc
}

// env wires the loader to the disk bridge and the in-memory store.
type env struct {
	cfg    *config.Config
	files  *assets.Manager
	reg    *resources.Registry
	store  *assets.Store
	loader *loader.Loader
	closed bool
}

func newEnv(cfg *config.Config) (*env, error) {
	files := assets.NewManager()
	for _, root := range cfg.Data.SearchRoots {
		if err := files.AddRoot(root); err != nil {
			return nil, err
		}
	}

	lc := cfg.Loader
	if lc.PreprocessorPath == "" {
		lc.PreprocessorPath = besideExecutable(loader.PreprocessorName())
	}

	reg := resources.NewRegistry()
	store := assets.NewStore(reg, logger.Log.Named("store"))
	disk := bridge.NewDisk(bridge.WithFileSource(files), bridge.WithLogger(logger.Log.Named("bridge")))
	l, err := loader.New(disk, reg, store, lc, loader.WithLogger(logger.Log.Named("loader")))
	if err != nil {
		return nil, err
	}
	return &env{cfg: cfg, files: files, reg: reg, store: store, loader: l}, nil
}

// besideExecutable returns the directory of the running binary when it
// holds name, otherwise "" so the tool is looked up on PATH.
func besideExecutable(name string) string {
	exe, err := os.Executable()
	if err != nil {
		return ""
	}
	dir := filepath.Dir(exe)
	if _, err := os.Stat(filepath.Join(dir, name)); err != nil {
		return ""
	}
	return dir
}

func (e *env) close() {
	if e.closed {
		return
	}
	e.closed = true
	if err := e.loader.Close(); err != nil {
		logger.Warn("closing loader", zap.Error(err))
	}
	e.files.Close()
}

func (e *env) readConfig() loader.AssetReadConfig { return loader.ReadConfigFrom(e.cfg.Import) }

func (e *env) cmdInfo(args []string) error {
	if len(args) < 1 {
		return errors.New("usage: assettool info <model.obj>")
	}
	md, err := e.loader.ReadMeshMetadata(args[0], e.readConfig().Mesh)
	if err != nil {
		return err
	}
	fmt.Printf("File:      %s\n", args[0])
	fmt.Printf("Meshes:    %d\n", md.Meshes)
	fmt.Printf("Vertices:  %d\n", md.Vertices)
	fmt.Printf("Triangles: %d\n", md.Triangles)
	return nil
}

func (e *env) cmdModels(args []string) error {
	fs := flag.NewFlagSet("models", flag.ExitOnError)
	export := fs.Bool("export", false, "Write every built texture to the output directory")
	name := fs.String("name", "", "Name of the created group")
	fs.Parse(args)
	if fs.NArg() < 1 {
		return errors.New("usage: assettool models [-export] <model.obj>")
	}
	path := fs.Arg(0)

	group, err := e.loader.LoadModels(path, loader.AssetConfigFrom(e.cfg.Import, *name), e.readConfig())
	if err != nil {
		return err
	}

	models := group.Of(resources.KindModel)
	fmt.Printf("Group %s %q: %d models, %d materials, %d textures\n",
		group.Handle(), group.Name(), len(models),
		len(group.Of(resources.KindMaterial)), len(group.Of(resources.KindTexture)))
	for _, m := range models {
		mesh, _ := e.loader.GetMesh(m)
		mat, _ := e.loader.GetMaterial(m)
		md, err := e.store.Mesh(mesh)
		if err != nil {
			return err
		}
		fmt.Printf("  %s  mesh %s (%d vertices, %d triangles)  material %s\n",
			m, mesh, len(md.Vertices), len(md.Triangles), mat)
	}
	for _, h := range group.Of(resources.KindMaterial) {
		m, err := e.store.Material(h)
		if err != nil {
			return err
		}
		fmt.Printf("  %s  %s, alpha %s, %d maps\n", h, m.Kind, m.Alpha, len(m.Maps()))
		for _, s := range materialSlots(m) {
			fmt.Printf("      %-12s %s\n", s.name, describeTexture(e.store, s.h))
		}
	}

	if *export {
		base := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
		for _, h := range group.Of(resources.KindTexture) {
			if err := e.export(h, fmt.Sprintf("%s_tex%d", base, h.ID)); err != nil {
				return err
			}
		}
	}
	return nil
}

type slot struct {
	name string
	h    resources.Handle
}

func materialSlots(m *assets.Material) []slot {
	all := []slot{
		{"color", m.ColorMap},
		{"at", m.AbsorptionTransmission},
		{"normal", m.NormalMap},
		{"orm", m.ORMMap},
		{"anisotropy", m.AnisotropyMap},
		{"emissive", m.EmissiveMap},
		{"clearcoat", m.ClearCoatMap},
	}
	out := all[:0]
	for _, s := range all {
		if !s.h.IsZero() {
			out = append(out, s)
		}
	}
	return out
}

func describeTexture(store *assets.Store, h resources.Handle) string {
	t, err := store.Texture(h)
	if err != nil {
		return err.Error()
	}
	format, space := "rgb", "srgb"
	if t.HasAlpha() {
		format = "rgba"
	}
	if t.Linear {
		space = "linear"
	}
	return fmt.Sprintf("%s %v %s %s", h, t.Dims, format, space)
}

func (e *env) cmdTexture(args []string) error {
	fs := flag.NewFlagSet("texture", flag.ExitOnError)
	linear := fs.Bool("linear", false, "Treat texel data as linear")
	noAlpha := fs.Bool("no-alpha", false, "Drop the alpha channel")
	flipY := fs.Bool("flip-y", false, "Flip vertically")
	export := fs.Bool("export", false, "Write the texture to the output directory")
	fs.Parse(args)
	if fs.NArg() < 1 {
		return errors.New("usage: assettool texture [-linear] [-export] <path>")
	}
	path := fs.Arg(0)

	md, err := e.loader.ReadTextureMetadata(path)
	if err != nil {
		return err
	}
	cfg := assets.TextureConfig{
		Name:            filepath.Base(path),
		Linear:          *linear,
		GenerateMipMaps: e.cfg.Import.GenerateMipMaps,
		Process:         texel.Flip(false, *flipY),
	}
	h, err := e.loader.LoadTexture(path, cfg, loader.TextureReadConfig{IncludeAlpha: !*noAlpha})
	if err != nil {
		return err
	}
	fmt.Printf("%s  file %v alpha=%v  built %s\n", path, md.Dims, md.HasAlpha, describeTexture(e.store, h))
	if *export {
		return e.export(h, exportName(path))
	}
	return nil
}

func (e *env) cmdCombine(args []string) error {
	fs := flag.NewFlagSet("combine", flag.ExitOnError)
	sel := fs.String("select", "", `Channel selection, e.g. "arbgcb" or "0r1g2b3a"`)
	strategy := fs.String("strategy", texel.DefaultScalingStrategy.String(), "Scaling strategy for mismatched sizes")
	linear := fs.Bool("linear", true, "Treat texel data as linear")
	export := fs.Bool("export", false, "Write the result to the output directory")
	name := fs.String("name", "combined", "Name of the result")
	fs.Parse(args)
	if *sel == "" || fs.NArg() < 2 || fs.NArg() > 4 {
		return errors.New("usage: assettool combine -select <sel> <a> <b> [c] [d]")
	}

	s, err := texel.ParseScalingStrategy(*strategy)
	if err != nil {
		return err
	}
	cfg, err := texel.ParseSelection(s, *sel)
	if err != nil {
		return err
	}
	inputs := make([]loader.CombinedTextureInput, fs.NArg())
	for i, p := range fs.Args() {
		inputs[i] = loader.CombinedTextureInput{Path: p}
	}
	h, err := e.loader.LoadCombinedTexture(inputs, cfg, assets.TextureConfig{Name: *name, Linear: *linear})
	if err != nil {
		return err
	}
	fmt.Printf("combined %d textures: %s\n", len(inputs), describeTexture(e.store, h))
	if *export {
		return e.export(h, *name)
	}
	return nil
}

func cmdBuiltin() {
	paths := loader.BuiltinPaths()
	sort.Strings(paths)
	for _, p := range paths {
		fmt.Println(p)
	}
	fmt.Printf("%sbytes_<r>_<g>_<b>[_<a>]\n", loader.BuiltinPrefix)
}

func cmdConfig(cfg *config.Config, args []string) error {
	if len(args) < 1 {
		if err := cfg.Save(); err != nil {
			return err
		}
		fmt.Printf("config written to %s\n", filepath.Join(config.ConfigDir(), "config.yaml"))
		return nil
	}
	if err := cfg.SaveTo(args[0]); err != nil {
		return err
	}
	fmt.Printf("config written to %s\n", args[0])
	return nil
}

func (e *env) cmdHDR(args []string) error {
	if len(args) < 1 {
		return errors.New("usage: assettool hdr <image.hdr> [dest]")
	}
	src := args[0]
	dest := strings.TrimSuffix(src, filepath.Ext(src)) + "_ktx"
	if len(args) > 1 {
		dest = args[1]
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	if err := e.loader.PreprocessHDR(ctx, src, dest); err != nil {
		return err
	}
	h, err := e.loader.LoadBackdropTextureFromDirectory(dest, filepath.Base(src))
	if err != nil {
		return err
	}
	name, _ := e.loader.BackdropName(h)
	fmt.Printf("backdrop %s %q loaded from %s\n", h, name, dest)
	return nil
}

func (e *env) cmdWatch(args []string) error {
	if len(args) < 1 {
		return errors.New("usage: assettool watch <model.obj>...")
	}
	w, err := loader.NewWatcher(e.loader, loader.AssetConfigFrom(e.cfg.Import, ""), e.readConfig(),
		loader.WithForgetter(e.files))
	if err != nil {
		return err
	}
	defer w.Close()

	for _, p := range args {
		if err := w.Watch(p); err != nil {
			return err
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case r, ok := <-w.Results():
			if !ok {
				return nil
			}
			log := logger.Session(r.Session)
			if r.Err != nil {
				log.Error("import failed", zap.String("path", r.Path), zap.Error(r.Err))
				continue
			}
			log.Info("import ready",
				zap.String("path", r.Path),
				zap.Stringer("group", r.Group.Handle()),
				zap.Int("models", len(r.Group.Of(resources.KindModel))))
		}
	}
}
