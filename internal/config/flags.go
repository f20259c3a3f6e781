package config

import "flag"

var (
	flagConfig        = flag.String("config", "", "Path to config file (.yaml or .toml)")
	flagDebug         = flag.Bool("debug", false, "Enable debug logging")
	flagOutput        = flag.String("out", "", "Output directory for exported textures")
	flagFormat        = flag.String("format", "", "Export format: webp or png")
	flagKeepMaterials = flag.Bool("keep-unused-materials", false, "Synthesize materials no mesh references")
	flagNoOptimize    = flag.Bool("no-optimize", false, "Disable import optimization")
	flagRoot          = flag.String("root", "", "Additional texture search directory")
	flagPreprocessor  = flag.String("cmgen", "", "Path to the HDR preprocessor executable")
)

// ParseFlags parses command-line flags. Call this early in main().
func ParseFlags() {
	flag.Parse()
}

// Args returns the non-flag command-line arguments.
func Args() []string {
	return flag.Args()
}

// ConfigPath returns the explicit config path if provided via --config flag.
func ConfigPath() string {
	return *flagConfig
}

// applyFlags applies CLI flag overrides to the config.
func applyFlags(cfg *Config) {
	if *flagDebug {
		cfg.Logging.Level = "debug"
	}
	if *flagOutput != "" {
		cfg.Output.Directory = *flagOutput
	}
	if *flagFormat != "" {
		cfg.Output.Format = *flagFormat
	}
	if *flagKeepMaterials {
		cfg.Import.SkipUnusedMaterials = false
	}
	if *flagNoOptimize {
		cfg.Import.Optimize = false
	}
	if *flagRoot != "" {
		cfg.Data.SearchRoots = append(cfg.Data.SearchRoots, *flagRoot)
	}
	if *flagPreprocessor != "" {
		cfg.Loader.PreprocessorPath = *flagPreprocessor
	}
}
