// Package config handles assetforge configuration loading and management.
package config

import (
	"time"

	"golang.org/x/exp/constraints"
)

// MaxLimit is the upper bound of every loader size limit (2^29).
const MaxLimit = 1 << 29

// Config holds all settings.
type Config struct {
	Loader  LoaderConfig  `yaml:"loader" toml:"loader"`
	Import  ImportConfig  `yaml:"import" toml:"import"`
	Output  OutputConfig  `yaml:"output" toml:"output"`
	Data    DataConfig    `yaml:"data" toml:"data"`
	Logging LoggingConfig `yaml:"logging" toml:"logging"`
}

// LoaderConfig holds the bounded buffer limits and the HDR preprocessor
// settings of a loader.
type LoaderConfig struct {
	MaxShaderBufferSizeBytes  int           `yaml:"max_shader_buffer_bytes" toml:"max_shader_buffer_bytes"`
	MaxFilePathLength         int           `yaml:"max_file_path_length" toml:"max_file_path_length"`
	MaxVertexIndexBufferBytes int           `yaml:"max_vertex_index_buffer_bytes" toml:"max_vertex_index_buffer_bytes"`
	MaxEmbeddedTextureBytes   int           `yaml:"max_embedded_texture_bytes" toml:"max_embedded_texture_bytes"`
	MaxKtxBytes               int           `yaml:"max_ktx_bytes" toml:"max_ktx_bytes"`
	HdrTimeout                time.Duration `yaml:"hdr_timeout" toml:"hdr_timeout"`
	PreprocessorPath          string        `yaml:"preprocessor_path" toml:"preprocessor_path"` // empty: next to the executable
}

// ImportConfig holds the default per-asset import options.
type ImportConfig struct {
	FixCommonErrors     bool `yaml:"fix_common_errors" toml:"fix_common_errors"`
	Optimize            bool `yaml:"optimize" toml:"optimize"`
	CorrectFlipped      bool `yaml:"correct_flipped_orientation" toml:"correct_flipped_orientation"`
	SkipUnusedMaterials bool `yaml:"skip_unused_materials" toml:"skip_unused_materials"`
	GenerateMipMaps     bool `yaml:"generate_mip_maps" toml:"generate_mip_maps"`
}

// OutputConfig controls where the CLI writes exported textures.
type OutputConfig struct {
	Format    string `yaml:"format" toml:"format"` // webp or png
	Directory string `yaml:"directory" toml:"directory"`
}

// DataConfig holds texture search directories.
type DataConfig struct {
	SearchRoots []string `yaml:"search_roots" toml:"search_roots"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level   string `yaml:"level" toml:"level"`
	LogFile string `yaml:"log_file" toml:"log_file"`
	JSON    bool   `yaml:"json" toml:"json"`
}

// Default returns a Config with sensible default values.
func Default() *Config {
	return &Config{
		Loader: LoaderConfig{
			MaxShaderBufferSizeBytes:  1 << 20,
			MaxFilePathLength:         2048,
			MaxVertexIndexBufferBytes: 1 << 24,
			MaxEmbeddedTextureBytes:   4096 * 4096 * 4,
			MaxKtxBytes:               1 << 26,
			HdrTimeout:                10 * time.Second,
		},
		Import: ImportConfig{
			FixCommonErrors:     true,
			Optimize:            true,
			CorrectFlipped:      true,
			SkipUnusedMaterials: true,
			GenerateMipMaps:     true,
		},
		Output: OutputConfig{
			Format:    "webp",
			Directory: "out",
		},
		Logging: LoggingConfig{
			Level:   "info",
			LogFile: "",
		},
	}
}

// Clamp forces every size limit into (0, MaxLimit] and returns the
// receiver. A non-positive timeout falls back to the default.
func (c *LoaderConfig) Clamp() *LoaderConfig {
	c.MaxShaderBufferSizeBytes = clamp(c.MaxShaderBufferSizeBytes, 1, MaxLimit)
	c.MaxFilePathLength = clamp(c.MaxFilePathLength, 1, MaxLimit)
	c.MaxVertexIndexBufferBytes = clamp(c.MaxVertexIndexBufferBytes, 1, MaxLimit)
	c.MaxEmbeddedTextureBytes = clamp(c.MaxEmbeddedTextureBytes, 1, MaxLimit)
	c.MaxKtxBytes = clamp(c.MaxKtxBytes, 1, MaxLimit)
	if c.HdrTimeout <= 0 {
		c.HdrTimeout = Default().Loader.HdrTimeout
	}
	return c
}

func clamp[T constraints.Integer](v, lo, hi T) T {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
