// Package config loads the simulator configuration from a YAML file.
// Every field is optional; zero values fall back to the reference
// defaults, so an empty file (or no file at all) yields the standard
// device.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/sonoasy/ssdsim/internal/nand"
)

// GeometryConfig overrides the device layout. Zero fields keep defaults.
type GeometryConfig struct {
	PageSize      int `yaml:"page_size"`
	OOBSize       int `yaml:"oob_size"`
	PagesPerBlock int `yaml:"pages_per_block"`
	Blocks        int `yaml:"blocks"`
	LogicalPages  int `yaml:"logical_pages"`
}

// Config is the full simulator configuration.
type Config struct {
	Geometry GeometryConfig `yaml:"geometry"`

	// ImagePath is the device image file. Empty keeps the default.
	ImagePath string `yaml:"image_path"`

	// ResultPath is the legacy read mirror file.
	ResultPath string `yaml:"result_path"`

	// TracePath, when set, enables the SQLite trace export on shutdown.
	TracePath string `yaml:"trace_path"`

	// TraceCapacity bounds the in-memory trace ring.
	TraceCapacity int `yaml:"trace_capacity"`

	// Server settings (cmd/server only).
	HTTPAddr     string `yaml:"http_addr"`
	GRPCAddr     string `yaml:"grpc_addr"`
	AutosaveCron string `yaml:"autosave_cron"`
}

// DefaultImagePath matches the reference simulator's image file name.
const DefaultImagePath = "nand_flash.bin"

// Default returns the reference configuration.
func Default() Config {
	return Config{
		ImagePath:  DefaultImagePath,
		ResultPath: "result.txt",
		HTTPAddr:   ":8080",
		GRPCAddr:   ":9090",
	}
}

// Load reads path and merges it over Default. A missing file is not an
// error; it simply yields the defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("load config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("load config %s: %w", path, err)
	}
	if cfg.ImagePath == "" {
		cfg.ImagePath = DefaultImagePath
	}
	if err := cfg.NANDGeometry().Validate(); err != nil {
		return cfg, fmt.Errorf("load config %s: %w", path, err)
	}
	return cfg, nil
}

// NANDGeometry resolves the geometry overrides against the defaults.
func (c Config) NANDGeometry() nand.Geometry {
	g := nand.DefaultGeometry()
	if c.Geometry.PageSize > 0 {
		g.PageSize = c.Geometry.PageSize
	}
	if c.Geometry.OOBSize > 0 {
		g.OOBSize = c.Geometry.OOBSize
	}
	if c.Geometry.PagesPerBlock > 0 {
		g.PagesPerBlock = c.Geometry.PagesPerBlock
	}
	if c.Geometry.Blocks > 0 {
		g.Blocks = c.Geometry.Blocks
	}
	if c.Geometry.LogicalPages > 0 {
		g.LogicalPages = c.Geometry.LogicalPages
	}
	return g
}
