package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Config is the runtime configuration loaded from glox.yaml. Every field is
// optional; zero values fall back to the defaults below.
type Config struct {
	Trace TraceConfig `yaml:"trace,omitempty"`
	GC    GCConfig    `yaml:"gc,omitempty"`
}

// TraceConfig controls diagnostic dumps on stderr.
type TraceConfig struct {
	// Execution prints each instruction and the stack contents as the VM runs.
	Execution bool `yaml:"execution,omitempty"`
	// Compile disassembles every chunk after compilation.
	Compile bool `yaml:"compile,omitempty"`
}

// GCConfig tunes the collector.
type GCConfig struct {
	// Stress forces a full collection on every allocation.
	Stress bool `yaml:"stress,omitempty"`
	// Log prints a line per collection cycle with reclaimed byte counts.
	Log bool `yaml:"log,omitempty"`
	// InitialThreshold is the live byte count that triggers the first
	// collection. Zero means the default.
	InitialThreshold int `yaml:"initial_threshold,omitempty"`
	// GrowthFactor multiplies the threshold after each collection.
	// Zero means the default.
	GrowthFactor int `yaml:"growth_factor,omitempty"`
}

const (
	DefaultGCThreshold    = 1024 * 1024
	DefaultGCGrowthFactor = 2
)

// Default returns the configuration used when no glox.yaml is present.
func Default() *Config {
	return &Config{
		GC: GCConfig{
			InitialThreshold: DefaultGCThreshold,
			GrowthFactor:     DefaultGCGrowthFactor,
		},
	}
}

// Load reads glox.yaml from dir. A missing file is not an error and yields
// the defaults; a malformed file is reported to the caller.
func Load(dir string) (*Config, error) {
	path := filepath.Join(dir, ConfigFileName)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Default(), nil
		}
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	cfg.normalize()
	return cfg, nil
}

func (c *Config) normalize() {
	if c.GC.InitialThreshold <= 0 {
		c.GC.InitialThreshold = DefaultGCThreshold
	}
	if c.GC.GrowthFactor < 2 {
		c.GC.GrowthFactor = DefaultGCGrowthFactor
	}
}
