package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(t.TempDir())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.GC.InitialThreshold != DefaultGCThreshold {
		t.Errorf("threshold = %d, want %d", cfg.GC.InitialThreshold, DefaultGCThreshold)
	}
	if cfg.GC.GrowthFactor != DefaultGCGrowthFactor {
		t.Errorf("growth factor = %d, want %d", cfg.GC.GrowthFactor, DefaultGCGrowthFactor)
	}
	if cfg.Trace.Execution || cfg.Trace.Compile {
		t.Error("trace flags should default to off")
	}
}

func TestLoadParsesYAML(t *testing.T) {
	dir := t.TempDir()
	content := `
trace:
  execution: true
gc:
  stress: true
  initial_threshold: 4096
  growth_factor: 4
`
	if err := os.WriteFile(filepath.Join(dir, ConfigFileName), []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(dir)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !cfg.Trace.Execution {
		t.Error("trace.execution not set")
	}
	if cfg.Trace.Compile {
		t.Error("trace.compile should be off")
	}
	if !cfg.GC.Stress {
		t.Error("gc.stress not set")
	}
	if cfg.GC.InitialThreshold != 4096 {
		t.Errorf("threshold = %d, want 4096", cfg.GC.InitialThreshold)
	}
	if cfg.GC.GrowthFactor != 4 {
		t.Errorf("growth factor = %d, want 4", cfg.GC.GrowthFactor)
	}
}

func TestLoadRejectsMalformedYAML(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, ConfigFileName), []byte("gc: [not a map"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(dir); err == nil {
		t.Fatal("expected error for malformed yaml")
	}
}

func TestNormalizeClampsGrowthFactor(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, ConfigFileName), []byte("gc:\n  growth_factor: 1\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(dir)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.GC.GrowthFactor != DefaultGCGrowthFactor {
		t.Errorf("growth factor = %d, want clamped to %d", cfg.GC.GrowthFactor, DefaultGCGrowthFactor)
	}
}
