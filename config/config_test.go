package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultConfig(t *testing.T) {
	cfg := getDefaultConfig()

	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config must validate: %v", err)
	}

	if cfg.Server.Port != ":8080" {
		t.Errorf("server port = %q", cfg.Server.Port)
	}
	if cfg.Detect.ROIScale != 1.10 || cfg.Detect.GridX != 2 || cfg.Detect.GridY != 2 {
		t.Errorf("roi/grid defaults = %v / %dx%d", cfg.Detect.ROIScale, cfg.Detect.GridX, cfg.Detect.GridY)
	}
	if cfg.Detect.TileOverlap != 0.30 || cfg.Detect.HeadFraction != 0.45 {
		t.Errorf("overlap/head defaults = %v / %v", cfg.Detect.TileOverlap, cfg.Detect.HeadFraction)
	}
	if cfg.Detect.SizeMinRel != 0.10 || cfg.Detect.SizeMaxRel != 0.55 {
		t.Errorf("size band defaults = %v / %v", cfg.Detect.SizeMinRel, cfg.Detect.SizeMaxRel)
	}
	if cfg.Detect.MaxAreaFraction != 0.30 {
		t.Errorf("max_area_fraction default = %v", cfg.Detect.MaxAreaFraction)
	}
	if cfg.Redact.FaceBlurStrength != 25 || cfg.Redact.PlateBlurStrength != 20 {
		t.Errorf("blur defaults = %d / %d", cfg.Redact.FaceBlurStrength, cfg.Redact.PlateBlurStrength)
	}
	if !cfg.Detect.FlipAugment {
		t.Error("flip augmentation should default on")
	}
}

func TestValidateRejections(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero roi scale", func(c *Config) { c.Detect.ROIScale = 0 }},
		{"negative roi scale", func(c *Config) { c.Detect.ROIScale = -1 }},
		{"zero grid", func(c *Config) { c.Detect.GridX = 0 }},
		{"overlap too large", func(c *Config) { c.Detect.TileOverlap = 0.5 }},
		{"negative overlap", func(c *Config) { c.Detect.TileOverlap = -0.1 }},
		{"tiny face input", func(c *Config) { c.Detect.FaceInputSize = 16 }},
		{"zero head fraction", func(c *Config) { c.Detect.HeadFraction = 0 }},
		{"head fraction above one", func(c *Config) { c.Detect.HeadFraction = 1.5 }},
		{"inverted size band", func(c *Config) { c.Detect.SizeMinRel = 0.6; c.Detect.SizeMaxRel = 0.5 }},
		{"iou above one", func(c *Config) { c.Detect.FaceNMSIoU = 1.2 }},
		{"negative iou", func(c *Config) { c.Detect.PersonNMSIoU = -0.1 }},
		{"zero area fraction", func(c *Config) { c.Detect.MaxAreaFraction = 0 }},
		{"zero face blur", func(c *Config) { c.Redact.FaceBlurStrength = 0 }},
		{"zero workers", func(c *Config) { c.Batch.MaxWorkers = 0 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := getDefaultConfig()
			tt.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}

func TestValidateBoundaryValues(t *testing.T) {
	cfg := getDefaultConfig()
	cfg.Detect.TileOverlap = 0       // no overlap is legal
	cfg.Detect.HeadFraction = 1      // full-person band is legal
	cfg.Detect.MaxAreaFraction = 1   // whole-vehicle plates are legal
	cfg.Detect.FaceNMSIoU = 1

	if err := cfg.Validate(); err != nil {
		t.Errorf("boundary values must validate: %v", err)
	}
}

func TestLoadOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	yaml := `
server:
  port: ":9090"
detect:
  grid_x: 3
  tile_overlap: 0.25
redact:
  face_blur_strength: 31
`
	if err := os.WriteFile(path, []byte(yaml), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	if cfg.Server.Port != ":9090" {
		t.Errorf("port override = %q", cfg.Server.Port)
	}
	if cfg.Detect.GridX != 3 || cfg.Detect.TileOverlap != 0.25 {
		t.Errorf("detect overrides = %d / %v", cfg.Detect.GridX, cfg.Detect.TileOverlap)
	}
	if cfg.Redact.FaceBlurStrength != 31 {
		t.Errorf("blur override = %d", cfg.Redact.FaceBlurStrength)
	}
	// Untouched keys keep their defaults.
	if cfg.Detect.GridY != 2 || cfg.Detect.HeadFraction != 0.45 {
		t.Errorf("defaults lost under partial override: %d / %v", cfg.Detect.GridY, cfg.Detect.HeadFraction)
	}
}

func TestLoadRejectsInvalidFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte("detect:\n  roi_scale: -2\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	if _, err := Load(path); err == nil {
		t.Error("expected validation failure for negative roi_scale")
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Error("expected error for missing config file")
	}
}
