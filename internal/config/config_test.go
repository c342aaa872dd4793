package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeConfig(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfig(t, "role: head\n")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.MaxBinSize != defaults.MaxBinSize {
		t.Errorf("expected default MaxBinSize, got %d", cfg.MaxBinSize)
	}
	if cfg.GammaTheta != defaults.GammaTheta {
		t.Errorf("expected default GammaTheta, got %v", cfg.GammaTheta)
	}
}

func TestLoadOverridesDefaults(t *testing.T) {
	path := writeConfig(t, "role: head\nmax_bin_size: 32\n")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.MaxBinSize != 32 {
		t.Errorf("expected overridden MaxBinSize 32, got %d", cfg.MaxBinSize)
	}
}

func TestLoadRejectsBadRole(t *testing.T) {
	path := writeConfig(t, "role: bogus\n")
	if _, err := Load(path); err == nil {
		t.Errorf("expected error for invalid role")
	}
}

func TestLoadRequiresHeadAddressForScanner(t *testing.T) {
	path := writeConfig(t, "role: scanner\n")
	if _, err := Load(path); err == nil {
		t.Errorf("expected error for scanner role missing head_address")
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Errorf("expected error for missing config file")
	}
}
