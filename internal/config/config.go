/*
Copyright (C) 2024-2026  Carl-Philip Hänsch

    This program is free software: you can redistribute it and/or modify
    it under the terms of the GNU General Public License as published by
    the Free Software Foundation, either version 3 of the License, or
    (at your option) any later version.

    This program is distributed in the hope that it will be useful,
    but WITHOUT ANY WARRANTY; without even the implied warranty of
    MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
    GNU General Public License for more details.

    You should have received a copy of the GNU General Public License
    along with this program.  If not, see <https://www.gnu.org/licenses/>.
*/

// Package config loads the YAML run configuration shared by the head and
// scanner binaries.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// StorageConfig selects and parameterizes the transport.Engine a run uses.
type StorageConfig struct {
	Backend string `yaml:"backend"` // "local" or "s3"
	Path    string `yaml:"path"`    // local backend root directory

	S3Bucket         string `yaml:"s3_bucket"`
	S3Prefix         string `yaml:"s3_prefix"`
	S3Region         string `yaml:"s3_region"`
	S3Endpoint       string `yaml:"s3_endpoint"`
	S3AccessKeyID    string `yaml:"s3_access_key_id"`
	S3SecretAccess   string `yaml:"s3_secret_access_key"`
	S3ForcePathStyle bool   `yaml:"s3_force_path_style"`
}

// Config is the full run configuration for both head and scanner roles.
type Config struct {
	Role        string        `yaml:"role"` // "head" or "scanner"
	HeadAddress string        `yaml:"head_address"`
	ListenAddr  string        `yaml:"listen_addr"`
	Storage     StorageConfig `yaml:"storage"`

	TrainingData string `yaml:"training_data"`
	NumFeatures  int    `yaml:"num_features"`
	MaxBinSize   int    `yaml:"max_bin_size"`

	BlockCapacity  int     `yaml:"block_capacity"`
	SampleCapacity int     `yaml:"sample_capacity"`
	InitialGamma   float32 `yaml:"initial_gamma"`
	GammaTheta     float32 `yaml:"gamma_theta"`
	GammaWindow    int     `yaml:"gamma_window"`
	MaxDepth       int     `yaml:"max_depth"`
	MaxNumTrees    int     `yaml:"max_num_trees"`
	MinEffSize     float64 `yaml:"min_eff_size"`
	NumWorkers     int     `yaml:"num_workers"`

	StatusFile string `yaml:"status_file"`
}

// defaults, applied to any field a config file omits.
var defaults = Config{
	ListenAddr:     ":7070",
	MaxBinSize:     256,
	BlockCapacity:  1024,
	SampleCapacity: 100000,
	InitialGamma:   0.1,
	GammaTheta:     0.1,
	GammaWindow:    200,
	MaxDepth:       4,
	MinEffSize:     100.0,
	StatusFile:     "status.txt",
}

// Load reads and parses a YAML config file at path, filling in defaults for
// any field the file omits.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("config: read %s: %w", path, err)
	}
	cfg := defaults
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("config: parse %s: %w", path, err)
	}
	if cfg.Role != "head" && cfg.Role != "scanner" {
		return Config{}, fmt.Errorf("config: role must be \"head\" or \"scanner\", got %q", cfg.Role)
	}
	if cfg.Role == "scanner" && cfg.HeadAddress == "" {
		return Config{}, fmt.Errorf("config: scanner role requires head_address")
	}
	return cfg, nil
}
