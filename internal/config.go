package internal

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/goccy/go-yaml"
)

// FileConfig is the content of a .cfgmatch.yaml file.
type FileConfig struct {
	// Tags are added to every build configuration.
	Tags []string `yaml:"tags"`
	// Platforms is the default GOOS/GOARCH matrix of `cfgmatch check`.
	Platforms []string `yaml:"platforms"`
	// Exclude holds globs of paths to skip, relative to the processed dir.
	Exclude []string `yaml:"exclude"`
	Log     struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"log"`
}

// LoadFileConfig parses path. Unknown fields are rejected.
func LoadFileConfig(path string) (*FileConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	cfg := &FileConfig{}
	if err := yaml.UnmarshalWithOptions(data, cfg, yaml.Strict()); err != nil {
		return nil, fmt.Errorf("parse %s: %s", path, yaml.FormatError(err, false, true))
	}
	for _, p := range cfg.Platforms {
		if _, _, err := ParsePlatform(p); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	}
	for _, pattern := range cfg.Exclude {
		if _, err := filepath.Match(pattern, ""); err != nil {
			return nil, fmt.Errorf("parse %s: exclude %q: %w", path, pattern, err)
		}
	}
	return cfg, nil
}

// FindFileConfig looks for ConfigFileName in dir and its parents, stopping
// at the module root. It returns "" when none exists.
func FindFileConfig(dir string) string {
	dir, err := filepath.Abs(dir)
	if err != nil {
		return ""
	}
	for {
		candidate := filepath.Join(dir, ConfigFileName)
		if _, err := os.Stat(candidate); err == nil {
			return candidate
		}
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return ""
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return ""
		}
		dir = parent
	}
}

// LoadFileConfigFrom loads an explicit path, or the one found from dir.
// A missing config yields an empty one.
func LoadFileConfigFrom(explicit, dir string) (*FileConfig, error) {
	path := explicit
	if path == "" {
		path = FindFileConfig(dir)
	}
	if path == "" {
		return &FileConfig{}, nil
	}
	cfg, err := LoadFileConfig(path)
	if err != nil && explicit == "" && errors.Is(err, os.ErrNotExist) {
		return &FileConfig{}, nil
	}
	return cfg, err
}
