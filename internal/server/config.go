package server

import (
	"fmt"
	"os"
	"path/filepath"
)

const (
	DefaultAddr         = "localhost:7473"
	DefaultSettingsFile = "repolens.yaml"
)

// Config is the dev backend configuration.
type Config struct {
	// Addr is the listen address of the HTTP server.
	Addr string `json:"addr" yaml:"addr"`

	// RootPath is the repository to analyze.
	RootPath string `json:"root_path" yaml:"root_path"`

	// SettingsPath is where analysis settings are persisted. Defaults to
	// <root>/.repolens/repolens.yaml.
	SettingsPath string `json:"settings_path" yaml:"settings_path"`
}

func (c *Config) Validate() error {
	if c.Addr == "" {
		c.Addr = DefaultAddr
	}
	if c.RootPath == "" {
		return fmt.Errorf("root_path is required")
	}
	abs, err := filepath.Abs(c.RootPath)
	if err != nil {
		return fmt.Errorf("invalid root_path: %w", err)
	}
	c.RootPath = abs

	info, err := os.Stat(c.RootPath)
	if err != nil {
		return fmt.Errorf("root_path: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("root_path is not a directory: %s", c.RootPath)
	}

	if c.SettingsPath == "" {
		c.SettingsPath = filepath.Join(c.RootPath, ".repolens", DefaultSettingsFile)
	}
	return nil
}
