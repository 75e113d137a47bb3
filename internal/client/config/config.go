// Package config holds the dashboard client configuration.
package config

import (
	"os"
	"path/filepath"

	"github.com/repolens/repolens/internal/lenssdk"
)

var (
	home, _ = os.UserHomeDir()

	DefaultConfigDir   = filepath.Join(home, ".repolens")
	DefaultConfigPath  = filepath.Join(DefaultConfigDir, "config.json")
	DefaultLogFilePath = filepath.Join(DefaultConfigDir, "logs", "repolens.log")
)

// Config is the client-side configuration, loaded by viper from flags, the
// REPOLENS_* environment, and the JSON config file.
type Config struct {
	Path string `json:"-"`

	// Backend resolution, in fixed priority order: DeployURL (may be set
	// empty to disable), then APIURL, then the dev server host/port.
	DeployURL *string `json:"deploy_url,omitempty"`
	APIURL    string  `json:"api_url,omitempty"`
	DevHost   string  `json:"dev_host,omitempty"`
	DevPort   int     `json:"dev_port,omitempty"`

	// Route is the dashboard view opened on start.
	Route string `json:"route,omitempty"`
}

// SDKConfig translates the client config into the SDK's resolution input.
func (c *Config) SDKConfig() *lenssdk.Config {
	return &lenssdk.Config{
		DeployURL:  c.DeployURL,
		APIBaseURL: c.APIURL,
		DevHost:    c.DevHost,
		DevPort:    c.DevPort,
	}
}

func (c *Config) Validate() error {
	return c.SDKConfig().Validate()
}
