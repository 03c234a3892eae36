// Package config loads and watches the YAML configuration of the capture
// server. Missing files are not an error; every field has a default so the
// tool runs with zero setup.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/better-webhook/better-webhook/internal/util"
	"github.com/better-webhook/better-webhook/sdk/webhook/providers"
)

// DefaultMaxBodyBytes caps request bodies accepted by the capture server.
const DefaultMaxBodyBytes = 10 << 20

// Config is the application's configuration, loaded from a YAML file.
type Config struct {
	// Host is the listen address of the capture server.
	Host string `yaml:"host" json:"host"`

	// Port is the listen port. 0 picks an ephemeral port.
	Port int `yaml:"port" json:"port"`

	// CaptureDir is where intercepted webhooks are persisted.
	CaptureDir string `yaml:"capture-dir" json:"capture-dir"`

	// TemplateDir holds per-provider webhook templates.
	TemplateDir string `yaml:"template-dir" json:"template-dir"`

	// MaxBodyBytes caps accepted request bodies. <= 0 uses the default.
	MaxBodyBytes int64 `yaml:"max-body-bytes" json:"max-body-bytes"`

	// LoggingToFile switches log output from stdout to rotating files.
	LoggingToFile bool `yaml:"logging-to-file" json:"logging-to-file"`

	// LogDir overrides the log directory when LoggingToFile is set.
	LogDir string `yaml:"log-dir" json:"log-dir"`

	// Debug enables verbose logging.
	Debug bool `yaml:"debug" json:"debug"`

	// Providers configures custom signature verification schemes, keyed by
	// provider name.
	Providers map[string]providers.Config `yaml:"providers" json:"providers"`
}

// Default returns the configuration used when no file exists.
func Default() *Config {
	base := util.DataDir()
	return &Config{
		Host:         "127.0.0.1",
		Port:         3000,
		CaptureDir:   filepath.Join(base, "captures"),
		TemplateDir:  filepath.Join(base, "templates"),
		MaxBodyBytes: DefaultMaxBodyBytes,
		LogDir:       filepath.Join(base, "logs"),
	}
}

// Load reads the YAML file at path and applies defaults for unset fields.
// A missing file yields the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	cfg.applyDefaults()
	return cfg, nil
}

func (c *Config) applyDefaults() {
	d := Default()
	if c.Host == "" {
		c.Host = d.Host
	}
	if c.Port < 0 {
		c.Port = d.Port
	}
	if c.CaptureDir == "" {
		c.CaptureDir = d.CaptureDir
	} else {
		c.CaptureDir = util.ExpandPath(c.CaptureDir)
	}
	if c.TemplateDir == "" {
		c.TemplateDir = d.TemplateDir
	} else {
		c.TemplateDir = util.ExpandPath(c.TemplateDir)
	}
	if c.MaxBodyBytes <= 0 {
		c.MaxBodyBytes = d.MaxBodyBytes
	}
	if c.LogDir == "" {
		c.LogDir = d.LogDir
	} else {
		c.LogDir = util.ExpandPath(c.LogDir)
	}
}
