// Package config models the runtime configuration file: where the engine
// binary lives, how wide the batch may fan out, and where results go.
package config

import (
	"fmt"
	"os"
	"runtime"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultFilename is the config file looked for when no explicit path is
// given on the command line.
const DefaultFilename = "zgoubigo.yaml"

// Config models the YAML runtime configuration.
type Config struct {
	// Engine is the engine binary name or path. Empty means `zgoubi` from
	// PATH.
	Engine string `yaml:"engine,omitempty"`

	// MaxProcs bounds the number of concurrently running engine processes.
	// Zero or negative means one per CPU.
	MaxProcs int `yaml:"max_procs,omitempty"`

	// Timeout bounds the wall-clock time of one engine run, e.g. "10m".
	// Empty means no per-run timeout.
	Timeout string `yaml:"timeout,omitempty"`

	// EventsEndpoint is an optional socket.io URL run lifecycle events are
	// streamed to.
	EventsEndpoint string `yaml:"events_endpoint,omitempty"`

	// OutputDir is where concatenated result tables are written.
	OutputDir string `yaml:"output_dir,omitempty"`

	// KeepRunDirs skips the cleanup of per-run working directories.
	KeepRunDirs bool `yaml:"keep_run_dirs,omitempty"`
}

// Default returns the configuration used when no file is present.
func Default() Config {
	return Config{
		Engine:    "zgoubi",
		MaxProcs:  runtime.NumCPU(),
		OutputDir: "results",
	}
}

// Load reads a YAML config file and normalizes it. A missing file at the
// default path is not an error: the defaults apply.
func Load(path string) (Config, error) {
	cfg := Default()
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) && path == DefaultFilename {
			return cfg, nil
		}
		return cfg, fmt.Errorf("config: %w", err)
	}
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return cfg, fmt.Errorf("config: parse %s: %w", path, err)
	}
	cfg.Normalize()
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("config: %s: %w", path, err)
	}
	return cfg, nil
}

// Normalize fills empty fields with their defaults.
func (c *Config) Normalize() {
	if c.Engine == "" {
		c.Engine = "zgoubi"
	}
	if c.MaxProcs < 1 {
		c.MaxProcs = runtime.NumCPU()
	}
	if c.OutputDir == "" {
		c.OutputDir = "results"
	}
}

// Validate rejects values Normalize cannot repair.
func (c *Config) Validate() error {
	if c.Timeout != "" {
		if _, err := time.ParseDuration(c.Timeout); err != nil {
			return fmt.Errorf("timeout: %w", err)
		}
	}
	return nil
}

// RunTimeout returns the parsed per-run timeout, zero when unset. Validate
// must have accepted the config first.
func (c *Config) RunTimeout() time.Duration {
	if c.Timeout == "" {
		return 0
	}
	d, err := time.ParseDuration(c.Timeout)
	if err != nil {
		return 0
	}
	return d
}
