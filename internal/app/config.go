package app

import "errors"

// Config holds everything an App instance needs to run.
type Config struct {
	DeckPath   string // beamline deck (.hcl)
	ConfigPath string // runtime YAML configuration

	LogFormat string
	LogLevel  string

	// Overrides applied on top of the runtime configuration. Zero values
	// keep the configured ones.
	Engine    string
	MaxProcs  int
	OutputDir string
}

func NewConfig(cfg Config) (*Config, error) {
	if cfg.DeckPath == "" {
		return nil, errors.New("DeckPath is a required configuration field and cannot be empty")
	}
	return &cfg, nil
}
