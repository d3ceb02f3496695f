// Package app wires the pieces together: logger, runtime configuration,
// command registry, deck loading and the engine batch lifecycle.
package app

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/vk/zgoubigo/internal/command"
	"github.com/vk/zgoubigo/internal/config"
)

// App encapsulates the application's dependencies, configuration, and
// lifecycle.
type App struct {
	outW     io.Writer
	logger   *slog.Logger
	appCfg   *Config
	runtime  config.Config
	registry *command.Registry
}

// NewApp is the constructor for the main application. It returns a fully
// initialized App instance, including its own isolated logger and the
// builtin command registry, with CLI overrides applied on top of the
// runtime configuration.
func NewApp(outW io.Writer, appCfg *Config) (*App, error) {
	logger := newLogger(appCfg.LogLevel, appCfg.LogFormat, outW)
	logger.Debug("Logger configured successfully.")

	runtime, err := config.Load(appCfg.ConfigPath)
	if err != nil {
		return nil, fmt.Errorf("app: %w", err)
	}
	if appCfg.Engine != "" {
		runtime.Engine = appCfg.Engine
	}
	if appCfg.MaxProcs > 0 {
		runtime.MaxProcs = appCfg.MaxProcs
	}
	if appCfg.OutputDir != "" {
		runtime.OutputDir = appCfg.OutputDir
	}
	logger.Debug("Runtime configuration loaded.",
		"engine", runtime.Engine, "maxProcs", runtime.MaxProcs, "outputDir", runtime.OutputDir)

	return &App{
		outW:     outW,
		logger:   logger,
		appCfg:   appCfg,
		runtime:  runtime,
		registry: command.Builtins(),
	}, nil
}

// Registry returns the application's command registry. This is primarily
// for testing.
func (a *App) Registry() *command.Registry {
	return a.registry
}
