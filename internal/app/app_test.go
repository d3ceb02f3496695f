package app

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vk/zgoubigo/internal/testutil"
)

const testDeck = `
beamline "LINE" {
  element "OBJET" "BUNCH" {
    boro = 2149.0
    imax = 10
  }

  element "ESL" "D1" {
    xl = quantity(50, "cm")
  }
}

sweep {
  group {
    vary "D1" "XL" {
      values = [quantity(10, "cm"), quantity(20, "cm")]
    }
  }
}
`

func TestNewConfigRequiresDeckPath(t *testing.T) {
	_, err := NewConfig(Config{})
	require.Error(t, err)

	cfg, err := NewConfig(Config{DeckPath: "line.hcl"})
	require.NoError(t, err)
	assert.Equal(t, "line.hcl", cfg.DeckPath)
}

func TestRunEndToEndWithFakeEngine(t *testing.T) {
	result := testutil.ResultBlock("OBJET", "BUNCH", " object data") +
		testutil.ResultBlock("ESL", "D1", " drift data")
	engine := testutil.WriteScript(t, testutil.EngineScript(result, map[string]string{
		"zgoubi.plt": "IT X\n1 0.1\n2 0.2\n",
	}))

	workDir := t.TempDir()
	deckPath := filepath.Join(workDir, "line.hcl")
	require.NoError(t, os.WriteFile(deckPath, []byte(testDeck), 0o644))

	configPath := filepath.Join(workDir, "zgoubigo.yaml")
	outputDir := filepath.Join(workDir, "out")
	configYAML := fmt.Sprintf("engine: %s\nmax_procs: 2\noutput_dir: %s\n", engine, outputDir)
	require.NoError(t, os.WriteFile(configPath, []byte(configYAML), 0o644))

	var out bytes.Buffer
	appCfg, err := NewConfig(Config{
		DeckPath:   deckPath,
		ConfigPath: configPath,
		LogFormat:  "text",
		LogLevel:   "error",
	})
	require.NoError(t, err)

	application, err := NewApp(&out, appCfg)
	require.NoError(t, err)
	require.NoError(t, application.Run(context.Background()))

	raw, err := os.ReadFile(filepath.Join(outputDir, "tracks.csv"))
	require.NoError(t, err)
	content := string(raw)
	assert.Contains(t, content, "IT,X,D1.XL")
	assert.Contains(t, content, "10cm")
	assert.Contains(t, content, "20cm")
}

func TestRunAllFailedReturnsError(t *testing.T) {
	engine := testutil.WriteScript(t, "exit 1")

	workDir := t.TempDir()
	deckPath := filepath.Join(workDir, "line.hcl")
	require.NoError(t, os.WriteFile(deckPath, []byte(testDeck), 0o644))

	configPath := filepath.Join(workDir, "zgoubigo.yaml")
	require.NoError(t, os.WriteFile(configPath,
		[]byte(fmt.Sprintf("engine: %s\noutput_dir: %s\n", engine, filepath.Join(workDir, "out"))), 0o644))

	var out bytes.Buffer
	appCfg, err := NewConfig(Config{
		DeckPath:   deckPath,
		ConfigPath: configPath,
		LogFormat:  "text",
		LogLevel:   "error",
	})
	require.NoError(t, err)

	application, err := NewApp(&out, appCfg)
	require.NoError(t, err)

	err = application.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed")
}

func TestCLIOverridesBeatConfigFile(t *testing.T) {
	workDir := t.TempDir()
	configPath := filepath.Join(workDir, "zgoubigo.yaml")
	require.NoError(t, os.WriteFile(configPath, []byte("engine: from-file\nmax_procs: 2\n"), 0o644))

	var out bytes.Buffer
	appCfg, err := NewConfig(Config{
		DeckPath:   "line.hcl",
		ConfigPath: configPath,
		Engine:     "from-flag",
		MaxProcs:   7,
		OutputDir:  "elsewhere",
	})
	require.NoError(t, err)

	application, err := NewApp(&out, appCfg)
	require.NoError(t, err)
	assert.Equal(t, "from-flag", application.runtime.Engine)
	assert.Equal(t, 7, application.runtime.MaxProcs)
	assert.Equal(t, "elsewhere", application.runtime.OutputDir)
}
