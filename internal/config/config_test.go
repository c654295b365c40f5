package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(t.TempDir())
	require.NoError(t, err)

	def := Default()
	assert.Equal(t, def.Results.Dir, cfg.Results.Dir)
	assert.Equal(t, def.Targets.FilterSource, cfg.Targets.FilterSource)
	assert.Equal(t, 3, cfg.Ledger.MaxAttempts)
	assert.Equal(t, 60, cfg.Rebuild.ConfigureTimeoutSec)
	assert.Equal(t, 300, cfg.Rebuild.BuildTimeoutSec)
}

func writeConfig(t *testing.T, root, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Join(root, ".remedy"), 0755))
	require.NoError(t, os.WriteFile(Path(root), []byte(content), 0644))
}

func TestLoadLayersOverDefaults(t *testing.T) {
	root := t.TempDir()
	writeConfig(t, root, `
ledger:
  max_attempts: 5
rebuild:
  build_dir: out
  configure_cmd: [cmake, --preset, release]
`)

	cfg, err := Load(root)
	require.NoError(t, err)
	assert.Equal(t, 5, cfg.Ledger.MaxAttempts)
	assert.Equal(t, "out", cfg.Rebuild.BuildDir)
	assert.Equal(t, []string{"cmake", "--preset", "release"}, cfg.Rebuild.ConfigureCmd)

	// Untouched sections keep their defaults.
	assert.Equal(t, Default().Targets.BuildFile, cfg.Targets.BuildFile)
	assert.Equal(t, Default().Results.Dir, cfg.Results.Dir)
}

func TestLoadMalformedFileIsError(t *testing.T) {
	root := t.TempDir()
	writeConfig(t, root, "ledger: [not: a: mapping")

	_, err := Load(root)
	require.Error(t, err)
}

func TestLoadClampsNonPositiveValues(t *testing.T) {
	root := t.TempDir()
	writeConfig(t, root, `
ledger:
  max_attempts: -1
rebuild:
  configure_timeout_sec: 0
  build_timeout_sec: -5
`)

	cfg, err := Load(root)
	require.NoError(t, err)
	assert.Equal(t, 3, cfg.Ledger.MaxAttempts)
	assert.Equal(t, 60, cfg.Rebuild.ConfigureTimeoutSec)
	assert.Equal(t, 300, cfg.Rebuild.BuildTimeoutSec)
}

func TestPath(t *testing.T) {
	assert.Equal(t, filepath.Join("/proj", ".remedy", "config.yaml"), Path("/proj"))
}
