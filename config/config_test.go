package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfigValidatesOnceRepoPathIsSet(t *testing.T) {
	cfg := DefaultConfig()
	assert.Error(t, cfg.Validate(), "repo.path is required")
	cfg.Repo.Path = "/tmp/project"
	assert.NoError(t, cfg.Validate())
	assert.Equal(t, 4, cfg.Queen.MaxConcurrentWorkers)
}

func TestConfigValidateRejectsNegativeWorkerCount(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Repo.Path = "/tmp/project"
	cfg.Queen.MaxConcurrentWorkers = -1
	assert.Error(t, cfg.Validate())
}

func TestLoadFromFile(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	content := `
repo:
  path: "/test/path"
queen:
  maxConcurrentWorkers: 8
  defaultWorkerModel: "fast"
gate:
  requireCleanBaseline: true
`
	require.NoError(t, os.WriteFile(configPath, []byte(content), 0o644))

	cfg, err := LoadFromFile(configPath)
	require.NoError(t, err)
	assert.Equal(t, "/test/path", cfg.Repo.Path)
	assert.Equal(t, 8, cfg.Queen.MaxConcurrentWorkers)
	assert.Equal(t, "fast", cfg.Queen.DefaultWorkerModel)
	assert.True(t, cfg.Gate.RequireCleanBaseline)
	// unset fields keep their default value
	assert.Equal(t, DefaultConfig().Queen.WorkerTimeoutMs, cfg.Queen.WorkerTimeoutMs)
}

func TestConfigMerge(t *testing.T) {
	base := DefaultConfig()
	base.Repo.Path = "/base/path"

	override := &Config{
		Repo:  RepoConfig{Path: "/override/path"},
		Queen: QueenConfig{DefaultWorkerModel: "override-model"},
	}
	base.Merge(override)

	assert.Equal(t, "/override/path", base.Repo.Path)
	assert.Equal(t, "override-model", base.Queen.DefaultWorkerModel)
	// fields the override left zero keep the base value
	assert.Equal(t, DefaultConfig().Queen.MaxConcurrentWorkers, base.Queen.MaxConcurrentWorkers)
}

func TestConfigSaveToFileRoundTrips(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "subdir", "config.yaml")

	cfg := DefaultConfig()
	cfg.Repo.Path = "/saved/path"
	cfg.Queen.DefaultWorkerModel = "saved-model"

	require.NoError(t, cfg.SaveToFile(configPath))
	_, err := os.Stat(configPath)
	require.NoError(t, err)

	loaded, err := LoadFromFile(configPath)
	require.NoError(t, err)
	assert.Equal(t, "/saved/path", loaded.Repo.Path)
	assert.Equal(t, "saved-model", loaded.Queen.DefaultWorkerModel)
}
