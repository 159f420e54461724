package config

import (
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

const (
	// ProjectConfigFile is the name of the project-level config file.
	ProjectConfigFile = "taskqueen.yaml"
	// UserConfigDir is the directory for user-level config.
	UserConfigDir = ".config/taskqueen"
	// UserConfigFile is the name of the user-level config file.
	UserConfigFile = "config.yaml"
)

// Loader handles configuration loading with layered precedence.
type Loader struct {
	logger *slog.Logger
}

// NewLoader creates a configuration loader.
func NewLoader(logger *slog.Logger) *Loader {
	if logger == nil {
		logger = slog.Default()
	}
	return &Loader{logger: logger}
}

// Load loads configuration with layered precedence:
//  1. Default config
//  2. User config (~/.config/taskqueen/config.yaml)
//  3. Project config (taskqueen.yaml in the current or a parent directory)
//  4. Auto-detected git root, if repo.path is still unset
func (l *Loader) Load() (*Config, error) {
	cfg := DefaultConfig()
	l.mergeLayer(cfg, "user", l.userConfigPath())
	l.mergeLayer(cfg, "project", l.findProjectConfig())

	if cfg.Repo.Path == "" {
		if gitRoot := l.detectGitRoot(); gitRoot != "" {
			cfg.Repo.Path = gitRoot
			l.logger.Debug("auto-detected git root", "path", gitRoot)
		} else if cwd, err := os.Getwd(); err == nil {
			cfg.Repo.Path = cwd
			l.logger.Debug("using current directory as repo root", "path", cwd)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// mergeLayer loads the config file at path (a no-op if path is empty, a
// layer that could not be located) and merges it into cfg, logging at
// debug/warn rather than failing the whole load on a single bad layer.
func (l *Loader) mergeLayer(cfg *Config, layer, path string) {
	if path == "" {
		return
	}
	layerCfg, err := LoadFromFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			l.logger.Warn("failed to load "+layer+" config", "path", path, "error", err)
		}
		return
	}
	l.logger.Debug("loaded "+layer+" config", "path", path)
	cfg.Merge(layerCfg)
}

// EnsureUserConfig writes the user config file with defaults if absent.
func (l *Loader) EnsureUserConfig() error {
	path := l.userConfigPath()
	if path == "" {
		return nil
	}
	if _, err := os.Stat(path); err == nil {
		return nil
	}
	if err := DefaultConfig().SaveToFile(path); err != nil {
		return err
	}
	l.logger.Info("created default user config", "path", path)
	return nil
}

func (l *Loader) userConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, UserConfigDir, UserConfigFile)
}

// findProjectConfig searches for taskqueen.yaml in the current and parent
// directories, stopping at the filesystem root.
func (l *Loader) findProjectConfig() string {
	cwd, err := os.Getwd()
	if err != nil {
		return ""
	}
	dir := cwd
	for {
		candidate := filepath.Join(dir, ProjectConfigFile)
		if _, err := os.Stat(candidate); err == nil {
			return candidate
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return ""
		}
		dir = parent
	}
}

func (l *Loader) detectGitRoot() string {
	out, err := exec.Command("git", "rev-parse", "--show-toplevel").Output()
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(out))
}
