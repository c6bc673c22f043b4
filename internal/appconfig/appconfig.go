// Package appconfig is the optional, app-scoped preferences file: the
// last-opened project path, a CPU-profile default for new projects, and
// plain-text presenter color overrides. It is deliberately separate from
// the project-scoped ProjectSettings row the store owns — this file is
// read before any project is open. Grounded on the teacher's
// internal/config.Config/Load/Path, generalized from per-run flag
// defaults to dupvault's own preference set.
package appconfig

import (
	"errors"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"

	"dupvault/internal/model"
)

// Config is the optional dupvault preferences file.
type Config struct {
	Defaults DefaultsConfig `toml:"defaults"`
	Theme    ThemeConfig    `toml:"theme"`
}

// DefaultsConfig holds persistent defaults applied to newly created
// projects and to CLI flags that aren't explicitly set. LastProjectPath is
// kept in the file; no command reads or sets it.
type DefaultsConfig struct {
	LastProjectPath string            `toml:"last_project_path"`
	CPUProfile      *model.CPUProfile `toml:"cpu_profile"`
	HashLevel       *model.HashAlgorithm `toml:"hash_level"`
	VerifyByDefault *bool             `toml:"verify_by_default"`
}

// ThemeConfig holds optional color overrides for the CLI's plain-text and
// HUD presenters.
type ThemeConfig struct {
	Green  *string `toml:"green"`
	Blue   *string `toml:"blue"`
	Yellow *string `toml:"yellow"`
	Red    *string `toml:"red"`
	Dim    *string `toml:"dim"`
}

// Path returns the resolved path to the preferences file.
func Path() string {
	dir := os.Getenv("XDG_CONFIG_HOME")
	if dir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return ""
		}
		dir = filepath.Join(home, ".config")
	}
	return filepath.Join(dir, "dupvault", "config.toml")
}

// Load reads the preferences file from the XDG path. Returns a zero
// Config (no error) if the file does not exist — the file is always
// optional.
func Load() (Config, error) {
	path := Path()
	if path == "" {
		return Config{}, nil
	}

	var cfg Config
	_, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Config{}, nil
		}
		return Config{}, err
	}
	return cfg, nil
}

// Save writes cfg to the XDG preferences path, creating parent
// directories as needed.
func Save(cfg Config) error {
	path := Path()
	if path == "" {
		return errors.New("appconfig: cannot resolve preferences path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return toml.NewEncoder(f).Encode(cfg)
}
