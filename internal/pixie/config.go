// Package pixie resolves project configuration and dataset paths: where the
// per-dataset store files and their schema definitions live.
package pixie

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/tailscale/hujson"
)

// Config holds all configuration options.
type Config struct {
	// From config files (serialized)
	DataDir string `json:"data_dir"`
	Locale  string `json:"locale,omitempty"`

	// Resolved paths (computed, not serialized)
	EffectiveCwd string `json:"-"`
	DataDirAbs   string `json:"-"`

	// Sources tracks which config files were loaded (for diagnostics)
	Sources ConfigSources `json:"-"`
}

// ConfigSources tracks which config files were loaded.
type ConfigSources struct {
	Global  string
	Project string
}

// ConfigFileName is the project config file, looked up in the working
// directory.
const ConfigFileName = ".pixie.json"

// DefaultConfig returns the default configuration.
func DefaultConfig() Config {
	return Config{
		DataDir: "data",
		Locale:  "en",
	}
}

// LoadConfigInput holds the inputs for LoadConfig.
type LoadConfigInput struct {
	WorkDirOverride string            // -C/--cwd flag value; empty means os.Getwd()
	ConfigPath      string            // -c/--config flag value
	DataDirOverride string            // --data-dir flag value; empty means no override
	Env             map[string]string // environment variables
}

// LoadConfig loads configuration with the following precedence (highest wins):
// defaults, then the global user config, then the project config (or the
// explicit -c file), then CLI overrides. All paths in the returned Config are
// resolved to absolute paths.
func LoadConfig(input LoadConfigInput) (Config, error) {
	workDir := input.WorkDirOverride
	if workDir == "" {
		var err error

		workDir, err = os.Getwd()
		if err != nil {
			return Config{}, fmt.Errorf("cannot get working directory: %w", err)
		}
	}

	cfg := DefaultConfig()

	globalPath := globalConfigPath(input.Env)
	if globalPath != "" {
		loaded, found, err := loadConfigFile(globalPath)
		if err != nil {
			return Config{}, err
		}

		if found {
			cfg.Sources.Global = globalPath
			cfg = merge(cfg, loaded)
		}
	}

	projectPath := input.ConfigPath
	explicit := projectPath != ""

	if !explicit {
		projectPath = filepath.Join(workDir, ConfigFileName)
	}

	loaded, found, err := loadConfigFile(projectPath)
	if err != nil {
		return Config{}, err
	}

	if explicit && !found {
		return Config{}, fmt.Errorf("config file not found: %s", projectPath)
	}

	if found {
		cfg.Sources.Project = projectPath
		cfg = merge(cfg, loaded)
	}

	if input.DataDirOverride != "" {
		cfg.DataDir = input.DataDirOverride
	}

	if strings.TrimSpace(cfg.DataDir) == "" {
		return Config{}, errors.New("config: data_dir must not be empty")
	}

	cfg.EffectiveCwd = workDir

	if filepath.IsAbs(cfg.DataDir) {
		cfg.DataDirAbs = cfg.DataDir
	} else {
		cfg.DataDirAbs = filepath.Join(workDir, cfg.DataDir)
	}

	return cfg, nil
}

// StorePath returns the backing file of one dataset.
func (c Config) StorePath(code string) string {
	return filepath.Join(c.DataDirAbs, code+".pixie.db")
}

// SchemaPath returns the schema definition file of one dataset.
func (c Config) SchemaPath(code string) string {
	return filepath.Join(c.DataDirAbs, code+".jsonc")
}

// FormatConfig renders the effective config as indented JSON.
func FormatConfig(cfg Config) (string, error) {
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return "", fmt.Errorf("format config: %w", err)
	}

	return string(data), nil
}

// globalConfigPath returns the global config file location:
// $XDG_CONFIG_HOME/pixie/config.json, falling back to
// ~/.config/pixie/config.json. Empty when neither can be determined.
func globalConfigPath(env map[string]string) string {
	if xdg := env["XDG_CONFIG_HOME"]; xdg != "" {
		return filepath.Join(xdg, "pixie", "config.json")
	}

	if home := env["HOME"]; home != "" {
		return filepath.Join(home, ".config", "pixie", "config.json")
	}

	return ""
}

// loadConfigFile reads one config file (JSON with comments allowed). A
// missing file is not an error; the bool result reports whether it existed.
func loadConfigFile(path string) (Config, bool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Config{}, false, nil
		}

		return Config{}, false, fmt.Errorf("read config %s: %w", path, err)
	}

	standardized, err := hujson.Standardize(data)
	if err != nil {
		return Config{}, false, fmt.Errorf("parse config %s: %w", path, err)
	}

	var cfg Config

	err = json.Unmarshal(standardized, &cfg)
	if err != nil {
		return Config{}, false, fmt.Errorf("parse config %s: %w", path, err)
	}

	return cfg, true, nil
}

// merge overlays the non-zero fields of overlay onto base.
func merge(base, overlay Config) Config {
	if overlay.DataDir != "" {
		base.DataDir = overlay.DataDir
	}

	if overlay.Locale != "" {
		base.Locale = overlay.Locale
	}

	return base
}
