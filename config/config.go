// Package config loads settings from a YAML file, with environment
// variables taking precedence over the file.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/afero"
	"github.com/xyproto/env/v2"
	"gitlab.com/stephen-fox/bredcrumb/patcher"
	"gitlab.com/stephen-fox/bredcrumb/token"
	"gitlab.com/stephen-fox/bredcrumb/yara"
	"gopkg.in/yaml.v3"
)

// Environment variables that override the configuration file.
const (
	EnvConfigPath = "BREDCRUMB_CONFIG"
	EnvDatabase   = "BREDCRUMB_DB"
	EnvPrefix     = "BREDCRUMB_PREFIX"
	EnvLength     = "BREDCRUMB_LENGTH"
	EnvStrategy   = "BREDCRUMB_STRATEGY"
)

const (
	appDirName     = "redteamstrings"
	configFileName = "config.yaml"
)

// Config holds user settings. Zero values mean "use the default".
type Config struct {
	// DatabasePath is the record store file. When empty, the
	// store's default path is used.
	DatabasePath string `yaml:"database_path"`

	Generate GenerateConfig `yaml:"generate"`
	Patch    PatchConfig    `yaml:"patch"`
	Yara     YaraConfig     `yaml:"yara"`
}

type GenerateConfig struct {
	Prefix string `yaml:"prefix"`
	Length int    `yaml:"length"`
}

type PatchConfig struct {
	Strategy patcher.Strategy `yaml:"strategy"`
}

type YaraConfig struct {
	Author string `yaml:"author"`
}

// Default returns the built-in settings.
func Default() *Config {
	return &Config{
		Generate: GenerateConfig{
			Prefix: token.DefaultPrefix,
			Length: token.DefaultLength,
		},
		Patch: PatchConfig{
			Strategy: patcher.StrategyCave,
		},
		Yara: YaraConfig{
			Author: yara.DefaultAuthor,
		},
	}
}

// DefaultPath returns the configuration file path in the user's
// configuration directory, such as ~/.config/redteamstrings/config.yaml.
func DefaultPath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("failed to find user config directory - %w", err)
	}

	return filepath.Join(dir, appDirName, configFileName), nil
}

// Path returns the configuration file to load: explicitPath if set,
// then $BREDCRUMB_CONFIG, then DefaultPath. Empty environment
// variables are treated as unset.
func Path(explicitPath string) (string, error) {
	if explicitPath != "" {
		return explicitPath, nil
	}

	if path := env.Str(EnvConfigPath); path != "" {
		return path, nil
	}

	return DefaultPath()
}

// Load reads the file at path, applies environment overrides and
// validates the result. A missing file results in the defaults.
func Load(fs afero.Fs, path string) (*Config, error) {
	cfg := Default()

	raw, err := afero.ReadFile(fs, path)
	switch {
	case err == nil:
		err = yaml.Unmarshal(raw, cfg)
		if err != nil {
			return nil, fmt.Errorf("failed to parse config file %q - %w", path, err)
		}
	case os.IsNotExist(err):
	default:
		return nil, fmt.Errorf("failed to read config file %q - %w", path, err)
	}

	err = cfg.applyEnv()
	if err != nil {
		return nil, err
	}

	err = cfg.Validate()
	if err != nil {
		return nil, fmt.Errorf("invalid configuration - %w", err)
	}

	return cfg, nil
}

func (o *Config) applyEnv() error {
	if path := env.Str(EnvDatabase); path != "" {
		o.DatabasePath = path
	}

	if prefix := env.Str(EnvPrefix); prefix != "" {
		o.Generate.Prefix = prefix
	}

	o.Generate.Length = env.Int(EnvLength, o.Generate.Length)

	if name := env.Str(EnvStrategy); name != "" {
		strategy, err := patcher.ParseStrategy(name)
		if err != nil {
			return fmt.Errorf("failed to parse %s - %w", EnvStrategy, err)
		}

		o.Patch.Strategy = strategy
	}

	return nil
}

// Validate returns an error for settings that cannot be used.
func (o *Config) Validate() error {
	if o.Generate.Length <= 0 {
		return fmt.Errorf("generate.length must be greater than zero (got %d)", o.Generate.Length)
	}

	if o.Yara.Author == "" {
		o.Yara.Author = yara.DefaultAuthor
	}

	return nil
}
