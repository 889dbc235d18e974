// Package config loads the stacksync manifest: named environments plus
// tool and transport settings.
//
// Configuration is layered the usual way: built-in defaults, then the
// stacksync.yaml manifest, then STACKSYNC_* environment variables.
// Credentials never need to live in the manifest; each environment's
// password can come from STACKSYNC_<NAME>_PASSWORD instead.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"

	"stacksync/internal/platform"
)

// Config is the loaded manifest.
type Config struct {
	Log     LogConfig     `mapstructure:"log"`
	CLI     CLIConfig     `mapstructure:"cli"`
	API     APIConfig     `mapstructure:"api"`
	Runtime RuntimeConfig `mapstructure:"runtime"`
	Storage StorageConfig `mapstructure:"storage"`
	Secrets SecretsConfig `mapstructure:"secrets"`
	Watch   WatchConfig   `mapstructure:"watch"`

	// Environments maps environment names to their settings.
	Environments map[string]EnvConfig `mapstructure:"environments"`
}

// LogConfig controls the optional rotating log file.
type LogConfig struct {
	File       string `mapstructure:"file"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
}

// CLIConfig locates the platform control CLI.
type CLIConfig struct {
	Binary  string `mapstructure:"binary"`
	WorkDir string `mapstructure:"work_dir"`
}

// APIConfig points at the management API.
type APIConfig struct {
	BaseURL string `mapstructure:"base_url"`
}

// RuntimeConfig describes the local container runtime used as the
// retrieval fallback of last resort.
type RuntimeConfig struct {
	Binary       string `mapstructure:"binary"`
	NamePrefix   string `mapstructure:"name_prefix"`
	FunctionsDir string `mapstructure:"functions_dir"`
}

// StorageConfig configures bucket mirroring.
type StorageConfig struct {
	Endpoint  string `mapstructure:"endpoint"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
	UseSSL    bool   `mapstructure:"use_ssl"`
	Bucket    string `mapstructure:"bucket"`
}

// SecretsConfig configures secret synchronization.
type SecretsConfig struct {
	// Exclude lists secret names never copied between environments,
	// typically platform-managed ones.
	Exclude []string `mapstructure:"exclude"`
}

// WatchConfig configures watch mode.
type WatchConfig struct {
	// Paths are the directories whose changes trigger a run.
	Paths []string `mapstructure:"paths"`

	// Debounce coalesces bursts of file events into one run.
	Debounce time.Duration `mapstructure:"debounce"`
}

// EnvConfig is one named environment in the manifest.
type EnvConfig struct {
	ProjectRef string `mapstructure:"project_ref"`
	Password   string `mapstructure:"password"`
}

// Load reads the manifest. With an empty path it searches the working
// directory and $HOME/.config/stacksync for stacksync.yaml; a missing
// file is not an error, defaults and environment variables still apply.
func Load(path string) (*Config, error) {
	v := viper.New()

	v.SetDefault("cli.binary", "stackctl")
	v.SetDefault("api.base_url", "https://api.stackhost.io")
	v.SetDefault("runtime.binary", "docker")
	v.SetDefault("runtime.name_prefix", "edge-runtime")
	v.SetDefault("runtime.functions_dir", "/home/deno/functions")
	v.SetDefault("watch.debounce", 2*time.Second)
	v.SetDefault("log.max_size_mb", 10)
	v.SetDefault("log.max_backups", 3)

	v.SetEnvPrefix("STACKSYNC")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading config %s: %w", path, err)
		}
	} else {
		v.SetConfigName("stacksync")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(home + "/.config/stacksync")
		}
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("reading config: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	return &cfg, nil
}

// Environment resolves a named environment into the runtime value.
// STACKSYNC_<NAME>_PASSWORD overrides the manifest credential, so the
// manifest can stay free of secrets.
func (c *Config) Environment(name string) (platform.Environment, error) {
	envCfg, ok := c.Environments[name]
	if !ok {
		known := make([]string, 0, len(c.Environments))
		for k := range c.Environments {
			known = append(known, k)
		}
		return platform.Environment{}, fmt.Errorf("unknown environment %q (configured: %s)",
			name, strings.Join(known, ", "))
	}
	if envCfg.ProjectRef == "" {
		return platform.Environment{}, fmt.Errorf("environment %q has no project_ref", name)
	}

	password := envCfg.Password
	if fromEnv := os.Getenv(passwordVar(name)); fromEnv != "" {
		password = fromEnv
	}

	return platform.Environment{
		Name:       name,
		ProjectRef: envCfg.ProjectRef,
		Password:   password,
	}, nil
}

// passwordVar names the per-environment credential variable, e.g.
// STACKSYNC_PROD_PASSWORD for environment "prod".
func passwordVar(name string) string {
	upper := strings.ToUpper(strings.ReplaceAll(name, "-", "_"))
	return "STACKSYNC_" + upper + "_PASSWORD"
}
