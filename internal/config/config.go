// Package config handles client configuration using Viper. Precedence, lowest
// first: built-in defaults, the config file, REPROCESS_* environment
// variables, then command-line flags bound by the caller.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment override.
const EnvPrefix = "REPROCESS"

// Config holds the client configuration.
type Config struct {
	API       string        `mapstructure:"api"`
	SessionDB string        `mapstructure:"session_db"`
	Timeout   time.Duration `mapstructure:"timeout"`
	Log       LogConfig     `mapstructure:"log"`
	Live      LiveConfig    `mapstructure:"live"`
	Metrics   MetricsConfig `mapstructure:"metrics"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	File   string `mapstructure:"file"`
}

// LiveConfig holds live-channel configuration.
type LiveConfig struct {
	Reconnect  bool          `mapstructure:"reconnect"`
	MaxBackoff time.Duration `mapstructure:"max_backoff"`
}

// MetricsConfig holds the optional Prometheus endpoint.
type MetricsConfig struct {
	Addr string `mapstructure:"addr"`
}

// Dir returns the per-user configuration directory.
func Dir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", ".reprocess")
	}
	return filepath.Join(home, ".config", "reprocess")
}

// NewViper returns a Viper instance with defaults and environment overrides
// configured. configPath may be empty to use the default location. Bind flags
// on the result before calling Load.
func NewViper(configPath string) *viper.Viper {
	v := viper.New()
	setDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.AddConfigPath(Dir())
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// Load reads the config file, if any, and decodes the merged configuration.
func Load(v *viper.Viper) (*Config, error) {
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	cfg.API = strings.TrimRight(cfg.API, "/")
	cfg.SessionDB = expandHome(cfg.SessionDB)
	cfg.Log.File = expandHome(cfg.Log.File)

	if cfg.API == "" {
		return nil, errors.New("config: api address is empty")
	}
	return &cfg, nil
}

// setDefaults configures default values.
func setDefaults(v *viper.Viper) {
	dir := Dir()

	v.SetDefault("api", "http://localhost:8000")
	v.SetDefault("session_db", filepath.Join(dir, "session.db"))
	v.SetDefault("timeout", 10*time.Second)
	v.SetDefault("log.level", "warn")
	v.SetDefault("log.format", "text")
	v.SetDefault("log.file", filepath.Join(dir, "reprocess.log"))
	v.SetDefault("live.reconnect", true)
	v.SetDefault("live.max_backoff", 30*time.Second)
	v.SetDefault("metrics.addr", "")
}

func expandHome(path string) string {
	if path == "" || path[0] != '~' {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, path[1:])
}
