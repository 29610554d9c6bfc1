// Package config loads asyncmc client settings from a YAML file and the
// environment, validates them and turns them into an asyncmc.Config.
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

// EnvPrefix prefixes every environment override, e.g. ASYNCMC_POOL_MAX_SIZE.
const EnvPrefix = "ASYNCMC"

// Config represents the complete client configuration.
//
// Configuration sources (in order of precedence):
//  1. Environment variables (ASYNCMC_*)
//  2. Configuration file (YAML)
//  3. Default values
type Config struct {
	// Servers lists the memcached servers as host[:port].
	Servers []string `mapstructure:"servers" yaml:"servers" validate:"required,min=1,dive,required"`

	// Logging controls log output behavior
	Logging LoggingConfig `mapstructure:"logging" yaml:"logging"`

	// Pool sizes the Router pool
	Pool PoolConfig `mapstructure:"pool" yaml:"pool"`

	// Client contains connection and routing settings
	Client ClientSettings `mapstructure:"client" yaml:"client"`

	// Metrics configures the Prometheus endpoint of the CLI
	Metrics MetricsConfig `mapstructure:"metrics" yaml:"metrics"`
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	// Level is the minimum log level to output
	// Valid values: DEBUG, INFO, WARN, ERROR (case-insensitive, normalized to uppercase)
	Level string `mapstructure:"level" yaml:"level" validate:"required,oneof=DEBUG INFO WARN ERROR"`

	// Format specifies the log output format
	// Valid values: text, json
	Format string `mapstructure:"format" yaml:"format" validate:"required,oneof=text json"`

	// Output specifies where logs are written
	// Valid values: stdout, stderr, or a file path
	Output string `mapstructure:"output" yaml:"output" validate:"required"`
}

// PoolConfig selects and sizes the Router pool.
type PoolConfig struct {
	// Type selects the pool implementation
	// Valid values: channel, puddle
	Type string `mapstructure:"type" yaml:"type" validate:"required,oneof=channel puddle"`

	MinSize int32 `mapstructure:"min_size" yaml:"min_size" validate:"gte=0,ltefield=MaxSize"`
	MaxSize int32 `mapstructure:"max_size" yaml:"max_size" validate:"gt=0"`

	// Options holds health-check settings, decoded by ClientConfig.
	// Keys: health_check_interval, max_idle_time (durations such as "30s").
	Options map[string]any `mapstructure:"options" yaml:"options,omitempty"`
}

// ClientSettings contains connection and routing settings.
type ClientSettings struct {
	// DeadRetry is the quarantine after a connection failure. Negative disables it.
	DeadRetry time.Duration `mapstructure:"dead_retry" yaml:"dead_retry"`

	ConnectTimeout time.Duration `mapstructure:"connect_timeout" yaml:"connect_timeout" validate:"gte=0"`
	IOTimeout      time.Duration `mapstructure:"io_timeout" yaml:"io_timeout" validate:"gte=0"`

	// ServerRetries is how many times a key is rehashed away from a dead server.
	// Negative disables rehashing.
	ServerRetries int `mapstructure:"server_retries" yaml:"server_retries"`

	// MaxValueSize caps a value read from a server, in bytes.
	MaxValueSize int `mapstructure:"max_value_size" yaml:"max_value_size" validate:"gte=0,lte=1073741824"`

	FlushOnReconnect bool `mapstructure:"flush_on_reconnect" yaml:"flush_on_reconnect"`

	// Selector picks the key distribution
	// Valid values: crc32, jump
	Selector string `mapstructure:"selector" yaml:"selector" validate:"required,oneof=crc32 jump"`

	// Debug logs every command at debug level
	Debug bool `mapstructure:"debug" yaml:"debug"`
}

// MetricsConfig configures the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
	Listen  string `mapstructure:"listen" yaml:"listen" validate:"required_if=Enabled true"`

	// Namespace prefixes every metric name
	Namespace string `mapstructure:"namespace" yaml:"namespace"`
}

// Load loads configuration from file, environment, and defaults.
//
// An empty configPath searches $XDG_CONFIG_HOME/asyncmc/config.yaml (or
// ~/.config/asyncmc) and the working directory; a missing file there is not an
// error. An explicit configPath must exist.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	setupViper(v, configPath)

	if err := readConfigFile(v, configPath); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	ApplyDefaults(&cfg)

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &cfg, nil
}

// setupViper configures viper with environment variables and config file settings.
func setupViper(v *viper.Viper, configPath string) {
	// Defaults register every key, which lets AutomaticEnv override keys
	// absent from the file.
	setViperDefaults(v)

	// Example: ASYNCMC_POOL_MAX_SIZE=4, ASYNCMC_SERVERS=a:11211,b:11211
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
		return
	}

	v.AddConfigPath(getConfigDir())
	v.AddConfigPath(".")
	v.SetConfigName("config")
	v.SetConfigType("yaml")
}

// readConfigFile reads the configuration file if it exists.
func readConfigFile(v *viper.Viper, configPath string) error {
	err := v.ReadInConfig()
	if err == nil {
		return nil
	}

	var notFound viper.ConfigFileNotFoundError
	if configPath == "" && errors.As(err, &notFound) {
		return nil
	}
	return fmt.Errorf("failed to read config file: %w", err)
}

// getConfigDir returns the configuration directory path.
func getConfigDir() string {
	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		return filepath.Join(xdgConfig, "asyncmc")
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return filepath.Join(home, ".config", "asyncmc")
}

// DefaultConfigPath returns the default configuration file path.
func DefaultConfigPath() string {
	return filepath.Join(getConfigDir(), "config.yaml")
}
