package config

import (
	"strings"

	"github.com/ErDmKo/asyncmc"
	"github.com/spf13/viper"
)

// Default values, shared by viper and ApplyDefaults.
const (
	DefaultPoolType      = "channel"
	DefaultSelector      = "crc32"
	DefaultLogLevel      = "INFO"
	DefaultLogFormat     = "text"
	DefaultLogOutput     = "stderr"
	DefaultMetricsListen = ":9150"
	DefaultNamespace     = "asyncmc"
)

func setViperDefaults(v *viper.Viper) {
	v.SetDefault("servers", []string{"localhost:11211"})

	v.SetDefault("logging.level", DefaultLogLevel)
	v.SetDefault("logging.format", DefaultLogFormat)
	v.SetDefault("logging.output", DefaultLogOutput)

	v.SetDefault("pool.type", DefaultPoolType)
	v.SetDefault("pool.min_size", asyncmc.DefaultMinSize)
	v.SetDefault("pool.max_size", asyncmc.DefaultMaxSize)

	v.SetDefault("client.dead_retry", asyncmc.DefaultDeadRetry)
	v.SetDefault("client.connect_timeout", asyncmc.DefaultConnectTimeout)
	v.SetDefault("client.io_timeout", 0)
	v.SetDefault("client.server_retries", asyncmc.DefaultServerRetries)
	v.SetDefault("client.max_value_size", asyncmc.DefaultMaxValueSize)
	v.SetDefault("client.flush_on_reconnect", false)
	v.SetDefault("client.selector", DefaultSelector)
	v.SetDefault("client.debug", false)

	v.SetDefault("metrics.enabled", false)
	v.SetDefault("metrics.listen", DefaultMetricsListen)
	v.SetDefault("metrics.namespace", DefaultNamespace)
}

// ApplyDefaults sets default values for any unspecified configuration fields.
//
// Zero values are replaced with defaults, explicit values are preserved. The
// log level is normalized to uppercase.
func ApplyDefaults(cfg *Config) {
	if len(cfg.Servers) == 0 {
		cfg.Servers = []string{"localhost:11211"}
	}

	applyLoggingDefaults(&cfg.Logging)
	applyPoolDefaults(&cfg.Pool)

	if cfg.Client.Selector == "" {
		cfg.Client.Selector = DefaultSelector
	}
	cfg.Client.Selector = strings.ToLower(cfg.Client.Selector)

	if cfg.Metrics.Listen == "" {
		cfg.Metrics.Listen = DefaultMetricsListen
	}
	if cfg.Metrics.Namespace == "" {
		cfg.Metrics.Namespace = DefaultNamespace
	}
}

// applyLoggingDefaults sets logging defaults and normalizes values.
func applyLoggingDefaults(cfg *LoggingConfig) {
	if cfg.Level == "" {
		cfg.Level = DefaultLogLevel
	}
	cfg.Level = strings.ToUpper(cfg.Level)

	if cfg.Format == "" {
		cfg.Format = DefaultLogFormat
	}
	cfg.Format = strings.ToLower(cfg.Format)

	if cfg.Output == "" {
		cfg.Output = DefaultLogOutput
	}
}

func applyPoolDefaults(cfg *PoolConfig) {
	if cfg.Type == "" {
		cfg.Type = DefaultPoolType
	}
	cfg.Type = strings.ToLower(cfg.Type)

	if cfg.MaxSize == 0 {
		cfg.MaxSize = asyncmc.DefaultMaxSize
	}
	if cfg.Options == nil {
		cfg.Options = make(map[string]any)
	}
}

// Default returns the configuration used when no file and no environment
// override exist.
func Default() *Config {
	cfg := &Config{
		Pool: PoolConfig{MinSize: asyncmc.DefaultMinSize},
		Client: ClientSettings{
			DeadRetry:      asyncmc.DefaultDeadRetry,
			ConnectTimeout: asyncmc.DefaultConnectTimeout,
			ServerRetries:  asyncmc.DefaultServerRetries,
			MaxValueSize:   asyncmc.DefaultMaxValueSize,
		},
	}
	ApplyDefaults(cfg)
	return cfg
}
