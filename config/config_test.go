package config

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/ErDmKo/asyncmc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoad_File(t *testing.T) {
	path := writeConfig(t, `
servers:
  - "10.0.0.1"
  - "10.0.0.2:11212"
logging:
  level: debug
pool:
  type: puddle
  min_size: 2
  max_size: 8
  options:
    health_check_interval: 10s
    max_idle_time: 1m
client:
  dead_retry: 5s
  selector: jump
  flush_on_reconnect: true
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, []string{"10.0.0.1", "10.0.0.2:11212"}, cfg.Servers)
	assert.Equal(t, "DEBUG", cfg.Logging.Level)
	assert.Equal(t, "text", cfg.Logging.Format)
	assert.Equal(t, "puddle", cfg.Pool.Type)
	assert.Equal(t, int32(2), cfg.Pool.MinSize)
	assert.Equal(t, int32(8), cfg.Pool.MaxSize)
	assert.Equal(t, 5*time.Second, cfg.Client.DeadRetry)
	assert.Equal(t, asyncmc.DefaultConnectTimeout, cfg.Client.ConnectTimeout)
	assert.Equal(t, asyncmc.DefaultServerRetries, cfg.Client.ServerRetries)
	assert.Equal(t, asyncmc.DefaultMaxValueSize, cfg.Client.MaxValueSize)
	assert.True(t, cfg.Client.FlushOnReconnect)
	assert.Equal(t, "jump", cfg.Client.Selector)
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, "servers: [\"cache:11211\"]\n"))
	require.NoError(t, err)

	assert.Equal(t, "INFO", cfg.Logging.Level)
	assert.Equal(t, "stderr", cfg.Logging.Output)
	assert.Equal(t, "channel", cfg.Pool.Type)
	assert.Equal(t, int32(asyncmc.DefaultMinSize), cfg.Pool.MinSize)
	assert.Equal(t, int32(asyncmc.DefaultMaxSize), cfg.Pool.MaxSize)
	assert.Equal(t, asyncmc.DefaultDeadRetry, cfg.Client.DeadRetry)
	assert.Equal(t, "crc32", cfg.Client.Selector)
	assert.False(t, cfg.Metrics.Enabled)
	assert.Equal(t, DefaultMetricsListen, cfg.Metrics.Listen)
}

func TestLoad_EnvOverrides(t *testing.T) {
	path := writeConfig(t, `
servers: ["file:11211"]
pool:
  max_size: 10
`)
	t.Setenv("ASYNCMC_SERVERS", "env1:11211,env2:11211")
	t.Setenv("ASYNCMC_POOL_MAX_SIZE", "4")
	t.Setenv("ASYNCMC_CLIENT_DEAD_RETRY", "-1s")
	t.Setenv("ASYNCMC_LOGGING_FORMAT", "json")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, []string{"env1:11211", "env2:11211"}, cfg.Servers)
	assert.Equal(t, int32(4), cfg.Pool.MaxSize)
	assert.Equal(t, -time.Second, cfg.Client.DeadRetry)
	assert.Equal(t, "json", cfg.Logging.Format)
}

func TestLoad_MissingExplicitFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nonexistent.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read config file")
}

func TestLoad_DefaultLocation(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", dir)
	t.Chdir(t.TempDir())

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, []string{"localhost:11211"}, cfg.Servers)

	require.NoError(t, InitConfigToPath(DefaultConfigPath(), false))
	assert.Equal(t, filepath.Join(dir, "asyncmc", "config.yaml"), DefaultConfigPath())

	cfg, err = Load("")
	require.NoError(t, err)
	assert.Equal(t, Sample().Pool.Options, cfg.Pool.Options)
}

func TestLoad_InvalidYAML(t *testing.T) {
	_, err := Load(writeConfig(t, "servers: [unclosed\n"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(*Config)
		wantErr string
	}{
		{
			name:   "valid",
			modify: func(*Config) {},
		},
		{
			name:    "no servers",
			modify:  func(c *Config) { c.Servers = nil },
			wantErr: "Config.Servers",
		},
		{
			name:    "empty server",
			modify:  func(c *Config) { c.Servers = []string{""} },
			wantErr: "Config.Servers[0]",
		},
		{
			name:    "duplicate server",
			modify:  func(c *Config) { c.Servers = []string{"a:1", "a:1"} },
			wantErr: "duplicate server",
		},
		{
			name:    "bad level",
			modify:  func(c *Config) { c.Logging.Level = "TRACE" },
			wantErr: "Config.Logging.Level",
		},
		{
			name:    "bad pool type",
			modify:  func(c *Config) { c.Pool.Type = "ring" },
			wantErr: "Config.Pool.Type",
		},
		{
			name:    "zero max size",
			modify:  func(c *Config) { c.Pool.MinSize = 0; c.Pool.MaxSize = 0 },
			wantErr: "Config.Pool.MaxSize",
		},
		{
			name:    "min above max",
			modify:  func(c *Config) { c.Pool.MinSize = 20; c.Pool.MaxSize = 10 },
			wantErr: "ltefield",
		},
		{
			name:    "bad selector",
			modify:  func(c *Config) { c.Client.Selector = "ketama" },
			wantErr: "Config.Client.Selector",
		},
		{
			name:    "negative connect timeout",
			modify:  func(c *Config) { c.Client.ConnectTimeout = -time.Second },
			wantErr: "Config.Client.ConnectTimeout",
		},
		{
			name:    "metrics without listen address",
			modify:  func(c *Config) { c.Metrics.Enabled = true; c.Metrics.Listen = "" },
			wantErr: "required_if",
		},
		{
			name:    "unknown pool option",
			modify:  func(c *Config) { c.Pool.Options = map[string]any{"max_lifetime": "1m"} },
			wantErr: "pool.options",
		},
		{
			name:    "bad pool option duration",
			modify:  func(c *Config) { c.Pool.Options = map[string]any{"max_idle_time": "soon"} },
			wantErr: "pool.options",
		},
		{
			name:    "negative pool option",
			modify:  func(c *Config) { c.Pool.Options = map[string]any{"max_idle_time": "-1m"} },
			wantErr: "must not be negative",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.modify(cfg)

			err := Validate(cfg)
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestClientConfig(t *testing.T) {
	cfg := Default()
	cfg.Pool.Type = "puddle"
	cfg.Pool.MaxSize = 3
	cfg.Client.Selector = "jump"
	cfg.Client.IOTimeout = time.Second
	cfg.Pool.Options = map[string]any{"health_check_interval": "15s", "max_idle_time": time.Minute}

	cc, err := cfg.ClientConfig(nil)
	require.NoError(t, err)

	assert.Equal(t, int32(3), cc.MaxSize)
	assert.Equal(t, time.Second, cc.IOTimeout)
	assert.Equal(t, 15*time.Second, cc.HealthCheckInterval)
	assert.Equal(t, time.Minute, cc.MaxIdleTime)
	assert.Equal(t, asyncmc.DefaultDeadRetry, cc.DeadRetry)
	require.NotNil(t, cc.Pool)
	require.NotNil(t, cc.SelectServer)

	// jump and crc32 disagree on at least one of these keys
	differs := false
	for _, key := range []string{"a", "b", "c", "d", "e", "f"} {
		if cc.SelectServer(key, 7) != asyncmc.DefaultServerSelector(key, 7) {
			differs = true
		}
	}
	assert.True(t, differs)

	cfg.Pool.Type = "ring"
	_, err = cfg.ClientConfig(nil)
	assert.Error(t, err)
}

func TestNewClient(t *testing.T) {
	cfg := Default()
	cfg.Servers = []string{"127.0.0.1:1"}

	client, err := cfg.NewClient(nil)
	require.NoError(t, err)
	defer client.Close()

	assert.Equal(t, []string{"127.0.0.1:1"}, client.Servers())
}

func TestNewLogger(t *testing.T) {
	path := filepath.Join(t.TempDir(), "client.log")

	logger, closeFn, err := NewLogger(LoggingConfig{Level: "WARN", Format: "json", Output: path})
	require.NoError(t, err)

	logger.Info("hidden")
	logger.Warn("server marked dead", "addr", "10.0.0.1:11211")
	require.NoError(t, closeFn())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "hidden")
	assert.Contains(t, string(data), `"msg":"server marked dead"`)
	assert.Contains(t, string(data), `"addr":"10.0.0.1:11211"`)

	_, _, err = NewLogger(LoggingConfig{Level: "LOUD"})
	assert.Error(t, err)
}

func TestWriteSample(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteSample(&buf))

	content := buf.String()
	assert.True(t, strings.HasPrefix(content, "# asyncmc configuration file"))
	for _, section := range []string{"servers:", "logging:", "pool:", "client:", "metrics:", "dead_retry: 30s"} {
		assert.Contains(t, content, section)
	}

	var decoded Config
	require.NoError(t, yaml.Unmarshal(buf.Bytes(), &decoded))
	assert.Equal(t, asyncmc.DefaultDeadRetry, decoded.Client.DeadRetry)

	// The sample loads back to the same configuration
	path := writeConfig(t, content)
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, Sample(), cfg)
}

func TestInitConfigToPath(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")

	require.NoError(t, InitConfigToPath(path, false))
	assert.FileExists(t, path)

	err := InitConfigToPath(path, false)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already exists")

	require.NoError(t, InitConfigToPath(path, true))
}
