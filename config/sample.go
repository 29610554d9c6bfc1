package config

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

const sampleHeader = `# asyncmc configuration file
#
# Every key can be overridden from the environment with the ASYNCMC_ prefix,
# dots replaced by underscores: ASYNCMC_POOL_MAX_SIZE=4
`

// Sample returns the default configuration with the health-check options
// filled in, as written by WriteSample.
func Sample() *Config {
	cfg := Default()
	cfg.Pool.Options = map[string]any{
		"health_check_interval": "30s",
		"max_idle_time":         "5m",
	}
	return cfg
}

// WriteSample writes a sample YAML configuration to w.
func WriteSample(w io.Writer) error {
	var buf bytes.Buffer
	buf.WriteString(sampleHeader)

	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(Sample()); err != nil {
		return fmt.Errorf("failed to encode sample config: %w", err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("failed to encode sample config: %w", err)
	}

	_, err := w.Write(buf.Bytes())
	return err
}

// InitConfigToPath writes the sample configuration to path, creating parent
// directories. An existing file is kept unless force is set.
func InitConfigToPath(path string, force bool) error {
	if !force {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("config file already exists at %s (use force to overwrite)", path)
		}
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}
	if err := WriteSample(f); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}
