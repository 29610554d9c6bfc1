package config

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/ErDmKo/asyncmc"
)

// ClientConfig converts the configuration into the client's Config. logger
// may be nil, in which case the client picks its own.
func (c *Config) ClientConfig(logger *slog.Logger) (asyncmc.Config, error) {
	opts, err := decodePoolOptions(c.Pool.Options)
	if err != nil {
		return asyncmc.Config{}, err
	}

	cfg := asyncmc.Config{
		MinSize:             c.Pool.MinSize,
		MaxSize:             c.Pool.MaxSize,
		DeadRetry:           c.Client.DeadRetry,
		ConnectTimeout:      c.Client.ConnectTimeout,
		IOTimeout:           c.Client.IOTimeout,
		ServerRetries:       c.Client.ServerRetries,
		MaxValueSize:        c.Client.MaxValueSize,
		FlushOnReconnect:    c.Client.FlushOnReconnect,
		HealthCheckInterval: opts.HealthCheckInterval,
		MaxIdleTime:         opts.MaxIdleTime,
		Debug:               c.Client.Debug,
		Logger:              logger,
	}

	switch c.Pool.Type {
	case "", "channel":
		cfg.Pool = asyncmc.NewChannelPool
	case "puddle":
		cfg.Pool = asyncmc.NewPuddlePool
	default:
		return asyncmc.Config{}, fmt.Errorf("unknown pool type: %q", c.Pool.Type)
	}

	switch c.Client.Selector {
	case "", "crc32":
		cfg.SelectServer = asyncmc.DefaultServerSelector
	case "jump":
		cfg.SelectServer = asyncmc.JumpServerSelector
	default:
		return asyncmc.Config{}, fmt.Errorf("unknown selector: %q", c.Client.Selector)
	}

	return cfg, nil
}

// NewClient builds a client from the configuration.
func (c *Config) NewClient(logger *slog.Logger) (*asyncmc.Client, error) {
	cfg, err := c.ClientConfig(logger)
	if err != nil {
		return nil, err
	}
	return asyncmc.NewClient(c.Servers, cfg)
}

// NewLogger builds the slog logger described by cfg. The returned close
// function releases the log file, if any.
func NewLogger(cfg LoggingConfig) (*slog.Logger, func() error, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		return nil, nil, fmt.Errorf("invalid log level %q: %w", cfg.Level, err)
	}

	closeFn := func() error { return nil }

	var out io.Writer
	switch cfg.Output {
	case "", "stderr":
		out = os.Stderr
	case "stdout":
		out = os.Stdout
	default:
		f, err := os.OpenFile(cfg.Output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open log file: %w", err)
		}
		out = f
		closeFn = f.Close
	}

	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	switch cfg.Format {
	case "json":
		handler = slog.NewJSONHandler(out, opts)
	default:
		handler = slog.NewTextHandler(out, opts)
	}

	return slog.New(handler), closeFn, nil
}
