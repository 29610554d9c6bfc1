package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/mitchellh/mapstructure"
)

// validate is the singleton validator instance
var validate *validator.Validate

func init() {
	validate = validator.New()
}

// Validate validates the configuration using struct tags and custom rules.
func Validate(cfg *Config) error {
	if err := validate.Struct(cfg); err != nil {
		return formatValidationError(err)
	}

	if err := validateCustomRules(cfg); err != nil {
		return err
	}

	return nil
}

// validateCustomRules performs validation that cannot be expressed in tags.
func validateCustomRules(cfg *Config) error {
	seen := make(map[string]bool, len(cfg.Servers))
	for i, server := range cfg.Servers {
		if seen[server] {
			return fmt.Errorf("servers[%d]: duplicate server %q", i, server)
		}
		seen[server] = true
	}

	opts, err := decodePoolOptions(cfg.Pool.Options)
	if err != nil {
		return fmt.Errorf("pool.options: %w", err)
	}
	if opts.HealthCheckInterval < 0 || opts.MaxIdleTime < 0 {
		return fmt.Errorf("pool.options: durations must not be negative")
	}

	return nil
}

// formatValidationError converts validator errors into user-friendly messages.
func formatValidationError(err error) error {
	var validationErrs validator.ValidationErrors
	if errors.As(err, &validationErrs) && len(validationErrs) > 0 {
		e := validationErrs[0]
		return fmt.Errorf("%s: validation failed on '%s' tag (value: %v)",
			e.Namespace(), e.Tag(), e.Value())
	}
	return err
}

// poolOptions are the free-form pool.options entries.
type poolOptions struct {
	HealthCheckInterval time.Duration `mapstructure:"health_check_interval"`
	MaxIdleTime         time.Duration `mapstructure:"max_idle_time"`
}

func decodePoolOptions(options map[string]any) (poolOptions, error) {
	var opts poolOptions
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook:  mapstructure.StringToTimeDurationHookFunc(),
		ErrorUnused: true,
		Result:      &opts,
	})
	if err != nil {
		return opts, fmt.Errorf("failed to create decoder: %w", err)
	}
	if err := decoder.Decode(options); err != nil {
		return opts, fmt.Errorf("failed to decode pool options: %w", err)
	}
	return opts, nil
}
