package types

import (
	"fmt"
	"strings"
)

// Config holds resolved runtime settings for the CLI and engines.
type Config struct {
	LogLevel      string `json:"log_level" yaml:"log_level"`
	ChainDir      string `json:"chain_dir" yaml:"chain_dir"`
	FilterSuffix  string `json:"filter_suffix" yaml:"filter_suffix"`
	FilterOutDir  string `json:"filter_out_dir" yaml:"filter_out_dir"`
	Workers       int    `json:"workers" yaml:"workers"`
	MigrateBackup bool   `json:"migrate_backup" yaml:"migrate_backup"`
}

// Defaults applied when neither flags nor config.yaml set a value.
const (
	DefaultLogLevel     = "info"
	DefaultFilterSuffix = "filtered"
	DefaultFilterOutDir = "."
	DefaultWorkers      = 1
)

var knownLogLevels = map[string]bool{
	"debug":   true,
	"info":    true,
	"warn":    true,
	"warning": true,
	"error":   true,
}

// DefaultConfig returns a Config populated with the built-in defaults.
func DefaultConfig() Config {
	return Config{
		LogLevel:     DefaultLogLevel,
		FilterSuffix: DefaultFilterSuffix,
		FilterOutDir: DefaultFilterOutDir,
		Workers:      DefaultWorkers,
	}
}

// Validate checks that the Config is well-formed. Errors wrap ErrInvalidConfig.
func (c Config) Validate() error {
	if !knownLogLevels[strings.ToLower(c.LogLevel)] {
		return fmt.Errorf("%w: unknown log level %q", ErrInvalidConfig, c.LogLevel)
	}
	if c.Workers < 1 {
		return fmt.Errorf("%w: workers must be positive, got %d", ErrInvalidConfig, c.Workers)
	}
	if c.FilterSuffix == "" {
		return fmt.Errorf("%w: filter suffix must not be empty", ErrInvalidConfig)
	}
	if strings.ContainsAny(c.FilterSuffix, `/\`) {
		return fmt.Errorf("%w: filter suffix %q contains a path separator", ErrInvalidConfig, c.FilterSuffix)
	}
	return nil
}
