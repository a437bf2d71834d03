package cli

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/mesh-intelligence/varstore/internal/paths"
	"github.com/mesh-intelligence/varstore/pkg/types"
)

const (
	configFileName = "config"
	configFileType = "yaml"
	configFileExt  = "config.yaml"

	cfgKeyLogLevel     = "log_level"
	cfgKeyChainDir     = "chain_dir"
	cfgKeyFilterSuffix = "filter.suffix"
	cfgKeyFilterOutDir = "filter.out_dir"
	cfgKeyWorkers      = "migrate.workers"
	cfgKeyBackup       = "migrate.backup"
)

// configFile is the structure written to config.yaml by init.
type configFile struct {
	LogLevel string        `yaml:"log_level"`
	ChainDir string        `yaml:"chain_dir,omitempty"`
	Filter   filterConfig  `yaml:"filter"`
	Migrate  migrateConfig `yaml:"migrate"`
}

type filterConfig struct {
	Suffix string `yaml:"suffix"`
	OutDir string `yaml:"out_dir"`
}

type migrateConfig struct {
	Workers int  `yaml:"workers"`
	Backup  bool `yaml:"backup"`
}

// loadConfig reads config.yaml from the resolved config directory using
// Viper. A missing directory or file is not an error.
func loadConfig(configDirFlag string) (types.Config, error) {
	def := types.DefaultConfig()

	configDir, err := paths.ResolveConfigDir(configDirFlag)
	if err != nil {
		return def, fmt.Errorf("resolve config dir: %w", err)
	}

	v := viper.New()
	v.SetDefault(cfgKeyLogLevel, def.LogLevel)
	v.SetDefault(cfgKeyChainDir, def.ChainDir)
	v.SetDefault(cfgKeyFilterSuffix, def.FilterSuffix)
	v.SetDefault(cfgKeyFilterOutDir, def.FilterOutDir)
	v.SetDefault(cfgKeyWorkers, def.Workers)
	v.SetDefault(cfgKeyBackup, def.MigrateBackup)
	v.SetConfigName(configFileName)
	v.SetConfigType(configFileType)
	v.AddConfigPath(configDir)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return def, fmt.Errorf("read config: %w", err)
		}
	}

	return types.Config{
		LogLevel:      v.GetString(cfgKeyLogLevel),
		ChainDir:      v.GetString(cfgKeyChainDir),
		FilterSuffix:  v.GetString(cfgKeyFilterSuffix),
		FilterOutDir:  v.GetString(cfgKeyFilterOutDir),
		Workers:       v.GetInt(cfgKeyWorkers),
		MigrateBackup: v.GetBool(cfgKeyBackup),
	}, nil
}

// writeConfigIfMissing creates config.yaml from cfg if the file does not
// exist. It reports whether a file was written.
func writeConfigIfMissing(path string, cfg types.Config) (bool, error) {
	if _, err := os.Stat(path); err == nil {
		return false, nil
	} else if !os.IsNotExist(err) {
		return false, fmt.Errorf("stat config file: %w", err)
	}

	data, err := yaml.Marshal(&configFile{
		LogLevel: cfg.LogLevel,
		ChainDir: cfg.ChainDir,
		Filter:   filterConfig{Suffix: cfg.FilterSuffix, OutDir: cfg.FilterOutDir},
		Migrate:  migrateConfig{Workers: cfg.Workers, Backup: cfg.MigrateBackup},
	})
	if err != nil {
		return false, fmt.Errorf("marshal config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return false, fmt.Errorf("create config directory: %w", err)
	}
	return true, os.WriteFile(path, data, 0o644)
}
