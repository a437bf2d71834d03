// Package paths resolves the configuration directory and the liftover chain
// file locations.
package paths

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
)

// AppName names the per-user configuration and data directories.
const AppName = "varstore"

// ChainDirName is the data subdirectory holding liftover chain files.
const ChainDirName = "liftover"

// Environment variable names for directory overrides.
const (
	EnvConfigDir = "VARSTORE_CONFIG_DIR"
	EnvChainDir  = "VARSTORE_CHAIN_DIR"
)

// platformDir holds platform-detection functions that can be overridden in tests.
var platformDir = struct {
	homeDir       func() (string, error)
	userConfigDir func() (string, error)
}{
	homeDir:       os.UserHomeDir,
	userConfigDir: os.UserConfigDir,
}

// DefaultConfigDir returns the platform-specific default configuration directory.
//
// Linux:   $XDG_CONFIG_HOME/varstore (fallback ~/.config/varstore)
// macOS:   ~/Library/Application Support/varstore
// Windows: %APPDATA%/varstore
func DefaultConfigDir() (string, error) {
	if runtime.GOOS == "linux" {
		return xdgDir("XDG_CONFIG_HOME", ".config")
	}
	dir, err := platformDir.userConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, AppName), nil
}

// DefaultDataDir returns the platform-specific default data directory.
//
// Linux:   $XDG_DATA_HOME/varstore (fallback ~/.local/share/varstore)
// macOS and Windows: same as the config dir.
func DefaultDataDir() (string, error) {
	if runtime.GOOS == "linux" {
		return xdgDir("XDG_DATA_HOME", filepath.Join(".local", "share"))
	}
	return DefaultConfigDir()
}

func xdgDir(env, fallback string) (string, error) {
	if xdg := os.Getenv(env); xdg != "" {
		return filepath.Join(xdg, AppName), nil
	}
	home, err := platformDir.homeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, fallback, AppName), nil
}

// ResolveConfigDir returns the configuration directory following the precedence
// chain: flag > VARSTORE_CONFIG_DIR env > DefaultConfigDir().
func ResolveConfigDir(flag string) (string, error) {
	if flag != "" {
		return filepath.Abs(flag)
	}
	if env := os.Getenv(EnvConfigDir); env != "" {
		return filepath.Abs(env)
	}
	return DefaultConfigDir()
}

// ResolveChainDir returns the chain file directory following the precedence
// chain: flag > config.yaml chain_dir > VARSTORE_CHAIN_DIR env >
// DefaultDataDir()/liftover.
func ResolveChainDir(flag, configYAMLValue string) (string, error) {
	if flag != "" {
		return filepath.Abs(flag)
	}
	if configYAMLValue != "" {
		return filepath.Abs(configYAMLValue)
	}
	if env := os.Getenv(EnvChainDir); env != "" {
		return filepath.Abs(env)
	}
	dir, err := DefaultDataDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, ChainDirName), nil
}

// ChainFileName returns the UCSC file name of the chain lifting build to hg38,
// e.g. "hg19ToHg38.over.chain".
func ChainFileName(build string) string {
	return build + "ToHg38.over.chain"
}

// FindChainFile looks in dir for the build's chain file, plain or gzipped.
func FindChainFile(dir, build string) (string, error) {
	base := filepath.Join(dir, ChainFileName(build))
	for _, candidate := range []string{base, base + ".gz"} {
		if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("no chain file for %s in %s (expected %s or %s.gz): %w",
		build, dir, filepath.Base(base), filepath.Base(base), os.ErrNotExist)
}
