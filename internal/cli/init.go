package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/mesh-intelligence/varstore/internal/paths"
)

func newInitCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Write a default config.yaml and create the chain directory",
		Long: "Create the configuration directory with a config.yaml holding the current\n" +
			"settings (left alone when it exists) and the liftover chain directory.",
		Args: cobra.NoArgs,
		RunE: a.runInit,
	}
}

func (a *app) runInit(cmd *cobra.Command, args []string) error {
	configDir, err := paths.ResolveConfigDir(a.flags.configDir)
	if err != nil {
		return fmt.Errorf("resolve config dir: %w", err)
	}
	configPath := filepath.Join(configDir, configFileExt)
	written, err := writeConfigIfMissing(configPath, a.cfg)
	if err != nil {
		return fmt.Errorf("write config: %w", err)
	}

	chainDir, err := paths.ResolveChainDir("", a.cfg.ChainDir)
	if err != nil {
		return fmt.Errorf("resolve chain dir: %w", err)
	}
	if err := os.MkdirAll(chainDir, 0o755); err != nil {
		return fmt.Errorf("create chain directory: %w", err)
	}

	out := cmd.OutOrStdout()
	if written {
		fmt.Fprintf(out, "wrote %s\n", configPath)
	} else {
		fmt.Fprintf(out, "kept existing %s\n", configPath)
	}
	fmt.Fprintf(out, "chain files go in %s\n", chainDir)
	return nil
}
