package cli

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/mesh-intelligence/varstore/internal/migrate"
	"github.com/mesh-intelligence/varstore/pkg/types"
)

func newMigrateCmd(a *app) *cobra.Command {
	var (
		recursive bool
		backup    bool
		workers   int
	)
	cmd := &cobra.Command{
		Use:     "migrate <store-or-dir>...",
		Aliases: []string{"migrate-result"},
		Short:   "Upgrade result stores in place to the latest version",
		Long: "Apply every migration checkpoint newer than each store's version marker.\n" +
			"A directory argument expands to the .sqlite files inside it (-r recurses).",
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !cmd.Flags().Changed("backup") {
				backup = a.cfg.MigrateBackup
			}
			if !cmd.Flags().Changed("workers") {
				workers = a.cfg.Workers
			}
			if workers < 1 {
				return fmt.Errorf("%w: workers must be positive, got %d", types.ErrInvalidConfig, workers)
			}

			stores, err := expandStores(args, recursive)
			if err != nil {
				return err
			}
			if len(stores) == 0 {
				a.logger.Warn("no stores found", "args", strings.Join(args, ","))
				return nil
			}

			results := migrate.New(nil, a.logger).MigrateAll(cmd.Context(), stores, backup, workers)
			if err := printMigrateResults(cmd, a, results); err != nil {
				return err
			}
			if n := migrate.Failed(results); n > 0 {
				return fmt.Errorf("%d of %d stores failed to migrate", n, len(results))
			}
			return cmd.Context().Err()
		},
	}
	cmd.Flags().BoolVarP(&recursive, "recursive", "r", false, "search directories recursively")
	cmd.Flags().BoolVarP(&backup, "backup", "c", false, "copy each store to <store>.bak before migrating")
	cmd.Flags().IntVar(&workers, "workers", 0, "stores migrated in parallel (default from config, else 1)")
	return cmd
}

// expandStores replaces directory arguments with the stores inside them.
func expandStores(args []string, recursive bool) ([]string, error) {
	var stores []string
	for _, arg := range args {
		info, err := os.Stat(arg)
		if err != nil || !info.IsDir() {
			stores = append(stores, arg)
			continue
		}
		found, err := migrate.FindStores(arg, recursive)
		if err != nil {
			return nil, err
		}
		stores = append(stores, found...)
	}
	return stores, nil
}

func printMigrateResults(cmd *cobra.Command, a *app, results []migrate.Result) error {
	out := cmd.OutOrStdout()
	if a.flags.jsonMode {
		reports := make([]*types.MigrationReport, 0, len(results))
		for _, r := range results {
			if r.Report != nil {
				reports = append(reports, r.Report)
			}
		}
		return printJSON(out, reports)
	}
	for _, r := range results {
		switch {
		case r.Err != nil:
			fmt.Fprintf(out, "%s: failed: %v\n", r.Path, r.Err)
		case r.Report.UpToDate:
			fmt.Fprintf(out, "%s: up to date at %s\n", r.Path, r.Report.From)
		default:
			fmt.Fprintf(out, "%s: %s -> %s (%s)\n", r.Path, r.Report.From, r.Report.To, strings.Join(r.Report.Applied, ", "))
		}
	}
	return nil
}
