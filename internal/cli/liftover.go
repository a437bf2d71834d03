package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mesh-intelligence/varstore/internal/liftover"
	"github.com/mesh-intelligence/varstore/internal/paths"
)

type liftoverFlags struct {
	db       string
	chain    string
	chainDir string
	opts     liftover.Options
}

func newLiftoverCmd(a *app) *cobra.Command {
	var f liftoverFlags
	cmd := &cobra.Command{
		Use:     "liftover --db <store> --sourcegenome hg18|hg19 --cols <col>...",
		Aliases: []string{"converttohg38"},
		Short:   "Convert coordinate columns of a store to hg38",
		Long: "Write <stem>.hg38.sqlite next to the store with the position columns lifted\n" +
			"to hg38. Rows that map ambiguously are listed in <output>.noconversion and\n" +
			"unmapped positions in <output>.unmapped; both keep their original values.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := liftover.ValidateBuild(f.opts.SourceBuild); err != nil {
				return err
			}
			chainPath, err := resolveChain(a, f)
			if err != nil {
				return err
			}
			a.logger.Info("loading chain", "path", chainPath)
			cm, err := liftover.LoadChainFile(chainPath)
			if err != nil {
				return err
			}

			report, err := liftover.NewConverter(cm, a.logger).Convert(cmd.Context(), f.db, f.opts)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if a.flags.jsonMode {
				return printJSON(out, report)
			}
			fmt.Fprintf(out, "wrote %s (%d rows)\n", report.Output, report.Rows())
			for _, t := range report.Tables {
				if !t.Converted {
					continue
				}
				fmt.Fprintf(out, "  %s: %d rewritten, %d unmapped, %d ambiguous of %d rows\n",
					t.Table, t.Rewritten, t.Unmapped, t.Ambiguous, t.Rows)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&f.db, "db", "", "store to convert")
	cmd.Flags().StringVar(&f.opts.SourceBuild, "sourcegenome", "", "genome build of the store: hg18 or hg19")
	cmd.Flags().StringSliceVar(&f.opts.Columns, "cols", nil, "position columns to convert")
	cmd.Flags().StringSliceVar(&f.opts.Tables, "tables", nil, "tables to convert (default: all)")
	cmd.Flags().StringVar(&f.opts.ChromColumn, "chromcol", "", "chromosome column (default: the table name is the chromosome)")
	cmd.Flags().StringVar(&f.chain, "chain", "", "chain file (default: <chain-dir>/<build>ToHg38.over.chain[.gz])")
	cmd.Flags().StringVar(&f.chainDir, "chain-dir", "", "directory holding chain files")
	_ = cmd.MarkFlagRequired("db")
	_ = cmd.MarkFlagRequired("sourcegenome")
	_ = cmd.MarkFlagRequired("cols")
	return cmd
}

// resolveChain returns the explicit --chain path or the build's chain file
// in the resolved chain directory.
func resolveChain(a *app, f liftoverFlags) (string, error) {
	if f.chain != "" {
		return f.chain, nil
	}
	dir, err := paths.ResolveChainDir(f.chainDir, a.cfg.ChainDir)
	if err != nil {
		return "", fmt.Errorf("resolve chain dir: %w", err)
	}
	return paths.FindChainFile(dir, f.opts.SourceBuild)
}
