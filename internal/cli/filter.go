package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mesh-intelligence/varstore/internal/filter"
	"github.com/mesh-intelligence/varstore/pkg/types"
)

type filterFlags struct {
	outDir string
	suffix string
	spec   types.FilterSpec
}

func newFilterCmd(a *app) *cobra.Command {
	var f filterFlags
	cmd := &cobra.Command{
		Use:     "filter <store>...",
		Aliases: []string{"filtersqlite"},
		Short:   "Write filtered copies of result stores",
		Long: "Write <out-dir>/<stem>.<suffix>.sqlite for every store, keeping the variants\n" +
			"selected by the filter document and SQL fragment, the genes they carry, and\n" +
			"their sample and mapping rows. Files without the .sqlite suffix are skipped.",
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := filter.BatchOptions{OutDir: a.cfg.FilterOutDir, Suffix: a.cfg.FilterSuffix}
			if cmd.Flags().Changed("output-dir") {
				opts.OutDir = f.outDir
			}
			if cmd.Flags().Changed("suffix") {
				opts.Suffix = f.suffix
			}

			results, err := filter.New(a.logger, nil).FilterAll(cmd.Context(), args, f.spec, opts)
			if perr := printFilterResults(cmd, a, results); perr != nil {
				return perr
			}
			if err != nil {
				return err
			}
			if n := filter.Failed(results); n > 0 {
				return fmt.Errorf("%d of %d stores failed to filter", n, len(results))
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&f.outDir, "output-dir", "o", "", "directory for filtered stores (default from config, else .)")
	cmd.Flags().StringVarP(&f.suffix, "suffix", "s", "", "suffix inserted before .sqlite (default from config, else filtered)")
	cmd.Flags().StringVarP(&f.spec.Filter, "filter", "f", "", "filter document: a JSON file or inline JSON")
	cmd.Flags().StringVar(&f.spec.SQL, "filtersql", "", "SQL condition over variant (v) and gene (g) columns")
	cmd.Flags().StringSliceVar(&f.spec.IncludeSamples, "includesample", nil, "keep only these sample ids")
	cmd.Flags().StringSliceVar(&f.spec.ExcludeSamples, "excludesample", nil, "drop these sample ids")
	return cmd
}

func printFilterResults(cmd *cobra.Command, a *app, results []filter.Result) error {
	out := cmd.OutOrStdout()
	if a.flags.jsonMode {
		reports := make([]*types.FilterReport, 0, len(results))
		for _, r := range results {
			if r.Report != nil {
				reports = append(reports, r.Report)
			}
		}
		return printJSON(out, reports)
	}
	for _, r := range results {
		switch {
		case r.Skipped:
			fmt.Fprintf(out, "%s: skipped\n", r.Source)
		case r.Err != nil:
			fmt.Fprintf(out, "%s: failed: %v\n", r.Source, r.Err)
		default:
			fmt.Fprintf(out, "%s -> %s: %d variants, %d genes, %d samples, %d mappings\n",
				r.Source, r.Report.Output, r.Report.Variants, r.Report.Genes, r.Report.Samples, r.Report.Mappings)
		}
	}
	return nil
}
