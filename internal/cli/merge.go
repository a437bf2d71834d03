package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mesh-intelligence/varstore/internal/merge"
)

func newMergeCmd(a *app) *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:     "merge <store> <store>... -o <output>",
		Aliases: []string{"mergesqlite"},
		Short:   "Merge result stores into one",
		Long: "Merge two or more result stores into a new store. Variants are identified by\n" +
			"chrom, pos, ref and alt; the first store to carry a variant or gene wins.\n" +
			"\".sqlite\" is appended to the output path when missing.",
		Args: cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			report, err := merge.New(a.logger).Merge(cmd.Context(), args, merge.OutputPath(output))
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if a.flags.jsonMode {
				return printJSON(out, report)
			}
			fmt.Fprintf(out, "merged %d stores into %s\n", len(report.Sources), report.Output)
			for _, s := range report.Sources {
				fmt.Fprintf(out, "  %s: +%d variants (%d duplicates dropped), +%d genes (%d dropped), +%d input files\n",
					s.Path, s.VariantsAdded, s.VariantsDropped, s.GenesAdded, s.GenesDropped, s.FilesAdded)
			}
			fmt.Fprintf(out, "%d variants, %d genes, %d input files\n", report.Variants, report.Genes, report.InputFiles)
			return nil
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "output store path")
	_ = cmd.MarkFlagRequired("output")
	return cmd
}
