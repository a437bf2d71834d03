package cli

import (
	"github.com/spf13/cobra"

	"github.com/mesh-intelligence/varstore/internal/info"
)

func newInfoCmd(a *app) *cobra.Command {
	var format string
	cmd := &cobra.Command{
		Use:     "info <store>...",
		Aliases: []string{"showsqliteinfo"},
		Short:   "Show the input files and output columns of result stores",
		Args:    cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if a.flags.jsonMode && !cmd.Flags().Changed("fmt") {
				format = info.FormatJSON
			}
			descs := make([]*info.Description, 0, len(args))
			for _, path := range args {
				d, err := info.Describe(cmd.Context(), path)
				if err != nil {
					return err
				}
				descs = append(descs, d)
			}
			return info.Render(cmd.OutOrStdout(), format, descs)
		},
	}
	cmd.Flags().StringVar(&format, "fmt", info.FormatText, "output format: text, json or yaml")
	return cmd
}
