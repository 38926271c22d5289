package cli

import (
	"github.com/spf13/cobra"
	"github.com/vegasq/aggcat/output"
	"github.com/vegasq/aggcat/pipeline"
	"github.com/vegasq/aggcat/queries"
)

func newQueriesCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "queries",
		Short: "List the shipped query definitions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := GetConfig(cmd.Context())
			formatter, err := output.New(cfg.Format, cmd.OutOrStdout())
			if err != nil {
				return err
			}
			defs, err := queries.All()
			if err != nil {
				return err
			}
			out := make(pipeline.Table, 0, len(defs))
			for _, d := range defs {
				out = append(out, pipeline.RecordOf("name", d.Name, "source", d.Source, "description", d.Description))
			}
			return formatter.Format(out)
		},
	}
}
