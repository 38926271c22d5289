package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newValidateCommand() *cobra.Command {
	var all bool

	cmd := &cobra.Command{
		Use:   "validate [query.yaml | query-name ...]",
		Short: "Check query definitions without reading any data",
		Long: `Decode every definition and build its pipeline. Unknown stage kinds,
transforms, operators and aggregate functions are reported with the index
of the stage they appear in. No source is opened.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 && !all {
				return fmt.Errorf("no queries given (pass definition files, query names or --all)")
			}
			cfg := GetConfig(cmd.Context())

			defs, err := resolveDefinitions(args, all)
			if err != nil {
				return err
			}
			opts, err := cfg.PipelineOptions()
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			failed := 0
			for _, def := range defs {
				err := func() error {
					if def.Source == "" {
						return fmt.Errorf("definition has no source table")
					}
					_, err := def.Pipeline(opts...)
					return err
				}()
				if err != nil {
					failed++
					fmt.Fprintf(out, "FAIL  %s: %v\n", def.Name, err)
					continue
				}
				fmt.Fprintf(out, "ok    %s\n", def.Name)
			}
			if failed > 0 {
				return fmt.Errorf("%d of %d definitions invalid", failed, len(defs))
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&all, "all", false, "Validate every shipped query")
	return cmd
}
