package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jonesrussell/north-cloud/sru-harvester/internal/bootstrap"
)

func newCountCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "count",
		Short: "Print the number of records the SRU endpoint reports for the query",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			deps, err := opts.loadDeps()
			if err != nil {
				return err
			}

			total, err := bootstrap.SetupSource(deps, nil).Count(cmd.Context())
			if err != nil {
				return fmt.Errorf("count records: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%d\n", total)
			return nil
		},
	}
}
