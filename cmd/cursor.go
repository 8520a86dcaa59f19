package cmd

import (
	"fmt"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/jonesrussell/north-cloud/sru-harvester/internal/bootstrap"
	"github.com/jonesrussell/north-cloud/sru-harvester/internal/cursor"
)

func newCursorCommand(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cursor",
		Short: "Inspect or reset the resume cursor",
	}
	cmd.AddCommand(newCursorShowCommand(opts))
	cmd.AddCommand(newCursorResetCommand(opts))
	return cmd
}

func newCursorShowCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Print the persisted start record",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			deps, err := opts.loadDeps()
			if err != nil {
				return err
			}

			cur, err := bootstrap.SetupCursor(cmd.Context(), &deps.Config.Cursor, deps.Logger)
			if err != nil {
				return err
			}
			defer func() { _ = cur.Close() }()

			offset, err := cur.Store.Load(cmd.Context())
			if err != nil {
				return fmt.Errorf("load cursor: %w", err)
			}

			location := deps.Config.Cursor.File
			if deps.Config.Cursor.Backend == cursor.BackendRedis {
				location = deps.Config.Cursor.Redis.Address + "/" + deps.Config.Cursor.Redis.Key
			}

			t := table.NewWriter()
			t.SetOutputMirror(cmd.OutOrStdout())
			t.SetStyle(table.StyleLight)
			t.AppendRows([]table.Row{
				{"Backend", deps.Config.Cursor.Backend},
				{"Location", location},
				{"Start record", offset},
			})
			t.Render()
			return nil
		},
	}
}

func newCursorResetCommand(opts *rootOptions) *cobra.Command {
	var to int

	cmd := &cobra.Command{
		Use:   "reset",
		Short: "Overwrite the persisted start record",
		Long: `Overwrite the persisted start record. Shard files and the manifest are left
untouched; shards regenerated for the same range replace the old files.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			deps, err := opts.loadDeps()
			if err != nil {
				return err
			}

			cur, err := bootstrap.SetupCursor(cmd.Context(), &deps.Config.Cursor, deps.Logger)
			if err != nil {
				return err
			}
			defer func() { _ = cur.Close() }()

			if err = cur.Store.Save(cmd.Context(), to); err != nil {
				return fmt.Errorf("reset cursor: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Cursor set to %d\n", to)
			return nil
		},
	}
	cmd.Flags().IntVar(&to, "to", cursor.Start, "start record to persist")
	return cmd
}
