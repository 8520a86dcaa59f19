package cmd

import (
	"fmt"
	"io"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/jonesrussell/north-cloud/sru-harvester/internal/bootstrap"
	"github.com/jonesrussell/north-cloud/sru-harvester/internal/shard"
)

func newPublishCommand(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "publish [shard files...]",
		Short: "Upload shards that are on disk",
		Long: `Without arguments, upload every shard the manifest lists as not yet
published. With arguments, upload the given shard files, whether or not they
were published before.

Example:
  sru-harvester publish
  sru-harvester publish shards/shard_000001_000301.jsonl --store huggingface`,
	}
	cmd.Flags().String("store", "", "minio, huggingface or local (overrides publish.store)")

	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		deps, err := opts.loadDeps(changedFlag(cmd, "store", "publish.store"))
		if err != nil {
			return err
		}

		pub, err := bootstrap.SetupPublisher(deps.Config, deps.Logger, nil)
		if err != nil {
			return err
		}

		var records []shard.Record
		if len(args) == 0 {
			records, err = pub.PublishPending(cmd.Context())
			if err != nil {
				return fmt.Errorf("publish pending shards: %w", err)
			}
		} else {
			for _, path := range args {
				rec, pubErr := pub.PublishFile(cmd.Context(), path)
				if pubErr != nil {
					return fmt.Errorf("publish %s: %w", path, pubErr)
				}
				records = append(records, rec)
			}
		}

		if len(records) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "Nothing to publish")
			return nil
		}
		renderPublished(cmd.OutOrStdout(), records)
		return nil
	}

	return cmd
}

func renderPublished(out io.Writer, records []shard.Record) {
	t := table.NewWriter()
	t.SetOutputMirror(out)
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"Shard", "Documents", "Size", "Location"})
	for _, r := range records {
		t.AppendRow(table.Row{r.Name, r.Count, r.Size, r.Location})
	}
	t.Render()
}
