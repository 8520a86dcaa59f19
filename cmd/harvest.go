package cmd

import (
	"fmt"
	"io"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/jonesrussell/north-cloud/sru-harvester/internal/bootstrap"
	"github.com/jonesrussell/north-cloud/sru-harvester/internal/pipeline"
)

func newHarvestCommand(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "harvest",
		Short: "Run the harvest pipeline",
		Long: `Fetch SRU pages from the persisted cursor onward, write JSONL shards and
publish them. Ctrl-C stops after the current page with a consistent cursor;
a second Ctrl-C exits immediately.

Example:
  sru-harvester harvest --page-size 100 --shard-size 300 --publish-mode atEnd`,
		Args: cobra.NoArgs,
	}

	flags := cmd.Flags()
	flags.Int("page-size", 0, "records per SRU request (overrides source.page_size)")
	flags.Int("shard-size", 0, "documents per shard (overrides pipeline.shard_size)")
	flags.Int("max-pages", 0, "stop after this many fetches, 0 for no limit")
	flags.Duration("page-delay", 0, "pause between pages (overrides pipeline.page_delay)")
	flags.String("publish-mode", "", "perShard or atEnd (overrides pipeline.publish_mode)")
	flags.String("store", "", "minio, huggingface or local (overrides publish.store)")
	flags.Bool("serve", false, "start the status server (overrides server.enabled)")

	cmd.RunE = func(cmd *cobra.Command, _ []string) error {
		deps, err := opts.loadDeps(
			changedFlag(cmd, "page-size", "source.page_size"),
			changedFlag(cmd, "shard-size", "pipeline.shard_size"),
			changedFlag(cmd, "max-pages", "pipeline.max_pages"),
			changedFlag(cmd, "page-delay", "pipeline.page_delay"),
			changedFlag(cmd, "publish-mode", "pipeline.publish_mode"),
			changedFlag(cmd, "store", "publish.store"),
			changedFlag(cmd, "serve", "server.enabled"),
		)
		if err != nil {
			return err
		}

		h, err := bootstrap.SetupHarvest(cmd.Context(), deps, Version)
		if err != nil {
			return fmt.Errorf("failed to setup harvest: %w", err)
		}
		defer func() {
			if closeErr := h.Close(); closeErr != nil {
				deps.Logger.Warn("Failed to close cursor store", "error", closeErr)
			}
		}()

		result, runErr := bootstrap.RunUntilInterrupt(cmd.Context(), deps.Logger, h)
		if result != nil {
			renderResult(cmd.OutOrStdout(), result)
		}
		if runErr != nil {
			return fmt.Errorf("harvest failed: %w", runErr)
		}
		return nil
	}

	return cmd
}

// changedFlag binds a flag only when the user set it, so unset flags do not
// shadow file and environment values.
func changedFlag(cmd *cobra.Command, name, key string) flagBinding {
	f := cmd.Flags().Lookup(name)
	if f == nil || !f.Changed {
		return flagBinding{}
	}
	return flagBinding{key: key, flag: f}
}

func renderResult(out io.Writer, r *pipeline.Result) {
	t := table.NewWriter()
	t.SetOutputMirror(out)
	t.SetStyle(table.StyleLight)
	t.SetTitle("Harvest " + r.RunID)

	t.AppendRows([]table.Row{
		{"State", r.State},
		{"Cursor", r.Cursor},
		{"Pages", r.Pages},
		{"Records", r.Records},
		{"Documents", r.Documents},
		{"Dropped", r.Dropped},
		{"Shards", r.Shards},
		{"Published", r.Published},
	})
	t.Render()
}
