package cmd

import (
	"fmt"
	"io"
	"path/filepath"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/jonesrussell/north-cloud/sru-harvester/internal/shard"
)

const (
	statusPending   = "pending"
	statusUntracked = "untracked"
)

func newShardsCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "shards",
		Short: "List local shard files and their publish status",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			deps, err := opts.loadDeps()
			if err != nil {
				return err
			}

			dir := deps.Config.Pipeline.ShardDir
			shards, err := shard.Scan(dir)
			if err != nil {
				return fmt.Errorf("list shards: %w", err)
			}
			manifest, err := shard.LoadManifest(filepath.Join(dir, shard.ManifestFile))
			if err != nil {
				return fmt.Errorf("load manifest: %w", err)
			}

			if len(shards) == 0 {
				fmt.Fprintf(cmd.OutOrStdout(), "No shards in %s\n", dir)
				return nil
			}
			renderShards(cmd.OutOrStdout(), shards, manifest)
			return nil
		},
	}
}

func renderShards(out io.Writer, shards []*shard.Shard, manifest *shard.Manifest) {
	t := table.NewWriter()
	t.SetOutputMirror(out)
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"Shard", "Range", "Documents", "Size", "Status", "Location"})

	published := 0
	for _, s := range shards {
		docs, status, location := "-", statusUntracked, ""
		if rec, ok := manifest.Get(s.Name); ok {
			docs = fmt.Sprint(rec.Count)
			status = statusPending
			if rec.Published() {
				published++
				status = rec.PublishedAt.Local().Format(time.DateTime)
				location = rec.Location
			}
		}
		t.AppendRow(table.Row{
			s.Name,
			fmt.Sprintf("[%d, %d)", s.First, s.End),
			docs,
			s.Size,
			status,
			location,
		})
	}

	t.AppendFooter(table.Row{"Total", "", "", "", fmt.Sprintf("%d/%d published", published, len(shards)), ""})
	t.Render()
}
