// Package cmd implements the command-line interface for the SRU harvester.
// It provides the root command and the harvest, publish, shards, cursor,
// count and config subcommands.
package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/jonesrussell/north-cloud/sru-harvester/internal/bootstrap"
)

// Version is set at build time with -ldflags "-X .../cmd.Version=...".
var Version = "dev"

// rootOptions holds the global flags.
type rootOptions struct {
	// cfgFile holds the path to the configuration file.
	cfgFile string
	// debug enables debug logging for all commands.
	debug bool
}

// flagBinding maps a command flag onto a config key.
type flagBinding struct {
	key  string
	flag *pflag.Flag
}

// loadDeps loads configuration with the given flags bound over file and
// environment values, and creates the logger.
func (o *rootOptions) loadDeps(bindings ...flagBinding) (*bootstrap.CommandDeps, error) {
	v := viper.New()
	for _, b := range bindings {
		if b.flag == nil {
			continue
		}
		if err := v.BindPFlag(b.key, b.flag); err != nil {
			return nil, fmt.Errorf("failed to bind %s flag: %w", b.flag.Name, err)
		}
	}

	deps, err := bootstrap.NewCommandDeps(v, bootstrap.Options{
		ConfigFile: o.cfgFile,
		Debug:      o.debug,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get dependencies: %w", err)
	}
	return deps, nil
}

// NewRootCommand builds the command tree.
func NewRootCommand() *cobra.Command {
	opts := &rootOptions{}

	rootCmd := &cobra.Command{
		Use:   "sru-harvester",
		Short: "Harvest SRU records into JSONL shards and publish them",
		Long: `sru-harvester pages through an SRU 2.0 endpoint, normalizes each record
into a {URL, Content, Source} document, writes fixed-size JSONL shards and
uploads them to MinIO, a Hugging Face dataset or a local directory.

A durable cursor makes runs resumable: an interrupted harvest continues from
the first record that is not yet in a shard file.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmd.Help()
		},
	}

	rootCmd.PersistentFlags().StringVar(
		&opts.cfgFile,
		"config",
		"",
		"config file (default is ./config.yaml or ./config/config.yaml)",
	)
	rootCmd.PersistentFlags().BoolVar(&opts.debug, "debug", false, "enable debug logging")

	rootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print the version number",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "sru-harvester version %s\n", Version)
		},
	})

	rootCmd.AddCommand(newHarvestCommand(opts))
	rootCmd.AddCommand(newPublishCommand(opts))
	rootCmd.AddCommand(newShardsCommand(opts))
	rootCmd.AddCommand(newCursorCommand(opts))
	rootCmd.AddCommand(newCountCommand(opts))
	rootCmd.AddCommand(newConfigCommand(opts))

	return rootCmd
}

// Execute runs the root command.
func Execute() error {
	return NewRootCommand().ExecuteContext(context.Background())
}
