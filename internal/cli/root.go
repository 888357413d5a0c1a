// Package cli defines the harvester's command line interface.
package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var cfgFile string

// NewRootCmd creates and configures the root command.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "harvester",
		Short: "Harvests geophysical dataset metadata into a searchable catalog",
		Long: `harvester crawls dataset repositories (FTP and HTTP directory
listings, OpenDAP and Thredds catalogs, local filesystems and paginated
search APIs), normalizes the harvested metadata and writes it to a
Postgres catalog. Failed ingestions are persisted on disk and replayed
with exponential backoff.`,
		SilenceUsage: true,
	}
	cmd.PersistentFlags().StringVar(&cfgFile, "config", "",
		"config file (default: environment variables and built-in defaults)")
	cmd.AddCommand(newHarvestCmd(), newRecoverCmd(), newServeCmd())
	return cmd
}

// Execute runs the CLI with signal-aware cancellation. A first
// interrupt cancels running harvests so their state is captured; the
// process exits non-zero when a command fails.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := NewRootCmd().ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}
