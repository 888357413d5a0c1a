package cli

import (
	"github.com/spf13/cobra"

	"github.com/metocean/harvester/internal/recovery"
)

func newRecoverCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "recover",
		Short: "Replays the persisted failed-ingestion batches",
		Long: `Replays every batch under the recovery directory, retrying with
exponential backoff. The command fails when batches remain after the
last pass.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			return recovery.NewRunner(a.cfg.Recovery.Dir, a.replayer(), a.logger).Run(cmd.Context())
		},
	}
}
