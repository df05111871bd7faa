package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/berginj/glovebrand/internal/app"
	"github.com/berginj/glovebrand/internal/config"
)

func newSweepCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Run one sweep pass over stale jobs and exit",
		Long: `Runs a single reconciliation pass: stale queued jobs are re-enqueued
(up to the retry limit) and jobs stalled mid-pipeline are marked failed.
Useful for operators when the scheduled sweeper is disabled.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(cfgFile)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}

			a, err := app.New(cmd.Context(), cfg)
			if err != nil {
				return fmt.Errorf("initialize services: %w", err)
			}
			defer a.Close()

			if err := a.Sweep(cmd.Context()); err != nil {
				return fmt.Errorf("sweep: %w", err)
			}
			a.Logger().Info("sweep pass complete", zap.String("store", cfg.Store.Provider))
			return nil
		},
	}
}
