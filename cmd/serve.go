package cmd

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/berginj/glovebrand/internal/app"
	"github.com/berginj/glovebrand/internal/config"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the API server, workers, and sweeper",
		Long: `Starts the full branding service: the HTTP API for job submission
and status, the queue worker pool that executes the pipeline, and the
background sweeper that recovers stale jobs. The process runs until it
receives SIGINT or SIGTERM, then shuts down gracefully.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(cfgFile)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			a, err := app.New(ctx, cfg)
			if err != nil {
				return fmt.Errorf("initialize services: %w", err)
			}
			defer a.Close()

			return a.Run(ctx)
		},
	}
}
