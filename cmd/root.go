// Package cmd defines the CLI commands for the glovebrand executable.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var cfgFile string

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "glovebrand",
		Short: "Branding pipeline for team glove design proposals",
		Long: `glovebrand turns a team website into a glove design proposal.
It crawls the site for a logo and brand colors, generates deterministic
design variants, and can optionally autofill a third-party glove
customization wizard with the derived palette.`,
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (environment variables override it)")

	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newSweepCmd())

	return cmd
}

// Execute runs the root command.
func Execute() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
