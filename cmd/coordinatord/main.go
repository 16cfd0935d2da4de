// Command coordinatord runs the swarm coordination service.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/axiomantic/coordinatord/internal/logger"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	var logLevel string

	cmd := &cobra.Command{
		Use:   "coordinatord",
		Short: "Swarm coordination service",
		Args:  cobra.NoArgs,
		PersistentPreRun: func(_ *cobra.Command, _ []string) {
			logger.SetLevel(logger.ParseLevel(logLevel))
		},
	}

	cmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "Log level (debug, info, warn, error)")

	cmd.AddCommand(
		newServeCommand(),
		newCleanupCommand(),
		newVersionCommand(),
	)
	return cmd
}
