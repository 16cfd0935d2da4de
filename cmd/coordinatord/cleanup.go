package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/axiomantic/coordinatord/internal/config"
	"github.com/axiomantic/coordinatord/internal/store"
)

func newCleanupCommand() *cobra.Command {
	var configPath string
	var retentionDays int

	cmd := &cobra.Command{
		Use:   "cleanup",
		Short: "Delete swarms older than the retention window and exit",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			return runCleanup(configPath, retentionDays)
		},
	}

	cmd.Flags().StringVar(&configPath, "config", "", "Path to config file (defaults to COORD_HOME/config.json)")
	cmd.Flags().IntVar(&retentionDays, "retention-days", 0, "Override the configured retention window in days (0 = use config)")
	return cmd
}

func runCleanup(configPath string, retentionDays int) error {
	paths := config.ResolveRuntimePaths()
	if configPath == "" {
		configPath = paths.ConfigPath
	}

	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return err
	}
	if retentionDays <= 0 {
		retentionDays = cfg.Cleanup.RetentionDays
	}

	sm, err := store.Open(cfg.Store.Path)
	if err != nil {
		return err
	}
	defer sm.Close()

	affected, err := sm.CleanupOldSwarms(context.Background(), retentionDays)
	if err != nil {
		return err
	}

	fmt.Printf("removed %d swarm(s) older than %d day(s)\n", affected, retentionDays)
	return nil
}
