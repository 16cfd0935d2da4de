package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/axiomantic/coordinatord/internal/config"
	"github.com/axiomantic/coordinatord/internal/gateway"
	"github.com/axiomantic/coordinatord/internal/logger"
	"github.com/axiomantic/coordinatord/internal/retry"
	"github.com/axiomantic/coordinatord/internal/store"
)

func newServeCommand() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the coordination server in the foreground",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			return runServe(configPath)
		},
	}

	cmd.Flags().StringVar(&configPath, "config", "", "Path to config file (defaults to COORD_HOME/config.json)")
	return cmd
}

func runServe(configPath string) error {
	paths := config.ResolveRuntimePaths()
	if configPath == "" {
		configPath = paths.ConfigPath
	}

	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return err
	}

	if cfg.Log.FilePath != "" {
		if err := logger.EnableFileLogging(cfg.Log.FilePath); err != nil {
			logger.WarnCF("coordinatord", "could not enable file logging", map[string]any{"error": err.Error()})
		}
	}
	logger.SetLevel(logger.ParseLevel(cfg.Log.Level))

	sm, err := store.Open(cfg.Store.Path)
	if err != nil {
		return err
	}
	defer sm.Close()

	retryPolicy := retry.RetryPolicy{
		Base:       time.Duration(cfg.Retry.BaseSeconds) * time.Second,
		Multiplier: cfg.Retry.Multiplier,
		MaxRetries: cfg.Retry.MaxRetries,
	}

	srv := gateway.NewServer(cfg.Server.Host, cfg.Server.Port, sm, retryPolicy)

	go runCleanupLoop(sm, cfg.Cleanup.IntervalHours, cfg.Cleanup.RetentionDays)

	logger.InfoCF("coordinatord", "coordination server starting", map[string]any{
		"host": cfg.Server.Host, "port": cfg.Server.Port, "db": cfg.Store.Path,
	})

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case <-sigCh:
		logger.Info("shutting down")
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(ctx)
	}
}

func runCleanupLoop(sm *store.StateManager, intervalHours, retentionDays int) {
	if intervalHours <= 0 {
		return
	}
	ticker := time.NewTicker(time.Duration(intervalHours) * time.Hour)
	defer ticker.Stop()

	for range ticker.C {
		affected, err := sm.CleanupOldSwarms(context.Background(), retentionDays)
		if err != nil {
			logger.ErrorCF("coordinatord", "cleanup sweep failed", map[string]any{"error": err.Error()})
			continue
		}
		if affected > 0 {
			logger.InfoCF("coordinatord", "cleanup sweep removed old swarms", map[string]any{"count": affected})
		}
	}
}
