package cmd

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/acmecorp/supportbot/api"
	"github.com/acmecorp/supportbot/internal/app"
	"github.com/acmecorp/supportbot/internal/config"
	"github.com/acmecorp/supportbot/internal/log"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API server",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe(cmd.Context())
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

// runServe initializes the application and serves the HTTP API until the
// process receives SIGINT or SIGTERM.
func runServe(parent context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger := log.New(log.Config{
		Level: log.ParseLevel(cfg.LogLevel),
		JSON:  cfg.LogJSON,
	})

	ctx, cancel := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	logger.Info("starting supportbot",
		"version", AppVersion,
		"provider", cfg.Provider,
		"model", cfg.ModelName,
		"storage", cfg.Storage,
	)

	a, err := app.Setup(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("initializing application: %w", err)
	}
	defer func() {
		if closeErr := a.Close(); closeErr != nil {
			logger.Warn("shutdown error", "error", closeErr)
		}
	}()

	srv := api.NewServer(a.Engine, a.Sessions, a.Pool, logger)
	if err := srv.Run(ctx, cfg.Addr); err != nil {
		return fmt.Errorf("HTTP server: %w", err)
	}
	return nil
}
