/*
Copyright © 2026 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/civictrack/apiserver/config"
	"github.com/civictrack/apiserver/internal/db"
	"github.com/civictrack/apiserver/internal/logging"
	"github.com/civictrack/apiserver/internal/server"
	"github.com/spf13/cobra"
)

const shutdownTimeout = 15 * time.Second

var serverMigrate bool

// serverCmd represents the server command
var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "Starts the complaint tracker API server",
	Long: `Starts the complaint tracker API server. Usage:

	civictrack server [--migrate]
`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.LoadConfig()
		if err != nil {
			return err
		}
		logger := logging.New(cfg.LogLevel, cfg.LogFormat)

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		if serverMigrate {
			if err := db.MigrateUp(cfg.Database); err != nil {
				return err
			}
			logger.Info("migrations applied")
		}

		srv, err := server.New(ctx, cfg, logger)
		if err != nil {
			return fmt.Errorf("failed to start server: %w", err)
		}

		errCh := make(chan error, 1)
		go func() {
			errCh <- srv.Start()
		}()

		select {
		case err := <-errCh:
			if err != nil {
				return fmt.Errorf("server error: %w", err)
			}
			return nil
		case <-ctx.Done():
		}

		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown: %w", err)
		}
		return <-errCh
	},
}

func init() {
	rootCmd.AddCommand(serverCmd)

	serverCmd.Flags().BoolVar(&serverMigrate, "migrate", false, "apply pending migrations before serving")
}
