/*
Copyright © 2026 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/civictrack/apiserver/config"
	"github.com/civictrack/apiserver/internal/events"
	"github.com/civictrack/apiserver/internal/logging"
	"github.com/civictrack/apiserver/internal/mq"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

// eventsCmd groups commands for the complaint event stream.
var eventsCmd = &cobra.Command{
	Use:   "events",
	Short: "Inspect complaint lifecycle events",
}

var eventsTailCmd = &cobra.Command{
	Use:   "tail",
	Short: "Print complaint events as they are published",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.LoadConfig()
		if err != nil {
			return err
		}
		logger := logging.New(cfg.LogLevel, cfg.LogFormat)

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		queue, err := mq.Open(ctx, cfg.MQ)
		if err != nil {
			return err
		}
		if queue == nil {
			return errors.New("MQ_BACKEND is not configured")
		}
		defer queue.Close()

		enc := json.NewEncoder(cmd.OutOrStdout())
		logger.WithField("channel", cfg.MQ.Channel).Info("tailing events")
		err = queue.Subscribe(ctx, cfg.MQ.Channel, func(ctx context.Context, msg mq.Message) error {
			event, err := events.Decode(msg)
			if err != nil {
				// Ack undecodable messages so they are not redelivered.
				logger.WithError(err).WithFields(logrus.Fields{"id": msg.ID}).Warn("skipping message")
				return nil
			}
			return enc.Encode(event)
		})
		if err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(eventsCmd)
	eventsCmd.AddCommand(eventsTailCmd)
}
