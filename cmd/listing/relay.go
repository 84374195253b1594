package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/maltedev/listing-builder/internal/database"
)

var relayOnce bool

var relayCmd = &cobra.Command{
	Use:   "relay",
	Short: "Forward LISTING_GENERATED events from the outbox to Redis",
	RunE:  runRelay,
}

func init() {
	relayCmd.Flags().BoolVar(&relayOnce, "once", false, "relay everything pending and exit")
	rootCmd.AddCommand(relayCmd)
}

func runRelay(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := openDB(ctx)
	if err != nil {
		return err
	}
	defer db.Close()

	redisClient := newRedisClient()
	defer redisClient.Close()

	if err := redisClient.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("failed to connect to Redis: %w", err)
	}

	relay := database.NewRelay(database.NewOutboxRepository(db), redisClient, logger, database.RelayConfig{
		PollInterval: cfg.Redis.RelayInterval,
		BatchSize:    cfg.Redis.RelayBatch,
		MaxLen:       int64(cfg.Redis.StreamMaxLen),
	})

	if relayOnce {
		n, err := relay.Drain(ctx)
		cmd.Printf("Relayed %d event(s).\n", n)
		return err
	}

	if err := relay.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
