package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/maltedev/listing-builder/internal/events"
	"github.com/maltedev/listing-builder/internal/listing"
	"github.com/maltedev/listing-builder/internal/storage"
)

var consumeFlags struct {
	name        string
	snapshotDir string
}

var consumeCmd = &cobra.Command{
	Use:   "consume",
	Short: "Scrape URLs requested on a Redis stream",
	Long: `Joins a consumer group on the request stream and runs every SCRAPE_REQUESTED
message (or message with a url field) as a batch. Each request writes its listings
to <output dir>/<message id>/.`,
	RunE: runConsume,
}

func init() {
	consumeCmd.Flags().StringVar(&consumeFlags.name, "name", "", "consumer name within the group (default: hostname)")
	consumeCmd.Flags().StringVar(&consumeFlags.snapshotDir, "snapshot-dir", "", "read saved pages from this directory instead of a live browser")
	rootCmd.AddCommand(consumeCmd)
}

func runConsume(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	paths := cfg.Paths
	if consumeFlags.snapshotDir != "" {
		paths.SnapshotDir = consumeFlags.snapshotDir
	}

	name := consumeFlags.name
	if name == "" {
		name, _ = os.Hostname()
	}

	tmpl, err := listing.LoadTemplate(paths.Template)
	if err != nil {
		return err
	}

	runner, _, cleanup, err := buildRunner(ctx, tmpl, paths, cfg.Scraper.RenderHTML)
	if err != nil {
		return err
	}
	defer cleanup()

	redisClient := newRedisClient()
	defer redisClient.Close()

	if err := redisClient.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("failed to connect to Redis: %w", err)
	}

	handle := func(ctx context.Context, id string, urls []string) error {
		store, err := storage.NewArtifactStore(filepath.Join(paths.OutputDir, id))
		if err != nil {
			return err
		}
		summary, err := runner.WithStore(store).Run(ctx, urls)
		if summary != nil {
			logger.Info("request finished",
				"id", id,
				"run_id", summary.RunID,
				"succeeded", summary.Succeeded,
				"failed", summary.Failed,
				"dir", store.Dir())
		}
		return err
	}

	consumer := events.NewConsumer(redisClient, handle, logger, events.ConsumerConfig{
		Stream: cfg.Redis.RequestStream,
		Group:  cfg.Redis.ConsumerGroup,
		Name:   name,
	})

	if err := consumer.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func newRedisClient() *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
}
