package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/maltedev/listing-builder/internal/api"
	"github.com/maltedev/listing-builder/internal/database"
	"github.com/maltedev/listing-builder/internal/storage"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve stored listings and render previews over HTTP",
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := storage.NewArtifactStore(cfg.Paths.OutputDir)
	if err != nil {
		return err
	}

	var (
		stats   api.OutboxStats
		history api.ListingHistory
	)
	if cfg.Database.Enabled {
		db, err := openDB(ctx)
		if err != nil {
			return err
		}
		defer db.Close()
		stats = database.NewOutboxRepository(db)
		history = database.NewListingRepository(db)
	}

	server := &http.Server{
		Addr:         cfg.Server.Address(),
		Handler:      api.NewRouter(api.NewHandlers(store, stats, history, logger)),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server starting", "addr", server.Addr, "dir", store.Dir())
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		logger.Error("server failed", "error", err)
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown failed", "error", err)
		return err
	}

	logger.Info("server stopped")
	return nil
}
