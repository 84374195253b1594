package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"

	"github.com/maltedev/listing-builder/internal/pipeline"
	"github.com/maltedev/listing-builder/internal/storage"
)

var renderFlags struct {
	dir   string
	watch bool
}

var renderCmd = &cobra.Command{
	Use:   "render",
	Short: "Render HTML pages for stored listing documents",
	Long: `Renders every *.json listing document in the output directory to a
*-generated.html page. With --watch, documents are re-rendered as they change.`,
	RunE: runRender,
}

func init() {
	renderCmd.Flags().StringVar(&renderFlags.dir, "dir", "", "directory of listing documents (default: output dir)")
	renderCmd.Flags().BoolVar(&renderFlags.watch, "watch", false, "keep running and re-render documents when they change")
	rootCmd.AddCommand(renderCmd)
}

func runRender(cmd *cobra.Command, args []string) error {
	dir := cfg.Paths.OutputDir
	if renderFlags.dir != "" {
		dir = renderFlags.dir
	}

	store, err := storage.NewArtifactStore(dir)
	if err != nil {
		return err
	}

	report, err := pipeline.RenderAll(store, logger)
	if err != nil {
		return err
	}
	cmd.Printf("Rendered %d listing(s), %d failed.\n", report.Rendered, report.Failed)

	if !renderFlags.watch {
		return nil
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cmd.Printf("Watching %s for changes...\n", store.Dir())
	return watchDocuments(ctx, store)
}

// watchDocuments re-renders each JSON document written into the store until
// ctx is done.
func watchDocuments(ctx context.Context, store *storage.ArtifactStore) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(store.Dir()); err != nil {
		return fmt.Errorf("failed to watch %s: %w", store.Dir(), err)
	}

	log := logger.With("component", "watch")
	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			if !pipeline.IsDocument(event.Name) {
				continue
			}
			out, err := pipeline.RenderFile(store, event.Name)
			if err != nil {
				log.Warn("failed to render document", "path", event.Name, "error", err)
				continue
			}
			log.Info("re-rendered listing", "path", out)
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			log.Error("watcher error", "error", err)
		}
	}
}
