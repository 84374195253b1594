package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/maltedev/listing-builder/internal/browser"
	"github.com/maltedev/listing-builder/internal/config"
	"github.com/maltedev/listing-builder/internal/dom"
	"github.com/maltedev/listing-builder/internal/events"
	"github.com/maltedev/listing-builder/internal/listing"
	"github.com/maltedev/listing-builder/internal/pipeline"
	"github.com/maltedev/listing-builder/internal/ratelimit"
	"github.com/maltedev/listing-builder/internal/scraper"
	"github.com/maltedev/listing-builder/internal/storage"
)

var scrapeFlags struct {
	input       string
	urls        []string
	template    string
	out         string
	summary     string
	snapshotDir string
	render      bool
}

var scrapeCmd = &cobra.Command{
	Use:   "scrape [url...]",
	Short: "Scrape product pages and write listing documents",
	Long: `Reads product URLs from the arguments, --url flags or the input CSV, extracts
each page with its site adapter and writes product_<n>.json (and the rendered
page) to the output directory. A CSV summary of every URL is written at the end.`,
	RunE: runScrape,
}

func init() {
	f := scrapeCmd.Flags()
	f.StringVar(&scrapeFlags.input, "input", "", "CSV file with a url column, or a plain list of URLs")
	f.StringSliceVar(&scrapeFlags.urls, "url", nil, "product URL to scrape (repeatable)")
	f.StringVar(&scrapeFlags.template, "template", "", "listing template JSON")
	f.StringVar(&scrapeFlags.out, "out", "", "output directory for listing documents")
	f.StringVar(&scrapeFlags.summary, "summary", "", "summary CSV path")
	f.StringVar(&scrapeFlags.snapshotDir, "snapshot-dir", "", "read saved pages from this directory instead of a live browser")
	f.BoolVar(&scrapeFlags.render, "render", true, "render HTML next to each document")
	rootCmd.AddCommand(scrapeCmd)
}

func runScrape(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	paths := cfg.Paths
	flags := cmd.Flags()
	if flags.Changed("input") {
		paths.Input = scrapeFlags.input
	}
	if flags.Changed("template") {
		paths.Template = scrapeFlags.template
	}
	if flags.Changed("out") {
		paths.OutputDir = scrapeFlags.out
	}
	if flags.Changed("summary") {
		paths.Summary = scrapeFlags.summary
	}
	if flags.Changed("snapshot-dir") {
		paths.SnapshotDir = scrapeFlags.snapshotDir
	}
	renderHTML := cfg.Scraper.RenderHTML
	if flags.Changed("render") {
		renderHTML = scrapeFlags.render
	}

	tmpl, err := listing.LoadTemplate(paths.Template)
	if err != nil {
		return err
	}

	urls := append(append([]string{}, args...), scrapeFlags.urls...)
	if len(urls) == 0 {
		urls, err = storage.ReadURLs(paths.Input)
		if errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("%w: %s does not exist", pipeline.ErrNoURLs, paths.Input)
		}
		if err != nil {
			return err
		}
	}
	if len(urls) == 0 {
		return pipeline.ErrNoURLs
	}

	runner, store, cleanup, err := buildRunner(ctx, tmpl, paths, renderHTML)
	if err != nil {
		return err
	}
	defer cleanup()

	summary, runErr := runner.Run(ctx, urls)
	if summary == nil {
		return runErr
	}

	if err := storage.WriteSummary(paths.Summary, summary.Results); err != nil {
		logger.Error("failed to write summary", "path", paths.Summary, "error", err)
	}

	cmd.Printf("Processed %d of %d URL(s): %d succeeded, %d failed.\n",
		len(summary.Results), len(urls), summary.Succeeded, summary.Failed)
	cmd.Printf("Listings written to %s, summary at %s\n", store.Dir(), paths.Summary)

	return runErr
}

// buildRunner wires the page source, artifact store and optional publisher
// into a batch runner. cleanup releases the browser and database.
func buildRunner(ctx context.Context, tmpl listing.Document, paths config.PathsConfig, renderHTML bool) (*pipeline.Runner, *storage.ArtifactStore, func(), error) {
	store, err := storage.NewArtifactStore(paths.OutputDir)
	if err != nil {
		return nil, nil, nil, err
	}

	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	var open pipeline.PageOpener
	if paths.SnapshotDir != "" {
		logger.Info("using saved pages", "dir", paths.SnapshotDir)
		loader := storage.SnapshotLoader(paths.SnapshotDir)
		open = func() (dom.Page, error) {
			return dom.NewSnapshotPage(loader), nil
		}
	} else {
		b, err := browser.New(browserOptions(), logger)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("failed to initialize browser: %w", err)
		}
		closers = append(closers, func() {
			if err := b.Close(); err != nil {
				logger.Error("failed to close browser", "error", err)
			}
		})
		open = func() (dom.Page, error) {
			p, err := b.OpenPage()
			if err != nil {
				return nil, err
			}
			return p, nil
		}
	}

	var publisher pipeline.Publisher
	if cfg.Database.Enabled {
		db, err := openDB(ctx)
		if err != nil {
			cleanup()
			return nil, nil, nil, err
		}
		closers = append(closers, db.Close)
		publisher = events.NewPublisher(db, cfg.Redis.Stream, logger)
	}

	runner, err := pipeline.NewRunner(pipeline.Config{
		Template:  tmpl,
		Store:     store,
		Open:      open,
		Publisher: publisher,
		Scraper: scraper.Options{
			ReadyTimeout: cfg.Scraper.ReadyTimeout,
			Harvest: scraper.HarvestPolicy{
				MaxClicks: cfg.Scraper.MaxClicks,
				MaxStalls: cfg.Scraper.MaxStalls,
			},
			Pacer:  ratelimit.NewJitter(cfg.Scraper.PauseMin, cfg.Scraper.PauseMax),
			Logger: logger,
		},
		RenderHTML: renderHTML,
		MaxRetries: cfg.Scraper.MaxRetries,
		Logger:     logger,
	})
	if err != nil {
		cleanup()
		return nil, nil, nil, err
	}

	return runner, store, cleanup, nil
}

func browserOptions() *browser.Options {
	opts := browser.DefaultOptions()
	opts.Headless = cfg.Browser.Headless
	opts.Timeout = cfg.Browser.Timeout
	opts.UserAgent = cfg.Browser.UserAgent
	opts.ViewportWidth = cfg.Browser.ViewportWidth
	opts.ViewportHeight = cfg.Browser.ViewportHeight
	opts.AcceptLanguage = cfg.Browser.AcceptLanguage
	opts.TimezoneID = cfg.Browser.TimezoneID
	opts.Locale = cfg.Browser.Locale
	opts.NavigationRetries = cfg.Browser.NavRetries
	return opts
}
