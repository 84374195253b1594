// Package pipeline runs a batch of product URLs through classification,
// extraction, merge and artifact writing.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/maltedev/listing-builder/internal/dom"
	"github.com/maltedev/listing-builder/internal/events"
	"github.com/maltedev/listing-builder/internal/listing"
	"github.com/maltedev/listing-builder/internal/models"
	"github.com/maltedev/listing-builder/internal/queue"
	"github.com/maltedev/listing-builder/internal/ratelimit"
	"github.com/maltedev/listing-builder/internal/scraper"
	"github.com/maltedev/listing-builder/internal/site"
	"github.com/maltedev/listing-builder/internal/storage"
)

var (
	ErrNoURLs    = errors.New("no input URLs")
	ErrNoContent = errors.New("nothing could be extracted from the page")
)

// PageOpener hands out a fresh page for one product URL. The runner closes it.
type PageOpener func() (dom.Page, error)

// Publisher receives every listing that was written successfully.
type Publisher interface {
	PublishListingGenerated(ctx context.Context, g events.Generated) (uuid.UUID, error)
}

type Config struct {
	Template   listing.Document
	Store      *storage.ArtifactStore
	Open       PageOpener
	Publisher  Publisher
	Scraper    scraper.Options
	RenderHTML bool
	// MaxRetries is how many extra attempts a URL gets when its page could
	// not be opened or loaded to nothing.
	MaxRetries int
	// Sleeper replaces the pause between URLs, for tests.
	Sleeper ratelimit.Sleeper
	Logger  *slog.Logger
}

type Runner struct {
	template   listing.Document
	store      *storage.ArtifactStore
	open       PageOpener
	publisher  Publisher
	opts       scraper.Options
	renderHTML bool
	maxRetries int
	sleeper    ratelimit.Sleeper

	adapters map[site.ID]scraper.Adapter
	limiters map[site.ID]*ratelimit.AdaptiveRateLimiter
	logger   *slog.Logger
}

func NewRunner(cfg Config) (*Runner, error) {
	if cfg.Template == nil {
		return nil, fmt.Errorf("runner: %w", listing.ErrTemplateMissing)
	}
	if cfg.Store == nil {
		return nil, errors.New("runner: artifact store is required")
	}
	if cfg.Open == nil {
		return nil, errors.New("runner: page opener is required")
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Scraper.Logger == nil {
		cfg.Scraper.Logger = cfg.Logger
	}

	return &Runner{
		template:   cfg.Template,
		store:      cfg.Store,
		open:       cfg.Open,
		publisher:  cfg.Publisher,
		opts:       cfg.Scraper,
		renderHTML: cfg.RenderHTML,
		maxRetries: cfg.MaxRetries,
		sleeper:    cfg.Sleeper,
		adapters:   make(map[site.ID]scraper.Adapter),
		limiters:   make(map[site.ID]*ratelimit.AdaptiveRateLimiter),
		logger:     cfg.Logger.With("component", "pipeline"),
	}, nil
}

// WithStore returns a runner that writes artifacts to store and shares
// everything else, including per-site pacing, with r.
func (r *Runner) WithStore(store *storage.ArtifactStore) *Runner {
	c := *r
	c.store = store
	return &c
}

// Summary is the outcome of one batch.
type Summary struct {
	RunID     uuid.UUID
	Results   []models.ScrapeResult
	Succeeded int
	Failed    int
	Started   time.Time
	Duration  time.Duration
}

// Run processes urls in order. Per-URL failures are recorded in the summary;
// the returned error is ErrNoURLs or the context error when the batch was
// interrupted, in which case the summary covers the URLs finished so far.
func (r *Runner) Run(ctx context.Context, urls []string) (*Summary, error) {
	if len(urls) == 0 {
		return nil, ErrNoURLs
	}

	summary := &Summary{RunID: uuid.New(), Started: time.Now()}
	logger := r.logger.With("run_id", summary.RunID)
	logger.Info("batch started", "urls", len(urls))

	q := queue.NewInMemoryQueue()
	defer q.Close()
	for i, u := range urls {
		if err := q.Push(&queue.Task{ID: uuid.NewString(), Index: i + 1, URL: u, CreatedAt: time.Now()}); err != nil {
			return nil, fmt.Errorf("enqueue %s: %w", u, err)
		}
	}

	var runErr error
	for {
		if err := ctx.Err(); err != nil {
			runErr = err
			break
		}

		task, err := q.TryPop()
		if errors.Is(err, queue.ErrQueueEmpty) || errors.Is(err, queue.ErrQueueClosed) {
			break
		}

		res, retry := r.process(ctx, summary.RunID, task, logger)
		if retry && task.Retries < r.maxRetries && ctx.Err() == nil {
			task.Retries++
			logger.Warn("retrying url later", "index", task.Index, "url", res.URL, "attempt", task.Retries+1)
			if err := q.Push(task); err == nil {
				continue
			}
		}

		summary.Results = append(summary.Results, res)
		if res.Success {
			summary.Succeeded++
		} else {
			summary.Failed++
		}

		if res.Site != "" && q.Size() > 0 {
			if err := r.pause(ctx, site.ID(res.Site), res.Success); err != nil {
				runErr = err
				break
			}
		}
	}

	sort.SliceStable(summary.Results, func(i, j int) bool {
		return summary.Results[i].Index < summary.Results[j].Index
	})
	summary.Duration = time.Since(summary.Started)

	logger.Info("batch finished",
		"succeeded", summary.Succeeded,
		"failed", summary.Failed,
		"unprocessed", len(urls)-len(summary.Results),
		"duration", summary.Duration)

	return summary, runErr
}

// process handles one task. retry reports whether a later attempt could help.
func (r *Runner) process(ctx context.Context, runID uuid.UUID, task *queue.Task, logger *slog.Logger) (res models.ScrapeResult, retry bool) {
	url := site.Normalize(task.URL)
	res = models.ScrapeResult{Index: task.Index, URL: url}
	logger = logger.With("index", task.Index, "url", url)

	defer func() {
		if p := recover(); p != nil {
			logger.Error("panic while processing url", "panic", p)
			res.Success = false
			res.Error = models.NewError(models.ErrCodeScrapeFailed, url, fmt.Errorf("panic: %v", p))
			retry = false
		}
	}()

	s, err := site.Classify(url)
	if err != nil {
		logger.Warn("skipping unsupported url", "error", err)
		res.Error = models.NewError(models.ErrCodeUnsupportedSite, url, err)
		return res, false
	}
	res.Site = string(s.ID)

	adapter, err := r.adapterFor(s)
	if err != nil {
		res.Error = models.NewError(models.ErrCodeUnsupportedSite, url, err)
		return res, false
	}

	page, err := r.open()
	if err != nil {
		logger.Error("failed to open page", "error", err)
		res.Error = models.NewError(models.ErrCodeScrapeFailed, url, err)
		return res, true
	}
	defer func() {
		if err := page.Close(); err != nil {
			logger.Debug("failed to close page", "error", err)
		}
	}()

	draft, err := adapter.Extract(ctx, page, url)
	if err != nil {
		res.Error = models.NewError(models.ErrCodeScrapeFailed, url, err)
		return res, false
	}

	rec := models.NewRecord(url, draft)
	res.Partial = draft.Partial
	empty := rec.Empty()
	if empty {
		logger.Warn("no content extracted", "partial", draft.Partial)
		res.Error = models.NewError(models.ErrCodeScrapeFailed, url, ErrNoContent)
		if draft.Partial && task.Retries < r.maxRetries {
			return res, true
		}
	} else {
		for _, problem := range rec.Validate() {
			logger.Warn("incomplete record", "problem", problem)
		}
	}
	res.Record = &rec

	doc := listing.Merge(r.template, rec)
	path, err := r.store.WriteDocument(task.Index, doc)
	if err != nil {
		logger.Error("failed to write document", "error", err)
		res.Error = models.NewError(models.ErrCodeArtifactWrite, url, err)
		return res, false
	}
	res.ArtifactPath = path

	if r.renderHTML {
		if _, err := RenderFile(r.store, path); err != nil {
			logger.Warn("failed to render listing page", "path", path, "error", err)
		}
	}

	// an empty listing keeps its numbered slot but is neither published nor a success
	if empty {
		logger.Info("empty listing written", "site", res.Site, "path", path)
		return res, false
	}

	if r.publisher != nil {
		id, err := r.publisher.PublishListingGenerated(ctx, events.Generated{
			RunID:        runID,
			Index:        task.Index,
			Site:         res.Site,
			Record:       rec,
			Document:     doc,
			ArtifactPath: path,
			Partial:      draft.Partial,
		})
		if err != nil {
			logger.Error("failed to publish listing", "error", err)
		} else {
			logger.Debug("listing published", "listing_id", id)
		}
	}

	res.Success = true
	logger.Info("listing written",
		"site", res.Site,
		"path", path,
		"images", len(rec.ImageURLs),
		"partial", draft.Partial)
	return res, false
}

func (r *Runner) adapterFor(s site.Site) (scraper.Adapter, error) {
	if a, ok := r.adapters[s.ID]; ok {
		return a, nil
	}
	a, err := scraper.ForSite(s, r.opts)
	if err != nil {
		return nil, err
	}
	r.adapters[s.ID] = a
	return a, nil
}

// pause waits out the site's polite delay, which widens after repeated
// failures.
func (r *Runner) pause(ctx context.Context, id site.ID, ok bool) error {
	l, found := r.limiters[id]
	if !found {
		s, _ := site.Lookup(id)
		l = ratelimit.NewAdaptiveRateLimiter(s.MinDelay, s.MaxDelay)
		if r.sleeper != nil {
			l.WithSleeper(r.sleeper)
		}
		r.limiters[id] = l
	}

	if ok {
		l.RecordSuccess()
	} else {
		before, _ := l.Delay()
		l.RecordError()
		if after, max := l.Delay(); after > before {
			r.logger.Warn("slowing down after repeated failures", "site", id, "min_delay", after, "max_delay", max)
		}
	}
	return l.Wait(ctx)
}
