package scraper

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/maltedev/listing-builder/internal/dom"
	"github.com/maltedev/listing-builder/internal/models"
	"github.com/maltedev/listing-builder/internal/ratelimit"
	"github.com/maltedev/listing-builder/internal/site"
)

var (
	ErrNavigation           = errors.New("page did not reach ready state")
	ErrRecommendationWidget = errors.New("content belongs to a recommendation widget")
	ErrEmpty                = errors.New("strategy produced no value")
)

// Adapter extracts a draft from one retailer's product page. Extraction is
// best effort: a missing field is left empty and never fails the call. The
// only error returned is context cancellation.
type Adapter interface {
	Site() site.Site
	Extract(ctx context.Context, page dom.Page, url string) (models.Draft, error)
}

// Pacer is the pause taken between gallery interactions.
type Pacer interface {
	Wait(ctx context.Context) error
}

type Options struct {
	ReadyTimeout time.Duration
	Harvest      HarvestPolicy
	Pacer        Pacer
	Logger       *slog.Logger
}

func DefaultOptions() Options {
	return Options{
		ReadyTimeout: 30 * time.Second,
		Harvest:      DefaultHarvestPolicy(),
		Pacer:        ratelimit.NewJitter(time.Second, 2*time.Second),
		Logger:       slog.Default(),
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.ReadyTimeout <= 0 {
		o.ReadyTimeout = d.ReadyTimeout
	}
	if o.Harvest.MaxClicks <= 0 {
		o.Harvest.MaxClicks = d.Harvest.MaxClicks
	}
	if o.Harvest.MaxStalls <= 0 {
		o.Harvest.MaxStalls = d.Harvest.MaxStalls
	}
	if o.Pacer == nil {
		o.Pacer = d.Pacer
	}
	if o.Logger == nil {
		o.Logger = d.Logger
	}
	return o
}

// ForSite returns the adapter for s.
func ForSite(s site.Site, opts Options) (Adapter, error) {
	opts = opts.withDefaults()
	switch s.ID {
	case site.Argos:
		return NewArgosAdapter(opts), nil
	case site.Very:
		return NewVeryAdapter(opts), nil
	case site.CheapFurnitureWarehouse:
		return NewCFWAdapter(opts), nil
	}
	return nil, fmt.Errorf("%w: no adapter for %q", site.ErrUnsupportedSite, s.ID)
}

// base carries what every adapter needs to open a page.
type base struct {
	site         site.Site
	ready        dom.Locator
	readyTimeout time.Duration
	logger       *slog.Logger
}

func newBase(id site.ID, ready dom.Locator, opts Options) base {
	s, _ := site.Lookup(id)
	return base{
		site:         s,
		ready:        ready,
		readyTimeout: opts.ReadyTimeout,
		logger:       opts.Logger.With("component", "scraper", "site", string(id)),
	}
}

func (b base) Site() site.Site {
	return b.site
}

// open navigates and waits for the ready marker. A page that never becomes
// ready is reported as partial; extraction still runs against it.
func (b base) open(ctx context.Context, page dom.Page, url string) (bool, error) {
	if err := page.Navigate(ctx, url); err != nil {
		if ctx.Err() != nil {
			return false, ctx.Err()
		}
		b.logger.Warn("navigation failed, continuing with partial page",
			"url", url,
			"error", fmt.Errorf("%w: %v", ErrNavigation, err))
		return true, nil
	}

	if err := page.WaitUntil(ctx, dom.Present(b.ready), b.readyTimeout); err != nil {
		if ctx.Err() != nil {
			return false, ctx.Err()
		}
		b.logger.Warn("page not ready, continuing with partial page",
			"url", url,
			"ready", string(b.ready),
			"error", fmt.Errorf("%w: %v", ErrNavigation, err))
		return true, nil
	}

	return false, nil
}

// media is the image and video URLs found by one strategy.
type media struct {
	Images []string
	Videos []string
}

func (m media) empty() bool {
	return len(m.Images) == 0 && len(m.Videos) == 0
}

// extract runs the three field chains in order and assembles the draft.
func (b base) extract(ctx context.Context, page dom.Page, url string, title, description Chain[string], gallery Chain[media]) (models.Draft, error) {
	start := time.Now()
	partial, err := b.open(ctx, page, url)
	if err != nil {
		return models.Draft{}, err
	}

	draft := models.Draft{Partial: partial}
	draft.Title, _ = title.Resolve(ctx, page, b.logger)

	m, _ := gallery.Resolve(ctx, page, b.logger)
	draft.ImageURLs = m.Images
	draft.VideoURLs = m.Videos

	draft.DescriptionHTML, _ = description.Resolve(ctx, page, b.logger)

	if err := ctx.Err(); err != nil {
		return models.Draft{}, err
	}

	b.logger.Info("extracted product",
		"url", url,
		"has_title", draft.Title != "",
		"images", len(draft.ImageURLs),
		"videos", len(draft.VideoURLs),
		"description_chars", len(draft.DescriptionHTML),
		"partial", partial,
		"duration", time.Since(start))

	return draft, nil
}
