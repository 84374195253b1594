package scraper

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/maltedev/listing-builder/internal/dom"
	"github.com/maltedev/listing-builder/internal/models"
)

// HarvestPolicy bounds carousel pagination.
type HarvestPolicy struct {
	// MaxClicks caps the number of next-control clicks.
	MaxClicks int
	// MaxStalls is how many consecutive clicks may add nothing new before
	// the carousel is considered exhausted.
	MaxStalls int
}

func DefaultHarvestPolicy() HarvestPolicy {
	return HarvestPolicy{MaxClicks: 30, MaxStalls: 2}
}

// Gallery describes where a lazily loaded carousel lives on a page.
type Gallery struct {
	// Container and Next are tried in order; the first match wins.
	Container []dom.Locator
	Next      []dom.Locator

	// Scanned inside the container after every click.
	Images dom.Locator
	Videos dom.Locator

	// Scanned inside the container once pagination ends, to catch media
	// that only rendered after the last click.
	SweepImages dom.Locator
	SweepVideos dom.Locator

	ImageAttrs []string
	VideoAttrs []string

	// MediaHost filters image URLs; empty accepts any host.
	MediaHost string
}

type StopReason string

const (
	StopNoControl   StopReason = "no_next_control"
	StopDisabled    StopReason = "control_disabled"
	StopClickFailed StopReason = "click_failed"
	StopLost        StopReason = "container_lost"
	StopStalled     StopReason = "stalled"
	StopClickLimit  StopReason = "click_limit"
	StopCancelled   StopReason = "cancelled"
)

type HarvestResult struct {
	Images []string
	Videos []string
	Clicks int
	Stop   StopReason
}

// Harvester pages through a carousel that only materialises slides as they
// are navigated to, collecting every media URL it reveals.
type Harvester struct {
	gallery Gallery
	policy  HarvestPolicy
	pacer   Pacer
	logger  *slog.Logger
}

func NewHarvester(g Gallery, policy HarvestPolicy, pacer Pacer, logger *slog.Logger) *Harvester {
	return &Harvester{
		gallery: g,
		policy:  policy,
		pacer:   pacer,
		logger:  logger.With("component", "harvester"),
	}
}

type harvest struct {
	pageURL string
	images  *models.MediaSet
	videos  *models.MediaSet
}

// Shown is a dom.Condition satisfied once any gallery container is visible.
func (h *Harvester) Shown(p dom.Page) (bool, error) {
	for _, loc := range h.gallery.Container {
		if ok, err := dom.Shown(loc)(p); ok || err != nil {
			return ok, err
		}
	}
	return false, nil
}

// Harvest fails only when the gallery container cannot be found at all.
// Everything after that point is best effort and returns what was gathered.
func (h *Harvester) Harvest(ctx context.Context, page dom.Page) (HarvestResult, error) {
	container, err := dom.FindFirst(page, h.gallery.Container...)
	if err != nil {
		return HarvestResult{}, fmt.Errorf("locate gallery: %w", err)
	}

	st := &harvest{
		pageURL: page.URL(),
		images:  models.NewMediaSet(),
		videos:  models.NewMediaSet(),
	}

	initial := h.scan(container, st, h.gallery.Images, h.gallery.Videos)
	h.logger.Debug("initial scan", "new", initial)

	res := HarvestResult{}
	res.Clicks, res.Stop = h.paginate(ctx, page, st)

	if container, err := dom.FindFirst(page, h.gallery.Container...); err == nil {
		swept := h.scan(container, st, h.gallery.SweepImages, h.gallery.SweepVideos)
		h.logger.Debug("final sweep", "new", swept)
	}

	res.Images = st.images.Items()
	res.Videos = st.videos.Items()

	h.logger.Info("gallery harvested",
		"images", len(res.Images),
		"videos", len(res.Videos),
		"clicks", res.Clicks,
		"stop", string(res.Stop))

	return res, nil
}

func (h *Harvester) paginate(ctx context.Context, page dom.Page, st *harvest) (int, StopReason) {
	clicks, stalls := 0, 0

	for clicks < h.policy.MaxClicks {
		if ctx.Err() != nil {
			return clicks, StopCancelled
		}

		next, err := dom.FindFirst(page, h.gallery.Next...)
		if err != nil {
			return clicks, StopNoControl
		}
		if !dom.Usable(next) {
			return clicks, StopDisabled
		}
		if err := next.Click(); err != nil {
			h.logger.Debug("next control click failed", "error", err)
			return clicks, StopClickFailed
		}
		clicks++

		if err := h.pacer.Wait(ctx); err != nil {
			return clicks, StopCancelled
		}

		container, err := dom.FindFirst(page, h.gallery.Container...)
		if err != nil {
			return clicks, StopLost
		}

		if added := h.scan(container, st, h.gallery.Images, h.gallery.Videos); added > 0 {
			stalls = 0
			continue
		}
		stalls++
		if stalls >= h.policy.MaxStalls {
			return clicks, StopStalled
		}
	}

	return clicks, StopClickLimit
}

// scan adds media under container and reports how many URLs were new.
func (h *Harvester) scan(container dom.Node, st *harvest, images, videos dom.Locator) int {
	added := 0

	if images != "" {
		nodes, _ := container.FindAll(images)
		for _, n := range nodes {
			abs, ok := models.AbsoluteURL(st.pageURL, dom.FirstAttr(n, h.gallery.ImageAttrs...))
			if !ok {
				continue
			}
			if h.gallery.MediaHost != "" && !strings.Contains(abs, h.gallery.MediaHost) {
				continue
			}
			if st.images.Add(abs) {
				added++
			}
		}
	}

	if videos != "" {
		nodes, _ := container.FindAll(videos)
		for _, n := range nodes {
			abs, ok := models.AbsoluteURL(st.pageURL, dom.FirstAttr(n, h.gallery.VideoAttrs...))
			if ok && st.videos.Add(abs) {
				added++
			}
		}
	}

	return added
}
