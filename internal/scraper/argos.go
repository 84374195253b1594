package scraper

import (
	"context"
	"time"

	"github.com/maltedev/listing-builder/internal/dom"
	"github.com/maltedev/listing-builder/internal/models"
	"github.com/maltedev/listing-builder/internal/site"
)

const argosMediaHost = "media.4rgos.it"

const argosGalleryPath = "#content > main > div:nth-of-type(2) > div:nth-of-type(2) > div:nth-of-type(1) > " +
	"section:nth-of-type(1) > section > section > div > div > div > div:nth-of-type(2) > div:nth-of-type(1) > div:nth-of-type(1)"

// ArgosGallery is the product media carousel. Slides beyond the first few
// are only rendered after the carousel is advanced.
var ArgosGallery = Gallery{
	Container: []dom.Locator{
		argosGalleryPath + " > div:nth-of-type(1)",
		`[data-test="component-media-gallery"]`,
	},
	Next: []dom.Locator{
		argosGalleryPath + " > div:nth-of-type(2) > button:nth-of-type(2)",
		`[data-test="component-media-gallery-next"]`,
	},
	Images:      "picture img, img",
	Videos:      "video, source, [data-video-url]",
	SweepImages: "img, [data-main-image-url], [data-lazy-src]",
	SweepVideos: "video, source, [data-video-url], [data-video]",
	ImageAttrs:  []string{"src", "data-src", "data-main-image-url", "data-lazy-src"},
	VideoAttrs:  []string{"src", "data-src", "data-video-url", "data-video"},
	MediaHost:   argosMediaHost,
}

type ArgosAdapter struct {
	base
	title       Chain[string]
	description Chain[string]
	gallery     Chain[media]
	harvester   *Harvester
}

func NewArgosAdapter(opts Options) *ArgosAdapter {
	opts = opts.withDefaults()
	a := &ArgosAdapter{base: newBase(site.Argos, "#content", opts)}
	a.harvester = NewHarvester(ArgosGallery, opts.Harvest, opts.Pacer, a.logger)

	a.title = TextChain("title",
		Strategy[string]{Name: "structural", Run: textOf(
			"#content > main > div:nth-of-type(2) > div:nth-of-type(2) > div:nth-of-type(1) > section:nth-of-type(2) > " +
				"section > section:nth-of-type(1) > div:nth-of-type(2) > h1 > span")},
		Strategy[string]{Name: "heading", Run: textOf("#content h1")},
		Strategy[string]{Name: "metadata", Run: metadataTitle},
	)

	a.gallery = mediaChain(
		Strategy[media]{Name: "carousel", Run: a.harvest},
		Strategy[media]{Name: "page-scan", Run: imagesOf(imageScan{loc: "#content picture img, #content img", attrs: ArgosGallery.ImageAttrs, host: argosMediaHost})},
	)

	a.description = TextChain("description",
		Strategy[string]{Name: "container", Run: guarded(markupOf("#pdp-description > div"))},
		Strategy[string]{Name: "heading", Run: guarded(headingSection("description"))},
		Strategy[string]{Name: "bullets", Run: bulletsOf("#pdp-description li")},
	)

	return a
}

func (a *ArgosAdapter) Extract(ctx context.Context, page dom.Page, url string) (models.Draft, error) {
	return a.extract(ctx, page, url, a.title, a.description, a.gallery)
}

func (a *ArgosAdapter) harvest(ctx context.Context, page dom.Page) (media, error) {
	// Nudge the page so the gallery's lazy loader attaches. Snapshots cannot
	// run scripts, which is fine.
	if _, err := page.RunScript("() => window.scrollBy(0, 400)"); err != nil {
		a.logger.Debug("scroll nudge skipped", "error", err)
	}
	if err := page.WaitUntil(ctx, a.harvester.Shown, min(a.readyTimeout, 5*time.Second)); err != nil {
		a.logger.Debug("gallery not shown", "error", err)
	}

	res, err := a.harvester.Harvest(ctx, page)
	if err != nil {
		return media{}, err
	}
	return media{Images: res.Images, Videos: res.Videos}, nil
}
