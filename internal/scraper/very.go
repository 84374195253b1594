package scraper

import (
	"context"
	"time"

	"github.com/maltedev/listing-builder/internal/dom"
	"github.com/maltedev/listing-builder/internal/models"
	"github.com/maltedev/listing-builder/internal/site"
)

const veryCarousel dom.Locator = "#splide01-list"

var veryImageAttrs = []string{"src", "data-src", "data-splide-lazy", "data-lazy-src"}

type VeryAdapter struct {
	base
	title       Chain[string]
	description Chain[string]
	gallery     Chain[media]
}

func NewVeryAdapter(opts Options) *VeryAdapter {
	opts = opts.withDefaults()
	a := &VeryAdapter{base: newBase(site.Very, "#product-detail", opts)}

	a.title = TextChain("title",
		Strategy[string]{Name: "structural", Run: textOf("#product-detail > h1 > span[class*='Title']")},
		Strategy[string]{Name: "heading", Run: textOf("#product-detail h1")},
		Strategy[string]{Name: "metadata", Run: metadataTitle},
	)

	a.gallery = mediaChain(
		Strategy[media]{Name: "carousel", Run: a.carousel},
		Strategy[media]{Name: "any-carousel", Run: imagesOf(imageScan{loc: `[id^="splide"][id$="-list"] li img`, attrs: veryImageAttrs})},
		Strategy[media]{Name: "metadata", Run: metaImage},
	)

	a.description = TextChain("description",
		Strategy[string]{Name: "container", Run: guarded(markupOf(
			"#product-page-container > div:nth-of-type(1) > div:nth-of-type(3) > div:nth-of-type(1) > div > div > div"))},
		Strategy[string]{Name: "grid-container", Run: guarded(markupOf(
			"#product-page-container div[class*='grid-container'] > div:nth-child(3) > div:nth-child(1) > div > div > div"))},
		Strategy[string]{Name: "heading", Run: guarded(headingSection("product description"))},
		Strategy[string]{Name: "bullets", Run: bulletsOf("#product-detail ul li")},
	)

	return a
}

func (a *VeryAdapter) Extract(ctx context.Context, page dom.Page, url string) (models.Draft, error) {
	return a.extract(ctx, page, url, a.title, a.description, a.gallery)
}

func (a *VeryAdapter) carousel(ctx context.Context, page dom.Page) (media, error) {
	wait := a.readyTimeout
	if wait > 10*time.Second {
		wait = 10 * time.Second
	}
	if err := page.WaitUntil(ctx, dom.Present(veryCarousel), wait); err != nil {
		return media{}, err
	}
	return imagesOf(imageScan{loc: veryCarousel + " li img", attrs: veryImageAttrs})(ctx, page)
}
