package scraper

import (
	"context"
	"errors"

	"github.com/maltedev/listing-builder/internal/dom"
	"github.com/maltedev/listing-builder/internal/models"
	"github.com/maltedev/listing-builder/internal/site"
)

// The storefront theme suffixes section IDs with a per-deploy template key,
// so everything is matched on ID prefix and suffix.
const (
	cfwProductInfo dom.Locator = `[id^="ProductInfo-template"][id$="__main-product"]`
	cfwSpecs       dom.Locator = `[id*="ProductAccordion-specifications_tab"][id*="main-product"]`
)

var cfwImageAttrs = []string{"src", "data-src", "data-srcset"}

type CFWAdapter struct {
	base
	title       Chain[string]
	description Chain[string]
	gallery     Chain[media]
}

func NewCFWAdapter(opts Options) *CFWAdapter {
	opts = opts.withDefaults()
	a := &CFWAdapter{base: newBase(site.CheapFurnitureWarehouse, `[id^="ProductInfo-template"]`, opts)}

	a.title = TextChain("title",
		Strategy[string]{Name: "structural", Run: textOf(cfwProductInfo + " > div > div:nth-of-type(1) > div > h1")},
		Strategy[string]{Name: "heading", Run: textOf("h1")},
		Strategy[string]{Name: "metadata", Run: metadataTitle},
	)

	a.gallery = mediaChain(
		Strategy[media]{Name: "gallery", Run: imagesOf(
			imageScan{loc: `div[id*="Media-Thumbnails-template"] img`, attrs: cfwImageAttrs, stripQuery: true},
			imageScan{loc: `div[id*="Slide-template"] img`, attrs: cfwImageAttrs, stripQuery: true},
		)},
		Strategy[media]{Name: "metadata", Run: metaImage},
	)

	a.description = TextChain("description",
		Strategy[string]{Name: "container", Run: guarded(markupOf(cfwProductInfo + " > div > div:nth-of-type(3)"))},
		Strategy[string]{Name: "heading", Run: guarded(headingSection("description"))},
		Strategy[string]{Name: "bullets", Run: bulletsOf(`[id^="ProductInfo-template"] ul li`)},
	)

	return a
}

func (a *CFWAdapter) Extract(ctx context.Context, page dom.Page, url string) (models.Draft, error) {
	draft, err := a.extract(ctx, page, url, a.title, a.description, a.gallery)
	if err != nil {
		return draft, err
	}

	if specs, err := a.specifications(page); err == nil {
		draft.DescriptionHTML += `<div class="product-specifications"><h3>Specifications</h3>` + specs + `</div>`
	} else if !errors.Is(err, dom.ErrNotFound) {
		a.logger.Debug("specifications table unreadable", "url", url, "error", err)
	}

	return draft, nil
}

// specifications expands the spec accordion and returns its table markup.
func (a *CFWAdapter) specifications(page dom.Page) (string, error) {
	if tab, err := page.FindOne(cfwSpecs); err == nil {
		if err := tab.Click(); err != nil {
			a.logger.Debug("specifications accordion did not open", "error", err)
		}
	}

	table, err := page.FindOne(cfwSpecs + " table")
	if err != nil {
		return "", err
	}
	return table.OuterHTML()
}
