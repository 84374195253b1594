package scraper

import (
	"context"
	"fmt"
	"html"
	"strings"

	"github.com/maltedev/listing-builder/internal/dom"
	"github.com/maltedev/listing-builder/internal/models"
)

const descriptionClass = "product-description-content-text"

// firstSource reads the first attribute in attrs that carries a URL. Srcset
// attributes yield their first candidate.
func firstSource(n dom.Node, attrs []string) string {
	for _, name := range attrs {
		v := dom.FirstAttr(n, name)
		if v == "" {
			continue
		}
		if strings.HasSuffix(name, "srcset") {
			v = strings.TrimSpace(strings.Split(v, ",")[0])
			if i := strings.IndexAny(v, " \t"); i >= 0 {
				v = v[:i]
			}
		}
		if v != "" {
			return v
		}
	}
	return ""
}

func textOf(loc dom.Locator) func(context.Context, dom.Page) (string, error) {
	return func(_ context.Context, page dom.Page) (string, error) {
		n, err := page.FindOne(loc)
		if err != nil {
			return "", err
		}
		return n.Text()
	}
}

// metadataTitle falls back to the og:title tag and then the document title.
func metadataTitle(_ context.Context, page dom.Page) (string, error) {
	if n, err := page.FindOne(`meta[property="og:title"]`); err == nil {
		if v := dom.FirstAttr(n, "content"); v != "" {
			return v, nil
		}
	}
	n, err := page.FindOne("title")
	if err != nil {
		return "", err
	}
	return n.Text()
}

// markupOf returns the outer HTML of the first match of loc. A container
// with no text is treated as a miss.
func markupOf(loc dom.Locator) func(context.Context, dom.Page) (string, error) {
	return func(_ context.Context, page dom.Page) (string, error) {
		n, err := page.FindOne(loc)
		if err != nil {
			return "", err
		}
		return containerMarkup(n)
	}
}

func containerMarkup(n dom.Node) (string, error) {
	text, err := n.Text()
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(text) == "" {
		return "", ErrEmpty
	}
	markup, err := n.OuterHTML()
	if err != nil || strings.TrimSpace(markup) == "" {
		return paragraphs(text), nil
	}
	return markup, nil
}

// headingSection finds an h2 whose text contains phrase, case-insensitively,
// and returns its parent section.
func headingSection(phrase string) func(context.Context, dom.Page) (string, error) {
	phrase = strings.ToLower(phrase)
	return func(_ context.Context, page dom.Page) (string, error) {
		headings, err := page.FindAll("h2")
		if err != nil {
			return "", err
		}
		for _, h := range headings {
			text, err := h.Text()
			if err != nil || !strings.Contains(strings.ToLower(text), phrase) {
				continue
			}
			section, err := h.Parent()
			if err != nil {
				return "", err
			}
			return containerMarkup(section)
		}
		return "", dom.ErrNotFound
	}
}

// bulletsOf aggregates the text of every match of loc into a list.
func bulletsOf(loc dom.Locator) func(context.Context, dom.Page) (string, error) {
	return func(_ context.Context, page dom.Page) (string, error) {
		nodes, err := page.FindAll(loc)
		if err != nil {
			return "", err
		}
		var items []string
		for _, n := range nodes {
			text, err := n.Text()
			if err != nil {
				continue
			}
			if text = strings.TrimSpace(text); text != "" {
				items = append(items, text)
			}
		}
		if len(items) == 0 {
			return "", dom.ErrNotFound
		}
		return bulletList(items), nil
	}
}

func bulletList(items []string) string {
	var b strings.Builder
	b.WriteString(`<div class="` + descriptionClass + `"><ul>`)
	for _, item := range items {
		b.WriteString("<li>" + html.EscapeString(item) + "</li>")
	}
	b.WriteString("</ul></div>")
	return b.String()
}

// paragraphs wraps plain text, one paragraph per line.
func paragraphs(text string) string {
	var parts []string
	for _, line := range strings.Split(text, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			parts = append(parts, html.EscapeString(line))
		}
	}
	return `<div class="` + descriptionClass + `"><p>` + strings.Join(parts, "</p><p>") + `</p></div>`
}

// guarded rejects description markup that turns out to be a product
// recommendation carousel.
func guarded(run func(context.Context, dom.Page) (string, error)) func(context.Context, dom.Page) (string, error) {
	return func(ctx context.Context, page dom.Page) (string, error) {
		markup, err := run(ctx, page)
		if err != nil {
			return "", err
		}
		if signal, ok := RecommendationSignature(markup); ok {
			return "", fmt.Errorf("%w: %s", ErrRecommendationWidget, signal)
		}
		return markup, nil
	}
}

// imageScan collects image URLs from every match of loc in document order.
type imageScan struct {
	loc        dom.Locator
	attrs      []string
	host       string
	stripQuery bool
}

func (s imageScan) collect(page dom.Page, set *models.MediaSet) error {
	nodes, err := page.FindAll(s.loc)
	if err != nil {
		return err
	}
	for _, n := range nodes {
		abs, ok := models.AbsoluteURL(page.URL(), firstSource(n, s.attrs))
		if !ok {
			continue
		}
		if s.stripQuery {
			abs = models.StripQuery(abs)
		}
		if s.host != "" && !strings.Contains(abs, s.host) {
			continue
		}
		set.Add(abs)
	}
	return nil
}

// imagesOf scans each locator in turn and merges the results.
func imagesOf(scans ...imageScan) func(context.Context, dom.Page) (media, error) {
	return func(_ context.Context, page dom.Page) (media, error) {
		set := models.NewMediaSet()
		for _, s := range scans {
			if err := s.collect(page, set); err != nil {
				return media{}, err
			}
		}
		return media{Images: set.Items()}, nil
	}
}

// metaImage reads the og:image tag.
func metaImage(_ context.Context, page dom.Page) (media, error) {
	n, err := page.FindOne(`meta[property="og:image"]`)
	if err != nil {
		return media{}, err
	}
	abs, ok := models.AbsoluteURL(page.URL(), dom.FirstAttr(n, "content"))
	if !ok {
		return media{}, ErrEmpty
	}
	return media{Images: []string{abs}}, nil
}

func mediaChain(strategies ...Strategy[media]) Chain[media] {
	return Chain[media]{
		Field:      "media",
		Strategies: strategies,
		Empty:      media.empty,
	}
}
