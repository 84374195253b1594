package scraper

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
)

var recommendationMarkers = []string{
	"recommend",
	"also-viewed",
	"also-bought",
	"alsoviewed",
	"similar-products",
	"product-carousel",
}

var recommendationPhrases = []string{
	"you may also like",
	"you might also like",
	"customers also viewed",
	"customers also bought",
	"frequently bought together",
	"similar products",
}

var markerAttrs = []string{"id", "class", "data-test", "data-testid", "data-component"}

// RecommendationSignature reports whether markup looks like a product
// recommendation widget rather than a description, and which signal matched.
func RecommendationSignature(markup string) (string, bool) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(markup))
	if err != nil {
		return "", false
	}

	var signal string
	doc.Find("*").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		for _, attr := range markerAttrs {
			v, ok := s.Attr(attr)
			if !ok {
				continue
			}
			lower := strings.ToLower(v)
			for _, marker := range recommendationMarkers {
				if strings.Contains(lower, marker) {
					signal = attr + "=" + v
					return false
				}
			}
		}
		return true
	})
	if signal != "" {
		return signal, true
	}

	var found string
	doc.Find("h1, h2, h3, h4").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		heading := strings.ToLower(strings.Join(strings.Fields(s.Text()), " "))
		for _, phrase := range recommendationPhrases {
			if strings.Contains(heading, phrase) {
				found = phrase
				return false
			}
		}
		return true
	})
	return found, found != ""
}
