package models

import (
	"strings"
	"time"
)

// Draft is what a site adapter pulls off a product page before any
// normalization. Any field may be empty.
type Draft struct {
	Title           string
	ImageURLs       []string
	VideoURLs       []string
	DescriptionHTML string
	// Partial is set when the page never reached its ready state.
	Partial bool
}

// Record is the normalized result for one product URL.
type Record struct {
	URL             string    `json:"url"`
	Title           string    `json:"title"`
	ImageURLs       []string  `json:"image_urls"`
	VideoURLs       []string  `json:"video_urls,omitempty"`
	DescriptionHTML string    `json:"description_html"`
	ScrapedAt       time.Time `json:"scraped_at"`
}

// NewRecord normalizes a draft: whitespace is trimmed, media URLs are made
// absolute against pageURL, unusable ones dropped and duplicates removed
// keeping first occurrence.
func NewRecord(pageURL string, d Draft) Record {
	return Record{
		URL:             pageURL,
		Title:           strings.TrimSpace(d.Title),
		ImageURLs:       normalizeMedia(pageURL, d.ImageURLs),
		VideoURLs:       normalizeMedia(pageURL, d.VideoURLs),
		DescriptionHTML: strings.TrimSpace(d.DescriptionHTML),
		ScrapedAt:       time.Now().UTC(),
	}
}

func normalizeMedia(pageURL string, raw []string) []string {
	set := NewMediaSet()
	for _, u := range raw {
		if abs, ok := AbsoluteURL(pageURL, u); ok {
			set.Add(abs)
		}
	}
	return set.Items()
}

// Empty reports whether nothing at all was extracted.
func (r Record) Empty() bool {
	return r.Title == "" && len(r.ImageURLs) == 0 && len(r.VideoURLs) == 0 && r.DescriptionHTML == ""
}

func (r Record) Validate() []string {
	var problems []string

	if r.URL == "" {
		problems = append(problems, "URL is required")
	}

	if r.Title == "" {
		problems = append(problems, "Title is missing")
	}

	if len(r.ImageURLs) == 0 {
		problems = append(problems, "No images found")
	}

	if r.DescriptionHTML == "" {
		problems = append(problems, "Description is missing")
	}

	return problems
}
