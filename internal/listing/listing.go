// Package listing turns scraped records into listing documents by filling a
// user supplied template.
package listing

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/maltedev/listing-builder/internal/models"
)

var (
	ErrTemplateMissing   = errors.New("listing template not found")
	ErrTemplateMalformed = errors.New("listing template is not a JSON object")
)

// Document is a listing: the template's structure with product fields
// filled in. Keys the merge does not own pass through untouched.
type Document map[string]any

// Keys the merge owns.
const (
	KeyProductTitle = "product_title"
	KeyPageTitle    = "page_title"
	KeyImages       = "images"
	KeyDescription  = "description"
	KeyMainText     = "main_text"
	KeyVideos       = "video_urls"
)

// Placeholder sections from the template that would contradict scraped copy.
var placeholderKeys = []string{"key_features", "specifications", "note"}

// LoadTemplate reads and parses the template at path.
func LoadTemplate(path string) (Document, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrTemplateMissing, path)
	}
	if err != nil {
		return nil, fmt.Errorf("read template %s: %w", path, err)
	}

	doc, err := ParseTemplate(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return doc, nil
}

func ParseTemplate(data []byte) (Document, error) {
	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTemplateMalformed, err)
	}
	if doc == nil {
		return nil, ErrTemplateMalformed
	}
	return doc, nil
}

// Merge returns a new document built from tmpl and rec. tmpl is not modified.
func Merge(tmpl Document, rec models.Record) Document {
	doc := Clone(tmpl)

	doc[KeyProductTitle] = rec.Title
	doc[KeyPageTitle] = rec.Title

	images := make([]any, len(rec.ImageURLs))
	for i, u := range rec.ImageURLs {
		images[i] = u
	}
	doc[KeyImages] = images

	if len(rec.VideoURLs) > 0 {
		videos := make([]any, len(rec.VideoURLs))
		for i, u := range rec.VideoURLs {
			videos[i] = u
		}
		doc[KeyVideos] = videos
	}

	// a description that is not an object belongs to the template author
	if desc, ok := doc[KeyDescription].(map[string]any); ok {
		for _, k := range placeholderKeys {
			delete(desc, k)
		}
		desc[KeyMainText] = rec.DescriptionHTML
	}

	return doc
}

// Clone deep-copies a document.
func Clone(doc Document) Document {
	out := make(Document, len(doc))
	for k, v := range doc {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		m := make(map[string]any, len(t))
		for k, vv := range t {
			m[k] = cloneValue(vv)
		}
		return m
	case Document:
		return Clone(t)
	case []any:
		s := make([]any, len(t))
		for i, vv := range t {
			s[i] = cloneValue(vv)
		}
		return s
	case []string:
		s := make([]string, len(t))
		copy(s, t)
		return s
	default:
		return v
	}
}
