// Package render produces the self-contained HTML page for a listing.
package render

import (
	"bytes"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"io"

	"github.com/maltedev/listing-builder/internal/listing"
)

//go:embed templates/*.tmpl
var templatesFS embed.FS

var ErrInvalidDocument = errors.New("listing document cannot be rendered")

const (
	DefaultShopURL    = "https://www.ebay.co.uk/str/cfurniturewarehousebradford"
	DefaultBrandColor = "#333333"
)

var pageTemplate = template.Must(template.ParseFS(templatesFS, "templates/listing.html.tmpl"))

// Listing is the subset of a document the page consumes. Template-authored
// copy (condition, delivery, returns) and the scraped description are
// trusted markup.
type Listing struct {
	ProductTitle string      `json:"product_title"`
	PageTitle    string      `json:"page_title"`
	Images       []string    `json:"images"`
	BrandColor   string      `json:"brand_color"`
	LogoURL      string      `json:"logo_url"`
	ShopURL      string      `json:"shop_url"`
	Condition    Condition   `json:"condition"`
	Description  Description `json:"description"`
	Delivery     Delivery    `json:"delivery"`
	Returns      Returns     `json:"returns"`
}

type Condition struct {
	Title   template.HTML   `json:"title"`
	Details []template.HTML `json:"details"`
}

type Description struct {
	MainText template.HTML `json:"main_text"`
}

// UnmarshalJSON also accepts template-authored copy given as a plain string.
func (d *Description) UnmarshalJSON(b []byte) error {
	var text string
	if err := json.Unmarshal(b, &text); err == nil {
		d.MainText = template.HTML(text)
		return nil
	}
	type plain Description
	return json.Unmarshal(b, (*plain)(d))
}

type Delivery struct {
	Items []DeliveryItem `json:"items"`
}

type DeliveryItem struct {
	Label template.HTML `json:"label"`
	Value template.HTML `json:"value"`
}

type Returns struct {
	Title   template.HTML   `json:"title"`
	Details []template.HTML `json:"details"`
}

type slide struct {
	N       int
	URL     string
	Checked bool
}

type page struct {
	Listing
	Sentinel string
	Slides   []slide
	Layout   Layout
}

// Decode reads the renderable fields out of doc.
func Decode(doc listing.Document) (Listing, error) {
	raw, err := json.Marshal(doc)
	if err != nil {
		return Listing{}, fmt.Errorf("%w: %v", ErrInvalidDocument, err)
	}
	var l Listing
	if err := json.Unmarshal(raw, &l); err != nil {
		return Listing{}, fmt.Errorf("%w: %v", ErrInvalidDocument, err)
	}

	if l.PageTitle == "" {
		l.PageTitle = l.ProductTitle
	}
	if l.ShopURL == "" {
		l.ShopURL = DefaultShopURL
	}
	if l.BrandColor == "" {
		l.BrandColor = DefaultBrandColor
	}
	return l, nil
}

// Write renders doc to w.
func Write(w io.Writer, doc listing.Document) error {
	l, err := Decode(doc)
	if err != nil {
		return err
	}

	p := page{Listing: l, Layout: ComputeLayout(len(l.Images))}
	if len(l.Images) > 0 {
		p.Sentinel = l.Images[0]
	}
	for i, u := range l.Images {
		p.Slides = append(p.Slides, slide{N: i + 1, URL: u, Checked: i == 0})
	}

	if err := pageTemplate.ExecuteTemplate(w, "listing.html.tmpl", p); err != nil {
		return fmt.Errorf("execute listing template: %w", err)
	}
	return nil
}

// Render returns the page for doc as a string.
func Render(doc listing.Document) (string, error) {
	var buf bytes.Buffer
	if err := Write(&buf, doc); err != nil {
		return "", err
	}
	return buf.String(), nil
}
