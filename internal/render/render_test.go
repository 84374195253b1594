package render

import (
	"strings"
	"testing"

	"github.com/maltedev/listing-builder/internal/listing"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestComputeLayout(t *testing.T) {
	tests := []struct {
		name          string
		n             int
		desktopMargin int
		mobileMargin  int
		last          Position
		lastMobile    Position
	}{
		{"single image", 1, 200, 260, Position{N: 1, Left: 0, Bottom: -150}, Position{N: 1, Left: 0, Bottom: -150}},
		{"full desktop row", 5, 200, 350, Position{N: 5, Left: 480, Bottom: -150}, Position{N: 5, Left: 0, Bottom: -240}},
		{"six images", 6, 300, 350, Position{N: 6, Left: 0, Bottom: -250}, Position{N: 6, Left: 90, Bottom: -240}},
		{"eleven images", 11, 400, 440, Position{N: 11, Left: 0, Bottom: -350}, Position{N: 11, Left: 180, Bottom: -330}},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			l := ComputeLayout(tt.n)
			require.Len(t, l.Desktop.Positions, tt.n)
			require.Len(t, l.Mobile.Positions, tt.n)
			assert.Equal(t, tt.desktopMargin, l.Desktop.MarginBottom)
			assert.Equal(t, tt.mobileMargin, l.Mobile.MarginBottom)
			assert.Equal(t, tt.last, l.Desktop.Positions[tt.n-1])
			assert.Equal(t, tt.lastMobile, l.Mobile.Positions[tt.n-1])
		})
	}

	t.Run("no images", func(t *testing.T) {
		l := ComputeLayout(0)
		assert.Empty(t, l.Desktop.Positions)
		assert.Empty(t, l.Mobile.Positions)
		assert.Equal(t, 200, l.Desktop.MarginBottom)
		assert.Equal(t, 260, l.Mobile.MarginBottom)
	})
}

func sampleDoc(images ...any) listing.Document {
	return listing.Document{
		"product_title": "Oak <Desk>",
		"page_title":    "Oak Desk",
		"brand_color":   "#e31837",
		"logo_url":      "https://cdn.example.com/logo.png",
		"images":        images,
		"condition": map[string]any{
			"title":   "Brand New",
			"details": []any{"<strong>Boxed</strong>"},
		},
		"description": map[string]any{"main_text": `<div class="d"><p>Solid oak</p></div>`},
		"delivery": map[string]any{"items": []any{
			map[string]any{"label": "UK:", "value": "Free"},
			map[string]any{"label": "", "value": "Call us"},
		}},
		"returns":      map[string]any{"title": "30 days", "details": []any{"Unused only"}},
		"key_features": []any{"ignored"},
	}
}

func TestRender(t *testing.T) {
	out, err := Render(sampleDoc("https://img/1.jpg", "https://img/2.jpg", "https://img/3.jpg"))
	require.NoError(t, err)

	assert.Contains(t, out, "<title>Oak Desk</title>")
	assert.Contains(t, out, "Oak &lt;Desk&gt;")
	assert.Contains(t, out, `<img src="https://img/1.jpg" alt="" class="main-sentinel" />`)
	assert.Equal(t, 3, strings.Count(out, `<div class="image">`))
	assert.Equal(t, 1, strings.Count(out, " checked />"))
	assert.Contains(t, out, `<input id="thumbnail-control-1" type="radio" name="thumbnails" class="thumbnails-control" checked />`)
	assert.Contains(t, out, `<input id="thumbnail-control-3" type="radio" name="thumbnails" class="thumbnails-control" />`)
	assert.Contains(t, out, `<img src="https://img/3.jpg" alt="Main Image 3" />`)
	assert.Contains(t, out, ".image:nth-of-type(3) .thumbnail { left: 240px; bottom: -150px; }")
	assert.Contains(t, out, "margin-bottom: 200px; }")
	assert.Contains(t, out, "a:hover { color: #e31837; }")
	assert.Contains(t, out, `<div class="d"><p>Solid oak</p></div>`)
	assert.Contains(t, out, "<li><strong>Boxed</strong></li>")
	assert.Contains(t, out, `<div class="delivery-item"><span class="delivery-label">UK:</span> Free</div>`)
	assert.Contains(t, out, `<div class="delivery-item">Call us</div>`)
	assert.Contains(t, out, "<p>We offer <strong>30 days</strong>.</p>")
	assert.Contains(t, out, `href="`+DefaultShopURL+`"`)
	assert.NotContains(t, out, "ignored")
}

func TestRender_NoImages(t *testing.T) {
	out, err := Render(sampleDoc())
	require.NoError(t, err)

	assert.NotContains(t, out, "main-sentinel\" />")
	assert.NotContains(t, out, `<div class="image">`)
	assert.NotContains(t, out, ".image:nth-of-type(")
	assert.Contains(t, out, "margin-bottom: 200px; }")
	assert.Contains(t, out, ".images { margin-bottom: 260px; }")
}

func TestRender_Defaults(t *testing.T) {
	out, err := Render(listing.Document{"product_title": "Stool"})
	require.NoError(t, err)
	assert.Contains(t, out, "<title>Stool</title>")
	assert.Contains(t, out, "color: "+DefaultBrandColor)
}

func TestRender_InvalidDocument(t *testing.T) {
	_, err := Render(listing.Document{"images": []any{42}})
	assert.ErrorIs(t, err, ErrInvalidDocument)

	_, err = Render(listing.Document{"description": 42})
	assert.ErrorIs(t, err, ErrInvalidDocument)
}

func TestRender_PlainDescription(t *testing.T) {
	out, err := Render(listing.Document{"product_title": "Stool", "description": "<p>Hand finished.</p>"})
	require.NoError(t, err)
	assert.Contains(t, out, "<p>Hand finished.</p>")
}
