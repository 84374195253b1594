package pipeline

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maltedev/listing-builder/internal/dom"
	"github.com/maltedev/listing-builder/internal/events"
	"github.com/maltedev/listing-builder/internal/listing"
	"github.com/maltedev/listing-builder/internal/models"
	"github.com/maltedev/listing-builder/internal/scraper"
	"github.com/maltedev/listing-builder/internal/storage"
)

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

const lampPage = `<html><head><title>Lamp | Very</title></head><body>
<div id="product-detail">
  <h1><span class="ProductTitle__text">Arc Floor Lamp</span></h1>
</div>
<ul id="splide01-list">
  <li><img src="https://media.very.co.uk/i/1.jpg"></li>
  <li><img data-splide-lazy="/i/2.jpg"></li>
</ul>
<div id="product-page-container">
  <section><h2>Product Description</h2><p>Brushed steel arc lamp.</p></section>
</div>
</body></html>`

const testTemplate = `{
  "product_title": "",
  "page_title": "",
  "brand_color": "#c8102e",
  "images": [],
  "description": {"main_text": "", "key_features": [], "note": ""},
  "returns": {"title": "30 days returns", "details": []}
}`

type noPause struct{}

func (noPause) Wait(ctx context.Context) error { return ctx.Err() }

// site pages served by URL; anything else fails to load.
type fakeSite struct {
	pages map[string]string
	opens int
}

func (f *fakeSite) open() (dom.Page, error) {
	f.opens++
	return dom.NewSnapshotPage(func(_ context.Context, url string) (string, error) {
		if markup, ok := f.pages[url]; ok {
			return markup, nil
		}
		return "", errors.New("connection reset")
	}), nil
}

type sleepLog struct {
	delays []time.Duration
}

func (s *sleepLog) sleep(ctx context.Context, d time.Duration) error {
	s.delays = append(s.delays, d)
	return ctx.Err()
}

type fakePublisher struct {
	got []events.Generated
	err error
}

func (p *fakePublisher) PublishListingGenerated(_ context.Context, g events.Generated) (uuid.UUID, error) {
	p.got = append(p.got, g)
	return uuid.New(), p.err
}

func newTestRunner(t *testing.T, open PageOpener, mutate func(*Config)) (*Runner, *storage.ArtifactStore) {
	t.Helper()

	tmpl, err := listing.ParseTemplate([]byte(testTemplate))
	require.NoError(t, err)
	store, err := storage.NewArtifactStore(t.TempDir())
	require.NoError(t, err)

	cfg := Config{
		Template: tmpl,
		Store:    store,
		Open:     open,
		Scraper: scraper.Options{
			ReadyTimeout: 20 * time.Millisecond,
			Harvest:      scraper.DefaultHarvestPolicy(),
			Pacer:        noPause{},
			Logger:       discard,
		},
		RenderHTML: true,
		MaxRetries: 1,
		Sleeper:    (&sleepLog{}).sleep,
		Logger:     discard,
	}
	if mutate != nil {
		mutate(&cfg)
	}

	r, err := NewRunner(cfg)
	require.NoError(t, err)
	return r, store
}

func TestRunner_Run(t *testing.T) {
	fs := &fakeSite{pages: map[string]string{"https://www.very.co.uk/lamp/1.prd": lampPage}}
	sleeps := &sleepLog{}
	r, store := newTestRunner(t, fs.open, func(c *Config) { c.Sleeper = sleeps.sleep })

	summary, err := r.Run(context.Background(), []string{
		"very.co.uk/lamp/1.prd",
		"https://example.com/item",
		"https://www.very.co.uk/missing.prd",
	})
	require.NoError(t, err)

	require.Len(t, summary.Results, 3)
	assert.Equal(t, 1, summary.Succeeded)
	assert.Equal(t, 2, summary.Failed)
	assert.NotEqual(t, uuid.Nil, summary.RunID)

	ok := summary.Results[0]
	assert.Equal(t, 1, ok.Index)
	assert.True(t, ok.Success)
	assert.Equal(t, "very", ok.Site)
	assert.Equal(t, "https://www.very.co.uk/lamp/1.prd", ok.URL)
	require.NotNil(t, ok.Record)
	assert.Equal(t, []string{"https://media.very.co.uk/i/1.jpg", "https://www.very.co.uk/i/2.jpg"}, ok.Record.ImageURLs)
	assert.Equal(t, store.DocumentPath(1), ok.ArtifactPath)

	doc, err := storage.ReadDocument(ok.ArtifactPath)
	require.NoError(t, err)
	assert.Equal(t, "Arc Floor Lamp", doc[listing.KeyProductTitle])
	assert.Equal(t, "#c8102e", doc["brand_color"])

	html, err := os.ReadFile(storage.HTMLPath(ok.ArtifactPath))
	require.NoError(t, err)
	assert.Contains(t, string(html), "Arc Floor Lamp")

	unsupported := summary.Results[1]
	assert.Equal(t, 2, unsupported.Index)
	assert.False(t, unsupported.Success)
	require.NotNil(t, unsupported.Error)
	assert.Equal(t, models.ErrCodeUnsupportedSite, unsupported.Error.Code)

	missing := summary.Results[2]
	assert.Equal(t, 3, missing.Index)
	assert.False(t, missing.Success)
	require.NotNil(t, missing.Error)
	assert.Equal(t, models.ErrCodeScrapeFailed, missing.Error.Code)
	assert.True(t, missing.Partial)

	// the page never loaded, yet its numbered document still exists with empty fields
	assert.Equal(t, store.DocumentPath(3), missing.ArtifactPath)
	empty, err := storage.ReadDocument(missing.ArtifactPath)
	require.NoError(t, err)
	assert.Equal(t, "", empty[listing.KeyProductTitle])
	assert.Equal(t, []any{}, empty[listing.KeyImages])
	assert.Equal(t, "#c8102e", empty["brand_color"])
	_, err = os.Stat(store.DocumentPath(2))
	assert.True(t, os.IsNotExist(err))

	// one open for the lamp, two for the retried missing page
	assert.Equal(t, 3, fs.opens)
	assert.Equal(t, []time.Duration{2 * time.Second}, sleeps.delays)
}

func TestRunner_BacksOffAfterRepeatedFailures(t *testing.T) {
	sleeps := &sleepLog{}
	r, _ := newTestRunner(t, (&fakeSite{}).open, func(c *Config) {
		c.Sleeper = sleeps.sleep
		c.MaxRetries = 0
	})

	summary, err := r.Run(context.Background(), []string{
		"https://www.very.co.uk/a.prd",
		"https://www.very.co.uk/b.prd",
		"https://www.very.co.uk/c.prd",
		"https://www.very.co.uk/d.prd",
	})
	require.NoError(t, err)
	assert.Equal(t, 4, summary.Failed)

	// the third failure in a row widens the pause by half
	assert.Equal(t, []time.Duration{2 * time.Second, 2 * time.Second, 3 * time.Second}, sleeps.delays)
}

func TestRunner_NoURLs(t *testing.T) {
	r, _ := newTestRunner(t, (&fakeSite{}).open, nil)

	_, err := r.Run(context.Background(), nil)
	assert.ErrorIs(t, err, ErrNoURLs)
}

func TestRunner_Cancelled(t *testing.T) {
	fs := &fakeSite{}
	r, _ := newTestRunner(t, fs.open, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	summary, err := r.Run(ctx, []string{"https://www.very.co.uk/lamp/1.prd"})
	assert.ErrorIs(t, err, context.Canceled)
	require.NotNil(t, summary)
	assert.Empty(t, summary.Results)
	assert.Zero(t, fs.opens)
}

func TestRunner_Publishes(t *testing.T) {
	fs := &fakeSite{pages: map[string]string{"https://www.very.co.uk/lamp/1.prd": lampPage}}
	pub := &fakePublisher{err: errors.New("db down")}
	r, _ := newTestRunner(t, fs.open, func(c *Config) { c.Publisher = pub })

	summary, err := r.Run(context.Background(), []string{"https://www.very.co.uk/lamp/1.prd"})
	require.NoError(t, err)

	require.Len(t, pub.got, 1)
	assert.Equal(t, summary.RunID, pub.got[0].RunID)
	assert.Equal(t, 1, pub.got[0].Index)
	assert.Equal(t, "Arc Floor Lamp", pub.got[0].Record.Title)
	assert.Equal(t, "Arc Floor Lamp", pub.got[0].Document[listing.KeyProductTitle])

	// publishing is best effort
	assert.Equal(t, 1, summary.Succeeded)
}

func TestRunner_OpenFailureIsRetried(t *testing.T) {
	calls := 0
	open := func() (dom.Page, error) {
		calls++
		return nil, errors.New("browser crashed")
	}
	r, _ := newTestRunner(t, open, nil)

	summary, err := r.Run(context.Background(), []string{"https://www.argos.co.uk/product/1"})
	require.NoError(t, err)
	require.Len(t, summary.Results, 1)

	res := summary.Results[0]
	require.NotNil(t, res.Error)
	assert.Equal(t, models.ErrCodeScrapeFailed, res.Error.Code)
	assert.Contains(t, res.Error.Message, "browser crashed")
	assert.Equal(t, 2, calls)
}

func TestRunner_RecoversPanics(t *testing.T) {
	fs := &fakeSite{pages: map[string]string{"https://www.very.co.uk/lamp/1.prd": lampPage}}
	calls := 0
	open := func() (dom.Page, error) {
		calls++
		if calls == 1 {
			panic("adapter bug")
		}
		return fs.open()
	}
	r, _ := newTestRunner(t, open, nil)

	summary, err := r.Run(context.Background(), []string{
		"https://cheapfurniturewarehouse.co.uk/products/sofa",
		"https://www.very.co.uk/lamp/1.prd",
	})
	require.NoError(t, err)
	require.Len(t, summary.Results, 2)

	assert.Equal(t, models.ErrCodeScrapeFailed, summary.Results[0].Error.Code)
	assert.Contains(t, summary.Results[0].Error.Message, "panic")
	assert.True(t, summary.Results[1].Success)
	assert.Equal(t, 1, summary.Succeeded)
	assert.Equal(t, 1, summary.Failed)
}

func TestNewRunner_Validation(t *testing.T) {
	_, err := NewRunner(Config{})
	assert.ErrorIs(t, err, listing.ErrTemplateMissing)

	_, err = NewRunner(Config{Template: listing.Document{}})
	assert.Error(t, err)
}

func TestRenderAll(t *testing.T) {
	store, err := storage.NewArtifactStore(t.TempDir())
	require.NoError(t, err)

	for i, title := range []string{"Oak Desk", "Pine Shelf"} {
		_, err := store.WriteDocument(i+1, listing.Document{
			"product_title": title,
			"images":        []any{"https://media.4rgos.it/i/1.jpg"},
		})
		require.NoError(t, err)
	}
	bad := filepath.Join(store.Dir(), "broken.json")
	require.NoError(t, os.WriteFile(bad, []byte(`{"images": "nope"}`), 0o644))

	report, err := RenderAll(store, discard)
	require.NoError(t, err)
	assert.Equal(t, 2, report.Rendered)
	assert.Equal(t, 1, report.Failed)
	assert.Contains(t, report.Failures, bad)

	html, err := os.ReadFile(storage.HTMLPath(store.DocumentPath(2)))
	require.NoError(t, err)
	assert.Contains(t, string(html), "Pine Shelf")

	assert.True(t, IsDocument(store.DocumentPath(1)))
	assert.False(t, IsDocument(storage.HTMLPath(store.DocumentPath(1))))
	assert.False(t, IsDocument(store.Dir()))
}

func TestRunner_WithStore(t *testing.T) {
	fs := &fakeSite{pages: map[string]string{"https://www.very.co.uk/lamp/1.prd": lampPage}}
	r, store := newTestRunner(t, fs.open, nil)

	other, err := storage.NewArtifactStore(t.TempDir())
	require.NoError(t, err)

	summary, err := r.WithStore(other).Run(context.Background(), []string{"https://www.very.co.uk/lamp/1.prd"})
	require.NoError(t, err)
	require.Equal(t, 1, summary.Succeeded)

	assert.FileExists(t, other.DocumentPath(1))
	assert.NoFileExists(t, store.DocumentPath(1))
}
