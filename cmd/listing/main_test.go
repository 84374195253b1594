package main

import (
	"bytes"
	"encoding/csv"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maltedev/listing-builder/internal/config"
	"github.com/maltedev/listing-builder/internal/listing"
	"github.com/maltedev/listing-builder/internal/pipeline"
	"github.com/maltedev/listing-builder/internal/storage"
)

const lampPage = `<html><head><title>Lamp | Very</title></head><body>
<div id="product-detail">
  <h1><span class="ProductTitle__text">Arc Floor Lamp</span></h1>
</div>
<ul id="splide01-list">
  <li><img src="https://media.very.co.uk/i/1.jpg"></li>
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

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()

	t.Setenv(config.ConfigFileEnv, "")
	t.Setenv("LOG_LEVEL", "error")
	t.Setenv("DB_ENABLED", "false")
	t.Setenv("SCRAPER_READY_TIMEOUT", "50ms")
	t.Setenv("SCRAPER_PAUSE_MIN", "1ms")
	t.Setenv("SCRAPER_PAUSE_MAX", "1ms")

	scrapeFlags.urls = nil
	renderFlags.watch = false

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return out.String(), err
}

func writeTemplate(t *testing.T, dir string) string {
	t.Helper()
	path := filepath.Join(dir, "template.json")
	require.NoError(t, os.WriteFile(path, []byte(testTemplate), 0o644))
	return path
}

func TestScrapeCommand_NoURLs(t *testing.T) {
	dir := t.TempDir()

	_, err := execute(t, "scrape",
		"--template", writeTemplate(t, dir),
		"--input", filepath.Join(dir, "missing.csv"),
		"--out", filepath.Join(dir, "out"),
	)
	assert.ErrorIs(t, err, pipeline.ErrNoURLs)
}

func TestScrapeCommand_MissingTemplate(t *testing.T) {
	dir := t.TempDir()

	_, err := execute(t, "scrape",
		"--template", filepath.Join(dir, "nope.json"),
		"--url", "https://www.very.co.uk/lamp/1.prd",
	)
	assert.ErrorIs(t, err, listing.ErrTemplateMissing)
}

func TestScrapeCommand_FromSnapshots(t *testing.T) {
	dir := t.TempDir()
	snapshots := filepath.Join(dir, "pages")
	require.NoError(t, os.MkdirAll(snapshots, 0o755))
	lampURL := "https://www.very.co.uk/lamp/1.prd"
	require.NoError(t, os.WriteFile(filepath.Join(snapshots, storage.SnapshotName(lampURL)), []byte(lampPage), 0o644))

	out := filepath.Join(dir, "out")
	summaryPath := filepath.Join(dir, "summary.csv")

	stdout, err := execute(t, "scrape",
		"--template", writeTemplate(t, dir),
		"--snapshot-dir", snapshots,
		"--out", out,
		"--summary", summaryPath,
		"--url", "https://example.com/item",
		"--url", lampURL,
	)
	require.NoError(t, err)
	assert.Contains(t, stdout, "1 succeeded, 1 failed")

	doc, err := storage.ReadDocument(filepath.Join(out, "product_2.json"))
	require.NoError(t, err)
	assert.Equal(t, "Arc Floor Lamp", doc["product_title"])

	html, err := os.ReadFile(filepath.Join(out, "product_2-generated.html"))
	require.NoError(t, err)
	assert.Contains(t, string(html), "Arc Floor Lamp")

	f, err := os.Open(summaryPath)
	require.NoError(t, err)
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Contains(t, rows[1][4], "unsupported_site")
	assert.Equal(t, lampURL, rows[2][0])
	assert.Equal(t, "Arc Floor Lamp", rows[2][1])
	assert.Empty(t, rows[2][4])
}

func TestRenderCommand(t *testing.T) {
	dir := t.TempDir()
	store, err := storage.NewArtifactStore(dir)
	require.NoError(t, err)
	path, err := store.WriteDocument(1, listing.Document{
		"product_title": "Oak Desk",
		"images":        []any{"https://media.4rgos.it/i/1.jpg"},
	})
	require.NoError(t, err)

	stdout, err := execute(t, "render", "--dir", dir)
	require.NoError(t, err)
	assert.Contains(t, stdout, "Rendered 1 listing(s), 0 failed.")

	html, err := os.ReadFile(storage.HTMLPath(path))
	require.NoError(t, err)
	assert.Contains(t, string(html), "Oak Desk")
}

func TestSetup_RejectsInvalidConfig(t *testing.T) {
	t.Setenv("LOG_FORMAT", "xml")
	_, err := execute(t, "render", "--dir", t.TempDir())
	assert.Error(t, err)
}
