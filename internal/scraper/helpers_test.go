package scraper

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/maltedev/listing-builder/internal/dom"
	"github.com/stretchr/testify/require"
)

var testLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

// countingPacer records waits without sleeping.
type countingPacer struct {
	waits int
	err   error
}

func (p *countingPacer) Wait(ctx context.Context) error {
	p.waits++
	if p.err != nil {
		return p.err
	}
	return ctx.Err()
}

// recordingPage logs every locator queried at page level.
type recordingPage struct {
	dom.Page
	queried []dom.Locator
}

func (r *recordingPage) FindOne(loc dom.Locator) (dom.Node, error) {
	r.queried = append(r.queried, loc)
	return r.Page.FindOne(loc)
}

func (r *recordingPage) FindAll(loc dom.Locator) ([]dom.Node, error) {
	r.queried = append(r.queried, loc)
	return r.Page.FindAll(loc)
}

func testOptions(p Pacer) Options {
	return Options{
		ReadyTimeout: 20 * time.Millisecond,
		Harvest:      DefaultHarvestPolicy(),
		Pacer:        p,
		Logger:       testLogger,
	}
}

// snapshot builds a page whose Navigate serves markup for any URL.
func snapshot(t *testing.T, markup string) *dom.StaticPage {
	t.Helper()
	p := dom.NewSnapshotPage(func(context.Context, string) (string, error) {
		return markup, nil
	})
	require.NotNil(t, p)
	return p
}
