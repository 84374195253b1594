package scraper

import (
	"context"
	"errors"
	"testing"

	"github.com/maltedev/listing-builder/internal/dom"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChain_StopsAtFirstSuccess(t *testing.T) {
	static, err := dom.NewStaticPage("https://www.very.co.uk/p", `<html><body>
		<div id="product-detail"><h1>Generic Heading</h1></div>
	</body></html>`)
	require.NoError(t, err)
	page := &recordingPage{Page: static}

	chain := TextChain("title",
		Strategy[string]{Name: "structural", Run: textOf("#product-detail > h1 > span")},
		Strategy[string]{Name: "heading", Run: textOf("#product-detail h1")},
		Strategy[string]{Name: "third", Run: textOf("#never-queried")},
	)

	v, name := chain.Resolve(context.Background(), page, testLogger)
	assert.Equal(t, "Generic Heading", v)
	assert.Equal(t, "heading", name)
	assert.NotContains(t, page.queried, dom.Locator("#never-queried"))
}

func TestChain_EmptyValueFallsThrough(t *testing.T) {
	calls := 0
	chain := TextChain("title",
		Strategy[string]{Name: "blank", Run: func(context.Context, dom.Page) (string, error) {
			calls++
			return "   ", nil
		}},
		Strategy[string]{Name: "error", Run: func(context.Context, dom.Page) (string, error) {
			calls++
			return "", errors.New("boom")
		}},
		Strategy[string]{Name: "good", Run: func(context.Context, dom.Page) (string, error) {
			calls++
			return "Lamp", nil
		}},
	)

	v, name := chain.Resolve(context.Background(), nil, testLogger)
	assert.Equal(t, "Lamp", v)
	assert.Equal(t, "good", name)
	assert.Equal(t, 3, calls)
}

func TestChain_AllMiss(t *testing.T) {
	chain := mediaChain(
		Strategy[media]{Name: "none", Run: func(context.Context, dom.Page) (media, error) {
			return media{}, nil
		}},
	)

	v, name := chain.Resolve(context.Background(), nil, testLogger)
	assert.True(t, v.empty())
	assert.Empty(t, name)
}

func TestChain_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	called := false
	chain := TextChain("title", Strategy[string]{Name: "a", Run: func(context.Context, dom.Page) (string, error) {
		called = true
		return "x", nil
	}})

	v, _ := chain.Resolve(ctx, nil, testLogger)
	assert.Empty(t, v)
	assert.False(t, called)
}
