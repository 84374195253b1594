package browser

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/playwright-community/playwright-go"

	"github.com/maltedev/listing-builder/internal/dom"
)

// Page adapts a playwright tab to dom.Page.
type Page struct {
	page    playwright.Page
	timeout time.Duration
	retries int
	logger  *slog.Logger
}

var _ dom.Page = (*Page)(nil)

// Navigate loads url, retrying with a growing pause between attempts.
func (p *Page) Navigate(ctx context.Context, url string) error {
	return withRetry(ctx, p.retries, time.Second, p.logger, url, p.load)
}

// withRetry calls load up to attempts times, waiting i*backoff before the
// i-th retry.
func withRetry(ctx context.Context, attempts int, backoff time.Duration, logger *slog.Logger, url string, load func(context.Context, string) error) error {
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	for i := 0; i < attempts; i++ {
		if i > 0 {
			logger.Info("retrying navigation", "attempt", i+1, "url", url)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(time.Duration(i) * backoff):
			}
		}

		err := load(ctx, url)
		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}

		lastErr = err
		logger.Warn("navigation failed", "error", err, "attempt", i+1)
	}

	return fmt.Errorf("failed after %d attempts: %w", attempts, lastErr)
}

func (p *Page) load(ctx context.Context, url string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	timeout := p.timeout
	if deadline, ok := ctx.Deadline(); ok {
		if until := time.Until(deadline); until < timeout {
			timeout = until
		}
	}

	_, err := p.page.Goto(url, playwright.PageGotoOptions{
		WaitUntil: playwright.WaitUntilStateDomcontentloaded,
		Timeout:   playwright.Float(float64(timeout.Milliseconds())),
	})
	if err != nil {
		return fmt.Errorf("goto %s: %w", url, err)
	}
	return nil
}

func (p *Page) URL() string {
	return p.page.URL()
}

func (p *Page) FindOne(loc dom.Locator) (dom.Node, error) {
	el, err := p.page.QuerySelector(string(loc))
	return wrapOne(el, err)
}

func (p *Page) FindAll(loc dom.Locator) ([]dom.Node, error) {
	els, err := p.page.QuerySelectorAll(string(loc))
	return wrapAll(els, err)
}

func (p *Page) WaitUntil(ctx context.Context, cond dom.Condition, timeout time.Duration) error {
	return dom.Poll(ctx, p, cond, timeout, 0)
}

func (p *Page) RunScript(script string, args ...any) (any, error) {
	return p.page.Evaluate(script, args...)
}

func (p *Page) Close() error {
	return p.page.Close()
}

func wrapOne(el playwright.ElementHandle, err error) (dom.Node, error) {
	if err != nil {
		return nil, fmt.Errorf("query: %w", err)
	}
	if el == nil {
		return nil, dom.ErrNotFound
	}
	return &node{el: el}, nil
}

func wrapAll(els []playwright.ElementHandle, err error) ([]dom.Node, error) {
	if err != nil {
		return nil, fmt.Errorf("query all: %w", err)
	}
	nodes := make([]dom.Node, 0, len(els))
	for _, el := range els {
		nodes = append(nodes, &node{el: el})
	}
	return nodes, nil
}

type node struct {
	el playwright.ElementHandle
}

func (n *node) Text() (string, error) {
	text, err := n.el.TextContent()
	if err != nil {
		return "", err
	}
	return collapse(text), nil
}

func (n *node) Attr(name string) (string, bool, error) {
	v, err := n.el.GetAttribute(name)
	if err != nil {
		return "", false, err
	}
	return v, v != "", nil
}

func (n *node) OuterHTML() (string, error) {
	v, err := n.el.Evaluate("e => e.outerHTML")
	if err != nil {
		return "", err
	}
	return asString(v), nil
}

func (n *node) Visible() (bool, error) {
	return n.el.IsVisible()
}

func (n *node) Enabled() (bool, error) {
	return n.el.IsEnabled()
}

// Click dispatches a DOM click, which still fires when an overlay covers the
// control.
func (n *node) Click() error {
	_, err := n.el.Evaluate("e => e.click()")
	return err
}

func (n *node) Parent() (dom.Node, error) {
	return wrapOne(n.el.QuerySelector("xpath=.."))
}

func (n *node) FindOne(loc dom.Locator) (dom.Node, error) {
	return wrapOne(n.el.QuerySelector(string(loc)))
}

func (n *node) FindAll(loc dom.Locator) ([]dom.Node, error) {
	return wrapAll(n.el.QuerySelectorAll(string(loc)))
}

func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func asString(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	default:
		return fmt.Sprint(t)
	}
}
