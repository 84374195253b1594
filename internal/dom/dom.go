// Package dom defines the small page-query surface the site adapters are
// written against. A live browser tab and a parsed HTML snapshot both satisfy
// it, so extraction logic can be exercised without launching a browser.
package dom

import (
	"context"
	"errors"
	"strings"
	"time"
)

var (
	ErrNotFound    = errors.New("element not found")
	ErrTimeout     = errors.New("wait condition timed out")
	ErrUnsupported = errors.New("operation not supported by this page")
)

// Locator is a CSS selector. XPath is deliberately absent so that every
// locator resolves the same way against a live page and a static snapshot.
type Locator string

// Node is a handle to a single element. Handles may go stale after the page
// mutates; callers re-locate rather than cache them across interactions.
type Node interface {
	Text() (string, error)
	// Attr returns the attribute value and whether it was present and non-empty.
	Attr(name string) (string, bool, error)
	OuterHTML() (string, error)
	Visible() (bool, error)
	Enabled() (bool, error)
	Click() error
	Parent() (Node, error)
	FindOne(loc Locator) (Node, error)
	FindAll(loc Locator) ([]Node, error)
}

// Page is one navigable document.
type Page interface {
	Navigate(ctx context.Context, url string) error
	URL() string
	FindOne(loc Locator) (Node, error)
	FindAll(loc Locator) ([]Node, error)
	WaitUntil(ctx context.Context, cond Condition, timeout time.Duration) error
	RunScript(script string, args ...any) (any, error)
	Close() error
}

// Condition reports whether the page has reached some state.
type Condition func(p Page) (bool, error)

// Present is satisfied once loc matches at least one element.
func Present(loc Locator) Condition {
	return func(p Page) (bool, error) {
		_, err := p.FindOne(loc)
		if errors.Is(err, ErrNotFound) {
			return false, nil
		}
		return err == nil, err
	}
}

// Shown is satisfied once the first match of loc is visible.
func Shown(loc Locator) Condition {
	return func(p Page) (bool, error) {
		n, err := p.FindOne(loc)
		if errors.Is(err, ErrNotFound) {
			return false, nil
		}
		if err != nil {
			return false, err
		}
		return n.Visible()
	}
}

// FirstAttr returns the first non-empty value among names, in order.
func FirstAttr(n Node, names ...string) string {
	for _, name := range names {
		v, ok, err := n.Attr(name)
		if err != nil || !ok {
			continue
		}
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}

// Usable reports whether n can be interacted with. Errors count as unusable.
func Usable(n Node) bool {
	visible, err := n.Visible()
	if err != nil || !visible {
		return false
	}
	enabled, err := n.Enabled()
	return err == nil && enabled
}

// FindFirst tries each locator in order and returns the first match.
func FindFirst(p Page, locs ...Locator) (Node, error) {
	for _, loc := range locs {
		n, err := p.FindOne(loc)
		if err == nil {
			return n, nil
		}
		if !errors.Is(err, ErrNotFound) {
			return nil, err
		}
	}
	return nil, ErrNotFound
}
