package dom

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
)

// ClickHandler mutates a snapshot in response to a click, standing in for
// the page's own scripts.
type ClickHandler func(doc *goquery.Document) error

// Loader fetches the markup for a URL, e.g. from a directory of saved pages.
type Loader func(ctx context.Context, url string) (string, error)

type clickBinding struct {
	loc     Locator
	handler ClickHandler
}

// StaticPage is a Page backed by a parsed HTML snapshot.
type StaticPage struct {
	url    string
	doc    *goquery.Document
	loader Loader
	clicks []clickBinding
}

// NewStaticPage parses markup as the document found at url.
func NewStaticPage(url, markup string) (*StaticPage, error) {
	p := &StaticPage{url: url}
	if err := p.load(strings.NewReader(markup)); err != nil {
		return nil, err
	}
	return p, nil
}

// NewSnapshotPage returns an empty page whose Navigate pulls markup from loader.
func NewSnapshotPage(loader Loader) *StaticPage {
	doc, _ := goquery.NewDocumentFromReader(strings.NewReader("<html><body></body></html>"))
	return &StaticPage{doc: doc, loader: loader}
}

func (p *StaticPage) load(r io.Reader) error {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return fmt.Errorf("parse snapshot: %w", err)
	}
	p.doc = doc
	return nil
}

// OnClick registers handler to run whenever a node matching loc is clicked.
func (p *StaticPage) OnClick(loc Locator, handler ClickHandler) {
	p.clicks = append(p.clicks, clickBinding{loc: loc, handler: handler})
}

// Document exposes the underlying tree for test fixtures.
func (p *StaticPage) Document() *goquery.Document {
	return p.doc
}

func (p *StaticPage) Navigate(ctx context.Context, url string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p.url = url
	if p.loader == nil {
		return nil
	}
	markup, err := p.loader(ctx, url)
	if err != nil {
		return fmt.Errorf("load %s: %w", url, err)
	}
	return p.load(strings.NewReader(markup))
}

func (p *StaticPage) URL() string {
	return p.url
}

func (p *StaticPage) FindOne(loc Locator) (Node, error) {
	return findOne(p, p.doc.Selection, loc)
}

func (p *StaticPage) FindAll(loc Locator) ([]Node, error) {
	return findAll(p, p.doc.Selection, loc), nil
}

func (p *StaticPage) WaitUntil(ctx context.Context, cond Condition, timeout time.Duration) error {
	return Poll(ctx, p, cond, timeout, 0)
}

func (p *StaticPage) RunScript(string, ...any) (any, error) {
	return nil, ErrUnsupported
}

func (p *StaticPage) Close() error {
	return nil
}

func findOne(p *StaticPage, sel *goquery.Selection, loc Locator) (Node, error) {
	match := sel.Find(string(loc)).First()
	if match.Length() == 0 {
		return nil, ErrNotFound
	}
	return &staticNode{page: p, sel: match}, nil
}

func findAll(p *StaticPage, sel *goquery.Selection, loc Locator) []Node {
	matches := sel.Find(string(loc))
	nodes := make([]Node, 0, matches.Length())
	matches.Each(func(_ int, s *goquery.Selection) {
		nodes = append(nodes, &staticNode{page: p, sel: s})
	})
	return nodes
}

type staticNode struct {
	page *StaticPage
	sel  *goquery.Selection
}

func (n *staticNode) Text() (string, error) {
	return strings.Join(strings.Fields(n.sel.Text()), " "), nil
}

func (n *staticNode) Attr(name string) (string, bool, error) {
	v, ok := n.sel.Attr(name)
	if !ok || v == "" {
		return "", false, nil
	}
	return v, true, nil
}

func (n *staticNode) OuterHTML() (string, error) {
	return goquery.OuterHtml(n.sel)
}

func (n *staticNode) Visible() (bool, error) {
	for s := n.sel; s.Length() > 0; s = s.Parent() {
		if hidden(s) {
			return false, nil
		}
	}
	return true, nil
}

func hidden(s *goquery.Selection) bool {
	if _, ok := s.Attr("hidden"); ok {
		return true
	}
	style := strings.ReplaceAll(strings.ToLower(s.AttrOr("style", "")), " ", "")
	return strings.Contains(style, "display:none") || strings.Contains(style, "visibility:hidden")
}

func (n *staticNode) Enabled() (bool, error) {
	if _, ok := n.sel.Attr("disabled"); ok {
		return false, nil
	}
	return n.sel.AttrOr("aria-disabled", "false") != "true", nil
}

func (n *staticNode) Click() error {
	for _, b := range n.page.clicks {
		if !n.sel.Is(string(b.loc)) {
			continue
		}
		if err := b.handler(n.page.doc); err != nil {
			return fmt.Errorf("click %s: %w", b.loc, err)
		}
	}
	return nil
}

func (n *staticNode) Parent() (Node, error) {
	parent := n.sel.Parent()
	if parent.Length() == 0 {
		return nil, ErrNotFound
	}
	return &staticNode{page: n.page, sel: parent}, nil
}

func (n *staticNode) FindOne(loc Locator) (Node, error) {
	return findOne(n.page, n.sel, loc)
}

func (n *staticNode) FindAll(loc Locator) ([]Node, error) {
	return findAll(n.page, n.sel, loc), nil
}
