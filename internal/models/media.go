package models

import (
	"net/url"
	"strings"
)

// MediaSet is an insertion-ordered set of URLs.
type MediaSet struct {
	seen  map[string]struct{}
	items []string
}

func NewMediaSet() *MediaSet {
	return &MediaSet{seen: make(map[string]struct{})}
}

// Add appends u unless it is already present. It reports whether u was new.
func (s *MediaSet) Add(u string) bool {
	if _, ok := s.seen[u]; ok {
		return false
	}
	s.seen[u] = struct{}{}
	s.items = append(s.items, u)
	return true
}

func (s *MediaSet) Len() int {
	return len(s.items)
}

// Items returns a copy of the URLs in insertion order. Never nil.
func (s *MediaSet) Items() []string {
	out := make([]string, len(s.items))
	copy(out, s.items)
	return out
}

// AbsoluteURL qualifies a media reference found on pageURL. Protocol-relative
// references get https, root-relative ones the page's origin. Empty, inline
// and script references are rejected.
func AbsoluteURL(pageURL, raw string) (string, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", false
	}
	lower := strings.ToLower(raw)
	for _, prefix := range []string{"data:", "blob:", "javascript:", "about:"} {
		if strings.HasPrefix(lower, prefix) {
			return "", false
		}
	}
	if strings.HasPrefix(raw, "//") {
		return "https:" + raw, true
	}
	if strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://") {
		return raw, true
	}

	base, err := url.Parse(pageURL)
	if err != nil || base.Host == "" {
		return "", false
	}
	ref, err := url.Parse(raw)
	if err != nil {
		return "", false
	}
	resolved := base.ResolveReference(ref)
	if resolved.Scheme != "http" && resolved.Scheme != "https" {
		return "", false
	}
	return resolved.String(), true
}

// StripQuery drops any query string or fragment from u.
func StripQuery(u string) string {
	if i := strings.IndexAny(u, "?#"); i >= 0 {
		return u[:i]
	}
	return u
}
