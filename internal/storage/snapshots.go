package storage

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/maltedev/listing-builder/internal/dom"
)

// SnapshotName maps a product URL to the file its saved page is stored
// under, e.g. https://www.very.co.uk/lamp/1600.prd -> very.co.uk_lamp_1600.prd.html.
func SnapshotName(rawURL string) string {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	key := rawURL
	if err == nil && u.Host != "" {
		key = strings.TrimPrefix(strings.ToLower(u.Host), "www.") + u.Path
	}

	name := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '.', r == '-':
			return r
		}
		return '_'
	}, key)
	return strings.Trim(name, "_") + ".html"
}

// SnapshotLoader serves saved pages from dir for offline runs.
func SnapshotLoader(dir string) dom.Loader {
	return func(ctx context.Context, rawURL string) (string, error) {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		path := filepath.Join(dir, SnapshotName(rawURL))
		data, err := os.ReadFile(path)
		if errors.Is(err, os.ErrNotExist) {
			return "", fmt.Errorf("%w: no snapshot %s", ErrNotFound, path)
		}
		if err != nil {
			return "", err
		}
		return string(data), nil
	}
}
