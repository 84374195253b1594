// Package site maps product URLs onto the retailers we know how to scrape.
package site

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"
)

var ErrUnsupportedSite = errors.New("unsupported site")

type ID string

const (
	Argos                   ID = "argos"
	Very                    ID = "very"
	CheapFurnitureWarehouse ID = "cfw"
)

// Site describes one supported retailer.
type Site struct {
	ID   ID
	Name string
	// HostPattern is matched as a substring of the URL host.
	HostPattern string
	Root        string
	// MinDelay and MaxDelay bound the polite pause after each product page.
	MinDelay time.Duration
	MaxDelay time.Duration
}

var registry = []Site{
	{ID: Argos, Name: "Argos", HostPattern: "argos.co.uk", Root: "https://www.argos.co.uk", MinDelay: 2 * time.Second, MaxDelay: 4 * time.Second},
	{ID: Very, Name: "Very", HostPattern: "very.co.uk", Root: "https://www.very.co.uk", MinDelay: 2 * time.Second, MaxDelay: 2 * time.Second},
	{ID: CheapFurnitureWarehouse, Name: "Cheap Furniture Warehouse", HostPattern: "cheapfurniturewarehouse.co.uk", Root: "https://cheapfurniturewarehouse.co.uk", MinDelay: 2 * time.Second, MaxDelay: 3 * time.Second},
}

// Sites returns every supported site.
func Sites() []Site {
	out := make([]Site, len(registry))
	copy(out, registry)
	return out
}

// Lookup finds a site by ID.
func Lookup(id ID) (Site, bool) {
	for _, s := range registry {
		if s.ID == id {
			return s, true
		}
	}
	return Site{}, false
}

// Normalize turns user input into an absolute https URL where it can.
// Input it does not recognise is returned trimmed but otherwise unchanged.
func Normalize(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" || strings.Contains(raw, "://") {
		return raw
	}
	if strings.HasPrefix(raw, "//") {
		return "https:" + raw
	}

	lower := strings.ToLower(raw)
	for _, s := range registry {
		if strings.HasPrefix(lower, s.HostPattern) {
			return s.Root + raw[len(s.HostPattern):]
		}
	}
	if strings.HasPrefix(lower, "www.") {
		return "https://" + raw
	}

	host, _, _ := strings.Cut(raw, "/")
	if strings.Contains(host, ".") && !strings.ContainsAny(host, " \t") {
		return "https://" + raw
	}
	return raw
}

// Classify resolves the site for an already normalized URL.
func Classify(raw string) (Site, error) {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return Site{}, fmt.Errorf("%w: %q is not an absolute URL", ErrUnsupportedSite, raw)
	}
	host := strings.ToLower(u.Hostname())
	for _, s := range registry {
		if strings.Contains(host, s.HostPattern) {
			return s, nil
		}
	}
	return Site{}, fmt.Errorf("%w: %s", ErrUnsupportedSite, host)
}
