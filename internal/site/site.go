// Package site decides whether a tab location belongs to the target site.
package site

import (
	"net/url"
	"strings"
)

// Target matches URLs served by one host and its subdomains.
type Target struct {
	Host string
}

// New creates a Target for host, ignoring case and a leading "www.".
func New(host string) Target {
	host = strings.ToLower(strings.TrimSpace(host))
	return Target{Host: strings.TrimPrefix(host, "www.")}
}

// Matches reports whether rawURL points at the target host or one of its subdomains.
// Unparseable locations fall back to a substring test.
func (t Target) Matches(rawURL string) bool {
	if t.Host == "" || rawURL == "" {
		return false
	}

	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return strings.Contains(strings.ToLower(rawURL), t.Host)
	}

	switch u.Scheme {
	case "http", "https":
	default:
		return false
	}

	host := strings.ToLower(u.Hostname())
	return host == t.Host || strings.HasSuffix(host, "."+t.Host)
}
