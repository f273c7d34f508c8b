package model

import (
	"errors"
	"fmt"
	"net/url"
	"path"
	"strings"
)

// ErrNotAbsoluteURL is returned when a URL has no scheme or no host.
var ErrNotAbsoluteURL = errors.New("URL must be absolute with http or https scheme")

// Target is a normalized absolute URL.
// Host, Path and Ext are derived once when the target is created and
// never change afterwards.
type Target struct {
	// URL is the normalized string form used as the identity of the target.
	URL string

	// Host is the host component including a non-default port, lowercased.
	Host string

	// Path is the URL path, "/" when empty.
	Path string

	// Ext is the lowercase extension of the last path segment, with the dot.
	Ext string
}

// ParseTarget parses and normalizes rawURL.
// Only absolute http and https URLs are accepted.
func ParseTarget(rawURL string) (Target, error) {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return Target{}, fmt.Errorf("invalid URL %q: %w", rawURL, err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return Target{}, fmt.Errorf("%w: %q", ErrNotAbsoluteURL, rawURL)
	}

	normalizeURL(u)

	return Target{
		URL:  u.String(),
		Host: u.Host,
		Path: u.Path,
		Ext:  strings.ToLower(path.Ext(u.Path)),
	}, nil
}

// String returns the normalized URL.
func (t Target) String() string {
	return t.URL
}

// SameHost reports whether the target's host equals host, ignoring case.
func (t Target) SameHost(host string) bool {
	return strings.EqualFold(t.Host, host)
}

// NormalizeURL returns the normalized form of rawURL used as the key in
// URL sets. Unparseable input is returned unchanged.
//
// Normalization drops the fragment, lowercases scheme and host, removes
// the default port of the scheme (80 for http, 443 for https), and maps an
// empty path to "/". Query strings are kept.
func NormalizeURL(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}
	normalizeURL(u)
	return u.String()
}

func normalizeURL(u *url.URL) {
	u.Fragment = ""
	u.RawFragment = ""
	u.Scheme = strings.ToLower(u.Scheme)
	u.Host = strings.ToLower(u.Host)
	if port := u.Port(); (port == "80" && u.Scheme == "http") || (port == "443" && u.Scheme == "https") {
		u.Host = strings.TrimSuffix(u.Host, ":"+port)
	}
	if u.Path == "" && u.Opaque == "" {
		u.Path = "/"
	}
}
