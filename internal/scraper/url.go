package scraper

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/brandsignal/socialcrawler/internal/platform"
)

// NormalizeLink canonicalizes a raw href found on a feed page so the
// same content item always yields the same URL. It resolves relative
// hrefs against the platform base, lowercases scheme and host, removes
// default ports and fragments, and strips the query string unless the
// path carries its item identity in a query parameter (for example
// photo.php?fbid=...), in which case the query is kept sorted and the
// identity parameter must be present.
//
// Hrefs pointing off-platform, or identity-in-query paths missing
// their identity parameter, return an error and should be skipped.
func NormalizeLink(d platform.Descriptor, href string) (string, error) {
	href = strings.TrimSpace(href)
	if href == "" || strings.HasPrefix(href, "#") ||
		strings.HasPrefix(href, "javascript:") || strings.HasPrefix(href, "mailto:") {
		return "", fmt.Errorf("not a content href: %q", href)
	}

	base, err := url.Parse(d.BaseURL)
	if err != nil {
		return "", fmt.Errorf("parse base url: %w", err)
	}
	u, err := base.Parse(href)
	if err != nil {
		return "", fmt.Errorf("parse href: %w", err)
	}

	u.Scheme = strings.ToLower(u.Scheme)
	u.Host = strings.ToLower(u.Host)
	if u.Scheme == "http" {
		u.Host = strings.TrimSuffix(u.Host, ":80")
	}
	if u.Scheme == "https" {
		u.Host = strings.TrimSuffix(u.Host, ":443")
	}
	if u.Host != base.Host {
		return "", fmt.Errorf("off-platform host %q", u.Host)
	}

	u.Fragment = ""

	if param, ok := idParamFor(d, u.Path); ok {
		q := u.Query()
		if q.Get(param) == "" {
			return "", fmt.Errorf("href %q missing identity parameter %q", href, param)
		}
		u.RawQuery = q.Encode()
		return u.String(), nil
	}

	u.RawQuery = ""
	return u.String(), nil
}

func idParamFor(d platform.Descriptor, path string) (string, bool) {
	for fragment, param := range d.IDParams {
		if strings.Contains(path, fragment) {
			return param, true
		}
	}
	return "", false
}
