package helpers

import (
	"errors"
	"net"
	"net/url"
	"path"
	"sort"
	"strings"
)

var (
	// ErrNotAbsoluteURL is returned for URLs without an http(s) scheme or host.
	ErrNotAbsoluteURL = errors.New("url must be absolute http(s)")
)

var trackingQueryParams = map[string]struct{}{
	"utm_source":      {},
	"utm_medium":      {},
	"utm_campaign":    {},
	"utm_term":        {},
	"utm_content":     {},
	"utm_id":          {},
	"utm_name":        {},
	"utm_reader":      {},
	"utm_place":       {},
	"utm_social":      {},
	"utm_social-type": {},
	"gclid":           {},
	"dclid":           {},
	"fbclid":          {},
	"msclkid":         {},
	"igshid":          {},
	"yclid":           {},
	"mc_cid":          {},
	"mc_eid":          {},
	"_ga":             {},
	"_hsenc":          {},
	"_hsmi":           {},
}

// ParseHTTPURL parses raw and requires an absolute http or https URL.
func ParseHTTPURL(raw string) (*url.URL, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, ErrNotAbsoluteURL
	}
	u, err := url.Parse(raw)
	if err != nil {
		return nil, err
	}
	scheme := strings.ToLower(u.Scheme)
	if (scheme != "http" && scheme != "https") || u.Hostname() == "" {
		return nil, ErrNotAbsoluteURL
	}
	return u, nil
}

// Hostname returns the lower-cased host of raw without port, or "" when raw is
// not an absolute http(s) URL.
func Hostname(raw string) string {
	u, err := ParseHTTPURL(raw)
	if err != nil {
		return ""
	}
	return strings.TrimSuffix(strings.ToLower(u.Hostname()), ".")
}

// DedupKey normalises an absolute URL for duplicate detection.
// Scheme and host are lower-cased, default ports, fragments and tracking
// query parameters (utm_*, fbclid, ...) are dropped, the remaining query is
// sorted and trailing slashes are stripped from the path. The scheme is kept,
// so http and https variants produce different keys.
// DedupKey(DedupKey(u)) == DedupKey(u) for every valid input.
func DedupKey(raw string) (string, error) {
	parsed, err := ParseHTTPURL(raw)
	if err != nil {
		return "", err
	}

	parsed.Scheme = strings.ToLower(parsed.Scheme)
	host := strings.TrimSuffix(strings.ToLower(parsed.Hostname()), ".")
	port := parsed.Port()
	if (parsed.Scheme == "http" && port == "80") || (parsed.Scheme == "https" && port == "443") {
		port = ""
	}
	switch {
	case port != "":
		host = net.JoinHostPort(host, port)
	case strings.Contains(host, ":"):
		// IPv6 literal without a port
		host = "[" + host + "]"
	}
	parsed.Host = host

	cleanPath := parsed.Path
	if cleanPath != "" {
		cleanPath = path.Clean(cleanPath)
		cleanPath = strings.TrimRight(cleanPath, "/")
	}
	parsed.Path = cleanPath
	parsed.RawPath = ""

	parsed.Fragment = ""
	parsed.RawFragment = ""

	query := parsed.Query()
	for key := range query {
		if _, drop := trackingQueryParams[strings.ToLower(key)]; drop {
			query.Del(key)
		}
	}
	if len(query) == 0 {
		parsed.RawQuery = ""
	} else {
		for key := range query {
			sort.Strings(query[key])
		}
		// Encode sorts by key.
		parsed.RawQuery = query.Encode()
	}
	parsed.ForceQuery = false

	return parsed.String(), nil
}

// SameOrSubdomain reports whether host equals domain or is one of its subdomains.
func SameOrSubdomain(host, domain string) bool {
	host = strings.TrimSuffix(strings.ToLower(strings.TrimSpace(host)), ".")
	domain = strings.TrimPrefix(strings.TrimSuffix(strings.ToLower(strings.TrimSpace(domain)), "."), ".")
	if host == "" || domain == "" {
		return false
	}
	return host == domain || strings.HasSuffix(host, "."+domain)
}
