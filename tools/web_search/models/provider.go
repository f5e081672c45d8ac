package models

import (
	"errors"
	"strings"
	"time"

	"github.com/araddon/dateparse"
)

var (
	// ErrExtractUnsupported is returned by discovery-only providers.
	ErrExtractUnsupported = errors.New("provider does not support content extraction")
	// ErrMissingAPIKey is a configuration error raised when a provider is built.
	ErrMissingAPIKey = errors.New("provider api key is required")
)

// SiteOperators appends site: and -site: operators for providers that have no
// native domain filter parameters.
func (q Query) SiteOperators() string {
	var b strings.Builder
	b.WriteString(strings.TrimSpace(q.Text))
	if len(q.IncludeDomains) > 0 {
		sites := make([]string, 0, len(q.IncludeDomains))
		for _, d := range q.IncludeDomains {
			sites = append(sites, "site:"+d)
		}
		if len(sites) == 1 {
			b.WriteString(" " + sites[0])
		} else {
			b.WriteString(" (" + strings.Join(sites, " OR ") + ")")
		}
	}
	for _, d := range q.ExcludeDomains {
		b.WriteString(" -site:" + d)
	}
	return b.String()
}

// ParseDate parses provider supplied dates in any common layout. Relative or
// unparseable values return nil.
func ParseDate(raw string) *time.Time {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	t, err := dateparse.ParseAny(raw)
	if err != nil || t.IsZero() {
		return nil
	}
	t = t.UTC()
	return &t
}
