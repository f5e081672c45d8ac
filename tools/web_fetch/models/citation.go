package models

import (
	"strconv"
	"strings"

	"github.com/mohammad-safakhou/newser-evidence/internal/helpers"
)

// DefaultCitationSnippet is the snippet length used when none is given.
const DefaultCitationSnippet = 180

// Citation renders evidence as one reference line:
//
//	[id] Title - "Snippet" (host, 2024-04-15) <url>
//
// The snippet falls back to the first chunk and is cut to maxSnippet runes.
// Without a publication date the fetch date is shown as "retrieved".
func (e Evidence) Citation(id string, maxSnippet int) string {
	if maxSnippet <= 0 {
		maxSnippet = DefaultCitationSnippet
	}
	id = strings.TrimSpace(id)
	if id == "" {
		id = "source"
	}

	parts := []string{"[" + id + "]"}
	if title := strings.TrimSpace(e.Title); title != "" {
		parts = append(parts, title)
	}

	snippet := e.Snippet
	if strings.TrimSpace(snippet) == "" && len(e.Chunks) > 0 {
		snippet = e.Chunks[0]
	}
	if s := quoteSnippet(snippet, maxSnippet); s != "" {
		parts = append(parts, "- "+s)
	}

	if host := helpers.Hostname(e.URL); host != "" {
		meta := host
		switch {
		case e.PublishedAt != nil:
			meta += ", " + e.PublishedAt.Format("2006-01-02")
		case !e.FetchedAt.IsZero():
			meta += ", retrieved " + e.FetchedAt.Format("2006-01-02")
		}
		parts = append(parts, "("+meta+")")
	}
	if link := strings.TrimSpace(e.URL); link != "" {
		parts = append(parts, "<"+link+">")
	}
	return strings.Join(parts, " ")
}

// Citations numbers evidence from 1 in the given order.
func Citations(evidence []Evidence, maxSnippet int) []string {
	out := make([]string, 0, len(evidence))
	for i, e := range evidence {
		out = append(out, e.Citation(strconv.Itoa(i+1), maxSnippet))
	}
	return out
}

func quoteSnippet(s string, limit int) string {
	s = strings.Join(strings.Fields(s), " ")
	if s == "" {
		return ""
	}
	if r := []rune(s); len(r) > limit {
		s = strings.TrimSpace(string(r[:limit])) + "…"
	}
	return `"` + strings.Trim(s, `"`) + `"`
}
