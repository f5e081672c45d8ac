package web_fetch

import (
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	searchmodels "github.com/mohammad-safakhou/newser-evidence/tools/web_search/models"
)

type pageMeta struct {
	title     string
	canonical string
	published *time.Time
}

var publishedMetaKeys = []string{
	"article:published_time",
	"og:published_time",
	"datepublished",
	"date",
	"dc.date",
	"dc.date.issued",
}

// extractMeta reads the title, canonical link and publish date from doc.
// The canonical link is resolved against base and dropped unless it is an
// absolute http(s) URL.
func extractMeta(doc *goquery.Document, base *url.URL) pageMeta {
	var m pageMeta
	m.title = CollapseWhitespace(doc.Find("head title").First().Text())
	if m.title == "" {
		m.title = CollapseWhitespace(doc.Find("title").First().Text())
	}

	doc.Find("link[rel]").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		rel, _ := s.Attr("rel")
		if !hasToken(rel, "canonical") {
			return true
		}
		href, _ := s.Attr("href")
		if c := resolveCanonical(base, href); c != "" {
			m.canonical = c
			return false
		}
		return true
	})

	metas := map[string]string{}
	doc.Find("meta").Each(func(_ int, s *goquery.Selection) {
		content, ok := s.Attr("content")
		if !ok || strings.TrimSpace(content) == "" {
			return
		}
		for _, attr := range []string{"property", "name", "itemprop"} {
			if key, ok := s.Attr(attr); ok {
				key = strings.ToLower(strings.TrimSpace(key))
				if _, seen := metas[key]; !seen {
					metas[key] = strings.TrimSpace(content)
				}
			}
		}
	})
	for _, key := range publishedMetaKeys {
		if t := searchmodels.ParseDate(metas[key]); t != nil {
			m.published = t
			return m
		}
	}
	doc.Find("time[datetime]").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		v, _ := s.Attr("datetime")
		m.published = searchmodels.ParseDate(v)
		return m.published == nil
	})
	return m
}

func resolveCanonical(base *url.URL, href string) string {
	href = strings.TrimSpace(href)
	if href == "" {
		return ""
	}
	ref, err := url.Parse(href)
	if err != nil {
		return ""
	}
	abs := base.ResolveReference(ref)
	if (abs.Scheme != "http" && abs.Scheme != "https") || abs.Host == "" {
		return ""
	}
	return abs.String()
}

func hasToken(list, token string) bool {
	for _, f := range strings.Fields(strings.ToLower(list)) {
		if f == token {
			return true
		}
	}
	return false
}
