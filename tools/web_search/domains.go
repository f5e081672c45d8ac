package web_search

import (
	"strings"

	"github.com/mohammad-safakhou/newser-evidence/config"
)

// DefaultTopics returns a fresh copy of the built-in topic table.
func DefaultTopics() map[string][]string {
	return map[string][]string{
		"finance": {
			"reuters.com", "bloomberg.com", "ft.com", "wsj.com", "cnbc.com",
			"marketwatch.com", "economist.com",
		},
		"technology": {
			"techcrunch.com", "theverge.com", "arstechnica.com", "wired.com",
			"news.ycombinator.com", "theregister.com",
		},
		"science": {
			"nature.com", "science.org", "sciencedirect.com", "arxiv.org",
			"newscientist.com", "scientificamerican.com",
		},
		"health": {
			"who.int", "cdc.gov", "nih.gov", "thelancet.com", "nejm.org",
			"bmj.com",
		},
		"politics": {
			"apnews.com", "reuters.com", "politico.com", "bbc.com",
			"theguardian.com",
		},
		"reference": {
			"wikipedia.org", "britannica.com",
		},
	}
}

// MergeTopics overlays extra on base. A topic present in both takes extra's
// list.
func MergeTopics(base, extra map[string][]string) map[string][]string {
	out := make(map[string][]string, len(base)+len(extra))
	for k, v := range base {
		out[strings.ToLower(k)] = v
	}
	for k, v := range extra {
		out[strings.ToLower(k)] = v
	}
	return out
}

// DomainResolver expands topic keywords into hostnames.
type DomainResolver struct {
	topics map[string][]string
}

func NewDomainResolver(topics map[string][]string) *DomainResolver {
	if topics == nil {
		topics = DefaultTopics()
	}
	return &DomainResolver{topics: topics}
}

// Resolve maps each token to hostnames: topic keywords expand to their table
// entry, hostnames pass through lower-cased and anything else is dropped. The
// result keeps first-seen order without duplicates.
func (r *DomainResolver) Resolve(tokens []string) []string {
	if len(tokens) == 0 {
		return nil
	}
	seen := make(map[string]struct{})
	var out []string
	add := func(host string) {
		if _, ok := seen[host]; ok {
			return
		}
		seen[host] = struct{}{}
		out = append(out, host)
	}
	for _, raw := range tokens {
		token := strings.ToLower(strings.TrimSpace(raw))
		if token == "" {
			continue
		}
		if hosts, ok := r.topics[token]; ok {
			for _, h := range hosts {
				if h = strings.ToLower(strings.TrimSpace(h)); isHostname(h) {
					add(h)
				}
			}
			continue
		}
		if strings.Contains(token, "://") {
			token = config.NormalizeHost(token)
		}
		if isHostname(token) {
			add(token)
		}
	}
	return out
}

// isHostname accepts dotted names made of letters, digits and inner hyphens
// whose last label contains a letter.
func isHostname(s string) bool {
	s = strings.TrimSuffix(s, ".")
	if len(s) == 0 || len(s) > 253 {
		return false
	}
	labels := strings.Split(s, ".")
	if len(labels) < 2 {
		return false
	}
	for _, label := range labels {
		if len(label) == 0 || len(label) > 63 {
			return false
		}
		if label[0] == '-' || label[len(label)-1] == '-' {
			return false
		}
		for _, c := range label {
			if !(c >= 'a' && c <= 'z' || c >= '0' && c <= '9' || c == '-') {
				return false
			}
		}
	}
	tld := labels[len(labels)-1]
	for _, c := range tld {
		if c >= 'a' && c <= 'z' {
			return true
		}
	}
	return false
}
