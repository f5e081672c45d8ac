// Package rerank removes duplicate evidence and orders the rest by
// authority, depth and recency signals.
package rerank

import (
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/mohammad-safakhou/newser-evidence/config"
	"github.com/mohammad-safakhou/newser-evidence/internal/helpers"
	"github.com/mohammad-safakhou/newser-evidence/tools/web_fetch/models"
)

const (
	baseScore     = 1.0
	defaultWindow = 365 * 24 * time.Hour

	chunkBoost   = 0.1
	titleBoost   = 0.05
	snippetBoost = 0.05
)

// Options tunes scoring. The zero value scores only depth and richness
// signals; use DefaultOptions for the standard boosts.
type Options struct {
	AuthoritativeDomains []string
	AuthorityBoost       float64
	RecencyBoost         float64
	RecencyWindow        time.Duration
	// DomainBias adds a fixed adjustment for hosts under the given domains.
	DomainBias map[string]float64
	// Thresholds gate the content-quality boosts. Zero fields use the
	// defaults.
	Thresholds config.RerankThresholds
	Now        func() time.Time
}

func DefaultOptions() Options {
	return Options{
		AuthoritativeDomains: append([]string(nil), config.DefaultAuthoritativeDomains...),
		AuthorityBoost:       config.DefaultAuthorityBoost,
		RecencyBoost:         config.DefaultRecencyBoost,
		RecencyWindow:        defaultWindow,
		Thresholds:           config.DefaultThresholds(),
	}
}

// OptionsFromConfig normalises cfg and converts it.
func OptionsFromConfig(cfg config.RerankConfig) Options {
	cfg = cfg.Normalize()
	return Options{
		AuthoritativeDomains: cfg.AuthoritativeDomains,
		AuthorityBoost:       *cfg.AuthorityBoost,
		RecencyBoost:         *cfg.RecencyBoost,
		RecencyWindow:        cfg.RecencyWindow,
		DomainBias:           cfg.DomainBias,
		Thresholds:           cfg.Thresholds,
	}
}

// Breakdown lists every component that contributed to a score.
type Breakdown struct {
	Base      float64 `json:"base"`
	Authority float64 `json:"authority"`
	Depth     float64 `json:"depth"`
	Title     float64 `json:"title"`
	Snippet   float64 `json:"snippet"`
	Recency   float64 `json:"recency"`
	Bias      float64 `json:"bias"`
}

type Scored struct {
	Evidence  models.Evidence `json:"evidence"`
	Score     float64         `json:"score"`
	Breakdown Breakdown       `json:"breakdown"`
}

// Dedup keeps the first item of every (content hash, URL dedup key) pair and
// reports how many were dropped. Identical content at different URLs is kept.
func Dedup(evidence []models.Evidence) ([]models.Evidence, int) {
	type key struct{ hash, url string }
	seen := make(map[key]struct{}, len(evidence))
	out := make([]models.Evidence, 0, len(evidence))
	for _, ev := range evidence {
		k := key{hash: ev.ContentHash, url: urlKey(ev.URL)}
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, ev)
	}
	return out, len(evidence) - len(out)
}

// Rank deduplicates and scores evidence, highest score first. Ties keep input
// order.
func Rank(evidence []models.Evidence, opts Options) []Scored {
	unique, _ := Dedup(evidence)
	now := time.Now()
	if opts.Now != nil {
		now = opts.Now()
	}
	scored := make([]Scored, len(unique))
	for i, ev := range unique {
		b := score(ev, opts, now)
		scored[i] = Scored{Evidence: ev, Score: b.total(), Breakdown: b}
	}
	sort.SliceStable(scored, func(i, j int) bool { return scored[i].Score > scored[j].Score })
	return scored
}

// DedupAndRerank is Rank without the scores.
func DedupAndRerank(evidence []models.Evidence, opts Options) []models.Evidence {
	scored := Rank(evidence, opts)
	out := make([]models.Evidence, len(scored))
	for i, s := range scored {
		out[i] = s.Evidence
	}
	return out
}

func score(ev models.Evidence, opts Options, now time.Time) Breakdown {
	b := Breakdown{Base: baseScore}
	host := helpers.Hostname(ev.URL)

	if isAuthoritative(host, opts.AuthoritativeDomains) {
		b.Authority = opts.AuthorityBoost
	}
	th := opts.Thresholds.Normalize()
	if len(ev.Chunks) > th.ChunksFirst {
		b.Depth += chunkBoost
	}
	if len(ev.Chunks) > th.ChunksSecond {
		b.Depth += chunkBoost
	}
	if utf8.RuneCountInString(ev.Title) > th.TitleLength {
		b.Title = titleBoost
	}
	if utf8.RuneCountInString(ev.Snippet) > th.SnippetLength {
		b.Snippet = snippetBoost
	}
	b.Recency = recency(ev.PublishedAt, opts, now)
	b.Bias = bias(host, opts.DomainBias)
	return b
}

func (b Breakdown) total() float64 {
	return b.Base + b.Authority + b.Depth + b.Title + b.Snippet + b.Recency + b.Bias
}

// recency decays linearly from the full boost at publication to zero at the
// end of the window. Future dates count as brand new.
func recency(published *time.Time, opts Options, now time.Time) float64 {
	if published == nil || opts.RecencyBoost <= 0 {
		return 0
	}
	window := opts.RecencyWindow
	if window <= 0 {
		window = defaultWindow
	}
	age := now.Sub(*published)
	if age < 0 {
		age = 0
	}
	factor := 1 - float64(age)/float64(window)
	if factor <= 0 {
		return 0
	}
	return opts.RecencyBoost * factor
}

func isAuthoritative(host string, domains []string) bool {
	if host == "" {
		return false
	}
	for _, d := range domains {
		d = strings.ToLower(strings.TrimSpace(d))
		if d == "" {
			continue
		}
		if helpers.SameOrSubdomain(host, d) || strings.Contains(host, d) {
			return true
		}
	}
	return false
}

// bias returns the adjustment of the most specific matching domain.
func bias(host string, table map[string]float64) float64 {
	best, bestLen := 0.0, -1
	for d, v := range table {
		if helpers.SameOrSubdomain(host, d) && len(d) > bestLen {
			best, bestLen = v, len(d)
		}
	}
	return best
}

func urlKey(raw string) string {
	if k, err := helpers.DedupKey(raw); err == nil {
		return k
	}
	return raw
}
