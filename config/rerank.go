package config

import (
	"fmt"
	"strings"
	"time"
)

// DefaultAuthoritativeDomains are boosted when no list is configured. Entries
// starting with a dot match by suffix.
var DefaultAuthoritativeDomains = []string{
	"wikipedia.org",
	"britannica.com",
	"nature.com",
	"sciencedirect.com",
	"arxiv.org",
	"who.int",
	".gov",
	".edu",
}

const (
	DefaultAuthorityBoost = 0.3
	DefaultRecencyBoost   = 0.2

	DefaultChunksFirst   = 5
	DefaultChunksSecond  = 10
	DefaultTitleLength   = 50
	DefaultSnippetLength = 100
)

// DefaultThresholds returns the standard content-quality thresholds.
func DefaultThresholds() RerankThresholds {
	return RerankThresholds{
		ChunksFirst:   DefaultChunksFirst,
		ChunksSecond:  DefaultChunksSecond,
		TitleLength:   DefaultTitleLength,
		SnippetLength: DefaultSnippetLength,
	}
}

// Normalize fills unset thresholds with their defaults.
func (t RerankThresholds) Normalize() RerankThresholds {
	d := DefaultThresholds()
	if t.ChunksFirst <= 0 {
		t.ChunksFirst = d.ChunksFirst
	}
	if t.ChunksSecond <= 0 {
		t.ChunksSecond = d.ChunksSecond
	}
	if t.TitleLength <= 0 {
		t.TitleLength = d.TitleLength
	}
	if t.SnippetLength <= 0 {
		t.SnippetLength = d.SnippetLength
	}
	return t
}

// Normalize applies defaults and clamps domain bias values to [-1, 1].
func (c RerankConfig) Normalize() RerankConfig {
	cfg := c
	if cfg.AuthorityBoost == nil {
		cfg.AuthorityBoost = Float(DefaultAuthorityBoost)
	}
	if cfg.RecencyBoost == nil {
		cfg.RecencyBoost = Float(DefaultRecencyBoost)
	}
	cfg.Thresholds = cfg.Thresholds.Normalize()
	if cfg.AuthoritativeDomains == nil {
		cfg.AuthoritativeDomains = append([]string(nil), DefaultAuthoritativeDomains...)
	} else {
		domains := make([]string, 0, len(cfg.AuthoritativeDomains))
		for _, d := range cfg.AuthoritativeDomains {
			d = strings.TrimSpace(strings.ToLower(d))
			if d != "" {
				domains = append(domains, d)
			}
		}
		cfg.AuthoritativeDomains = domains
	}
	if cfg.RecencyWindow <= 0 {
		cfg.RecencyWindow = 365 * 24 * time.Hour
	}
	domainBias := make(map[string]float64, len(cfg.DomainBias))
	for host, value := range cfg.DomainBias {
		key := NormalizeHost(host)
		if key == "" {
			continue
		}
		if value < -1 {
			value = -1
		}
		if value > 1 {
			value = 1
		}
		domainBias[key] = value
	}
	cfg.DomainBias = domainBias
	return cfg
}

// Validate ensures boosts are usable.
func (c RerankConfig) Validate() error {
	if c.AuthorityBoost != nil && *c.AuthorityBoost < 0 {
		return fmt.Errorf("rerank.authority_boost cannot be negative")
	}
	if c.RecencyBoost != nil && *c.RecencyBoost < 0 {
		return fmt.Errorf("rerank.recency_boost cannot be negative")
	}
	if t := c.Thresholds; t.ChunksSecond > 0 && t.ChunksFirst > t.ChunksSecond {
		return fmt.Errorf("rerank.thresholds.chunks_first (%d) cannot exceed chunks_second (%d)", t.ChunksFirst, t.ChunksSecond)
	}
	return nil
}

// normalizeTopics lower-cases topic keys and host entries while keeping the
// configured host order.
func normalizeTopics(topics map[string][]string) map[string][]string {
	if len(topics) == 0 {
		return nil
	}
	out := make(map[string][]string, len(topics))
	for topic, hosts := range topics {
		key := strings.ToLower(strings.TrimSpace(topic))
		if key == "" {
			continue
		}
		seen := make(map[string]struct{}, len(hosts))
		var list []string
		for _, h := range hosts {
			h = NormalizeHost(h)
			if h == "" {
				continue
			}
			if _, ok := seen[h]; ok {
				continue
			}
			seen[h] = struct{}{}
			list = append(list, h)
		}
		out[key] = list
	}
	return out
}
