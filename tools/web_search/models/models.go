package models

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/mohammad-safakhou/newser-evidence/internal/helpers"
)

type ProviderID string

const (
	Tavily ProviderID = "tavily"
	Exa    ProviderID = "exa"
	Brave  ProviderID = "brave"
	Serper ProviderID = "serper"
)

func (p ProviderID) Valid() bool {
	switch p {
	case Tavily, Exa, Brave, Serper:
		return true
	}
	return false
}

type Mode string

const (
	ModeDiscovery Mode = "discovery"
	ModeEnrich    Mode = "enrich"
)

type Depth string

const (
	DepthBasic    Depth = "basic"
	DepthAdvanced Depth = "advanced"
)

const DefaultMaxResults = 10

var ErrInvalidHitURL = errors.New("hit url must be an absolute http(s) url")

// Request is what callers hand to the gateway.
type Request struct {
	Query          string   `json:"query,omitempty"`
	URLs           []string `json:"urls,omitempty"`
	Mode           Mode     `json:"mode"`
	MaxResults     int      `json:"max_results,omitempty"`
	IncludeDomains []string `json:"include_domains,omitempty"`
	ExcludeDomains []string `json:"exclude_domains,omitempty"`
	Depth          Depth    `json:"depth,omitempty"`
}

// Query is a single discovery call to one provider. Domain lists are already
// resolved to hostnames.
type Query struct {
	Text           string
	MaxResults     int
	IncludeDomains []string
	ExcludeDomains []string
	Depth          Depth
}

// Hit is one provider result. The hostname is always derived from URL.
type Hit struct {
	Provider        ProviderID      `json:"provider"`
	Query           string          `json:"query,omitempty"`
	URL             string          `json:"url"`
	Title           string          `json:"title,omitempty"`
	Snippet         string          `json:"snippet,omitempty"`
	Content         string          `json:"content,omitempty"`
	PublishedAt     *time.Time      `json:"published_at,omitempty"`
	Score           *float64        `json:"score,omitempty"`
	NormalizedScore *float64        `json:"normalized_score,omitempty"`
	FetchedAt       time.Time       `json:"fetched_at"`
	Raw             json.RawMessage `json:"raw,omitempty"`
}

// NewHit validates rawURL and stamps the fetch time.
func NewHit(provider ProviderID, query, rawURL string) (Hit, error) {
	u, err := helpers.ParseHTTPURL(rawURL)
	if err != nil {
		return Hit{}, fmt.Errorf("%w: %q", ErrInvalidHitURL, rawURL)
	}
	return Hit{
		Provider:  provider,
		Query:     query,
		URL:       u.String(),
		FetchedAt: time.Now().UTC(),
	}, nil
}

// Hostname is the lower-cased host of URL without port.
func (h Hit) Hostname() string {
	return helpers.Hostname(h.URL)
}

// Valid reports whether URL still satisfies the NewHit invariant.
func (h Hit) Valid() bool {
	_, err := helpers.ParseHTTPURL(h.URL)
	return err == nil
}

func (h Hit) MarshalJSON() ([]byte, error) {
	type alias Hit
	return json.Marshal(struct {
		alias
		Hostname string `json:"hostname"`
	}{alias: alias(h), Hostname: h.Hostname()})
}

// Float is a small helper for optional scores.
func Float(v float64) *float64 { return &v }
