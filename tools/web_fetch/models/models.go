package models

import (
	"time"

	searchmodels "github.com/mohammad-safakhou/newser-evidence/tools/web_search/models"
)

// Evidence is a fetched, cleaned and chunked page.
type Evidence struct {
	URL          string                  `json:"url"`
	Title        string                  `json:"title,omitempty"`
	Snippet      string                  `json:"snippet,omitempty"`
	ContentHash  string                  `json:"content_hash"`
	Chunks       []string                `json:"chunks"`
	Provider     searchmodels.ProviderID `json:"provider,omitempty"`
	ResolvedURL  string                  `json:"resolved_url,omitempty"`
	CanonicalURL string                  `json:"canonical_url,omitempty"`
	PublishedAt  *time.Time              `json:"published_at,omitempty"`
	FetchedAt    time.Time               `json:"fetched_at"`
}
