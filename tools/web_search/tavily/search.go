package tavily

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/mohammad-safakhou/newser-evidence/internal/helpers"
	"github.com/mohammad-safakhou/newser-evidence/internal/httpclient"
	"github.com/mohammad-safakhou/newser-evidence/tools/web_search/models"
)

const DefaultBaseURL = "https://api.tavily.com"

type Search struct {
	apiKey  string
	baseURL string
	client  *httpclient.Client
}

func New(apiKey, baseURL string, client *httpclient.Client) (*Search, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, fmt.Errorf("tavily: %w", models.ErrMissingAPIKey)
	}
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if client == nil {
		client = httpclient.New(0, 2, 0)
	}
	return &Search{apiKey: apiKey, baseURL: strings.TrimRight(baseURL, "/"), client: client}, nil
}

func (s *Search) ID() models.ProviderID { return models.Tavily }

func (s *Search) headers() map[string]string {
	return map[string]string{"Authorization": "Bearer " + s.apiKey}
}

type searchResult struct {
	Title         string  `json:"title"`
	URL           string  `json:"url"`
	Content       string  `json:"content"`
	Score         float64 `json:"score"`
	PublishedDate string  `json:"published_date"`
}

// Discover runs a snippet-only search (https://docs.tavily.com/documentation/api-reference/endpoint/search).
func (s *Search) Discover(ctx context.Context, q models.Query) ([]models.Hit, error) {
	depth := q.Depth
	if depth == "" {
		depth = models.DepthBasic
	}
	payload := map[string]any{
		"query":               q.Text,
		"search_depth":        string(depth),
		"max_results":         q.MaxResults,
		"include_raw_content": false,
		"include_answer":      false,
	}
	if len(q.IncludeDomains) > 0 {
		payload["include_domains"] = q.IncludeDomains
	}
	if len(q.ExcludeDomains) > 0 {
		payload["exclude_domains"] = q.ExcludeDomains
	}

	var raw struct {
		Results []json.RawMessage `json:"results"`
	}
	if err := s.client.DoJSON(ctx, http.MethodPost, s.baseURL+"/search", s.headers(), payload, &raw); err != nil {
		return nil, fmt.Errorf("tavily search: %w", err)
	}

	out := make([]models.Hit, 0, len(raw.Results))
	for _, rec := range raw.Results {
		var r searchResult
		if err := json.Unmarshal(rec, &r); err != nil {
			continue
		}
		hit, err := models.NewHit(models.Tavily, q.Text, r.URL)
		if err != nil {
			continue
		}
		hit.Title = helpers.PlainText(r.Title)
		hit.Snippet = r.Content
		hit.Score = models.Float(r.Score)
		hit.PublishedAt = models.ParseDate(r.PublishedDate)
		hit.Raw = rec
		out = append(out, hit)
	}
	return out, nil
}

type extractResult struct {
	URL        string `json:"url"`
	RawContent string `json:"raw_content"`
}

// Extract fetches page content for urls (https://docs.tavily.com/documentation/api-reference/endpoint/extract).
func (s *Search) Extract(ctx context.Context, urls []string) ([]models.Hit, error) {
	var raw struct {
		Results []json.RawMessage `json:"results"`
	}
	payload := map[string]any{"urls": urls}
	if err := s.client.DoJSON(ctx, http.MethodPost, s.baseURL+"/extract", s.headers(), payload, &raw); err != nil {
		return nil, fmt.Errorf("tavily extract: %w", err)
	}

	out := make([]models.Hit, 0, len(raw.Results))
	for _, rec := range raw.Results {
		var r extractResult
		if err := json.Unmarshal(rec, &r); err != nil {
			continue
		}
		hit, err := models.NewHit(models.Tavily, "", r.URL)
		if err != nil {
			continue
		}
		hit.Content = r.RawContent
		hit.Raw = rec
		out = append(out, hit)
	}
	return out, nil
}
