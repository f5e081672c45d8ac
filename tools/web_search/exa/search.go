package exa

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

const DefaultBaseURL = "https://api.exa.ai"

type Search struct {
	apiKey  string
	baseURL string
	client  *httpclient.Client
}

func New(apiKey, baseURL string, client *httpclient.Client) (*Search, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, fmt.Errorf("exa: %w", models.ErrMissingAPIKey)
	}
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if client == nil {
		client = httpclient.New(0, 2, 0)
	}
	return &Search{apiKey: apiKey, baseURL: strings.TrimRight(baseURL, "/"), client: client}, nil
}

func (s *Search) ID() models.ProviderID { return models.Exa }

func (s *Search) headers() map[string]string {
	return map[string]string{"x-api-key": s.apiKey}
}

type result struct {
	Title         string   `json:"title"`
	URL           string   `json:"url"`
	PublishedDate string   `json:"publishedDate"`
	Score         *float64 `json:"score"`
	Highlights    []string `json:"highlights"`
	Text          string   `json:"text"`
}

// Discover asks for highlights only so no page text is transferred.
func (s *Search) Discover(ctx context.Context, q models.Query) ([]models.Hit, error) {
	searchType := "auto"
	if q.Depth == models.DepthAdvanced {
		searchType = "neural"
	}
	payload := map[string]any{
		"query":      q.Text,
		"numResults": q.MaxResults,
		"type":       searchType,
		"contents": map[string]any{
			"highlights": map[string]any{"numSentences": 3, "highlightsPerUrl": 1},
		},
	}
	if len(q.IncludeDomains) > 0 {
		payload["includeDomains"] = q.IncludeDomains
	}
	if len(q.ExcludeDomains) > 0 {
		payload["excludeDomains"] = q.ExcludeDomains
	}

	var raw struct {
		Results []json.RawMessage `json:"results"`
	}
	if err := s.client.DoJSON(ctx, http.MethodPost, s.baseURL+"/search", s.headers(), payload, &raw); err != nil {
		return nil, fmt.Errorf("exa search: %w", err)
	}

	out := make([]models.Hit, 0, len(raw.Results))
	for _, rec := range raw.Results {
		var r result
		if err := json.Unmarshal(rec, &r); err != nil {
			continue
		}
		hit, err := models.NewHit(models.Exa, q.Text, r.URL)
		if err != nil {
			continue
		}
		hit.Title = helpers.PlainText(r.Title)
		hit.Snippet = strings.Join(r.Highlights, " ")
		hit.Score = r.Score
		hit.PublishedAt = models.ParseDate(r.PublishedDate)
		hit.Raw = rec
		out = append(out, hit)
	}
	return out, nil
}

// Extract retrieves full text for urls through the contents endpoint.
func (s *Search) Extract(ctx context.Context, urls []string) ([]models.Hit, error) {
	payload := map[string]any{"urls": urls, "text": true}
	var raw struct {
		Results []json.RawMessage `json:"results"`
	}
	if err := s.client.DoJSON(ctx, http.MethodPost, s.baseURL+"/contents", s.headers(), payload, &raw); err != nil {
		return nil, fmt.Errorf("exa contents: %w", err)
	}

	out := make([]models.Hit, 0, len(raw.Results))
	for _, rec := range raw.Results {
		var r result
		if err := json.Unmarshal(rec, &r); err != nil {
			continue
		}
		hit, err := models.NewHit(models.Exa, "", r.URL)
		if err != nil {
			continue
		}
		hit.Title = r.Title
		hit.Content = r.Text
		hit.PublishedAt = models.ParseDate(r.PublishedDate)
		hit.Raw = rec
		out = append(out, hit)
	}
	return out, nil
}
