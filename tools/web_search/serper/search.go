package serper

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

const DefaultBaseURL = "https://google.serper.dev"

type Search struct {
	apiKey  string
	baseURL string
	client  *httpclient.Client
}

func New(apiKey, baseURL string, client *httpclient.Client) (*Search, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, fmt.Errorf("serper: %w", models.ErrMissingAPIKey)
	}
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if client == nil {
		client = httpclient.New(0, 2, 0)
	}
	return &Search{apiKey: apiKey, baseURL: strings.TrimRight(baseURL, "/"), client: client}, nil
}

func (s *Search) ID() models.ProviderID { return models.Serper }

type organic struct {
	Title   string `json:"title"`
	Link    string `json:"link"`
	Snippet string `json:"snippet"`
	Date    string `json:"date"`
}

// Discover queries https://serper.dev with site operators for domain filters.
func (s *Search) Discover(ctx context.Context, q models.Query) ([]models.Hit, error) {
	payload := map[string]any{"q": q.SiteOperators(), "num": q.MaxResults}
	var raw struct {
		Organic []json.RawMessage `json:"organic"`
	}
	headers := map[string]string{"X-API-KEY": s.apiKey}
	if err := s.client.DoJSON(ctx, http.MethodPost, s.baseURL+"/search", headers, payload, &raw); err != nil {
		return nil, fmt.Errorf("serper search: %w", err)
	}

	out := make([]models.Hit, 0, len(raw.Organic))
	for _, rec := range raw.Organic {
		if q.MaxResults > 0 && len(out) >= q.MaxResults {
			break
		}
		var r organic
		if err := json.Unmarshal(rec, &r); err != nil {
			continue
		}
		hit, err := models.NewHit(models.Serper, q.Text, r.Link)
		if err != nil {
			continue
		}
		hit.Title = helpers.PlainText(r.Title)
		hit.Snippet = helpers.PlainText(r.Snippet)
		hit.PublishedAt = models.ParseDate(r.Date)
		hit.Raw = rec
		out = append(out, hit)
	}
	return out, nil
}

// Extract is not offered by Serper.
func (s *Search) Extract(context.Context, []string) ([]models.Hit, error) {
	return nil, models.ErrExtractUnsupported
}
