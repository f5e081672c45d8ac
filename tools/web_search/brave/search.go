package brave

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/mohammad-safakhou/newser-evidence/internal/helpers"
	"github.com/mohammad-safakhou/newser-evidence/internal/httpclient"
	"github.com/mohammad-safakhou/newser-evidence/tools/web_search/models"
)

const (
	DefaultBaseURL = "https://api.search.brave.com"
	maxCount       = 20
)

type Search struct {
	apiKey  string
	baseURL string
	client  *httpclient.Client
}

func New(apiKey, baseURL string, client *httpclient.Client) (*Search, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, fmt.Errorf("brave: %w", models.ErrMissingAPIKey)
	}
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if client == nil {
		client = httpclient.New(0, 2, 0)
	}
	return &Search{apiKey: apiKey, baseURL: strings.TrimRight(baseURL, "/"), client: client}, nil
}

func (s *Search) ID() models.ProviderID { return models.Brave }

type result struct {
	Title       string `json:"title"`
	URL         string `json:"url"`
	Description string `json:"description"`
	PageAge     string `json:"page_age"`
}

// Discover queries https://api.search.brave.com/app/documentation/web-search.
// Domain filters are sent as site: operators.
func (s *Search) Discover(ctx context.Context, q models.Query) ([]models.Hit, error) {
	count := q.MaxResults
	if count <= 0 || count > maxCount {
		count = maxCount
	}
	params := url.Values{}
	params.Set("q", q.SiteOperators())
	params.Set("count", strconv.Itoa(count))
	params.Set("safesearch", "off")
	endpoint := s.baseURL + "/res/v1/web/search?" + params.Encode()

	var raw struct {
		Web struct {
			Results []json.RawMessage `json:"results"`
		} `json:"web"`
	}
	headers := map[string]string{"X-Subscription-Token": s.apiKey}
	if err := s.client.DoJSON(ctx, http.MethodGet, endpoint, headers, nil, &raw); err != nil {
		return nil, fmt.Errorf("brave search: %w", err)
	}

	out := make([]models.Hit, 0, len(raw.Web.Results))
	for _, rec := range raw.Web.Results {
		if len(out) >= count {
			break
		}
		var r result
		if err := json.Unmarshal(rec, &r); err != nil {
			continue
		}
		hit, err := models.NewHit(models.Brave, q.Text, r.URL)
		if err != nil {
			continue
		}
		hit.Title = helpers.PlainText(r.Title)
		hit.Snippet = helpers.PlainText(r.Description)
		hit.PublishedAt = models.ParseDate(r.PageAge)
		hit.Raw = rec
		out = append(out, hit)
	}
	return out, nil
}

// Extract is not offered by Brave.
func (s *Search) Extract(context.Context, []string) ([]models.Hit, error) {
	return nil, models.ErrExtractUnsupported
}
