package web_search

import (
	"context"
	"errors"
	"fmt"

	"github.com/mohammad-safakhou/newser-evidence/config"
	"github.com/mohammad-safakhou/newser-evidence/internal/httpclient"
	"github.com/mohammad-safakhou/newser-evidence/tools/web_search/brave"
	"github.com/mohammad-safakhou/newser-evidence/tools/web_search/exa"
	"github.com/mohammad-safakhou/newser-evidence/tools/web_search/models"
	"github.com/mohammad-safakhou/newser-evidence/tools/web_search/serper"
	"github.com/mohammad-safakhou/newser-evidence/tools/web_search/tavily"
)

// Provider is one external search API.
type Provider interface {
	ID() models.ProviderID
	// Discover returns snippet-only hits for a query.
	Discover(ctx context.Context, q models.Query) ([]models.Hit, error)
	// Extract returns hits carrying page content for exactly urls.
	Extract(ctx context.Context, urls []string) ([]models.Hit, error)
}

var ErrUnsupportedProvider = errors.New("unsupported provider")

// NewProvider builds the adapter for cfg.ID. A missing API key fails here so
// misconfiguration surfaces at startup.
func NewProvider(cfg config.ProviderConfig, client *httpclient.Client) (Provider, error) {
	if client == nil {
		client = httpclient.New(cfg.Timeout, cfg.Retries, 0)
	}
	switch models.ProviderID(cfg.ID) {
	case models.Tavily:
		return tavily.New(cfg.APIKey, cfg.BaseURL, client)
	case models.Exa:
		return exa.New(cfg.APIKey, cfg.BaseURL, client)
	case models.Brave:
		return brave.New(cfg.APIKey, cfg.BaseURL, client)
	case models.Serper:
		return serper.New(cfg.APIKey, cfg.BaseURL, client)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedProvider, cfg.ID)
	}
}

// NewProviders builds every active provider in configured order.
func NewProviders(cfgs []config.ProviderConfig) ([]Provider, error) {
	out := make([]Provider, 0, len(cfgs))
	for _, c := range cfgs {
		p, err := NewProvider(c, nil)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}
