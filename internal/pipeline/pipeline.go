// Package pipeline turns a research query into ranked evidence: discovery,
// provider-side enrichment, direct harvesting and reranking.
package pipeline

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/mohammad-safakhou/newser-evidence/internal/helpers"
	"github.com/mohammad-safakhou/newser-evidence/internal/logging"
	"github.com/mohammad-safakhou/newser-evidence/internal/rerank"
	"github.com/mohammad-safakhou/newser-evidence/internal/telemetry"
	fetchmodels "github.com/mohammad-safakhou/newser-evidence/tools/web_fetch/models"
	"github.com/mohammad-safakhou/newser-evidence/tools/web_search/models"
)

// Searcher is satisfied by *web_search.Gateway.
type Searcher interface {
	SearchAll(ctx context.Context, req models.Request) ([]models.Hit, error)
}

// Harvester is satisfied by *web_fetch.Harvester.
type Harvester interface {
	FromContent(hit models.Hit) (*fetchmodels.Evidence, error)
	HarvestAll(ctx context.Context, hits []models.Hit) []fetchmodels.Evidence
}

type Options struct {
	MaxResults  int
	Enrich      bool
	DirectFetch bool
	Rerank      rerank.Options
}

type Request struct {
	Query          string       `json:"query"`
	MaxResults     int          `json:"max_results,omitempty"`
	IncludeDomains []string     `json:"include_domains,omitempty"`
	ExcludeDomains []string     `json:"exclude_domains,omitempty"`
	Depth          models.Depth `json:"depth,omitempty"`
}

type Result struct {
	Query     string                 `json:"query"`
	Evidence  []fetchmodels.Evidence `json:"evidence"`
	Hits      int                    `json:"hits"`
	Enriched  int                    `json:"enriched"`
	Harvested int                    `json:"harvested"`
	Deduped   int                    `json:"deduped"`
	Took      time.Duration          `json:"took"`
}

type Pipeline struct {
	search  Searcher
	harvest Harvester
	opts    Options
	metrics *telemetry.Metrics
	logger  *zap.Logger
}

func New(search Searcher, harvest Harvester, opts Options, metrics *telemetry.Metrics, logger *zap.Logger) *Pipeline {
	if opts.MaxResults <= 0 {
		opts.MaxResults = models.DefaultMaxResults
	}
	return &Pipeline{
		search:  search,
		harvest: harvest,
		opts:    opts,
		metrics: metrics,
		logger:  logging.OrNop(logger).Named("pipeline"),
	}
}

// Gather runs the whole pipeline for one query. Only invalid requests return
// an error; a result without evidence is a valid answer.
func (p *Pipeline) Gather(ctx context.Context, req Request) (Result, error) {
	start := time.Now()
	res := Result{Query: req.Query, Evidence: []fetchmodels.Evidence{}}

	limit := req.MaxResults
	if limit <= 0 {
		limit = p.opts.MaxResults
	}
	hits, err := p.search.SearchAll(ctx, models.Request{
		Query:          req.Query,
		Mode:           models.ModeDiscovery,
		MaxResults:     limit,
		IncludeDomains: req.IncludeDomains,
		ExcludeDomains: req.ExcludeDomains,
		Depth:          req.Depth,
	})
	if err != nil {
		return res, err
	}
	res.Hits = len(hits)
	if len(hits) == 0 {
		res.Took = time.Since(start)
		return res, nil
	}

	var (
		evidence []fetchmodels.Evidence
		pending  []models.Hit
	)
	content := p.enrich(ctx, hits)
	for _, hit := range hits {
		if extra, ok := content[urlKey(hit.URL)]; ok {
			hit.Content = extra.Content
			if hit.PublishedAt == nil {
				hit.PublishedAt = extra.PublishedAt
			}
			ev, err := p.harvest.FromContent(hit)
			if err == nil {
				evidence = append(evidence, *ev)
				res.Enriched++
				continue
			}
			p.logger.Debug("enriched content unusable", zap.String("url", hit.URL), zap.Error(err))
		}
		pending = append(pending, hit)
	}

	if p.opts.DirectFetch && len(pending) > 0 {
		harvested := p.harvest.HarvestAll(ctx, pending)
		res.Harvested = len(harvested)
		evidence = append(evidence, harvested...)
	}

	unique, dropped := rerank.Dedup(evidence)
	p.metrics.ObserveDedup("post_fetch", dropped)
	res.Deduped = dropped
	res.Evidence = rerank.DedupAndRerank(unique, p.opts.Rerank)
	res.Took = time.Since(start)

	p.logger.Info("gathered evidence",
		zap.String("query", req.Query),
		zap.Int("hits", res.Hits),
		zap.Int("enriched", res.Enriched),
		zap.Int("harvested", res.Harvested),
		zap.Int("evidence", len(res.Evidence)),
		zap.Duration("took", res.Took))
	return res, nil
}

// enrich asks providers for page content of the discovered URLs, keyed by
// dedup key.
func (p *Pipeline) enrich(ctx context.Context, hits []models.Hit) map[string]models.Hit {
	if !p.opts.Enrich {
		return nil
	}
	urls := make([]string, 0, len(hits))
	for _, h := range hits {
		urls = append(urls, h.URL)
	}
	enriched, err := p.search.SearchAll(ctx, models.Request{Mode: models.ModeEnrich, URLs: urls, MaxResults: len(urls)})
	if err != nil {
		p.logger.Warn("enrich failed", zap.Error(err))
		return nil
	}
	out := make(map[string]models.Hit, len(enriched))
	for _, h := range enriched {
		k := urlKey(h.URL)
		if _, ok := out[k]; !ok && h.Content != "" {
			out[k] = h
		}
	}
	return out
}

func urlKey(raw string) string {
	if k, err := helpers.DedupKey(raw); err == nil {
		return k
	}
	return raw
}
