package web_search

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/mohammad-safakhou/newser-evidence/internal/helpers"
	"github.com/mohammad-safakhou/newser-evidence/internal/httpclient"
	"github.com/mohammad-safakhou/newser-evidence/internal/logging"
	"github.com/mohammad-safakhou/newser-evidence/internal/ratelimit"
	"github.com/mohammad-safakhou/newser-evidence/internal/telemetry"
	"github.com/mohammad-safakhou/newser-evidence/tools/web_search/models"
)

var (
	ErrMissingQuery = errors.New("discovery search requires a query")
	ErrMissingURLs  = errors.New("enrich search requires at least one url")
	ErrInvalidMode  = errors.New("search mode must be discovery or enrich")
)

// Gateway fans a request out to every provider and merges what comes back.
// Provider failures never fail a search; they count as zero results.
type Gateway struct {
	providers []Provider
	limiters  *ratelimit.Registry
	resolver  *DomainResolver
	metrics   *telemetry.Metrics
	logger    *zap.Logger
}

type Option func(*Gateway)

// WithLimiters rate limits each provider through the limiter registered under
// its ID.
func WithLimiters(r *ratelimit.Registry) Option {
	return func(g *Gateway) { g.limiters = r }
}

func WithResolver(r *DomainResolver) Option {
	return func(g *Gateway) { g.resolver = r }
}

func WithMetrics(m *telemetry.Metrics) Option {
	return func(g *Gateway) { g.metrics = m }
}

func WithLogger(l *zap.Logger) Option {
	return func(g *Gateway) { g.logger = l }
}

// NewGateway keeps providers in the given order; merged results follow it.
func NewGateway(providers []Provider, opts ...Option) *Gateway {
	g := &Gateway{providers: providers}
	for _, opt := range opts {
		opt(g)
	}
	if g.resolver == nil {
		g.resolver = NewDomainResolver(nil)
	}
	g.logger = logging.OrNop(g.logger).Named("web_search")
	return g
}

// Providers lists the provider IDs in merge order.
func (g *Gateway) Providers() []models.ProviderID {
	out := make([]models.ProviderID, 0, len(g.providers))
	for _, p := range g.providers {
		out = append(out, p.ID())
	}
	return out
}

// SearchAll runs a discovery or enrich request. Only request validation
// errors are returned; an empty slice is a valid answer.
func (g *Gateway) SearchAll(ctx context.Context, req models.Request) ([]models.Hit, error) {
	mode := req.Mode
	if mode == "" {
		mode = models.ModeDiscovery
	}
	switch mode {
	case models.ModeDiscovery:
		if strings.TrimSpace(req.Query) == "" {
			return nil, ErrMissingQuery
		}
	case models.ModeEnrich:
		if len(nonEmpty(req.URLs)) == 0 {
			return nil, ErrMissingURLs
		}
	default:
		return nil, fmt.Errorf("%w: %q", ErrInvalidMode, req.Mode)
	}
	if len(g.providers) == 0 {
		return []models.Hit{}, nil
	}

	exclude := g.resolver.Resolve(req.ExcludeDomains)
	if mode == models.ModeEnrich {
		urls := nonEmpty(req.URLs)
		limit := req.MaxResults
		if limit <= 0 {
			limit = len(urls)
		}
		batches := g.fanOut(ctx, mode, func(ctx context.Context, p Provider) ([]models.Hit, error) {
			return p.Extract(ctx, urls)
		})
		return g.merge(batches, exclude, limit, true), nil
	}

	limit := req.MaxResults
	if limit <= 0 {
		limit = models.DefaultMaxResults
	}
	q := models.Query{
		Text:           strings.TrimSpace(req.Query),
		MaxResults:     int(math.Ceil(float64(limit) / float64(len(g.providers)))),
		IncludeDomains: g.resolver.Resolve(req.IncludeDomains),
		ExcludeDomains: exclude,
		Depth:          req.Depth,
	}
	hits := g.discover(ctx, q, exclude, limit)
	if len(hits) == 0 && len(req.IncludeDomains) > 0 && ctx.Err() == nil {
		g.logger.Info("discovery returned nothing with include filter, retrying without it",
			zap.String("query", q.Text), zap.Strings("include", req.IncludeDomains))
		g.metrics.ObserveFallback()
		q.IncludeDomains = nil
		hits = g.discover(ctx, q, exclude, limit)
	}
	return hits, nil
}

func (g *Gateway) discover(ctx context.Context, q models.Query, exclude []string, limit int) []models.Hit {
	batches := g.fanOut(ctx, models.ModeDiscovery, func(ctx context.Context, p Provider) ([]models.Hit, error) {
		return p.Discover(ctx, q)
	})
	return g.merge(batches, exclude, limit, false)
}

// fanOut calls every provider concurrently and returns their hits indexed by
// provider position. A failed provider leaves a nil batch.
func (g *Gateway) fanOut(ctx context.Context, mode models.Mode, call func(context.Context, Provider) ([]models.Hit, error)) [][]models.Hit {
	batches := make([][]models.Hit, len(g.providers))
	var wg sync.WaitGroup
	for i, p := range g.providers {
		wg.Add(1)
		go func(i int, p Provider) {
			defer wg.Done()
			start := time.Now()
			hits, err := g.callProvider(ctx, p, call)
			id := string(p.ID())
			switch {
			case errors.Is(err, models.ErrExtractUnsupported):
				g.logger.Debug("provider has no extract endpoint", zap.String("provider", id))
				g.metrics.ObserveProvider(id, string(mode), telemetry.OutcomeUnsupported, 0, time.Since(start))
			case err != nil:
				g.logger.Warn("provider call failed",
					zap.String("provider", id), zap.String("mode", string(mode)), zap.Error(err))
				g.metrics.ObserveProvider(id, string(mode), telemetry.OutcomeError, 0, time.Since(start))
			default:
				g.metrics.ObserveProvider(id, string(mode), telemetry.OutcomeOK, len(hits), time.Since(start))
				batches[i] = hits
			}
		}(i, p)
	}
	wg.Wait()
	return batches
}

func (g *Gateway) callProvider(ctx context.Context, p Provider, call func(context.Context, Provider) ([]models.Hit, error)) (hits []models.Hit, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("provider %s panicked: %v", p.ID(), r)
		}
	}()
	lim, ok := g.limiters.Get(string(p.ID()))
	if !ok {
		return call(ctx, p)
	}
	// every upstream attempt costs a token, retries included
	ctx = httpclient.WithRetryGate(ctx, func(ctx context.Context) error { return lim.Acquire(ctx, 1) })
	err = lim.Execute(ctx, 1, func(ctx context.Context) error {
		var callErr error
		hits, callErr = call(ctx, p)
		return callErr
	})
	return hits, err
}

// merge concatenates batches in provider order, drops invalid and excluded
// hits, normalises scores per batch, collapses duplicate URLs keeping the
// first and truncates to limit.
func (g *Gateway) merge(batches [][]models.Hit, exclude []string, limit int, requireContent bool) []models.Hit {
	out := make([]models.Hit, 0, limit)
	seen := make(map[string]struct{})
	dropped := 0
	for _, batch := range batches {
		normalizeScores(batch)
		for _, hit := range batch {
			if !hit.Valid() || excluded(hit.Hostname(), exclude) {
				continue
			}
			if requireContent && strings.TrimSpace(hit.Content) == "" {
				continue
			}
			key, err := helpers.DedupKey(hit.URL)
			if err != nil {
				continue
			}
			if _, dup := seen[key]; dup {
				dropped++
				continue
			}
			seen[key] = struct{}{}
			out = append(out, hit)
		}
	}
	g.metrics.ObserveDedup("pre_fetch", dropped)
	if len(out) > limit {
		out = out[:limit]
	}
	return out
}

// normalizeScores divides each provider score by the batch maximum. Hits
// without a score, or batches whose best score is not positive, stay unset.
func normalizeScores(batch []models.Hit) {
	best := 0.0
	for _, h := range batch {
		if h.Score != nil && *h.Score > best {
			best = *h.Score
		}
	}
	if best <= 0 {
		return
	}
	for i := range batch {
		if batch[i].Score == nil {
			continue
		}
		batch[i].NormalizedScore = models.Float(*batch[i].Score / best)
	}
}

func excluded(host string, exclude []string) bool {
	for _, d := range exclude {
		if helpers.SameOrSubdomain(host, d) {
			return true
		}
	}
	return false
}

func nonEmpty(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}
