// Package runtime is the composition root: it turns a Config into a ready
// pipeline and the HTTP server in front of it.
package runtime

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/mohammad-safakhou/newser-evidence/config"
	"github.com/mohammad-safakhou/newser-evidence/internal/logging"
	"github.com/mohammad-safakhou/newser-evidence/internal/pipeline"
	"github.com/mohammad-safakhou/newser-evidence/internal/ratelimit"
	"github.com/mohammad-safakhou/newser-evidence/internal/rerank"
	"github.com/mohammad-safakhou/newser-evidence/internal/server"
	"github.com/mohammad-safakhou/newser-evidence/internal/telemetry"
	"github.com/mohammad-safakhou/newser-evidence/repository/redis_repository"
	"github.com/mohammad-safakhou/newser-evidence/tools/web_fetch"
	"github.com/mohammad-safakhou/newser-evidence/tools/web_fetch/robots"
	"github.com/mohammad-safakhou/newser-evidence/tools/web_search"
)

// HarvestLimiter is the registry name of the shared page fetch limiter.
const HarvestLimiter = "harvest"

// App holds every long-lived component built from configuration.
type App struct {
	Config    *config.Config
	Logger    *zap.Logger
	Metrics   *telemetry.Metrics
	Limiters  *ratelimit.Registry
	Gateway   *web_search.Gateway
	Harvester *web_fetch.Harvester
	Pipeline  *pipeline.Pipeline
	Rerank    rerank.Options

	redis *redis.Client
}

// Build wires the application. cfg must already be normalised and validated,
// as LoadConfig returns it.
func Build(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*App, error) {
	logger = logging.OrNop(logger)
	app := &App{Config: cfg, Logger: logger, Metrics: SetupMetrics(cfg.Telemetry)}

	active := cfg.ActiveProviders()
	settings := make(map[string]ratelimit.Settings, len(active)+1)
	for _, p := range active {
		settings[p.ID] = ratelimit.Settings{RequestsPerSecond: p.RequestsPerSecond, Burst: p.Burst}
	}
	settings[HarvestLimiter] = ratelimit.Settings{RequestsPerSecond: cfg.Harvest.RequestsPerSecond, Burst: cfg.Harvest.Burst}
	limiters, err := ratelimit.NewRegistry(settings, ratelimit.WithObserver(app.Metrics))
	if err != nil {
		return nil, fmt.Errorf("rate limiters: %w", err)
	}
	app.Limiters = limiters

	providers, err := web_search.NewProviders(active)
	if err != nil {
		return nil, fmt.Errorf("providers: %w", err)
	}
	if len(providers) == 0 {
		logger.Warn("no search providers enabled; discovery will return nothing")
	}
	app.Gateway = web_search.NewGateway(providers,
		web_search.WithLimiters(limiters),
		web_search.WithResolver(web_search.NewDomainResolver(web_search.MergeTopics(web_search.DefaultTopics(), cfg.Topics))),
		web_search.WithMetrics(app.Metrics),
		web_search.WithLogger(logger),
	)

	harvestLimiter, _ := limiters.Get(HarvestLimiter)
	opts := []web_fetch.Option{
		web_fetch.WithLimiter(harvestLimiter),
		web_fetch.WithMetrics(app.Metrics),
		web_fetch.WithLogger(logger),
	}
	if cfg.Harvest.RespectRobots {
		cache, err := app.robotsCache(ctx)
		if err != nil {
			return nil, err
		}
		opts = append(opts, web_fetch.WithRobots(robots.NewChecker(
			cfg.Harvest.UserAgent, cfg.Harvest.RobotsTimeout, cfg.Harvest.RobotsCacheTTL,
			robots.WithCache(cache), robots.WithLogger(logger.Named("web_fetch")),
		)))
	}
	app.Harvester, err = web_fetch.NewHarvester(cfg.Harvest, opts...)
	if err != nil {
		app.Close()
		return nil, fmt.Errorf("harvester: %w", err)
	}

	app.Rerank = rerank.OptionsFromConfig(cfg.Rerank)
	app.Pipeline = pipeline.New(app.Gateway, app.Harvester, pipeline.Options{
		MaxResults:  cfg.Pipeline.MaxResults,
		Enrich:      cfg.Pipeline.Enrich,
		DirectFetch: cfg.Pipeline.DirectFetch,
		Rerank:      app.Rerank,
	}, app.Metrics, logger)
	return app, nil
}

// robotsCache shares robots.txt across instances through Redis when it is
// configured and keeps it in process otherwise.
func (a *App) robotsCache(ctx context.Context) (robots.Cache, error) {
	rc := a.Config.Storage.Redis
	if !rc.Enabled() {
		return robots.NewMemoryCache(), nil
	}
	client, err := redis_repository.Conn(ctx, rc)
	if err != nil {
		return nil, fmt.Errorf("robots cache: %w", err)
	}
	a.redis = client
	a.Logger.Info("robots cache in redis", zap.String("addr", rc.Addr()))
	return robots.NewRedisCache(client, rc.KeyPrefix), nil
}

// Server builds the HTTP server for the app.
func (a *App) Server() *server.Server {
	h := &server.EvidenceHandler{
		Search:  a.Gateway,
		Harvest: a.Harvester,
		Gather:  a.Pipeline,
		Rerank:  a.Rerank,
	}
	return server.New(a.Config.Server, h, a.Metrics, a.Config.Telemetry.MetricsPath, a.Logger)
}

// Close releases connections opened by Build.
func (a *App) Close() {
	if a.redis != nil {
		_ = a.redis.Close()
		a.redis = nil
	}
}
