package web_fetch

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
	"github.com/go-shiori/go-readability"
	"go.uber.org/zap"
	"golang.org/x/net/html/charset"
	"golang.org/x/sync/errgroup"

	"github.com/mohammad-safakhou/newser-evidence/config"
	"github.com/mohammad-safakhou/newser-evidence/internal/helpers"
	"github.com/mohammad-safakhou/newser-evidence/internal/logging"
	"github.com/mohammad-safakhou/newser-evidence/internal/ratelimit"
	"github.com/mohammad-safakhou/newser-evidence/internal/telemetry"
	"github.com/mohammad-safakhou/newser-evidence/tools/web_fetch/models"
	"github.com/mohammad-safakhou/newser-evidence/tools/web_fetch/robots"
	"github.com/mohammad-safakhou/newser-evidence/tools/web_ingest"
	searchmodels "github.com/mohammad-safakhou/newser-evidence/tools/web_search/models"
)

// Reasons a page yields no evidence.
var (
	ErrInvalidURL       = errors.New("invalid url")
	ErrDisallowed       = errors.New("fetch disallowed")
	ErrStatus           = errors.New("unexpected http status")
	ErrContentType      = errors.New("unsupported content type")
	ErrTooShort         = errors.New("content too short")
	ErrTooManyRedirects = errors.New("too many redirects")
	ErrRedirectLoop     = errors.New("redirect loop")
)

const (
	ExtractorStrip       = "strip"
	ExtractorReadability = "readability"
)

// Harvester turns search hits into Evidence by fetching and cleaning pages.
type Harvester struct {
	cfg     config.HarvestConfig
	client  *http.Client
	robots  *robots.Checker
	limiter *ratelimit.Limiter
	hosts   *hostLimiter
	chunker web_ingest.Chunker
	metrics *telemetry.Metrics
	logger  *zap.Logger
	now     func() time.Time
}

type Option func(*Harvester)

// WithHTTPClient replaces the page client. Its redirect policy is overridden
// so redirects are always handled by the harvester.
func WithHTTPClient(c *http.Client) Option { return func(h *Harvester) { h.client = c } }

// WithRobots sets the robots checker used when robots are respected.
func WithRobots(c *robots.Checker) Option { return func(h *Harvester) { h.robots = c } }

// WithLimiter gates every outgoing page request, redirects included.
func WithLimiter(l *ratelimit.Limiter) Option { return func(h *Harvester) { h.limiter = l } }

func WithMetrics(m *telemetry.Metrics) Option { return func(h *Harvester) { h.metrics = m } }

func WithLogger(l *zap.Logger) Option { return func(h *Harvester) { h.logger = l } }

// NewHarvester applies harvest defaults to cfg and validates chunking.
func NewHarvester(cfg config.HarvestConfig, opts ...Option) (*Harvester, error) {
	cfg = cfg.Normalize()
	chunker, err := web_ingest.NewChunker(cfg.MaxChunkSize, cfg.Overlap())
	if err != nil {
		return nil, err
	}
	h := &Harvester{
		cfg:     cfg,
		chunker: chunker,
		hosts:   newHostLimiter(cfg.PerHostRPS),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(h)
	}
	h.logger = logging.OrNop(h.logger).Named("web_fetch")
	if h.client == nil {
		h.client = &http.Client{}
	}
	client := *h.client
	client.CheckRedirect = func(*http.Request, []*http.Request) error { return http.ErrUseLastResponse }
	h.client = &client
	if cfg.RespectRobots && h.robots == nil {
		h.robots = robots.NewChecker(cfg.UserAgent, cfg.RobotsTimeout, cfg.RobotsCacheTTL,
			robots.WithLogger(h.logger))
	}
	if !cfg.RespectRobots {
		h.robots = nil
	}
	return h, nil
}

// HarvestURL fetches a bare URL with no provider context.
func (h *Harvester) HarvestURL(ctx context.Context, raw string) (*models.Evidence, error) {
	hit, err := searchmodels.NewHit("", "", raw)
	if err != nil {
		h.metrics.ObserveHarvest(reason(ErrInvalidURL))
		return nil, fmt.Errorf("%w: %q", ErrInvalidURL, raw)
	}
	return h.Harvest(ctx, hit)
}

// Harvest fetches hit.URL and builds Evidence from it. On any failure it
// returns nil and an error wrapping one of the reason sentinels or the
// transport error.
func (h *Harvester) Harvest(ctx context.Context, hit searchmodels.Hit) (*models.Evidence, error) {
	ev, err := h.harvest(ctx, hit)
	h.metrics.ObserveHarvest(reason(err))
	return ev, err
}

func (h *Harvester) harvest(ctx context.Context, hit searchmodels.Hit) (ev *models.Evidence, err error) {
	defer func() {
		if r := recover(); r != nil {
			ev, err = nil, fmt.Errorf("harvest %s: panic: %v", hit.URL, r)
		}
	}()

	target, err := helpers.ParseHTTPURL(hit.URL)
	if err != nil {
		return nil, fmt.Errorf("%w: %q", ErrInvalidURL, hit.URL)
	}

	ctx, cancel := context.WithTimeout(ctx, h.cfg.FetchTimeout)
	defer cancel()

	resp, final, err := h.fetch(ctx, target)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("%w: %d from %s", ErrStatus, resp.StatusCode, final)
	}
	mediaType := contentType(resp.Header.Get("Content-Type"))
	switch mediaType {
	case "text/html", "application/xhtml+xml", "text/plain":
	default:
		return nil, fmt.Errorf("%w: %q from %s", ErrContentType, mediaType, final)
	}

	body, err := readBody(resp, h.cfg.MaxBodyBytes)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", final, err)
	}

	var (
		text string
		meta pageMeta
	)
	if mediaType == "text/plain" {
		text = CollapseWhitespace(string(body))
	} else {
		text, meta = h.extract(body, final)
	}

	ev, err = h.assemble(hit, text)
	if err != nil {
		return nil, err
	}
	ev.ResolvedURL = final.String()
	ev.CanonicalURL = meta.canonical
	if meta.title != "" {
		ev.Title = meta.title
	}
	if meta.published != nil {
		ev.PublishedAt = meta.published
	}
	return ev, nil
}

// FromContent builds Evidence from content a provider already extracted,
// without touching the network.
func (h *Harvester) FromContent(hit searchmodels.Hit) (*models.Evidence, error) {
	if _, err := helpers.ParseHTTPURL(hit.URL); err != nil {
		return nil, fmt.Errorf("%w: %q", ErrInvalidURL, hit.URL)
	}
	ev, err := h.assemble(hit, CollapseWhitespace(hit.Content))
	if err != nil {
		return nil, err
	}
	ev.ResolvedURL = hit.URL
	return ev, nil
}

// HarvestAll harvests hits concurrently. Failed items are logged and skipped;
// the survivors keep input order.
func (h *Harvester) HarvestAll(ctx context.Context, hits []searchmodels.Hit) []models.Evidence {
	results := make([]*models.Evidence, len(hits))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(h.cfg.Concurrency)
	for i := range hits {
		i := i
		g.Go(func() error {
			ev, err := h.Harvest(gctx, hits[i])
			if err != nil {
				h.logger.Debug("skipping page", zap.String("url", hits[i].URL), zap.Error(err))
				return nil
			}
			results[i] = ev
			return nil
		})
	}
	_ = g.Wait()

	out := make([]models.Evidence, 0, len(hits))
	for _, ev := range results {
		if ev != nil {
			out = append(out, *ev)
		}
	}
	return out
}

// fetch performs GET requests following redirects by hand. It returns the
// final response with an open body and the URL it came from.
func (h *Harvester) fetch(ctx context.Context, target *url.URL) (*http.Response, *url.URL, error) {
	visited := map[string]struct{}{target.String(): {}}
	current := target
	for hops := 0; ; hops++ {
		if err := h.checkAllowed(ctx, current); err != nil {
			return nil, nil, err
		}
		resp, err := h.get(ctx, current)
		if err != nil {
			return nil, nil, err
		}
		if !isRedirect(resp.StatusCode) {
			return resp, current, nil
		}
		loc := resp.Header.Get("Location")
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		resp.Body.Close()
		if loc == "" {
			return nil, nil, fmt.Errorf("%w: %d without location from %s", ErrStatus, resp.StatusCode, current)
		}
		if hops >= h.cfg.MaxRedirects {
			return nil, nil, fmt.Errorf("%w: more than %d from %s", ErrTooManyRedirects, h.cfg.MaxRedirects, target)
		}
		ref, err := url.Parse(loc)
		if err != nil {
			return nil, nil, fmt.Errorf("%w: bad location %q", ErrInvalidURL, loc)
		}
		next := current.ResolveReference(ref)
		if _, err := helpers.ParseHTTPURL(next.String()); err != nil {
			return nil, nil, fmt.Errorf("%w: redirect to %q", ErrInvalidURL, next)
		}
		key := next.String()
		if _, seen := visited[key]; seen {
			return nil, nil, fmt.Errorf("%w: %s", ErrRedirectLoop, key)
		}
		visited[key] = struct{}{}
		h.logger.Debug("following redirect", zap.String("from", current.String()), zap.String("to", key))
		current = next
	}
}

func (h *Harvester) checkAllowed(ctx context.Context, u *url.URL) error {
	host := strings.ToLower(u.Hostname())
	policy := h.cfg.CrawlPolicy
	for _, d := range policy.Disallow {
		if helpers.SameOrSubdomain(host, d) {
			return fmt.Errorf("%w: %s is on the crawl deny list", ErrDisallowed, host)
		}
	}
	if len(policy.Allow) > 0 {
		allowed := false
		for _, d := range policy.Allow {
			if helpers.SameOrSubdomain(host, d) {
				allowed = true
				break
			}
		}
		if !allowed {
			return fmt.Errorf("%w: %s is not on the crawl allow list", ErrDisallowed, host)
		}
	}
	if h.robots != nil && !h.robots.Allowed(ctx, u) {
		return fmt.Errorf("%w: robots.txt blocks %s", ErrDisallowed, u)
	}
	return nil
}

func (h *Harvester) get(ctx context.Context, u *url.URL) (*http.Response, error) {
	if h.limiter != nil {
		if err := h.limiter.Acquire(ctx, 1); err != nil {
			return nil, err
		}
	}
	if err := h.hosts.Wait(ctx, u.Host); err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidURL, err)
	}
	req.Header.Set("User-Agent", h.cfg.UserAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,text/plain;q=0.9,*/*;q=0.1")
	resp, err := h.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", u, err)
	}
	return resp, nil
}

// extract cleans an HTML body with the configured extractor and reads page
// metadata. Readability falls back to tag stripping when it finds nothing.
func (h *Harvester) extract(body []byte, base *url.URL) (string, pageMeta) {
	var meta pageMeta
	if doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body)); err == nil {
		meta = extractMeta(doc, base)
	}
	if h.cfg.Extractor == ExtractorReadability {
		article, err := readability.FromReader(bytes.NewReader(body), base)
		if err == nil {
			if text := CollapseWhitespace(article.TextContent); text != "" {
				return text, meta
			}
		}
	}
	return CleanHTML(string(body)), meta
}

func (h *Harvester) assemble(hit searchmodels.Hit, text string) (*models.Evidence, error) {
	if n := utf8.RuneCountInString(text); n < h.cfg.MinContentLength {
		return nil, fmt.Errorf("%w: %d < %d characters at %s", ErrTooShort, n, h.cfg.MinContentLength, hit.URL)
	}
	return &models.Evidence{
		URL:         hit.URL,
		Title:       hit.Title,
		Snippet:     hit.Snippet,
		ContentHash: web_ingest.ContentHash(text),
		Chunks:      h.chunker.Split(text),
		Provider:    hit.Provider,
		PublishedAt: hit.PublishedAt,
		FetchedAt:   h.now().UTC(),
	}, nil
}

func isRedirect(code int) bool {
	switch code {
	case http.StatusMovedPermanently, http.StatusFound, http.StatusSeeOther,
		http.StatusTemporaryRedirect, http.StatusPermanentRedirect:
		return true
	}
	return false
}

func contentType(header string) string {
	if header == "" {
		return ""
	}
	mt, _, err := mime.ParseMediaType(header)
	if err != nil {
		return strings.ToLower(strings.TrimSpace(strings.Split(header, ";")[0]))
	}
	return mt
}

// reason maps a harvest error to its metrics label.
func reason(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrInvalidURL):
		return "invalid_url"
	case errors.Is(err, ErrDisallowed):
		return "disallowed"
	case errors.Is(err, ErrStatus):
		return "status"
	case errors.Is(err, ErrContentType):
		return "content_type"
	case errors.Is(err, ErrTooShort):
		return "too_short"
	case errors.Is(err, ErrTooManyRedirects):
		return "too_many_redirects"
	case errors.Is(err, ErrRedirectLoop):
		return "redirect_loop"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	default:
		return "transport"
	}
}

// readBody returns at most limit bytes of the response decoded to UTF-8 from
// the charset declared in the header or the document.
func readBody(resp *http.Response, limit int64) ([]byte, error) {
	raw := io.LimitReader(resp.Body, limit)
	r, err := charset.NewReader(raw, resp.Header.Get("Content-Type"))
	if err != nil {
		return nil, err
	}
	return io.ReadAll(r)
}
