package robots

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"time"

	"go.uber.org/zap"

	"github.com/mohammad-safakhou/newser-evidence/internal/logging"
)

const maxRobotsBytes = 512 << 10

// Checker answers robots.txt questions for the harvester. Any failure to
// obtain or read a robots file allows the fetch.
type Checker struct {
	client    *http.Client
	userAgent string
	timeout   time.Duration
	ttl       time.Duration
	cache     Cache
	logger    *zap.Logger
}

type Option func(*Checker)

func WithCache(c Cache) Option { return func(ch *Checker) { ch.cache = c } }

func WithHTTPClient(c *http.Client) Option { return func(ch *Checker) { ch.client = c } }

func WithLogger(l *zap.Logger) Option { return func(ch *Checker) { ch.logger = l } }

func NewChecker(userAgent string, timeout, ttl time.Duration, opts ...Option) *Checker {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	if ttl <= 0 {
		ttl = time.Hour
	}
	c := &Checker{userAgent: userAgent, timeout: timeout, ttl: ttl}
	for _, opt := range opts {
		opt(c)
	}
	if c.client == nil {
		c.client = &http.Client{}
	}
	if c.cache == nil {
		c.cache = NewMemoryCache()
	}
	c.logger = logging.OrNop(c.logger).Named("robots")
	return c
}

// Allowed reports whether u may be fetched under its origin's robots.txt.
func (c *Checker) Allowed(ctx context.Context, u *url.URL) bool {
	origin := u.Scheme + "://" + u.Host
	body, ok, err := c.cache.Get(ctx, origin)
	if err != nil {
		c.logger.Debug("robots cache read failed", zap.String("origin", origin), zap.Error(err))
	}
	if !ok {
		body = c.fetch(ctx, origin)
		if ctx.Err() == nil {
			if err := c.cache.Set(ctx, origin, body, c.ttl); err != nil {
				c.logger.Debug("robots cache write failed", zap.String("origin", origin), zap.Error(err))
			}
		}
	}
	path := u.EscapedPath()
	if u.RawQuery != "" {
		path += "?" + u.RawQuery
	}
	return Parse(body).Allowed(c.userAgent, path)
}

// fetch returns the robots body, or "" (allow everything) on any failure or
// non-2xx status.
func (c *Checker) fetch(ctx context.Context, origin string) string {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, origin+"/robots.txt", nil)
	if err != nil {
		return ""
	}
	req.Header.Set("User-Agent", c.userAgent)
	resp, err := c.client.Do(req)
	if err != nil {
		c.logger.Debug("robots fetch failed", zap.String("origin", origin), zap.Error(err))
		return ""
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return ""
	}
	b, err := io.ReadAll(io.LimitReader(resp.Body, maxRobotsBytes))
	if err != nil {
		return ""
	}
	return string(b)
}
