package web_search

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/mohammad-safakhou/newser-evidence/internal/httpclient"
	"github.com/mohammad-safakhou/newser-evidence/internal/ratelimit"
	"github.com/mohammad-safakhou/newser-evidence/internal/telemetry"
	"github.com/mohammad-safakhou/newser-evidence/tools/web_search/models"
	"github.com/mohammad-safakhou/newser-evidence/tools/web_search/tavily"
)

type fakeProvider struct {
	id       models.ProviderID
	discover func(q models.Query) ([]models.Hit, error)
	extract  func(urls []string) ([]models.Hit, error)

	mu      sync.Mutex
	queries []models.Query
}

func (f *fakeProvider) ID() models.ProviderID { return f.id }

func (f *fakeProvider) Discover(_ context.Context, q models.Query) ([]models.Hit, error) {
	f.mu.Lock()
	f.queries = append(f.queries, q)
	f.mu.Unlock()
	if f.discover == nil {
		return nil, nil
	}
	return f.discover(q)
}

func (f *fakeProvider) Extract(_ context.Context, urls []string) ([]models.Hit, error) {
	if f.extract == nil {
		return nil, models.ErrExtractUnsupported
	}
	return f.extract(urls)
}

func (f *fakeProvider) calls() []models.Query {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]models.Query(nil), f.queries...)
}

func hit(t *testing.T, p models.ProviderID, url string, score ...float64) models.Hit {
	t.Helper()
	h, err := models.NewHit(p, "q", url)
	if err != nil {
		t.Fatalf("NewHit(%q): %v", url, err)
	}
	if len(score) > 0 {
		h.Score = models.Float(score[0])
	}
	return h
}

func TestSearchAllValidation(t *testing.T) {
	g := NewGateway([]Provider{&fakeProvider{id: models.Tavily}})
	cases := []struct {
		name string
		req  models.Request
		want error
	}{
		{"missing query", models.Request{Mode: models.ModeDiscovery, Query: "  "}, ErrMissingQuery},
		{"missing urls", models.Request{Mode: models.ModeEnrich, URLs: []string{""}}, ErrMissingURLs},
		{"bad mode", models.Request{Mode: "crawl", Query: "x"}, ErrInvalidMode},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := g.SearchAll(context.Background(), tc.req); !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
		})
	}
}

func TestDiscoveryMergesInProviderOrder(t *testing.T) {
	a := &fakeProvider{id: models.Tavily, discover: func(q models.Query) ([]models.Hit, error) {
		return []models.Hit{
			hit(t, models.Tavily, "https://a.example/1", 0.8),
			hit(t, models.Tavily, "https://shared.example/x?utm_source=feed", 0.4),
		}, nil
	}}
	b := &fakeProvider{id: models.Exa, discover: func(q models.Query) ([]models.Hit, error) {
		return []models.Hit{
			hit(t, models.Exa, "https://shared.example/x/"),
			hit(t, models.Exa, "https://b.example/2"),
			hit(t, models.Exa, "https://b.example/3"),
		}, nil
	}}
	metrics := telemetry.New()
	g := NewGateway([]Provider{a, b}, WithMetrics(metrics))

	hits, err := g.SearchAll(context.Background(), models.Request{Mode: models.ModeDiscovery, Query: "q", MaxResults: 3})
	if err != nil {
		t.Fatalf("SearchAll: %v", err)
	}
	want := []string{"https://a.example/1", "https://shared.example/x?utm_source=feed", "https://b.example/2"}
	if len(hits) != len(want) {
		t.Fatalf("expected %d hits, got %d", len(want), len(hits))
	}
	for i, w := range want {
		if hits[i].URL != w {
			t.Fatalf("hit %d: got %s want %s", i, hits[i].URL, w)
		}
	}
	if hits[0].NormalizedScore == nil || *hits[0].NormalizedScore != 1 {
		t.Fatalf("expected top tavily hit normalised to 1, got %v", hits[0].NormalizedScore)
	}
	if *hits[1].NormalizedScore != 0.5 {
		t.Fatalf("expected 0.5, got %v", *hits[1].NormalizedScore)
	}
	if hits[2].NormalizedScore != nil {
		t.Fatalf("unscored provider should leave normalised score unset")
	}
	// ceil(3/2) results requested from each provider
	if q := a.calls(); len(q) != 1 || q[0].MaxResults != 2 {
		t.Fatalf("unexpected per-provider request %+v", q)
	}
}

func TestDiscoverySurvivesProviderFailure(t *testing.T) {
	failing := &fakeProvider{id: models.Brave, discover: func(models.Query) ([]models.Hit, error) {
		return nil, errors.New("503 upstream")
	}}
	panicking := &fakeProvider{id: models.Serper, discover: func(models.Query) ([]models.Hit, error) {
		panic("boom")
	}}
	ok := &fakeProvider{id: models.Tavily, discover: func(models.Query) ([]models.Hit, error) {
		return []models.Hit{hit(t, models.Tavily, "https://ok.example/a")}, nil
	}}
	g := NewGateway([]Provider{failing, panicking, ok})

	hits, err := g.SearchAll(context.Background(), models.Request{Query: "q"})
	if err != nil {
		t.Fatalf("SearchAll: %v", err)
	}
	if len(hits) != 1 || hits[0].URL != "https://ok.example/a" {
		t.Fatalf("expected surviving provider results, got %+v", hits)
	}
}

func TestDiscoveryFallbackDropsIncludeFilter(t *testing.T) {
	p := &fakeProvider{id: models.Tavily, discover: func(q models.Query) ([]models.Hit, error) {
		if len(q.IncludeDomains) > 0 {
			return nil, nil
		}
		return []models.Hit{hit(t, models.Tavily, "https://open.example/a")}, nil
	}}
	g := NewGateway([]Provider{p})

	hits, err := g.SearchAll(context.Background(), models.Request{
		Query:          "x",
		IncludeDomains: []string{"narrow.example"},
		ExcludeDomains: []string{"spam.example"},
	})
	if err != nil {
		t.Fatalf("SearchAll: %v", err)
	}
	if len(hits) != 1 {
		t.Fatalf("expected fallback results, got %d", len(hits))
	}
	calls := p.calls()
	if len(calls) != 2 {
		t.Fatalf("expected a retry, got %d calls", len(calls))
	}
	if len(calls[1].IncludeDomains) != 0 || len(calls[1].ExcludeDomains) != 1 {
		t.Fatalf("retry should drop include and keep exclude: %+v", calls[1])
	}
}

func TestDiscoveryFallbackWithUnknownTopic(t *testing.T) {
	var n int
	var mu sync.Mutex
	p := &fakeProvider{id: models.Tavily, discover: func(q models.Query) ([]models.Hit, error) {
		mu.Lock()
		defer mu.Unlock()
		n++
		if n == 1 {
			return nil, nil
		}
		return []models.Hit{hit(t, models.Tavily, "https://open.example/a")}, nil
	}}
	g := NewGateway([]Provider{p})
	hits, _ := g.SearchAll(context.Background(), models.Request{Query: "x", IncludeDomains: []string{"nonexistent-topic-xyz"}})
	if len(hits) != 1 {
		t.Fatalf("expected fallback to produce results, got %d", len(hits))
	}
}

func TestNoFallbackWithoutIncludeDomains(t *testing.T) {
	p := &fakeProvider{id: models.Tavily}
	g := NewGateway([]Provider{p})
	hits, err := g.SearchAll(context.Background(), models.Request{Query: "x"})
	if err != nil || len(hits) != 0 {
		t.Fatalf("expected empty result, got %v %v", hits, err)
	}
	if len(p.calls()) != 1 {
		t.Fatalf("expected a single call, got %d", len(p.calls()))
	}
}

func TestExcludeEnforcedLocally(t *testing.T) {
	p := &fakeProvider{id: models.Serper, discover: func(models.Query) ([]models.Hit, error) {
		return []models.Hit{
			hit(t, models.Serper, "https://news.spam.example/a"),
			hit(t, models.Serper, "https://fine.example/b"),
		}, nil
	}}
	g := NewGateway([]Provider{p})
	hits, _ := g.SearchAll(context.Background(), models.Request{Query: "x", ExcludeDomains: []string{"spam.example"}})
	if len(hits) != 1 || hits[0].Hostname() != "fine.example" {
		t.Fatalf("excluded host leaked: %+v", hits)
	}
}

func TestEnrichSkipsDiscoveryOnlyProviders(t *testing.T) {
	brave := &fakeProvider{id: models.Brave}
	exa := &fakeProvider{id: models.Exa, extract: func(urls []string) ([]models.Hit, error) {
		out := make([]models.Hit, 0, len(urls))
		for _, u := range urls {
			h := hit(t, models.Exa, u)
			h.Content = "content for " + u
			out = append(out, h)
		}
		return out, nil
	}}
	g := NewGateway([]Provider{brave, exa})
	hits, err := g.SearchAll(context.Background(), models.Request{
		Mode: models.ModeEnrich,
		URLs: []string{"https://a.example/1", "https://b.example/2"},
	})
	if err != nil {
		t.Fatalf("SearchAll: %v", err)
	}
	if len(hits) != 2 || hits[0].Content == "" {
		t.Fatalf("unexpected enrich hits %+v", hits)
	}
}

func TestProvidersAreRateLimited(t *testing.T) {
	reg, err := ratelimit.NewRegistry(map[string]ratelimit.Settings{"tavily": {RequestsPerSecond: 0.01, Burst: 2}})
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}
	p := &fakeProvider{id: models.Tavily}
	g := NewGateway([]Provider{p}, WithLimiters(reg))
	_, _ = g.SearchAll(context.Background(), models.Request{Query: "x"})

	lim, _ := reg.Get("tavily")
	if tokens := lim.Tokens(); tokens > 1.01 {
		t.Fatalf("expected one token spent, have %.3f", tokens)
	}
}

func TestProviderRetriesTakeATokenEach(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		http.Error(w, "unavailable", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	reg, err := ratelimit.NewRegistry(map[string]ratelimit.Settings{"tavily": {RequestsPerSecond: 0.001, Burst: 10}})
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}
	p, err := tavily.New("tvly-key", srv.URL, httpclient.New(time.Second, 3, time.Millisecond))
	if err != nil {
		t.Fatalf("tavily.New: %v", err)
	}
	g := NewGateway([]Provider{p}, WithLimiters(reg))
	hits, err := g.SearchAll(context.Background(), models.Request{Query: "x"})
	if err != nil || len(hits) != 0 {
		t.Fatalf("expected empty result, got %v %v", hits, err)
	}

	upstream := atomic.LoadInt32(&calls)
	if upstream != 4 {
		t.Fatalf("expected 4 upstream calls, got %d", upstream)
	}
	lim, _ := reg.Get("tavily")
	spent := 10 - lim.Tokens()
	if spent < float64(upstream)-0.1 || spent > float64(upstream)+0.1 {
		t.Fatalf("%d upstream calls but %.3f tokens spent", upstream, spent)
	}
}

func TestDomainResolver(t *testing.T) {
	r := NewDomainResolver(MergeTopics(DefaultTopics(), map[string][]string{"ai": {"openai.com", "deepmind.google"}}))
	got := r.Resolve([]string{"AI", "Example.COM", "not a host", "nonexistent-topic-xyz", "openai.com", "https://www.ft.com/x"})
	want := []string{"openai.com", "deepmind.google", "example.com", "ft.com"}
	if len(got) != len(want) {
		t.Fatalf("Resolve() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("Resolve() = %v, want %v", got, want)
		}
	}
	if r.Resolve(nil) != nil {
		t.Fatalf("expected nil for no tokens")
	}
	if fin := NewDomainResolver(nil).Resolve([]string{"finance"}); len(fin) == 0 || fin[0] != "reuters.com" {
		t.Fatalf("unexpected finance expansion %v", fin)
	}
}
