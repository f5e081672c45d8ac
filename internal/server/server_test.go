package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/mohammad-safakhou/newser-evidence/config"
	"github.com/mohammad-safakhou/newser-evidence/internal/pipeline"
	"github.com/mohammad-safakhou/newser-evidence/internal/rerank"
	"github.com/mohammad-safakhou/newser-evidence/internal/telemetry"
	"github.com/mohammad-safakhou/newser-evidence/tools/web_fetch/models"
	"github.com/mohammad-safakhou/newser-evidence/tools/web_search"
	searchmodels "github.com/mohammad-safakhou/newser-evidence/tools/web_search/models"
)

type stubSearch struct {
	last searchmodels.Request
}

func (s *stubSearch) SearchAll(_ context.Context, req searchmodels.Request) ([]searchmodels.Hit, error) {
	s.last = req
	if req.Mode == searchmodels.ModeDiscovery && req.Query == "" {
		return nil, web_search.ErrMissingQuery
	}
	hit, _ := searchmodels.NewHit(searchmodels.Tavily, req.Query, "https://example.com/a")
	return []searchmodels.Hit{hit}, nil
}

type stubHarvest struct {
	urls []string
}

func (s *stubHarvest) HarvestAll(_ context.Context, hits []searchmodels.Hit) []models.Evidence {
	out := make([]models.Evidence, 0, len(hits))
	for _, h := range hits {
		s.urls = append(s.urls, h.URL)
		out = append(out, models.Evidence{URL: h.URL, ContentHash: "h", Chunks: []string{"body"}})
	}
	return out
}

type stubGather struct {
	deadline bool
}

func (s *stubGather) Gather(ctx context.Context, req pipeline.Request) (pipeline.Result, error) {
	_, s.deadline = ctx.Deadline()
	if req.Query == "" {
		return pipeline.Result{}, web_search.ErrMissingQuery
	}
	return pipeline.Result{Query: req.Query, Hits: 1, Evidence: []models.Evidence{{URL: "https://example.com/a"}}}, nil
}

func newTestServer(t *testing.T) (*Server, *stubSearch, *stubHarvest, *stubGather) {
	t.Helper()
	search, harvest, gather := &stubSearch{}, &stubHarvest{}, &stubGather{}
	h := &EvidenceHandler{Search: search, Harvest: harvest, Gather: gather, Rerank: rerank.DefaultOptions()}
	s := New(config.ServerConfig{Address: ":0", RequestTimeout: time.Minute}, h, telemetry.New(), "/metrics", nil)
	return s, search, harvest, gather
}

func do(t *testing.T, s *Server, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func TestHealthzAndRequestID(t *testing.T) {
	s, _, _, _ := newTestServer(t)
	rec := do(t, s, http.MethodGet, "/healthz", "")
	if rec.Code != http.StatusOK || rec.Body.String() != "ok" {
		t.Fatalf("unexpected healthz response %d %q", rec.Code, rec.Body.String())
	}
	if id := rec.Header().Get(echo.HeaderXRequestID); len(id) != 36 {
		t.Fatalf("expected uuid request id, got %q", id)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	s, _, _, _ := newTestServer(t)
	rec := do(t, s, http.MethodGet, "/metrics", "")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "go_goroutines") {
		t.Fatalf("expected prometheus exposition, got %d", rec.Code)
	}
}

func TestSearchEndpoint(t *testing.T) {
	s, search, _, _ := newTestServer(t)
	rec := do(t, s, http.MethodPost, "/api/search", `{"query":"rates","mode":"discovery","max_results":3}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var resp searchResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(resp.Hits) != 1 || resp.Hits[0].URL != "https://example.com/a" {
		t.Fatalf("unexpected hits %+v", resp.Hits)
	}
	if search.last.MaxResults != 3 {
		t.Fatalf("request not forwarded: %+v", search.last)
	}

	rec = do(t, s, http.MethodPost, "/api/search", `{"mode":"discovery"}`)
	if rec.Code != http.StatusBadRequest || !strings.Contains(rec.Body.String(), "error") {
		t.Fatalf("expected 400 with error body, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestHarvestEndpoint(t *testing.T) {
	s, _, harvest, _ := newTestServer(t)
	cases := []struct {
		name string
		body string
		code int
	}{
		{"ok", `{"urls":["https://example.com/a","http://example.org/b"]}`, http.StatusOK},
		{"empty", `{"urls":[]}`, http.StatusBadRequest},
		{"invalid url", `{"urls":["ftp://example.com/file"]}`, http.StatusBadRequest},
		{"too many", `{"urls":[` + strings.TrimSuffix(strings.Repeat(`"https://e.com/x",`, maxHarvestURLs+1), ",") + `]}`, http.StatusBadRequest},
		{"bad json", `{"urls":`, http.StatusBadRequest},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if rec := do(t, s, http.MethodPost, "/api/harvest", tc.body); rec.Code != tc.code {
				t.Fatalf("expected %d, got %d: %s", tc.code, rec.Code, rec.Body.String())
			}
		})
	}
	if len(harvest.urls) != 2 {
		t.Fatalf("expected two harvested urls, got %v", harvest.urls)
	}
}

func TestRerankEndpoint(t *testing.T) {
	s, _, _, _ := newTestServer(t)
	body := `{"evidence":[
		{"url":"https://blog.example.com/a","content_hash":"1","chunks":["x"]},
		{"url":"https://en.wikipedia.org/wiki/A","content_hash":"2","chunks":["x"]},
		{"url":"https://en.wikipedia.org/wiki/A","content_hash":"2","chunks":["x"]}
	]}`
	rec := do(t, s, http.MethodPost, "/api/rerank", body)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var resp rerankResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(resp.Ranked) != 2 || resp.Ranked[0].Evidence.URL != "https://en.wikipedia.org/wiki/A" {
		t.Fatalf("unexpected ranking %+v", resp.Ranked)
	}
	if resp.Ranked[0].Breakdown.Authority == 0 {
		t.Fatalf("expected authority in breakdown")
	}
}

func TestGatherEndpoint(t *testing.T) {
	s, _, _, gather := newTestServer(t)
	rec := do(t, s, http.MethodPost, "/api/gather", `{"query":"rates"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var res pipeline.Result
	if err := json.Unmarshal(rec.Body.Bytes(), &res); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if res.Query != "rates" || len(res.Evidence) != 1 {
		t.Fatalf("unexpected result %+v", res)
	}
	if !gather.deadline {
		t.Fatalf("expected request timeout on context")
	}
	if rec := do(t, s, http.MethodPost, "/api/gather", `{}`); rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}
