package exa

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/mohammad-safakhou/newser-evidence/internal/httpclient"
	"github.com/mohammad-safakhou/newser-evidence/tools/web_search/models"
)

func TestDiscoverAndExtract(t *testing.T) {
	var searchBody map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("x-api-key") != "exa" {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		switch r.URL.Path {
		case "/search":
			_ = json.NewDecoder(r.Body).Decode(&searchBody)
			_, _ = w.Write([]byte(`{"results":[{"title":"Paper","url":"https://arxiv.org/abs/1","publishedDate":"2023-01-02T00:00:00.000Z","score":0.42,"highlights":["key finding"]}]}`))
		case "/contents":
			_, _ = w.Write([]byte(`{"results":[{"title":"Paper","url":"https://arxiv.org/abs/1","text":"body text"}]}`))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	s, err := New("exa", srv.URL, httpclient.New(time.Second, 0, time.Millisecond))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	hits, err := s.Discover(context.Background(), models.Query{Text: "q", MaxResults: 3, ExcludeDomains: []string{"spam.io"}})
	if err != nil {
		t.Fatalf("Discover: %v", err)
	}
	if len(hits) != 1 || hits[0].Snippet != "key finding" || hits[0].Score == nil || *hits[0].Score != 0.42 {
		t.Fatalf("unexpected hits %+v", hits)
	}
	if searchBody["numResults"] != float64(3) || searchBody["type"] != "auto" {
		t.Fatalf("unexpected payload %v", searchBody)
	}
	if ex, ok := searchBody["excludeDomains"].([]any); !ok || len(ex) != 1 {
		t.Fatalf("expected excludeDomains in payload, got %v", searchBody)
	}

	enriched, err := s.Extract(context.Background(), []string{"https://arxiv.org/abs/1"})
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if len(enriched) != 1 || enriched[0].Content != "body text" {
		t.Fatalf("unexpected enriched hits %+v", enriched)
	}
}
