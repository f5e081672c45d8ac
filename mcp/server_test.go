package mcp

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/mohammad-safakhou/newser-evidence/internal/pipeline"
	"github.com/mohammad-safakhou/newser-evidence/internal/rerank"
	fetchmodels "github.com/mohammad-safakhou/newser-evidence/tools/web_fetch/models"
	"github.com/mohammad-safakhou/newser-evidence/tools/web_search"
	"github.com/mohammad-safakhou/newser-evidence/tools/web_search/models"
)

type fakeSearch struct{ reqs []models.Request }

func (f *fakeSearch) SearchAll(_ context.Context, req models.Request) ([]models.Hit, error) {
	f.reqs = append(f.reqs, req)
	if req.Mode == models.ModeDiscovery && req.Query == "" {
		return nil, web_search.ErrMissingQuery
	}
	return []models.Hit{{Provider: models.Exa, URL: "https://example.com/a", Title: "A"}}, nil
}

type fakeHarvest struct{}

func (fakeHarvest) HarvestAll(_ context.Context, hits []models.Hit) []fetchmodels.Evidence {
	out := make([]fetchmodels.Evidence, len(hits))
	for i, h := range hits {
		out[i] = fetchmodels.Evidence{URL: h.URL, ContentHash: h.URL}
	}
	return out
}

type fakeGather struct{}

func (fakeGather) Gather(_ context.Context, req pipeline.Request) (pipeline.Result, error) {
	return pipeline.Result{Query: req.Query, Hits: 3}, nil
}

type response struct {
	ID     json.RawMessage `json:"id"`
	Result json.RawMessage `json:"result"`
	Error  *rpcError       `json:"error"`
}

func run(t *testing.T, lines ...string) []response {
	t.Helper()
	srv := NewServer(&fakeSearch{}, fakeHarvest{}, fakeGather{}, rerank.DefaultOptions(), 0, nil)
	var out bytes.Buffer
	if err := srv.Serve(context.Background(), strings.NewReader(strings.Join(lines, "\n")), &out); err != nil {
		t.Fatalf("Serve: %v", err)
	}
	var resps []response
	sc := bufio.NewScanner(&out)
	for sc.Scan() {
		var r response
		if err := json.Unmarshal(sc.Bytes(), &r); err != nil {
			t.Fatalf("unmarshal %q: %v", sc.Text(), err)
		}
		resps = append(resps, r)
	}
	return resps
}

func TestToolsList(t *testing.T) {
	resps := run(t, `{"jsonrpc":"2.0","id":1,"method":"tools/list"}`)
	if len(resps) != 1 || resps[0].Error != nil {
		t.Fatalf("unexpected responses %+v", resps)
	}
	var res struct {
		Tools []ToolDesc `json:"tools"`
	}
	if err := json.Unmarshal(resps[0].Result, &res); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	names := make([]string, len(res.Tools))
	for i, tool := range res.Tools {
		names[i] = tool.Name
	}
	if strings.Join(names, ",") != "web.search,web.enrich,web.fetch,evidence.rerank,evidence.gather" {
		t.Fatalf("unexpected tools %v", names)
	}
}

func TestToolCalls(t *testing.T) {
	cases := []struct {
		name    string
		line    string
		wantErr int
		want    string
	}{
		{"search", `{"jsonrpc":"2.0","id":1,"method":"tools/call","params":{"name":"web.search","arguments":{"query":"rates","max_results":2}}}`, 0, `"https://example.com/a"`},
		{"search without query", `{"jsonrpc":"2.0","id":2,"method":"tools/call","params":{"name":"web.search","arguments":{}}}`, codeTool, ""},
		{"enrich", `{"jsonrpc":"2.0","id":3,"method":"tools/call","params":{"name":"web.enrich","arguments":{"urls":["https://example.com/a"]}}}`, 0, `"hits"`},
		{"fetch", `{"jsonrpc":"2.0","id":4,"method":"tools/call","params":{"name":"web.fetch","arguments":{"urls":["https://example.com/b"]}}}`, 0, `"https://example.com/b"`},
		{"fetch invalid", `{"jsonrpc":"2.0","id":5,"method":"tools/call","params":{"name":"web.fetch","arguments":{"urls":["mailto:x@example.com"]}}}`, codeTool, ""},
		{"rerank", `{"jsonrpc":"2.0","id":6,"method":"tools/call","params":{"name":"evidence.rerank","arguments":{"evidence":[{"url":"https://a.example/1","content_hash":"x"},{"url":"https://a.example/1","content_hash":"x"}]}}}`, 0, `"ranked"`},
		{"gather", `{"jsonrpc":"2.0","id":7,"method":"tools/call","params":{"name":"evidence.gather","arguments":{"query":"rates"}}}`, 0, `"hits":3`},
		{"unknown tool", `{"jsonrpc":"2.0","id":8,"method":"tools/call","params":{"name":"nope"}}`, codeTool, ""},
		{"unknown method", `{"jsonrpc":"2.0","id":9,"method":"resources/list"}`, codeMethodNotFound, ""},
		{"bad json", `{"jsonrpc":`, codeParse, ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			resps := run(t, tc.line)
			if len(resps) != 1 {
				t.Fatalf("expected one response, got %d", len(resps))
			}
			r := resps[0]
			if tc.wantErr != 0 {
				if r.Error == nil || r.Error.Code != tc.wantErr {
					t.Fatalf("expected error code %d, got %+v", tc.wantErr, r.Error)
				}
				return
			}
			if r.Error != nil {
				t.Fatalf("unexpected error %+v", r.Error)
			}
			if !strings.Contains(string(r.Result), tc.want) {
				t.Fatalf("expected %s in %s", tc.want, r.Result)
			}
		})
	}
}

func TestRerankDedups(t *testing.T) {
	resps := run(t, `{"jsonrpc":"2.0","id":1,"method":"tools/call","params":{"name":"evidence.rerank","arguments":{"evidence":[{"url":"https://a.example/1","content_hash":"x"},{"url":"https://a.example/1","content_hash":"x"}]}}}`)
	var res struct {
		Ranked []rerank.Scored `json:"ranked"`
	}
	if err := json.Unmarshal(resps[0].Result, &res); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(res.Ranked) != 1 {
		t.Fatalf("expected duplicates removed, got %d", len(res.Ranked))
	}
}

func TestNotificationsGetNoResponse(t *testing.T) {
	resps := run(t,
		`{"jsonrpc":"2.0","method":"notifications/initialized"}`,
		``,
		`{"jsonrpc":"2.0","id":"init","method":"initialize"}`,
	)
	if len(resps) != 1 || string(resps[0].ID) != `"init"` {
		t.Fatalf("expected only the initialize response, got %+v", resps)
	}
	if !strings.Contains(string(resps[0].Result), protocolVersion) {
		t.Fatalf("missing protocol version in %s", resps[0].Result)
	}
}
