package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/mohammad-safakhou/newser-evidence/internal/pipeline"
	"github.com/mohammad-safakhou/newser-evidence/internal/rerank"
	fetchmodels "github.com/mohammad-safakhou/newser-evidence/tools/web_fetch/models"
	"github.com/mohammad-safakhou/newser-evidence/tools/web_search/models"
)

const maxFetchURLs = 25

// ToolDesc describes a single tool, including its input schema.
type ToolDesc struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	InputSchema map[string]any `json:"inputSchema"`
}

var (
	stringList = map[string]any{"type": "array", "items": map[string]any{"type": "string"}}
	domainArgs = map[string]any{
		"include_domains": stringList,
		"exclude_domains": stringList,
		"max_results":     map[string]any{"type": "integer", "minimum": 1, "maximum": 50},
		"depth":           map[string]any{"type": "string", "enum": []string{"basic", "advanced"}},
	}
)

func withQuery(props map[string]any) map[string]any {
	out := map[string]any{"query": map[string]any{"type": "string"}}
	for k, v := range props {
		out[k] = v
	}
	return out
}

func toolDescs() []ToolDesc {
	return []ToolDesc{
		{
			Name:        "web.search",
			Description: "Discover web pages for a query across every configured search provider.",
			InputSchema: map[string]any{"type": "object", "properties": withQuery(domainArgs), "required": []string{"query"}},
		},
		{
			Name:        "web.enrich",
			Description: "Ask search providers for the extracted content of known URLs.",
			InputSchema: map[string]any{
				"type":       "object",
				"properties": map[string]any{"urls": stringList},
				"required":   []string{"urls"},
			},
		},
		{
			Name:        "web.fetch",
			Description: "Fetch pages directly, honouring robots.txt, and return cleaned, chunked evidence.",
			InputSchema: map[string]any{
				"type":       "object",
				"properties": map[string]any{"urls": stringList},
				"required":   []string{"urls"},
			},
		},
		{
			Name:        "evidence.rerank",
			Description: "Deduplicate evidence and order it by authority, depth and recency.",
			InputSchema: map[string]any{
				"type":       "object",
				"properties": map[string]any{"evidence": map[string]any{"type": "array", "items": map[string]any{"type": "object"}}},
				"required":   []string{"evidence"},
			},
		},
		{
			Name:        "evidence.gather",
			Description: "Run discovery, enrichment, harvesting and reranking for a research query.",
			InputSchema: map[string]any{"type": "object", "properties": withQuery(domainArgs), "required": []string{"query"}},
		},
	}
}

// callTool dispatches to handler functions.
func (s *Server) callTool(ctx context.Context, name string, raw json.RawMessage) (any, error) {
	switch name {
	case "web.search":
		var args pipeline.Request
		if err := decodeArgs(raw, &args); err != nil {
			return nil, err
		}
		hits, err := s.search.SearchAll(ctx, models.Request{
			Query:          args.Query,
			Mode:           models.ModeDiscovery,
			MaxResults:     args.MaxResults,
			IncludeDomains: args.IncludeDomains,
			ExcludeDomains: args.ExcludeDomains,
			Depth:          args.Depth,
		})
		if err != nil {
			return nil, err
		}
		return map[string]any{"hits": nonNil(hits)}, nil

	case "web.enrich":
		var args struct {
			URLs []string `json:"urls"`
		}
		if err := decodeArgs(raw, &args); err != nil {
			return nil, err
		}
		hits, err := s.search.SearchAll(ctx, models.Request{Mode: models.ModeEnrich, URLs: args.URLs})
		if err != nil {
			return nil, err
		}
		return map[string]any{"hits": nonNil(hits)}, nil

	case "web.fetch":
		var args struct {
			URLs []string `json:"urls"`
		}
		if err := decodeArgs(raw, &args); err != nil {
			return nil, err
		}
		if len(args.URLs) == 0 {
			return nil, errors.New("urls is required (non-empty array)")
		}
		if len(args.URLs) > maxFetchURLs {
			return nil, fmt.Errorf("at most %d urls per call", maxFetchURLs)
		}
		hits := make([]models.Hit, 0, len(args.URLs))
		for _, u := range args.URLs {
			hit, err := models.NewHit("", "", u)
			if err != nil {
				return nil, err
			}
			hits = append(hits, hit)
		}
		return map[string]any{"evidence": nonNil(s.harvest.HarvestAll(ctx, hits))}, nil

	case "evidence.rerank":
		var args struct {
			Evidence []fetchmodels.Evidence `json:"evidence"`
		}
		if err := decodeArgs(raw, &args); err != nil {
			return nil, err
		}
		return map[string]any{"ranked": nonNil(rerank.Rank(args.Evidence, s.rerank))}, nil

	case "evidence.gather":
		var args pipeline.Request
		if err := decodeArgs(raw, &args); err != nil {
			return nil, err
		}
		return s.gather.Gather(ctx, args)

	default:
		return nil, fmt.Errorf("unknown tool: %s", name)
	}
}

func decodeArgs(raw json.RawMessage, v any) error {
	if len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("invalid arguments: %w", err)
	}
	return nil
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
