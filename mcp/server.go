// Package mcp exposes the evidence pipeline as tools over a line-delimited
// stdio JSON-RPC loop ("tools/list" and "tools/call").
package mcp

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"go.uber.org/zap"

	"github.com/mohammad-safakhou/newser-evidence/internal/logging"
	"github.com/mohammad-safakhou/newser-evidence/internal/pipeline"
	"github.com/mohammad-safakhou/newser-evidence/internal/rerank"
	fetchmodels "github.com/mohammad-safakhou/newser-evidence/tools/web_fetch/models"
	"github.com/mohammad-safakhou/newser-evidence/tools/web_search/models"
)

const (
	protocolVersion = "2024-11-05"

	codeParse          = -32700
	codeMethodNotFound = -32601
	codeInvalidParams  = -32602
	codeTool           = -32000

	maxLine = 4 << 20
)

// ---------- JSON-RPC skeleton ----------

type rpcReq struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

type rpcResp struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Result  any             `json:"result,omitempty"`
	Error   *rpcError       `json:"error,omitempty"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type callParams struct {
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
}

// ---------- dependencies ----------

type Searcher interface {
	SearchAll(ctx context.Context, req models.Request) ([]models.Hit, error)
}

type Harvester interface {
	HarvestAll(ctx context.Context, hits []models.Hit) []fetchmodels.Evidence
}

type Gatherer interface {
	Gather(ctx context.Context, req pipeline.Request) (pipeline.Result, error)
}

// Server holds shared deps; every tool call is otherwise stateless.
type Server struct {
	search      Searcher
	harvest     Harvester
	gather      Gatherer
	rerank      rerank.Options
	callTimeout time.Duration
	logger      *zap.Logger
	tools       []ToolDesc
}

func NewServer(search Searcher, harvest Harvester, gather Gatherer, rerankOpts rerank.Options, callTimeout time.Duration, logger *zap.Logger) *Server {
	if callTimeout <= 0 {
		callTimeout = 2 * time.Minute
	}
	return &Server{
		search:      search,
		harvest:     harvest,
		gather:      gather,
		rerank:      rerankOpts,
		callTimeout: callTimeout,
		logger:      logging.OrNop(logger).Named("mcp"),
		tools:       toolDescs(),
	}
}

// Serve reads one request per line until in is exhausted or ctx is done.
// Requests without an id are notifications and get no response.
func (s *Server) Serve(ctx context.Context, in io.Reader, out io.Writer) error {
	sc := bufio.NewScanner(in)
	sc.Buffer(make([]byte, 0, 64<<10), maxLine)
	enc := json.NewEncoder(out)
	for sc.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}
		line := sc.Bytes()
		if len(line) == 0 {
			continue
		}
		var req rpcReq
		if err := json.Unmarshal(line, &req); err != nil {
			_ = enc.Encode(rpcResp{JSONRPC: "2.0", ID: json.RawMessage("null"), Error: &rpcError{Code: codeParse, Message: err.Error()}})
			continue
		}
		result, rerr := s.handle(ctx, req)
		if len(req.ID) == 0 {
			continue
		}
		resp := rpcResp{JSONRPC: "2.0", ID: req.ID, Result: result, Error: rerr}
		if err := enc.Encode(resp); err != nil {
			return fmt.Errorf("write response: %w", err)
		}
	}
	return sc.Err()
}

func (s *Server) handle(ctx context.Context, req rpcReq) (any, *rpcError) {
	switch req.Method {
	case "initialize":
		return map[string]any{
			"protocolVersion": protocolVersion,
			"serverInfo":      map[string]any{"name": "evidenced", "version": "1.0"},
			"capabilities":    map[string]any{"tools": map[string]any{}},
		}, nil
	case "notifications/initialized", "ping":
		return map[string]any{}, nil
	case "tools/list":
		return map[string]any{"tools": s.tools}, nil
	case "tools/call":
		var p callParams
		if err := json.Unmarshal(req.Params, &p); err != nil {
			return nil, &rpcError{Code: codeInvalidParams, Message: err.Error()}
		}
		// Per-call timeout to avoid stuck handlers
		cctx, cancel := context.WithTimeout(ctx, s.callTimeout)
		defer cancel()
		start := time.Now()
		res, err := s.callTool(cctx, p.Name, p.Arguments)
		if err != nil {
			s.logger.Warn("tool call failed", zap.String("tool", p.Name), zap.Error(err))
			return nil, &rpcError{Code: codeTool, Message: err.Error()}
		}
		s.logger.Debug("tool call", zap.String("tool", p.Name), zap.Duration("took", time.Since(start)))
		return res, nil
	default:
		return nil, &rpcError{Code: codeMethodNotFound, Message: "unknown method: " + req.Method}
	}
}
