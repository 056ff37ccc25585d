package requester

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/hazyhaar/newsnexus/kit"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// RegisterMCP registers the newsnexus tools on an MCP server.
func (svc *Service) RegisterMCP(srv *mcp.Server) {
	svc.registerRun(srv)
	svc.registerRunAll(srv)
	svc.registerListRequests(srv)
	svc.registerListArticles(srv)
	svc.registerAddQuerySet(srv)
	svc.registerListQuerySets(srv)
}

// addTool registers endpoint behind the tool logging middleware.
func (svc *Service) addTool(srv *mcp.Server, tool *mcp.Tool, endpoint kit.Endpoint, decode func(*mcp.CallToolRequest) (*kit.MCPDecodeResult, error)) {
	kit.RegisterMCPTool(srv, tool, kit.Chain(toolLogging(svc.logger, tool.Name))(endpoint), decode)
}

func toolLogging(logger *slog.Logger, name string) kit.Middleware {
	return func(next kit.Endpoint) kit.Endpoint {
		return func(ctx context.Context, req any) (any, error) {
			start := time.Now()
			resp, err := next(ctx, req)
			attrs := []any{"tool", name, "transport", kit.GetTransport(ctx), "duration_ms", time.Since(start).Milliseconds()}
			if err != nil {
				logger.WarnContext(ctx, "requester: tool failed", append(attrs, "error", err)...)
			} else {
				logger.DebugContext(ctx, "requester: tool called", attrs...)
			}
			return resp, err
		}
	}
}

// decodeArgs unmarshals tool arguments into a fresh T.
func decodeArgs[T any](r *mcp.CallToolRequest) (*kit.MCPDecodeResult, error) {
	var p T
	if len(r.Params.Arguments) > 0 {
		if err := json.Unmarshal(r.Params.Arguments, &p); err != nil {
			return nil, err
		}
	}
	return &kit.MCPDecodeResult{Request: &p}, nil
}

func (svc *Service) registerRun(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "newsnexus_run",
		Description: "Fetch and ingest the news feed for one AND/OR/NOT keyword triple from a start date",
		InputSchema: kit.InputSchema(map[string]any{
			"and":        map[string]any{"type": "string", "description": "Terms that must all match; quote phrases"},
			"or":         map[string]any{"type": "string", "description": "Terms of which one must match"},
			"not":        map[string]any{"type": "string", "description": "Terms to exclude"},
			"start_date": map[string]any{"type": "string", "description": "Window start, YYYY-MM-DD"},
		}, []string{"start_date"}),
	}

	endpoint := func(ctx context.Context, r any) (any, error) {
		p := r.(*Params)
		return svc.RunOnce(ctx, Params{And: p.And, Or: p.Or, Not: p.Not, StartDate: p.StartDate})
	}

	svc.addTool(srv, tool, endpoint, decodeArgs[Params])
}

func (svc *Service) registerRunAll(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "newsnexus_run_all",
		Description: "Run every enabled query set once and advance their cursors",
		InputSchema: kit.InputSchema(map[string]any{}, nil),
	}

	endpoint := func(ctx context.Context, _ any) (any, error) {
		return svc.RunAll(ctx)
	}

	svc.addTool(srv, tool, endpoint, decodeArgs[struct{}])
}

type listReq struct {
	RequestID string `json:"request_id"`
	Limit     int    `json:"limit"`
}

func (svc *Service) registerListRequests(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "newsnexus_list_requests",
		Description: "List recorded feed requests, newest first",
		InputSchema: kit.InputSchema(map[string]any{
			"limit": map[string]any{"type": "integer", "description": "Max results (default 50)"},
		}, nil),
	}

	endpoint := func(ctx context.Context, r any) (any, error) {
		return svc.ListRequests(ctx, r.(*listReq).Limit)
	}

	svc.addTool(srv, tool, endpoint, decodeArgs[listReq])
}

func (svc *Service) registerListArticles(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "newsnexus_list_articles",
		Description: "List stored articles, newest first, optionally for one request",
		InputSchema: kit.InputSchema(map[string]any{
			"request_id": map[string]any{"type": "string", "description": "Restrict to one request"},
			"limit":      map[string]any{"type": "integer", "description": "Max results (default 50)"},
		}, nil),
	}

	endpoint := func(ctx context.Context, r any) (any, error) {
		p := r.(*listReq)
		return svc.ListArticles(ctx, p.RequestID, p.Limit)
	}

	svc.addTool(srv, tool, endpoint, decodeArgs[listReq])
}

type addQuerySetReq struct {
	And       string `json:"and"`
	Or        string `json:"or"`
	Not       string `json:"not"`
	StartDate string `json:"start_date"`
}

func (svc *Service) registerAddQuerySet(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "newsnexus_add_query_set",
		Description: "Add a recurring keyword triple run by the scheduler",
		InputSchema: kit.InputSchema(map[string]any{
			"and":        map[string]any{"type": "string"},
			"or":         map[string]any{"type": "string"},
			"not":        map[string]any{"type": "string"},
			"start_date": map[string]any{"type": "string", "description": "Initial cursor, YYYY-MM-DD"},
		}, nil),
	}

	endpoint := func(ctx context.Context, r any) (any, error) {
		p := r.(*addQuerySetReq)
		return svc.AddQuerySet(ctx, p.And, p.Or, p.Not, p.StartDate)
	}

	svc.addTool(srv, tool, endpoint, decodeArgs[addQuerySetReq])
}

func (svc *Service) registerListQuerySets(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "newsnexus_list_query_sets",
		Description: "List recurring keyword triples and their cursors",
		InputSchema: kit.InputSchema(map[string]any{}, nil),
	}

	endpoint := func(ctx context.Context, _ any) (any, error) {
		return svc.ListQuerySets(ctx)
	}

	svc.addTool(srv, tool, endpoint, decodeArgs[struct{}])
}
