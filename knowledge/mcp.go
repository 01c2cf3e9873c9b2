package knowledge

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/hazyhaar/kbase/idgen"
	"github.com/hazyhaar/kbase/kit"
)

var mcpTraceIDs = idgen.Prefixed("mcp_", idgen.ULID())

// RegisterMCP registers all knowledge tools on an MCP server.
func (svc *Service) RegisterMCP(srv *mcp.Server) {
	svc.registerListSources(srv)
	svc.registerGetSource(srv)
	svc.registerAddSource(srv)
	svc.registerUpdateSource(srv)
	svc.registerDeleteSource(srv)
	svc.registerFetchSource(srv)
	svc.registerFetchAll(srv)
	svc.registerFetchHistory(srv)
	svc.registerCorpus(srv)
	svc.registerTrain(srv)
	svc.registerStats(srv)
}

func inputSchema(properties map[string]any, required []string) map[string]any {
	s := map[string]any{
		"type":       "object",
		"properties": properties,
	}
	if len(required) > 0 {
		s["required"] = required
	}
	return s
}

func (svc *Service) tool(srv *mcp.Server, tool *mcp.Tool, endpoint kit.Endpoint, decode func(*mcp.CallToolRequest) (*kit.MCPDecodeResult, error)) {
	mw := kit.Chain(kit.EnsureTraceID(mcpTraceIDs), kit.WithLogging(svc.logger, tool.Name))
	kit.RegisterMCPTool(srv, tool, mw(endpoint), decode)
}

type sourceIDReq struct {
	SourceID string `json:"source_id"`
}

type languageReq struct {
	Language string `json:"language"`
}

var languageSchema = map[string]any{"type": "string", "enum": []string{"sv", "en", "both"}, "description": "Corpus language (default both)"}

// --- Sources ---

func (svc *Service) registerListSources(srv *mcp.Server) {
	type req struct {
		External bool `json:"external"`
	}
	tool := &mcp.Tool{
		Name:        "knowledge_list_sources",
		Description: "List knowledge sources ordered by priority",
		InputSchema: inputSchema(map[string]any{
			"external": map[string]any{"type": "boolean", "description": "Only fetchable (non-internal) sources"},
		}, nil),
	}
	endpoint := func(ctx context.Context, r any) (any, error) {
		p := r.(*req)
		var (
			sources []*Source
			err     error
		)
		if p.External {
			sources, err = svc.ListExternalSources(ctx)
		} else {
			sources, err = svc.ListSources(ctx)
		}
		if err != nil {
			return nil, err
		}
		return redactAll(sources), nil
	}
	svc.tool(srv, tool, endpoint, kit.DecodeJSON[req]())
}

func (svc *Service) registerGetSource(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "knowledge_get_source",
		Description: "Get one knowledge source by id",
		InputSchema: inputSchema(map[string]any{
			"source_id": map[string]any{"type": "string"},
		}, []string{"source_id"}),
	}
	endpoint := func(ctx context.Context, r any) (any, error) {
		p := r.(*sourceIDReq)
		src, err := svc.GetSource(ctx, p.SourceID)
		if err != nil {
			return nil, err
		}
		if src == nil {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, p.SourceID)
		}
		return src.Redacted(), nil
	}
	svc.tool(srv, tool, endpoint, kit.DecodeJSON[sourceIDReq]())
}

func (svc *Service) registerAddSource(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "knowledge_add_source",
		Description: "Register a knowledge source. Internal sources carry their own content; other types are fetched from source_url.",
		InputSchema: inputSchema(map[string]any{
			"name":               map[string]any{"type": "string"},
			"description":        map[string]any{"type": "string"},
			"content":            map[string]any{"type": "string"},
			"keywords":           map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
			"category":           map[string]any{"type": "string"},
			"priority":           map[string]any{"type": "integer", "description": "Higher values are compiled first"},
			"language":           languageSchema,
			"is_active":          map[string]any{"type": "boolean", "description": "Default true"},
			"source_type":        map[string]any{"type": "string", "enum": []string{"internal", "external", "forum", "webpage", "api"}},
			"source_url":         map[string]any{"type": "string"},
			"fetch_frequency":    map[string]any{"type": "string", "enum": []string{"manual", "daily", "weekly", "monthly"}},
			"auto_fetch":         map[string]any{"type": "boolean"},
			"content_selector":   map[string]any{"type": "string", "description": "CSS selector for the content region"},
			"max_content_length": map[string]any{"type": "integer"},
		}, []string{"name"}),
	}
	endpoint := func(ctx context.Context, r any) (any, error) {
		src, err := svc.CreateSource(ctx, r.(*Source))
		if err != nil {
			return nil, err
		}
		return src.Redacted(), nil
	}
	decode := func(r *mcp.CallToolRequest) (*kit.MCPDecodeResult, error) {
		p := &Source{IsActive: true}
		if err := json.Unmarshal(r.Params.Arguments, p); err != nil {
			return nil, err
		}
		return &kit.MCPDecodeResult{Request: p}, nil
	}
	svc.tool(srv, tool, endpoint, decode)
}

func (svc *Service) registerUpdateSource(srv *mcp.Server) {
	type req struct {
		SourceID string `json:"source_id"`
		SourcePatch
	}
	tool := &mcp.Tool{
		Name:        "knowledge_update_source",
		Description: "Partially update a knowledge source; omitted fields are unchanged",
		InputSchema: inputSchema(map[string]any{
			"source_id":        map[string]any{"type": "string"},
			"name":             map[string]any{"type": "string"},
			"description":      map[string]any{"type": "string"},
			"content":          map[string]any{"type": "string"},
			"priority":         map[string]any{"type": "integer"},
			"language":         languageSchema,
			"is_active":        map[string]any{"type": "boolean"},
			"source_url":       map[string]any{"type": "string"},
			"fetch_frequency":  map[string]any{"type": "string"},
			"fetch_status":     map[string]any{"type": "string", "enum": []string{"pending", "disabled"}},
			"auto_fetch":       map[string]any{"type": "boolean"},
			"content_selector": map[string]any{"type": "string"},
		}, []string{"source_id"}),
	}
	endpoint := func(ctx context.Context, r any) (any, error) {
		p := r.(*req)
		src, err := svc.UpdateSource(ctx, p.SourceID, p.SourcePatch)
		if err != nil {
			return nil, err
		}
		return src.Redacted(), nil
	}
	decode := func(r *mcp.CallToolRequest) (*kit.MCPDecodeResult, error) {
		var p req
		if err := json.Unmarshal(r.Params.Arguments, &p); err != nil {
			return nil, err
		}
		return &kit.MCPDecodeResult{Request: &p}, nil
	}
	svc.tool(srv, tool, endpoint, decode)
}

func (svc *Service) registerDeleteSource(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "knowledge_delete_source",
		Description: "Delete a knowledge source and its fetch history",
		InputSchema: inputSchema(map[string]any{
			"source_id": map[string]any{"type": "string"},
		}, []string{"source_id"}),
	}
	endpoint := func(ctx context.Context, r any) (any, error) {
		if err := svc.DeleteSource(ctx, r.(*sourceIDReq).SourceID); err != nil {
			return nil, err
		}
		return map[string]string{"status": "deleted"}, nil
	}
	svc.tool(srv, tool, endpoint, kit.DecodeJSON[sourceIDReq]())
}

// --- Fetching ---

func (svc *Service) registerFetchSource(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "knowledge_fetch_source",
		Description: "Fetch one external source now and store its content",
		InputSchema: inputSchema(map[string]any{
			"source_id": map[string]any{"type": "string"},
		}, []string{"source_id"}),
	}
	endpoint := func(ctx context.Context, r any) (any, error) {
		return svc.FetchSource(ctx, r.(*sourceIDReq).SourceID)
	}
	svc.tool(srv, tool, endpoint, kit.DecodeJSON[sourceIDReq]())
}

func (svc *Service) registerFetchAll(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "knowledge_fetch_all",
		Description: "Fetch every auto-fetch source whose refresh interval has elapsed",
		InputSchema: inputSchema(map[string]any{}, nil),
	}
	endpoint := func(ctx context.Context, _ any) (any, error) {
		return svc.FetchAllPending(ctx)
	}
	svc.tool(srv, tool, endpoint, kit.DecodeJSON[struct{}]())
}

func (svc *Service) registerFetchHistory(srv *mcp.Server) {
	type req struct {
		SourceID string `json:"source_id"`
		Limit    int    `json:"limit"`
	}
	tool := &mcp.Tool{
		Name:        "knowledge_fetch_history",
		Description: "Recent fetch attempts of a source, newest first",
		InputSchema: inputSchema(map[string]any{
			"source_id": map[string]any{"type": "string"},
			"limit":     map[string]any{"type": "integer", "description": "Max entries (default 10)"},
		}, []string{"source_id"}),
	}
	endpoint := func(ctx context.Context, r any) (any, error) {
		p := r.(*req)
		return svc.FetchHistory(ctx, p.SourceID, p.Limit)
	}
	svc.tool(srv, tool, endpoint, kit.DecodeJSON[req]())
}

// --- Corpus ---

func (svc *Service) registerCorpus(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "knowledge_corpus",
		Description: "Compiled knowledge text for a language",
		InputSchema: inputSchema(map[string]any{"language": languageSchema}, nil),
	}
	endpoint := func(ctx context.Context, r any) (any, error) {
		p := r.(*languageReq)
		text, err := svc.Corpus(ctx, p.Language)
		if err != nil {
			return nil, err
		}
		return map[string]string{"language": p.Language, "corpus": text}, nil
	}
	svc.tool(srv, tool, endpoint, kit.DecodeJSON[languageReq]())
}

func (svc *Service) registerTrain(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "knowledge_train",
		Description: "Compile the corpus and mark the included sources as trained",
		InputSchema: inputSchema(map[string]any{"language": languageSchema}, nil),
	}
	endpoint := func(ctx context.Context, r any) (any, error) {
		return svc.Train(ctx, r.(*languageReq).Language)
	}
	svc.tool(srv, tool, endpoint, kit.DecodeJSON[languageReq]())
}

func (svc *Service) registerStats(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "knowledge_stats",
		Description: "Registry counters",
		InputSchema: inputSchema(map[string]any{}, nil),
	}
	endpoint := func(ctx context.Context, _ any) (any, error) {
		return svc.Stats(ctx)
	}
	svc.tool(srv, tool, endpoint, kit.DecodeJSON[struct{}]())
}
