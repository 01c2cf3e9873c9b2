package knowledge

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/hazyhaar/kbase/dbopen"
)

var testMCPImpl = &mcp.Implementation{Name: "knowledge-test", Version: "0.1.0"}

func mcpSession(t *testing.T) (*Service, *mcp.ClientSession) {
	t.Helper()
	svc, _ := setupTestService(t)
	srv := mcp.NewServer(testMCPImpl, nil)
	svc.RegisterMCP(srv)

	serverT, clientT := mcp.NewInMemoryTransports()
	ctx := context.Background()
	go func() { _ = srv.Run(ctx, serverT) }()

	client := mcp.NewClient(testMCPImpl, nil)
	session, err := client.Connect(ctx, clientT, nil)
	if err != nil {
		t.Fatalf("client connect: %v", err)
	}
	t.Cleanup(func() { session.Close() })
	return svc, session
}

func mcpCall(t *testing.T, session *mcp.ClientSession, name string, args any) (string, bool) {
	t.Helper()
	result, err := session.CallTool(context.Background(), &mcp.CallToolParams{
		Name:      name,
		Arguments: args,
	})
	if err != nil {
		t.Fatalf("CallTool(%s): %v", name, err)
	}
	tc, ok := result.Content[0].(*mcp.TextContent)
	if !ok {
		t.Fatalf("CallTool(%s): expected TextContent", name)
	}
	return tc.Text, result.IsError
}

func TestMCP_ListTools(t *testing.T) {
	_, session := mcpSession(t)
	res, err := session.ListTools(context.Background(), nil)
	if err != nil {
		t.Fatalf("list tools: %v", err)
	}
	want := map[string]bool{
		"knowledge_list_sources": true, "knowledge_get_source": true, "knowledge_add_source": true,
		"knowledge_update_source": true, "knowledge_delete_source": true, "knowledge_fetch_source": true,
		"knowledge_fetch_all": true, "knowledge_fetch_history": true, "knowledge_corpus": true,
		"knowledge_train": true, "knowledge_stats": true,
	}
	for _, tool := range res.Tools {
		delete(want, tool.Name)
	}
	for name := range want {
		t.Errorf("missing tool %s", name)
	}
}

func TestMCP_AddUpdateCorpus(t *testing.T) {
	// WHAT: Add a source, patch it and read it back through the corpus tool.
	// WHY: Agents curate knowledge through MCP.
	_, session := mcpSession(t)

	text, isErr := mcpCall(t, session, "knowledge_add_source", map[string]any{
		"name": "Refunds", "content": "Within 30 days", "keywords": []string{"refund"},
	})
	if isErr {
		t.Fatalf("add: %s", text)
	}
	var src Source
	json.Unmarshal([]byte(text), &src)
	if src.ID == "" || !src.IsActive {
		t.Fatalf("added: %+v", src)
	}

	text, isErr = mcpCall(t, session, "knowledge_update_source", map[string]any{
		"source_id": src.ID, "content": "Within 14 days",
	})
	if isErr {
		t.Fatalf("update: %s", text)
	}

	text, _ = mcpCall(t, session, "knowledge_corpus", map[string]any{"language": "sv"})
	var out struct {
		Corpus string `json:"corpus"`
	}
	json.Unmarshal([]byte(text), &out)
	if want := "### Refunds\nWithin 14 days\nKeywords: refund"; out.Corpus != want {
		t.Errorf("corpus:\ngot  %q\nwant %q", out.Corpus, want)
	}
}

func TestMCP_ToolErrors(t *testing.T) {
	// WHAT: Service errors surface as tool errors, not protocol errors.
	// WHY: The agent must see the message to correct its call.
	_, session := mcpSession(t)

	text, isErr := mcpCall(t, session, "knowledge_fetch_source", map[string]any{"source_id": "missing"})
	if !isErr || !strings.Contains(text, "not found") {
		t.Errorf("fetch missing: %v %s", isErr, text)
	}
	text, isErr = mcpCall(t, session, "knowledge_add_source", map[string]any{"source_type": "forum"})
	if !isErr || !strings.Contains(text, "name is required") {
		t.Errorf("add invalid: %v %s", isErr, text)
	}
}

func TestMCP_CallsCarryTraceID(t *testing.T) {
	// WHAT: A failed tool call is logged with an mcp_ trace id.
	// WHY: MCP calls have no HTTP trace header to correlate their log lines.
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	svc, err := New(dbopen.OpenMemory(t), nil, logger, WithURLValidator(allowAll))
	if err != nil {
		t.Fatal(err)
	}
	srv := mcp.NewServer(testMCPImpl, nil)
	svc.RegisterMCP(srv)

	serverT, clientT := mcp.NewInMemoryTransports()
	ctx := context.Background()
	go func() { _ = srv.Run(ctx, serverT) }()
	session, err := mcp.NewClient(testMCPImpl, nil).Connect(ctx, clientT, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer session.Close()

	if _, isErr := mcpCall(t, session, "knowledge_get_source", map[string]any{"source_id": "missing"}); !isErr {
		t.Fatal("expected tool error")
	}
	logs := buf.String()
	if !strings.Contains(logs, "op=knowledge_get_source") || !strings.Contains(logs, "trace_id=mcp_") {
		t.Errorf("logs: %s", logs)
	}
}
