package mcpfleet

import (
	"context"
	"testing"

	sdk_client "github.com/mark3labs/mcp-go/client"
	sdk_mcp "github.com/mark3labs/mcp-go/mcp"

	"github.com/a2c-smcp/a2c-smcp-go/internal/protocol"
)

// fakeSDKClient satisfies sdk_client.MCPClient by embedding the interface
// (nil) and overriding only the methods these tests exercise; any other
// method would panic on the embedded nil, which is acceptable since no test
// here calls them.
type fakeSDKClient struct {
	sdk_client.MCPClient
	tools []sdk_mcp.Tool
}

func (f *fakeSDKClient) Initialize(_ context.Context, _ sdk_mcp.InitializeRequest) (*sdk_mcp.InitializeResult, error) {
	return &sdk_mcp.InitializeResult{}, nil
}

func (f *fakeSDKClient) ListTools(_ context.Context, _ sdk_mcp.ListToolsRequest) (*sdk_mcp.ListToolsResult, error) {
	return &sdk_mcp.ListToolsResult{Tools: f.tools}, nil
}

func (f *fakeSDKClient) CallTool(_ context.Context, req sdk_mcp.CallToolRequest) (*sdk_mcp.CallToolResult, error) {
	return &sdk_mcp.CallToolResult{
		Content: []sdk_mcp.Content{sdk_mcp.TextContent{Type: "text", Text: "ok:" + req.Params.Name}},
	}, nil
}

func (f *fakeSDKClient) Close() error { return nil }

// connectedClient builds a mcpfleet.Client wired to a fakeSDKClient without
// going through the real transport factories.
func connectedClient(t *testing.T, cfg protocol.ServerConfig, tools ...sdk_mcp.Tool) *Client {
	t.Helper()
	c := NewClient(cfg)
	c.inner = &fakeSDKClient{tools: tools}
	c.state = StateConnected
	return c
}

func tool(name string) sdk_mcp.Tool {
	return sdk_mcp.Tool{Name: name, Description: name + " desc"}
}

func TestRefreshToolMapDetectsConflict(t *testing.T) {
	m := NewManager()
	cfgA := protocol.ServerConfig{Name: "A", Transport: protocol.TransportStdio}
	cfgB := protocol.ServerConfig{Name: "B", Transport: protocol.TransportStdio}

	m.configs["A"] = cfgA
	m.configs["B"] = cfgB
	m.clients["A"] = connectedClient(t, cfgA, tool("ls"))
	m.clients["B"] = connectedClient(t, cfgB, tool("ls"))

	if err := m.refreshToolMap(); err == nil {
		t.Fatalf("expected tool_name_duplicated, got nil")
	}
}

func TestRefreshToolMapAliasResolvesConflict(t *testing.T) {
	m := NewManager()
	alias := "ls_b"
	cfgA := protocol.ServerConfig{Name: "A", Transport: protocol.TransportStdio}
	cfgB := protocol.ServerConfig{Name: "B", Transport: protocol.TransportStdio, ToolMeta: map[string]protocol.ToolMeta{
		"ls": {Alias: &alias},
	}}

	m.configs["A"] = cfgA
	m.configs["B"] = cfgB
	m.clients["A"] = connectedClient(t, cfgA, tool("ls"))
	m.clients["B"] = connectedClient(t, cfgB, tool("ls"))

	if err := m.refreshToolMap(); err != nil {
		t.Fatalf("refreshToolMap: %v", err)
	}

	if _, _, err := m.ValidateToolCall("ls"); err != nil {
		t.Fatalf("expected ls resolvable to server A, got %v", err)
	}
	if server, original, err := m.ValidateToolCall("ls_b"); err != nil || server != "B" || original != "ls" {
		t.Fatalf("expected ls_b -> (B, ls), got (%s, %s, %v)", server, original, err)
	}
}

func TestValidateToolCallForbidden(t *testing.T) {
	m := NewManager()
	cfg := protocol.ServerConfig{Name: "A", Transport: protocol.TransportStdio, ForbiddenTools: []string{"rm"}}
	m.configs["A"] = cfg
	m.clients["A"] = connectedClient(t, cfg, tool("rm"), tool("ls"))

	if err := m.refreshToolMap(); err != nil {
		t.Fatalf("refreshToolMap: %v", err)
	}
	if _, _, err := m.ValidateToolCall("rm"); err == nil {
		t.Fatalf("expected rm to be filtered out as forbidden")
	}
	if _, _, err := m.ValidateToolCall("ls"); err != nil {
		t.Fatalf("expected ls to validate, got %v", err)
	}
}

func TestCallToolMergesToolMetaAndRecordsHistory(t *testing.T) {
	m := NewManager()
	cfg := protocol.ServerConfig{Name: "A", Transport: protocol.TransportStdio}
	m.configs["A"] = cfg
	m.clients["A"] = connectedClient(t, cfg, tool("echo"))
	if err := m.refreshToolMap(); err != nil {
		t.Fatalf("refreshToolMap: %v", err)
	}

	result := m.CallTool(context.Background(), "req-1", "echo", map[string]any{"text": "hi"}, 0)
	if result.IsError {
		t.Fatalf("unexpected error result: %+v", result)
	}
	if len(result.Content) != 1 || result.Content[0].Text != "ok:echo" {
		t.Fatalf("unexpected content: %+v", result.Content)
	}
	if _, ok := result.Meta[protocol.MetaToolMetaKey]; !ok {
		t.Fatalf("expected merged tool meta under %q", protocol.MetaToolMetaKey)
	}

	hist := m.ToolCallHistory()
	if len(hist) != 1 || hist[0].ReqID != "req-1" || !hist[0].Success {
		t.Fatalf("unexpected history: %+v", hist)
	}
}

func TestDurationFromISO8601(t *testing.T) {
	cases := map[string]float64{
		"":      0,
		"PT30S": 30,
		"5":     5,
	}
	for in, wantSeconds := range cases {
		d, err := durationFromISO8601(in)
		if err != nil {
			t.Fatalf("durationFromISO8601(%q): %v", in, err)
		}
		if d.Seconds() != wantSeconds {
			t.Fatalf("durationFromISO8601(%q) = %v, want %v seconds", in, d, wantSeconds)
		}
	}
}
