package signaling

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/a2c-smcp/a2c-smcp-go/internal/computer/input"
	"github.com/a2c-smcp/a2c-smcp-go/internal/protocol"
	"github.com/a2c-smcp/a2c-smcp-go/internal/transport"
)

type fakeFleet struct {
	tools   []protocol.SMCPTool
	windows []protocol.Window
	lastReq string
}

func (f *fakeFleet) ListTools() []protocol.SMCPTool { return f.tools }
func (f *fakeFleet) ListWindows(_ context.Context, _ string) []protocol.Window {
	return f.windows
}
func (f *fakeFleet) CallTool(_ context.Context, reqID, name string, _ map[string]any, _ time.Duration) protocol.CallToolResult {
	f.lastReq = reqID
	return protocol.TextResult("called:" + name)
}

// peerPair dials a websocket pair backed by httptest, mirroring the pattern
// established in internal/transport/peer_test.go and internal/server/hub_test.go.
func peerPair(t *testing.T) (local, remote *transport.Peer, cleanup func()) {
	t.Helper()
	upgrader := websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }}
	serverCh := make(chan *transport.Peer, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		serverCh <- transport.NewPeer(conn)
	}))

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	local = transport.NewPeer(conn)

	select {
	case remote = <-serverCh:
	case <-time.After(2 * time.Second):
		t.Fatalf("server never accepted connection")
	}
	return local, remote, func() {
		local.Close()
		remote.Close()
		srv.Close()
	}
}

func TestHandleToolCallDelegatesToFleet(t *testing.T) {
	computerPeer, serverPeer, cleanup := peerPair(t)
	defer cleanup()

	fleet := &fakeFleet{}
	NewClient("C1", computerPeer, fleet, input.NewResolver(nil, nil))

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	var out protocol.CallToolResult
	err := serverPeer.Request(ctx, protocol.EventToolCall, protocol.ToolCallReq{
		AgentCallData: protocol.AgentCallData{Agent: "A1", ReqID: "abc123"},
		Computer:      "C1",
		ToolName:      "echo",
		Timeout:       5,
	}, &out)
	if err != nil {
		t.Fatalf("tool_call request: %v", err)
	}
	if out.IsError || len(out.Content) != 1 || out.Content[0].Text != "called:echo" {
		t.Fatalf("unexpected result: %+v", out)
	}
	if fleet.lastReq != "abc123" {
		t.Fatalf("expected reqID abc123 to reach the fleet, got %q", fleet.lastReq)
	}
}

func TestHandleToolCallRejectsIdentityMismatch(t *testing.T) {
	computerPeer, serverPeer, cleanup := peerPair(t)
	defer cleanup()

	NewClient("C1", computerPeer, &fakeFleet{}, input.NewResolver(nil, nil))

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	var out protocol.CallToolResult
	err := serverPeer.Request(ctx, protocol.EventToolCall, protocol.ToolCallReq{
		Computer: "someone-else",
		ToolName: "echo",
	}, &out)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	if !out.IsError {
		t.Fatalf("expected an identity-mismatch error result, got %+v", out)
	}
}

func TestEmitRejectsDisallowedEvent(t *testing.T) {
	computerPeer, _, cleanup := peerPair(t)
	defer cleanup()

	c := NewClient("C1", computerPeer, &fakeFleet{}, input.NewResolver(nil, nil))

	defer func() {
		if r := recover(); r == nil {
			t.Fatalf("expected emit of a notify:* event to panic as a programmer error")
		}
	}()
	_ = c.emit(protocol.NotifyEnterOffice, struct{}{})
}

func TestGetToolsReturnsFleetSnapshot(t *testing.T) {
	computerPeer, serverPeer, cleanup := peerPair(t)
	defer cleanup()

	fleet := &fakeFleet{tools: []protocol.SMCPTool{{Name: "ls"}}}
	NewClient("C1", computerPeer, fleet, input.NewResolver(nil, nil))

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	var out protocol.GetToolsRet
	if err := serverPeer.Request(ctx, protocol.EventGetTools, protocol.GetToolsReq{}, &out); err != nil {
		t.Fatalf("get_tools: %v", err)
	}
	if len(out.Tools) != 1 || out.Tools[0].Name != "ls" {
		t.Fatalf("unexpected tools: %+v", out.Tools)
	}
}
