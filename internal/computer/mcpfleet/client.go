package mcpfleet

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	sdk_client "github.com/mark3labs/mcp-go/client"
	sdk_transport "github.com/mark3labs/mcp-go/client/transport"
	sdk_mcp "github.com/mark3labs/mcp-go/mcp"

	"github.com/a2c-smcp/a2c-smcp-go/internal/protocol"
)

// shutdownGrace is the bounded grace period spec §4.2 step 4 allows a stdio
// child to exit cleanly after SIGTERM before it is SIGKILLed.
const shutdownGrace = 2 * time.Second

// ToolInfo captures the metadata of a single tool exposed by an MCP server,
// generalizing the teacher's internal/mcp.ToolInfo (which only carried
// stdio/sse fields) to all three transport variants.
type ToolInfo struct {
	Name        string
	Description string
	InputSchema json.RawMessage
}

// Client wraps one mark3labs/mcp-go connection, generalizing the teacher's
// internal/mcp.Client from its two hard-coded transports (stdio, sse) to
// the three named in spec §3: stdio | sse | streamable_http.
//
// A Client carries its own state machine (spec §4.2 "Lifecycle discipline")
// and tracks in-flight calls so Shutdown can cancel them before tearing the
// transport down.
type Client struct {
	cfg protocol.ServerConfig

	mu       sync.RWMutex
	state    State
	inner    sdk_client.MCPClient
	closing  bool
	inFlight map[string]context.CancelFunc // reqID -> cancel, for shutdown-time cancellation

	// childProcess is set only for the stdio transport, via the CommandFunc
	// closure in connectStdio, so Shutdown can run spec §4.2's
	// SIGTERM-then-SIGKILL sequence against its process group.
	childProcess *exec.Cmd
}

// NewClient creates an unconnected Client for cfg. Call Connect before any
// other method.
func NewClient(cfg protocol.ServerConfig) *Client {
	return &Client{cfg: cfg, state: StateInitialized, inFlight: make(map[string]context.CancelFunc)}
}

// Config returns the ServerConfig this client was built from.
func (c *Client) Config() protocol.ServerConfig {
	return c.cfg
}

// State reports the client's current lifecycle state.
func (c *Client) State() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

// Connect builds the transport-specific SDK client and performs the MCP
// initialize handshake. The factory branch per transport is the "adding a
// transport means adding a variant and a factory branch" polymorphism named
// in spec §9.
func (c *Client) Connect(ctx context.Context) error {
	var inner sdk_client.MCPClient
	var err error

	switch c.cfg.Transport {
	case protocol.TransportStdio:
		inner, err = c.connectStdio(ctx)
	case protocol.TransportSSE:
		inner, err = c.connectSSE(ctx)
	case protocol.TransportStreamableHTTP:
		inner, err = c.connectStreamableHTTP(ctx)
	default:
		err = fmt.Errorf("mcpfleet: unknown transport %q for server %q", c.cfg.Transport, c.cfg.Name)
	}
	if err != nil {
		c.mu.Lock()
		c.state = StateError
		c.mu.Unlock()
		return err
	}

	_, err = inner.Initialize(ctx, sdk_mcp.InitializeRequest{
		Params: sdk_mcp.InitializeParams{
			ProtocolVersion: sdk_mcp.LATEST_PROTOCOL_VERSION,
			ClientInfo: sdk_mcp.Implementation{
				Name:    "a2c-smcp-computer",
				Version: "0.1.0",
			},
		},
	})
	if err != nil {
		_ = inner.Close()
		c.mu.Lock()
		c.state = StateError
		c.mu.Unlock()
		return fmt.Errorf("mcpfleet: initialize server %q: %w", c.cfg.Name, err)
	}

	c.mu.Lock()
	c.inner = inner
	c.state = StateConnected
	c.mu.Unlock()
	return nil
}

func (c *Client) connectStdio(ctx context.Context) (sdk_client.MCPClient, error) {
	p := c.cfg.Stdio
	if p == nil {
		return nil, fmt.Errorf("mcpfleet: server %q declares stdio transport with no stdio params", c.cfg.Name)
	}

	env := make([]string, 0, len(p.Env))
	for k, v := range p.Env {
		env = append(env, k+"="+v)
	}

	// WithCommandFunc owns exec.Cmd construction so the child is started in
	// its own process group (spec §4.2's "new session" requirement) and so
	// Shutdown can reach it directly; mcp-go's default spawnCommand does
	// neither.
	cmdFunc := func(ctx context.Context, command string, env []string, args []string) (*exec.Cmd, error) {
		cmd := exec.CommandContext(ctx, command, args...)
		cmd.Env = append(cmd.Environ(), env...)
		cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
		c.mu.Lock()
		c.childProcess = cmd
		c.mu.Unlock()
		return cmd, nil
	}

	cli, err := sdk_client.NewStdioMCPClientWithOptions(p.Command, env, p.Args, sdk_transport.WithCommandFunc(cmdFunc))
	if err != nil {
		return nil, fmt.Errorf("mcpfleet: start stdio server %q: %w", c.cfg.Name, err)
	}
	return cli, nil
}

func (c *Client) connectSSE(ctx context.Context) (sdk_client.MCPClient, error) {
	p := c.cfg.SSE
	if p == nil {
		return nil, fmt.Errorf("mcpfleet: server %q declares sse transport with no sse params", c.cfg.Name)
	}
	var opts []sdk_client.ClientOption
	if len(p.Headers) > 0 {
		opts = append(opts, sdk_client.WithHeaders(p.Headers))
	}
	cli, err := sdk_client.NewSSEMCPClient(p.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("mcpfleet: create sse client %q: %w", c.cfg.Name, err)
	}
	if err := cli.Start(ctx); err != nil {
		return nil, fmt.Errorf("mcpfleet: start sse client %q: %w", c.cfg.Name, err)
	}
	return cli, nil
}

func (c *Client) connectStreamableHTTP(ctx context.Context) (sdk_client.MCPClient, error) {
	p := c.cfg.StreamableHTTP
	if p == nil {
		return nil, fmt.Errorf("mcpfleet: server %q declares streamable_http transport with no streamable_http params", c.cfg.Name)
	}
	var opts []sdk_client.StreamableHTTPCOption
	if len(p.Headers) > 0 {
		opts = append(opts, sdk_client.WithHTTPHeaders(p.Headers))
	}
	if d, err := durationFromISO8601(p.TimeoutISO8601); err == nil && d > 0 {
		opts = append(opts, sdk_client.WithHTTPTimeout(d))
	}
	cli, err := sdk_client.NewStreamableHttpClient(p.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("mcpfleet: create streamable_http client %q: %w", c.cfg.Name, err)
	}
	if err := cli.Start(ctx); err != nil {
		return nil, fmt.Errorf("mcpfleet: start streamable_http client %q: %w", c.cfg.Name, err)
	}
	return cli, nil
}

// durationFromISO8601 parses the small subset of ISO-8601 durations spec §3
// requires for streamable_http's timeout fields: "PT<seconds>S" or a bare
// seconds count. Empty input yields 0, nil (use the SDK default).
func durationFromISO8601(s string) (time.Duration, error) {
	if s == "" {
		return 0, nil
	}
	trimmed := strings.TrimPrefix(s, "PT")
	trimmed = strings.TrimSuffix(trimmed, "S")
	secs, err := strconv.ParseFloat(trimmed, 64)
	if err != nil {
		return 0, fmt.Errorf("mcpfleet: parse iso8601 duration %q: %w", s, err)
	}
	return time.Duration(secs * float64(time.Second)), nil
}

// ListTools returns metadata for every tool this server exposes.
func (c *Client) ListTools(ctx context.Context) ([]ToolInfo, error) {
	inner, err := c.liveInner()
	if err != nil {
		return nil, err
	}
	result, err := inner.ListTools(ctx, sdk_mcp.ListToolsRequest{})
	if err != nil {
		return nil, fmt.Errorf("mcpfleet: list tools %q: %w", c.cfg.Name, err)
	}
	tools := make([]ToolInfo, 0, len(result.Tools))
	for _, t := range result.Tools {
		schema, err := json.Marshal(t.InputSchema)
		if err != nil {
			schema = json.RawMessage("{}")
		}
		tools = append(tools, ToolInfo{Name: t.Name, Description: t.Description, InputSchema: schema})
	}
	return tools, nil
}

// ListWindows returns every resource this server exposes whose URI has the
// window:// scheme (spec §3 "Desktop"), without reading their content.
func (c *Client) ListWindows(ctx context.Context) ([]protocol.Window, error) {
	inner, err := c.liveInner()
	if err != nil {
		return nil, err
	}
	result, err := inner.ListResources(ctx, sdk_mcp.ListResourcesRequest{})
	if err != nil {
		return nil, fmt.Errorf("mcpfleet: list resources %q: %w", c.cfg.Name, err)
	}
	var windows []protocol.Window
	for _, r := range result.Resources {
		if !strings.HasPrefix(r.URI, "window://") {
			continue
		}
		windows = append(windows, protocol.Window{Server: c.cfg.Name, WindowURI: r.URI})
	}
	return windows, nil
}

// ReadWindow fetches the content of one window:// resource and computes its
// content digest (sha256 of the raw bytes, hex-encoded).
func (c *Client) ReadWindow(ctx context.Context, windowURI string) (protocol.Window, error) {
	inner, err := c.liveInner()
	if err != nil {
		return protocol.Window{}, err
	}
	req := sdk_mcp.ReadResourceRequest{}
	req.Params.URI = windowURI
	result, err := inner.ReadResource(ctx, req)
	if err != nil {
		return protocol.Window{}, fmt.Errorf("mcpfleet: read window %q on %q: %w", windowURI, c.cfg.Name, err)
	}
	detail, err := json.Marshal(result.Contents)
	if err != nil {
		detail = json.RawMessage("[]")
	}
	sum := sha256.Sum256(detail)
	return protocol.Window{
		Server:        c.cfg.Name,
		WindowURI:     windowURI,
		ContentDigest: hex.EncodeToString(sum[:]),
		Detail:        detail,
	}, nil
}

// CallTool invokes name on the downstream server with params, tracking the
// call under reqID so Shutdown can cancel it. Infrastructure failures are
// returned as a Go error, which the caller (manager.go) shapes into a
// protocol.CallToolResult; a tool-level error comes back as a result with
// IsError set and a nil error. Only text content items are carried over.
func (c *Client) CallTool(ctx context.Context, reqID, name string, params map[string]any) (protocol.CallToolResult, error) {
	c.mu.Lock()
	if c.closing {
		c.mu.Unlock()
		return protocol.CallToolResult{}, errShuttingDown
	}
	callCtx, cancel := context.WithCancel(ctx)
	c.inFlight[reqID] = cancel
	inner := c.inner
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		delete(c.inFlight, reqID)
		c.mu.Unlock()
		cancel()
	}()

	if inner == nil {
		return protocol.CallToolResult{}, fmt.Errorf("mcpfleet: client %q not connected", c.cfg.Name)
	}

	req := sdk_mcp.CallToolRequest{}
	req.Params.Name = name
	req.Params.Arguments = params

	result, err := inner.CallTool(callCtx, req)
	if err != nil {
		if callCtx.Err() == context.Canceled {
			return protocol.CallToolResult{}, errCallCancelled
		}
		return protocol.CallToolResult{}, fmt.Errorf("mcpfleet: call tool %q on %q: %w", name, c.cfg.Name, err)
	}

	out := protocol.CallToolResult{IsError: result.IsError}
	for _, content := range result.Content {
		if tc, ok := content.(sdk_mcp.TextContent); ok {
			out.Content = append(out.Content, protocol.ContentItem{Type: "text", Text: tc.Text})
		}
	}
	return out, nil
}

// CancelAll cancels every in-flight call this client is tracking (spec
// §4.2 shutdown step 2).
func (c *Client) CancelAll() {
	c.mu.Lock()
	cancels := make([]context.CancelFunc, 0, len(c.inFlight))
	for _, cancel := range c.inFlight {
		cancels = append(cancels, cancel)
	}
	c.mu.Unlock()
	for _, cancel := range cancels {
		cancel()
	}
}

// Shutdown runs the lifecycle discipline of spec §4.2: mark closing, cancel
// in-flight calls, close the transport (stdin, for stdio), then for stdio
// servers drive SIGTERM-then-SIGKILL against the child's process group
// directly — mark3labs/mcp-go's transport.Stdio.Close only closes the pipes
// and waits on the process, it never signals it, so that sequence has to
// live here.
func (c *Client) Shutdown() error {
	c.mu.Lock()
	c.closing = true
	inner := c.inner
	cmd := c.childProcess
	c.inner = nil
	c.childProcess = nil
	c.mu.Unlock()

	c.CancelAll()

	if inner == nil {
		c.mu.Lock()
		c.state = StateDisconnected
		c.mu.Unlock()
		return nil
	}

	if cmd == nil {
		err := inner.Close()
		c.mu.Lock()
		c.state = StateDisconnected
		c.mu.Unlock()
		return err
	}

	return c.shutdownStdio(inner, cmd)
}

// shutdownStdio implements spec §4.2 steps 3-6 for a stdio child: Close
// closes stdin (step 3) and blocks on cmd.Wait internally, so it is run in
// its own goroutine while this method races the grace period and escalates
// to SIGKILL against the whole process group if the child outlives it.
func (c *Client) shutdownStdio(inner sdk_client.MCPClient, cmd *exec.Cmd) error {
	closed := make(chan error, 1)
	go func() { closed <- inner.Close() }()

	select {
	case err := <-closed:
		c.mu.Lock()
		c.state = StateDisconnected
		c.mu.Unlock()
		return err
	case <-time.After(shutdownGrace / 2):
		// give the child a moment after stdin-close before escalating
	}

	if cmd.Process != nil {
		_ = syscall.Kill(-cmd.Process.Pid, syscall.SIGTERM)
	}

	select {
	case err := <-closed:
		c.mu.Lock()
		c.state = StateDisconnected
		c.mu.Unlock()
		return err
	case <-time.After(shutdownGrace):
	}

	if cmd.Process != nil {
		_ = syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
	}

	err := <-closed
	c.mu.Lock()
	c.state = StateDisconnected
	c.mu.Unlock()
	return err
}

func (c *Client) liveInner() (sdk_client.MCPClient, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.state != StateConnected || c.inner == nil {
		return nil, fmt.Errorf("mcpfleet: client %q not connected (state=%s)", c.cfg.Name, c.state)
	}
	return c.inner, nil
}
