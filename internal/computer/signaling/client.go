// Package signaling implements the Computer's adapter between its MCP
// fleet (internal/computer/mcpfleet) and the /smcp signaling bus
// (internal/transport): outbound event whitelist enforcement, inbound
// client:* request handlers, and the outbound change feed (spec §4.4).
package signaling

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/a2c-smcp/a2c-smcp-go/internal/computer/input"
	"github.com/a2c-smcp/a2c-smcp-go/internal/protocol"
	"github.com/a2c-smcp/a2c-smcp-go/internal/transport"
)

// Fleet is the subset of *mcpfleet.Manager the signaling client depends on,
// kept narrow so tests can substitute a fake.
type Fleet interface {
	ListTools() []protocol.SMCPTool
	ListWindows(ctx context.Context, windowURI string) []protocol.Window
	CallTool(ctx context.Context, reqID, name string, params map[string]any, timeout time.Duration) protocol.CallToolResult
}

// Client is the Computer's signaling adapter. Per spec §5 "Back-reference
// policy", the Fleet (Computer) side holds only a weak reference to this
// Client — modeled in Go as the Client holding the strong reference and the
// fleet's ChangeListener callback closing over a *Client directly, with the
// Computer never required to hold a Client pointer past wiring time.
type Client struct {
	Name     string
	peer     *transport.Peer
	fleet    Fleet
	resolver *input.Resolver

	mu             sync.RWMutex
	officeID       string
	joined         atomic.Bool
	configProvider ConfigProvider
}

// NewClient wires peer's inbound handlers to fleet/resolver and returns the
// Client. name is this Computer's identity within an office.
func NewClient(name string, peer *transport.Peer, fleet Fleet, resolver *input.Resolver) *Client {
	c := &Client{Name: name, peer: peer, fleet: fleet, resolver: resolver}
	c.wireInbound()
	return c
}

func (c *Client) wireInbound() {
	c.peer.OnRequest(protocol.EventToolCall, c.handleToolCall)
	c.peer.OnRequest(protocol.EventGetTools, c.handleGetTools)
	c.peer.OnRequest(protocol.EventGetDesktop, c.handleGetDesktop)
	c.peer.OnRequest(protocol.EventGetConfig, c.handleGetConfig)
}

// emit enforces the outbound whitelist of spec §4.4 before handing off to
// the transport layer: emitting anything else is a programmer error.
func (c *Client) emit(event string, data any) error {
	if err := protocol.ValidateComputerOutbound(event); err != nil {
		panic(err) // per spec §7, a prefix violation is a programmer error
	}
	return c.peer.Emit(event, data)
}

// JoinOffice joins officeID as this Computer's identity. Per spec §4.4
// "Identity discipline", office_id is set before the ack call returns so any
// notification that arrives mid-join is attributable; it is cleared again on
// failure.
func (c *Client) JoinOffice(ctx context.Context, officeID string) error {
	c.mu.Lock()
	c.officeID = officeID
	c.mu.Unlock()

	var ack protocol.JoinAck
	err := c.peer.Request(ctx, protocol.EventJoinOffice, protocol.EnterOfficeReq{
		Role: protocol.RoleComputer, Name: c.Name, OfficeID: officeID,
	}, &ack)

	if err != nil || !ack.OK {
		c.mu.Lock()
		c.officeID = ""
		c.mu.Unlock()
		if err != nil {
			return fmt.Errorf("signaling: join_office: %w", err)
		}
		return fmt.Errorf("signaling: join_office rejected: %s", ack.Reason)
	}
	c.joined.Store(true)
	return nil
}

// LeaveOffice leaves the current office, if any.
func (c *Client) LeaveOffice(ctx context.Context) error {
	c.mu.RLock()
	officeID := c.officeID
	c.mu.RUnlock()
	if officeID == "" {
		return nil
	}

	var ack protocol.JoinAck
	err := c.peer.Request(ctx, protocol.EventLeaveOffice, protocol.LeaveOfficeReq{
		Role: protocol.RoleComputer, Name: c.Name, OfficeID: officeID,
	}, &ack)

	c.joined.Store(false)
	c.mu.Lock()
	c.officeID = ""
	c.mu.Unlock()
	if err != nil {
		return fmt.Errorf("signaling: leave_office: %w", err)
	}
	return nil
}

func (c *Client) currentOffice() (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.officeID, c.officeID != ""
}

// OnToolListChanged implements mcpfleet.ChangeListener: emits
// server:update_tool_list only while joined (spec §4.4 "Outbound change
// feeds").
func (c *Client) OnToolListChanged() {
	if _, ok := c.currentOffice(); !ok {
		return
	}
	if err := c.emit(protocol.EventUpdateToolList, struct{}{}); err != nil {
		log.Printf("[Signaling] emit update_tool_list: %v", err)
	}
}

// OnDesktopChanged implements mcpfleet.ChangeListener.
func (c *Client) OnDesktopChanged() {
	if _, ok := c.currentOffice(); !ok {
		return
	}
	if err := c.emit(protocol.EventUpdateDesktop, struct{}{}); err != nil {
		log.Printf("[Signaling] emit update_desktop: %v", err)
	}
}

// NotifyConfigChanged emits server:update_config while joined.
func (c *Client) NotifyConfigChanged() {
	if _, ok := c.currentOffice(); !ok {
		return
	}
	if err := c.emit(protocol.EventUpdateConfig, struct{}{}); err != nil {
		log.Printf("[Signaling] emit update_config: %v", err)
	}
}

// handleToolCall implements client:tool_call (spec §4.4): assert identity,
// execute, and never surface anything but a CallToolResult shape, even on
// an internal panic.
func (c *Client) handleToolCall(ctx context.Context, data json.RawMessage) (result any, err error) {
	defer func() {
		if r := recover(); r != nil {
			result = protocol.CallToolResult{
				IsError:           true,
				Content:           []protocol.ContentItem{{Type: "text", Text: fmt.Sprintf("internal error: %v", r)}},
				StructuredContent: fmt.Sprintf("%v", r),
			}
			err = nil
		}
	}()

	var req protocol.ToolCallReq
	if unmarshalErr := json.Unmarshal(data, &req); unmarshalErr != nil {
		return protocol.ErrorResult("malformed tool_call payload"), nil
	}
	if req.Computer != c.Name {
		return protocol.ErrorResult(fmt.Sprintf("identity mismatch: received for %q, this computer is %q", req.Computer, c.Name)), nil
	}
	officeID, joined := c.currentOffice()
	if !joined || req.AgentCallData.ReqID == "" {
		// still service the call: office membership is not checked here,
		// the Server validates it before forwarding.
		_ = officeID
	}

	var params map[string]any
	if len(req.Params) > 0 {
		if unmarshalErr := json.Unmarshal(req.Params, &params); unmarshalErr != nil {
			return protocol.ErrorResult("malformed tool_call params"), nil
		}
	}

	timeout := time.Duration(req.Timeout) * time.Second
	return c.fleet.CallTool(ctx, req.ReqID, req.ToolName, params, timeout), nil
}

func (c *Client) handleGetTools(_ context.Context, data json.RawMessage) (any, error) {
	var req protocol.GetToolsReq
	_ = json.Unmarshal(data, &req)
	return protocol.GetToolsRet{Tools: c.fleet.ListTools(), ReqID: req.ReqID}, nil
}

func (c *Client) handleGetDesktop(ctx context.Context, data json.RawMessage) (any, error) {
	var req protocol.GetDesktopReq
	_ = json.Unmarshal(data, &req)
	windows := c.fleet.ListWindows(ctx, req.Window)
	if req.DesktopSize != nil && len(windows) > *req.DesktopSize {
		windows = windows[:*req.DesktopSize]
	}
	return protocol.GetDesktopRet{Desktops: windows, ReqID: req.ReqID}, nil
}

// ConfigProvider supplies the current servers/inputs snapshot for
// client:get_config. Kept separate from Fleet since config visibility is a
// distinct concern from tool execution.
type ConfigProvider interface {
	Servers() map[string]protocol.ServerConfig
	Inputs() []protocol.InputDef
}

// configProvider is set once via SetConfigProvider; nil until then, in
// which case handleGetConfig returns an empty snapshot.
func (c *Client) handleGetConfig(_ context.Context, data json.RawMessage) (any, error) {
	var req protocol.GetConfigReq
	_ = json.Unmarshal(data, &req)

	c.mu.RLock()
	provider := c.configProvider
	c.mu.RUnlock()

	ret := protocol.GetConfigRet{ReqID: req.ReqID, Servers: map[string]protocol.ServerConfig{}}
	if provider != nil {
		ret.Servers = provider.Servers()
		ret.Inputs = provider.Inputs()
	}
	return ret, nil
}

// SetConfigProvider installs the source of truth for client:get_config
// responses.
func (c *Client) SetConfigProvider(p ConfigProvider) {
	c.mu.Lock()
	c.configProvider = p
	c.mu.Unlock()
}
