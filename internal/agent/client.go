// Package agent implements the Agent client core of spec §4.5: ack-bearing
// request correlation, tool/desktop/config/room operations, timeout-driven
// cancellation, and the default notification-reaction policy.
package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/a2c-smcp/a2c-smcp-go/internal/protocol"
	"github.com/a2c-smcp/a2c-smcp-go/internal/transport"
)

func marshalParams(params map[string]any) (json.RawMessage, error) {
	if params == nil {
		return json.RawMessage("{}"), nil
	}
	return json.Marshal(params)
}

// Reactions toggles the default notification-reaction policy of spec §4.5.
// All default to true; set a field false to disable that reaction.
type Reactions struct {
	OnEnterOffice    bool
	OnUpdateConfig   bool
	OnUpdateToolList bool
	OnUpdateDesktop  bool
	OnLeaveOffice    bool
}

// DefaultReactions enables every reaction named in spec §4.5.
func DefaultReactions() Reactions {
	return Reactions{true, true, true, true, true}
}

// OnToolsReceived is invoked after a successful get_tools, whether
// triggered directly or by a notification reaction (spec §4.5
// "emit on_tools_received").
type OnToolsReceived func(computer string, tools []protocol.SMCPTool)

// Client is the Agent's signaling-facing core.
type Client struct {
	Name      string
	peer      *transport.Peer
	Reactions Reactions
	OnTools   OnToolsReceived

	mu         sync.RWMutex
	officeID   string
	toolsCache map[string][]protocol.SMCPTool
}

// NewClient wires peer's notification handlers and returns the Client. The
// live Client reference is what notification handlers close over — spec
// §4.5 "synthetic/dummy references are prohibited".
func NewClient(name string, peer *transport.Peer) *Client {
	c := &Client{
		Name:       name,
		peer:       peer,
		Reactions:  DefaultReactions(),
		toolsCache: make(map[string][]protocol.SMCPTool),
	}
	c.wireNotifications()
	return c
}

func (c *Client) wireNotifications() {
	// Reactions that issue follow-up requests run off the peer's read pump:
	// the acks they wait for are delivered by that same pump.
	async := func(h transport.EventHandler) transport.EventHandler {
		return func(data json.RawMessage) { go h(data) }
	}
	c.peer.OnEvent(protocol.NotifyEnterOffice, async(c.onEnterOffice))
	c.peer.OnEvent(protocol.NotifyUpdateConfig, async(c.onUpdateConfig))
	c.peer.OnEvent(protocol.NotifyUpdateToolList, async(c.onUpdateToolList))
	c.peer.OnEvent(protocol.NotifyUpdateDesktop, async(c.onUpdateDesktop))
	c.peer.OnEvent(protocol.NotifyLeaveOffice, c.onLeaveOffice)
}

// JoinOffice joins officeID under the client's Name.
func (c *Client) JoinOffice(ctx context.Context, officeID string) error {
	var ack protocol.JoinAck
	if err := c.peer.Request(ctx, protocol.EventJoinOffice, protocol.EnterOfficeReq{
		Role: protocol.RoleAgent, Name: c.Name, OfficeID: officeID, AgentName: c.Name,
	}, &ack); err != nil {
		return fmt.Errorf("agent: join_office: %w", err)
	}
	if !ack.OK {
		return fmt.Errorf("agent: join_office rejected: %s", ack.Reason)
	}
	c.mu.Lock()
	c.officeID = officeID
	c.mu.Unlock()
	return nil
}

// LeaveOffice leaves the current office.
func (c *Client) LeaveOffice(ctx context.Context) error {
	c.mu.RLock()
	officeID := c.officeID
	c.mu.RUnlock()

	var ack protocol.JoinAck
	err := c.peer.Request(ctx, protocol.EventLeaveOffice, protocol.LeaveOfficeReq{
		Role: protocol.RoleAgent, Name: c.Name, OfficeID: officeID,
	}, &ack)
	c.mu.Lock()
	c.officeID = ""
	c.mu.Unlock()
	if err != nil {
		return fmt.Errorf("agent: leave_office: %w", err)
	}
	return nil
}

// correlate sends a fresh-req_id request and verifies the response's req_id
// matches (spec §4.5 "Request correlation"): a mismatch raises
// protocol_mismatch without surfacing the payload.
func correlate[TReq any, TRet any](
	ctx context.Context, peer *transport.Peer, event string,
	buildReq func(reqID string) TReq, retReqID func(TRet) string,
) (TRet, error) {
	var zero TRet
	reqID := protocol.NewReqID()
	req := buildReq(reqID)

	var ret TRet
	if err := peer.Request(ctx, event, req, &ret); err != nil {
		return zero, fmt.Errorf("agent: %s: %w", event, err)
	}
	if retReqID(ret) != reqID {
		return zero, fmt.Errorf("agent: %s: %s: expected req_id %q, got %q", event, protocol.ErrProtocolMismatch, reqID, retReqID(ret))
	}
	return ret, nil
}

// GetTools fetches computer's tool list and updates the per-computer cache.
func (c *Client) GetTools(ctx context.Context, computer string) ([]protocol.SMCPTool, error) {
	ret, err := correlate(ctx, c.peer, protocol.EventGetTools,
		func(reqID string) protocol.GetToolsReq {
			return protocol.GetToolsReq{AgentCallData: protocol.AgentCallData{Agent: c.Name, ReqID: reqID}, Computer: computer}
		},
		func(r protocol.GetToolsRet) string { return r.ReqID },
	)
	if err != nil {
		return nil, err
	}
	c.mu.Lock()
	c.toolsCache[computer] = ret.Tools
	c.mu.Unlock()
	if c.OnTools != nil {
		c.OnTools(computer, ret.Tools)
	}
	return ret.Tools, nil
}

// CachedTools returns the last tools fetched for computer, without issuing
// a request.
func (c *Client) CachedTools(computer string) ([]protocol.SMCPTool, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	tools, ok := c.toolsCache[computer]
	return tools, ok
}

// InvalidateTools drops the cached tool list for computer.
func (c *Client) InvalidateTools(computer string) {
	c.mu.Lock()
	delete(c.toolsCache, computer)
	c.mu.Unlock()
}

// GetDesktop fetches computer's desktop view.
func (c *Client) GetDesktop(ctx context.Context, computer string, size *int, window string) ([]protocol.Window, error) {
	ret, err := correlate(ctx, c.peer, protocol.EventGetDesktop,
		func(reqID string) protocol.GetDesktopReq {
			return protocol.GetDesktopReq{
				AgentCallData: protocol.AgentCallData{Agent: c.Name, ReqID: reqID},
				Computer:      computer, DesktopSize: size, Window: window,
			}
		},
		func(r protocol.GetDesktopRet) string { return r.ReqID },
	)
	if err != nil {
		return nil, err
	}
	return ret.Desktops, nil
}

// GetConfig fetches computer's servers/inputs snapshot.
func (c *Client) GetConfig(ctx context.Context, computer string) (protocol.GetConfigRet, error) {
	return correlate(ctx, c.peer, protocol.EventGetConfig,
		func(reqID string) protocol.GetConfigReq {
			return protocol.GetConfigReq{AgentCallData: protocol.AgentCallData{Agent: c.Name, ReqID: reqID}, Computer: computer}
		},
		func(r protocol.GetConfigRet) string { return r.ReqID },
	)
}

// ListRoom lists the sessions in officeID.
func (c *Client) ListRoom(ctx context.Context, officeID string) ([]protocol.SessionInfo, error) {
	ret, err := correlate(ctx, c.peer, protocol.EventListRoom,
		func(reqID string) protocol.ListRoomReq {
			return protocol.ListRoomReq{AgentCallData: protocol.AgentCallData{Agent: c.Name, ReqID: reqID}, OfficeID: officeID}
		},
		func(r protocol.ListRoomRet) string { return r.ReqID },
	)
	if err != nil {
		return nil, err
	}
	return ret.Sessions, nil
}

// ToolCall invokes tool_name on computer. On timeout it does not raise:
// it emits server:tool_call_cancel and returns a synthesized
// CallToolResult{isError:true} referencing req_id (spec §4.5). Protocol and
// transport errors still raise.
func (c *Client) ToolCall(ctx context.Context, computer, toolName string, params map[string]any, timeout time.Duration) (protocol.CallToolResult, error) {
	reqID := protocol.NewReqID()
	paramsJSON, err := marshalParams(params)
	if err != nil {
		return protocol.CallToolResult{}, fmt.Errorf("agent: tool_call: marshal params: %w", err)
	}

	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var out protocol.CallToolResult
	reqErr := c.peer.Request(callCtx, protocol.EventToolCall, protocol.ToolCallReq{
		AgentCallData: protocol.AgentCallData{Agent: c.Name, ReqID: reqID},
		Computer:      computer, ToolName: toolName, Params: paramsJSON, Timeout: int(timeout.Seconds()),
	}, &out)

	if reqErr == nil {
		return out, nil
	}
	if callCtx.Err() == context.DeadlineExceeded {
		c.emitCancel(context.Background(), reqID)
		return protocol.ErrorResult(fmt.Sprintf("tool_call timed out (req_id=%s)", reqID)), nil
	}
	return protocol.CallToolResult{}, fmt.Errorf("agent: tool_call: %w", reqErr)
}

func (c *Client) emitCancel(ctx context.Context, reqID string) {
	if err := c.peer.Emit(protocol.EventToolCallCancel, protocol.ToolCallCancelReq{
		AgentCallData: protocol.AgentCallData{Agent: c.Name, ReqID: reqID},
	}); err != nil {
		_ = ctx // emit is fire-and-forget; nothing to retry on failure here
	}
}
