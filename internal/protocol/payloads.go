package protocol

import "encoding/json"

// ReqID generation and validation live in reqid.go.

// AgentCallData is embedded in every Agent-originated ack-bearing request.
type AgentCallData struct {
	Agent string `json:"agent"`
	ReqID string `json:"req_id"`
}

// ToolCallReq is the payload of client:tool_call.
type ToolCallReq struct {
	AgentCallData
	Computer string          `json:"computer"`
	ToolName string          `json:"tool_name"`
	Params   json.RawMessage `json:"params"`
	Timeout  int             `json:"timeout"` // seconds
}

// GetToolsReq is the payload of client:get_tools.
type GetToolsReq struct {
	AgentCallData
	Computer string `json:"computer"`
}

// GetToolsRet is the ack payload of client:get_tools.
type GetToolsRet struct {
	Tools []SMCPTool `json:"tools"`
	ReqID string     `json:"req_id"`
}

// GetDesktopReq is the payload of client:get_desktop.
type GetDesktopReq struct {
	AgentCallData
	Computer    string `json:"computer"`
	DesktopSize *int   `json:"desktop_size,omitempty"`
	Window      string `json:"window,omitempty"`
}

// GetDesktopRet is the ack payload of client:get_desktop.
type GetDesktopRet struct {
	Desktops []Window `json:"desktops"`
	ReqID    string   `json:"req_id"`
}

// GetConfigReq is the payload of client:get_config.
type GetConfigReq struct {
	AgentCallData
	Computer string `json:"computer"`
}

// GetConfigRet is the ack payload of client:get_config.
type GetConfigRet struct {
	Servers map[string]ServerConfig `json:"servers"`
	Inputs  []InputDef               `json:"inputs"`
	ReqID   string                   `json:"req_id"`
}

// EnterOfficeReq is the payload of server:join_office.
type EnterOfficeReq struct {
	Role     Role   `json:"role"`
	Name     string `json:"name"`
	OfficeID string `json:"office_id"`
	// AgentName carries the canonical display name when Role == RoleAgent.
	// For computers, Name already is the canonical identity.
	AgentName string `json:"agent_name,omitempty"`
}

// LeaveOfficeReq is the payload of server:leave_office.
type LeaveOfficeReq struct {
	Role     Role   `json:"role"`
	Name     string `json:"name"`
	OfficeID string `json:"office_id"`
}

// JoinAck is the ack returned for server:join_office / server:leave_office.
type JoinAck struct {
	OK     bool   `json:"ok"`
	Reason string `json:"reason,omitempty"`
}

// EnterOfficeNotification is notify:enter_office's payload.
type EnterOfficeNotification struct {
	OfficeID string `json:"office_id"`
	Computer string `json:"computer,omitempty"`
	Agent    string `json:"agent,omitempty"`
}

// LeaveOfficeNotification is notify:leave_office's payload.
type LeaveOfficeNotification struct {
	OfficeID string `json:"office_id"`
	Computer string `json:"computer,omitempty"`
	Agent    string `json:"agent,omitempty"`
}

// UpdateConfigNotification is notify:update_config's payload.
type UpdateConfigNotification struct {
	OfficeID string `json:"office_id"`
	Computer string `json:"computer"`
}

// UpdateToolListNotification is notify:update_tool_list's payload.
type UpdateToolListNotification struct {
	OfficeID string `json:"office_id"`
	Computer string `json:"computer"`
}

// UpdateDesktopNotification is notify:update_desktop's payload.
type UpdateDesktopNotification struct {
	OfficeID string `json:"office_id"`
	Computer string `json:"computer"`
}

// ToolCallCancelNotification is notify:tool_call_cancel's payload, rebroadcast
// by the Server from an Agent's server:tool_call_cancel event.
type ToolCallCancelNotification struct {
	OfficeID string `json:"office_id"`
	Agent    string `json:"agent"`
	ReqID    string `json:"req_id"`
}

// ToolCallCancelReq is the payload of server:tool_call_cancel (agent -> server).
type ToolCallCancelReq struct {
	AgentCallData
}

// SessionInfo describes one Server-side session as seen from server:list_room.
type SessionInfo struct {
	Role     Role   `json:"role"`
	Name     string `json:"name"`
	OfficeID string `json:"office_id"`
}

// ListRoomReq is the payload of server:list_room.
type ListRoomReq struct {
	AgentCallData
	OfficeID string `json:"office_id"`
}

// ListRoomRet is the ack payload of server:list_room.
type ListRoomRet struct {
	Sessions []SessionInfo `json:"sessions"`
	ReqID    string        `json:"req_id"`
}

// ErrorDetail is the structured error object carried by non-tool-call ack
// payloads, per spec §7 propagation policy (a) and the SPEC_FULL.md
// resolution of the "forwarding error descriptor" open question.
type ErrorDetail struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

// ErrorAck wraps an ErrorDetail the way it travels over the wire:
// {"error": {...}}.
type ErrorAck struct {
	Error ErrorDetail `json:"error"`
}

// NewErrorAck builds an ErrorAck for the given taxonomy code and message.
func NewErrorAck(code, message string, details map[string]any) ErrorAck {
	return ErrorAck{Error: ErrorDetail{Code: code, Message: message, Details: details}}
}

// Error codes from the taxonomy table in spec §7.
const (
	ErrAuthFailed         = "auth_failed"
	ErrRoleConflict       = "role_conflict"
	ErrAgentSingleRoom    = "agent_single_room"
	ErrDuplicateName      = "duplicate_name"
	ErrCrossRoomAccess    = "cross_room_access"
	ErrTargetUnknown      = "target_unknown"
	ErrForwardTimeout     = "forward_timeout"
	ErrInputNotFound      = "input_not_found"
	ErrToolNameDuplicated = "tool_name_duplicated"
	ErrToolForbidden      = "tool_forbidden"
	ErrToolUnknown        = "tool_unknown"
	ErrShuttingDown       = "shutting_down"
	ErrCallTimeout        = "call_timeout"
	ErrCallCancelled      = "call_cancelled"
	ErrProtocolMismatch   = "protocol_mismatch"
	ErrVRLRuntime         = "vrl_runtime"
)
