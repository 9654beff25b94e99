package server

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/a2c-smcp/a2c-smcp-go/internal/protocol"
)

// handleJoin implements server:join_office (spec §4.1 "Join").
func (h *Hub) handleJoin(connID string, data json.RawMessage) (any, error) {
	var req protocol.EnterOfficeReq
	if err := json.Unmarshal(data, &req); err != nil {
		return protocol.JoinAck{OK: false, Reason: "malformed payload"}, nil
	}

	name := req.Name
	if req.Role == protocol.RoleAgent && req.AgentName != "" {
		name = req.AgentName
	}

	result := h.Registry.Join(connID, req.Role, name, req.OfficeID)
	if !result.OK {
		return protocol.JoinAck{OK: false, Reason: result.Reason}, nil
	}

	if result.PreviousOfficeID != "" {
		prevSess := Session{ConnID: connID, Role: req.Role, Name: name, OfficeID: result.PreviousOfficeID}
		h.broadcastLeave(result.PreviousOfficeID, prevSess, connID)
	}

	h.broadcastEnter(req.OfficeID, req.Role, name, connID)
	return protocol.JoinAck{OK: true}, nil
}

// handleLeave implements server:leave_office (spec §4.1 "Leave": broadcast
// first, then remove membership).
func (h *Hub) handleLeave(connID string, data json.RawMessage) (any, error) {
	sess, ok := h.Registry.Get(connID)
	if !ok || sess.OfficeID == "" {
		return protocol.JoinAck{OK: true}, nil // idempotent no-op
	}

	officeID := sess.OfficeID
	h.broadcastLeave(officeID, sess, connID)
	h.Registry.Leave(connID)
	return protocol.JoinAck{OK: true}, nil
}

// handleListRoom implements server:list_room.
func (h *Hub) handleListRoom(connID string, data json.RawMessage) (any, error) {
	var req protocol.ListRoomReq
	_ = json.Unmarshal(data, &req)

	officeID := req.OfficeID
	if officeID == "" {
		if sess, ok := h.Registry.Get(connID); ok {
			officeID = sess.OfficeID
		}
	}
	return protocol.ListRoomRet{Sessions: h.Registry.ListRoom(officeID), ReqID: req.ReqID}, nil
}

// broadcastEnter sends notify:enter_office to every member of officeID,
// including the newcomer itself (SPEC_FULL.md §9 resolves the "deliver to
// newcomer?" open question: yes, for a single uniform handler path).
func (h *Hub) broadcastEnter(officeID string, role protocol.Role, name, _ string) {
	notif := protocol.EnterOfficeNotification{OfficeID: officeID}
	switch role {
	case protocol.RoleAgent:
		notif.Agent = name
	case protocol.RoleComputer:
		notif.Computer = name
	}
	h.broadcast(officeID, protocol.NotifyEnterOffice, notif)
}

// broadcastLeave sends notify:leave_office to every current member of
// officeID. teardown and handleLeave call it before the registry removes the
// session, so the departing connection receives it too; handleJoin calls it
// after a computer has moved to its new office. The session is passed
// explicitly so it works either way.
func (h *Hub) broadcastLeave(officeID string, sess Session, _ string) {
	notif := protocol.LeaveOfficeNotification{OfficeID: officeID}
	switch sess.Role {
	case protocol.RoleAgent:
		notif.Agent = sess.Name
	case protocol.RoleComputer:
		notif.Computer = sess.Name
	}
	h.broadcast(officeID, protocol.NotifyLeaveOffice, notif)
}

// rebroadcastFactory builds an EventHandler that looks up the emitting
// connection's session, fills in office_id/computer, and rebroadcasts
// notifyEvent to the room. Used for update_config/update_tool_list/
// update_desktop, which the Computer emits with no payload of its own —
// the Server derives "who" from the session, not from client-supplied data.
func (h *Hub) rebroadcastFactory(connID string, notifyEvent string) func(json.RawMessage) {
	return func(_ json.RawMessage) {
		sess, ok := h.Registry.Get(connID)
		if !ok || sess.Role != protocol.RoleComputer || sess.OfficeID == "" {
			return
		}
		var notif any
		switch notifyEvent {
		case protocol.NotifyUpdateConfig:
			notif = protocol.UpdateConfigNotification{OfficeID: sess.OfficeID, Computer: sess.Name}
		case protocol.NotifyUpdateToolList:
			notif = protocol.UpdateToolListNotification{OfficeID: sess.OfficeID, Computer: sess.Name}
		case protocol.NotifyUpdateDesktop:
			notif = protocol.UpdateDesktopNotification{OfficeID: sess.OfficeID, Computer: sess.Name}
		default:
			return
		}
		h.broadcast(sess.OfficeID, notifyEvent, notif)
	}
}

// handleToolCallCancel implements server:tool_call_cancel (agent -> server),
// rebroadcast as notify:tool_call_cancel.
func (h *Hub) handleToolCallCancel(connID string, data json.RawMessage) {
	sess, ok := h.Registry.Get(connID)
	if !ok || sess.Role != protocol.RoleAgent || sess.OfficeID == "" {
		return
	}
	var req protocol.ToolCallCancelReq
	if err := json.Unmarshal(data, &req); err != nil {
		return
	}
	notif := protocol.ToolCallCancelNotification{OfficeID: sess.OfficeID, Agent: sess.Name, ReqID: req.ReqID}
	h.broadcast(sess.OfficeID, protocol.NotifyToolCallCancel, notif)
}

// broadcast sends event to every current member of officeID.
func (h *Hub) broadcast(officeID, event string, payload any) {
	for _, connID := range h.Registry.MembersOf(officeID) {
		if peer, ok := h.peerFor(connID); ok {
			if err := peer.Emit(event, payload); err != nil {
				// Best-effort: a broadcast target that has gone away will be
				// cleaned up by its own disconnect teardown shortly.
				continue
			}
		}
	}
}

// forward implements the forwarding contract of spec §4.1: the caller must
// be an agent in an office; the target computer name comes from the
// payload; the forward is bounded by ForwardSafety added to the agent's
// declared timeout (tool calls) or a fixed default (non-tool-call
// forwards).
func (h *Hub) forward(ctx context.Context, connID, event string, data json.RawMessage) (any, error) {
	sess, ok := h.Registry.Get(connID)
	if !ok || sess.Role != protocol.RoleAgent || sess.OfficeID == "" {
		return protocol.NewErrorAck(protocol.ErrCrossRoomAccess, "caller is not an agent in an office", nil), nil
	}

	var envelope struct {
		Computer string `json:"computer"`
		Timeout  int    `json:"timeout"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		return protocol.NewErrorAck(protocol.ErrTargetUnknown, "malformed payload", nil), nil
	}

	targetConn, ok := h.Registry.ResolveComputer(sess.OfficeID, envelope.Computer)
	if !ok {
		return protocol.NewErrorAck(protocol.ErrTargetUnknown, fmt.Sprintf("unknown computer %q", envelope.Computer), nil), nil
	}
	targetPeer, ok := h.peerFor(targetConn)
	if !ok {
		return protocol.NewErrorAck(protocol.ErrTargetUnknown, fmt.Sprintf("computer %q has no live connection", envelope.Computer), nil), nil
	}

	timeout := h.ForwardSafety
	if envelope.Timeout > 0 {
		timeout = time.Duration(envelope.Timeout)*time.Second + h.ForwardSafety
	} else if timeout == 0 {
		timeout = DefaultForwardSafetyMargin
	}
	fctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var raw json.RawMessage
	if err := targetPeer.Request(fctx, event, json.RawMessage(data), &raw); err != nil {
		if event == protocol.EventToolCall {
			return protocol.ErrorResult(fmt.Sprintf("forward_timeout: %v (req pending as %s)", err, event)), nil
		}
		return protocol.NewErrorAck(protocol.ErrForwardTimeout, err.Error(), nil), nil
	}
	// The Computer's ack payload is returned verbatim to the Agent (spec
	// §4.1 step 4).
	var out any
	if len(raw) > 0 {
		_ = json.Unmarshal(raw, &out)
		return json.RawMessage(raw), nil
	}
	return out, nil
}
