package agent

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"github.com/a2c-smcp/a2c-smcp-go/internal/protocol"
)

// reactionTimeout bounds the follow-up requests notification reactions
// issue; each runs in its own goroutine (see wireNotifications) and must not
// block indefinitely.
const reactionTimeout = 10 * time.Second

func (c *Client) currentOffice() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.officeID
}

// onEnterOffice implements spec §4.5: "notify:enter_office with matching
// office_id ⇒ auto-invoke get_tools(computer) for the newcomer, then emit
// on_tools_received."
func (c *Client) onEnterOffice(data json.RawMessage) {
	if !c.Reactions.OnEnterOffice {
		return
	}
	var n protocol.EnterOfficeNotification
	if err := json.Unmarshal(data, &n); err != nil || n.OfficeID != c.currentOffice() || n.Computer == "" {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), reactionTimeout)
	defer cancel()
	if _, err := c.GetTools(ctx, n.Computer); err != nil {
		log.Printf("[Agent] enter_office reaction: get_tools(%q): %v", n.Computer, err)
	}
}

// onUpdateConfig implements "notify:update_config ⇒ get_tools for the
// originating computer."
func (c *Client) onUpdateConfig(data json.RawMessage) {
	if !c.Reactions.OnUpdateConfig {
		return
	}
	var n protocol.UpdateConfigNotification
	if err := json.Unmarshal(data, &n); err != nil || n.OfficeID != c.currentOffice() {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), reactionTimeout)
	defer cancel()
	if _, err := c.GetTools(ctx, n.Computer); err != nil {
		log.Printf("[Agent] update_config reaction: get_tools(%q): %v", n.Computer, err)
	}
}

// onUpdateToolList implements "notify:update_tool_list ⇒ same [as
// update_config]."
func (c *Client) onUpdateToolList(data json.RawMessage) {
	if !c.Reactions.OnUpdateToolList {
		return
	}
	var n protocol.UpdateToolListNotification
	if err := json.Unmarshal(data, &n); err != nil || n.OfficeID != c.currentOffice() {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), reactionTimeout)
	defer cancel()
	if _, err := c.GetTools(ctx, n.Computer); err != nil {
		log.Printf("[Agent] update_tool_list reaction: get_tools(%q): %v", n.Computer, err)
	}
}

// onUpdateDesktop implements "notify:update_desktop ⇒ get_desktop for the
// computer (if auto-desktop flag set)."
func (c *Client) onUpdateDesktop(data json.RawMessage) {
	if !c.Reactions.OnUpdateDesktop {
		return
	}
	var n protocol.UpdateDesktopNotification
	if err := json.Unmarshal(data, &n); err != nil || n.OfficeID != c.currentOffice() {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), reactionTimeout)
	defer cancel()
	if _, err := c.GetDesktop(ctx, n.Computer, nil, ""); err != nil {
		log.Printf("[Agent] update_desktop reaction: get_desktop(%q): %v", n.Computer, err)
	}
}

// onLeaveOffice implements "notify:leave_office ⇒ invalidate that
// computer's cached tools."
func (c *Client) onLeaveOffice(data json.RawMessage) {
	if !c.Reactions.OnLeaveOffice {
		return
	}
	var n protocol.LeaveOfficeNotification
	if err := json.Unmarshal(data, &n); err != nil || n.OfficeID != c.currentOffice() || n.Computer == "" {
		return
	}
	c.InvalidateTools(n.Computer)
}
