package server

import (
	"testing"

	"github.com/a2c-smcp/a2c-smcp-go/internal/protocol"
)

func mustConnect(t *testing.T, r *Registry, connID string) {
	t.Helper()
	if err := r.Connect(connID); err != nil {
		t.Fatalf("Connect(%q): %v", connID, err)
	}
}

func TestJoinSingleAgentPerOffice(t *testing.T) {
	r := NewRegistry()
	mustConnect(t, r, "c1")
	mustConnect(t, r, "c2")

	res1 := r.Join("c1", protocol.RoleAgent, "A1", "office-1")
	if !res1.OK {
		t.Fatalf("first agent join failed: %+v", res1)
	}

	res2 := r.Join("c2", protocol.RoleAgent, "A2", "office-1")
	if res2.OK || res2.Reason != protocol.ErrRoleConflict {
		t.Fatalf("expected role_conflict, got %+v", res2)
	}
}

func TestAgentSingleRoomInvariant(t *testing.T) {
	r := NewRegistry()
	mustConnect(t, r, "c1")
	if res := r.Join("c1", protocol.RoleAgent, "A1", "office-1"); !res.OK {
		t.Fatalf("join office-1 failed: %+v", res)
	}
	res := r.Join("c1", protocol.RoleAgent, "A1", "office-2")
	if res.OK || res.Reason != protocol.ErrAgentSingleRoom {
		t.Fatalf("expected agent_single_room, got %+v", res)
	}
}

func TestDuplicateComputerNameRejected(t *testing.T) {
	r := NewRegistry()
	mustConnect(t, r, "c1")
	mustConnect(t, r, "c2")

	if res := r.Join("c1", protocol.RoleComputer, "box", "office-2"); !res.OK {
		t.Fatalf("first computer join failed: %+v", res)
	}
	res := r.Join("c2", protocol.RoleComputer, "box", "office-2")
	if res.OK || res.Reason != protocol.ErrDuplicateName {
		t.Fatalf("expected duplicate_name, got %+v", res)
	}
	if sess, _ := r.Get("c2"); sess.OfficeID != "" {
		t.Fatalf("rejected join must not mutate office_id, got %q", sess.OfficeID)
	}
}

func TestComputerSwitchingOfficesLeavesOldOne(t *testing.T) {
	r := NewRegistry()
	mustConnect(t, r, "c1")
	if res := r.Join("c1", protocol.RoleComputer, "box", "office-1"); !res.OK {
		t.Fatalf("join office-1: %+v", res)
	}
	res := r.Join("c1", protocol.RoleComputer, "box", "office-2")
	if !res.OK {
		t.Fatalf("join office-2: %+v", res)
	}
	if res.PreviousOfficeID != "office-1" {
		t.Fatalf("expected PreviousOfficeID office-1, got %q", res.PreviousOfficeID)
	}
	if _, ok := r.ResolveComputer("office-1", "box"); ok {
		t.Fatalf("computer still resolvable in old office after switch")
	}
	if conn, ok := r.ResolveComputer("office-2", "box"); !ok || conn != "c1" {
		t.Fatalf("computer not resolvable in new office")
	}
}

func TestJoinLeaveRoundTripRestoresSnapshot(t *testing.T) {
	r := NewRegistry()
	mustConnect(t, r, "c1")
	if res := r.Join("c1", protocol.RoleAgent, "A1", "office-1"); !res.OK {
		t.Fatalf("join: %+v", res)
	}
	r.Leave("c1")

	if sess, _ := r.Get("c1"); sess.OfficeID != "" {
		t.Fatalf("expected office_id cleared after leave, got %q", sess.OfficeID)
	}
	if len(r.ListRoom("office-1")) != 0 {
		t.Fatalf("expected empty room after leave")
	}
}

func TestDisconnectRemovesNoStaleEntries(t *testing.T) {
	r := NewRegistry()
	mustConnect(t, r, "c1")
	mustConnect(t, r, "c2")
	r.Join("c1", protocol.RoleAgent, "A1", "office-1")
	r.Join("c2", protocol.RoleComputer, "box", "office-1")

	office := r.Disconnect("c1")
	if office != "office-1" {
		t.Fatalf("expected office-1, got %q", office)
	}
	if _, ok := r.Get("c1"); ok {
		t.Fatalf("expected session to be fully removed")
	}
	room := r.ListRoom("office-1")
	if len(room) != 1 || room[0].Name != "box" {
		t.Fatalf("expected only the computer left in the room, got %+v", room)
	}

	// A fresh connect with the same id must not resurrect anything.
	mustConnect(t, r, "c1")
	if sess, _ := r.Get("c1"); sess.OfficeID != "" {
		t.Fatalf("expected clean slate for reused connID, got %+v", sess)
	}
}
