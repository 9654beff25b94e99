package server

import (
	"fmt"
	"sync"

	"github.com/a2c-smcp/a2c-smcp-go/internal/protocol"
)

// Session is the Server-side record for one live connection (spec §3).
type Session struct {
	ConnID   string
	Role     protocol.Role
	Name     string
	OfficeID string // "" if not currently in an office
}

// JoinResult reports the outcome of a join attempt. Reason is set (and OK is
// false) on rejection, using the taxonomy codes from spec §7.
type JoinResult struct {
	OK     bool
	Reason string
	// PreviousOfficeID is set when the join implied a graceful leave of a
	// different office first (a computer switching offices, spec §4.1 step 3).
	PreviousOfficeID string
}

// Registry is the Server's concurrent session table: sessions keyed by
// connection id, plus the reverse (role, name) -> connection id map and room
// membership needed to enforce spec §3's invariants and resolve forwarding
// targets.
//
// All mutators run under a single mutex, the same "one lock for structural
// state, no I/O while held" discipline as the teacher's mcp.Manager — the
// registry never performs I/O, so the lock is held for the whole of every
// method.
type Registry struct {
	mu sync.RWMutex

	sessions map[string]*Session // connID -> session

	// office_id -> computer name -> connID
	computerNames map[string]map[string]string
	// office_id -> connID of the single agent, if any
	agentConn map[string]string
}

// NewRegistry creates an empty session registry.
func NewRegistry() *Registry {
	return &Registry{
		sessions:      make(map[string]*Session),
		computerNames: make(map[string]map[string]string),
		agentConn:     make(map[string]string),
	}
}

// Connect registers a brand-new, unassigned session for connID. It is an
// error to call Connect twice for the same connID without an intervening
// Disconnect.
func (r *Registry) Connect(connID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.sessions[connID]; exists {
		return fmt.Errorf("server: connection %q already registered", connID)
	}
	r.sessions[connID] = &Session{ConnID: connID}
	return nil
}

// Get returns a copy of the session for connID, if any.
func (r *Registry) Get(connID string) (Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[connID]
	if !ok {
		return Session{}, false
	}
	return *s, true
}

// Join implements spec §4.1's join procedure. On success the session's
// role/name/office_id are committed atomically; on failure the registry is
// left exactly as it was before the call (rollback to the pre-call
// snapshot).
func (r *Registry) Join(connID string, role protocol.Role, name, officeID string) JoinResult {
	r.mu.Lock()
	defer r.mu.Unlock()

	sess, ok := r.sessions[connID]
	if !ok {
		return JoinResult{OK: false, Reason: "unknown connection"}
	}
	if !protocol.IsKnownRole(role) {
		return JoinResult{OK: false, Reason: "invalid role"}
	}

	switch role {
	case protocol.RoleAgent:
		return r.joinAsAgent(sess, name, officeID)
	case protocol.RoleComputer:
		return r.joinAsComputer(sess, name, officeID)
	default:
		return JoinResult{OK: false, Reason: "invalid role"}
	}
}

func (r *Registry) joinAsAgent(sess *Session, name, officeID string) JoinResult {
	// Idempotent rejoin of the same office.
	if sess.Role == protocol.RoleAgent && sess.OfficeID == officeID && officeID != "" {
		sess.Name = name
		return JoinResult{OK: true}
	}
	// This connection is already an agent elsewhere.
	if sess.Role == protocol.RoleAgent && sess.OfficeID != "" && sess.OfficeID != officeID {
		return JoinResult{OK: false, Reason: protocol.ErrAgentSingleRoom}
	}
	if existing, ok := r.agentConn[officeID]; ok && existing != sess.ConnID {
		return JoinResult{OK: false, Reason: protocol.ErrRoleConflict}
	}

	sess.Role = protocol.RoleAgent
	sess.Name = name
	sess.OfficeID = officeID
	r.agentConn[officeID] = sess.ConnID
	return JoinResult{OK: true}
}

func (r *Registry) joinAsComputer(sess *Session, name, officeID string) JoinResult {
	if members, ok := r.computerNames[officeID]; ok {
		if existingConn, exists := members[name]; exists && existingConn != sess.ConnID {
			return JoinResult{OK: false, Reason: protocol.ErrDuplicateName}
		}
	}

	var previousOffice string
	if sess.Role == protocol.RoleComputer && sess.OfficeID != "" && sess.OfficeID != officeID {
		previousOffice = sess.OfficeID
		r.removeFromOffice(sess)
	}

	sess.Role = protocol.RoleComputer
	sess.Name = name
	sess.OfficeID = officeID
	if r.computerNames[officeID] == nil {
		r.computerNames[officeID] = make(map[string]string)
	}
	r.computerNames[officeID][name] = sess.ConnID

	return JoinResult{OK: true, PreviousOfficeID: previousOffice}
}

// Leave removes connID from its current office, if any, returning the
// office id it was removed from ("" if it was not in one).
func (r *Registry) Leave(connID string) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	sess, ok := r.sessions[connID]
	if !ok || sess.OfficeID == "" {
		return ""
	}
	office := sess.OfficeID
	r.removeFromOffice(sess)
	return office
}

// removeFromOffice clears sess's office membership and the corresponding
// reverse-map entries. Caller must hold mu.
func (r *Registry) removeFromOffice(sess *Session) {
	office := sess.OfficeID
	switch sess.Role {
	case protocol.RoleAgent:
		if r.agentConn[office] == sess.ConnID {
			delete(r.agentConn, office)
		}
	case protocol.RoleComputer:
		if members, ok := r.computerNames[office]; ok {
			if members[sess.Name] == sess.ConnID {
				delete(members, sess.Name)
			}
			if len(members) == 0 {
				delete(r.computerNames, office)
			}
		}
	}
	sess.OfficeID = ""
}

// Disconnect tears down all state for connID: its office membership (if
// any) and the session record itself. Returns the office it was removed
// from, mirroring Leave, so the caller can broadcast notify:leave_office
// exactly once.
func (r *Registry) Disconnect(connID string) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	sess, ok := r.sessions[connID]
	if !ok {
		return ""
	}
	office := sess.OfficeID
	if office != "" {
		r.removeFromOffice(sess)
	}
	delete(r.sessions, connID)
	return office
}

// ResolveComputer returns the connID of the named computer within officeID.
func (r *Registry) ResolveComputer(officeID, name string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	members, ok := r.computerNames[officeID]
	if !ok {
		return "", false
	}
	connID, ok := members[name]
	return connID, ok
}

// MembersOf returns every connID currently in officeID (agent and all
// computers), for broadcast targeting.
func (r *Registry) MembersOf(officeID string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []string
	if conn, ok := r.agentConn[officeID]; ok {
		out = append(out, conn)
	}
	for _, conn := range r.computerNames[officeID] {
		out = append(out, conn)
	}
	return out
}

// ListRoom returns a snapshot of every session in officeID, agent first.
func (r *Registry) ListRoom(officeID string) []protocol.SessionInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []protocol.SessionInfo
	if conn, ok := r.agentConn[officeID]; ok {
		if sess, ok := r.sessions[conn]; ok {
			out = append(out, protocol.SessionInfo{Role: sess.Role, Name: sess.Name, OfficeID: officeID})
		}
	}
	for name, conn := range r.computerNames[officeID] {
		if sess, ok := r.sessions[conn]; ok {
			_ = name
			out = append(out, protocol.SessionInfo{Role: sess.Role, Name: sess.Name, OfficeID: officeID})
		}
	}
	return out
}
