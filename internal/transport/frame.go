// Package transport implements the ack-bearing event framing spec §6 calls
// "a Socket.IO-compatible transport (polling + WebSocket upgrade; ack-bearing
// requests required)". No Go Socket.IO implementation appears anywhere in
// the retrieval pack (see DESIGN.md), so this package layers the same
// ack/room semantics directly over github.com/gorilla/websocket, the
// websocket library the rest of the pack actually depends on.
//
// Every peer — Server, Computer, Agent — speaks the same framing, so a
// single Peer type (below) is shared by all three; direction and event-name
// restrictions are enforced one layer up, in internal/server and
// internal/computer/signaling.
package transport

import "encoding/json"

// frameKind distinguishes the three shapes a Frame can take on the wire.
type frameKind string

const (
	kindEmit     frameKind = "emit"     // fire-and-forget, no ack expected
	kindRequest  frameKind = "request"  // ack-bearing request, AckID set
	kindResponse frameKind = "response" // reply to a Request, AckID echoes the request's
)

// Frame is the single JSON shape every message on the wire takes. Unknown
// fields are tolerated on receive per spec §6.
type Frame struct {
	Kind  frameKind       `json:"kind"`
	Event string          `json:"event,omitempty"`
	AckID string          `json:"ack_id,omitempty"`
	Data  json.RawMessage `json:"data,omitempty"`
	// Err is set instead of Data on a response frame that represents a
	// handler-level failure (distinct from a transport-level failure, which
	// simply never produces a response and lets the requester's timeout
	// fire).
	Err string `json:"err,omitempty"`
}
