package protocol

import (
	"encoding/json"
	"time"
)

// ToolCallRecord captures one attempted tool invocation for the Computer's
// bounded audit ring buffer (spec §3).
type ToolCallRecord struct {
	Timestamp  time.Time       `json:"timestamp"`
	ReqID      string          `json:"req_id"`
	Server     string          `json:"server"`
	Tool       string          `json:"tool"`
	Parameters json.RawMessage `json:"parameters"`
	Timeout    *int            `json:"timeout,omitempty"`
	Success    bool            `json:"success"`
	Error      string          `json:"error,omitempty"`
}

// ToolCallRing is a fixed-capacity ring buffer of ToolCallRecord, the same
// trim-on-append pattern the teacher uses for per-session turn history
// (internal/session/store.go's Store.AppendTurn), generalized to a
// fixed-size ring instead of a TTL-evicted map.
type ToolCallRing struct {
	cap     int
	records []ToolCallRecord
}

// NewToolCallRing creates a ring buffer holding at most capacity records.
// capacity <= 0 is treated as 10, the default named in spec §3.
func NewToolCallRing(capacity int) *ToolCallRing {
	if capacity <= 0 {
		capacity = 10
	}
	return &ToolCallRing{cap: capacity}
}

// Add appends a record, evicting the oldest if the ring is at capacity.
func (r *ToolCallRing) Add(rec ToolCallRecord) {
	r.records = append(r.records, rec)
	if len(r.records) > r.cap {
		r.records = r.records[len(r.records)-r.cap:]
	}
}

// Snapshot returns a copy of the records currently held, oldest first.
func (r *ToolCallRing) Snapshot() []ToolCallRecord {
	out := make([]ToolCallRecord, len(r.records))
	copy(out, r.records)
	return out
}
