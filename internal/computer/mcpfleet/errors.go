package mcpfleet

import (
	"errors"

	"github.com/a2c-smcp/a2c-smcp-go/internal/protocol"
)

// Sentinel errors CallTool returns so manager.go can distinguish them from
// generic infrastructure failures when shaping a protocol.CallToolResult
// (spec §7 error taxonomy: shutting_down, call_cancelled).
var (
	errShuttingDown       = errors.New(protocol.ErrShuttingDown)
	errCallCancelled      = errors.New(protocol.ErrCallCancelled)
	errToolNameDuplicated = errors.New(protocol.ErrToolNameDuplicated)
	errToolUnknown        = errors.New(protocol.ErrToolUnknown)
	errToolForbidden      = errors.New(protocol.ErrToolForbidden)
)

func isErrToolForbidden(err error) bool {
	return errors.Is(err, errToolForbidden)
}
