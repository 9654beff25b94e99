package protocol

import (
	"strings"

	"github.com/google/uuid"
)

// NewReqID generates a 32-char lowercase hex UUIDv4 with no separators, the
// wire format required by spec §4.5 and §6.
func NewReqID() string {
	return strings.ReplaceAll(uuid.New().String(), "-", "")
}

// IsValidReqID reports whether s is a syntactically valid req_id: 32
// lowercase hex characters.
func IsValidReqID(s string) bool {
	if len(s) != 32 {
		return false
	}
	for _, r := range s {
		switch {
		case r >= '0' && r <= '9':
		case r >= 'a' && r <= 'f':
		default:
			return false
		}
	}
	return true
}
