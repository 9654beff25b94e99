package protocol

import "encoding/json"

// Window is one entry of a Computer's aggregated Desktop view, derived from
// an MCP resource whose URI has the window:// scheme (spec §3, §4.4).
type Window struct {
	Server        string          `json:"server"`
	WindowURI     string          `json:"window_uri"`
	ContentDigest string          `json:"content_digest"`
	Detail        json.RawMessage `json:"detail,omitempty"`
}
