package protocol

// Transport identifies which of the three downstream MCP server transport
// variants a ServerConfig describes (spec §3).
type Transport string

const (
	TransportStdio          Transport = "stdio"
	TransportSSE            Transport = "sse"
	TransportStreamableHTTP Transport = "streamable_http"
)

// StdioParams are the stdio-variant fields of ServerConfig.
type StdioParams struct {
	Command             string            `json:"command"`
	Args                []string          `json:"args,omitempty"`
	Env                 map[string]string `json:"env,omitempty"`
	Cwd                 string            `json:"cwd,omitempty"`
	TextEncoding        string            `json:"text_encoding,omitempty"`
	EncodingErrorPolicy string            `json:"encoding_error_policy,omitempty"` // "strict" | "ignore" | "replace"
}

// SSEParams are the sse-variant fields of ServerConfig.
type SSEParams struct {
	URL                   string            `json:"url"`
	Headers               map[string]string `json:"headers,omitempty"`
	TimeoutSeconds        float64           `json:"timeout_seconds,omitempty"`
	SSEReadTimeoutSeconds float64           `json:"sse_read_timeout_seconds,omitempty"`
}

// StreamableHTTPParams are the streamable_http-variant fields of ServerConfig.
// Durations are carried as ISO-8601 strings on the wire (spec §3). The
// mcpfleet client parses TimeoutISO8601 with durationFromISO8601 when it
// connects; SSEReadTimeoutISO8601 is carried but not applied.
type StreamableHTTPParams struct {
	URL                   string            `json:"url"`
	Headers               map[string]string `json:"headers,omitempty"`
	TimeoutISO8601        string            `json:"timeout_iso8601,omitempty"`
	SSEReadTimeoutISO8601 string            `json:"sse_read_timeout_iso8601,omitempty"`
	TerminateOnClose      bool              `json:"terminate_on_close,omitempty"`
}

// ServerConfig is the immutable, validation-frozen description of one
// downstream MCP server (spec §3). Name is its identity: hash/eq key, unique
// within a Computer's servers_config map.
type ServerConfig struct {
	Name      string    `json:"name"`
	Transport Transport `json:"transport"`

	Disabled       bool                `json:"disabled,omitempty"`
	ForbiddenTools []string            `json:"forbidden_tools,omitempty"`
	ToolMeta       map[string]ToolMeta `json:"tool_meta,omitempty"`
	DefaultToolMeta *ToolMeta          `json:"default_tool_meta,omitempty"`
	VRL            string              `json:"vrl,omitempty"`

	Stdio          *StdioParams          `json:"stdio,omitempty"`
	SSE            *SSEParams            `json:"sse,omitempty"`
	StreamableHTTP *StreamableHTTPParams `json:"streamable_http,omitempty"`
}

// Equal reports identity equality: two ServerConfigs are the "same server"
// iff their names match, regardless of any other field (spec §3: "name is
// the identity (hash/eq key)").
func (c ServerConfig) Equal(other ServerConfig) bool {
	return c.Name == other.Name
}

// EffectiveToolMeta merges the per-tool override (if any) over
// DefaultToolMeta for the given original tool name.
func (c ServerConfig) EffectiveToolMeta(toolName string) ToolMeta {
	var specific *ToolMeta
	if tm, ok := c.ToolMeta[toolName]; ok {
		specific = &tm
	}
	return MergeToolMeta(c.DefaultToolMeta, specific)
}

// IsForbidden reports whether toolName is in ForbiddenTools. The tool-map
// refresh checks both a tool's original name and its alias.
func (c ServerConfig) IsForbidden(toolName string) bool {
	for _, f := range c.ForbiddenTools {
		if f == toolName {
			return true
		}
	}
	return false
}
