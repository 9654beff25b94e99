package protocol

import "encoding/json"

// ToolMeta carries the per-tool overrides described in spec §3. Fields are
// pointers so that "absent" (nil) and "present but zero-valued" are
// distinguishable — required by the shallow-overlay merge rule.
type ToolMeta struct {
	AutoApply      *bool           `json:"auto_apply,omitempty"`
	Alias          *string         `json:"alias,omitempty"`
	Tags           []string        `json:"tags,omitempty"`
	RetObjectMapper json.RawMessage `json:"ret_object_mapper,omitempty"`
}

// MergeToolMeta overlays specific on top of def, field by field: a present
// field in specific wins, an absent field falls back to def. Neither input
// is mutated. Either argument may be nil.
func MergeToolMeta(def, specific *ToolMeta) ToolMeta {
	var out ToolMeta
	if def != nil {
		out = *def
	}
	if specific == nil {
		return out
	}
	if specific.AutoApply != nil {
		out.AutoApply = specific.AutoApply
	}
	if specific.Alias != nil {
		out.Alias = specific.Alias
	}
	if specific.Tags != nil {
		out.Tags = specific.Tags
	}
	if specific.RetObjectMapper != nil {
		out.RetObjectMapper = specific.RetObjectMapper
	}
	return out
}

// SMCPTool is the aggregated, externally-visible view of one tool exposed by
// a Computer, per spec §3 "Tool (aggregated view)".
type SMCPTool struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	InputSchema json.RawMessage `json:"input_schema"`
	Meta        ToolMeta        `json:"meta"`
}

// MetaVRLTransformedKey is the well-known metadata key under which a
// VRL-transformed payload is attached to a tool call result (spec §4.2
// "Call-tool"), as a JSON string distinct from the untransformed content.
const MetaVRLTransformedKey = "a2c_smcp_vrl_result"

// MetaToolMetaKey is the well-known metadata key under which the merged
// ToolMeta for the invoked tool is attached to a tool call result.
const MetaToolMetaKey = "a2c_smcp_tool_meta"
