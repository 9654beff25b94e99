package input

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"regexp"
)

// DefaultMaxDepth bounds recursive traversal of a config's JSON form (spec
// §4.3 "Rendering... bounded by max_depth (default 10)").
const DefaultMaxDepth = 10

var placeholderRe = regexp.MustCompile(`\$\{input:([^}]+)\}`)

// Render recursively resolves every ${input:<id>} placeholder inside raw (a
// ServerConfig serialized to JSON), using r to resolve each id. It returns
// the rendered JSON. maxDepth <= 0 uses DefaultMaxDepth.
func Render(ctx context.Context, r *Resolver, raw json.RawMessage, maxDepth int) (json.RawMessage, error) {
	if maxDepth <= 0 {
		maxDepth = DefaultMaxDepth
	}
	var value any
	if err := json.Unmarshal(raw, &value); err != nil {
		return nil, fmt.Errorf("input: render: parse config: %w", err)
	}

	rendered, err := renderValue(ctx, r, value, maxDepth)
	if err != nil {
		return nil, err
	}

	out, err := json.Marshal(rendered)
	if err != nil {
		return nil, fmt.Errorf("input: render: marshal result: %w", err)
	}
	return out, nil
}

func renderValue(ctx context.Context, r *Resolver, value any, depth int) (any, error) {
	if depth <= 0 {
		return value, nil
	}
	switch v := value.(type) {
	case map[string]any:
		out := make(map[string]any, len(v))
		for k, child := range v {
			rendered, err := renderValue(ctx, r, child, depth-1)
			if err != nil {
				return nil, err
			}
			out[k] = rendered
		}
		return out, nil
	case []any:
		out := make([]any, len(v))
		for i, child := range v {
			rendered, err := renderValue(ctx, r, child, depth-1)
			if err != nil {
				return nil, err
			}
			out[i] = rendered
		}
		return out, nil
	case string:
		return renderString(ctx, r, v)
	default:
		return value, nil
	}
}

// renderString implements spec §4.3's splice-vs-verbatim rule: a string
// that is exactly one placeholder and nothing else is replaced by the
// resolver's value verbatim, preserving its type; otherwise every
// placeholder found is stringified and spliced into the surrounding text.
// An unknown id logs a warning and leaves the original text untouched —
// rendering never fails on a missing id.
func renderString(ctx context.Context, r *Resolver, s string) (any, error) {
	matches := placeholderRe.FindStringSubmatch(s)
	if matches != nil && matches[0] == s {
		id := matches[1]
		value, err := r.Resolve(ctx, id)
		if err != nil {
			log.Printf("[Input] render: unknown input %q, leaving placeholder in place", id)
			return s, nil
		}
		return value, nil
	}

	result := placeholderRe.ReplaceAllStringFunc(s, func(match string) string {
		id := placeholderRe.FindStringSubmatch(match)[1]
		value, err := r.Resolve(ctx, id)
		if err != nil {
			log.Printf("[Input] render: unknown input %q, leaving placeholder in place", id)
			return match
		}
		return fmt.Sprintf("%v", value)
	})
	return result, nil
}
