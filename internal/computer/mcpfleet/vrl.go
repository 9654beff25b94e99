package mcpfleet

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"

	"github.com/a2c-smcp/a2c-smcp-go/internal/protocol"
)

// vrlTimeout bounds a single VRL-like transform, per spec §9 "VRL
// transform... time-bounded (≈ 5 s)".
const vrlTimeout = 5 * time.Second

// No pure-Go Vector Remap Language engine exists in the ecosystem or the
// retrieval pack (see DESIGN.md); expr-lang/expr is the closest pure,
// sandboxed, schema-transforming expression evaluator available and a real
// dependency elsewhere in the pack. vrlEnv is the {result, tool_name,
// parameters} binding spec §4.2 "Call-tool" describes ("execute it over
// {result_as_dict, tool_name, parameters}").
type vrlEnv struct {
	Result     map[string]any `expr:"result"`
	ToolName   string         `expr:"tool_name"`
	Parameters map[string]any `expr:"parameters"`
}

// compileVRL parses script into a program. runVRL calls it on every
// transform; the compiled program is not cached.
func compileVRL(script string) (*vm.Program, error) {
	program, err := expr.Compile(script, expr.Env(vrlEnv{}))
	if err != nil {
		return nil, fmt.Errorf("mcpfleet: compile vrl: %w", err)
	}
	return program, nil
}

// runVRL executes script over the call's result/tool_name/parameters and
// returns the transformed payload as a JSON string, attached under
// protocol.MetaVRLTransformedKey on success. Runtime failures are non-fatal
// per spec §9: the caller logs and keeps the untransformed result.
func runVRL(script string, result protocol.CallToolResult, toolName string, params map[string]any) (string, error) {
	program, err := compileVRL(script)
	if err != nil {
		return "", err
	}

	resultAsDict := map[string]any{"isError": result.IsError}
	var texts []string
	for _, c := range result.Content {
		if c.Type == "text" {
			texts = append(texts, c.Text)
		}
	}
	resultAsDict["content"] = texts

	ctx, cancel := context.WithTimeout(context.Background(), vrlTimeout)
	defer cancel()

	done := make(chan struct{})
	var out any
	var runErr error
	go func() {
		defer close(done)
		out, runErr = expr.Run(program, vrlEnv{Result: resultAsDict, ToolName: toolName, Parameters: params})
	}()

	select {
	case <-done:
		if runErr != nil {
			return "", fmt.Errorf("mcpfleet: %s: %w", protocol.ErrVRLRuntime, runErr)
		}
		raw, merr := json.Marshal(out)
		if merr != nil {
			return "", fmt.Errorf("mcpfleet: %s: marshal transformed payload: %w", protocol.ErrVRLRuntime, merr)
		}
		return string(raw), nil
	case <-ctx.Done():
		return "", fmt.Errorf("mcpfleet: %s: timed out after %s", protocol.ErrVRLRuntime, vrlTimeout)
	}
}
