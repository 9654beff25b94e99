package input

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
)

// execCommandRunner is the default CommandRunner, reusing the teacher's
// os/exec conventions (internal/mcp/scanner.go's script execution, and
// builtin/shell.go's stdout/stderr capture) for the "command" InputDef kind
// (spec §4.3 "execute command locally").
type execCommandRunner struct{}

func (execCommandRunner) Run(ctx context.Context, command string, args []string) (stdout, stderr string, err error) {
	cmd := exec.CommandContext(ctx, command, args...)
	var outBuf, errBuf bytes.Buffer
	cmd.Stdout = &outBuf
	cmd.Stderr = &errBuf

	if runErr := cmd.Run(); runErr != nil {
		return outBuf.String(), errBuf.String(), fmt.Errorf("input: command %q exited: %w", command, runErr)
	}
	return outBuf.String(), errBuf.String(), nil
}
