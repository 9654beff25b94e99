package input

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"
)

// StdinPrompter is the non-interactive default Prompter: it reads one line
// from stdin per call, suitable for scripting and tests. The real
// interactive terminal UI is an external collaborator per spec §1's
// Non-goals; this type only exists so the resolver has something to call
// when no richer Prompter is wired in.
type StdinPrompter struct {
	reader *bufio.Reader
}

// NewStdinPrompter creates a StdinPrompter reading from os.Stdin.
func NewStdinPrompter() *StdinPrompter {
	return &StdinPrompter{reader: bufio.NewReader(os.Stdin)}
}

func (p *StdinPrompter) PromptString(description string, password bool) (string, error) {
	if description != "" {
		fmt.Fprintf(os.Stderr, "%s: ", description)
	}
	line, err := p.reader.ReadString('\n')
	if err != nil && line == "" {
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}

func (p *StdinPrompter) PickString(description string, options []string, defaultIndex int) (string, error) {
	if description != "" {
		fmt.Fprintf(os.Stderr, "%s %v: ", description, options)
	}
	line, err := p.reader.ReadString('\n')
	if err != nil && line == "" {
		return "", err
	}
	line = strings.TrimRight(line, "\r\n")
	if line == "" && defaultIndex >= 0 && defaultIndex < len(options) {
		return options[defaultIndex], nil
	}
	if idx, err := strconv.Atoi(line); err == nil && idx >= 0 && idx < len(options) {
		return options[idx], nil
	}
	return line, nil
}
