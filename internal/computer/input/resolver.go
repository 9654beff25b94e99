// Package input implements the Computer's input-definition resolution and
// config-rendering subsystem (spec §4.3): a set of ${input:<id>} definitions,
// a per-id value cache, and the recursive renderer that splices resolved
// values into a ServerConfig's serialized form.
package input

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/a2c-smcp/a2c-smcp-go/internal/protocol"
)

// Prompter is the interactive surface a prompt_string/pick_string
// resolution ultimately calls into. Exposing it as an interface honors the
// "interactive terminal UI" Non-goal (spec §1): this package ships a
// non-interactive default (see stdin_prompter.go) and a real TUI is an
// external collaborator.
type Prompter interface {
	PromptString(description string, password bool) (string, error)
	PickString(description string, options []string, defaultIndex int) (string, error)
}

// CommandRunner executes a command-kind resolution locally. Abstracted so
// tests can substitute a fake without spawning processes.
type CommandRunner interface {
	Run(ctx context.Context, command string, args []string) (stdout, stderr string, err error)
}

// Resolver owns the definition set and value cache for one Computer (spec
// §4.3 "Definitions and cache"). Definitions have set semantics keyed by
// ID; re-adding the same ID updates the existing definition in place.
type Resolver struct {
	prompter Prompter
	runner   CommandRunner

	mu    sync.Mutex
	defs  map[string]protocol.InputDef
	cache map[string]any
}

// NewResolver creates a Resolver. prompter/runner may be nil, in which case
// the defaults (a non-interactive stdin Prompter and an os/exec
// CommandRunner) are used.
func NewResolver(prompter Prompter, runner CommandRunner) *Resolver {
	if prompter == nil {
		prompter = NewStdinPrompter()
	}
	if runner == nil {
		runner = execCommandRunner{}
	}
	return &Resolver{
		prompter: prompter,
		runner:   runner,
		defs:     make(map[string]protocol.InputDef),
		cache:    make(map[string]any),
	}
}

// AddOrUpdateDef installs def, replacing any existing definition with the
// same ID (set semantics per spec §4.3).
func (r *Resolver) AddOrUpdateDef(def protocol.InputDef) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.defs[def.ID] = def
}

// RemoveDef deletes the definition (and any cached value) for id.
func (r *Resolver) RemoveDef(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.defs, id)
	delete(r.cache, id)
}

// ListDefs returns a snapshot of every known definition.
func (r *Resolver) ListDefs() []protocol.InputDef {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]protocol.InputDef, 0, len(r.defs))
	for _, d := range r.defs {
		out = append(out, d)
	}
	return out
}

// GetCached returns the cached value for id, if any.
func (r *Resolver) GetCached(id string) (any, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	v, ok := r.cache[id]
	return v, ok
}

// SetCached stores value for id. Setting a value for an unknown id fails
// (spec §4.3 "Setting a value for an unknown id fails").
func (r *Resolver) SetCached(id string, value any) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.defs[id]; !ok {
		return fmt.Errorf("input: %s: %q", protocol.ErrInputNotFound, id)
	}
	r.cache[id] = value
	return nil
}

// ClearCached removes every cached value (definitions are untouched).
func (r *Resolver) ClearCached() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cache = make(map[string]any)
}

// RemoveCached deletes the cached value for id, if any.
func (r *Resolver) RemoveCached(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.cache, id)
}

// Resolve implements the protocol of spec §4.3 "Resolution protocol":
// cache hit short-circuits; otherwise the definition is dispatched by kind,
// the result is cached, and returned. User-facing I/O (prompts, command
// execution) is performed without holding the resolver's lock.
func (r *Resolver) Resolve(ctx context.Context, id string) (any, error) {
	r.mu.Lock()
	if v, ok := r.cache[id]; ok {
		r.mu.Unlock()
		return v, nil
	}
	def, ok := r.defs[id]
	r.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("input: %s: %q", protocol.ErrInputNotFound, id)
	}

	value, err := r.dispatch(ctx, def)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	r.cache[id] = value
	r.mu.Unlock()
	return value, nil
}

func (r *Resolver) dispatch(ctx context.Context, def protocol.InputDef) (any, error) {
	switch def.Kind {
	case protocol.InputPromptString:
		return r.resolvePromptString(def)
	case protocol.InputPickString:
		return r.resolvePickString(def)
	case protocol.InputCommand:
		return r.resolveCommand(ctx, def)
	default:
		return nil, fmt.Errorf("input: unknown kind %q for id %q", def.Kind, def.ID)
	}
}

func (r *Resolver) resolvePromptString(def protocol.InputDef) (any, error) {
	value, err := r.prompter.PromptString(def.Description, def.Password)
	if err != nil {
		return nil, fmt.Errorf("input: prompt_string %q: %w", def.ID, err)
	}
	if value == "" && def.Default != nil {
		return *def.Default, nil
	}
	return value, nil
}

func (r *Resolver) resolvePickString(def protocol.InputDef) (any, error) {
	defaultIndex := -1
	if def.DefaultIndex != nil {
		defaultIndex = *def.DefaultIndex
	}
	value, err := r.prompter.PickString(def.Description, def.Options, defaultIndex)
	if err != nil {
		return nil, fmt.Errorf("input: pick_string %q: %w", def.ID, err)
	}
	return value, nil
}

// resolveCommand runs def.Command and dispatches its stdout per def.StdoutMode
// (spec §4.3 step 3): "raw" (the default) returns stdout untouched,
// "lines" splits it into a slice on newlines, and "json" unmarshals it.
func (r *Resolver) resolveCommand(ctx context.Context, def protocol.InputDef) (any, error) {
	stdout, stderr, err := r.runner.Run(ctx, def.Command, def.Args)
	if err != nil {
		return nil, fmt.Errorf("input: command %q (%s): %w: %s", def.ID, def.Command, err, stderr)
	}

	switch def.StdoutMode {
	case protocol.StdoutLines:
		trimmed := strings.TrimRight(stdout, "\n")
		if trimmed == "" {
			return []string{}, nil
		}
		return strings.Split(trimmed, "\n"), nil
	case protocol.StdoutJSON:
		var value any
		if err := json.Unmarshal([]byte(stdout), &value); err != nil {
			return nil, fmt.Errorf("input: command %q (%s): parse json stdout: %w", def.ID, def.Command, err)
		}
		return value, nil
	case protocol.StdoutRaw, "":
		return stdout, nil
	default:
		return nil, fmt.Errorf("input: command %q: unknown stdout_mode %q", def.ID, def.StdoutMode)
	}
}
