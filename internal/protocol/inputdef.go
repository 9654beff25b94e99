package protocol

// InputKind identifies how an InputDef's value is resolved (spec §4.3).
type InputKind string

const (
	InputPromptString InputKind = "prompt_string"
	InputPickString   InputKind = "pick_string"
	InputCommand      InputKind = "command"
)

// CommandStdoutMode selects how resolveCommand (internal/computer/input)
// interprets a command input's stdout (spec §4.3 step 3). Empty/unset
// behaves as StdoutRaw.
type CommandStdoutMode string

const (
	StdoutRaw   CommandStdoutMode = "raw"
	StdoutLines CommandStdoutMode = "lines"
	StdoutJSON  CommandStdoutMode = "json"
)

// InputDef describes one placeholder a ServerConfig may reference as
// ${input:<id>}. Identity is ID; a resolver's definition set has set
// semantics (re-adding the same ID updates the existing definition).
type InputDef struct {
	ID          string    `json:"id"`
	Description string    `json:"description,omitempty"`
	Kind        InputKind `json:"kind"`

	// prompt_string
	Default  *string `json:"default,omitempty"`
	Password bool    `json:"password,omitempty"`

	// pick_string. DefaultIndex, when set, indexes into Options (spec §4.3
	// resolution protocol: "optional default index"); Default (above) is
	// also accepted as a plain default value for pick_string definitions
	// that prefer to name the option rather than index it.
	Options      []string `json:"options,omitempty"`
	DefaultIndex *int     `json:"default_index,omitempty"`

	// command
	Command    string            `json:"command,omitempty"`
	Args       []string          `json:"args,omitempty"`
	StdoutMode CommandStdoutMode `json:"stdout_mode,omitempty"`
}
