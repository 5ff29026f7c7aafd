package output

import "fmt"

// Mode represents the output mode.
type Mode int

const (
	// ModeTUI is the interactive terminal UI mode.
	ModeTUI Mode = iota
	// ModePlain is the plain text mode used for pipes and --plain.
	ModePlain
	// ModeJSON emits one JSON event per line.
	ModeJSON
	// ModeQuiet prints only the answer.
	ModeQuiet
)

func (m Mode) String() string {
	switch m {
	case ModeTUI:
		return "tui"
	case ModePlain:
		return "plain"
	case ModeJSON:
		return "json"
	case ModeQuiet:
		return "quiet"
	default:
		return fmt.Sprintf("mode(%d)", int(m))
	}
}

// SelectMode picks the mode from the CLI switches. JSON wins over plain; the
// TUI is only used on an interactive terminal.
func SelectMode(plain, jsonOut, quiet, interactive bool) Mode {
	switch {
	case jsonOut:
		return ModeJSON
	case quiet:
		return ModeQuiet
	case plain || !interactive:
		return ModePlain
	default:
		return ModeTUI
	}
}
