package cli

import (
	"errors"
	"fmt"
	"strings"
)

type Command string

const (
	CommandServe    Command = "serve"
	CommandPress    Command = "press"
	CommandRelease  Command = "release"
	CommandBlur     Command = "blur"
	CommandMode     Command = "mode"
	CommandSay      Command = "say"
	CommandListen   Command = "listen"
	CommandUnlisten Command = "unlisten"
	CommandStatus   Command = "status"
	CommandHistory  Command = "history"
	CommandDevices  Command = "devices"
	CommandDoctor   Command = "doctor"
	CommandVersion  Command = "version"
	CommandHelp     Command = "help"
)

// argSpec is how many positional arguments a command takes. -1 means one
// or more, joined with spaces.
var argSpec = map[Command]int{
	CommandServe:    0,
	CommandPress:    0,
	CommandRelease:  0,
	CommandBlur:     0,
	CommandMode:     1,
	CommandSay:      -1,
	CommandListen:   0,
	CommandUnlisten: 0,
	CommandStatus:   0,
	CommandHistory:  0,
	CommandDevices:  0,
	CommandDoctor:   0,
	CommandVersion:  0,
	CommandHelp:     0,
}

type Parsed struct {
	Command     Command
	Argument    string
	ConfigPath  string
	Source      string
	Repeat      bool
	InTextField bool
	ShowHelp    bool
}

// Forwarded reports whether the command is handled by the running owner.
func (p Parsed) Forwarded() bool {
	switch p.Command {
	case CommandPress, CommandRelease, CommandBlur, CommandMode, CommandSay,
		CommandListen, CommandUnlisten, CommandStatus, CommandHistory:
		return true
	}
	return false
}

func Parse(args []string) (Parsed, error) {
	parsed := Parsed{Command: CommandHelp, ShowHelp: true}

	for i := 0; i < len(args); i++ {
		arg := args[i]

		switch arg {
		case "-h", "--help":
			parsed.ShowHelp = true
			parsed.Command = CommandHelp
		case "--version":
			parsed.ShowHelp = false
			parsed.Command = CommandVersion
		case "--config":
			i++
			if i >= len(args) {
				return Parsed{}, errors.New("--config requires a path")
			}
			parsed.ConfigPath = args[i]
		case "--source":
			i++
			if i >= len(args) {
				return Parsed{}, errors.New("--source requires a value (key, touch, mouse)")
			}
			parsed.Source = args[i]
		case "--repeat":
			parsed.Repeat = true
		case "--in-field":
			parsed.InTextField = true
		default:
			if strings.HasPrefix(arg, "-") {
				return Parsed{}, fmt.Errorf("unknown flag: %s", arg)
			}

			cmd := Command(arg)
			want, ok := argSpec[cmd]
			if !ok {
				return Parsed{}, fmt.Errorf("unknown command: %s", arg)
			}

			parsed.Command = cmd
			parsed.ShowHelp = cmd == CommandHelp

			rest := args[i+1:]
			switch {
			case want == 0 && len(rest) > 0:
				return Parsed{}, fmt.Errorf("unexpected arguments after command %q", arg)
			case want > 0 && len(rest) != want:
				return Parsed{}, fmt.Errorf("command %q takes %d argument(s)", arg, want)
			case want < 0 && len(rest) == 0:
				return Parsed{}, fmt.Errorf("command %q requires text", arg)
			}
			parsed.Argument = strings.Join(rest, " ")
			return parsed, nil
		}
	}

	return parsed, nil
}

func HelpText(binaryName string) string {
	return fmt.Sprintf(`Usage:
  %[1]s [flags] <command> [args]

Commands:
  serve         Run the session owner (recognizer, indicator, playback)
  press         Push-to-talk down edge
  release       Push-to-talk up edge; flushes and sends the utterance
  blur          Input surface lost focus; flushes a held session
  mode MODE     Switch input mode (text or voice)
  say TEXT      Send typed text through the chat gateway
  listen        Start continuous recognition outside push-to-talk
  unlisten      Stop continuous recognition
  status        Print current state, mode, and last status
  history       Print the conversation held by the chat backend
  devices       List available input and output devices
  doctor        Run configuration and environment checks
  version       Print version information
  help          Show this help

Flags:
  --config PATH     Config file path (default: $XDG_CONFIG_HOME/parley/config.jsonc)
  --source NAME     Input source for press/release: key, touch, mouse (default: key)
  --repeat          Mark press as an auto-repeated key event
  --in-field        Mark key edge as delivered while a text field has focus
  -h, --help        Show help
  --version         Show version
`, binaryName)
}
