package ipc

import (
	"errors"
	"fmt"
	"strings"
)

// Commands the owner answers over the socket.
const (
	CommandStatus   = "status"
	CommandPress    = "press"
	CommandRelease  = "release"
	CommandBlur     = "blur"
	CommandMode     = "mode"
	CommandSay      = "say"
	CommandListen   = "listen"
	CommandUnlisten = "unlisten"
	CommandHistory  = "history"
)

var knownCommands = map[string]bool{
	CommandStatus:   true,
	CommandPress:    true,
	CommandRelease:  true,
	CommandBlur:     true,
	CommandMode:     true,
	CommandSay:      true,
	CommandListen:   true,
	CommandUnlisten: true,
	CommandHistory:  true,
}

// Input sources accepted on press/release edges. Empty means key.
var knownSources = map[string]bool{"": true, "key": true, "touch": true, "mouse": true}

// ErrInvalidRequest wraps every request rejected before it reaches the owner.
var ErrInvalidRequest = errors.New("invalid request")

// Request is one command forwarded from a CLI invocation to the owner.
type Request struct {
	Command     string `json:"command"`
	Source      string `json:"source,omitempty"`
	Repeat      bool   `json:"repeat,omitempty"`
	InTextField bool   `json:"in_text_field,omitempty"`
	Argument    string `json:"argument,omitempty"`
}

type Response struct {
	OK      bool   `json:"ok"`
	State   string `json:"state,omitempty"`
	Mode    string `json:"mode,omitempty"`
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
}

// Edge carries the gesture details of a press or release.
type Edge struct {
	Source      string
	Repeat      bool
	InTextField bool
}

// NewRequest builds a request for command. Edge details are only carried on
// press and release.
func NewRequest(command string, argument string, edge Edge) Request {
	req := Request{Command: command, Argument: argument}
	if IsEdge(command) {
		req.Source = edge.Source
		req.Repeat = edge.Repeat
		req.InTextField = edge.InTextField
	}
	return req
}

// IsEdge reports whether command is a push-to-talk edge.
func IsEdge(command string) bool {
	return command == CommandPress || command == CommandRelease
}

// Validate rejects unknown commands, unknown sources, edge flags on
// non-edge commands, and missing arguments.
func (r Request) Validate() error {
	if !knownCommands[r.Command] {
		return fmt.Errorf("%w: unknown command %q", ErrInvalidRequest, r.Command)
	}
	source := strings.ToLower(strings.TrimSpace(r.Source))
	if !knownSources[source] {
		return fmt.Errorf("%w: unknown input source %q", ErrInvalidRequest, r.Source)
	}
	if !IsEdge(r.Command) && (r.Repeat || r.InTextField) {
		return fmt.Errorf("%w: %s does not take edge flags", ErrInvalidRequest, r.Command)
	}
	switch r.Command {
	case CommandMode, CommandSay:
		if strings.TrimSpace(r.Argument) == "" {
			return fmt.Errorf("%w: %s requires an argument", ErrInvalidRequest, r.Command)
		}
	}
	return nil
}
