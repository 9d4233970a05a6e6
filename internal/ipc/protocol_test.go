package ipc

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRequestValidate(t *testing.T) {
	tests := []struct {
		name    string
		req     Request
		wantErr string
	}{
		{name: "status", req: Request{Command: CommandStatus}},
		{name: "press with source", req: Request{Command: CommandPress, Source: "Touch", Repeat: true}},
		{name: "release default source", req: Request{Command: CommandRelease, InTextField: true}},
		{name: "mode", req: Request{Command: CommandMode, Argument: "voice"}},
		{name: "say", req: Request{Command: CommandSay, Argument: "hello"}},
		{name: "history", req: Request{Command: CommandHistory}},
		{name: "unknown command", req: Request{Command: "toggle"}, wantErr: `unknown command "toggle"`},
		{name: "unknown source", req: Request{Command: CommandPress, Source: "joystick"}, wantErr: "unknown input source"},
		{name: "edge flags on blur", req: Request{Command: CommandBlur, Repeat: true}, wantErr: "does not take edge flags"},
		{name: "mode without argument", req: Request{Command: CommandMode}, wantErr: "mode requires an argument"},
		{name: "say blank", req: Request{Command: CommandSay, Argument: "  "}, wantErr: "say requires an argument"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.req.Validate()
			if tc.wantErr == "" {
				require.NoError(t, err)
				return
			}
			require.ErrorIs(t, err, ErrInvalidRequest)
			require.ErrorContains(t, err, tc.wantErr)
		})
	}
}

func TestNewRequestCarriesEdgeOnlyForPressAndRelease(t *testing.T) {
	edge := Edge{Source: "mouse", Repeat: true, InTextField: true}

	press := NewRequest(CommandPress, "", edge)
	require.Equal(t, Request{Command: CommandPress, Source: "mouse", Repeat: true, InTextField: true}, press)

	mode := NewRequest(CommandMode, "text", edge)
	require.Equal(t, Request{Command: CommandMode, Argument: "text"}, mode)
	require.NoError(t, mode.Validate())
}
