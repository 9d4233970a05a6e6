package config

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseCommand(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    []string
		wantErr string
	}{
		{name: "empty", input: "", want: nil},
		{name: "simple", input: "pw-play --media-role Notification", want: []string{"pw-play", "--media-role", "Notification"}},
		{name: "double quotes", input: `paplay --client-name "parley cues"`, want: []string{"paplay", "--client-name", "parley cues"}},
		{name: "single quotes keep backslash", input: `aplay 'C:\cues'`, want: []string{"aplay", `C:\cues`}},
		{name: "escaped space", input: `play ~/my\ cues`, want: []string{"play", "~/my cues"}},
		{name: "empty quoted argument", input: `player "" {file}`, want: []string{"player", "", "{file}"}},
		{name: "leading comment", input: `# pw-play`, want: nil},
		{name: "unterminated quote", input: `pw-play "oops`, wantErr: "unterminated quote"},
		{name: "unterminated escape", input: `pw-play cue\`, wantErr: "unterminated escape"},
		{name: "placeholder twice", input: `mix {file} {file}`, wantErr: "uses {file} 2 times"},
		{name: "placeholder as program", input: `{file} --loud`, wantErr: "must start with a program"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := ParseCommand(tc.input)
			if tc.wantErr != "" {
				require.ErrorContains(t, err, tc.wantErr)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tc.input, got.Raw)
			require.Equal(t, tc.want, got.Argv)
		})
	}
}

func TestCommandArgs(t *testing.T) {
	appended := mustParseCommand("pw-play --media-role Notification")
	require.Equal(t, []string{"pw-play", "--media-role", "Notification", "/tmp/start.wav"}, appended.Args("/tmp/start.wav"))
	require.Equal(t, []string{"pw-play", "--media-role", "Notification"}, appended.Argv)

	placed := mustParseCommand("ffplay -nodisp -autoexit -i {file} -loglevel quiet")
	require.Equal(t, []string{"ffplay", "-nodisp", "-autoexit", "-i", "/tmp/stop.wav", "-loglevel", "quiet"}, placed.Args("/tmp/stop.wav"))

	inline := mustParseCommand("player --input={file}")
	require.Equal(t, []string{"player", "--input=/tmp/a.wav"}, inline.Args("/tmp/a.wav"))

	require.Nil(t, CommandConfig{}.Args("/tmp/a.wav"))
}

func TestMustParseCommandPanicsOnInvalidInput(t *testing.T) {
	require.Panics(t, func() {
		_ = mustParseCommand(`pw-play "unterminated`)
	})
}
