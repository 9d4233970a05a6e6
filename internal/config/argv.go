package config

import (
	"fmt"
	"slices"
	"strings"
	"unicode"
)

// FilePlaceholder marks where the cue player receives the cue file path.
const FilePlaceholder = "{file}"

// ParseCommand splits a shell-like command line for cue_player_cmd. Quotes
// and backslash escapes group words, "" yields an empty argument, and a
// leading # yields no argv.
func ParseCommand(raw string) (CommandConfig, error) {
	cmd := CommandConfig{Raw: raw}
	input := strings.TrimSpace(raw)
	if input == "" || strings.HasPrefix(input, "#") {
		return cmd, nil
	}

	argv, err := splitWords(input)
	if err != nil {
		return CommandConfig{}, err
	}
	if n := strings.Count(strings.Join(argv, "\x00"), FilePlaceholder); n > 1 {
		return CommandConfig{}, fmt.Errorf("command %q uses %s %d times", input, FilePlaceholder, n)
	}
	if len(argv) > 0 && strings.Contains(argv[0], FilePlaceholder) {
		return CommandConfig{}, fmt.Errorf("command %q must start with a program, not %s", input, FilePlaceholder)
	}
	cmd.Argv = argv
	return cmd, nil
}

// Args returns the command line for playing file: the {file} placeholder is
// replaced in place, otherwise file is appended.
func (c CommandConfig) Args(file string) []string {
	if len(c.Argv) == 0 {
		return nil
	}
	args := slices.Clone(c.Argv)
	for i, arg := range args {
		if strings.Contains(arg, FilePlaceholder) {
			args[i] = strings.ReplaceAll(arg, FilePlaceholder, file)
			return args
		}
	}
	return append(args, file)
}

func splitWords(input string) ([]string, error) {
	var (
		words   []string
		word    strings.Builder
		inWord  bool
		quote   rune
		escaped bool
	)

	for _, r := range input {
		switch {
		case escaped:
			word.WriteRune(r)
			escaped = false
		case r == '\\' && quote != '\'':
			escaped, inWord = true, true
		case quote != 0 && r == quote:
			quote = 0
		case quote != 0:
			word.WriteRune(r)
		case r == '\'' || r == '"':
			quote, inWord = r, true
		case unicode.IsSpace(r):
			if inWord {
				words = append(words, word.String())
				word.Reset()
				inWord = false
			}
		default:
			word.WriteRune(r)
			inWord = true
		}
	}

	switch {
	case escaped:
		return nil, fmt.Errorf("unterminated escape sequence in command: %q", input)
	case quote != 0:
		return nil, fmt.Errorf("unterminated quote in command: %q", input)
	}
	if inWord {
		words = append(words, word.String())
	}
	return words, nil
}

func mustParseCommand(raw string) CommandConfig {
	cmd, err := ParseCommand(raw)
	if err != nil {
		panic(err)
	}
	return cmd
}
