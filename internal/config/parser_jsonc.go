package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
)

var errMultipleValues = errors.New("multiple JSON values are not allowed")

// parseJSONC decodes the JSON-with-comments config form. Unknown keys are
// errors, as is anything after the top-level object.
func parseJSONC(content string, base Config) (Config, []Warning, error) {
	plain, err := stripJSONC(content)
	if err != nil {
		return Config{}, nil, err
	}

	decoder := json.NewDecoder(strings.NewReader(plain))
	decoder.DisallowUnknownFields()

	var payload filePayload
	if err := decoder.Decode(&payload); err != nil {
		return Config{}, nil, locate(plain, err)
	}
	if err := expectEOF(decoder); err != nil {
		return Config{}, nil, locate(plain, err)
	}

	cfg := base
	warnings, err := payload.applyTo(&cfg)
	if err != nil {
		return Config{}, nil, err
	}
	return finish(cfg, warnings)
}

// stripJSONC blanks comments and trailing commas in a single pass. Removed
// bytes become spaces and line breaks are kept, so decoder offsets still
// match the file the user wrote.
func stripJSONC(src string) (string, error) {
	out := []byte(src)
	inString := false
	trailing := -1 // last comma not yet followed by a value

	for i := 0; i < len(out); i++ {
		c := out[i]
		if inString {
			switch c {
			case '\\':
				i++
			case '"':
				inString = false
			}
			continue
		}

		switch {
		case c == '"':
			inString = true
			trailing = -1
		case c == '/' && i+1 < len(out) && out[i+1] == '/':
			end := i + 2
			for end < len(out) && out[end] != '\n' && out[end] != '\r' {
				end++
			}
			blank(out[i:end])
			i = end - 1
		case c == '/' && i+1 < len(out) && out[i+1] == '*':
			closing := strings.Index(src[i+2:], "*/")
			if closing < 0 {
				line, col := lineCol(src, int64(i+1))
				return "", fmt.Errorf("line %d column %d: unterminated block comment", line, col)
			}
			end := i + 2 + closing + 2
			blank(out[i:end])
			i = end - 1
		case c == ',':
			trailing = i
		case c == '}' || c == ']':
			if trailing >= 0 {
				out[trailing] = ' '
			}
			trailing = -1
		case c == ' ' || c == '\n' || c == '\r' || c == '\t':
		default:
			trailing = -1
		}
	}
	return string(out), nil
}

// blank overwrites b with spaces, keeping line breaks and tabs.
func blank(b []byte) {
	for i, c := range b {
		if c != '\n' && c != '\r' && c != '\t' {
			b[i] = ' '
		}
	}
}

func expectEOF(decoder *json.Decoder) error {
	var extra json.RawMessage
	switch err := decoder.Decode(&extra); {
	case errors.Is(err, io.EOF):
		return nil
	case err == nil:
		return errMultipleValues
	default:
		return err
	}
}

// locate prefixes syntax and type errors with their line and column.
func locate(content string, err error) error {
	var offset int64
	var syntaxErr *json.SyntaxError
	var typeErr *json.UnmarshalTypeError
	switch {
	case errors.As(err, &syntaxErr):
		offset = syntaxErr.Offset
	case errors.As(err, &typeErr):
		offset = typeErr.Offset
	default:
		return err
	}
	line, col := lineCol(content, offset)
	return fmt.Errorf("line %d column %d: %w", line, col, err)
}

// lineCol maps a 1-based byte offset to a 1-based line and column, clamped
// to the content.
func lineCol(content string, offset int64) (int, int) {
	if offset > int64(len(content)) {
		offset = int64(len(content))
	}
	if offset <= 1 {
		return 1, 1
	}
	before := content[:offset-1]
	line := strings.Count(before, "\n") + 1
	col := len(before) - strings.LastIndexByte(before, '\n')
	return line, col
}
