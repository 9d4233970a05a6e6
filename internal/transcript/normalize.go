// Package transcript normalizes recognized speech segments and accumulates
// them into a single deduplicated utterance per push-to-talk session.
package transcript

import (
	"regexp"
	"strings"
)

var terminalPunctuationPattern = regexp.MustCompile(`[.,!?؛،؟:;…\x{3002}\x{FF0E}\x{FE12}\x{FE52}]+$`)

// Normalize collapses whitespace and strips a trailing run of sentence
// punctuation (Latin, Arabic, and CJK forms).
func Normalize(raw string) string {
	s := collapse(raw)
	if s == "" {
		return ""
	}
	s = terminalPunctuationPattern.ReplaceAllString(s, "")
	return strings.TrimSpace(s)
}

// Key returns the comparison form used to detect consecutive duplicates.
func Key(raw string) string {
	return strings.ToLower(Normalize(raw))
}

// SquashDuplicateHalf returns the first half of text when the utterance is
// the same phrase recognized twice back to back. Only applies to texts of at
// least ten characters. Even-length texts are split in the middle; odd-length
// texts only when the middle character is the space joining the two halves.
// Otherwise the whitespace-collapsed input is returned.
func SquashDuplicateHalf(text string) string {
	norm := collapse(text)
	original := []rune(norm)
	if len(original) < 10 {
		return norm
	}

	mid := len(original) / 2
	second := mid
	if len(original)%2 != 0 {
		if original[mid] != ' ' {
			return norm
		}
		second = mid + 1
	}

	a := strings.TrimSpace(string(original[:mid]))
	b := strings.TrimSpace(string(original[second:]))
	if strings.ToLower(a) != strings.ToLower(b) {
		return norm
	}
	return a
}

func collapse(raw string) string {
	return strings.Join(strings.Fields(raw), " ")
}
