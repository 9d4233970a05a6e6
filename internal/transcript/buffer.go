package transcript

import "strings"

// Buffer accumulates final segments for one session. Consecutive segments
// with the same Key are appended once. The latest partial is kept for
// preview only and never becomes part of Text.
type Buffer struct {
	text     string
	segments int
	lastKey  string
	partial  string
}

// Reset clears committed text, the partial, and the duplicate marker.
func (b *Buffer) Reset() {
	*b = Buffer{}
}

// ShouldAppend reports whether a segment with the given key may be appended.
func (b *Buffer) ShouldAppend(key string) bool {
	return key != "" && key != b.lastKey
}

// AppendFinal appends clean to the committed text, space-joined, and makes
// it the duplicate marker.
func (b *Buffer) AppendFinal(clean string) {
	clean = strings.TrimSpace(clean)
	if clean == "" {
		return
	}
	if b.text == "" {
		b.text = clean
	} else {
		b.text += " " + clean
	}
	b.segments++
	b.lastKey = strings.ToLower(clean)
}

// Offer normalizes raw and appends it unless it repeats the previous
// segment. It reports whether the segment was appended.
func (b *Buffer) Offer(raw string) bool {
	clean := Normalize(raw)
	if !b.ShouldAppend(strings.ToLower(clean)) {
		return false
	}
	b.AppendFinal(clean)
	return true
}

// UpdatePartial replaces the preview-only partial.
func (b *Buffer) UpdatePartial(text string) {
	b.partial = Normalize(text)
}

func (b *Buffer) Text() string {
	return b.text
}

func (b *Buffer) Partial() string {
	return b.partial
}

func (b *Buffer) Segments() int {
	return b.segments
}

// Preview renders committed text followed by the current partial.
func (b *Buffer) Preview() string {
	switch {
	case b.text == "":
		return b.partial
	case b.partial == "":
		return b.text
	default:
		return b.text + " " + b.partial
	}
}
