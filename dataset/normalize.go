package dataset

import (
	"strings"
	"unicode"
)

// Normalize canonicalizes essay text before labeling or scoring.
//
// The text is lower-cased, every whitespace run becomes a single space,
// characters outside ASCII letters, digits, the punctuation set , . ! ? ' "
// and space are removed, and the result is trimmed. Normalize is total and
// idempotent: Normalize(Normalize(s)) == Normalize(s).
func Normalize(text string) string {
	if text == "" {
		return ""
	}

	lower := strings.ToLower(text)

	var b strings.Builder
	b.Grow(len(lower))

	// Removing a rune can leave two spaces next to each other ("a é b"),
	// so spaces are collapsed while writing rather than before filtering.
	pendingSpace := false
	for _, r := range lower {
		if unicode.IsSpace(r) {
			pendingSpace = true
			continue
		}
		if !keep(r) {
			continue
		}
		if pendingSpace && b.Len() > 0 {
			b.WriteByte(' ')
		}
		pendingSpace = false
		b.WriteRune(r)
	}

	return b.String()
}

// NormalizeNullable is Normalize for optional values; nil yields "".
func NormalizeNullable(text *string) string {
	if text == nil {
		return ""
	}
	return Normalize(*text)
}

func keep(r rune) bool {
	switch {
	case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		return true
	}
	switch r {
	case ',', '.', '!', '?', '\'', '"':
		return true
	}
	return false
}
