package tokenizer

import (
	"strings"
	"unicode"
)

const sentencePieceSpace = '▁' // U+2581 LOWER ONE EIGHTH BLOCK

// normalize prepares text for SentencePiece tokenization.
// - Adds dummy prefix (▁ at start) when prefix is set
// - Replaces spaces with ▁
// - Normalizes whitespace (collapses runs, trims)
func normalize(text string, prefix bool) string {
	if text == "" {
		return ""
	}

	var builder strings.Builder
	needSpace := prefix

	for _, r := range text {
		if unicode.IsSpace(r) {
			if builder.Len() > 0 {
				needSpace = true
			}
			continue
		}
		if needSpace {
			builder.WriteRune(sentencePieceSpace)
			needSpace = false
		}
		builder.WriteRune(r)
	}

	return builder.String()
}
