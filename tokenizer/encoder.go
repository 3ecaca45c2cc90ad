package tokenizer

import (
	"path/filepath"
	"strings"
)

// Encoder turns text into model input ids.
type Encoder interface {
	// EncodeIDs returns ids for text without special tokens.
	EncodeIDs(text string) []int32
	BOSID() int32
	EOSID() int32
	PadID() int32
	Close() error
}

var (
	_ Encoder = (*Tokenizer)(nil)
	_ Encoder = (*WordPiece)(nil)
)

// Load opens the encoder stored at path: a SentencePiece .model file, or a
// WordPiece vocab.txt otherwise. opts apply to SentencePiece models only.
func Load(path string, opts ...Option) (Encoder, error) {
	if strings.EqualFold(filepath.Ext(path), ".model") {
		return New(path, opts...)
	}
	return LoadWordPiece(path)
}

// Frame encodes text as a single model sequence: BOS, at most maxLen-2
// content ids, EOS. Content beyond the limit is truncated.
func Frame(e Encoder, text string, maxLen int) []int32 {
	ids := e.EncodeIDs(text)
	if limit := maxLen - 2; limit >= 0 && len(ids) > limit {
		ids = ids[:limit]
	}

	out := make([]int32, 0, len(ids)+2)
	out = append(out, e.BOSID())
	out = append(out, ids...)
	return append(out, e.EOSID())
}
