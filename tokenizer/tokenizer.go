package tokenizer

import (
	"fmt"
)

// Scheme selects how SentencePiece indices map to model input ids.
type Scheme int

const (
	// SchemeFairseq is the XLM-RoBERTa layout used by HuggingFace:
	//   - ID[0] = <s>   (SP[1])
	//   - ID[1] = <pad> (not in SentencePiece)
	//   - ID[2] = </s>  (SP[2])
	//   - ID[3] = <unk> (SP[0])
	//   - ID[n+1] = SP[n] for n >= 3
	SchemeFairseq Scheme = iota

	// SchemeSentencePiece uses SentencePiece indices directly, as DeBERTa-v3
	// and ALBERT checkpoints do. Special tokens are found by name.
	SchemeSentencePiece
)

// unkPenalty is subtracted from the lowest piece score to score unknown
// characters, matching SentencePiece's unigram model.
const unkPenalty = 10.0

// Tokenizer implements SentencePiece Unigram tokenization with
// HuggingFace-compatible ids.
type Tokenizer struct {
	pieces    map[string]int32   // token string -> SentencePiece index
	scores    map[string]float32 // matchable token string -> log probability
	idToPiece []string           // SentencePiece index -> token string

	scheme      Scheme
	dummyPrefix bool
	unkIndex    int32
	unkScore    float64

	bosID int32
	padID int32
	eosID int32
	unkID int32

	maxTokenLen int
}

// TokenInfo represents a token with its position in the normalized text.
type TokenInfo struct {
	ID    int32
	Text  string
	Start int // rune offset
	End   int // rune offset
}

// Option configures a Tokenizer.
type Option func(*Tokenizer)

// WithScheme sets the id layout (default: SchemeFairseq).
func WithScheme(s Scheme) Option {
	return func(t *Tokenizer) {
		t.scheme = s
	}
}

// New loads a tokenizer from a SentencePiece .model file.
func New(modelPath string, opts ...Option) (*Tokenizer, error) {
	model, err := LoadModel(modelPath)
	if err != nil {
		return nil, fmt.Errorf("loading model: %w", err)
	}
	return NewFromModel(model, opts...)
}

// NewFromModel builds a tokenizer from a parsed model.
func NewFromModel(model *Model, opts ...Option) (*Tokenizer, error) {
	t := &Tokenizer{
		pieces:      make(map[string]int32, len(model.Pieces)),
		scores:      make(map[string]float32, len(model.Pieces)),
		idToPiece:   make([]string, len(model.Pieces)),
		dummyPrefix: model.AddDummyPrefix,
		unkIndex:    -1,
	}
	for _, opt := range opts {
		opt(t)
	}

	minScore := float32(0)
	for i, piece := range model.Pieces {
		s := piece.Piece
		t.pieces[s] = int32(i)
		t.idToPiece[i] = s

		switch piece.Type {
		case PieceUnknown:
			if t.unkIndex < 0 {
				t.unkIndex = int32(i)
			}
			continue
		case PieceControl, PieceUnused:
			continue
		}

		t.scores[s] = piece.Score
		if piece.Score < minScore {
			minScore = piece.Score
		}
		if len([]rune(s)) > t.maxTokenLen {
			t.maxTokenLen = len([]rune(s))
		}
	}
	if t.unkIndex < 0 {
		return nil, fmt.Errorf("model has no unknown piece")
	}
	t.unkScore = float64(minScore) - unkPenalty

	switch t.scheme {
	case SchemeFairseq:
		if len(model.Pieces) < 3 {
			return nil, fmt.Errorf("fairseq scheme needs at least 3 pieces, got %d", len(model.Pieces))
		}
		t.bosID, t.padID, t.eosID, t.unkID = 0, 1, 2, 3
	case SchemeSentencePiece:
		t.bosID = t.lookup("[CLS]", "<s>")
		t.eosID = t.lookup("[SEP]", "</s>")
		t.padID = t.lookup("[PAD]", "<pad>")
		t.unkID = t.unkIndex
	default:
		return nil, fmt.Errorf("unknown scheme %d", t.scheme)
	}

	return t, nil
}

func (t *Tokenizer) lookup(names ...string) int32 {
	for _, name := range names {
		if i, ok := t.pieces[name]; ok {
			return i
		}
	}
	return -1
}

// pieceID converts a SentencePiece index to a model input id.
func (t *Tokenizer) pieceID(spIndex int32) int32 {
	if t.scheme == SchemeSentencePiece {
		return spIndex
	}
	switch spIndex {
	case 0: // <unk>
		return 3
	case 1: // <s>
		return 0
	case 2: // </s>
		return 2
	default: // normal tokens: shift by 1
		return spIndex + 1
	}
}

// Close releases tokenizer resources.
func (t *Tokenizer) Close() error {
	return nil
}

// VocabSize returns the number of model input ids. Under SchemeFairseq this
// is the SentencePiece vocabulary plus <pad> and <mask> (250002 for
// XLM-RoBERTa).
func (t *Tokenizer) VocabSize() int {
	if t.scheme == SchemeSentencePiece {
		return len(t.idToPiece)
	}
	return len(t.idToPiece) + 2
}

// BOSID returns the beginning-of-sequence token ID.
func (t *Tokenizer) BOSID() int32 { return t.bosID }

// PadID returns the padding token ID, or -1 if the model has none.
func (t *Tokenizer) PadID() int32 { return t.padID }

// EOSID returns the end-of-sequence token ID.
func (t *Tokenizer) EOSID() int32 { return t.eosID }

// UnkID returns the unknown token ID.
func (t *Tokenizer) UnkID() int32 { return t.unkID }
