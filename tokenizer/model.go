package tokenizer

import (
	"errors"
	"fmt"
	"math"
	"os"

	"google.golang.org/protobuf/encoding/protowire"
)

// PieceType mirrors SentencePiece's ModelProto.SentencePiece.Type.
type PieceType int32

const (
	PieceNormal      PieceType = 1
	PieceUnknown     PieceType = 2
	PieceControl     PieceType = 3
	PieceUserDefined PieceType = 4
	PieceUnused      PieceType = 5
	PieceByte        PieceType = 6
)

// ModelType mirrors SentencePiece's TrainerSpec.ModelType.
type ModelType int32

const (
	ModelUnigram ModelType = 1
	ModelBPE     ModelType = 2
	ModelWord    ModelType = 3
	ModelChar    ModelType = 4
)

func (m ModelType) String() string {
	switch m {
	case ModelUnigram:
		return "UNIGRAM"
	case ModelBPE:
		return "BPE"
	case ModelWord:
		return "WORD"
	case ModelChar:
		return "CHAR"
	}
	return fmt.Sprintf("ModelType(%d)", int32(m))
}

// Piece represents a vocabulary piece from the model.
type Piece struct {
	Piece string
	Score float32
	Type  PieceType
}

// Model represents a loaded SentencePiece model.
type Model struct {
	Pieces    []Piece
	ModelType ModelType

	// AddDummyPrefix reports whether a leading ▁ is added before encoding.
	AddDummyPrefix bool
}

// ModelProto field numbers (sentencepiece_model.proto).
const (
	fieldPieces         protowire.Number = 1
	fieldTrainerSpec    protowire.Number = 2
	fieldNormalizerSpec protowire.Number = 3

	fieldPiecePiece protowire.Number = 1
	fieldPieceScore protowire.Number = 2
	fieldPieceType  protowire.Number = 3

	fieldTrainerModelType protowire.Number = 3

	fieldNormalizerAddDummyPrefix protowire.Number = 3
)

var errTruncated = errors.New("truncated protobuf")

// LoadModel loads a SentencePiece model from a .model file.
func LoadModel(path string) (*Model, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading model file: %w", err)
	}

	m, err := ParseModel(data)
	if err != nil {
		return nil, fmt.Errorf("parsing protobuf: %w", err)
	}
	return m, nil
}

// ParseModel decodes a serialized ModelProto. Only the fields the tokenizer
// needs are read; everything else is skipped.
func ParseModel(data []byte) (*Model, error) {
	m := &Model{ModelType: ModelUnigram, AddDummyPrefix: true}

	err := walk(data, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch {
		case num == fieldPieces && typ == protowire.BytesType:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return n, errTruncated
			}
			p, err := parsePiece(v)
			if err != nil {
				return n, fmt.Errorf("piece %d: %w", len(m.Pieces), err)
			}
			m.Pieces = append(m.Pieces, p)
			return n, nil

		case num == fieldTrainerSpec && typ == protowire.BytesType:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return n, errTruncated
			}
			return n, walk(v, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
				if num == fieldTrainerModelType && typ == protowire.VarintType {
					x, n := protowire.ConsumeVarint(b)
					m.ModelType = ModelType(x)
					return n, nil
				}
				return skip(num, typ, b)
			})

		case num == fieldNormalizerSpec && typ == protowire.BytesType:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return n, errTruncated
			}
			return n, walk(v, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
				if num == fieldNormalizerAddDummyPrefix && typ == protowire.VarintType {
					x, n := protowire.ConsumeVarint(b)
					m.AddDummyPrefix = protowire.DecodeBool(x)
					return n, nil
				}
				return skip(num, typ, b)
			})
		}
		return skip(num, typ, b)
	})
	if err != nil {
		return nil, err
	}
	if len(m.Pieces) == 0 {
		return nil, errors.New("model has no pieces")
	}
	return m, nil
}

func parsePiece(data []byte) (Piece, error) {
	p := Piece{Type: PieceNormal}
	err := walk(data, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch {
		case num == fieldPiecePiece && typ == protowire.BytesType:
			v, n := protowire.ConsumeBytes(b)
			p.Piece = string(v)
			return n, nil
		case num == fieldPieceScore && typ == protowire.Fixed32Type:
			v, n := protowire.ConsumeFixed32(b)
			p.Score = math.Float32frombits(v)
			return n, nil
		case num == fieldPieceType && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			p.Type = PieceType(v)
			return n, nil
		}
		return skip(num, typ, b)
	})
	return p, err
}

// walk calls fn for each field in a message. fn consumes the field value
// from b and returns the number of bytes read.
func walk(data []byte, fn func(protowire.Number, protowire.Type, []byte) (int, error)) error {
	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return protowire.ParseError(n)
		}
		data = data[n:]

		m, err := fn(num, typ, data)
		if err != nil {
			return err
		}
		if m < 0 {
			return protowire.ParseError(m)
		}
		data = data[m:]
	}
	return nil
}

func skip(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
	n := protowire.ConsumeFieldValue(num, typ, b)
	if n < 0 {
		return n, protowire.ParseError(n)
	}
	return n, nil
}
