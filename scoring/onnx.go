package scoring

import (
	"context"
	"fmt"
	"strings"
)

// ONNXScorer predicts rubric scores with a local ONNX regression model that
// has one output per rubric item. It is safe for concurrent use.
type ONNXScorer struct {
	model *model
	scale Scale
}

// NewONNXScorer loads the model and tokenizer. tokenizerPath is a
// SentencePiece .model file or a WordPiece vocab.txt.
func NewONNXScorer(modelPath, tokenizerPath string, opts ...Option) (*ONNXScorer, error) {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	if err := cfg.scale.Validate(); err != nil {
		return nil, err
	}

	m, err := openModel(modelPath, tokenizerPath, cfg)
	if err != nil {
		return nil, err
	}
	return &ONNXScorer{model: m, scale: cfg.scale}, nil
}

// PredictScores returns the six rubric scores for text. Blank text scores
// zero on every item without running the model.
func (s *ONNXScorer) PredictScores(ctx context.Context, text string) (Scores, error) {
	if strings.TrimSpace(text) == "" {
		return Scores{}, nil
	}

	logits, err := s.model.logits(ctx, text)
	if err != nil {
		return Scores{}, fmt.Errorf("scoring essay: %w", err)
	}
	return fromLogits(logits, s.scale)
}

// Scale returns the scale applied to model outputs.
func (s *ONNXScorer) Scale() Scale {
	return s.scale
}

// Close releases the scorer's model reference.
func (s *ONNXScorer) Close() error {
	return s.model.Close()
}

func fromLogits(logits []float32, scale Scale) (Scores, error) {
	if len(logits) != NumItems {
		return Scores{}, fmt.Errorf("%w: got %d values, want %d", ErrUnexpectedOutput, len(logits), NumItems)
	}
	var out Scores
	for i, v := range logits {
		out[i] = scale.Apply(float64(v))
	}
	return out, nil
}
